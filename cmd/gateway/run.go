// cmd/gateway/run.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	ossignal "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/elcruzo/light-sensor-circuit/internal/alerting"
	"github.com/elcruzo/light-sensor-circuit/internal/anomaly"
	"github.com/elcruzo/light-sensor-circuit/internal/api"
	"github.com/elcruzo/light-sensor-circuit/internal/auth"
	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/gateway"
	"github.com/elcruzo/light-sensor-circuit/internal/logging"
	"github.com/elcruzo/light-sensor-circuit/internal/metrics"
	"github.com/elcruzo/light-sensor-circuit/internal/publish"
	"github.com/elcruzo/light-sensor-circuit/internal/sensor"
	"github.com/elcruzo/light-sensor-circuit/internal/storage"
	"github.com/elcruzo/light-sensor-circuit/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd(configDir *string) *cobra.Command {
	var noSensor bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "poll the sensor and serve the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(*configDir, noSensor)
		},
	}
	cmd.Flags().BoolVar(&noSensor, "no-sensor", false, "only process samples posted to /samples")
	return cmd
}

func run(configDir string, noSensor bool) error {
	cfg, loader, logger, closer, err := setup(configDir)
	if err != nil {
		return err
	}
	defer closer.Close()
	log := logging.Component(logger, "main")

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize Components ---
	var s sensor.Sensor
	if !noSensor {
		src, err := sensor.NewSource(cfg.Sensor)
		if err != nil {
			return err
		}
		ls, err := sensor.New(cfg.Sensor, src)
		if err != nil {
			return fmt.Errorf("sensor: %w", err)
		}
		s = ls
	}

	pub, err := publish.New(cfg.Publisher, logging.Component(logger, "publish"))
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}

	m := metrics.New()
	hub := websocket.NewHub(logging.Component(logger, "websocket"), m.SetClients)
	detector := anomaly.NewDetector(cfg.Anomaly, logging.Component(logger, "anomaly"))
	alerter := alerting.NewAlerter(hub, pub, m, logging.Component(logger, "alerting"))
	store := storage.NewMemoryStore(cfg.Storage.HistorySize)
	datalog := storage.NewDataLogger(cfg.Storage, storage.NewSink(cfg.Storage), logging.Component(logger, "datalog"))

	gw := gateway.New(cfg, gateway.Deps{
		Sensor:    s,
		Store:     store,
		Logger:    datalog,
		Metrics:   m,
		Detector:  detector,
		Alerter:   alerter,
		Hub:       hub,
		Publisher: pub,
		Log:       logging.Component(logger, "gateway"),
	})
	defer func() {
		if err := gw.Close(); err != nil {
			log.WithError(err).Error("closing gateway")
		}
	}()

	loader.Watch(func(next *config.Config) {
		v := next.Validate()
		if err := v.Err(); err != nil {
			log.WithError(err).Error("ignoring invalid configuration")
			return
		}
		gw.ApplyConfig(next)
	})

	apiHandler, err := api.NewAPIHandler(gw, hub, auth.NewManager(cfg.Auth), m.Handler(), logging.Component(logger, "api"))
	if err != nil {
		return err
	}

	// --- Setup HTTP Servers ---
	servers := []*http.Server{
		{Addr: fmt.Sprintf(":%d", cfg.Server.DataPort), Handler: api.SetupDataRouter(apiHandler)},
		{Addr: fmt.Sprintf(":%d", cfg.Server.UIPort), Handler: api.SetupUIRouter(apiHandler)},
	}

	var wg sync.WaitGroup
	errc := make(chan error, len(servers)+1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	for _, srv := range servers {
		srv := srv
		go func() {
			log.WithField("addr", srv.Addr).Info("http server listening")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}()
	}

	if s != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gw.Run(ctx); err != nil {
				errc <- err
			}
		}()
	}

	// --- Graceful Shutdown ---
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errc:
		log.WithError(runErr).Error("component failed, shutting down")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).WithField("addr", srv.Addr).Warn("http server shutdown")
		}
	}
	wg.Wait()
	log.Info("gateway stopped")
	return runErr
}
