// internal/gateway/gateway.go
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elcruzo/light-sensor-circuit/internal/alerting"
	"github.com/elcruzo/light-sensor-circuit/internal/anomaly"
	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/data"
	"github.com/elcruzo/light-sensor-circuit/internal/metrics"
	"github.com/elcruzo/light-sensor-circuit/internal/publish"
	"github.com/elcruzo/light-sensor-circuit/internal/sensor"
	"github.com/elcruzo/light-sensor-circuit/internal/signal"
	"github.com/elcruzo/light-sensor-circuit/internal/storage"
)

const (
	SourceSensor = "sensor"
	SourceHTTP   = "http"
	SourceReplay = "replay"

	publishTimeout = 5 * time.Second
)

var (
	ErrInvalidSample   = errors.New("sample is marked invalid")
	ErrNoSensor        = errors.New("gateway has no sensor to poll")
	ErrNotCalibratable = errors.New("sensor does not support calibration")
)

// Calibrator is a sensor that takes a two-point calibration;
// *sensor.LightSensor implements it.
type Calibrator interface {
	Calibrate(darkVolts, lightVolts float64) error
	Config() config.SensorConfig
}

// RecordBroadcaster pushes processed records to live clients;
// *websocket.Hub implements it.
type RecordBroadcaster interface {
	BroadcastRecord(rec *data.Record)
}

// Deps are the collaborators a Gateway hands each record to. Store, Logger
// and Log are required.
type Deps struct {
	Sensor    sensor.Sensor
	Store     *storage.MemoryStore
	Logger    *storage.DataLogger
	Metrics   *metrics.Metrics
	Detector  *anomaly.Detector
	Alerter   *alerting.Alerter
	Hub       RecordBroadcaster
	Publisher publish.Publisher
	Log       *logrus.Entry
}

// Gateway owns the signal processor. Every sample, polled or ingested,
// holds seq from processing until it has been handed to every consumer,
// so history, data log, live clients and publisher see records in the
// order they were processed.
type Gateway struct {
	deviceID string
	interval time.Duration
	// sampleRateHz follows interval, not the latest config file.
	sampleRateHz float64

	seq  sync.Mutex
	mu   sync.Mutex // guards proc
	proc *signal.Processor

	Deps
	now func() time.Time
}

// New builds a gateway for cfg with a configured processor.
func New(cfg *config.Config, deps Deps) *Gateway {
	if deps.Publisher == nil {
		deps.Publisher = publish.Nop{}
	}
	g := &Gateway{
		deviceID:     cfg.Device.ID,
		interval:     time.Duration(cfg.Sensor.SampleRateMs) * time.Millisecond,
		sampleRateHz: signal.SampleRateFromInterval(cfg.Sensor.SampleRateMs),
		Deps:         deps,
		now:          time.Now,
	}
	g.proc = signal.NewProcessor(
		signal.WithLogger(deps.Log.WithField("component", "signal")),
		signal.WithConfig(g.pinRate(cfg.ToSignalConfig())),
	)
	return g
}

// Run polls the sensor every sampling interval until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	if g.Sensor == nil {
		return ErrNoSensor
	}
	if g.interval <= 0 {
		return fmt.Errorf("sampling interval %v must be positive", g.interval)
	}
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.Log.WithField("interval", g.interval).Info("polling sensor")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s := g.Sensor.Read()
			if _, err := g.process(ctx, s, g.deviceID, SourceSensor); err != nil {
				g.Log.WithError(err).WithField("raw", s.RawValue).Debug("sensor sample skipped")
			}
		}
	}
}

// Ingest processes a sample delivered from outside, e.g. over HTTP. An
// empty deviceID means the gateway's own device.
func (g *Gateway) Ingest(ctx context.Context, s signal.Sample, deviceID string) (*data.Record, error) {
	if deviceID == "" {
		deviceID = g.deviceID
	}
	return g.process(ctx, s, deviceID, SourceHTTP)
}

// Replay processes a recorded sample, tagging the record accordingly.
func (g *Gateway) Replay(ctx context.Context, s signal.Sample) (*data.Record, error) {
	return g.process(ctx, s, g.deviceID, SourceReplay)
}

func (g *Gateway) process(ctx context.Context, s signal.Sample, deviceID, source string) (*data.Record, error) {
	if !s.IsValid {
		if g.Metrics != nil {
			g.Metrics.SampleRejected(source)
		}
		return nil, ErrInvalidSample
	}

	g.seq.Lock()
	defer g.seq.Unlock()

	g.mu.Lock()
	a := g.proc.ProcessReading(s)
	g.mu.Unlock()

	rec := data.NewRecord(deviceID, source, g.now(), s, a)
	g.Store.Add(rec)

	if err := g.Logger.Log(rec); err != nil {
		g.Log.WithError(err).Warn("data logger rejected record")
		if g.Metrics != nil {
			reason := "flush"
			if errors.Is(err, storage.ErrBufferFull) {
				reason = "buffer_full"
			}
			g.Metrics.DataLogError(reason)
		}
	}
	if g.Metrics != nil {
		g.Metrics.ObserveRecord(rec)
	}
	if g.Detector != nil && g.Alerter != nil {
		g.Alerter.ProcessAlerts(ctx, g.Detector.Check(rec))
	}
	if g.Hub != nil {
		g.Hub.BroadcastRecord(rec)
	}

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := g.Publisher.PublishRecord(pctx, rec); err != nil {
		g.Log.WithError(err).Warn("publish record failed")
		if g.Metrics != nil {
			g.Metrics.PublishFailed()
		}
	}
	return rec, nil
}

// pinRate overrides the sample rate with the one the gateway polls at.
func (g *Gateway) pinRate(cfg signal.Config) signal.Config {
	cfg.SampleRateHz = g.sampleRateHz
	return cfg
}

// Reconfigure installs a new signal configuration. Filter and detector
// state starts over. SampleRateHz is always taken from the polling
// interval.
func (g *Gateway) Reconfigure(cfg signal.Config) {
	cfg = g.pinRate(cfg)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.proc.Configure(cfg)
	g.Log.WithField("config", fmt.Sprintf("%+v", g.proc.Config())).Info("signal processor reconfigured")
}

// ApplyConfig takes over the parts of a reloaded configuration that can
// change at runtime: the signal pipeline and the alert rules. A changed
// sensor.sample_rate_ms only takes effect after a restart.
func (g *Gateway) ApplyConfig(cfg *config.Config) {
	sc := g.pinRate(cfg.ToSignalConfig())
	g.mu.Lock()
	if sc.Clamped() != g.proc.Config() {
		g.proc.Configure(sc)
		g.Log.Info("signal processor reconfigured from file")
	}
	g.mu.Unlock()
	if g.Detector != nil {
		g.Detector.SetConfig(cfg.Anomaly)
	}
}

// Reset clears the processor's filter and detector state. Configuration,
// filter toggles and stored history are kept.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.proc.Reset()
	g.Log.Info("signal processor reset")
}

func (g *Gateway) SetFilterEnabled(kind signal.FilterKind, enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.proc.SetFilterEnabled(kind, enabled)
	g.Log.WithFields(logrus.Fields{"filter": kind.String(), "enabled": enabled}).Info("filter toggled")
}

// Calibrate applies a two-point calibration to the polled sensor and
// returns the resulting sensor settings.
func (g *Gateway) Calibrate(darkVolts, lightVolts float64) (config.SensorConfig, error) {
	if g.Sensor == nil {
		return config.SensorConfig{}, ErrNoSensor
	}
	c, ok := g.Sensor.(Calibrator)
	if !ok {
		return config.SensorConfig{}, ErrNotCalibratable
	}
	if err := c.Calibrate(darkVolts, lightVolts); err != nil {
		return config.SensorConfig{}, err
	}
	sc := c.Config()
	g.Log.WithFields(logrus.Fields{
		"dark_offset":     sc.DarkOffset,
		"sensitivity":     sc.Sensitivity,
		"noise_threshold": sc.NoiseThreshold,
	}).Info("sensor calibrated")
	return sc, nil
}

// Latest returns the newest record or nil.
func (g *Gateway) Latest() *data.Record { return g.Store.Latest() }

// History returns up to n records, oldest first.
func (g *Gateway) History(n int) []*data.Record { return g.Store.GetRecent(n) }

// Status is a snapshot of the processor.
type Status struct {
	DeviceID   string          `json:"device_id"`
	State      string          `json:"state"`
	Config     signal.Config   `json:"config"`
	Filters    map[string]bool `json:"filters"`
	Quality    uint8           `json:"quality"`
	NoiseLevel float64         `json:"noise_level"`
	Trend      signal.Trend    `json:"trend"`
	Logger     storage.Stats   `json:"logger"`
}

func (g *Gateway) Status() Status {
	g.mu.Lock()
	st := Status{
		DeviceID:   g.deviceID,
		State:      g.proc.State().String(),
		Config:     g.proc.Config(),
		Filters:    make(map[string]bool, len(signal.FilterKinds)),
		Quality:    g.proc.Quality(),
		NoiseLevel: g.proc.NoiseLevel(),
		Trend:      g.proc.LastTrend(),
	}
	for _, kind := range signal.FilterKinds {
		st.Filters[kind.String()] = g.proc.FilterEnabled(kind)
	}
	g.mu.Unlock()

	st.Logger = g.Logger.Stats()
	return st
}

// Close flushes the data logger and closes the publisher.
func (g *Gateway) Close() error {
	return errors.Join(g.Logger.Close(), g.Publisher.Close())
}
