// cmd/gateway/main.go
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/logging"
)

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:           "gateway",
		Short:         "Light sensor signal conditioning gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "directory holding config.yaml")

	rootCmd.AddCommand(
		newRunCmd(&configDir),
		newReplayCmd(&configDir),
		newPresetsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the configuration, reports validation problems and builds
// the logger it asks for.
func setup(configDir string) (*config.Config, *config.Loader, *logrus.Logger, io.Closer, error) {
	bootstrap := logrus.New()
	loader := config.NewLoader(configDir, logging.Component(bootstrap, "config"))
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	log := logging.Component(logger, "config")
	if file := loader.ConfigFile(); file != "" {
		log.WithField("file", file).Info("configuration loaded")
	}

	v := cfg.Validate()
	for _, w := range v.Warnings {
		log.Warn(w)
	}
	if err := v.Err(); err != nil {
		closer.Close()
		return nil, nil, nil, nil, err
	}
	return cfg, loader, logger, closer, nil
}
