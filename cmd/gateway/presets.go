// cmd/gateway/presets.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elcruzo/light-sensor-circuit/internal/config"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "list configuration presets and what they warn about",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range config.Presets() {
				cfg, err := config.Preset(name)
				if err != nil {
					return err
				}
				s := cfg.Signal
				fmt.Fprintf(out, "%s: sample every %d ms, moving average %d, median %t, outlier %.1f sd\n",
					name, cfg.Sensor.SampleRateMs, s.MovingAverageWindow, s.EnableMedian, s.OutlierThresholdStdDev)
				v := cfg.Validate()
				for _, w := range v.Warnings {
					fmt.Fprintf(out, "  warning: %s\n", w)
				}
				for _, e := range v.Errors {
					fmt.Fprintf(out, "  error: %s\n", e)
				}
			}
			return nil
		},
	}
}
