// internal/config/presets.go
package config

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"
)

// presets override defaults; values in the config file still win.
var presets = map[string]map[string]any{
	"balanced": {},
	"low_power": {
		"sensor.sample_rate_ms":         5000,
		"sensor.oversampling":           1,
		"storage.buffer_size":           50,
		"storage.flush_threshold":       25,
		"signal.moving_average_window":  3,
		"signal.enable_median":          false,
		"signal.enable_adaptive_filter": false,
	},
	"high_accuracy": {
		"sensor.sample_rate_ms":           100,
		"sensor.oversampling":             16,
		"storage.buffer_size":             500,
		"storage.flush_threshold":         100,
		"storage.min_quality":             80,
		"signal.moving_average_window":    10,
		"signal.enable_median":            true,
		"signal.median_window":            5,
		"signal.enable_outlier_removal":   true,
		"signal.outlier_threshold_stddev": 1.5,
		"signal.enable_adaptive_filter":   true,
	},
	"development": {
		"sensor.sample_rate_ms":         500,
		"log.level":                     "debug",
		"storage.min_quality":           0,
		"signal.enable_trend_detection": true,
		"signal.enable_peak_detection":  true,
		"anomaly.alert_on_peak":         true,
	},
}

// Presets lists the known preset names in sorted order.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns the default configuration with the named preset applied.
func Preset(name string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := applyPreset(v, name); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode preset %q: %w", name, err)
	}
	cfg.Preset = name
	return cfg, nil
}

func applyPreset(v *viper.Viper, name string) error {
	overrides, ok := presets[name]
	if !ok {
		return fmt.Errorf("%w: unknown preset %q", ErrInvalid, name)
	}
	for key, value := range overrides {
		v.SetDefault(key, value)
	}
	return nil
}
