// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/elcruzo/light-sensor-circuit/internal/signal"
)

// ErrInvalid marks configuration that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Validation collects blocking errors and advisory warnings.
type Validation struct {
	Errors   []string
	Warnings []string
}

// OK reports whether no blocking error was found.
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// Err returns nil when OK, otherwise an ErrInvalid wrapping every message.
func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(v.Errors, "; "))
}

func (v *Validation) errorf(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *Validation) warnf(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks every section. Window sizes above signal.MaxWindow are
// only warned about because the processor clamps them.
func (c *Config) Validate() Validation {
	var v Validation

	if c.Device.ID == "" {
		v.errorf("device.id is empty")
	}
	for name, port := range map[string]int{"server.data_port": c.Server.DataPort, "server.ui_port": c.Server.UIPort} {
		if port <= 0 || port > 65535 {
			v.errorf("%s %d out of range", name, port)
		}
	}
	if c.Server.DataPort == c.Server.UIPort {
		v.errorf("server.data_port and server.ui_port are both %d", c.Server.DataPort)
	}

	s := c.Sensor
	switch s.Source {
	case "random", "daylight":
	default:
		v.errorf("sensor.source %q: want random or daylight", s.Source)
	}
	if s.ADCResolution <= 0 || s.ADCResolution > 24 {
		v.errorf("sensor.adc_resolution %d out of range", s.ADCResolution)
	}
	if s.ReferenceVoltage <= 0 {
		v.errorf("sensor.reference_voltage must be positive")
	}
	if s.Sensitivity <= 0 {
		v.errorf("sensor.sensitivity must be positive")
	}
	if s.SampleRateMs == 0 {
		v.errorf("sensor.sample_rate_ms must be positive")
	}
	if s.Oversampling <= 0 {
		v.errorf("sensor.oversampling must be positive")
	}
	if s.NoiseThreshold < 0 {
		v.errorf("sensor.noise_threshold must not be negative")
	}

	g := c.Signal
	if g.MovingAverageWindow <= 1 {
		v.warnf("moving average window is disabled")
	}
	if g.LowPassCutoffHz <= 0 {
		v.warnf("low-pass filter is disabled")
	}
	if g.EnableOutlierRemoval && g.OutlierThresholdStdDev <= 0 {
		v.warnf("outlier detection threshold is too low")
	}
	for name, w := range map[string]int{
		"signal.moving_average_window": g.MovingAverageWindow,
		"signal.median_window":         g.MedianWindow,
		"signal.trend_window":          g.TrendWindow,
	} {
		if w < 0 {
			v.errorf("%s must not be negative", name)
		} else if w > signal.MaxWindow {
			v.warnf("%s %d will be clamped to %d", name, w, signal.MaxWindow)
		}
	}
	if g.EnableTrendDetection && g.TrendWindow < 3 {
		v.warnf("signal.trend_window %d never yields a trend", g.TrendWindow)
	}
	if g.EnableAdaptiveFilter && (g.AdaptationRate <= 0 || g.AdaptationRate > 1) {
		v.errorf("signal.adaptation_rate must be in (0, 1]")
	}
	if sampleHz := signal.SampleRateFromInterval(s.SampleRateMs); g.LowPassCutoffHz > 0 && sampleHz > 0 && g.LowPassCutoffHz >= sampleHz/2 {
		v.warnf("low-pass cutoff %.3g Hz is at or above Nyquist for %.3g Hz sampling", g.LowPassCutoffHz, sampleHz)
	}

	st := c.Storage
	if st.HistorySize <= 0 {
		v.errorf("storage.history_size must be positive")
	}
	if st.BufferSize <= 0 {
		v.errorf("storage.buffer_size must be positive")
	}
	if st.FlushThreshold <= 0 || st.FlushThreshold > st.BufferSize {
		v.errorf("storage.flush_threshold must be in [1, buffer_size]")
	}
	if st.MinLux > st.MaxLux {
		v.errorf("storage.min_lux is above storage.max_lux")
	}
	if st.MinQuality > 100 {
		v.errorf("storage.min_quality above 100")
	}

	for metric, r := range c.Anomaly.Rules {
		if r.Min > r.Max {
			v.errorf("anomaly rule %q: min above max", metric)
		}
	}

	p := c.Publisher
	switch p.Kind {
	case "", "none":
	case "mqtt":
		if p.MQTT.Broker == "" || p.MQTT.Topic == "" {
			v.errorf("publisher.mqtt needs broker and topic")
		}
		if p.MQTT.QoS > 2 {
			v.errorf("publisher.mqtt.qos %d out of range", p.MQTT.QoS)
		}
	case "kafka":
		if len(p.Kafka.Brokers) == 0 || p.Kafka.Topic == "" {
			v.errorf("publisher.kafka needs brokers and topic")
		}
	default:
		v.errorf("publisher.kind %q: want none, mqtt or kafka", p.Kind)
	}

	if len(c.Auth.Users) > 0 && c.Auth.JWTSecret == "" {
		v.errorf("auth.jwt_secret is required when users are configured")
	}
	if len(c.Auth.APIKeys) == 0 {
		v.warnf("no auth.api_keys configured, sample ingestion is closed")
	}

	return v
}
