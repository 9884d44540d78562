// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/elcruzo/light-sensor-circuit/internal/auth"
	"github.com/elcruzo/light-sensor-circuit/internal/logging"
	"github.com/elcruzo/light-sensor-circuit/internal/signal"
)

// EnvPrefix prefixes environment overrides, e.g. LUXGW_SERVER_DATA_PORT.
const EnvPrefix = "LUXGW"

type Config struct {
	Preset string `mapstructure:"preset"`

	Device struct {
		ID              string `mapstructure:"id"`
		FirmwareVersion string `mapstructure:"firmware_version"`
	} `mapstructure:"device"`

	Server struct {
		DataPort int `mapstructure:"data_port"`
		UIPort   int `mapstructure:"ui_port"`
	} `mapstructure:"server"`

	Sensor    SensorConfig    `mapstructure:"sensor"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Anomaly   AnomalyConfig   `mapstructure:"anomaly"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Log       logging.Config  `mapstructure:"log"`
	Auth      auth.Config     `mapstructure:"auth"`
}

// SensorConfig describes the ADC front end and the sampling interval.
type SensorConfig struct {
	Source           string  `mapstructure:"source"` // "random" or "daylight"
	Seed             int64   `mapstructure:"seed"`
	ADCResolution    int     `mapstructure:"adc_resolution"` // bits
	ReferenceVoltage float64 `mapstructure:"reference_voltage"`
	DarkOffset       float64 `mapstructure:"dark_offset"`
	Sensitivity      float64 `mapstructure:"sensitivity"` // volts per lux
	SampleRateMs     uint32  `mapstructure:"sample_rate_ms"`
	Oversampling     int     `mapstructure:"oversampling"`
	// NoiseThreshold is the smallest voltage change treated as signal.
	// Calibrate sets it to 1% of the calibrated range.
	NoiseThreshold float64 `mapstructure:"noise_threshold"`
}

// SignalConfig is the file form of signal.Config.
type SignalConfig struct {
	MovingAverageWindow    int     `mapstructure:"moving_average_window"`
	EnableMedian           bool    `mapstructure:"enable_median"`
	MedianWindow           int     `mapstructure:"median_window"`
	LowPassCutoffHz        float64 `mapstructure:"low_pass_cutoff_hz"`
	EnableOutlierRemoval   bool    `mapstructure:"enable_outlier_removal"`
	OutlierThresholdStdDev float64 `mapstructure:"outlier_threshold_stddev"`
	EnablePeakDetection    bool    `mapstructure:"enable_peak_detection"`
	PeakThresholdFraction  float64 `mapstructure:"peak_threshold_fraction"`
	EnableTrendDetection   bool    `mapstructure:"enable_trend_detection"`
	TrendWindow            int     `mapstructure:"trend_window"`
	EnableAdaptiveFilter   bool    `mapstructure:"enable_adaptive_filter"`
	AdaptationRate         float64 `mapstructure:"adaptation_rate"`
	NoiseFloor             float64 `mapstructure:"noise_floor"`
}

// StorageConfig covers the in-memory history and the data logger.
type StorageConfig struct {
	HistorySize    int     `mapstructure:"history_size"`
	LogFile        string  `mapstructure:"log_file"` // empty keeps records in memory only
	BufferSize     int     `mapstructure:"buffer_size"`
	FlushThreshold int     `mapstructure:"flush_threshold"`
	MinLux         float64 `mapstructure:"min_lux"`
	MaxLux         float64 `mapstructure:"max_lux"`
	MinQuality     uint8   `mapstructure:"min_quality"`
	MaxFileSizeMB  int     `mapstructure:"max_file_size_mb"`
	MaxBackups     int     `mapstructure:"max_backups"`
	MaxAgeDays     int     `mapstructure:"max_age_days"`
	Compress       bool    `mapstructure:"compress"`
}

// AnomalyConfig selects which analyses raise alerts.
type AnomalyConfig struct {
	AlertOnOutlier bool            `mapstructure:"alert_on_outlier"`
	AlertOnPeak    bool            `mapstructure:"alert_on_peak"`
	MinQuality     uint8           `mapstructure:"min_quality"` // 0 disables
	Rules          map[string]Rule `mapstructure:"rules"`
}

// Rule bounds one analysis metric (raw, filtered, noise, snr, slope).
type Rule struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// PublisherConfig selects where records are published.
type PublisherConfig struct {
	Kind string `mapstructure:"kind"` // none, mqtt or kafka
	MQTT struct {
		Broker   string `mapstructure:"broker"`
		ClientID string `mapstructure:"client_id"`
		Topic    string `mapstructure:"topic"`
		QoS      byte   `mapstructure:"qos"`
	} `mapstructure:"mqtt"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
}

// ToSignalConfig converts the file form into the processor configuration,
// taking the low-pass sample rate from the sensor's sampling interval.
func (c *Config) ToSignalConfig() signal.Config {
	s := c.Signal
	return signal.Config{
		MovingAverageWindow:    s.MovingAverageWindow,
		EnableMedian:           s.EnableMedian,
		MedianWindow:           s.MedianWindow,
		LowPassCutoffHz:        s.LowPassCutoffHz,
		SampleRateHz:           signal.SampleRateFromInterval(c.Sensor.SampleRateMs),
		EnableOutlierRemoval:   s.EnableOutlierRemoval,
		OutlierThresholdStdDev: s.OutlierThresholdStdDev,
		EnablePeakDetection:    s.EnablePeakDetection,
		PeakThresholdFraction:  s.PeakThresholdFraction,
		EnableTrendDetection:   s.EnableTrendDetection,
		TrendWindow:            s.TrendWindow,
		EnableAdaptiveFilter:   s.EnableAdaptiveFilter,
		AdaptationRate:         s.AdaptationRate,
		NoiseFloor:             s.NoiseFloor,
	}
}

// Loader reads the configuration from a directory holding config.yaml,
// environment variables and defaults, in that priority order.
type Loader struct {
	v   *viper.Viper
	log *logrus.Entry
}

// NewLoader prepares a loader looking for config.yaml under path.
func NewLoader(path string, log *logrus.Entry) *Loader {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return &Loader{v: v, log: log}
}

// Load reads the file (a missing file is not an error), layers the named
// preset under it and decodes the result.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		l.log.WithError(err).Warn("no config file found, using defaults")
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	if name := l.v.GetString("preset"); name != "" {
		if err := applyPreset(l.v, name); err != nil {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Watch calls onChange with the freshly decoded configuration whenever the
// config file changes. Decoding failures are logged and skipped.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			l.log.WithError(err).WithField("file", e.Name).Error("config reload failed")
			return
		}
		l.log.WithFields(logrus.Fields{"file": e.Name, "op": e.Op.String()}).Info("config reloaded")
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// ConfigFile returns the file the loader read, or "" when none was found.
func (l *Loader) ConfigFile() string { return l.v.ConfigFileUsed() }

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("preset", "")

	v.SetDefault("device.id", "light_sensor_001")
	v.SetDefault("device.firmware_version", "1.0.0")

	v.SetDefault("server.data_port", 8080)
	v.SetDefault("server.ui_port", 8081)

	v.SetDefault("sensor.source", "daylight")
	v.SetDefault("sensor.seed", 1)
	v.SetDefault("sensor.adc_resolution", 10)
	v.SetDefault("sensor.reference_voltage", 3.3)
	v.SetDefault("sensor.dark_offset", 0.0)
	v.SetDefault("sensor.sensitivity", 0.001)
	v.SetDefault("sensor.sample_rate_ms", 1000)
	v.SetDefault("sensor.oversampling", 4)
	v.SetDefault("sensor.noise_threshold", 0.01)

	d := signal.DefaultConfig()
	v.SetDefault("signal.moving_average_window", d.MovingAverageWindow)
	v.SetDefault("signal.enable_median", d.EnableMedian)
	v.SetDefault("signal.median_window", d.MedianWindow)
	v.SetDefault("signal.low_pass_cutoff_hz", d.LowPassCutoffHz)
	v.SetDefault("signal.enable_outlier_removal", d.EnableOutlierRemoval)
	v.SetDefault("signal.outlier_threshold_stddev", d.OutlierThresholdStdDev)
	v.SetDefault("signal.enable_peak_detection", d.EnablePeakDetection)
	v.SetDefault("signal.peak_threshold_fraction", d.PeakThresholdFraction)
	v.SetDefault("signal.enable_trend_detection", d.EnableTrendDetection)
	v.SetDefault("signal.trend_window", d.TrendWindow)
	v.SetDefault("signal.enable_adaptive_filter", d.EnableAdaptiveFilter)
	v.SetDefault("signal.adaptation_rate", d.AdaptationRate)
	v.SetDefault("signal.noise_floor", d.NoiseFloor)

	v.SetDefault("storage.history_size", 100)
	v.SetDefault("storage.log_file", "")
	v.SetDefault("storage.buffer_size", 100)
	v.SetDefault("storage.flush_threshold", 50)
	v.SetDefault("storage.min_lux", 0.0)
	v.SetDefault("storage.max_lux", 100000.0)
	v.SetDefault("storage.min_quality", 50)
	v.SetDefault("storage.max_file_size_mb", 1)
	v.SetDefault("storage.max_backups", 5)
	v.SetDefault("storage.max_age_days", 30)
	v.SetDefault("storage.compress", false)

	v.SetDefault("anomaly.alert_on_outlier", true)
	v.SetDefault("anomaly.alert_on_peak", false)
	v.SetDefault("anomaly.min_quality", 0)

	v.SetDefault("publisher.kind", "none")
	v.SetDefault("publisher.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("publisher.mqtt.client_id", "light-sensor-gateway")
	v.SetDefault("publisher.mqtt.topic", "sensors/light/analysis")
	v.SetDefault("publisher.mqtt.qos", 0)
	v.SetDefault("publisher.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("publisher.kafka.topic", "light.analysis")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiration", 60)
	v.SetDefault("auth.api_keys", []string{})
}
