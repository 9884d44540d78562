// internal/signal/types.go
package signal

// Sample is one normalized reading handed over by a sensor.
type Sample struct {
	Timestamp uint32  `json:"timestamp_ms"`
	RawValue  float64 `json:"raw_value"` // engineering units, e.g. lux
	IsValid   bool    `json:"is_valid"`
	Quality   uint8   `json:"quality"` // sensor-side quality, 0-100
}

// Analysis is the pipeline output for one Sample.
type Analysis struct {
	FilteredValue      float64 `json:"filtered_value"`
	NoiseLevel         float64 `json:"noise_level"`
	SignalToNoiseRatio float64 `json:"snr"`
	IsOutlier          bool    `json:"is_outlier"`
	IsPeak             bool    `json:"is_peak"`
	TrendSlope         float64 `json:"trend_slope"`
	TrendConfidence    float64 `json:"trend_confidence"` // 0..1
	QualityScore       uint8   `json:"quality_score"`    // 0..100
}

// Config selects and parameterizes the pipeline stages.
type Config struct {
	MovingAverageWindow int `json:"moving_average_window"` // 0 or 1 disables

	EnableMedian bool `json:"enable_median"`
	MedianWindow int  `json:"median_window"`

	LowPassCutoffHz float64 `json:"low_pass_cutoff_hz"` // <= 0 disables
	// SampleRateHz is the rate the upstream sensor actually delivers
	// samples at. The low-pass coefficient depends on it.
	SampleRateHz float64 `json:"sample_rate_hz"`

	EnableOutlierRemoval   bool    `json:"enable_outlier_removal"`
	OutlierThresholdStdDev float64 `json:"outlier_threshold_stddev"`

	EnablePeakDetection   bool    `json:"enable_peak_detection"`
	PeakThresholdFraction float64 `json:"peak_threshold_fraction"`

	EnableTrendDetection bool `json:"enable_trend_detection"`
	TrendWindow          int  `json:"trend_window"`

	EnableAdaptiveFilter bool    `json:"enable_adaptive_filter"`
	AdaptationRate       float64 `json:"adaptation_rate"`
	NoiseFloor           float64 `json:"noise_floor"`
}

// DefaultConfig returns the balanced configuration used when nothing else
// is supplied.
func DefaultConfig() Config {
	return Config{
		MovingAverageWindow:    5,
		EnableMedian:           true,
		MedianWindow:           3,
		LowPassCutoffHz:        0.5,
		SampleRateHz:           1,
		EnableOutlierRemoval:   true,
		OutlierThresholdStdDev: 2.0,
		EnablePeakDetection:    false,
		PeakThresholdFraction:  0.1,
		EnableTrendDetection:   true,
		TrendWindow:            10,
		EnableAdaptiveFilter:   true,
		AdaptationRate:         0.1,
		NoiseFloor:             0.001,
	}
}

// Clamped returns a copy with every window size inside [0, MaxWindow].
func (c Config) Clamped() Config {
	c.MovingAverageWindow = clampWindow(c.MovingAverageWindow)
	c.MedianWindow = clampWindow(c.MedianWindow)
	c.TrendWindow = clampWindow(c.TrendWindow)
	return c
}

// SampleRateFromInterval converts a sampling interval in milliseconds to Hz.
// Non-positive intervals yield 0, which the low-pass stage treats as unset.
func SampleRateFromInterval(intervalMs uint32) float64 {
	if intervalMs == 0 {
		return 0
	}
	return 1000 / float64(intervalMs)
}
