// internal/signal/detectors.go
package signal

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// minHistory is the number of values a detector needs before it reports
// anything but its default.
const minHistory = 3

// OutlierDetector flags values whose z-score against a recent window
// exceeds a threshold.
type OutlierDetector struct {
	threshold float64
}

// NewOutlierDetector returns a detector using threshold standard deviations.
func NewOutlierDetector(threshold float64) *OutlierDetector {
	return &OutlierDetector{threshold: threshold}
}

// SetThreshold replaces the z-score threshold.
func (d *OutlierDetector) SetThreshold(threshold float64) { d.threshold = threshold }

// Threshold returns the z-score threshold.
func (d *OutlierDetector) Threshold() float64 { return d.threshold }

// IsOutlier uses the sample mean and the n-1 standard deviation of window.
// A window without variation has no outliers.
func (d *OutlierDetector) IsOutlier(value float64, window []float64) bool {
	if len(window) < minHistory {
		return false
	}
	mean, stddev := stat.MeanStdDev(window, nil)
	if nearZero(stddev, mean) {
		return false
	}
	return math.Abs(value-mean)/stddev > d.threshold
}

// PeakDetector reports local maxima whose drop is large relative to the
// window mean.
type PeakDetector struct {
	threshold float64
	previous  float64
	rising    bool
}

// NewPeakDetector returns a detector using threshold as the fraction of the
// window mean a change must exceed.
func NewPeakDetector(threshold float64) *PeakDetector {
	return &PeakDetector{threshold: threshold}
}

// SetThreshold replaces the amplitude fraction.
func (d *PeakDetector) SetThreshold(threshold float64) { d.threshold = threshold }

// Reset forgets the edge state.
func (d *PeakDetector) Reset() {
	d.previous = 0
	d.rising = false
}

// IsPeak reports whether the signal was rising and value ends the rise.
// Edge state is only advanced once the window holds enough history.
func (d *PeakDetector) IsPeak(value float64, window []float64) bool {
	if len(window) < minHistory {
		return false
	}
	risingNow := value > d.previous
	peak := d.rising && !risingNow
	if peak {
		change := math.Abs(value - d.previous)
		peak = change > d.threshold*stat.Mean(window, nil)
	}
	d.rising = risingNow
	d.previous = value
	return peak
}

// Trend is the result of one TrendAnalyzer step.
type Trend struct {
	Slope        float64 `json:"slope"`
	Confidence   float64 `json:"confidence"` // |pearson r|, 0..1
	IsIncreasing bool    `json:"is_increasing"`
	IsDecreasing bool    `json:"is_decreasing"`
}

// TrendConfidenceGate is the confidence a trend needs before it is called
// increasing or decreasing.
const TrendConfidenceGate = 0.5

// TrendAnalyzer fits a least-squares line through its own sliding window of
// values, indexed 0..n-1 in insertion order.
type TrendAnalyzer struct {
	window RingBuffer
	xs     [MaxWindow]float64
	ys     [MaxWindow]float64
}

// NewTrendAnalyzer returns an analyzer over the last size values.
func NewTrendAnalyzer(size int) *TrendAnalyzer {
	a := &TrendAnalyzer{}
	a.SetWindow(size)
	return a
}

// SetWindow changes the window size (clamped to MaxWindow) and clears it.
func (a *TrendAnalyzer) SetWindow(size int) {
	for i := range a.xs {
		a.xs[i] = float64(i)
	}
	a.window.SetCapacity(size)
}

// Window returns the configured window size.
func (a *TrendAnalyzer) Window() int { return a.window.Cap() }

// Reset clears the window.
func (a *TrendAnalyzer) Reset() { a.window.Reset() }

// Analyze adds value to the window and returns the current trend.
func (a *TrendAnalyzer) Analyze(value float64) Trend {
	a.window.Push(value)
	n := a.window.Len()
	if n < minHistory {
		return Trend{}
	}
	xs, ys := a.xs[:n], a.ys[:n]
	a.window.CopyTo(ys)

	_, slope := stat.LinearRegression(xs, ys, nil, false)
	r := stat.Correlation(xs, ys, nil)
	if !isFinite(slope) {
		slope = 0
	}
	if !isFinite(r) {
		r = 0
	}

	t := Trend{Slope: slope, Confidence: math.Abs(r)}
	t.IsIncreasing = t.Slope > 0 && t.Confidence > TrendConfidenceGate
	t.IsDecreasing = t.Slope < 0 && t.Confidence > TrendConfidenceGate
	return t
}

func nearZero(stddev, scale float64) bool {
	return stddev <= 1e-9*math.Max(1, math.Abs(scale))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
