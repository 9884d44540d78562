// internal/signal/processor.go
package signal

import (
	"io"
	"math"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Processor.
type State int

const (
	// StateUninitialized means Configure has not been called yet. Readings
	// pass through unfiltered with every detector off.
	StateUninitialized State = iota
	// StateReady means a configuration is installed.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Processor owns the filter chain, the detectors and the quality scorer and
// turns one Sample into one Analysis per call.
//
// A Processor is not safe for concurrent use. Callers sharing one across
// goroutines must serialize every method call themselves.
type Processor struct {
	cfg   Config
	state State

	chain   Chain
	outlier OutlierDetector
	peak    PeakDetector
	trend   TrendAnalyzer

	recent  RingBuffer
	scratch [MaxWindow]float64

	noise     float64
	quality   uint8
	lastTrend Trend

	log *logrus.Entry
}

// Option customizes a Processor at construction.
type Option func(*Processor)

// WithLogger injects the logger used for configuration events.
func WithLogger(log *logrus.Entry) Option {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// WithConfig installs cfg right away, leaving the processor Ready.
func WithConfig(cfg Config) Option {
	return func(p *Processor) {
		p.Configure(cfg)
	}
}

// NewProcessor builds a processor. Without WithConfig it starts
// Uninitialized. Options apply in order, so pass WithLogger before
// WithConfig to see the configuration logged.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{quality: initialQualityScore}
	p.recent.SetCapacity(MaxWindow)
	p.trend.SetWindow(0)
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Configure installs cfg (window sizes clamped to MaxWindow), rebuilds the
// filter stages and resets every filter and detector.
func (p *Processor) Configure(cfg Config) {
	cfg = cfg.Clamped()
	p.cfg = cfg

	p.outlier.SetThreshold(cfg.OutlierThresholdStdDev)
	p.peak.SetThreshold(cfg.PeakThresholdFraction)
	p.trend.SetWindow(cfg.TrendWindow)
	p.chain.Configure(cfg)
	p.recent.SetCapacity(MaxWindow)
	p.Reset()
	p.state = StateReady

	if cfg.LowPassCutoffHz > 0 && cfg.SampleRateHz <= 0 {
		p.logger().WithField("cutoff_hz", cfg.LowPassCutoffHz).
			Warn("low-pass enabled without a sample rate, assuming 1 Hz")
	}
	p.logger().WithFields(logrus.Fields{
		"moving_average": p.chain.Enabled(MovingAverage),
		"median":         p.chain.Enabled(Median),
		"low_pass":       p.chain.Enabled(LowPass),
		"adaptive":       p.chain.Enabled(Adaptive),
		"outliers":       cfg.EnableOutlierRemoval,
		"peaks":          cfg.EnablePeakDetection,
		"trend_window":   cfg.TrendWindow,
	}).Debug("signal processor configured")
}

// Reset clears all filter, detector and noise state and the recent-value
// window. The configuration and the filter enable flags are kept.
func (p *Processor) Reset() {
	p.chain.Reset()
	p.peak.Reset()
	p.trend.Reset()
	p.recent.Reset()
	p.noise = 0
	p.quality = initialQualityScore
	p.lastTrend = Trend{}
	p.logger().Debug("signal processor reset")
}

// logger falls back to a discarding entry so a zero Processor is usable.
func (p *Processor) logger() *logrus.Entry {
	if p.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		p.log = logrus.NewEntry(discard)
	}
	return p.log
}

// ProcessReading runs one sample through the pipeline. Samples are not
// checked for validity; callers drop invalid ones before calling.
func (p *Processor) ProcessReading(s Sample) Analysis {
	raw := s.RawValue
	p.recent.Push(raw)

	var a Analysis
	a.FilteredValue = p.chain.Process(raw)

	p.noise = (1-noiseLearningRate)*p.noise + noiseLearningRate*math.Abs(raw-a.FilteredValue)
	a.NoiseLevel = p.noise
	if a.FilteredValue > 0 {
		a.SignalToNoiseRatio = a.FilteredValue / math.Max(p.noise, minNoiseForSNR)
	}

	window := p.scratch[:p.recent.CopyTo(p.scratch[:])]
	if p.cfg.EnableOutlierRemoval {
		a.IsOutlier = p.outlier.IsOutlier(raw, window)
	}
	if p.cfg.EnablePeakDetection {
		a.IsPeak = p.peak.IsPeak(raw, window)
	}
	if p.cfg.EnableTrendDetection {
		p.lastTrend = p.trend.Analyze(raw)
		a.TrendSlope = p.lastTrend.Slope
		a.TrendConfidence = p.lastTrend.Confidence
	} else {
		p.lastTrend = Trend{}
	}

	a.QualityScore = Score(a.SignalToNoiseRatio, a.IsOutlier, a.TrendConfidence)
	p.quality = a.QualityScore
	return a
}

// SetFilterEnabled turns one filter stage on or off without touching its
// state or the order of the chain.
func (p *Processor) SetFilterEnabled(kind FilterKind, enabled bool) {
	p.chain.SetEnabled(kind, enabled)
}

// FilterEnabled reports whether a filter stage currently runs.
func (p *Processor) FilterEnabled(kind FilterKind) bool { return p.chain.Enabled(kind) }

// Quality returns the score of the last processed reading, or 50 before
// the first one.
func (p *Processor) Quality() uint8 { return p.quality }

// NoiseLevel returns the running noise estimate.
func (p *Processor) NoiseLevel() float64 { return p.noise }

// LastTrend returns the full trend result of the last processed reading,
// including the gated direction flags the Analysis does not carry.
func (p *Processor) LastTrend() Trend { return p.lastTrend }

// Config returns the installed (clamped) configuration.
func (p *Processor) Config() Config { return p.cfg }

// State returns the lifecycle state.
func (p *Processor) State() State { return p.state }
