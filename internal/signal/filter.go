// internal/signal/filter.go
package signal

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// FilterKind names one stage of the filter chain. The declared order is
// the processing order.
type FilterKind int

const (
	MovingAverage FilterKind = iota
	Median
	LowPass
	Adaptive

	filterKindCount
)

// FilterKinds lists every stage in processing order.
var FilterKinds = [filterKindCount]FilterKind{MovingAverage, Median, LowPass, Adaptive}

var filterKindNames = [filterKindCount]string{"moving_average", "median", "low_pass", "adaptive"}

func (k FilterKind) String() string {
	if k < 0 || k >= filterKindCount {
		return fmt.Sprintf("FilterKind(%d)", int(k))
	}
	return filterKindNames[k]
}

// ParseFilterKind maps a name such as "low_pass" or "low-pass" to its kind.
func ParseFilterKind(name string) (FilterKind, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for k, n := range filterKindNames {
		if n == normalized {
			return FilterKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown filter kind %q", name)
}

const (
	defaultSampleRateHz = 1.0

	adaptiveInitialCoefficient = 0.5
	adaptiveMinCoefficient     = 0.1
	adaptiveMaxCoefficient     = 0.9
	adaptiveStepScale          = 0.1
)

// movingAverageFilter keeps a running sum over the last window values.
// During warm-up it divides by the number of values seen so far.
type movingAverageFilter struct {
	window RingBuffer
	sum    float64
}

func (f *movingAverageFilter) configure(window int) {
	f.window.SetCapacity(max(window, 1))
	f.sum = 0
}

func (f *movingAverageFilter) process(input float64) float64 {
	if f.window.Full() {
		oldest, _ := f.window.Oldest()
		f.sum -= oldest
	}
	f.window.Push(input)
	f.sum += input
	return f.sum / float64(f.window.Len())
}

func (f *movingAverageFilter) reset() {
	f.window.Reset()
	f.sum = 0
}

// medianFilter returns the middle of the sorted window once three values
// have been seen.
type medianFilter struct {
	window  RingBuffer
	scratch [MaxWindow]float64
}

func (f *medianFilter) configure(window int) {
	f.window.SetCapacity(max(window, 1))
}

func (f *medianFilter) process(input float64) float64 {
	f.window.Push(input)
	n := f.window.Len()
	if n < 3 {
		return input
	}
	sorted := f.scratch[:n]
	f.window.CopyTo(sorted)
	slices.Sort(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

func (f *medianFilter) reset() {
	f.window.Reset()
}

// lowPassFilter is a single-pole IIR stage.
type lowPassFilter struct {
	alpha float64
	prev  float64
}

func (f *lowPassFilter) configure(cutoffHz, sampleRateHz float64) {
	if cutoffHz <= 0 {
		f.alpha = 1 // passthrough
		f.prev = 0
		return
	}
	if sampleRateHz <= 0 {
		sampleRateHz = defaultSampleRateHz
	}
	rc := 1 / (2 * math.Pi * cutoffHz)
	dt := 1 / sampleRateHz
	f.alpha = dt / (rc + dt)
	f.prev = 0
}

func (f *lowPassFilter) process(input float64) float64 {
	f.prev = f.alpha*input + (1-f.alpha)*f.prev
	return f.prev
}

func (f *lowPassFilter) reset() {
	f.prev = 0
}

// adaptiveFilter is an exponential smoother whose coefficient follows the
// tracked error variance: above the noise floor it becomes more responsive,
// below it it smooths harder.
type adaptiveFilter struct {
	rate        float64
	noiseFloor  float64
	coefficient float64
	prev        float64
	errVariance float64
}

func (f *adaptiveFilter) configure(rate, noiseFloor float64) {
	f.rate = rate
	f.noiseFloor = noiseFloor
	f.reset()
}

func (f *adaptiveFilter) process(input float64) float64 {
	e := input - f.prev
	f.errVariance = (1-f.rate)*f.errVariance + f.rate*e*e

	step := f.rate * adaptiveStepScale
	if f.errVariance > f.noiseFloor {
		f.coefficient = min(adaptiveMaxCoefficient, f.coefficient+step)
	} else {
		f.coefficient = max(adaptiveMinCoefficient, f.coefficient-step)
	}

	f.prev = f.coefficient*input + (1-f.coefficient)*f.prev
	return f.prev
}

func (f *adaptiveFilter) reset() {
	f.coefficient = adaptiveInitialCoefficient
	f.prev = 0
	f.errVariance = 0
}

// Chain runs the enabled filters in declared order. Disabled stages are
// skipped without changing the order of the others.
type Chain struct {
	movingAverage movingAverageFilter
	median        medianFilter
	lowPass       lowPassFilter
	adaptive      adaptiveFilter
	enabled       [filterKindCount]bool
}

// NewChain returns a chain configured from cfg.
func NewChain(cfg Config) *Chain {
	c := &Chain{}
	c.Configure(cfg)
	return c
}

// Configure replaces every stage's parameters, clears all state and
// derives the enable flags from cfg.
func (c *Chain) Configure(cfg Config) {
	cfg = cfg.Clamped()

	c.movingAverage.configure(cfg.MovingAverageWindow)
	c.median.configure(cfg.MedianWindow)
	c.lowPass.configure(cfg.LowPassCutoffHz, cfg.SampleRateHz)
	c.adaptive.configure(cfg.AdaptationRate, cfg.NoiseFloor)

	c.enabled[MovingAverage] = cfg.MovingAverageWindow > 1
	c.enabled[Median] = cfg.EnableMedian && cfg.MedianWindow > 1
	c.enabled[LowPass] = cfg.LowPassCutoffHz > 0
	c.enabled[Adaptive] = cfg.EnableAdaptiveFilter
}

// Process feeds input through every enabled stage.
func (c *Chain) Process(input float64) float64 {
	out := input
	for _, k := range FilterKinds {
		if !c.enabled[k] {
			continue
		}
		switch k {
		case MovingAverage:
			out = c.movingAverage.process(out)
		case Median:
			out = c.median.process(out)
		case LowPass:
			out = c.lowPass.process(out)
		case Adaptive:
			out = c.adaptive.process(out)
		}
	}
	return out
}

// Reset clears the state of every stage, enabled or not.
func (c *Chain) Reset() {
	c.movingAverage.reset()
	c.median.reset()
	c.lowPass.reset()
	c.adaptive.reset()
}

// SetEnabled turns one stage on or off. Unknown kinds are ignored.
func (c *Chain) SetEnabled(kind FilterKind, enabled bool) {
	if kind < 0 || kind >= filterKindCount {
		return
	}
	c.enabled[kind] = enabled
}

// Enabled reports whether kind currently runs.
func (c *Chain) Enabled(kind FilterKind) bool {
	if kind < 0 || kind >= filterKindCount {
		return false
	}
	return c.enabled[kind]
}
