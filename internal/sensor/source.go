// internal/sensor/source.go
package sensor

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/elcruzo/light-sensor-circuit/internal/config"
)

// Source yields normalized ADC conversions, nominally in [0, 1].
type Source interface {
	Next() float64
}

// RandomSource draws uniform conversions, like a floating input pin.
type RandomSource struct {
	rng *rand.Rand
}

func NewRandomSource(seed int64) *RandomSource {
	return &RandomSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomSource) Next() float64 { return s.rng.Float64() }

// DaylightSource follows a raised sine over Period conversions with
// gaussian noise on top.
type DaylightSource struct {
	rng    *rand.Rand
	Period int
	Peak   float64
	Noise  float64
	step   int
}

func NewDaylightSource(seed int64) *DaylightSource {
	return &DaylightSource{
		rng:    rand.New(rand.NewSource(seed)),
		Period: 3600,
		Peak:   0.8,
		Noise:  0.01,
	}
}

func (s *DaylightSource) Next() float64 {
	if s.Period <= 0 {
		s.Period = 1
	}
	phase := 2 * math.Pi * float64(s.step%s.Period) / float64(s.Period)
	s.step++
	v := s.Peak*(1-math.Cos(phase))/2 + s.rng.NormFloat64()*s.Noise
	return math.Max(0, math.Min(1, v))
}

// ReplaySource repeats a fixed sequence of conversions.
type ReplaySource struct {
	mu     sync.Mutex
	values []float64
	next   int
}

func NewReplaySource(values ...float64) *ReplaySource {
	return &ReplaySource{values: values}
}

func (s *ReplaySource) Next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next]
	s.next = (s.next + 1) % len(s.values)
	return v
}

// NewSource builds the source named in cfg.Source.
func NewSource(cfg config.SensorConfig) (Source, error) {
	switch cfg.Source {
	case "random":
		return NewRandomSource(cfg.Seed), nil
	case "daylight":
		return NewDaylightSource(cfg.Seed), nil
	default:
		return nil, fmt.Errorf("unknown sensor source %q", cfg.Source)
	}
}
