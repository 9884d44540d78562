// internal/sensor/sensor.go
package sensor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/signal"
)

// calibrationReferenceLux is the illuminance the light reading in Calibrate
// is assumed to have been taken at.
const calibrationReferenceLux = 1000.0

var ErrBadCalibration = errors.New("dark reading must be below light reading")

// Sensor hands out one normalized sample per call.
type Sensor interface {
	Read() signal.Sample
}

// LightSensor emulates a photodiode behind an ADC: a Source supplies the
// normalized conversion result, which is quantized, oversampled and turned
// into lux.
type LightSensor struct {
	mu     sync.Mutex
	cfg    config.SensorConfig
	src    Source
	levels float64
	start  time.Time
	now    func() time.Time
}

func New(cfg config.SensorConfig, src Source) (*LightSensor, error) {
	if cfg.ADCResolution <= 0 || cfg.ADCResolution > 24 {
		return nil, fmt.Errorf("adc resolution %d bits out of range", cfg.ADCResolution)
	}
	if cfg.ReferenceVoltage <= 0 || cfg.Sensitivity <= 0 {
		return nil, errors.New("reference voltage and sensitivity must be positive")
	}
	if cfg.Oversampling <= 0 {
		cfg.Oversampling = 1
	}
	s := &LightSensor{
		cfg:    cfg,
		src:    src,
		levels: float64(int(1)<<cfg.ADCResolution - 1),
		now:    time.Now,
	}
	s.start = s.now()
	return s, nil
}

// Read takes Oversampling conversions and averages them.
func (s *LightSensor) Read() signal.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum float64
	for i := 0; i < s.cfg.Oversampling; i++ {
		sum += s.quantize(s.src.Next())
	}
	raw := sum / float64(s.cfg.Oversampling)
	valid := raw >= 0 && raw <= 1

	return signal.Sample{
		Timestamp: uint32(s.now().Sub(s.start).Milliseconds()),
		RawValue:  s.lux(raw * s.cfg.ReferenceVoltage),
		IsValid:   valid,
		Quality:   quality(raw, valid),
	}
}

// Calibrate derives the dark offset, sensitivity and noise threshold from
// two voltage readings, one in darkness and one at the reference
// illuminance.
func (s *LightSensor) Calibrate(darkVolts, lightVolts float64) error {
	if darkVolts >= lightVolts {
		return ErrBadCalibration
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.DarkOffset = darkVolts
	s.cfg.Sensitivity = (lightVolts - darkVolts) / calibrationReferenceLux
	s.cfg.NoiseThreshold = (lightVolts - darkVolts) * 0.01
	return nil
}

// Config returns the sensor settings including any calibration.
func (s *LightSensor) Config() config.SensorConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// quantize snaps a normalized value to the nearest ADC code. Values outside
// [0, 1] are passed through so faults stay visible as invalid samples.
func (s *LightSensor) quantize(v float64) float64 {
	if v < 0 || v > 1 || math.IsNaN(v) {
		return v
	}
	return math.Round(v*s.levels) / s.levels
}

func (s *LightSensor) lux(volts float64) float64 {
	compensated := volts - s.cfg.DarkOffset
	if compensated <= 0 || math.IsNaN(compensated) {
		return 0
	}
	return compensated / s.cfg.Sensitivity
}

// quality rates signal strength; very dim readings are noise dominated and
// near full scale the ADC saturates.
func quality(raw float64, valid bool) uint8 {
	if !valid {
		return 0
	}
	q := raw * 100
	if raw < 0.01 {
		q *= 0.5
	}
	if raw > 0.95 {
		q *= 0.8
	}
	return uint8(math.Max(0, math.Min(100, q)))
}
