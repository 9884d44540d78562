// internal/data/parser.go
package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/elcruzo/light-sensor-circuit/internal/signal"
)

var ErrNoValue = errors.New("sample has no value")

// ingestPayload accepts both the sample's own field names and the short
// form devices tend to send ({"lux": 120}).
type ingestPayload struct {
	DeviceID  string   `json:"device_id"`
	Timestamp *uint32  `json:"timestamp_ms"`
	RawValue  *float64 `json:"raw_value"`
	Lux       *float64 `json:"lux"`
	IsValid   *bool    `json:"is_valid"`
	Quality   *uint8   `json:"quality"`
}

// ParseSample decodes one ingested JSON sample. Missing validity defaults
// to true and missing quality to 100. Non-finite values are marked invalid.
func ParseSample(raw []byte) (signal.Sample, string, error) {
	var p ingestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return signal.Sample{}, "", fmt.Errorf("decode sample: %w", err)
	}

	var s signal.Sample
	switch {
	case p.RawValue != nil:
		s.RawValue = *p.RawValue
	case p.Lux != nil:
		s.RawValue = *p.Lux
	default:
		return signal.Sample{}, "", ErrNoValue
	}
	if p.Timestamp != nil {
		s.Timestamp = *p.Timestamp
	}
	s.IsValid = true
	if p.IsValid != nil {
		s.IsValid = *p.IsValid
	}
	s.Quality = 100
	if p.Quality != nil {
		s.Quality = min(*p.Quality, 100)
	}
	if math.IsNaN(s.RawValue) || math.IsInf(s.RawValue, 0) {
		s.IsValid = false
	}
	return s, p.DeviceID, nil
}
