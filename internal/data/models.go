// internal/data/models.go
package data

import (
	"time"

	"github.com/google/uuid"

	"github.com/elcruzo/light-sensor-circuit/internal/signal"
)

// Record is one processed sample as stored, logged and published.
type Record struct {
	ID       uuid.UUID       `json:"id"`
	DeviceID string          `json:"device_id"`
	Source   string          `json:"source"` // "sensor", "http" or "replay"
	Time     time.Time       `json:"time"`
	Sample   signal.Sample   `json:"sample"`
	Analysis signal.Analysis `json:"analysis"`
}

func NewRecord(deviceID, source string, at time.Time, s signal.Sample, a signal.Analysis) *Record {
	return &Record{
		ID:       uuid.New(),
		DeviceID: deviceID,
		Source:   source,
		Time:     at,
		Sample:   s,
		Analysis: a,
	}
}

// Metric returns the named numeric field used by alert rules.
func (r *Record) Metric(name string) (float64, bool) {
	switch name {
	case MetricRaw:
		return r.Sample.RawValue, true
	case MetricFiltered:
		return r.Analysis.FilteredValue, true
	case MetricNoise:
		return r.Analysis.NoiseLevel, true
	case MetricSNR:
		return r.Analysis.SignalToNoiseRatio, true
	case MetricSlope:
		return r.Analysis.TrendSlope, true
	case MetricQuality:
		return float64(r.Analysis.QualityScore), true
	}
	return 0, false
}

const (
	MetricRaw      = "raw"
	MetricFiltered = "filtered"
	MetricNoise    = "noise"
	MetricSNR      = "snr"
	MetricSlope    = "slope"
	MetricQuality  = "quality"
)

const (
	SeverityWarn     = "WARN"
	SeverityCritical = "CRITICAL"
)

// Alert - Structure for sending alerts
type Alert struct {
	ID        uuid.UUID `json:"id"`
	RecordID  uuid.UUID `json:"record_id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Metric    string    `json:"metric"` // Which metric triggered the alert
	Value     float64   `json:"value"`
	DeviceID  string    `json:"device_id,omitempty"`
}

// Envelope tags messages pushed to websocket clients.
type Envelope struct {
	Type    string      `json:"type"` // "record", "alert" or "history"
	Payload interface{} `json:"payload"`
}
