// internal/storage/logger.go
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/data"
)

// statsWindow bounds how many logged lux values Stats is computed over.
const statsWindow = 1000

var ErrBufferFull = errors.New("data logger buffer full")

// Stats summarizes what the DataLogger has seen. Lux figures cover the
// most recent logged values only.
type Stats struct {
	Total      uint64  `json:"total"`
	Logged     uint64  `json:"logged"`
	Filtered   uint64  `json:"filtered"`
	Overflows  uint64  `json:"overflows"`
	Buffered   int     `json:"buffered"`
	MinLux     float64 `json:"min_lux"`
	MaxLux     float64 `json:"max_lux"`
	MeanLux    float64 `json:"mean_lux"`
	MedianLux  float64 `json:"median_lux"`
	StdDevLux  float64 `json:"stddev_lux"`
	FlushError string  `json:"flush_error,omitempty"`
}

// DataLogger buffers records that pass the storage thresholds and hands
// them to a Sink in batches.
type DataLogger struct {
	mu      sync.Mutex
	cfg     config.StorageConfig
	sink    Sink
	log     *logrus.Entry
	buffer  []*data.Record
	lux     []float64
	next    int
	stats   Stats
	lastErr error
}

func NewDataLogger(cfg config.StorageConfig, sink Sink, log *logrus.Entry) *DataLogger {
	return &DataLogger{
		cfg:    cfg,
		sink:   sink,
		log:    log,
		buffer: make([]*data.Record, 0, cfg.BufferSize),
		lux:    make([]float64, 0, statsWindow),
	}
}

// ShouldLog applies the validity, lux range and quality thresholds.
func (l *DataLogger) ShouldLog(rec *data.Record) bool {
	s := rec.Sample
	if !s.IsValid {
		return false
	}
	if s.RawValue < l.cfg.MinLux || s.RawValue > l.cfg.MaxLux {
		return false
	}
	return s.Quality >= l.cfg.MinQuality
}

// Log buffers rec. Filtered records are counted and dropped without error;
// a full buffer yields ErrBufferFull. Reaching the flush threshold writes
// the buffer to the sink.
func (l *DataLogger) Log(rec *data.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.Total++
	if !l.ShouldLog(rec) {
		l.stats.Filtered++
		return nil
	}
	if len(l.buffer) >= l.cfg.BufferSize {
		l.stats.Overflows++
		return ErrBufferFull
	}

	l.buffer = append(l.buffer, rec)
	l.stats.Logged++
	l.observe(rec.Sample.RawValue)

	if len(l.buffer) >= l.cfg.FlushThreshold {
		return l.flushLocked()
	}
	return nil
}

// Flush writes everything buffered to the sink.
func (l *DataLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *DataLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}
	if err := l.sink.Write(l.buffer); err != nil {
		l.lastErr = err
		return fmt.Errorf("flush %d records: %w", len(l.buffer), err)
	}
	l.log.WithField("records", len(l.buffer)).Debug("flushed data log")
	l.buffer = l.buffer[:0]
	l.lastErr = nil
	return nil
}

func (l *DataLogger) observe(v float64) {
	if len(l.lux) < statsWindow {
		l.lux = append(l.lux, v)
		return
	}
	l.lux[l.next] = v
	l.next = (l.next + 1) % statsWindow
}

func (l *DataLogger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stats
	st.Buffered = len(l.buffer)
	if l.lastErr != nil {
		st.FlushError = l.lastErr.Error()
	}
	if len(l.lux) == 0 {
		return st
	}
	values := stats.Float64Data(l.lux)
	st.MinLux, _ = values.Min()
	st.MaxLux, _ = values.Max()
	st.MeanLux, _ = values.Mean()
	st.MedianLux, _ = values.Median()
	if len(values) > 1 {
		st.StdDevLux, _ = values.StandardDeviationSample()
	}
	return st
}

// Close flushes what is left and closes the sink.
func (l *DataLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	flushErr := l.flushLocked()
	return errors.Join(flushErr, l.sink.Close())
}
