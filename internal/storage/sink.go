// internal/storage/sink.go
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/elcruzo/light-sensor-circuit/internal/config"
	"github.com/elcruzo/light-sensor-circuit/internal/data"
)

// Sink persists batches of records.
type Sink interface {
	Write(recs []*data.Record) error
	Close() error
}

// FileSink appends records as JSON lines to a size-rotated file.
type FileSink struct {
	mu  sync.Mutex
	out io.WriteCloser
}

func NewFileSink(cfg config.StorageConfig) *FileSink {
	return &FileSink{out: &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxFileSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}}
}

func (s *FileSink) Write(recs []*data.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// One Write per line: lumberjack rotates between writes, never inside one.
	for _, rec := range recs {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		if _, err := s.out.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write record %s: %w", rec.ID, err)
		}
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}

// MemorySink keeps the last limit written records, or all of them when
// limit is 0. It backs the logger when no log file is configured.
type MemorySink struct {
	mu      sync.Mutex
	limit   int
	records []*data.Record
}

func NewMemorySink(limit int) *MemorySink {
	return &MemorySink{limit: limit}
}

func (s *MemorySink) Write(recs []*data.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
	if s.limit > 0 && len(s.records) > s.limit {
		s.records = append(s.records[:0:0], s.records[len(s.records)-s.limit:]...)
	}
	return nil
}

func (s *MemorySink) Close() error { return nil }

func (s *MemorySink) Records() []*data.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*data.Record, len(s.records))
	copy(out, s.records)
	return out
}

// NewSink picks a FileSink when a log file is configured.
func NewSink(cfg config.StorageConfig) Sink {
	if cfg.LogFile == "" {
		return NewMemorySink(cfg.HistorySize)
	}
	return NewFileSink(cfg)
}
