// internal/storage/memory.go
package storage

import (
	"sync"

	"github.com/elcruzo/light-sensor-circuit/internal/data"
)

const defaultHistorySize = 100

// MemoryStore keeps the most recent records for the API and new websocket
// clients. The oldest record is overwritten once capacity is reached.
type MemoryStore struct {
	mu       sync.RWMutex
	buffer   []*data.Record
	head     int
	size     int
	capacity int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultHistorySize
	}
	return &MemoryStore{
		buffer:   make([]*data.Record, capacity),
		capacity: capacity,
	}
}

func (s *MemoryStore) Add(rec *data.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer[s.head] = rec
	s.head = (s.head + 1) % s.capacity
	if s.size < s.capacity {
		s.size++
	}
}

// GetRecent returns up to count records, oldest first. A count outside
// (0, Len] returns everything.
func (s *MemoryStore) GetRecent(count int) []*data.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > s.size {
		count = s.size
	}
	result := make([]*data.Record, count)
	start := s.head - count
	for i := range result {
		result[i] = s.buffer[(start+i+s.capacity)%s.capacity]
	}
	return result
}

func (s *MemoryStore) GetAll() []*data.Record {
	return s.GetRecent(0)
}

// Latest returns the newest record, or nil when the store is empty.
func (s *MemoryStore) Latest() *data.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.size == 0 {
		return nil
	}
	return s.buffer[(s.head-1+s.capacity)%s.capacity]
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Clear drops every record.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.buffer {
		s.buffer[i] = nil
	}
	s.head, s.size = 0, 0
}
