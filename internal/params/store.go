package params

import (
	"context"
	"sync"
	"time"
)

// LatestKey is the key the intake writes accepted parameters under.
const LatestKey = "latest"

// Record is a stored parameter set and the time it was accepted, in Unix
// milliseconds. Timestamps from one store strictly increase.
type Record struct {
	Params    Params `json:"params"`
	Timestamp int64  `json:"timestamp"`
}

// Time returns the record timestamp as a time.Time.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// Store is a read-through key-value holder of accepted parameters.
type Store interface {
	Put(ctx context.Context, key string, p Params) (Record, error)
	Get(ctx context.Context, key string) (Record, bool, error)
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	last    int64
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), now: time.Now}
}

// Put stores a copy of p under key, stamped with the current time.
func (s *MemoryStore) Put(ctx context.Context, key string, p Params) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	p.AltitudesPerPlane = append([]float64(nil), p.AltitudesPerPlane...)

	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UnixMilli()
	if ts <= s.last {
		ts = s.last + 1
	}
	s.last = ts
	rec := Record{Params: p, Timestamp: ts}
	s.records[key] = rec
	return rec, nil
}

// Get returns the record under key and whether one exists.
func (s *MemoryStore) Get(ctx context.Context, key string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if ok {
		rec.Params.AltitudesPerPlane = append([]float64(nil), rec.Params.AltitudesPerPlane...)
	}
	return rec, ok, nil
}
