// Package memory keeps the run journal in process memory with TTL expiry
// and a byte budget enforced by least-recently-used eviction.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentflow/agentflow/internal/core/checkpoint"
	"github.com/agentflow/agentflow/pkg/serialization"
)

// ErrMemoryLimit is returned when a checkpoint cannot fit the budget even
// after evicting everything else.
var ErrMemoryLimit = errors.New("memory limit exceeded")

// InMemorySaver implements checkpoint.Saver with thread-safe in-memory storage.
// Entries are stored serialized so callers never share state with the store.
type InMemorySaver struct {
	mu      sync.Mutex
	entries map[string]*entry
	size    int64

	ttl        time.Duration
	maxBytes   int64
	serializer *serialization.Serializer
	now        func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// InMemoryConfig holds configuration for InMemorySaver
type InMemoryConfig struct {
	DefaultTTL      time.Duration             // Default TTL for checkpoints
	MaxMemoryBytes  int64                     // Budget for serialized entries
	CleanupInterval time.Duration             // Cleanup interval for expired items; negative disables
	Serializer      *serialization.Serializer // Custom serializer (optional)
	Clock           func() time.Time          // Time source (optional)
}

type entry struct {
	meta       *checkpoint.Checkpoint // State stripped; used for filtering
	data       []byte
	expiresAt  time.Time
	accessedAt time.Time
}

func (e *entry) size() int64 { return int64(len(e.data)) }

// NewInMemorySaver creates a new in-memory checkpoint saver
func NewInMemorySaver(config InMemoryConfig) *InMemorySaver {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 24 * time.Hour
	}
	if config.MaxMemoryBytes == 0 {
		config.MaxMemoryBytes = 64 << 20
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.Serializer == nil {
		config.Serializer = serialization.DefaultSerializer()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	s := &InMemorySaver{
		entries:    make(map[string]*entry),
		ttl:        config.DefaultTTL,
		maxBytes:   config.MaxMemoryBytes,
		serializer: config.Serializer,
		now:        config.Clock,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go s.cleanupLoop(config.CleanupInterval)
	} else {
		close(s.done)
	}
	return s
}

// Save stores a checkpoint, replacing any previous one with the same ID
func (s *InMemorySaver) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrInvalidCheckpointID
	}
	if err := cp.Validate(); err != nil {
		return err
	}

	data, err := s.serializer.Serialize(cp)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}
	if int64(len(data)) > s.maxBytes {
		return fmt.Errorf("%w: checkpoint is %d bytes, budget %d", ErrMemoryLimit, len(data), s.maxBytes)
	}

	meta := *cp
	meta.State = nil
	meta.Metadata.Tags = append([]string(nil), cp.Metadata.Tags...)

	now := s.now()
	e := &entry{meta: &meta, data: data, expiresAt: now.Add(s.ttl), accessedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(cp.ID)
	s.evictLocked(e.size())
	s.entries[cp.ID] = e
	s.size += e.size()
	return nil
}

// Load retrieves a checkpoint by ID
func (s *InMemorySaver) Load(_ context.Context, id string) (*checkpoint.Checkpoint, error) {
	if id == "" {
		return nil, checkpoint.ErrInvalidCheckpointID
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	if ok && s.expiredLocked(e) {
		s.removeLocked(id)
		ok = false
	}
	if !ok {
		s.mu.Unlock()
		return nil, checkpoint.ErrCheckpointNotFound
	}
	e.accessedAt = s.now()
	data := e.data
	s.mu.Unlock()

	return s.decode(data)
}

// List returns matching checkpoints newest first
func (s *InMemorySaver) List(_ context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	var matched []*entry
	for id, e := range s.entries {
		if s.expiredLocked(e) {
			s.removeLocked(id)
			continue
		}
		if filter.Matches(e.meta) {
			matched = append(matched, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].meta, matched[j].meta
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.Metadata.Step != b.Metadata.Step {
			return a.Metadata.Step > b.Metadata.Step
		}
		return a.ID > b.ID
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]*checkpoint.Checkpoint, 0, len(matched))
	for _, e := range matched {
		cp, err := s.decode(e.data)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Delete removes a checkpoint by ID
func (s *InMemorySaver) Delete(_ context.Context, id string) error {
	if id == "" {
		return checkpoint.ErrInvalidCheckpointID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.removeLocked(id) {
		return checkpoint.ErrCheckpointNotFound
	}
	return nil
}

// MemoryStats reports the store's footprint
type MemoryStats struct {
	Count              int     `json:"count"`
	SizeBytes          int64   `json:"size_bytes"`
	MaxBytes           int64   `json:"max_bytes"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// GetStats returns memory usage statistics
func (s *InMemorySaver) GetStats() MemoryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MemoryStats{
		Count:              len(s.entries),
		SizeBytes:          s.size,
		MaxBytes:           s.maxBytes,
		UtilizationPercent: float64(s.size) / float64(s.maxBytes) * 100,
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (s *InMemorySaver) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

// CleanupExpired drops every expired entry and returns how many it removed
func (s *InMemorySaver) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if s.expiredLocked(e) {
			s.removeLocked(id)
			removed++
		}
	}
	return removed
}

func (s *InMemorySaver) cleanupLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.CleanupExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *InMemorySaver) decode(data []byte) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	if err := s.serializer.Deserialize(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
	}
	return &cp, nil
}

func (s *InMemorySaver) expiredLocked(e *entry) bool {
	return !s.now().Before(e.expiresAt)
}

func (s *InMemorySaver) removeLocked(id string) bool {
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	delete(s.entries, id)
	s.size -= e.size()
	return true
}

// evictLocked drops least recently used entries until need more bytes fit.
func (s *InMemorySaver) evictLocked(need int64) {
	if s.size+need <= s.maxBytes {
		return
	}
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.entries[ids[i]].accessedAt.Before(s.entries[ids[j]].accessedAt)
	})
	for _, id := range ids {
		if s.size+need <= s.maxBytes {
			return
		}
		s.removeLocked(id)
	}
}
