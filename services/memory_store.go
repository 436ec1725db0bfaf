package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// sweepInterval is the minimum time between full scans for expired keys.
const sweepInterval = 30 * time.Second

type memoryItem struct {
	value string
	// list holds entries oldest first; Range reads it back to front.
	list      []string
	isList    bool
	expiresAt time.Time
}

func (i *memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// MemoryStore is the in-process Store used when Redis is unavailable and in tests.
type MemoryStore struct {
	mu        sync.Mutex
	items     map[string]*memoryItem
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*memoryItem),
		now:   time.Now,
	}
}

// SetClock replaces the time source used for expiry.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// lookup returns the live item at key, dropping it if expired. Caller holds mu.
func (s *MemoryStore) lookup(key string) *memoryItem {
	item, ok := s.items[key]
	if !ok {
		return nil
	}
	if item.expired(s.now()) {
		delete(s.items, key)
		return nil
	}
	return item
}

// sweep drops every expired key, at most once per sweepInterval. Keys that
// are never read again, like past rate-limit windows, are reclaimed here.
// Caller holds mu.
func (s *MemoryStore) sweep() {
	now := s.now()
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for key, item := range s.items {
		if item.expired(now) {
			delete(s.items, key)
		}
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	item := s.lookup(key)
	if item == nil {
		item = &memoryItem{value: "0"}
		s.items[key] = item
	}
	if item.isList {
		return 0, fmt.Errorf("incr %s: wrong type", key)
	}
	n, err := strconv.ParseInt(item.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("incr %s: value is not an integer", key)
	}
	n++
	item.value = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.lookup(key); item != nil {
		item.expiresAt = s.now().Add(ttl)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.lookup(key)
	if item == nil {
		return "", false, nil
	}
	if item.isList {
		return "", false, fmt.Errorf("get %s: wrong type", key)
	}
	return item.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	item := &memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.items[key] = item
	return nil
}

func (s *MemoryStore) PushBounded(_ context.Context, key, value string, maxLen int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.lookup(key)
	if item == nil {
		item = &memoryItem{isList: true}
		s.items[key] = item
	}
	if !item.isList {
		return fmt.Errorf("push %s: wrong type", key)
	}

	item.list = append(item.list, value)
	if maxLen > 0 && int64(len(item.list)) > maxLen {
		// drop the oldest entries; append reallocates once cap runs out
		item.list = item.list[int64(len(item.list))-maxLen:]
	}
	return nil
}

func (s *MemoryStore) Range(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.lookup(key)
	if item == nil {
		return []string{}, nil
	}
	if !item.isList {
		return nil, fmt.Errorf("range %s: wrong type", key)
	}

	n := int64(len(item.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return []string{}, nil
	}

	// index 0 is the newest entry, stored last
	out := make([]string, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, item.list[n-1-i])
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Mode() StoreMode {
	return StoreModeInMemory
}

func (s *MemoryStore) Close() error {
	return nil
}
