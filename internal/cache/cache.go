package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"TutorChat/internal/backend"
)

const keyPrefix = "tutorchat:reply:"

// Store memoizes model replies keyed by the assembled message sequence
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, reply string) error
	Close() error
}

// Options selects and configures a cache backend
type Options struct {
	Type     string // "" disables caching, "memory" or "redis"
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// New returns the store for opts.Type, or nil when caching is disabled
func New(opts Options) (Store, error) {
	switch opts.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryStore(opts.TTL), nil
	case "redis":
		store, err := NewRedisStore(opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", opts.Type)
	}
}

// GenerateCacheKey generates a cache key from the model and messages
func GenerateCacheKey(model string, messages []backend.Message) string {
	h := sha256.New()
	h.Write([]byte(model))
	for _, msg := range messages {
		h.Write([]byte{0})
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
	}
	return fmt.Sprintf("%s%x", keyPrefix, h.Sum(nil))
}

// CachedResponse represents a cached API response
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// MemoryStore keeps replies in process memory
type MemoryStore struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-process store; ttl <= 0 keeps entries forever
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	val, ok := m.entries.Load(key)
	if !ok {
		return "", false, nil
	}
	cached := val.(CachedResponse)
	if m.ttl > 0 && m.now().Sub(cached.Timestamp) > m.ttl {
		m.entries.Delete(key)
		return "", false, nil
	}
	return cached.Response, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key, reply string) error {
	m.entries.Store(key, CachedResponse{
		Response:  reply,
		Timestamp: m.now(),
	})
	return nil
}

func (m *MemoryStore) Close() error { return nil }
