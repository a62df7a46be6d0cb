package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TutorChat/internal/backend"
)

func TestGenerateCacheKey(t *testing.T) {
	a := []backend.Message{
		{Role: backend.RoleSystem, Content: "sys"},
		{Role: backend.RoleUser, Content: "hello"},
	}
	b := []backend.Message{
		{Role: backend.RoleSystem, Content: "sys"},
		{Role: backend.RoleUser, Content: "hello!"},
	}

	assert.Equal(t, GenerateCacheKey("m", a), GenerateCacheKey("m", a))
	assert.NotEqual(t, GenerateCacheKey("m", a), GenerateCacheKey("m", b))
	assert.NotEqual(t, GenerateCacheKey("m1", a), GenerateCacheKey("m2", a))
	assert.Contains(t, GenerateCacheKey("m", a), keyPrefix)
}

func TestGenerateCacheKey_FieldBoundaries(t *testing.T) {
	a := []backend.Message{{Role: "user", Content: "ab"}}
	b := []backend.Message{{Role: "usera", Content: "b"}}
	assert.NotEqual(t, GenerateCacheKey("m", a), GenerateCacheKey("m", b))
}

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "reply"))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "reply", got)
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", "reply"))
	now = now.Add(2 * time.Minute)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	s, err := New(Options{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(Options{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(Options{Type: "memcached"})
	assert.Error(t, err)
}
