package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
)

func envelope(l1, l2 int32) *domain.GroupKeyEnvelope {
	return &domain.GroupKeyEnvelope{L1: l1, L2: l2}
}

func TestCache_GetMiss(t *testing.T) {
	c := New()
	_, ok := c.Get(uuid.New(), []byte("sd"), 1, 31, 31)
	assert.False(t, ok)
}

func TestCache_StoreThenGet_Dominates(t *testing.T) {
	c := New()
	id := uuid.New()
	sd := []byte("sd")
	c.Store(id, sd, 1, envelope(20, 10))

	env, ok := c.Get(id, sd, 1, 15, 5)
	assert.True(t, ok)
	assert.Equal(t, int32(20), env.L1)

	_, ok = c.Get(id, sd, 1, 25, 0)
	assert.False(t, ok, "requesting an L1 the cached entry doesn't dominate should miss")
}

func TestCache_Store_NeverRegresses(t *testing.T) {
	c := New()
	id := uuid.New()
	sd := []byte("sd")

	c.Store(id, sd, 1, envelope(20, 10))
	c.Store(id, sd, 1, envelope(15, 31)) // strictly worse, should be ignored

	env, ok := c.Get(id, sd, 1, 20, 10)
	assert.True(t, ok)
	assert.Equal(t, int32(20), env.L1)
}

func TestCache_Store_AdvancesOnGreater(t *testing.T) {
	c := New()
	id := uuid.New()
	sd := []byte("sd")

	c.Store(id, sd, 1, envelope(20, 10))
	c.Store(id, sd, 1, envelope(20, 15))

	env, ok := c.Get(id, sd, 1, 20, 15)
	assert.True(t, ok)
	assert.Equal(t, int32(15), env.L2)
}

func TestCache_Store_NeverCachesPublicKey(t *testing.T) {
	c := New()
	id := uuid.New()
	sd := []byte("sd")

	pub := envelope(31, 31)
	pub.Flags = domain.IsPublicKey
	c.Store(id, sd, 1, pub)

	_, ok := c.Get(id, sd, 1, 0, 0)
	assert.False(t, ok)
}

func TestCache_LoadKeyAndRootKey(t *testing.T) {
	c := New()
	rk := &domain.RootKey{ID: uuid.New(), Data: make([]byte, 64)}
	c.LoadKey(rk)

	got, ok := c.RootKey(rk.ID)
	assert.True(t, ok)
	assert.Equal(t, rk, got)

	_, ok = c.RootKey(uuid.New())
	assert.False(t, ok)
}

func TestCache_Singleflight_CoalescesConcurrentCalls(t *testing.T) {
	c := New()
	var calls int
	var mu sync.Mutex

	var wg sync.WaitGroup
	results := make([]*domain.GroupKeyEnvelope, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env, err := c.Singleflight("same-key", func() (*domain.GroupKeyEnvelope, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				return envelope(31, 31), nil
			})
			assert.NoError(t, err)
			results[i] = env
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	for _, r := range results {
		assert.NotNil(t, r)
	}
}

func TestCurrentTimeIndex_Monotonic(t *testing.T) {
	l0a, l1a, l2a := CurrentTimeIndex(time.Now())
	l0b, l1b, l2b := CurrentTimeIndex(time.Now().Add(24 * time.Hour))

	assert.GreaterOrEqual(t, l0b, l0a)
	_ = l1a
	_ = l1b
	_ = l2a
	_ = l2b
}
