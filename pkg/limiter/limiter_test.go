package limiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowRespectsBurstPerKey(t *testing.T) {
	p := New(0.001, 2, time.Minute)
	defer p.Shutdown()

	assert.True(t, p.Allow("dev1"))
	assert.True(t, p.Allow("dev1"))
	assert.False(t, p.Allow("dev1"))
	assert.True(t, p.Allow("dev2"), "keys have separate buckets")
	assert.Equal(t, 2, p.Len())
}

func TestDisabledPoolAllowsEverything(t *testing.T) {
	p := New(0, 1, time.Minute)
	defer p.Shutdown()
	for i := 0; i < 10; i++ {
		assert.True(t, p.Allow("k"))
	}

	var nilPool *Pool
	assert.True(t, nilPool.Allow("k"))
}

func TestEvictDropsIdleKeys(t *testing.T) {
	p := New(1, 1, time.Minute)
	defer p.Shutdown()
	now := time.Now()
	p.now = func() time.Time { return now }

	p.Allow("old")
	now = now.Add(2 * time.Minute)
	p.Allow("fresh")
	p.evict()

	assert.Equal(t, 1, p.Len())
}
