package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestDomainMemory_RememberAndExpire(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	dm := newDomainMemory(time.Minute, clock.Now)
	defer dm.Stop()

	dm.Remember("https://Shop.Example.com/cart", "empty root")

	ok, reason := dm.NeedsBrowser("https://shop.example.com/other")
	assert.True(t, ok, "lookups are per host, case-insensitive")
	assert.Equal(t, "empty root", reason)

	ok, _ = dm.NeedsBrowser("https://example.com/")
	assert.False(t, ok)

	clock.Advance(2 * time.Minute)
	ok, _ = dm.NeedsBrowser("https://shop.example.com/")
	assert.False(t, ok, "entries expire after the TTL")
}

func TestDomainMemory_Forget(t *testing.T) {
	dm := NewDomainMemory(time.Hour)
	defer dm.Stop()

	dm.Remember("https://a.example", "x")
	dm.Forget("https://a.example/page")

	ok, _ := dm.NeedsBrowser("https://a.example")
	assert.False(t, ok)
}

func TestDomainMemory_DisabledIsNil(t *testing.T) {
	dm := NewDomainMemory(0)
	assert.Nil(t, dm)

	// All methods are safe on nil.
	dm.Remember("https://a.example", "x")
	ok, _ := dm.NeedsBrowser("https://a.example")
	assert.False(t, ok)
	dm.Forget("https://a.example")
	dm.Stop()
}
