package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetGet(t *testing.T) {
	c := NewWithCleanup(0)
	defer c.Close()

	c.Set("k", "v", 0)

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestExpiration(t *testing.T) {
	c := NewWithCleanup(0)
	defer c.Close()

	c.Set("short", 1, 20*time.Millisecond)
	c.Set("forever", 2, 0)

	_, ok := c.Get("short")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	_, ok = c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("forever")
	assert.True(t, ok)
}

func TestDelete(t *testing.T) {
	c := NewWithCleanup(0)
	defer c.Close()

	c.Set("k", "v", 0)
	c.Delete("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDeleteExpired(t *testing.T) {
	c := NewWithCleanup(0)
	defer c.Close()

	c.Set("a", 1, time.Nanosecond)
	c.Set("b", 2, time.Nanosecond)
	c.Set("c", 3, time.Hour)
	time.Sleep(time.Millisecond)

	removed := c.DeleteExpired()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Count())
}

func TestKeysSkipsExpired(t *testing.T) {
	c := NewWithCleanup(0)
	defer c.Close()

	c.Set("live", 1, time.Hour)
	c.Set("dead", 2, time.Nanosecond)
	time.Sleep(time.Millisecond)

	assert.Equal(t, []string{"live"}, c.Keys())
	// 过期项在清理前仍占用条目
	assert.Equal(t, 2, c.Count())
}

func TestClear(t *testing.T) {
	c := NewWithCleanup(0)
	defer c.Close()

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Clear()

	assert.Zero(t, c.Count())
}

func TestCleanupLoop(t *testing.T) {
	c := NewWithCleanup(10 * time.Millisecond)
	defer c.Close()

	c.Set("dead", 1, time.Nanosecond)

	assert.Eventually(t, func() bool {
		return c.Count() == 0
	}, time.Second, 10*time.Millisecond)
}
