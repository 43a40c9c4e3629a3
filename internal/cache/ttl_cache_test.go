package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCache_SetGetDelete(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTLCache_Expiry(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	c := &ttlCache[string, int]{
		entries: make(map[string]entry[int]),
		now:     func() time.Time { return now },
	}

	c.Set("a", 1, 10*time.Minute)

	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(11 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_ZeroTTLNeverStored(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, 0)
	_, ok := c.Get("a")
	assert.False(t, ok)
}
