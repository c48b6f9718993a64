package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"T-606", "TR-608", "Camión 1"}, SplitCSV(" T-606, TR-608 ,,Camión 1 "))
	assert.Nil(t, SplitCSV("   "))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "hello", TruncateRunes("hello", 50))
	assert.Equal(t, "camió", TruncateRunes("camión", 5))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}

func TestClampAndUnique(t *testing.T) {
	assert.Equal(t, 1, Clamp(0, 1, 12))
	assert.Equal(t, 12, Clamp(40, 1, 12))
	assert.Equal(t, 5, Clamp(5, 1, 12))
	assert.Equal(t, []string{"a", "b"}, Unique([]string{"a", "b", "a"}))
}

func TestLRUCache(t *testing.T) {
	c, err := NewLRUCache(2)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	v, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 12, 30, 10, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	c.Advance(5 * time.Minute)
	assert.Equal(t, start.Add(5*time.Minute), c.Now())
}
