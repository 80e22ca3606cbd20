package embedding

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheEvictsFirstInsertedAtCapacity(t *testing.T) {
	c := NewCache(DefaultCacheSize)
	for i := 0; i <= DefaultCacheSize; i++ {
		c.Put(fmt.Sprintf("text-%d", i), []float32{float32(i)})
	}
	assert.Equal(t, DefaultCacheSize, c.Len())
	assert.False(t, c.contains("text-0"))
	assert.True(t, c.contains("text-1"))
	assert.True(t, c.contains(fmt.Sprintf("text-%d", DefaultCacheSize)))
}

func TestCacheReadsDoNotRefresh(t *testing.T) {
	c := NewCache(2)
	c.Put("a", []float32{1})
	c.Put("b", []float32{2})

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []float32{1}, v)

	c.Put("c", []float32{3})
	assert.False(t, c.contains("a"))
	assert.True(t, c.contains("b"))
	assert.True(t, c.contains("c"))
}

func TestCachePutKeepsExistingEntry(t *testing.T) {
	c := NewCache(2)
	c.Put("a", []float32{1})
	c.Put("b", []float32{2})
	c.Put("a", []float32{9})

	v, _ := c.Get("a")
	assert.Equal(t, []float32{1}, v)

	c.Put("c", []float32{3})
	assert.False(t, c.contains("a"))
}

func TestCacheDefaultsAndClear(t *testing.T) {
	c := NewCache(0)
	c.Put("a", []float32{1})
	assert.Equal(t, 1, c.Len())
	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}
