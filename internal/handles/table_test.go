package handles

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateReturnsLowestFree(t *testing.T) {
	tbl := New()
	a := tbl.Allocate("a")
	b := tbl.Allocate("b")
	c := tbl.Allocate("c")
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 2, c)

	tbl.Release(b)
	d := tbl.Allocate("d")
	assert.Equal(t, 1, d, "freed id should be reused before growing")
}

func TestLookup(t *testing.T) {
	tbl := New()
	id := tbl.Allocate(42)
	v, ok := tbl.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	tbl.Release(id)
	_, ok = tbl.Lookup(id)
	assert.False(t, ok)
}

func TestReleaseUnknownIsNoop(t *testing.T) {
	tbl := New()
	tbl.Release(999)
	assert.Equal(t, 0, tbl.Len())
}

func TestConcurrentAllocateRelease(t *testing.T) {
	tbl := New()
	var wg sync.WaitGroup
	ids := make(chan int, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- tbl.Allocate(struct{}{})
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate handle id allocated concurrently")
		seen[id] = true
	}
	assert.Equal(t, 100, len(seen))
}
