package alloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlloc(t *testing.T) {
	a := New(1024)
	assert.EqualValues(t, 1024, a.Alloc(100))
	assert.EqualValues(t, 1124, a.Alloc(200))
	assert.EqualValues(t, 1324, a.Alloc(0))
	assert.EqualValues(t, 1324, a.EOFAddr())
	assert.Equal(t, Stats{Blocks: 2, Bytes: 300, Largest: 200}, a.Stats())
}

func TestAllocConcurrent(t *testing.T) {
	a := New(0)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[uint64]bool{}
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				addr := a.Alloc(8)
				mu.Lock()
				seen[addr] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 3200)
	assert.EqualValues(t, 3200*8, a.EOFAddr())
}
