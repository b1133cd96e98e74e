// Package alloc hands out file space for new metadata and raw data. Space
// is only ever appended at the end of the file; blocks that are superseded
// by a rewrite are not reclaimed.
package alloc

import "sync"

// Stats summarizes what an Allocator has handed out.
type Stats struct {
	Blocks  uint64
	Bytes   uint64
	Largest uint64
}

// Allocator is an append-only, goroutine-safe space allocator.
type Allocator struct {
	mu    sync.Mutex
	eof   uint64
	stats Stats
}

// New returns an allocator whose first block starts at eof.
func New(eof uint64) *Allocator {
	return &Allocator{eof: eof}
}

// Alloc reserves size bytes and returns their address. A zero size returns
// the current end of file without reserving anything.
func (a *Allocator) Alloc(size uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	addr := a.eof
	if size == 0 {
		return addr
	}
	a.eof += size
	a.stats.Blocks++
	a.stats.Bytes += size
	a.stats.Largest = max(a.stats.Largest, size)
	return addr
}

// EOFAddr is the address the next block will get.
func (a *Allocator) EOFAddr() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eof
}

func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
