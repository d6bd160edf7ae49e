// Package backend provides reference physmem.PhysicalMemory
// implementations: an in-memory backend for tests, a file-backed
// backend for crash dumps and /dev/mem-style devices, and a
// dynamically-loaded native driver backend for DMA hardware.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/tinyrange/memscope/physmem"
)

// Dummy is an in-memory byte-slice backend, grounded directly on the
// MemoryBackend doc-comment example in memflow/src/mem/phys_mem.rs.
// It exists for tests and for the synthetic page-table fixtures used
// by the mmu/arch property tests.
type Dummy struct {
	mu       sync.Mutex
	mem      []byte
	readonly bool
}

// NewDummy allocates a zeroed backend of the given size.
func NewDummy(size uint64) *Dummy {
	return &Dummy{mem: make([]byte, size)}
}

// SetReadonly flips whether subsequent writes fail with ErrReadOnly.
func (d *Dummy) SetReadonly(ro bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readonly = ro
}

func (d *Dummy) PhysReadRawList(_ context.Context, reqs []physmem.ReadRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range reqs {
		start, ok := r.Addr.Address.AsUsize()
		if !ok || uint64(start)+uint64(len(r.Buf)) > uint64(len(d.mem)) {
			return fmt.Errorf("%w: read %s len %d", physmem.ErrOutOfBounds, r.Addr.Address, len(r.Buf))
		}
		copy(r.Buf, d.mem[start:])
	}
	return nil
}

func (d *Dummy) PhysWriteRawList(_ context.Context, reqs []physmem.WriteRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readonly {
		return physmem.ErrReadOnly
	}
	for _, r := range reqs {
		start, ok := r.Addr.Address.AsUsize()
		if !ok || uint64(start)+uint64(len(r.Buf)) > uint64(len(d.mem)) {
			return fmt.Errorf("%w: write %s len %d", physmem.ErrOutOfBounds, r.Addr.Address, len(r.Buf))
		}
		copy(d.mem[start:], r.Buf)
	}
	return nil
}

func (d *Dummy) Metadata() physmem.Metadata {
	d.mu.Lock()
	defer d.mu.Unlock()
	return physmem.Metadata{Size: uint64(len(d.mem)), Readonly: d.readonly}
}

// SetMemMap is a no-op for Dummy: it has no backing transport capable
// of remapping, matching the doc-comment example's own no-op.
func (d *Dummy) SetMemMap(_ []physmem.MemoryMapRange) {}

// WriteAt is a non-interface test helper for directly seeding fixture
// bytes (e.g. synthetic page tables) without going through the
// batched write path.
func (d *Dummy) WriteAt(offset uint64, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.mem[offset:], data)
}

var _ physmem.PhysicalMemory = (*Dummy)(nil)
