// Package physmem defines the vectorized physical-memory contract of
// spec.md §4.1: a batched read/write interface over
// (physical_address, buffer) pairs that backends may coalesce,
// reorder, or parallelize, plus the metadata query and memory-map
// remapping every backend must support.
//
// Grounded on memflow/src/mem/phys_mem.rs's PhysicalMemory trait; the
// Go shape (an interface plus free convenience functions instead of
// default trait methods) follows the teacher's hv.VirtualMachine
// (io.ReaderAt/io.WriterAt embedding, internal/hv/common.go).
package physmem

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinyrange/memscope/types"
)

// Sentinel errors for the failure modes of spec.md §7. Backends
// should wrap these with fmt.Errorf("...: %w", ErrXxx) so callers can
// still errors.Is against them.
var (
	ErrOutOfBounds = errors.New("physmem: address out of bounds")
	ErrReadOnly    = errors.New("physmem: write to read-only backend")
	ErrIO          = errors.New("physmem: backend io error")
)

// ReadRequest pairs a physical address with the buffer a backend must
// fill completely or fail the whole call.
type ReadRequest struct {
	Addr types.PhysicalAddress
	Buf  []byte
}

// WriteRequest pairs a physical address with the bytes to write.
type WriteRequest struct {
	Addr types.PhysicalAddress
	Buf  []byte
}

// Metadata describes the observable shape of a backend's address
// space.
type Metadata struct {
	Size     uint64
	Readonly bool
}

// MemoryMapRange redirects [VirtualBase, VirtualBase+Length) to
// [RealBase, RealBase+Length) for every subsequent call, until the
// owning backend replaces the table (spec.md §4.1, §5).
type MemoryMapRange struct {
	VirtualBase types.Address
	RealBase    types.Address
	Length      types.Length
}

// PhysicalMemory is implemented by every physical-memory backend:
// hypervisor DMA, kernel driver, crash dump, or emulator (spec.md
// §1). Implementations must be safe to use from a single owning
// goroutine; cross-goroutine use requires external synchronization
// (spec.md §5).
type PhysicalMemory interface {
	// PhysReadRawList fills every buffer in reqs or fails the whole
	// call; on failure every buffer's contents are undefined.
	// Implementations may reorder or parallelize across reqs.
	PhysReadRawList(ctx context.Context, reqs []ReadRequest) error

	// PhysWriteRawList writes every buffer in reqs or fails the
	// whole call, with the same reordering freedom as reads.
	PhysWriteRawList(ctx context.Context, reqs []WriteRequest) error

	// Metadata reports the observable address-space size and
	// whether writes will succeed.
	Metadata() Metadata

	// SetMemMap installs a redirection table used by all subsequent
	// calls; idempotent replacement (calling it again replaces the
	// whole table, it does not merge with the previous one).
	SetMemMap(ranges []MemoryMapRange)
}

// PhysReadRawInto is a convenience wrapper reading into a single
// pre-sized buffer.
func PhysReadRawInto(ctx context.Context, mem PhysicalMemory, addr types.PhysicalAddress, out []byte) error {
	return mem.PhysReadRawList(ctx, []ReadRequest{{Addr: addr, Buf: out}})
}

// PhysReadRaw allocates and returns a freshly zeroed buffer of length
// n, filled from addr. A short read from a misbehaving backend still
// yields defined (zero) bytes for the untouched tail (spec.md §9 open
// question b).
func PhysReadRaw(ctx context.Context, mem PhysicalMemory, addr types.PhysicalAddress, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := PhysReadRawInto(ctx, mem, addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// PhysWriteRaw is a convenience wrapper writing a single buffer.
func PhysWriteRaw(ctx context.Context, mem PhysicalMemory, addr types.PhysicalAddress, data []byte) error {
	return mem.PhysWriteRawList(ctx, []WriteRequest{{Addr: addr, Buf: data}})
}

// WrapIO wraps a backend-reported error with ErrIO when it isn't
// already one of the defined sentinels, so callers can always
// errors.Is(err, ErrIO) for transport failures.
func WrapIO(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOutOfBounds) || errors.Is(err, ErrReadOnly) || errors.Is(err, ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}
