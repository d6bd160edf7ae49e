//go:build !windows

package backend

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/tinyrange/memscope/physmem"
)

// File is a crash-dump / /dev/mem-style backend over a plain file
// descriptor, using golang.org/x/sys/unix.Pread/Pwrite directly
// rather than Go's *os.File.ReadAt/WriteAt -- the same low-level
// syscall layer the teacher reaches for in internal/hv/kvm/kvm.go for
// raw ioctl/mmap access, kept here for positioned reads without
// disturbing any shared file offset.
type File struct {
	mu       sync.Mutex
	f        *os.File
	fd       int
	size     uint64
	readonly bool
	memMap   []physmem.MemoryMapRange
}

// OpenFile opens path for physical-memory access. readonly governs
// whether PhysWriteRawList is rejected, and also opens the file
// descriptor O_RDONLY (O_RDWR otherwise).
func OpenFile(path string, readonly bool) (*File, error) {
	flags := os.O_RDWR
	if readonly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", physmem.ErrIO, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", physmem.ErrIO, path, err)
	}
	return &File{f: f, fd: int(f.Fd()), size: uint64(info.Size()), readonly: readonly}, nil
}

// Close releases the underlying file descriptor.
func (b *File) Close() error {
	return b.f.Close()
}

// resolve applies the installed memory map to a physical address,
// returning the real offset to read/write at in the backing file.
func (b *File) resolve(addr uint64) uint64 {
	for _, r := range b.memMap {
		vbase := uint64(r.VirtualBase)
		vlen := uint64(r.Length)
		if addr >= vbase && addr < vbase+vlen {
			return uint64(r.RealBase) + (addr - vbase)
		}
	}
	return addr
}

func (b *File) PhysReadRawList(_ context.Context, reqs []physmem.ReadRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range reqs {
		off := b.resolve(uint64(r.Addr.Address))
		if off+uint64(len(r.Buf)) > b.size && len(b.memMap) == 0 {
			return fmt.Errorf("%w: read %s len %d", physmem.ErrOutOfBounds, r.Addr.Address, len(r.Buf))
		}
		n, err := unix.Pread(b.fd, r.Buf, int64(off))
		if err != nil {
			return fmt.Errorf("%w: pread at %#x: %v", physmem.ErrIO, off, err)
		}
		if n != len(r.Buf) {
			return fmt.Errorf("%w: short read at %#x: got %d want %d", physmem.ErrIO, off, n, len(r.Buf))
		}
	}
	return nil
}

func (b *File) PhysWriteRawList(_ context.Context, reqs []physmem.WriteRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readonly {
		return physmem.ErrReadOnly
	}
	for _, r := range reqs {
		off := b.resolve(uint64(r.Addr.Address))
		n, err := unix.Pwrite(b.fd, r.Buf, int64(off))
		if err != nil {
			return fmt.Errorf("%w: pwrite at %#x: %v", physmem.ErrIO, off, err)
		}
		if n != len(r.Buf) {
			return fmt.Errorf("%w: short write at %#x: got %d want %d", physmem.ErrIO, off, n, len(r.Buf))
		}
	}
	return nil
}

func (b *File) Metadata() physmem.Metadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	return physmem.Metadata{Size: b.size, Readonly: b.readonly}
}

// SetMemMap installs an idempotent replacement redirection table
// (spec.md §4.1): subsequent calls replace the whole table rather
// than merging with it.
func (b *File) SetMemMap(ranges []physmem.MemoryMapRange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.memMap = ranges
}

var _ physmem.PhysicalMemory = (*File)(nil)
