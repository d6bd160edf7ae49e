package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinyrange/memscope/physmem"
	"github.com/tinyrange/memscope/types"
)

// DefaultPageTypeMask matches the grounding source's
// CachedMemoryAccessBuilder::default(): cache page-table pages and
// read-only pages, the workloads spec.md §9 calls out as having a
// tolerable conflict-miss rate for a direct-mapped table.
const DefaultPageTypeMask = types.PageTypePageTable | types.PageTypeReadOnly

// CachedMemoryAccess composes a backend physmem.PhysicalMemory, a
// PageCache, and a per-batch Arena, and itself implements
// physmem.PhysicalMemory -- a decorator, exactly like
// CachedMemoryAccess<T, Q> in the grounding source. A
// CachedMemoryAccess exclusively owns its backend, cache, and arena
// (spec.md §3 "Ownership").
type CachedMemoryAccess struct {
	mem   physmem.PhysicalMemory
	cache *PageCache
	arena *Arena
}

// NewCachedMemoryAccess wraps mem with cache, using arenaBytes of
// scratch space reset once per batched call.
func NewCachedMemoryAccess(mem physmem.PhysicalMemory, cache *PageCache, arenaBytes int) *CachedMemoryAccess {
	return &CachedMemoryAccess{mem: mem, cache: cache, arena: NewArena(arenaBytes)}
}

// Builder mirrors CachedMemoryAccessBuilder from the grounding source:
// a small fluent struct collecting the required fields before
// constructing a CachedMemoryAccess, returning ErrConfiguration (§7)
// for anything left unset.
type Builder struct {
	mem          physmem.PhysicalMemory
	validator    Validator
	pageSize     types.Length
	cacheSize    types.Length
	pageTypeMask types.PageType
	arenaBytes   int
}

// NewBuilder starts a Builder with the same defaults as the grounding
// source: 2 MiB of cache, PAGE_TABLE|READ_ONLY masked, and an arena
// sized to comfortably hold one miss per slot in the worst case.
func NewBuilder() *Builder {
	return &Builder{
		cacheSize:    types.MB(2),
		pageTypeMask: DefaultPageTypeMask,
	}
}

func (b *Builder) Mem(mem physmem.PhysicalMemory) *Builder {
	b.mem = mem
	return b
}

func (b *Builder) Validator(v Validator) *Builder {
	b.validator = v
	return b
}

func (b *Builder) PageSize(l types.Length) *Builder {
	b.pageSize = l
	return b
}

func (b *Builder) CacheSize(l types.Length) *Builder {
	b.cacheSize = l
	return b
}

func (b *Builder) PageTypeMask(pt types.PageType) *Builder {
	b.pageTypeMask = pt
	return b
}

func (b *Builder) ArenaBytes(n int) *Builder {
	b.arenaBytes = n
	return b
}

// ErrConfiguration is returned, wrapped, by Build when a required
// field (mem, validator, or page size) was never set (spec.md §7).
var ErrConfiguration = errors.New("configuration: missing required field")

// Build constructs the CachedMemoryAccess, failing with
// ErrConfiguration if mem, validator, or page size was never set.
func (b *Builder) Build() (*CachedMemoryAccess, error) {
	if b.mem == nil {
		return nil, fmt.Errorf("%w: mem must be initialized", ErrConfiguration)
	}
	if b.validator == nil {
		return nil, fmt.Errorf("%w: validator must be initialized", ErrConfiguration)
	}
	if b.pageSize == 0 {
		return nil, fmt.Errorf("%w: page_size must be initialized", ErrConfiguration)
	}
	arenaBytes := b.arenaBytes
	if arenaBytes == 0 {
		arenaBytes = int(uint64(b.cacheSize))
	}
	pc := NewPageCache(b.pageSize, b.cacheSize, b.pageTypeMask, b.validator)
	return NewCachedMemoryAccess(b.mem, pc, arenaBytes), nil
}

// PhysReadRawList implements physmem.PhysicalMemory by resetting the
// arena and delegating to the PageCache's read path.
func (c *CachedMemoryAccess) PhysReadRawList(ctx context.Context, reqs []physmem.ReadRequest) error {
	c.arena.Reset()
	return c.cache.CachedRead(ctx, c.mem, c.arena, reqs)
}

// PhysWriteRawList implements physmem.PhysicalMemory via the
// PageCache's write-through path.
func (c *CachedMemoryAccess) PhysWriteRawList(ctx context.Context, reqs []physmem.WriteRequest) error {
	return c.cache.CachedWrite(ctx, c.mem, reqs)
}

// Metadata forwards to the wrapped backend.
func (c *CachedMemoryAccess) Metadata() physmem.Metadata {
	return c.mem.Metadata()
}

// SetMemMap forwards to the wrapped backend.
func (c *CachedMemoryAccess) SetMemMap(ranges []physmem.MemoryMapRange) {
	c.mem.SetMemMap(ranges)
}

var _ physmem.PhysicalMemory = (*CachedMemoryAccess)(nil)
