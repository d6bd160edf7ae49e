package cache

import (
	"context"

	"github.com/tinyrange/memscope/physmem"
	"github.com/tinyrange/memscope/types"
)

// validState is the tri-state validity of a cache slot from spec.md §3.
type validState int

const (
	stateInvalid validState = iota
	stateValid
	// stateValidHole marks a slot the cache deliberately chose not to
	// populate (a chunk whose page type bypassed the mask); reserved
	// for a future associative design. The direct-mapped PageCache in
	// this package only ever uses Invalid/Valid.
	stateValidHole
)

// entry is one direct-mapped cache slot: either Invalid, or holding
// exactly PageSize bytes starting at an aligned base address
// (spec.md §4.3 "Invariants").
type entry struct {
	base     types.Address
	buf      []byte
	state    validState
	pageType types.PageType
}

// PageCache is the direct-mapped, write-through cache of spec.md
// §4.3. Number of slots = cacheBytes / pageSize. At most one entry
// per slot; a collision evicts the incumbent without write-back (the
// cache is authoritative-on-read, not a buffer).
type PageCache struct {
	pageSize     types.Length
	pageTypeMask types.PageType
	validator    Validator
	slots        []entry
}

// NewPageCache constructs a PageCache with cacheBytes/pageSize slots.
// Only chunks whose decoded page type intersects pageTypeMask are
// cached; everything else always forwards straight to the backend
// (spec.md §4.3 read step 3 / 6).
func NewPageCache(pageSize, cacheBytes types.Length, pageTypeMask types.PageType, validator Validator) *PageCache {
	n := int(uint64(cacheBytes) / uint64(pageSize))
	if n < 1 {
		n = 1
	}
	return &PageCache{
		pageSize:     pageSize,
		pageTypeMask: pageTypeMask,
		validator:    validator,
		slots:        make([]entry, n),
	}
}

// PageSize returns the cache's page granularity.
func (c *PageCache) PageSize() types.Length { return c.pageSize }

// IsCachedPageType reports whether pt intersects the cache's mask.
func (c *PageCache) IsCachedPageType(pt types.PageType) bool {
	return pt.Intersects(c.pageTypeMask)
}

func (c *PageCache) slotFor(base types.Address) int {
	pageNum := uint64(base) / uint64(c.pageSize)
	return int(pageNum % uint64(len(c.slots)))
}

// chunk is one page-aligned sub-range of a caller request, produced
// by splitting at page_size boundaries (spec.md §4.3 read step 2).
// offset locates callerBuf within the page starting at base.
type chunk struct {
	base      types.Address
	offset    int
	pageType  types.PageType
	callerBuf []byte
}

// splitAtPageBoundaries partitions (addr, buf) into page-aligned
// chunks against pageSize.
func splitAtPageBoundaries(pageSize types.Length, addr types.PhysicalAddress, buf []byte) []chunk {
	var chunks []chunk
	cur := addr.Address
	remaining := buf
	for len(remaining) > 0 {
		base := cur.Align(pageSize)
		offset := int(cur.PageOffset(pageSize))
		avail := int(uint64(pageSize)) - offset
		n := len(remaining)
		if avail < n {
			n = avail
		}
		chunks = append(chunks, chunk{
			base:      base,
			offset:    offset,
			pageType:  addr.PageType,
			callerBuf: remaining[:n],
		})
		remaining = remaining[n:]
		cur = cur.Add(types.LengthFromBytes(uint64(n)))
	}
	return chunks
}

// miss is one cache-populating backend read, keyed by the page it
// will install.
type miss struct {
	base    types.Address
	scratch []byte
	chunks  []chunk // every original chunk this page's scratch buffer must feed
}

// CachedRead implements spec.md §4.3's six-step read path: split into
// page-aligned chunks, serve masked-in chunks from valid slots,
// coalesce misses into one batched backend read alongside any
// masked-out bypass chunks, then install and copy out.
func (c *PageCache) CachedRead(ctx context.Context, mem physmem.PhysicalMemory, arena *Arena, reqs []physmem.ReadRequest) error {
	c.validator.UpdateValidity()

	var backendReqs []physmem.ReadRequest
	misses := make(map[types.Address]*miss)
	var missOrder []types.Address

	for _, req := range reqs {
		for _, ch := range splitAtPageBoundaries(c.pageSize, req.Addr, req.Buf) {
			if !c.IsCachedPageType(ch.pageType) {
				// Bypass: forward directly in the same batched call
				// (step 6), so it still costs at most one round-trip.
				backendReqs = append(backendReqs, physmem.ReadRequest{
					Addr: types.PhysicalAddress{Address: ch.base.Add(types.LengthFromBytes(uint64(ch.offset))), PageType: ch.pageType},
					Buf:  ch.callerBuf,
				})
				continue
			}

			slot := c.slotFor(ch.base)
			e := &c.slots[slot]
			if e.state == stateValid && e.base == ch.base && c.validator.IsValid(slot) {
				copy(ch.callerBuf, e.buf[ch.offset:])
				continue
			}

			m, ok := misses[ch.base]
			if !ok {
				scratch := arena.Alloc(int(c.pageSize))
				m = &miss{base: ch.base, scratch: scratch}
				misses[ch.base] = m
				missOrder = append(missOrder, ch.base)
			}
			m.chunks = append(m.chunks, ch)
		}
	}

	for _, base := range missOrder {
		m := misses[base]
		backendReqs = append(backendReqs, physmem.ReadRequest{
			Addr: types.PhysicalAddress{Address: base, PageType: types.PageTypeUnknown},
			Buf:  m.scratch,
		})
	}

	if len(backendReqs) > 0 {
		if err := mem.PhysReadRawList(ctx, backendReqs); err != nil {
			return err
		}
	}

	for _, base := range missOrder {
		m := misses[base]
		slot := c.slotFor(base)
		e := &c.slots[slot]
		e.base = base
		// The scratch buffer belongs to the arena and is reused after
		// the next Reset, so the slot keeps its own copy of the page.
		if len(e.buf) != len(m.scratch) {
			e.buf = make([]byte, len(m.scratch))
		}
		copy(e.buf, m.scratch)
		e.state = stateValid
		e.pageType = m.chunks[0].pageType
		if ttl, ok := c.validator.(*TTLValidator); ok {
			ttl.Stamp(slot)
		}
		for _, ch := range m.chunks {
			copy(ch.callerBuf, e.buf[ch.offset:])
		}
	}

	return nil
}

// CachedWrite implements spec.md §4.3's write path: in-place
// write-through update of still-valid slots, then an unconditional
// forward of every write to the backend in one batched call. Writes
// never allocate cache entries.
func (c *PageCache) CachedWrite(ctx context.Context, mem physmem.PhysicalMemory, reqs []physmem.WriteRequest) error {
	c.validator.UpdateValidity()

	for _, req := range reqs {
		if !c.IsCachedPageType(req.Addr.PageType) {
			continue
		}
		for _, ch := range splitAtPageBoundaries(c.pageSize, req.Addr, req.Buf) {
			slot := c.slotFor(ch.base)
			e := &c.slots[slot]
			if e.state == stateValid && e.base == ch.base {
				copy(e.buf[ch.offset:], ch.callerBuf)
			}
		}
	}

	return mem.PhysWriteRawList(ctx, reqs)
}
