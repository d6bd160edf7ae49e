package cache_test

import (
	"context"
	"testing"

	"github.com/tinyrange/memscope/backend"
	"github.com/tinyrange/memscope/cache"
	"github.com/tinyrange/memscope/physmem"
	"github.com/tinyrange/memscope/types"
)

// countingMem wraps a backend.Dummy and counts PhysReadRawList calls,
// so tests can assert a cache hit never reaches the backend.
type countingMem struct {
	*backend.Dummy
	reads int
}

func (c *countingMem) PhysReadRawList(ctx context.Context, reqs []physmem.ReadRequest) error {
	c.reads++
	return c.Dummy.PhysReadRawList(ctx, reqs)
}

func newCountingMem(size uint64) *countingMem {
	return &countingMem{Dummy: backend.NewDummy(size)}
}

// TestCachedReadHitsAvoidBackend covers spec.md §8 scenario S5: a
// second read of the same cached page must not touch the backend.
func TestCachedReadHitsAvoidBackend(t *testing.T) {
	mem := newCountingMem(types.MB(1).AsBytes())
	mem.WriteAt(0x1000, []byte{1, 2, 3, 4})

	pc := cache.NewPageCache(types.KB(4), types.KB(64), types.PageTypePageTable, cache.AlwaysValidator{})
	arena := cache.NewArena(int(types.KB(64)))

	addr := types.PhysicalAddress{Address: 0x1000, PageType: types.PageTypePageTable}
	buf := make([]byte, 4)

	if err := pc.CachedRead(context.Background(), mem, arena, []physmem.ReadRequest{{Addr: addr, Buf: buf}}); err != nil {
		t.Fatalf("CachedRead (miss): %v", err)
	}
	if mem.reads != 1 {
		t.Fatalf("reads after first CachedRead = %d, want 1", mem.reads)
	}

	arena.Reset()
	buf2 := make([]byte, 4)
	if err := pc.CachedRead(context.Background(), mem, arena, []physmem.ReadRequest{{Addr: addr, Buf: buf2}}); err != nil {
		t.Fatalf("CachedRead (hit): %v", err)
	}
	if mem.reads != 1 {
		t.Errorf("reads after second CachedRead = %d, want 1 (should have hit the cache)", mem.reads)
	}
	if string(buf2) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("buf2 = %v, want [1 2 3 4]", buf2)
	}
}

// TestCachedWriteThroughUpdatesBothLayers covers spec.md §8 scenario
// S6: a write to a cached page updates the cache slot in place and is
// still forwarded to the backend.
func TestCachedWriteThroughUpdatesBothLayers(t *testing.T) {
	mem := newCountingMem(types.MB(1).AsBytes())
	pc := cache.NewPageCache(types.KB(4), types.KB(64), types.PageTypePageTable, cache.AlwaysValidator{})
	arena := cache.NewArena(int(types.KB(64)))

	addr := types.PhysicalAddress{Address: 0x2000, PageType: types.PageTypePageTable}

	// Prime the cache slot.
	primed := make([]byte, 4)
	if err := pc.CachedRead(context.Background(), mem, arena, []physmem.ReadRequest{{Addr: addr, Buf: primed}}); err != nil {
		t.Fatalf("CachedRead: %v", err)
	}

	newData := []byte{9, 9, 9, 9}
	if err := pc.CachedWrite(context.Background(), mem, []physmem.WriteRequest{{Addr: addr, Buf: newData}}); err != nil {
		t.Fatalf("CachedWrite: %v", err)
	}

	// The backend must have received the write.
	out := make([]byte, 4)
	mem.PhysReadRawList(context.Background(), []physmem.ReadRequest{{Addr: addr, Buf: out}})
	if string(out) != string(newData) {
		t.Errorf("backend after write = %v, want %v", out, newData)
	}

	// A subsequent cached read must reflect the new data without a
	// further backend round-trip.
	readsBefore := mem.reads
	after := make([]byte, 4)
	if err := pc.CachedRead(context.Background(), mem, arena, []physmem.ReadRequest{{Addr: addr, Buf: after}}); err != nil {
		t.Fatalf("CachedRead after write: %v", err)
	}
	if string(after) != string(newData) {
		t.Errorf("cached read after write = %v, want %v", after, newData)
	}
	if mem.reads != readsBefore {
		t.Errorf("CachedRead after write-through caused a backend read: %d -> %d", readsBefore, mem.reads)
	}
}

// TestCachedReadBypassesUncachedPageTypes ensures a page type outside
// the cache's mask always forwards straight to the backend and is
// never installed into a slot.
func TestCachedReadBypassesUncachedPageTypes(t *testing.T) {
	mem := newCountingMem(types.MB(1).AsBytes())
	mem.WriteAt(0x3000, []byte{5, 5, 5, 5})

	pc := cache.NewPageCache(types.KB(4), types.KB(64), types.PageTypePageTable, cache.AlwaysValidator{})
	arena := cache.NewArena(int(types.KB(64)))

	addr := types.PhysicalAddress{Address: 0x3000, PageType: types.PageTypeWriteable}
	buf := make([]byte, 4)
	if err := pc.CachedRead(context.Background(), mem, arena, []physmem.ReadRequest{{Addr: addr, Buf: buf}}); err != nil {
		t.Fatalf("CachedRead: %v", err)
	}
	if mem.reads != 1 {
		t.Fatalf("reads = %d, want 1", mem.reads)
	}

	arena.Reset()
	buf2 := make([]byte, 4)
	if err := pc.CachedRead(context.Background(), mem, arena, []physmem.ReadRequest{{Addr: addr, Buf: buf2}}); err != nil {
		t.Fatalf("CachedRead: %v", err)
	}
	if mem.reads != 2 {
		t.Errorf("reads = %d, want 2 (bypass page type must never be cached)", mem.reads)
	}
}

// TestNeverValidatorAlwaysMisses covers the disabled-cache posture:
// every read reaches the backend even for a page it just installed.
func TestNeverValidatorAlwaysMisses(t *testing.T) {
	mem := newCountingMem(types.MB(1).AsBytes())
	pc := cache.NewPageCache(types.KB(4), types.KB(64), types.PageTypePageTable, cache.NeverValidator{})
	arena := cache.NewArena(int(types.KB(64)))

	addr := types.PhysicalAddress{Address: 0x4000, PageType: types.PageTypePageTable}
	for i := 0; i < 3; i++ {
		arena.Reset()
		buf := make([]byte, 4)
		if err := pc.CachedRead(context.Background(), mem, arena, []physmem.ReadRequest{{Addr: addr, Buf: buf}}); err != nil {
			t.Fatalf("CachedRead[%d]: %v", i, err)
		}
	}
	if mem.reads != 3 {
		t.Errorf("reads = %d, want 3 (NeverValidator must miss every time)", mem.reads)
	}
}

// TestCachedReadCrossPageSplit covers a caller buffer spanning two
// page-aligned chunks, each served independently.
func TestCachedReadCrossPageSplit(t *testing.T) {
	mem := newCountingMem(types.MB(1).AsBytes())
	page := make([]byte, 4096)
	for i := range page {
		page[i] = byte(i)
	}
	mem.WriteAt(0, page)
	mem.WriteAt(4096, page)

	pc := cache.NewPageCache(types.KB(4), types.KB(64), types.PageTypePageTable, cache.AlwaysValidator{})
	arena := cache.NewArena(int(types.KB(64)))

	addr := types.PhysicalAddress{Address: 4090, PageType: types.PageTypePageTable}
	buf := make([]byte, 12) // spans [4090,4096) and [4096,4102)
	if err := pc.CachedRead(context.Background(), mem, arena, []physmem.ReadRequest{{Addr: addr, Buf: buf}}); err != nil {
		t.Fatalf("CachedRead: %v", err)
	}
	for i := 0; i < 6; i++ {
		if buf[i] != byte(4090+i) {
			t.Errorf("buf[%d] = %d, want %d", i, buf[i], byte(4090+i))
		}
	}
	for i := 6; i < 12; i++ {
		if buf[i] != byte(i-6) {
			t.Errorf("buf[%d] = %d, want %d", i, buf[i], byte(i-6))
		}
	}
}
