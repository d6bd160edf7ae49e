package physmem_test

import (
	"context"
	"testing"

	"github.com/tinyrange/memscope/backend"
	"github.com/tinyrange/memscope/physmem"
	"github.com/tinyrange/memscope/types"
)

func TestBatcherCoalescesIntoOneCall(t *testing.T) {
	mem := backend.NewDummy(4096)
	mem.WriteAt(0, []byte{1, 2, 3, 4})
	mem.WriteAt(0x100, []byte{5, 6, 7, 8})

	b := physmem.NewBatcher(mem)
	buf1 := make([]byte, 4)
	buf2 := make([]byte, 4)
	b.Read(physmem.ReadRequest{Addr: types.PhysicalAddressFromAddress(0), Buf: buf1})
	b.Read(physmem.ReadRequest{Addr: types.PhysicalAddressFromAddress(0x100), Buf: buf2})

	if buf1[0] != 0 {
		t.Fatalf("buf1 populated before Flush")
	}

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if string(buf1) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("buf1 = %v, want [1 2 3 4]", buf1)
	}
	if string(buf2) != string([]byte{5, 6, 7, 8}) {
		t.Errorf("buf2 = %v, want [5 6 7 8]", buf2)
	}
}

func TestBatcherFlushesReadsBeforeWrites(t *testing.T) {
	mem := backend.NewDummy(4096)
	mem.WriteAt(0, []byte{0xAA})

	b := physmem.NewBatcher(mem)
	readBuf := make([]byte, 1)
	b.Read(physmem.ReadRequest{Addr: types.PhysicalAddressFromAddress(0), Buf: readBuf})
	b.Write(physmem.WriteRequest{Addr: types.PhysicalAddressFromAddress(0), Buf: []byte{0xBB}})

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if readBuf[0] != 0xAA {
		t.Errorf("readBuf[0] = %#x, want 0xAA (read must observe pre-write state)", readBuf[0])
	}

	out := make([]byte, 1)
	physmem.PhysReadRawInto(context.Background(), mem, types.PhysicalAddressFromAddress(0), out)
	if out[0] != 0xBB {
		t.Errorf("post-flush value = %#x, want 0xBB", out[0])
	}
}

func TestCloseOnEmptyBatcherIsNoop(t *testing.T) {
	mem := backend.NewDummy(16)
	b := physmem.NewBatcher(mem)
	if err := b.Close(context.Background()); err != nil {
		t.Errorf("Close on empty batcher: %v", err)
	}
}
