package backend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tinyrange/memscope/backend"
	"github.com/tinyrange/memscope/physmem"
	"github.com/tinyrange/memscope/types"
)

func TestDummyReadWriteRoundTrip(t *testing.T) {
	mem := backend.NewDummy(4096)
	addr := types.PhysicalAddressFromAddress(0x100)
	want := []byte{1, 2, 3, 4}

	if err := physmem.PhysWriteRaw(context.Background(), mem, addr, want); err != nil {
		t.Fatalf("PhysWriteRaw: %v", err)
	}
	got, err := physmem.PhysReadRaw(context.Background(), mem, addr, 4)
	if err != nil {
		t.Fatalf("PhysReadRaw: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDummyOutOfBounds(t *testing.T) {
	mem := backend.NewDummy(16)
	_, err := physmem.PhysReadRaw(context.Background(), mem, types.PhysicalAddressFromAddress(10), 16)
	if !errors.Is(err, physmem.ErrOutOfBounds) {
		t.Errorf("err = %v, want ErrOutOfBounds", err)
	}
}

func TestDummyReadonly(t *testing.T) {
	mem := backend.NewDummy(16)
	mem.SetReadonly(true)
	err := physmem.PhysWriteRaw(context.Background(), mem, types.PhysicalAddressFromAddress(0), []byte{1})
	if !errors.Is(err, physmem.ErrReadOnly) {
		t.Errorf("err = %v, want ErrReadOnly", err)
	}
}

func TestDummyMetadata(t *testing.T) {
	mem := backend.NewDummy(4096)
	md := mem.Metadata()
	if md.Size != 4096 || md.Readonly {
		t.Errorf("Metadata() = %+v, want {Size:4096 Readonly:false}", md)
	}
}
