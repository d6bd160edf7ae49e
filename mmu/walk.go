package mmu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyrange/memscope/physmem"
	"github.com/tinyrange/memscope/types"
)

var (
	// ErrPageNotPresent is returned for a slot whose walk encountered
	// a PTE with the present bit clear.
	ErrPageNotPresent = errors.New("mmu: page not present")
	// ErrInvalidPageTable is returned for a slot whose walk followed
	// a PTE referencing physical bits above the architecture's
	// address_space_bits.
	ErrInvalidPageTable = errors.New("mmu: pte references address outside address space")
)

// TranslateResult is the per-slot outcome of a batched translation,
// reported positionally against the input batch (spec.md §4.2
// "Ordering guarantee").
type TranslateResult struct {
	Physical types.PhysicalAddress
	Err      error
}

// Engine performs the batched page-table walk of spec.md §4.2. It
// holds no state of its own; every call borrows the physical-memory
// handle and a DTB for its duration (spec.md §3 "Ownership").
type Engine struct {
	// Log, if non-nil, receives per-step diagnostics. Nil-safe.
	Log *slog.Logger
}

// workItem tracks one in-flight virtual address through the walk.
type workItem struct {
	slot  int
	virt  types.Address
	frame types.Address
}

// pteRead is one de-duplicated physical read: many workItems can
// share the same pteAddr when their walks converge on the same table
// entry (spec.md §4.2 phase 1, step 2).
type pteRead struct {
	addr    types.PhysicalAddress
	buf     []byte
	members []int // indices into the workItem slice sharing this PTE address
}

func (e *Engine) log() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// TranslateBatch resolves every address in virts against dtb using
// spec, issuing at most spec.Depth() batched backend reads regardless
// of len(virts) (spec.md §4.2 "Rationale for batching").
func (e *Engine) TranslateBatch(ctx context.Context, mem physmem.PhysicalMemory, spec Spec, dtb types.Address, virts []types.Address) []TranslateResult {
	results := make([]TranslateResult, len(virts))

	work := make([]workItem, len(virts))
	for i, v := range virts {
		work[i] = workItem{slot: i, virt: v, frame: dtb}
	}

	for step := 1; step <= spec.Depth() && len(work) > 0; step++ {
		next, err := e.stepOnce(ctx, mem, spec, step, work, results)
		if err != nil {
			// A backend failure is fatal to the whole batch
			// (spec.md §7): every unresolved slot gets the error.
			for _, w := range work {
				results[w.slot] = TranslateResult{Err: err}
			}
			return results
		}
		work = next
	}

	return results
}

// Translate resolves a single virtual address; a thin wrapper around
// TranslateBatch matching spec.md §8 property 7
// (translate_iter([v])[0] == translate(v)).
func (e *Engine) Translate(ctx context.Context, mem physmem.PhysicalMemory, spec Spec, dtb types.Address, virt types.Address) (types.PhysicalAddress, error) {
	res := e.TranslateBatch(ctx, mem, spec, dtb, []types.Address{virt})
	return res[0].Physical, res[0].Err
}

// stepOnce performs one walk phase: compute PTE addresses, coalesce
// duplicates, issue one batched read, decode, and either emit a leaf
// result or carry the item forward to the next step.
func (e *Engine) stepOnce(ctx context.Context, mem physmem.PhysicalMemory, spec Spec, step int, work []workItem, results []TranslateResult) ([]workItem, error) {
	pteSize := types.Length(spec.PTESize)

	dedup := make(map[types.Address]int, len(work))
	var reads []pteRead

	for i, w := range work {
		idx := spec.Index(w.virt, step)
		pteAddr := w.frame.Add(types.LengthFromBytes(uint64(spec.PTESize) * idx))

		if ri, ok := dedup[pteAddr]; ok {
			reads[ri].members = append(reads[ri].members, i)
			continue
		}
		buf := make([]byte, pteSize)
		dedup[pteAddr] = len(reads)
		reads = append(reads, pteRead{
			addr:    types.PhysicalAddress{Address: pteAddr, PageType: types.PageTypePageTable},
			buf:     buf,
			members: []int{i},
		})
	}

	reqs := make([]physmem.ReadRequest, len(reads))
	for i, r := range reads {
		reqs[i] = physmem.ReadRequest{Addr: r.addr, Buf: r.buf}
	}
	if err := mem.PhysReadRawList(ctx, reqs); err != nil {
		return nil, fmt.Errorf("mmu: step %d pte read: %w", step, err)
	}

	e.log().Debug("mmu step", "step", step, "unique_ptes", len(reads), "items", len(work))

	var next []workItem
	for _, r := range reads {
		pte := decodePTE(r.buf, spec.PTESize)

		for _, idx := range r.members {
			w := work[idx]

			if pte&(1<<spec.PresentBit) == 0 {
				results[w.slot] = TranslateResult{Err: ErrPageNotPresent}
				continue
			}

			if addrFieldExceedsAddressSpace(pte, spec) {
				results[w.slot] = TranslateResult{Err: ErrInvalidPageTable}
				continue
			}
			frameField := pteAddrField(pte, spec)

			largeBitSet := pte&(1<<spec.LargePageBit) != 0
			if spec.IsLeafStep(step, largeBitSet) {
				pageBase := frameField &^ spec.offsetMask(step)
				offset := uint64(w.virt) & spec.offsetMask(step)
				results[w.slot] = TranslateResult{
					Physical: types.PhysicalAddress{
						Address:  types.Address(pageBase | offset),
						PageType: decodePageType(pte, spec, step == spec.Depth()),
						PageSize: spec.PageSizeAtStep(step),
					},
				}
				continue
			}

			next = append(next, workItem{slot: w.slot, virt: w.virt, frame: types.Address(frameField)})
		}
	}

	return next, nil
}

// decodePTE reads a pteSize-byte little-endian page-table entry.
func decodePTE(buf []byte, pteSize uint) uint64 {
	switch pteSize {
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	default:
		panic(fmt.Sprintf("mmu: unsupported pte size %d", pteSize))
	}
}

const lowFlagBits = 12

// rawAddrField clears the low flag bits and the NX bit (both
// protection/flag bits, never part of the address), leaving whatever
// address bits the PTE actually carries -- including any bits a
// corrupt or unsupported PTE might have set above address_space_bits.
func rawAddrField(pte uint64, spec Spec) uint64 {
	field := pte &^ (uint64(1)<<lowFlagBits - 1)
	field &^= uint64(1) << spec.NXBit
	return field
}

// addrFieldExceedsAddressSpace reports whether pte's address field has
// any bit set above address_space_bits (spec.md §4.2 step 4).
func addrFieldExceedsAddressSpace(pte uint64, spec Spec) bool {
	return rawAddrField(pte, spec)>>spec.AddressSpaceBits != 0
}

// pteAddrField extracts the physical frame address encoded in pte,
// masking off the protection bits above address_space_bits as well as
// the low flag bits below the smallest possible page (4 KiB).
func pteAddrField(pte uint64, spec Spec) uint64 {
	const lowFlagBits = 12
	addrMask := (uint64(1)<<spec.AddressSpaceBits - 1) &^ (uint64(1)<<lowFlagBits - 1)
	return pte & addrMask
}

// decodePageType decodes the PAGE_TABLE/WRITEABLE/READ_ONLY/NOEXEC
// bits from a leaf PTE, per spec.md §4.2 "Decoded page type".
func decodePageType(pte uint64, spec Spec, fromPageTablePage bool) types.PageType {
	var pt types.PageType
	if pte&(1<<spec.WriteableBit) != 0 {
		pt |= types.PageTypeWriteable
	} else {
		pt |= types.PageTypeReadOnly
	}
	if pte&(1<<spec.NXBit) != 0 {
		pt |= types.PageTypeNoExec
	}
	if fromPageTablePage {
		pt |= types.PageTypePageTable
	}
	return pt
}
