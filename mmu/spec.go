// Package mmu implements the batched, spec-polymorphic page-table
// walker described in spec.md §4.2: a single translation engine
// driven by a declarative description of a paging scheme (a Spec),
// capable of resolving a whole batch of virtual addresses against one
// directory-table-base in at most depth(Spec) backend round-trips.
package mmu

import "github.com/tinyrange/memscope/types"

// Spec is a frozen description of an x86-family paging scheme. It
// carries no behavior; the Engine in walk.go interprets any Spec
// uniformly (spec.md §9: "architecture family as data, not
// inheritance"). Field values for the three supported schemes are
// grounded on flow-core/src/architecture/x64.rs's get_mmu_spec() and
// its x86/x86_pae counterparts.
//
// Steps are numbered 1..Depth(), matching spec.md §4.2's "Phase 1..n".
// VirtualAddressSplits holds Depth()+1 entries: one index-field width
// per step, most significant first, terminated by the page-offset
// width (which is never itself a step).
type Spec struct {
	// Name is used only for diagnostics and trace logging.
	Name string

	// VirtualAddressSplits are the bit-widths of the index fields,
	// most significant first, terminated by the page-offset width.
	// e.g. x86_64 4-level = {9, 9, 9, 9, 12}.
	VirtualAddressSplits []uint

	// ValidFinalPageSteps are the 1-based step numbers at which a
	// leaf may terminate the walk, supporting large/huge pages.
	// e.g. x86_64 = {2, 3, 4}: 1 GiB at the PDPT step, 2 MiB at the
	// PD step, 4 KiB at the mandatory final PT step.
	ValidFinalPageSteps map[int]bool

	// AddressSpaceBits is the width of the physical address space;
	// any PTE referencing bits above this is InvalidPageTable.
	AddressSpaceBits uint

	// PTESize is the byte size of one page-table entry.
	PTESize uint

	PresentBit   uint
	WriteableBit uint
	NXBit        uint
	LargePageBit uint
}

// Depth is the number of table-walk steps (not counting the
// page-offset field that terminates VirtualAddressSplits).
func (s Spec) Depth() int {
	return len(s.VirtualAddressSplits) - 1
}

// indexWidth returns the bit width of the index field consumed at the
// given 1-based step.
func (s Spec) indexWidth(step int) uint {
	return s.VirtualAddressSplits[step-1]
}

// trailingBits returns the number of virtual-address bits that lie at
// or below the index field consumed at the given 1-based step: every
// split entry strictly after it, summed. This is both the shift
// needed to extract that step's index, and (when the step is a leaf)
// the page-offset width of the resulting page.
func (s Spec) trailingBits(step int) uint {
	var bits uint
	for i := step; i < len(s.VirtualAddressSplits); i++ {
		bits += s.VirtualAddressSplits[i]
	}
	return bits
}

// Index extracts the table-index bits virt selects at the given
// 1-based step.
func (s Spec) Index(virt types.Address, step int) uint64 {
	shift := s.trailingBits(step)
	width := s.indexWidth(step)
	mask := uint64(1)<<width - 1
	return (uint64(virt) >> shift) & mask
}

// PageSizeAtStep returns the size, in bytes, of a leaf page completed
// at the given 1-based step.
func (s Spec) PageSizeAtStep(step int) types.Length {
	return types.Length(1) << s.trailingBits(step)
}

// offsetMask returns the bitmask selecting the in-page offset for a
// leaf completed at the given step.
func (s Spec) offsetMask(step int) uint64 {
	return uint64(s.PageSizeAtStep(step)) - 1
}

// IsLeafStep reports whether a PTE resolved at the given 1-based step
// may terminate the walk: either it is the mandatory final step, or
// the decoded large-page bit says so and the architecture allows a
// large page at this step.
func (s Spec) IsLeafStep(step int, largePageBitSet bool) bool {
	if !s.ValidFinalPageSteps[step] {
		return false
	}
	return step == s.Depth() || largePageBitSet
}
