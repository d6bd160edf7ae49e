package arch

import "github.com/tinyrange/memscope/mmu"

// x64Spec describes the 4-level, 4 KiB-granularity long-mode paging
// scheme. Grounded field-for-field on
// flow-core/src/architecture/x64.rs's get_mmu_spec().
var x64Spec = mmu.Spec{
	Name:                 "x86_64",
	VirtualAddressSplits: []uint{9, 9, 9, 9, 12},
	ValidFinalPageSteps:  map[int]bool{2: true, 3: true, 4: true},
	AddressSpaceBits:     52,
	PTESize:              8,
	PresentBit:           0,
	WriteableBit:         1,
	NXBit:                63,
	LargePageBit:         7,
}

// x86PAESpec describes 3-level paging with physical address
// extension: 2-bit PDPT index (4 entries), 9-bit PD/PT indices, 8-byte
// PTEs carrying a 36-bit physical address plus an NX bit. 2 MiB large
// pages terminate at the PD step; 4 KiB pages at the mandatory PT
// step. No large pages exist at the PDPT level in PAE mode.
var x86PAESpec = mmu.Spec{
	Name:                 "x86_pae",
	VirtualAddressSplits: []uint{2, 9, 9, 12},
	ValidFinalPageSteps:  map[int]bool{2: true, 3: true},
	AddressSpaceBits:     36,
	PTESize:              8,
	PresentBit:           0,
	WriteableBit:         1,
	NXBit:                63,
	LargePageBit:         7,
}

// x86Spec describes legacy 2-level 32-bit paging: 10-bit PD/PT
// indices, 4-byte PTEs, no NX bit (requires PAE/long mode). 4 MiB
// large pages terminate at the PD step; 4 KiB pages at the mandatory
// PT step.
var x86Spec = mmu.Spec{
	Name:                 "x86",
	VirtualAddressSplits: []uint{10, 10, 12},
	ValidFinalPageSteps:  map[int]bool{1: true, 2: true},
	AddressSpaceBits:     32,
	PTESize:              4,
	PresentBit:           0,
	WriteableBit:         1,
	// NXBit has no hardware meaning without PAE; parked on a bit that
	// a 4-byte PTE (zero-extended into a uint64) can never set.
	NXBit:        63,
	LargePageBit: 7,
}
