package arch

import (
	"context"

	"github.com/tinyrange/memscope/mmu"
	"github.com/tinyrange/memscope/physmem"
	"github.com/tinyrange/memscope/types"
)

// VirtToPhys translates a single virtual address against dtb. Null
// performs an identity translation with PageTypeUnknown (spec.md §8
// scenario S1); every other architecture drives mmu.Engine with its
// table's Spec.
func (a Architecture) VirtToPhys(ctx context.Context, engine *mmu.Engine, mem physmem.PhysicalMemory, dtb, addr types.Address) (types.PhysicalAddress, error) {
	res := a.VirtToPhysBatch(ctx, engine, mem, dtb, []types.Address{addr})
	return res[0].Physical, res[0].Err
}

// VirtToPhysBatch translates a whole batch of virtual addresses
// against one dtb in at most depth(spec) backend round-trips
// (spec.md §4.2 "Rationale for batching").
func (a Architecture) VirtToPhysBatch(ctx context.Context, engine *mmu.Engine, mem physmem.PhysicalMemory, dtb types.Address, addrs []types.Address) []mmu.TranslateResult {
	spec, ok := a.MMUSpec()
	if !ok {
		// Null architecture: identity translation, unconditionally.
		// Open question (a) in spec.md §9 is resolved in favor of the
		// grounding source: non-canonical addresses pass through
		// unchanged rather than being rejected.
		out := make([]mmu.TranslateResult, len(addrs))
		for i, addr := range addrs {
			out[i] = mmu.TranslateResult{Physical: types.PhysicalAddressFromAddress(addr)}
		}
		return out
	}
	return engine.TranslateBatch(ctx, mem, spec, dtb, addrs)
}
