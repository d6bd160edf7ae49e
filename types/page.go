package types

import "strings"

// PageType is a bitflag set describing the protection/kind of a
// physical page, decoded from a page-table entry by the mmu walker.
type PageType uint32

const (
	// PageTypeUnknown means the backend/walker could not determine
	// the page's characteristics (e.g. the Null architecture).
	PageTypeUnknown PageType = 0
	// PageTypePageTable marks a page that itself holds page-table
	// entries rather than leaf data.
	PageTypePageTable PageType = 1 << iota
	// PageTypeWriteable marks a page the target can write to.
	PageTypeWriteable
	// PageTypeReadOnly marks a page the target cannot write to; it
	// is always the complement of PageTypeWriteable once decoded.
	PageTypeReadOnly
	// PageTypeNoExec marks a page the target cannot execute from.
	PageTypeNoExec
)

// Contains reports whether every bit set in mask is also set in p.
func (p PageType) Contains(mask PageType) bool {
	return p&mask == mask
}

// Intersects reports whether p and mask share any bit.
func (p PageType) Intersects(mask PageType) bool {
	return p&mask != 0
}

func (p PageType) String() string {
	if p == PageTypeUnknown {
		return "UNKNOWN"
	}
	var parts []string
	if p&PageTypePageTable != 0 {
		parts = append(parts, "PAGE_TABLE")
	}
	if p&PageTypeWriteable != 0 {
		parts = append(parts, "WRITEABLE")
	}
	if p&PageTypeReadOnly != 0 {
		parts = append(parts, "READ_ONLY")
	}
	if p&PageTypeNoExec != 0 {
		parts = append(parts, "NOEXEC")
	}
	if len(parts) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(parts, "|")
}

// PhysicalAddress pairs a physical Address with the advisory page
// metadata a walker or cache discovered along the way.
type PhysicalAddress struct {
	Address  Address
	PageType PageType
	// PageSize is the size of the page this address was resolved
	// from, when known. Zero means unknown.
	PageSize Length
}

// PhysicalAddressFromAddress builds an identity PhysicalAddress with
// no page metadata, used by the Null architecture (spec scenario S1).
func PhysicalAddressFromAddress(a Address) PhysicalAddress {
	return PhysicalAddress{Address: a, PageType: PageTypeUnknown}
}

// Add returns the PhysicalAddress offset by l, preserving page metadata.
func (pa PhysicalAddress) Add(l Length) PhysicalAddress {
	pa.Address = pa.Address.Add(l)
	return pa
}
