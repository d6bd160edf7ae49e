// Package cache implements the fixed-capacity, page-aligned,
// write-through physical-page cache of spec.md §4.3, layered over any
// physmem.PhysicalMemory and parameterized by a Validator oracle.
//
// Grounded on flow-core/src/mem/cache/cached_memory_access.rs
// (CachedMemoryAccess, CachedMemoryAccessBuilder) and spec.md §4.3's
// explicit six-step read path and write-through write path.
package cache

// Validator decides whether a cached page is still authoritative.
// UpdateValidity is called exactly once per batched operation;
// IsValid(slot) is only meaningful after that call has happened for
// the current batch (spec.md §4.3 "Validator contract").
type Validator interface {
	UpdateValidity()
	IsValid(slot int) bool
}

// NeverValidator never considers a cached slot valid: every read is a
// backend miss. Useful as a pass-through/disabled cache.
type NeverValidator struct{}

func (NeverValidator) UpdateValidity()  {}
func (NeverValidator) IsValid(int) bool { return false }

// AlwaysValidator considers every installed slot valid forever, once
// written. It never calls out to a clock. The cache tests use it so a
// repeated read is always a hit, and connector uses it whenever no TTL
// is configured; it suits a backing store that is immutable for the
// lifetime of the cache (e.g. a frozen crash dump).
type AlwaysValidator struct{}

func (AlwaysValidator) UpdateValidity()  {}
func (AlwaysValidator) IsValid(int) bool { return true }

// TTLValidator grants a slot validity for a fixed duration after
// install, the way a live hypervisor-backed cache would tolerate a
// small amount of staleness between backend round-trips. Clock is
// injected so tests don't depend on wall-clock time.
type TTLValidator struct {
	TTL   int64 // ticks
	Clock func() int64

	stamps map[int]int64
	now    int64
}

// NewTTLValidator constructs a validator granting ttlTicks of
// validity per slot, using clock() to read the current tick.
func NewTTLValidator(ttlTicks int64, clock func() int64) *TTLValidator {
	return &TTLValidator{TTL: ttlTicks, Clock: clock, stamps: make(map[int]int64)}
}

// UpdateValidity samples the clock once for this batch.
func (v *TTLValidator) UpdateValidity() {
	v.now = v.Clock()
}

// IsValid reports whether slot was stamped within the TTL window as
// of the last UpdateValidity call.
func (v *TTLValidator) IsValid(slot int) bool {
	stamp, ok := v.stamps[slot]
	if !ok {
		return false
	}
	return v.now-stamp < v.TTL
}

// Stamp records slot as having just been installed, valid for TTL
// ticks starting from the last UpdateValidity sample.
func (v *TTLValidator) Stamp(slot int) {
	v.stamps[slot] = v.now
}

// Invalidate forgets slot, so the next IsValid reports false until
// Stamp is called again.
func (v *TTLValidator) Invalidate(slot int) {
	delete(v.stamps, slot)
}
