package cache_test

import (
	"testing"

	"github.com/tinyrange/memscope/cache"
)

func TestTTLValidatorExpiresAfterWindow(t *testing.T) {
	tick := int64(0)
	v := cache.NewTTLValidator(10, func() int64 { return tick })

	v.UpdateValidity()
	v.Stamp(3)
	if !v.IsValid(3) {
		t.Fatalf("slot 3 should be valid immediately after Stamp")
	}

	tick = 9
	v.UpdateValidity()
	if !v.IsValid(3) {
		t.Errorf("slot 3 should still be valid at tick 9 (< TTL 10)")
	}

	tick = 10
	v.UpdateValidity()
	if v.IsValid(3) {
		t.Errorf("slot 3 should have expired at tick 10 (>= TTL 10)")
	}
}

func TestTTLValidatorUnstampedSlotIsInvalid(t *testing.T) {
	v := cache.NewTTLValidator(10, func() int64 { return 0 })
	v.UpdateValidity()
	if v.IsValid(99) {
		t.Errorf("never-stamped slot should be invalid")
	}
}

func TestTTLValidatorInvalidate(t *testing.T) {
	v := cache.NewTTLValidator(100, func() int64 { return 0 })
	v.UpdateValidity()
	v.Stamp(1)
	v.Invalidate(1)
	if v.IsValid(1) {
		t.Errorf("slot 1 should be invalid after Invalidate")
	}
}
