// =============================================================================
// REPLAY APPLIER TESTS
// =============================================================================

package registry

import (
	"errors"
	"testing"
)

func TestApplier_ApplyRawRoundTrip(t *testing.T) {
	store := NewStore(CompatibilityNone)
	a := NewApplier(store, nil)

	key := &SchemaKey{Seq: 0, Node: 1, Subject: "orders-value", Version: 1}
	value := &SchemaValue{Subject: "orders-value", Version: 1, ID: 1, Type: SchemaTypeJSON, Definition: schemaA}
	if err := a.ApplyRaw(0, key.Encode(), value.Encode()); err != nil {
		t.Fatalf("ApplyRaw failed: %v", err)
	}

	ss, err := store.GetSubjectSchema("orders-value", 1, false)
	if err != nil || ss.ID != 1 || ss.Definition != schemaA {
		t.Errorf("applied entry not visible: %+v, %v", ss, err)
	}

	// Tombstone via raw path removes it again.
	if err := a.ApplyRaw(1, key.Encode(), nil); err != nil {
		t.Fatalf("tombstone ApplyRaw failed: %v", err)
	}
	if got := store.ListSubjects(true); len(got) != 0 {
		t.Errorf("subject should be gone, got %v", got)
	}
}

func TestApplier_KindMismatchIsCorruption(t *testing.T) {
	a := NewApplier(NewStore(CompatibilityNone), nil)

	key := &SchemaKey{Seq: 0, Node: 1, Subject: "s", Version: 1}
	value := &ConfigValue{Compatibility: CompatibilityFull}
	if err := a.Apply(0, key, value); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestApplier_ApplyRawRejectsGarbage(t *testing.T) {
	a := NewApplier(NewStore(CompatibilityNone), nil)
	if err := a.ApplyRaw(0, []byte("garbage"), nil); err == nil {
		t.Error("garbage key must not apply cleanly")
	}
}
