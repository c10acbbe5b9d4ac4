// =============================================================================
// MATERIALIZED STORE TESTS
// =============================================================================
//
// WHAT WE'RE TESTING:
//   1. Projection: ID/version assignment, content-addressed reuse, no-op
//      detection for live identical schemas
//   2. Soft-delete visibility rules (versions, subjects, listings)
//   3. Seq-marker bookkeeping for permanent deletion
//   4. Tombstone application converges regardless of arrival order
//
// Tests drive the store the way the sequencer does: through the applier's
// mutation surface, never by poking fields.
//
// =============================================================================

package registry

import (
	"errors"
	"testing"
)

const schemaA = `{"type":"object","properties":{"id":{"type":"integer"}}}`
const schemaB = `{"type":"object","properties":{"name":{"type":"string"}}}`

// applyRegistration folds a registration entry the way a landed write would.
func applyRegistration(t *testing.T, s *Store, offset int64, subject string, definition string) Projection {
	t.Helper()
	p := s.Project(subject, SchemaTypeJSON, definition)
	if !p.Inserted {
		return p
	}
	s.applySchema(
		&SchemaKey{Seq: offset, Node: 0, Subject: subject, Version: p.Version},
		&SchemaValue{Subject: subject, Version: p.Version, ID: p.ID, Type: SchemaTypeJSON, Definition: definition},
	)
	return p
}

func TestStore_ProjectAssignsSequentialVersions(t *testing.T) {
	s := NewStore(CompatibilityNone)

	p1 := applyRegistration(t, s, 0, "orders-value", schemaA)
	if p1.ID != 1 || p1.Version != 1 || !p1.Inserted {
		t.Fatalf("first registration: got %+v", p1)
	}

	p2 := applyRegistration(t, s, 1, "orders-value", schemaB)
	if p2.ID != 2 || p2.Version != 2 || !p2.Inserted {
		t.Fatalf("second registration: got %+v", p2)
	}
}

func TestStore_ProjectIsIdempotentForLiveSchema(t *testing.T) {
	s := NewStore(CompatibilityNone)
	applyRegistration(t, s, 0, "orders-value", schemaA)

	// Identical schema modulo whitespace must be a no-op with the same ID.
	spaced := `{ "type": "object", "properties": { "id": { "type": "integer" } } }`
	p := s.Project("orders-value", SchemaTypeJSON, spaced)
	if p.Inserted {
		t.Errorf("expected no-op projection for identical schema, got %+v", p)
	}
	if p.ID != 1 || p.Version != 1 {
		t.Errorf("expected id=1 version=1, got %+v", p)
	}
}

func TestStore_ContentAddressedIDReusedAcrossSubjects(t *testing.T) {
	s := NewStore(CompatibilityNone)
	p1 := applyRegistration(t, s, 0, "orders-value", schemaA)
	p2 := applyRegistration(t, s, 1, "users-value", schemaA)

	if !p2.Inserted {
		t.Fatal("registration under a new subject must insert a version")
	}
	if p2.ID != p1.ID {
		t.Errorf("identical schema must reuse ID: got %d and %d", p1.ID, p2.ID)
	}
	if p2.Version != 1 {
		t.Errorf("new subject starts at version 1, got %d", p2.Version)
	}
}

func TestStore_SoftDeletedVersionHidden(t *testing.T) {
	s := NewStore(CompatibilityNone)
	p := applyRegistration(t, s, 0, "orders-value", schemaA)
	applyRegistration(t, s, 1, "orders-value", schemaB)

	// Soft delete version 1.
	s.applySchema(
		&SchemaKey{Seq: 2, Node: 0, Subject: "orders-value", Version: 1},
		&SchemaValue{Subject: "orders-value", Version: 1, ID: p.ID, Type: SchemaTypeJSON, Definition: schemaA, Deleted: true},
	)

	if _, err := s.GetSubjectSchema("orders-value", 1, false); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("soft-deleted version should be hidden, got %v", err)
	}
	if ss, err := s.GetSubjectSchema("orders-value", 1, true); err != nil || !ss.Deleted {
		t.Errorf("includeDeleted should surface it with the flag set, got %+v, %v", ss, err)
	}

	versions, err := s.GetVersions("orders-value", false)
	if err != nil || len(versions) != 1 || versions[0] != 2 {
		t.Errorf("live versions: got %v, %v", versions, err)
	}

	// Re-registering the soft-deleted body must insert a NEW version; the
	// deleted one doesn't count as live.
	p3 := s.Project("orders-value", SchemaTypeJSON, schemaA)
	if !p3.Inserted || p3.Version != 3 {
		t.Errorf("re-registration after soft delete: got %+v", p3)
	}
	if p3.ID != p.ID {
		t.Errorf("re-registration must reuse the content ID %d, got %d", p.ID, p3.ID)
	}
}

func TestStore_FullySoftDeletedSubjectHiddenFromListings(t *testing.T) {
	s := NewStore(CompatibilityNone)
	applyRegistration(t, s, 0, "orders-value", schemaA)
	s.applyDeleteSubject(
		&DeleteSubjectKey{Seq: 1, Node: 0, Subject: "orders-value"},
		&DeleteSubjectValue{Subject: "orders-value", Version: 1},
	)

	if got := s.ListSubjects(false); len(got) != 0 {
		t.Errorf("deleted subject should be hidden, got %v", got)
	}
	if got := s.ListSubjects(true); len(got) != 1 {
		t.Errorf("deleted=true should list it, got %v", got)
	}
	if !s.IsDeleted("orders-value") {
		t.Error("IsDeleted should report true")
	}
	if _, err := s.GetVersions("orders-value", false); !errors.Is(err, ErrSubjectNotFound) {
		t.Errorf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestStore_WrittenAtRequiresSoftDelete(t *testing.T) {
	s := NewStore(CompatibilityNone)
	applyRegistration(t, s, 0, "orders-value", schemaA)

	if _, err := s.WrittenAt("orders-value"); !errors.Is(err, ErrNotSoftDeleted) {
		t.Errorf("expected ErrNotSoftDeleted, got %v", err)
	}
	if _, err := s.VersionWrittenAt("orders-value", 1); !errors.Is(err, ErrNotSoftDeleted) {
		t.Errorf("expected ErrNotSoftDeleted, got %v", err)
	}
	if _, err := s.WrittenAt("missing"); !errors.Is(err, ErrSubjectNotFound) {
		t.Errorf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestStore_WrittenAtCollectsAllMarkers(t *testing.T) {
	s := NewStore(CompatibilityNone)
	p := applyRegistration(t, s, 0, "orders-value", schemaA)

	// Subject-scoped config write, then soft delete of the version.
	s.applyConfig(
		&ConfigKey{Seq: 1, Node: 0, Subject: "orders-value"},
		&ConfigValue{Compatibility: CompatibilityFull},
	)
	s.applySchema(
		&SchemaKey{Seq: 2, Node: 0, Subject: "orders-value", Version: 1},
		&SchemaValue{Subject: "orders-value", Version: 1, ID: p.ID, Type: SchemaTypeJSON, Definition: schemaA, Deleted: true},
	)

	markers, err := s.WrittenAt("orders-value")
	if err != nil {
		t.Fatalf("WrittenAt failed: %v", err)
	}
	// Registration at 0, soft delete at 2 (schema markers), config at 1.
	if len(markers) != 3 {
		t.Fatalf("expected 3 markers, got %v", markers)
	}
	kinds := map[KeyKind]int{}
	for _, m := range markers {
		kinds[m.Kind]++
	}
	if kinds[KindSchema] != 2 || kinds[KindConfig] != 1 {
		t.Errorf("marker kinds: got %v", kinds)
	}
}

// TestStore_TombstonesCommute applies the same tombstone set in several
// orders and checks the store converges to the same (empty) state.
func TestStore_TombstonesCommute(t *testing.T) {
	build := func() (*Store, []Key) {
		s := NewStore(CompatibilityNone)
		p := applyRegistration(t, s, 0, "orders-value", schemaA)
		s.applyConfig(
			&ConfigKey{Seq: 1, Node: 0, Subject: "orders-value"},
			&ConfigValue{Compatibility: CompatibilityFull},
		)
		s.applySchema(
			&SchemaKey{Seq: 2, Node: 0, Subject: "orders-value", Version: 1},
			&SchemaValue{Subject: "orders-value", Version: 1, ID: p.ID, Type: SchemaTypeJSON, Definition: schemaA, Deleted: true},
		)
		s.applyDeleteSubject(
			&DeleteSubjectKey{Seq: 3, Node: 0, Subject: "orders-value"},
			&DeleteSubjectValue{Subject: "orders-value", Version: 1},
		)
		keys := []Key{
			&SchemaKey{Seq: 0, Node: 0, Subject: "orders-value", Version: 1},
			&ConfigKey{Seq: 1, Node: 0, Subject: "orders-value"},
			&SchemaKey{Seq: 2, Node: 0, Subject: "orders-value", Version: 1},
			&DeleteSubjectKey{Seq: 3, Node: 0, Subject: "orders-value"},
		}
		return s, keys
	}

	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{1, 3, 0, 2},
		{2, 0, 3, 1},
	}
	for _, order := range orders {
		s, keys := build()
		for _, i := range order {
			s.applyTombstone(keys[i])
		}
		if got := s.ListSubjects(true); len(got) != 0 {
			t.Errorf("order %v: subject survived tombstoning: %v", order, got)
		}
		if _, err := s.GetVersions("orders-value", true); !errors.Is(err, ErrSubjectNotFound) {
			t.Errorf("order %v: expected ErrSubjectNotFound, got %v", order, err)
		}
	}
}

func TestStore_CompatibilityFallback(t *testing.T) {
	s := NewStore(CompatibilityBackward)

	if got := s.GetCompatibility("orders-value"); got != CompatibilityBackward {
		t.Errorf("expected global fallback BACKWARD, got %s", got)
	}

	s.applyConfig(
		&ConfigKey{Seq: 0, Node: 0, Subject: "orders-value"},
		&ConfigValue{Compatibility: CompatibilityFull},
	)
	if got := s.GetCompatibility("orders-value"); got != CompatibilityFull {
		t.Errorf("expected subject override FULL, got %s", got)
	}
	if got := s.GetCompatibility("other"); got != CompatibilityBackward {
		t.Errorf("other subjects keep the global level, got %s", got)
	}

	// Global config write changes the fallback.
	s.applyConfig(&ConfigKey{Seq: 1, Node: 0, Subject: ""}, &ConfigValue{Compatibility: CompatibilityNone})
	if got := s.GetCompatibility("other"); got != CompatibilityNone {
		t.Errorf("expected new global NONE, got %s", got)
	}
}
