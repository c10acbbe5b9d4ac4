// =============================================================================
// COMPATIBILITY CHECKING TESTS
// =============================================================================
//
// Fixtures model a user record evolving:
//   v1: id + name required
//   v2: adds optional age         (backward AND forward compatible with v1)
//   v3: adds REQUIRED created_at  (backward-incompatible with v1)
//   v4: drops name                (forward-incompatible with v1)
//   v5: id becomes a string       (incompatible both ways)
//
// =============================================================================

package registry

import (
	"errors"
	"testing"
)

const userV1 = `{
	"type": "object",
	"properties": {
		"id": {"type": "integer"},
		"name": {"type": "string"}
	},
	"required": ["id", "name"]
}`

const userV2OptionalAge = `{
	"type": "object",
	"properties": {
		"id": {"type": "integer"},
		"name": {"type": "string"},
		"age": {"type": "integer"}
	},
	"required": ["id", "name"]
}`

const userV3NewRequired = `{
	"type": "object",
	"properties": {
		"id": {"type": "integer"},
		"name": {"type": "string"},
		"created_at": {"type": "string"}
	},
	"required": ["id", "name", "created_at"]
}`

const userV4DropsName = `{
	"type": "object",
	"properties": {
		"id": {"type": "integer"}
	},
	"required": ["id"]
}`

const userV5TypeChange = `{
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"name": {"type": "string"}
	},
	"required": ["id", "name"]
}`

// storeWithV1 returns a store whose subject "users-value" holds userV1.
func storeWithV1(t *testing.T) *Store {
	t.Helper()
	s := NewStore(CompatibilityNone)
	p := s.Project("users-value", SchemaTypeJSON, userV1)
	s.applySchema(
		&SchemaKey{Seq: 0, Node: 0, Subject: "users-value", Version: p.Version},
		&SchemaValue{Subject: "users-value", Version: p.Version, ID: p.ID, Type: SchemaTypeJSON, Definition: userV1},
	)
	return s
}

func TestValidateSchema(t *testing.T) {
	cases := []struct {
		name    string
		typ     SchemaType
		def     string
		wantErr bool
	}{
		{"valid object schema", SchemaTypeJSON, userV1, false},
		{"boolean schema", SchemaTypeJSON, "true", false},
		{"not json", SchemaTypeJSON, "{oops", true},
		{"top-level array", SchemaTypeJSON, "[1,2]", true},
		{"empty", SchemaTypeJSON, "", true},
		{"unsupported type", SchemaType("PROTOBUF"), userV1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSchema(tc.typ, tc.def)
			if tc.wantErr && !errors.Is(err, ErrInvalidSchema) {
				t.Errorf("expected ErrInvalidSchema, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCompatibility_Backward(t *testing.T) {
	s := storeWithV1(t)

	if err := CheckCompatibility(s, "users-value", userV2OptionalAge, CompatibilityBackward); err != nil {
		t.Errorf("optional field is backward compatible: %v", err)
	}
	if err := CheckCompatibility(s, "users-value", userV3NewRequired, CompatibilityBackward); !errors.Is(err, ErrIncompatibleSchema) {
		t.Errorf("new required field must fail backward: %v", err)
	}
	// Dropping a field is fine backward (new readers just ignore old data's
	// extra field).
	if err := CheckCompatibility(s, "users-value", userV4DropsName, CompatibilityBackward); err != nil {
		t.Errorf("dropped optional-for-us field passes backward: %v", err)
	}
	if err := CheckCompatibility(s, "users-value", userV5TypeChange, CompatibilityBackward); !errors.Is(err, ErrIncompatibleSchema) {
		t.Errorf("type change must fail backward: %v", err)
	}
}

func TestCompatibility_Forward(t *testing.T) {
	s := storeWithV1(t)

	if err := CheckCompatibility(s, "users-value", userV2OptionalAge, CompatibilityForward); err != nil {
		t.Errorf("optional field is forward compatible: %v", err)
	}
	if err := CheckCompatibility(s, "users-value", userV4DropsName, CompatibilityForward); !errors.Is(err, ErrIncompatibleSchema) {
		t.Errorf("dropping a required-by-old field must fail forward: %v", err)
	}
	// Adding a required field is fine forward (old readers don't know it).
	if err := CheckCompatibility(s, "users-value", userV3NewRequired, CompatibilityForward); err != nil {
		t.Errorf("new required field passes forward: %v", err)
	}
	if err := CheckCompatibility(s, "users-value", userV5TypeChange, CompatibilityForward); !errors.Is(err, ErrIncompatibleSchema) {
		t.Errorf("type change must fail forward: %v", err)
	}
}

func TestCompatibility_Full(t *testing.T) {
	s := storeWithV1(t)

	if err := CheckCompatibility(s, "users-value", userV2OptionalAge, CompatibilityFull); err != nil {
		t.Errorf("optional field is fully compatible: %v", err)
	}
	for _, def := range []string{userV3NewRequired, userV4DropsName, userV5TypeChange} {
		if err := CheckCompatibility(s, "users-value", def, CompatibilityFull); !errors.Is(err, ErrIncompatibleSchema) {
			t.Errorf("FULL must reject: %v", err)
		}
	}
}

func TestCompatibility_NoneAndFirstVersion(t *testing.T) {
	s := storeWithV1(t)

	// NONE accepts anything.
	if err := CheckCompatibility(s, "users-value", userV5TypeChange, CompatibilityNone); err != nil {
		t.Errorf("NONE must accept everything: %v", err)
	}

	// A subject with no versions has nothing to be compatible with.
	if err := CheckCompatibility(s, "brand-new", userV5TypeChange, CompatibilityFull); err != nil {
		t.Errorf("first version must always pass: %v", err)
	}
}
