// =============================================================================
// COMPATIBILITY CHECKING - SCHEMA EVOLUTION RULES
// =============================================================================
//
// WHAT: Structural compatibility checks for JSON Schema documents, run on the
// write path before a new version is sequenced.
//
// THE TWO DIRECTIONS:
//
//   BACKWARD: readers on the NEW schema can decode data written with the OLD
//   one. Breaking moves: requiring a field old data never had, or changing
//   the type of an existing property.
//
//   FORWARD: readers on the OLD schema can decode data written with the NEW
//   one. Breaking moves: dropping a property the old schema requires, or
//   changing the type of an existing property.
//
//   FULL is both at once. NONE skips checking entirely.
//
// Checks compare against the latest live version only (non-transitive). A
// subject with no live versions accepts anything - there is nothing to be
// compatible with.
//
// The comparison is structural: properties, required lists, and declared
// types. It intentionally ignores constraint keywords (minimum, pattern,
// enum) - tightening a constraint is a semantic judgement call this registry
// doesn't referee.
//
// =============================================================================

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// jsonSchema is the subset of a JSON Schema document the checker reasons
// about.
type jsonSchema struct {
	Type       interface{}                `json:"type"`
	Properties map[string]json.RawMessage `json:"properties"`
	Required   []string                   `json:"required"`
}

// ValidateSchema checks that a schema body is syntactically usable: the type
// must be supported and the definition must parse as a JSON Schema document.
func ValidateSchema(typ SchemaType, definition string) error {
	if typ != SchemaTypeJSON {
		return fmt.Errorf("%w: unsupported schema type %q", ErrInvalidSchema, typ)
	}
	if definition == "" {
		return fmt.Errorf("%w: empty definition", ErrInvalidSchema)
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(definition), &doc); err != nil {
		return fmt.Errorf("%w: not valid JSON: %v", ErrInvalidSchema, err)
	}
	switch doc.(type) {
	case map[string]interface{}, bool:
		// Objects and the boolean schemas (true/false) are the only
		// top-level forms JSON Schema defines.
		return nil
	default:
		return fmt.Errorf("%w: top-level schema must be an object or boolean", ErrInvalidSchema)
	}
}

// CheckCompatibility verifies that definition may become the subject's next
// version under the given level. Returns nil when the subject has no live
// versions.
func CheckCompatibility(store *Store, subject, definition string, level CompatibilityLevel) error {
	if level == CompatibilityNone {
		return nil
	}

	prev, err := store.GetSubjectSchema(subject, 0, false)
	if errors.Is(err, ErrSubjectNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	newDoc, err := parseSchema(definition)
	if err != nil {
		return err
	}
	oldDoc, err := parseSchema(prev.Definition)
	if err != nil {
		// A stored version that no longer parses shouldn't block new
		// registrations.
		return nil
	}
	if newDoc == nil || oldDoc == nil {
		// Boolean schemas carry no structure to compare.
		return nil
	}

	switch level {
	case CompatibilityBackward:
		return checkBackward(newDoc, oldDoc, prev.Version)
	case CompatibilityForward:
		return checkForward(newDoc, oldDoc, prev.Version)
	case CompatibilityFull:
		if err := checkBackward(newDoc, oldDoc, prev.Version); err != nil {
			return err
		}
		return checkForward(newDoc, oldDoc, prev.Version)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCompatibility, level)
	}
}

// parseSchema returns nil (no error) for boolean schemas.
func parseSchema(definition string) (*jsonSchema, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(definition), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if _, ok := raw.(bool); ok {
		return nil, nil
	}

	var doc jsonSchema
	if err := json.Unmarshal([]byte(definition), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return &doc, nil
}

// checkBackward verifies new-schema readers can decode old-schema data.
func checkBackward(newDoc, oldDoc *jsonSchema, oldVersion int) error {
	// A field the new schema requires must exist in the old schema, or old
	// data will be missing it.
	oldProps := oldDoc.Properties
	for _, field := range newDoc.Required {
		if _, ok := oldProps[field]; !ok {
			return fmt.Errorf("%w: version %d lacks newly required field %q",
				ErrIncompatibleSchema, oldVersion, field)
		}
	}
	return checkSharedPropertyTypes(newDoc, oldDoc, oldVersion)
}

// checkForward verifies old-schema readers can decode new-schema data.
func checkForward(newDoc, oldDoc *jsonSchema, oldVersion int) error {
	// A field the old schema requires must survive in the new schema, or
	// new data will be missing it.
	newProps := newDoc.Properties
	for _, field := range oldDoc.Required {
		if _, ok := newProps[field]; !ok {
			return fmt.Errorf("%w: drops field %q required by version %d",
				ErrIncompatibleSchema, field, oldVersion)
		}
	}
	return checkSharedPropertyTypes(newDoc, oldDoc, oldVersion)
}

// checkSharedPropertyTypes rejects type changes on properties both schemas
// declare. A type change breaks reads in both directions, so both checks
// share it.
func checkSharedPropertyTypes(newDoc, oldDoc *jsonSchema, oldVersion int) error {
	for name, oldRaw := range oldDoc.Properties {
		newRaw, ok := newDoc.Properties[name]
		if !ok {
			continue
		}
		oldType := declaredType(oldRaw)
		newType := declaredType(newRaw)
		if oldType != "" && newType != "" && oldType != newType {
			return fmt.Errorf("%w: property %q changed type from %s (version %d) to %s",
				ErrIncompatibleSchema, name, oldType, oldVersion, newType)
		}
	}
	return nil
}

// declaredType extracts a property's "type" keyword when it is a plain
// string. Union types and absent types compare as unknown and never fail
// the check.
func declaredType(raw json.RawMessage) string {
	var prop struct {
		Type interface{} `json:"type"`
	}
	if err := json.Unmarshal(raw, &prop); err != nil {
		return ""
	}
	if s, ok := prop.Type.(string); ok {
		return s
	}
	return ""
}
