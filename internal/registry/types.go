// =============================================================================
// REGISTRY TYPES - SUBJECTS, SCHEMA VERSIONS & COMPATIBILITY
// =============================================================================
//
// WHAT IS A SUBJECT?
// A subject is a named schema lineage. Each subject owns an ordered sequence
// of versions (1, 2, 3, ...), and every distinct schema body gets a globally
// unique schema ID. The same ID is reused when an identical schema is
// registered again (under the same or a different subject).
//
// IDs vs VERSIONS:
//   - ID: global, content-addressed ("what are these bytes?")
//   - Version: per-subject, sequential ("how did this lineage evolve?")
//
// SOFT vs HARD DELETE:
//   - Soft (impermanent) delete flips a deleted flag; the version stays
//     enumerable with includeDeleted=true and its log entries remain.
//   - Hard (permanent) delete tombstones every log entry that ever mentioned
//     the version, so compaction can reclaim it. Hard delete requires a
//     prior soft delete.
//
// COMPARISON:
//   - Confluent SR: same subject/version/id model, same delete split
//   - AWS Glue: versions per schema name, no content-addressed reuse
//   - goregistry: Confluent-style model on a single internal log partition
//
// =============================================================================

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// =============================================================================
// ERROR DEFINITIONS
// =============================================================================

var (
	// ErrSubjectNotFound means the subject has no (visible) versions.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrVersionNotFound means the requested version doesn't exist.
	ErrVersionNotFound = errors.New("schema version not found")

	// ErrSchemaNotFound means no schema is registered under the given ID.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrInvalidSchema means the schema body is not valid JSON Schema.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrInvalidSubject means the subject name is empty or too long to
	// encode.
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrIncompatibleSchema means the schema violates the subject's
	// compatibility level.
	ErrIncompatibleSchema = errors.New("schema is incompatible with previous version")

	// ErrVersionAlreadyDeleted means a soft delete targeted a version whose
	// deleted flag is already set.
	ErrVersionAlreadyDeleted = errors.New("schema version already soft-deleted")

	// ErrNotSoftDeleted means a permanent delete was attempted before the
	// subject/version was soft-deleted.
	ErrNotSoftDeleted = errors.New("subject or version must be soft-deleted first")

	// ErrInvalidCompatibility means an unrecognized compatibility level.
	ErrInvalidCompatibility = errors.New("invalid compatibility level")

	// ErrLogUnavailable wraps transport/partition failures from the backing
	// log. Never retried by the sequencer: ordering conflicts retry, I/O
	// errors surface.
	ErrLogUnavailable = errors.New("registry log unavailable")

	// ErrWriteConflictExhausted means the sequencer hit its configured
	// attempt cap while losing the offset race to other writers.
	ErrWriteConflictExhausted = errors.New("write conflict retries exhausted")

	// ErrSequencerStopped means the owner loop has shut down.
	ErrSequencerStopped = errors.New("sequencer is stopped")
)

// =============================================================================
// COMPATIBILITY LEVELS
// =============================================================================

// CompatibilityLevel defines schema evolution rules for a subject.
type CompatibilityLevel string

const (
	// CompatibilityNone allows any schema change (no checking).
	CompatibilityNone CompatibilityLevel = "NONE"

	// CompatibilityBackward ensures a new schema can read data written by
	// the previous schema. Consumer upgrades first; the common default.
	CompatibilityBackward CompatibilityLevel = "BACKWARD"

	// CompatibilityForward ensures the previous schema can read data written
	// by the new schema. Producer upgrades first.
	CompatibilityForward CompatibilityLevel = "FORWARD"

	// CompatibilityFull combines Backward + Forward.
	CompatibilityFull CompatibilityLevel = "FULL"
)

// IsValid returns true if the level is a recognized value.
func (l CompatibilityLevel) IsValid() bool {
	switch l {
	case CompatibilityNone, CompatibilityBackward, CompatibilityForward, CompatibilityFull:
		return true
	default:
		return false
	}
}

// ParseCompatibilityLevel converts a string to a CompatibilityLevel.
func ParseCompatibilityLevel(s string) (CompatibilityLevel, error) {
	l := CompatibilityLevel(strings.ToUpper(s))
	if !l.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCompatibility, s)
	}
	return l, nil
}

// =============================================================================
// SCHEMA STRUCTS
// =============================================================================

// SchemaType is the schema format. Only JSON Schema for now.
type SchemaType string

const (
	SchemaTypeJSON SchemaType = "JSON"
)

// SubjectSchema is one registered version of a subject's schema.
type SubjectSchema struct {
	// Subject is the schema lineage this version belongs to.
	Subject string `json:"subject"`

	// Version is the per-subject sequential version number (1, 2, 3...).
	Version int `json:"version"`

	// ID is the globally unique, content-addressed schema ID.
	ID int64 `json:"id"`

	// Type is the schema format.
	Type SchemaType `json:"schemaType"`

	// Definition is the schema body.
	Definition string `json:"schema"`

	// Deleted is the soft-delete flag.
	Deleted bool `json:"deleted,omitempty"`
}

// Projection is the result of projecting a (subject, definition, type)
// through the store without mutating it.
//
// Inserted=false means the store already reflects the requested registration
// and the write path can return ID without any log I/O.
type Projection struct {
	ID       int64
	Version  int
	Inserted bool
}

// SeqMarker records where a subject's entry landed in the log: the offset it
// was sequenced at, the node that wrote it, and which key kind it used.
// Markers are the breadcrumbs permanent deletion follows to tombstone every
// entry that ever mentioned the victim.
type SeqMarker struct {
	Seq     int64
	Node    int32
	Kind    KeyKind
	Version int
}

// MaxSubjectLen is the longest encodable subject name: keys carry subjects
// behind a 16-bit length prefix.
const MaxSubjectLen = 1<<16 - 1

// validateSubject rejects names the key format cannot represent. Encoding a
// longer name would silently truncate the length prefix and misparse on
// decode.
func validateSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSubject)
	}
	if len(subject) > MaxSubjectLen {
		return fmt.Errorf("%w: name is %d bytes, limit %d", ErrInvalidSubject, len(subject), MaxSubjectLen)
	}
	return nil
}

// =============================================================================
// FINGERPRINTING
// =============================================================================

// Fingerprint computes a normalization-stable hash of a schema body.
// Identical schemas (modulo JSON whitespace) have identical fingerprints,
// which is what makes registration idempotent and IDs content-addressed.
func Fingerprint(typ SchemaType, definition string) string {
	var parsed interface{}
	normalized := []byte(definition)
	if err := json.Unmarshal([]byte(definition), &parsed); err == nil {
		if b, err := json.Marshal(parsed); err == nil {
			normalized = b
		}
	}
	crc := crc32.Checksum(normalized, crc32.MakeTable(crc32.Castagnoli))
	return fmt.Sprintf("%s:%08x", typ, crc)
}
