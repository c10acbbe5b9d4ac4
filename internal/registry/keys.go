// =============================================================================
// LOG RECORD KEYS & VALUES - BINARY FORMAT FOR THE REGISTRY TOPIC
// =============================================================================
//
// Every mutation of the registry is one (key, value) entry on the internal
// log partition. The key identifies the logical record; the value carries the
// payload. A key with an absent value is a tombstone: the entry it shadows is
// permanently removed.
//
// KEY KINDS:
//   1. schema         - one subject version (register or soft delete)
//   2. config         - a compatibility level (global or subject-scoped)
//   3. delete-subject - a whole-subject soft delete
//
// This is a closed set: tombstone emission switches over it exhaustively and
// treats anything else as corruption.
//
// Binary Key Format:
//
// ┌────────────────────────────────────────────────────────────────────────┐
// │ Version │ Kind │ CRC32 │ Seq  │ Node │ SubLen │ Subject │ KeyVersion   │
// │  (1B)   │ (1B) │ (4B)  │ (8B) │ (4B) │  (2B)  │  (var)  │ (4B, schema) │
// └────────────────────────────────────────────────────────────────────────┘
//
// Seq is the offset the writer predicted the entry would land at, and Node is
// the writing node's ID. Both are provenance, not identity: replay trusts the
// entry's actual landed offset, never Seq. They exist so permanent deletion
// can reconstruct the exact key bytes to tombstone.
//
// CRC32 (Castagnoli) covers everything after the CRC field. Values carry the
// same Version/Kind/CRC header followed by kind-specific fields.
//
// WHY BINARY AND NOT JSON?
// Same trade-off as the broker's internal topics: compact, no parse overhead
// on replay, and a version byte for format evolution.
//
// =============================================================================

package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// =============================================================================
// KIND & FORMAT CONSTANTS
// =============================================================================

// KeyKind identifies the type of a registry log record.
type KeyKind uint8

const (
	// KindSchema is a subject-version record (register / soft delete).
	KindSchema KeyKind = 1

	// KindConfig is a compatibility-level record.
	KindConfig KeyKind = 2

	// KindDeleteSubject is a whole-subject soft-delete record.
	KindDeleteSubject KeyKind = 3
)

// String returns a human-readable kind name for logs.
func (k KeyKind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindConfig:
		return "config"
	case KindDeleteSubject:
		return "delete-subject"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// RecordFormatVersion is the current binary format version.
// Increment on breaking changes to key or value layout.
const RecordFormatVersion uint8 = 1

// recordHeaderSize is Version(1) + Kind(1) + CRC32(4).
const recordHeaderSize = 6

var (
	// ErrCorruptRecord means a key or value failed structural decoding.
	ErrCorruptRecord = errors.New("corrupt registry record")

	// ErrChecksumMismatch means the CRC didn't match the payload.
	ErrChecksumMismatch = errors.New("registry record checksum mismatch")
)

// =============================================================================
// KEY TYPES
// =============================================================================

// Key is one of SchemaKey, ConfigKey, DeleteSubjectKey.
type Key interface {
	Kind() KeyKind
	Encode() []byte
}

// SchemaKey identifies one version of one subject.
type SchemaKey struct {
	Seq     int64
	Node    int32
	Subject string
	Version int
}

func (k *SchemaKey) Kind() KeyKind { return KindSchema }

// ConfigKey identifies a compatibility setting. An empty Subject means the
// global default.
type ConfigKey struct {
	Seq     int64
	Node    int32
	Subject string
}

func (k *ConfigKey) Kind() KeyKind { return KindConfig }

// DeleteSubjectKey identifies a whole-subject soft delete.
type DeleteSubjectKey struct {
	Seq     int64
	Node    int32
	Subject string
}

func (k *DeleteSubjectKey) Kind() KeyKind { return KindDeleteSubject }

// =============================================================================
// VALUE TYPES
// =============================================================================

// Value is one of SchemaValue, ConfigValue, DeleteSubjectValue.
type Value interface {
	Kind() KeyKind
	Encode() []byte
}

// SchemaValue is the payload of a schema record. Deleted=true re-emits an
// existing version with its soft-delete flag set.
type SchemaValue struct {
	Subject    string
	Version    int
	ID         int64
	Type       SchemaType
	Definition string
	Deleted    bool
}

func (v *SchemaValue) Kind() KeyKind { return KindSchema }

// ConfigValue is the payload of a config record.
type ConfigValue struct {
	Compatibility CompatibilityLevel
}

func (v *ConfigValue) Kind() KeyKind { return KindConfig }

// DeleteSubjectValue is the payload of a delete-subject record. Version is
// the highest version at the time of deletion.
type DeleteSubjectValue struct {
	Subject string
	Version int
}

func (v *DeleteSubjectValue) Kind() KeyKind { return KindDeleteSubject }

// =============================================================================
// ENCODING HELPERS
// =============================================================================

type recordWriter struct {
	buf []byte
}

func (w *recordWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *recordWriter) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *recordWriter) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *recordWriter) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *recordWriter) str16(s string) {
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *recordWriter) str32(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *recordWriter) bool8(b bool) {
	if b {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

// seal prepends the Version/Kind/CRC header. CRC covers the payload only.
func seal(kind KeyKind, payload []byte) []byte {
	out := make([]byte, 0, recordHeaderSize+len(payload))
	out = append(out, RecordFormatVersion, uint8(kind))
	out = binary.BigEndian.AppendUint32(out, crc32.Checksum(payload, castagnoli))
	return append(out, payload...)
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type recordReader struct {
	buf []byte
	off int
	err error
}

func (r *recordReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: truncated at byte %d", ErrCorruptRecord, r.off)
		return false
	}
	return true
}

func (r *recordReader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *recordReader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *recordReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *recordReader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *recordReader) str16() string {
	n := int(r.u16())
	if !r.need(n) {
		return ""
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	return s
}

func (r *recordReader) str32() string {
	n := int(r.u32())
	if !r.need(n) {
		return ""
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	return s
}

func (r *recordReader) bool8() bool { return r.u8() != 0 }

// openRecord validates the header and returns the kind and payload reader.
func openRecord(data []byte) (KeyKind, *recordReader, error) {
	if len(data) < recordHeaderSize {
		return 0, nil, fmt.Errorf("%w: %d bytes is shorter than header", ErrCorruptRecord, len(data))
	}
	if data[0] != RecordFormatVersion {
		return 0, nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptRecord, data[0])
	}
	kind := KeyKind(data[1])
	crc := binary.BigEndian.Uint32(data[2:6])
	payload := data[recordHeaderSize:]
	if actual := crc32.Checksum(payload, castagnoli); actual != crc {
		return 0, nil, fmt.Errorf("%w: stored %08x, computed %08x", ErrChecksumMismatch, crc, actual)
	}
	return kind, &recordReader{buf: payload}, nil
}

// =============================================================================
// KEY ENCODING / DECODING
// =============================================================================

// Encode serializes a schema key. The byte layout must be stable across
// releases: permanent deletion reconstructs these exact bytes from seq
// markers to tombstone prior entries.
func (k *SchemaKey) Encode() []byte {
	w := &recordWriter{}
	w.u64(uint64(k.Seq))
	w.u32(uint32(k.Node))
	w.str16(k.Subject)
	w.u32(uint32(k.Version))
	return seal(KindSchema, w.buf)
}

// Encode serializes a config key.
func (k *ConfigKey) Encode() []byte {
	w := &recordWriter{}
	w.u64(uint64(k.Seq))
	w.u32(uint32(k.Node))
	w.str16(k.Subject)
	return seal(KindConfig, w.buf)
}

// Encode serializes a delete-subject key.
func (k *DeleteSubjectKey) Encode() []byte {
	w := &recordWriter{}
	w.u64(uint64(k.Seq))
	w.u32(uint32(k.Node))
	w.str16(k.Subject)
	return seal(KindDeleteSubject, w.buf)
}

// DecodeKey parses key bytes into the matching Key type.
func DecodeKey(data []byte) (Key, error) {
	kind, r, err := openRecord(data)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindSchema:
		k := &SchemaKey{
			Seq:     int64(r.u64()),
			Node:    int32(r.u32()),
			Subject: r.str16(),
			Version: int(r.u32()),
		}
		return k, r.err
	case KindConfig:
		k := &ConfigKey{
			Seq:     int64(r.u64()),
			Node:    int32(r.u32()),
			Subject: r.str16(),
		}
		return k, r.err
	case KindDeleteSubject:
		k := &DeleteSubjectKey{
			Seq:     int64(r.u64()),
			Node:    int32(r.u32()),
			Subject: r.str16(),
		}
		return k, r.err
	default:
		return nil, fmt.Errorf("%w: unknown key kind %d", ErrCorruptRecord, kind)
	}
}

// =============================================================================
// VALUE ENCODING / DECODING
// =============================================================================

// Encode serializes a schema value.
func (v *SchemaValue) Encode() []byte {
	w := &recordWriter{}
	w.str16(v.Subject)
	w.u32(uint32(v.Version))
	w.u64(uint64(v.ID))
	w.str16(string(v.Type))
	w.bool8(v.Deleted)
	w.str32(v.Definition)
	return seal(KindSchema, w.buf)
}

// Encode serializes a config value.
func (v *ConfigValue) Encode() []byte {
	w := &recordWriter{}
	w.str16(string(v.Compatibility))
	return seal(KindConfig, w.buf)
}

// Encode serializes a delete-subject value.
func (v *DeleteSubjectValue) Encode() []byte {
	w := &recordWriter{}
	w.str16(v.Subject)
	w.u32(uint32(v.Version))
	return seal(KindDeleteSubject, w.buf)
}

// DecodeValue parses value bytes. The expected kind comes from the already
// decoded key; a kind mismatch between key and value is corruption.
func DecodeValue(data []byte, expect KeyKind) (Value, error) {
	kind, r, err := openRecord(data)
	if err != nil {
		return nil, err
	}
	if kind != expect {
		return nil, fmt.Errorf("%w: key kind %s but value kind %s", ErrCorruptRecord, expect, kind)
	}

	switch kind {
	case KindSchema:
		v := &SchemaValue{
			Subject: r.str16(),
			Version: int(r.u32()),
			ID:      int64(r.u64()),
			Type:    SchemaType(r.str16()),
			Deleted: r.bool8(),
		}
		v.Definition = r.str32()
		return v, r.err
	case KindConfig:
		v := &ConfigValue{Compatibility: CompatibilityLevel(r.str16())}
		return v, r.err
	case KindDeleteSubject:
		v := &DeleteSubjectValue{
			Subject: r.str16(),
			Version: int(r.u32()),
		}
		return v, r.err
	default:
		return nil, fmt.Errorf("%w: unknown value kind %d", ErrCorruptRecord, kind)
	}
}

// KeyForMarker reconstructs the exact key a seq marker points at. This is the
// exhaustive match over the closed kind set used when emitting tombstones.
func KeyForMarker(subject string, m SeqMarker) (Key, error) {
	switch m.Kind {
	case KindSchema:
		return &SchemaKey{Seq: m.Seq, Node: m.Node, Subject: subject, Version: m.Version}, nil
	case KindConfig:
		return &ConfigKey{Seq: m.Seq, Node: m.Node, Subject: subject}, nil
	case KindDeleteSubject:
		return &DeleteSubjectKey{Seq: m.Seq, Node: m.Node, Subject: subject}, nil
	default:
		return nil, fmt.Errorf("%w: seq marker with unknown kind %d", ErrCorruptRecord, m.Kind)
	}
}
