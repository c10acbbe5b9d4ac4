// =============================================================================
// RECORD KEY & VALUE TESTS
// =============================================================================
//
// WHAT WE'RE TESTING:
//   1. Round-trip encoding for every key and value kind
//   2. Corruption detection (CRC, truncation, unknown kinds)
//   3. Key/value kind agreement
//   4. Tombstone key reconstruction from seq markers - the bytes must match
//      the original key exactly, or permanent deletion tombstones the wrong
//      entry
//
// =============================================================================

package registry

import (
	"bytes"
	"errors"
	"testing"
)

func TestSchemaKey_RoundTrip(t *testing.T) {
	key := &SchemaKey{Seq: 42, Node: 3, Subject: "orders-value", Version: 7}

	decoded, err := DecodeKey(key.Encode())
	if err != nil {
		t.Fatalf("DecodeKey failed: %v", err)
	}
	got, ok := decoded.(*SchemaKey)
	if !ok {
		t.Fatalf("decoded wrong type: %T", decoded)
	}
	if *got != *key {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, key)
	}
}

func TestConfigKey_RoundTrip_GlobalAndSubject(t *testing.T) {
	for _, subject := range []string{"", "orders-value"} {
		key := &ConfigKey{Seq: 9, Node: 1, Subject: subject}
		decoded, err := DecodeKey(key.Encode())
		if err != nil {
			t.Fatalf("DecodeKey(%q) failed: %v", subject, err)
		}
		got, ok := decoded.(*ConfigKey)
		if !ok {
			t.Fatalf("decoded wrong type: %T", decoded)
		}
		if *got != *key {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, key)
		}
	}
}

func TestDeleteSubjectKey_RoundTrip(t *testing.T) {
	key := &DeleteSubjectKey{Seq: 100, Node: 2, Subject: "users-value"}
	decoded, err := DecodeKey(key.Encode())
	if err != nil {
		t.Fatalf("DecodeKey failed: %v", err)
	}
	if got := decoded.(*DeleteSubjectKey); *got != *key {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, key)
	}
}

func TestSchemaValue_RoundTrip(t *testing.T) {
	val := &SchemaValue{
		Subject:    "orders-value",
		Version:    7,
		ID:         12,
		Type:       SchemaTypeJSON,
		Definition: `{"type":"object"}`,
		Deleted:    true,
	}

	decoded, err := DecodeValue(val.Encode(), KindSchema)
	if err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
	if got := decoded.(*SchemaValue); *got != *val {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, val)
	}
}

func TestDecodeValue_KindMismatch(t *testing.T) {
	val := &ConfigValue{Compatibility: CompatibilityFull}
	if _, err := DecodeValue(val.Encode(), KindSchema); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord for kind mismatch, got %v", err)
	}
}

func TestDecodeKey_CorruptionDetected(t *testing.T) {
	key := &SchemaKey{Seq: 1, Node: 1, Subject: "s", Version: 1}
	data := key.Encode()

	// Flip a payload byte: CRC must catch it.
	data[len(data)-1] ^= 0xff
	if _, err := DecodeKey(data); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}

	// Truncated below the header.
	if _, err := DecodeKey(data[:3]); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord for short input, got %v", err)
	}
}

func TestDecodeKey_UnknownKind(t *testing.T) {
	data := seal(KeyKind(99), []byte{1, 2, 3})
	if _, err := DecodeKey(data); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord for unknown kind, got %v", err)
	}
}

// TestKeyForMarker_ReconstructsExactBytes is the property permanent deletion
// depends on: a key rebuilt from a marker must encode byte-identically to the
// original, since tombstone matching happens on key bytes.
func TestKeyForMarker_ReconstructsExactBytes(t *testing.T) {
	originals := []Key{
		&SchemaKey{Seq: 5, Node: 2, Subject: "orders-value", Version: 3},
		&ConfigKey{Seq: 6, Node: 2, Subject: "orders-value"},
		&DeleteSubjectKey{Seq: 7, Node: 2, Subject: "orders-value"},
	}
	markers := []SeqMarker{
		{Seq: 5, Node: 2, Kind: KindSchema, Version: 3},
		{Seq: 6, Node: 2, Kind: KindConfig},
		{Seq: 7, Node: 2, Kind: KindDeleteSubject},
	}

	for i, m := range markers {
		rebuilt, err := KeyForMarker("orders-value", m)
		if err != nil {
			t.Fatalf("KeyForMarker(%v) failed: %v", m, err)
		}
		if !bytes.Equal(rebuilt.Encode(), originals[i].Encode()) {
			t.Errorf("marker %v: rebuilt key bytes differ from original", m)
		}
	}
}

func TestKeyForMarker_UnknownKind(t *testing.T) {
	if _, err := KeyForMarker("s", SeqMarker{Kind: KeyKind(88)}); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord, got %v", err)
	}
}
