// =============================================================================
// REPLAY APPLIER - FOLDING LOG ENTRIES INTO THE STORE
// =============================================================================
//
// WHAT: The single mutation entry point for the materialized store. Every
// entry that lands on the registry partition passes through Apply exactly
// once, in offset order, on the sequencer's owner goroutine - whether it got
// there via a local sequenced write, a catch-up replay, or startup recovery.
//
// Recovery and replay are the same code path that the broker's
// partition-backed coordinator uses to rebuild group state: read the internal
// topic, apply each record, trust the log over anything in memory.
//
//   ┌──────────────┐     ┌─────────────┐     ┌─────────────────────┐
//   │ Log entry    │ ──► │ Decode key  │ ──► │ Apply per kind      │
//   │ (offset,k,v) │     │ and value   │     │ (or tombstone if    │
//   └──────────────┘     └─────────────┘     │  value is absent)   │
//                                            └─────────────────────┘
//
// Entries that fail to decode are logged and skipped: the cursor must still
// advance past them, because a foreign writer's record occupying an offset is
// exactly what a conflict looks like, and stalling on it would wedge replay.
//
// =============================================================================

package registry

import (
	"fmt"
	"log/slog"
)

// Applier deterministically folds decoded log entries into a Store.
type Applier struct {
	store  *Store
	logger *slog.Logger
}

// NewApplier creates an applier bound to a store.
func NewApplier(store *Store, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{store: store, logger: logger}
}

// Apply folds one decoded entry. A nil value is a tombstone.
func (a *Applier) Apply(offset int64, key Key, value Value) error {
	if value == nil {
		a.logger.Debug("apply tombstone", "offset", offset, "kind", key.Kind())
		a.store.applyTombstone(key)
		return nil
	}

	if key.Kind() != value.Kind() {
		return fmt.Errorf("%w: key kind %s with value kind %s at offset %d",
			ErrCorruptRecord, key.Kind(), value.Kind(), offset)
	}

	switch k := key.(type) {
	case *SchemaKey:
		v := value.(*SchemaValue)
		a.logger.Debug("apply schema",
			"offset", offset, "subject", k.Subject, "version", k.Version,
			"id", v.ID, "deleted", v.Deleted)
		a.store.applySchema(k, v)
	case *ConfigKey:
		v := value.(*ConfigValue)
		a.logger.Debug("apply config",
			"offset", offset, "subject", k.Subject, "level", v.Compatibility)
		a.store.applyConfig(k, v)
	case *DeleteSubjectKey:
		v := value.(*DeleteSubjectValue)
		a.logger.Debug("apply delete subject",
			"offset", offset, "subject", k.Subject, "version", v.Version)
		a.store.applyDeleteSubject(k, v)
	default:
		return fmt.Errorf("%w: unhandled key kind %s at offset %d",
			ErrCorruptRecord, key.Kind(), offset)
	}
	return nil
}

// ApplyRaw decodes and folds one raw entry. Undecodable entries return an
// error so the caller can decide to skip (replay) or fail (tests).
func (a *Applier) ApplyRaw(offset int64, keyBytes, valueBytes []byte) error {
	key, err := DecodeKey(keyBytes)
	if err != nil {
		return fmt.Errorf("decode key at offset %d: %w", offset, err)
	}

	if valueBytes == nil {
		return a.Apply(offset, key, nil)
	}

	value, err := DecodeValue(valueBytes, key.Kind())
	if err != nil {
		return fmt.Errorf("decode value at offset %d: %w", offset, err)
	}
	return a.Apply(offset, key, value)
}
