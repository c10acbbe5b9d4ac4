// =============================================================================
// SEQUENCER - COMPARE-AND-LAND WRITES OVER THE REGISTRY LOG
// =============================================================================
//
// WHAT: The protocol engine that turns a multi-writer append-only log into a
// linearizable compare-and-swap register for registry mutations.
//
// THE TRICK:
// An append-only log assigns offsets; it doesn't do CAS. So we build CAS out
// of offset arithmetic:
//
//   1. Predict: the next write should land at loadedOffset + 1
//   2. Append:  write the entry, see what offset the log actually assigned
//   3. Compare: landed == predicted? The write is ours - fold it into the
//               store, advance the cursor.
//               Landed elsewhere? Another writer slid in between prediction
//               and append. Our entry is garbage at the wrong offset (replay
//               ignores it - Seq in the key doesn't match its landed offset,
//               and more importantly the store state it was computed against
//               is stale). Catch up and try again.
//
//   ┌─────────┐  predict N+1  ┌────────┐  landed N+1? ──yes──► apply+advance
//   │ cursor N │ ────────────► │ append │
//   └─────────┘               └────────┘  landed N+2? ──no───► retry
//
// OWNER GOROUTINE:
// The cursor and the store's mutation path are owned by a single goroutine.
// Every cursor read/advance and every apply is a closure shipped over the
// calls channel - callers on any goroutine forward and wait. This is what
// makes "one write attempt in flight" a process-wide statement and keeps two
// local writers from predicting the same offset.
//
// GATES:
// Two single-permit gates, both channel semaphores:
//   - writeGate:  admits one sequenced write (or one permanent delete) at a
//                 time. Held across the whole retry loop.
//   - replayGate: serializes catch-up rounds so concurrent readers don't
//                 replay the same range twice. The "already caught up" check
//                 happens AFTER the gate is held - checking before would race.
//
// ERROR DISCIPLINE:
//   - Ordering conflicts: internal, retried (with jittered backoff, bounded
//     by MaxWriteAttempts), never surfaced.
//   - Log I/O errors: surfaced immediately as ErrLogUnavailable, no retry.
//   - Domain errors (not found, already deleted): surfaced immediately.
//
// =============================================================================

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"goregistry/internal/metrics"
	"goregistry/internal/seqlog"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// SequencerConfig holds sequencer tuning.
type SequencerConfig struct {
	// NodeID identifies this node in record provenance.
	NodeID int32

	// TopicPartition is the registry's backing partition.
	TopicPartition seqlog.TopicPartition

	// MaxWriteAttempts caps conflict retries per sequenced write.
	// 0 means retry until the context is cancelled.
	MaxWriteAttempts int

	// RetryBackoff is the base delay between conflict retries; the actual
	// delay is jittered in [backoff/2, backoff).
	RetryBackoff time.Duration

	// FetchChunk bounds how many entries one catch-up fetch requests.
	FetchChunk int
}

// DefaultSequencerConfig returns sensible defaults.
func DefaultSequencerConfig() SequencerConfig {
	return SequencerConfig{
		TopicPartition:   seqlog.TopicPartition{Topic: "__registry", Partition: 0},
		MaxWriteAttempts: 50,
		RetryBackoff:     20 * time.Millisecond,
		FetchChunk:       500,
	}
}

// =============================================================================
// SEQUENCER STRUCT
// =============================================================================

// Sequencer owns the cursor and serializes all registry mutations.
type Sequencer struct {
	config  SequencerConfig
	client  seqlog.Client
	store   *Store
	applier *Applier
	logger  *slog.Logger
	metrics *metrics.Registry

	// calls is the forwarder: closures executed by the owner goroutine.
	calls chan func(*ownerState)

	// writeGate admits one write attempt at a time.
	writeGate chan struct{}

	// replayGate serializes catch-up rounds.
	replayGate chan struct{}

	stopped chan struct{}
	done    chan struct{}
}

// ownerState is the state only the owner goroutine touches.
type ownerState struct {
	// loadedOffset is the highest log offset folded into the store.
	// -1 until the first entry is applied.
	loadedOffset int64
}

// NewSequencer creates a sequencer. Call Start before use and Stop on
// shutdown. The metrics registry may be nil.
func NewSequencer(config SequencerConfig, client seqlog.Client, store *Store, m *metrics.Registry, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 20 * time.Millisecond
	}
	if config.FetchChunk <= 0 {
		config.FetchChunk = 500
	}
	return &Sequencer{
		config:     config,
		client:     client,
		store:      store,
		applier:    NewApplier(store, logger),
		logger:     logger.With("component", "sequencer"),
		metrics:    m,
		calls:      make(chan func(*ownerState)),
		writeGate:  make(chan struct{}, 1),
		replayGate: make(chan struct{}, 1),
		stopped:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the owner goroutine.
func (s *Sequencer) Start() {
	go s.ownerLoop()
	s.logger.Info("sequencer started",
		"topic", s.config.TopicPartition.Topic,
		"partition", s.config.TopicPartition.Partition,
		"node", s.config.NodeID)
}

// Stop shuts the owner goroutine down. In-flight forwards fail with
// ErrSequencerStopped.
func (s *Sequencer) Stop() {
	select {
	case <-s.stopped:
		return
	default:
	}
	close(s.stopped)
	<-s.done
	s.logger.Info("sequencer stopped")
}

// ownerLoop executes forwarded closures one at a time. It is the only
// goroutine that reads or writes ownerState, and (through applyAt) the only
// caller of the store's mutation path.
func (s *Sequencer) ownerLoop() {
	defer close(s.done)

	st := ownerState{loadedOffset: -1}
	for {
		select {
		case fn := <-s.calls:
			fn(&st)
		case <-s.stopped:
			return
		}
	}
}

// forward runs fn on the owner goroutine and waits for it to finish.
func (s *Sequencer) forward(ctx context.Context, fn func(*ownerState)) error {
	ran := make(chan struct{})
	wrapped := func(st *ownerState) {
		fn(st)
		close(ran)
	}

	select {
	case s.calls <- wrapped:
	case <-s.stopped:
		return ErrSequencerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once enqueued the closure will run; owner operations are quick
	// (no I/O), so waiting out a cancelled context here is bounded.
	select {
	case <-ran:
		return nil
	case <-s.stopped:
		return ErrSequencerStopped
	}
}

// =============================================================================
// CURSOR ACCESS
// =============================================================================

// LoadedOffset returns the cursor.
func (s *Sequencer) LoadedOffset(ctx context.Context) (int64, error) {
	var off int64
	err := s.forward(ctx, func(st *ownerState) { off = st.loadedOffset })
	return off, err
}

// AdvanceOffset moves the cursor forward to offset if it is ahead of the
// current value. Regressions are ignored: the cursor is monotonic.
func (s *Sequencer) AdvanceOffset(ctx context.Context, offset int64) error {
	return s.forward(ctx, func(st *ownerState) { s.advanceLocked(st, offset) })
}

// advanceLocked runs on the owner goroutine.
func (s *Sequencer) advanceLocked(st *ownerState, offset int64) {
	if offset <= st.loadedOffset {
		s.logger.Debug("advance_offset ignored", "offset", offset, "have", st.loadedOffset)
		return
	}
	s.logger.Debug("advance_offset", "from", st.loadedOffset, "to", offset)
	st.loadedOffset = offset
	if s.metrics.Enabled() {
		s.metrics.Replay.LoadedOffset.Set(float64(offset))
	}
}

// applyAt folds one decoded entry and advances the cursor, on the owner
// goroutine. Entries at or below the cursor are ignored, which is what makes
// redundant replay harmless.
func (s *Sequencer) applyAt(ctx context.Context, offset int64, key Key, value Value) error {
	var applyErr error
	err := s.forward(ctx, func(st *ownerState) {
		if offset <= st.loadedOffset {
			return
		}
		applyErr = s.applier.Apply(offset, key, value)
		if applyErr != nil {
			return
		}
		s.advanceLocked(st, offset)
		if s.metrics.Enabled() {
			s.metrics.Replay.Records.Inc()
		}
	})
	if err != nil {
		return err
	}
	return applyErr
}

// =============================================================================
// SEQUENCED WRITE LOOP
// =============================================================================

// writeOp runs one attempt of a write at the predicted offset.
// done=false with a nil error signals an ordering conflict: catch up and
// retry. Results are captured by the closure.
type writeOp func(ctx context.Context, writeAt int64) (done bool, err error)

// sequencedWrite drives op through the predict/append/verify loop under the
// write admission gate.
func (s *Sequencer) sequencedWrite(ctx context.Context, operation string, op writeOp) error {
	start := time.Now()
	if err := s.acquire(ctx, s.writeGate); err != nil {
		return err
	}
	defer s.release(s.writeGate)

	attempt := 0
	for {
		attempt++

		cursor, err := s.LoadedOffset(ctx)
		if err != nil {
			return err
		}
		writeAt := cursor + 1

		done, err := op(ctx, writeAt)
		if err != nil {
			s.countWrite(operation, "error")
			return err
		}
		if done {
			s.countWrite(operation, "applied")
			s.observeWrite(operation, time.Since(start))
			return nil
		}

		// Conflict: another writer landed at our predicted offset. Catch
		// up past it so the next prediction is fresh, then go around.
		s.logger.Debug("sequenced write conflict",
			"operation", operation, "write_at", writeAt, "attempt", attempt)
		if s.metrics.Enabled() {
			s.metrics.Sequencer.Conflicts.Inc()
		}

		if s.config.MaxWriteAttempts > 0 && attempt >= s.config.MaxWriteAttempts {
			if s.metrics.Enabled() {
				s.metrics.Sequencer.RetriesExhausted.Inc()
			}
			s.countWrite(operation, "error")
			return fmt.Errorf("%w: %s gave up after %d attempts",
				ErrWriteConflictExhausted, operation, attempt)
		}

		if err := s.catchupOnce(ctx); err != nil {
			s.countWrite(operation, "error")
			return err
		}
		if err := s.backoff(ctx); err != nil {
			return err
		}
	}
}

// backoff sleeps a jittered delay, honoring cancellation.
func (s *Sequencer) backoff(ctx context.Context) error {
	// Jitter in [base/2, base). A sub-2ns base has no room to jitter and
	// Int63n rejects a zero bound, so skip it.
	delay := s.config.RetryBackoff / 2
	if delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay)))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrSequencerStopped
	}
}

// acquire takes a single-permit gate, honoring cancellation and shutdown.
func (s *Sequencer) acquire(ctx context.Context, gate chan struct{}) error {
	select {
	case gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrSequencerStopped
	}
}

func (s *Sequencer) release(gate chan struct{}) {
	<-gate
}

// produceAndCheck appends a single-record batch and reports whether it
// landed at the predicted offset.
func (s *Sequencer) produceAndCheck(ctx context.Context, writeAt int64, rec seqlog.Record) (bool, error) {
	landed, err := s.client.Append(ctx, s.config.TopicPartition, []seqlog.Record{rec})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", ErrLogUnavailable, err)
	}

	if landed == writeAt {
		s.logger.Debug("write landed", "offset", landed)
		return true, nil
	}
	s.logger.Debug("write missed", "predicted", writeAt, "landed", landed)
	return false, nil
}

func (s *Sequencer) countWrite(operation, outcome string) {
	if s.metrics.Enabled() {
		s.metrics.Sequencer.Writes.WithLabelValues(operation, outcome).Inc()
	}
}

func (s *Sequencer) observeWrite(operation string, d time.Duration) {
	if s.metrics.Enabled() {
		s.metrics.Sequencer.WriteDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// =============================================================================
// CATCH-UP READER
// =============================================================================

// ReadSync brings the store up to date with everything currently in the log.
// Call before serving any read that needs a read-all-writes guarantee
// (listings in particular).
func (s *Sequencer) ReadSync(ctx context.Context) error {
	end, err := s.client.EndOffset(ctx, s.config.TopicPartition)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// Unknown partition and friends are registry-fatal, not retryable.
		return fmt.Errorf("%w: end offset: %v", ErrLogUnavailable, err)
	}
	return s.WaitFor(ctx, end-1)
}

// WaitFor replays the log until the cursor reaches at least target.
// Returns immediately when already caught up. Serialized against concurrent
// callers: the cursor check happens only after the replay gate is held, so
// two callers can never both replay the same range.
func (s *Sequencer) WaitFor(ctx context.Context, target int64) error {
	if err := s.acquire(ctx, s.replayGate); err != nil {
		return err
	}
	defer s.release(s.replayGate)
	return s.waitForLocked(ctx, target)
}

// catchupOnce replays up to the current end of the log. Used between write
// retries so the next prediction reflects the entry that beat us.
func (s *Sequencer) catchupOnce(ctx context.Context) error {
	end, err := s.client.EndOffset(ctx, s.config.TopicPartition)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: end offset: %v", ErrLogUnavailable, err)
	}
	if err := s.acquire(ctx, s.replayGate); err != nil {
		return err
	}
	defer s.release(s.replayGate)
	return s.waitForLocked(ctx, end-1)
}

// waitForLocked does the replay. Caller holds the replay gate.
func (s *Sequencer) waitForLocked(ctx context.Context, target int64) error {
	cursor, err := s.LoadedOffset(ctx)
	if err != nil {
		return err
	}
	if target <= cursor {
		s.logger.Debug("wait_for clean", "target", target, "cursor", cursor)
		return nil
	}

	s.logger.Debug("wait_for dirty", "from", cursor+1, "to", target)
	if s.metrics.Enabled() {
		s.metrics.Replay.CatchupRuns.Inc()
	}

	for cursor < target {
		to := target + 1
		if max := cursor + 1 + int64(s.config.FetchChunk); to > max {
			to = max
		}
		entries, err := s.client.FetchRange(ctx, s.config.TopicPartition, cursor+1, to)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("%w: fetch [%d, %d): %v", ErrLogUnavailable, cursor+1, to, err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("%w: fetch [%d, %d) returned nothing but cursor is behind target %d",
				ErrLogUnavailable, cursor+1, to, target)
		}

		for _, e := range entries {
			if err := s.replayEntry(ctx, e); err != nil {
				return err
			}
		}
		cursor = entries[len(entries)-1].Offset
	}
	return nil
}

// replayEntry decodes and applies one fetched entry. Undecodable entries are
// logged and skipped; the cursor still advances past them so replay can't
// wedge on a foreign writer's record.
func (s *Sequencer) replayEntry(ctx context.Context, e seqlog.Entry) error {
	key, err := DecodeKey(e.Key)
	if err != nil {
		s.logger.Warn("skipping undecodable log entry", "offset", e.Offset, "error", err)
		if s.metrics.Enabled() {
			s.metrics.Replay.SkippedRecords.Inc()
		}
		return s.AdvanceOffset(ctx, e.Offset)
	}

	var value Value
	if e.Value != nil {
		// A non-tombstone whose embedded Seq isn't the offset it landed at
		// is the corpse of a lost offset race: the writer predicted Seq,
		// something else took it. Skip it - the writer retried with fresh
		// state. Tombstones are exempt: they carry the ORIGINAL entry's Seq
		// by design and land wherever they land.
		if keySeq(key) != e.Offset {
			s.logger.Debug("skipping entry from lost offset race",
				"offset", e.Offset, "seq", keySeq(key))
			return s.AdvanceOffset(ctx, e.Offset)
		}

		value, err = DecodeValue(e.Value, key.Kind())
		if err != nil {
			s.logger.Warn("skipping entry with undecodable value", "offset", e.Offset, "error", err)
			if s.metrics.Enabled() {
				s.metrics.Replay.SkippedRecords.Inc()
			}
			return s.AdvanceOffset(ctx, e.Offset)
		}
	}
	return s.applyAt(ctx, e.Offset, key, value)
}

// keySeq extracts the predicted-offset provenance from any key kind.
func keySeq(key Key) int64 {
	switch k := key.(type) {
	case *SchemaKey:
		return k.Seq
	case *ConfigKey:
		return k.Seq
	case *DeleteSubjectKey:
		return k.Seq
	default:
		return -1
	}
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// WriteSubjectVersion registers a schema under a subject, returning its
// global ID. Registering an identical schema again is a no-op that returns
// the existing ID without touching the log.
func (s *Sequencer) WriteSubjectVersion(ctx context.Context, subject string, typ SchemaType, definition string) (int64, error) {
	if err := validateSubject(subject); err != nil {
		return 0, err
	}
	if err := ValidateSchema(typ, definition); err != nil {
		return 0, err
	}

	var id int64
	op := func(ctx context.Context, writeAt int64) (bool, error) {
		// Re-checked every attempt: the entry that beat us may have been
		// this very schema, registered by a peer.
		projected := s.store.Project(subject, typ, definition)
		if !projected.Inserted {
			s.logger.Debug("write_subject_version no-op", "subject", subject, "id", projected.ID)
			id = projected.ID
			return true, nil
		}

		level := s.store.GetCompatibility(subject)
		if err := CheckCompatibility(s.store, subject, definition, level); err != nil {
			return false, err
		}

		s.logger.Debug("write_subject_version",
			"subject", subject, "offset", writeAt,
			"id", projected.ID, "version", projected.Version)

		key := &SchemaKey{Seq: writeAt, Node: s.config.NodeID, Subject: subject, Version: projected.Version}
		value := &SchemaValue{
			Subject:    subject,
			Version:    projected.Version,
			ID:         projected.ID,
			Type:       typ,
			Definition: definition,
			Deleted:    false,
		}

		landed, err := s.produceAndCheck(ctx, writeAt, seqlog.Record{Key: key.Encode(), Value: value.Encode()})
		if err != nil || !landed {
			return false, err
		}
		if err := s.applyAt(ctx, writeAt, key, value); err != nil {
			return false, err
		}
		id = projected.ID
		return true, nil
	}

	err := s.sequencedWrite(ctx, "write_subject_version", op)
	return id, err
}

// WriteConfig sets the compatibility level, subject-scoped when subject is
// non-empty, global otherwise. Returns false when the level already matched
// and nothing was written.
func (s *Sequencer) WriteConfig(ctx context.Context, subject string, level CompatibilityLevel) (bool, error) {
	if !level.IsValid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidCompatibility, level)
	}
	if subject != "" {
		if err := validateSubject(subject); err != nil {
			return false, err
		}
	}

	changed := false
	op := func(ctx context.Context, writeAt int64) (bool, error) {
		// Compared against the EFFECTIVE level: a subject request equal to
		// the global fallback is a no-op and writes no override record.
		if s.store.GetCompatibility(subject) == level {
			s.logger.Debug("write_config no-op", "subject", subject, "level", level)
			changed = false
			return true, nil
		}

		key := &ConfigKey{Seq: writeAt, Node: s.config.NodeID, Subject: subject}
		value := &ConfigValue{Compatibility: level}

		landed, err := s.produceAndCheck(ctx, writeAt, seqlog.Record{Key: key.Encode(), Value: value.Encode()})
		if err != nil || !landed {
			return false, err
		}
		if err := s.applyAt(ctx, writeAt, key, value); err != nil {
			return false, err
		}
		changed = true
		return true, nil
	}

	err := s.sequencedWrite(ctx, "write_config", op)
	return changed, err
}

// DeleteSubjectVersion soft-deletes one version: the existing schema entry
// is re-emitted with its deleted flag set. Deleting a missing or already
// soft-deleted version is an error.
func (s *Sequencer) DeleteSubjectVersion(ctx context.Context, subject string, version int) error {
	op := func(ctx context.Context, writeAt int64) (bool, error) {
		ss, err := s.store.GetSubjectSchema(subject, version, true)
		if err != nil {
			return false, err
		}
		if ss.Deleted {
			return false, fmt.Errorf("%w: %s version %d", ErrVersionAlreadyDeleted, subject, version)
		}

		key := &SchemaKey{Seq: writeAt, Node: s.config.NodeID, Subject: subject, Version: version}
		value := &SchemaValue{
			Subject:    subject,
			Version:    version,
			ID:         ss.ID,
			Type:       ss.Type,
			Definition: ss.Definition,
			Deleted:    true,
		}
		s.logger.Debug("delete_subject_version", "subject", subject, "version", version, "offset", writeAt)

		landed, err := s.produceAndCheck(ctx, writeAt, seqlog.Record{Key: key.Encode(), Value: value.Encode()})
		if err != nil || !landed {
			return false, err
		}
		return true, s.applyAt(ctx, writeAt, key, value)
	}

	return s.sequencedWrite(ctx, "delete_subject_version", op)
}

// DeleteSubjectImpermanent soft-deletes a whole subject and returns the
// versions it covered. Already-deleted subjects are a no-op returning their
// versions.
func (s *Sequencer) DeleteSubjectImpermanent(ctx context.Context, subject string) ([]int, error) {
	var versions []int
	op := func(ctx context.Context, writeAt int64) (bool, error) {
		vs, err := s.store.GetVersions(subject, true)
		if err != nil {
			return false, err
		}
		versions = vs

		if s.store.IsDeleted(subject) {
			s.logger.Debug("delete_subject no-op", "subject", subject)
			return true, nil
		}

		key := &DeleteSubjectKey{Seq: writeAt, Node: s.config.NodeID, Subject: subject}
		value := &DeleteSubjectValue{Subject: subject, Version: vs[len(vs)-1]}
		s.logger.Debug("delete_subject", "subject", subject, "offset", writeAt)

		landed, err := s.produceAndCheck(ctx, writeAt, seqlog.Record{Key: key.Encode(), Value: value.Encode()})
		if err != nil || !landed {
			return false, err
		}
		return true, s.applyAt(ctx, writeAt, key, value)
	}

	err := s.sequencedWrite(ctx, "delete_subject", op)
	return versions, err
}

// DeleteSubjectPermanent hard-deletes a subject (or one version of it, when
// version > 0) by tombstoning every log entry its seq markers point at.
//
// This path deliberately skips offset prediction: tombstones are commutative
// and safely repeatable, so there is no ordering to defend and no conflict
// to retry. It still takes the write gate - the marker snapshot and the
// append must not interleave with a sequenced write.
func (s *Sequencer) DeleteSubjectPermanent(ctx context.Context, subject string, version int) ([]int, error) {
	if err := s.acquire(ctx, s.writeGate); err != nil {
		return nil, err
	}
	defer s.release(s.writeGate)

	var markers []SeqMarker
	var err error
	if version > 0 {
		markers, err = s.store.VersionWrittenAt(subject, version)
	} else {
		markers, err = s.store.WrittenAt(subject)
	}
	if err != nil {
		return nil, err
	}

	versions := []int{}
	for _, m := range markers {
		if m.Kind == KindSchema {
			versions = append(versions, m.Version)
		}
	}

	batch := make([]seqlog.Record, 0, len(markers))
	keys := make([]Key, 0, len(markers))
	for _, m := range markers {
		key, err := KeyForMarker(subject, m)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("tombstoning", "subject", subject, "seq", m.Seq, "kind", m.Kind)
		keys = append(keys, key)
		batch = append(batch, seqlog.Record{Key: key.Encode(), Value: nil})
	}

	// A subject in the store was necessarily replayed from somewhere, so
	// there must be markers to tombstone.
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: no seq markers for %s", ErrSubjectNotFound, subject)
	}

	base, err := s.client.Append(ctx, s.config.TopicPartition, batch)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: tombstone batch: %v", ErrLogUnavailable, err)
	}
	if s.metrics.Enabled() {
		s.metrics.Sequencer.Tombstones.Add(float64(len(batch)))
	}

	// Fold the tombstones straight in, advancing the cursor past them.
	for i, key := range keys {
		if err := s.applyAt(ctx, base+int64(i), key, nil); err != nil {
			return nil, err
		}
	}

	s.countWrite("delete_subject_permanent", "applied")
	return dedupSorted(versions), nil
}

// dedupSorted returns the distinct values of an already-ascending slice.
func dedupSorted(in []int) []int {
	out := in[:0]
	for i, v := range in {
		if i == 0 || v != in[i-1] {
			out = append(out, v)
		}
	}
	return out
}
