// =============================================================================
// MATERIALIZED STORE - THE PROJECTED VIEW OF THE REGISTRY LOG
// =============================================================================
//
// WHAT: An in-memory projection of every entry applied from the registry log:
// subjects, their versions, content-addressed schema IDs, compatibility
// settings, soft-delete flags, and the seq markers that locate each entry in
// the log.
//
// WHO MUTATES IT:
// Only the replay applier, and the applier only runs on the sequencer's owner
// goroutine. Everything else is a read. The RWMutex exists for the read side
// (HTTP handlers and write-path no-op checks run on arbitrary goroutines);
// the single-writer discipline is what keeps the projection deterministic.
//
// PROJECT vs APPLY:
// Project answers "if this registration went through, what ID and version
// would it get?" without changing anything. Apply is the only insertion path
// and is driven exclusively by log entries. This split is what makes replay
// idempotent: projecting twice is harmless, and the store's state is always
// exactly the fold of the log prefix below the cursor.
//
// =============================================================================

package registry

import (
	"sort"
	"sync"
)

// schemaBody is the content-addressed part of a schema: the global ID maps to
// exactly one of these regardless of how many subjects reference it.
type schemaBody struct {
	typ        SchemaType
	definition string
}

// subjectState is everything the store tracks per subject.
type subjectState struct {
	// versions maps version number to the registered schema version.
	versions map[int]*SubjectSchema

	// markers maps version number to the seq markers of every log entry
	// that wrote that version (registration plus soft deletes).
	markers map[int][]SeqMarker

	// subjectMarkers holds subject-level entries: config writes and
	// whole-subject soft deletes.
	subjectMarkers []SeqMarker

	// compat is the subject-scoped compatibility override ("" = unset,
	// fall back to the global level).
	compat CompatibilityLevel
}

// Store is the materialized registry state.
type Store struct {
	mu sync.RWMutex

	// byID maps schema ID to its content.
	byID map[int64]schemaBody

	// idByFingerprint deduplicates schema content into IDs.
	idByFingerprint map[string]int64

	// subjects maps subject name to its state.
	subjects map[string]*subjectState

	// globalCompat is the default compatibility level.
	globalCompat CompatibilityLevel

	// nextID is the lowest unassigned schema ID.
	nextID int64
}

// NewStore creates an empty store with the given default compatibility level.
func NewStore(globalCompat CompatibilityLevel) *Store {
	if !globalCompat.IsValid() {
		globalCompat = CompatibilityBackward
	}
	return &Store{
		byID:            make(map[int64]schemaBody),
		idByFingerprint: make(map[string]int64),
		subjects:        make(map[string]*subjectState),
		globalCompat:    globalCompat,
		nextID:          1,
	}
}

// =============================================================================
// PROJECTION (read-only write-path support)
// =============================================================================

// Project computes the (id, version, inserted) a registration of the given
// schema under the given subject would produce. Inserted=false means the
// exact schema is already a live version of the subject and nothing needs to
// be written.
func (s *Store) Project(subject string, typ SchemaType, definition string) Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fp := Fingerprint(typ, definition)
	id, idKnown := s.idByFingerprint[fp]

	st := s.subjects[subject]
	if st != nil && idKnown {
		for _, ss := range st.versions {
			if ss.ID == id && !ss.Deleted {
				return Projection{ID: id, Version: ss.Version, Inserted: false}
			}
		}
	}

	if !idKnown {
		id = s.nextID
	}
	version := 1
	if st != nil {
		version = latestVersion(st, true) + 1
	}
	return Projection{ID: id, Version: version, Inserted: true}
}

// =============================================================================
// LOOKUPS
// =============================================================================

// GetCompatibility returns the effective compatibility level for a subject,
// or the global default when subject is "" or has no override.
func (s *Store) GetCompatibility(subject string) CompatibilityLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if subject != "" {
		if st := s.subjects[subject]; st != nil && st.compat != "" {
			return st.compat
		}
	}
	return s.globalCompat
}

// HasSubjectCompatibility reports whether the subject has its own override.
func (s *Store) HasSubjectCompatibility(subject string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.subjects[subject]
	return st != nil && st.compat != ""
}

// GetVersions returns the subject's version numbers in ascending order.
// A subject whose versions are all soft-deleted is not found unless
// includeDeleted is set.
func (s *Store) GetVersions(subject string, includeDeleted bool) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.subjects[subject]
	if st == nil || len(st.versions) == 0 {
		return nil, ErrSubjectNotFound
	}

	out := make([]int, 0, len(st.versions))
	for v, ss := range st.versions {
		if ss.Deleted && !includeDeleted {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, ErrSubjectNotFound
	}
	sort.Ints(out)
	return out, nil
}

// IsDeleted reports whether every version of the subject is soft-deleted.
func (s *Store) IsDeleted(subject string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.subjects[subject]
	if st == nil || len(st.versions) == 0 {
		return false
	}
	for _, ss := range st.versions {
		if !ss.Deleted {
			return false
		}
	}
	return true
}

// GetSubjectSchema returns one version of a subject. version <= 0 means the
// latest. Soft-deleted versions are only visible with includeDeleted.
func (s *Store) GetSubjectSchema(subject string, version int, includeDeleted bool) (*SubjectSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.subjects[subject]
	if st == nil || len(st.versions) == 0 {
		return nil, ErrSubjectNotFound
	}

	if version <= 0 {
		version = 0
		for v, ss := range st.versions {
			if ss.Deleted && !includeDeleted {
				continue
			}
			if v > version {
				version = v
			}
		}
		if version == 0 {
			return nil, ErrSubjectNotFound
		}
	}

	ss := st.versions[version]
	if ss == nil {
		return nil, ErrVersionNotFound
	}
	if ss.Deleted && !includeDeleted {
		return nil, ErrVersionNotFound
	}
	cp := *ss
	return &cp, nil
}

// GetSchemaByID returns the content registered under a global schema ID.
func (s *Store) GetSchemaByID(id int64) (SchemaType, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.byID[id]
	if !ok {
		return "", "", ErrSchemaNotFound
	}
	return body.typ, body.definition, nil
}

// ListSubjects returns subject names in sorted order, skipping fully
// soft-deleted subjects unless includeDeleted is set.
func (s *Store) ListSubjects(includeDeleted bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.subjects))
	for name, st := range s.subjects {
		if len(st.versions) == 0 {
			continue
		}
		if !includeDeleted {
			live := false
			for _, ss := range st.versions {
				if !ss.Deleted {
					live = true
					break
				}
			}
			if !live {
				continue
			}
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// SEQ MARKERS (permanent-delete support)
// =============================================================================

// WrittenAt returns every seq marker retained for the subject: all versions
// plus subject-level config and delete-subject entries. The subject must be
// fully soft-deleted first.
func (s *Store) WrittenAt(subject string) ([]SeqMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.subjects[subject]
	if st == nil || len(st.versions) == 0 {
		return nil, ErrSubjectNotFound
	}
	for _, ss := range st.versions {
		if !ss.Deleted {
			return nil, ErrNotSoftDeleted
		}
	}

	var out []SeqMarker
	versions := make([]int, 0, len(st.markers))
	for v := range st.markers {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	for _, v := range versions {
		out = append(out, st.markers[v]...)
	}
	out = append(out, st.subjectMarkers...)
	return out, nil
}

// VersionWrittenAt returns the seq markers for one version of a subject.
// The version must be soft-deleted first.
func (s *Store) VersionWrittenAt(subject string, version int) ([]SeqMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.subjects[subject]
	if st == nil || len(st.versions) == 0 {
		return nil, ErrSubjectNotFound
	}
	ss := st.versions[version]
	if ss == nil {
		return nil, ErrVersionNotFound
	}
	if !ss.Deleted {
		return nil, ErrNotSoftDeleted
	}
	out := make([]SeqMarker, len(st.markers[version]))
	copy(out, st.markers[version])
	return out, nil
}

// =============================================================================
// STATS
// =============================================================================

// Stats is a point-in-time summary for the stats endpoint.
type Stats struct {
	SubjectCount        int                `json:"subjectCount"`
	SchemaCount         int                `json:"schemaCount"`
	GlobalCompatibility CompatibilityLevel `json:"globalCompatibility"`
}

// Snapshot returns current store statistics.
func (s *Store) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, st := range s.subjects {
		if len(st.versions) > 0 {
			n++
		}
	}
	return Stats{
		SubjectCount:        n,
		SchemaCount:         len(s.byID),
		GlobalCompatibility: s.globalCompat,
	}
}

// =============================================================================
// MUTATION (applier only)
// =============================================================================
//
// The methods below are the store's single mutation surface. They are called
// exclusively by the Applier, which itself runs only on the sequencer's
// owner goroutine.

func (s *Store) ensureSubject(subject string) *subjectState {
	st := s.subjects[subject]
	if st == nil {
		st = &subjectState{
			versions: make(map[int]*SubjectSchema),
			markers:  make(map[int][]SeqMarker),
		}
		s.subjects[subject] = st
	}
	return st
}

// applySchema folds one schema record: a new version, or a soft delete when
// the version already exists and the value carries Deleted=true.
func (s *Store) applySchema(key *SchemaKey, val *SchemaValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.ensureSubject(key.Subject)

	if existing := st.versions[key.Version]; existing != nil {
		existing.Deleted = val.Deleted
	} else {
		st.versions[key.Version] = &SubjectSchema{
			Subject:    key.Subject,
			Version:    key.Version,
			ID:         val.ID,
			Type:       val.Type,
			Definition: val.Definition,
			Deleted:    val.Deleted,
		}
	}

	fp := Fingerprint(val.Type, val.Definition)
	s.byID[val.ID] = schemaBody{typ: val.Type, definition: val.Definition}
	s.idByFingerprint[fp] = val.ID
	if val.ID >= s.nextID {
		s.nextID = val.ID + 1
	}

	st.markers[key.Version] = append(st.markers[key.Version],
		SeqMarker{Seq: key.Seq, Node: key.Node, Kind: KindSchema, Version: key.Version})
}

// applyConfig folds one compatibility record.
func (s *Store) applyConfig(key *ConfigKey, val *ConfigValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key.Subject == "" {
		if val.Compatibility.IsValid() {
			s.globalCompat = val.Compatibility
		}
		return
	}

	st := s.ensureSubject(key.Subject)
	st.compat = val.Compatibility
	st.subjectMarkers = append(st.subjectMarkers,
		SeqMarker{Seq: key.Seq, Node: key.Node, Kind: KindConfig})
}

// applyDeleteSubject folds a whole-subject soft delete.
func (s *Store) applyDeleteSubject(key *DeleteSubjectKey, _ *DeleteSubjectValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.subjects[key.Subject]
	if st == nil {
		return
	}
	for _, ss := range st.versions {
		ss.Deleted = true
	}
	st.subjectMarkers = append(st.subjectMarkers,
		SeqMarker{Seq: key.Seq, Node: key.Node, Kind: KindDeleteSubject})
}

// applyTombstone removes whatever the tombstoned key wrote. Each tombstone
// targets one distinct prior entry, so any arrival order converges to the
// same state.
func (s *Store) applyTombstone(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch k := key.(type) {
	case *SchemaKey:
		st := s.subjects[k.Subject]
		if st == nil {
			return
		}
		delete(st.versions, k.Version)
		delete(st.markers, k.Version)
		s.maybeDropSubject(k.Subject, st)
	case *ConfigKey:
		if k.Subject == "" {
			return
		}
		st := s.subjects[k.Subject]
		if st == nil {
			return
		}
		st.compat = ""
		st.subjectMarkers = dropMarker(st.subjectMarkers, k.Seq)
		s.maybeDropSubject(k.Subject, st)
	case *DeleteSubjectKey:
		st := s.subjects[k.Subject]
		if st == nil {
			return
		}
		st.subjectMarkers = dropMarker(st.subjectMarkers, k.Seq)
		s.maybeDropSubject(k.Subject, st)
	}
}

// maybeDropSubject removes a subject whose versions and markers are all gone.
func (s *Store) maybeDropSubject(subject string, st *subjectState) {
	if len(st.versions) == 0 && len(st.subjectMarkers) == 0 && st.compat == "" {
		delete(s.subjects, subject)
	}
}

func dropMarker(markers []SeqMarker, seq int64) []SeqMarker {
	out := markers[:0]
	for _, m := range markers {
		if m.Seq != seq {
			out = append(out, m)
		}
	}
	return out
}

// latestVersion returns the highest version number, 0 when none.
// Caller holds the lock.
func latestVersion(st *subjectState, includeDeleted bool) int {
	latest := 0
	for v, ss := range st.versions {
		if ss.Deleted && !includeDeleted {
			continue
		}
		if v > latest {
			latest = v
		}
	}
	return latest
}
