package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"llm-trading-bot-go/internal/persistence"
)

const (
	versionKeyPrefix  = "version:"
	currentVersionKey = "current_version"
)

// ErrVersionNotFound is returned when a version id does not resolve to a
// stored version.
var ErrVersionNotFound = errors.New("strategy: version not found")

// Store persists immutable strategy versions and the mutable current-version
// pointer. Versions are cached in memory; every mutation goes to the
// repository first, so the in-memory view never gets ahead of disk.
type Store struct {
	repo   persistence.Repository
	logger *zap.SugaredLogger

	mu        sync.RWMutex
	versions  map[string]*Version
	currentID string
}

// currentPointer is the persisted shape of the current-version pointer.
type currentPointer struct {
	VersionID string `json:"version_id"`
}

// NewStore loads all persisted versions and the current pointer from the
// repository. A pointer that references a missing version is malformed
// persisted state and aborts startup.
func NewStore(repo persistence.Repository, logger *zap.SugaredLogger) (*Store, error) {
	s := &Store{
		repo:     repo,
		logger:   logger,
		versions: make(map[string]*Version),
	}

	stored, err := repo.List(versionKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("loading strategy versions: %w", err)
	}
	for key, data := range stored {
		var v Version
		if err := json.Unmarshal(data, &v); err != nil {
			logger.Warnf("Skipping undecodable strategy version at key %s: %v", key, err)
			continue
		}
		s.versions[v.VersionID] = &v
	}

	data, err := repo.Get(currentVersionKey)
	switch {
	case errors.Is(err, persistence.ErrKeyNotFound):
		// No pointer yet: pre-bootstrap state.
	case err != nil:
		return nil, fmt.Errorf("loading current version pointer: %w", err)
	default:
		var ptr currentPointer
		if err := json.Unmarshal(data, &ptr); err != nil {
			return nil, fmt.Errorf("decoding current version pointer: %w", err)
		}
		if _, ok := s.versions[ptr.VersionID]; !ok {
			return nil, fmt.Errorf("current version pointer references unknown version %s: %w", ptr.VersionID, ErrVersionNotFound)
		}
		s.currentID = ptr.VersionID
	}

	logger.Infof("Loaded %d strategy versions (current: %s)", len(s.versions), s.currentID)
	return s, nil
}

// CreateVersion computes the deterministic id for (templateRef, params,
// parentID) and persists a new version record under it. Creation is
// idempotent: if the id already exists the stored record is left untouched
// and the id is returned as-is. The first version ever created also
// initializes the current pointer.
func (s *Store) CreateVersion(templateRef string, params Params, parentID, reason string) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	id := VersionID(templateRef, params, parentID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[id]; ok {
		s.logger.Infof("Strategy version %s already exists", id)
		return id, nil
	}

	v := &Version{
		VersionID:      id,
		Timestamp:      time.Now().UTC(),
		PromptTemplate: templateRef,
		Params:         params,
		Performance:    &PerformanceRecord{VersionID: id},
		ParentVersion:  parentID,
		ChangeReason:   reason,
	}

	if err := s.putVersion(v); err != nil {
		return "", fmt.Errorf("persisting strategy version %s: %w", id, err)
	}
	s.versions[id] = v

	if s.currentID == "" {
		if err := s.putPointer(id); err != nil {
			// The version record is durable but the pointer is not; surface
			// this loudly instead of continuing with divergent state.
			return "", fmt.Errorf("initializing current version pointer to %s: %w", id, err)
		}
		s.currentID = id
	}

	s.logger.Infof("Created strategy version %s (parent: %s, reason: %s)", id, orNone(parentID), orNone(reason))
	return id, nil
}

// Get returns the version with the given id, or the current version when id
// is empty.
func (s *Store) Get(id string) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == "" {
		id = s.currentID
	}
	if id == "" {
		return nil, ErrVersionNotFound
	}
	v, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, id)
	}
	copied := *v
	return &copied, nil
}

// CurrentID returns the current version id, or "" before bootstrap.
func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// Has reports whether a version with the given id exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.versions[id]
	return ok
}

// ListAll returns all versions ordered newest-first by creation timestamp.
func (s *Store) ListAll() []*Version {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Version, 0, len(s.versions))
	for _, v := range s.versions {
		copied := *v
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// SetCurrent repoints the current pointer at an existing version.
func (s *Store) SetCurrent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrVersionNotFound, id)
	}
	if err := s.putPointer(id); err != nil {
		return fmt.Errorf("persisting current version pointer: %w", err)
	}
	s.currentID = id
	return nil
}

// UpdatePerformance rewrites the denormalized performance snapshot of a
// version. The snapshot is the only mutable part of a version record.
func (s *Store) UpdatePerformance(id string, record PerformanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVersionNotFound, id)
	}

	updated := *v
	updated.Performance = &record
	if err := s.putVersion(&updated); err != nil {
		return fmt.Errorf("persisting performance snapshot for %s: %w", id, err)
	}
	s.versions[id] = &updated
	return nil
}

func (s *Store) putVersion(v *Version) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.repo.Put(versionKeyPrefix+v.VersionID, data)
}

func (s *Store) putPointer(id string) error {
	data, err := json.Marshal(currentPointer{VersionID: id})
	if err != nil {
		return err
	}
	return s.repo.Put(currentVersionKey, data)
}

func orNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
