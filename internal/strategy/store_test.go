package strategy

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"llm-trading-bot-go/internal/persistence"
)

// memoryRepository is an in-memory Repository for tests.
type memoryRepository struct {
	sync.Mutex
	data    map[string][]byte
	putErr  error
	putSeen []string
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{data: make(map[string][]byte)}
}

func (m *memoryRepository) Put(key string, value []byte) error {
	m.Lock()
	defer m.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.putSeen = append(m.putSeen, key)
	copied := make([]byte, len(value))
	copy(copied, value)
	m.data[key] = copied
	return nil
}

func (m *memoryRepository) Get(key string) ([]byte, error) {
	m.Lock()
	defer m.Unlock()
	value, ok := m.data[key]
	if !ok {
		return nil, persistence.ErrKeyNotFound
	}
	return value, nil
}

func (m *memoryRepository) List(prefix string) (map[string][]byte, error) {
	m.Lock()
	defer m.Unlock()
	out := make(map[string][]byte)
	for key, value := range m.data {
		if strings.HasPrefix(key, prefix) {
			out[key] = value
		}
	}
	return out, nil
}

func (m *memoryRepository) Close() error { return nil }

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestCreateVersionIsIdempotent(t *testing.T) {
	repo := newMemoryRepository()
	store, err := NewStore(repo, testLogger())
	require.NoError(t, err)

	id1, err := store.CreateVersion("aggressive_day_trader", DefaultParams(), "", "initial version")
	require.NoError(t, err)
	id2, err := store.CreateVersion("aggressive_day_trader", DefaultParams(), "", "initial version")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, store.ListAll(), 1)
}

func TestCreateVersionIdentityDependsOnInputs(t *testing.T) {
	repo := newMemoryRepository()
	store, err := NewStore(repo, testLogger())
	require.NoError(t, err)

	base, err := store.CreateVersion("aggressive_day_trader", DefaultParams(), "", "")
	require.NoError(t, err)

	otherParams := DefaultParams()
	otherParams.MinConfidence = 80
	byParams, err := store.CreateVersion("aggressive_day_trader", otherParams, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, base, byParams)

	byTemplate, err := store.CreateVersion("momentum_scalper", DefaultParams(), "", "")
	require.NoError(t, err)
	assert.NotEqual(t, base, byTemplate)

	byParent, err := store.CreateVersion("aggressive_day_trader", DefaultParams(), base, "")
	require.NoError(t, err)
	assert.NotEqual(t, base, byParent)
}

func TestFirstVersionInitializesCurrentPointer(t *testing.T) {
	repo := newMemoryRepository()
	store, err := NewStore(repo, testLogger())
	require.NoError(t, err)

	assert.Empty(t, store.CurrentID())

	id, err := store.CreateVersion("aggressive_day_trader", DefaultParams(), "", "")
	require.NoError(t, err)
	assert.Equal(t, id, store.CurrentID())

	// A second version does not steal the pointer.
	params := DefaultParams()
	params.RiskPerTrade = 0.03
	_, err = store.CreateVersion("aggressive_day_trader", params, id, "")
	require.NoError(t, err)
	assert.Equal(t, id, store.CurrentID())
}

func TestCreateVersionRejectsOutOfBoundsParams(t *testing.T) {
	repo := newMemoryRepository()
	store, err := NewStore(repo, testLogger())
	require.NoError(t, err)

	bad := DefaultParams()
	bad.RiskPerTrade = 0.5
	_, err = store.CreateVersion("aggressive_day_trader", bad, "", "")
	assert.Error(t, err)
	assert.Empty(t, store.ListAll())
}

func TestSetCurrentRejectsUnknownVersion(t *testing.T) {
	repo := newMemoryRepository()
	store, err := NewStore(repo, testLogger())
	require.NoError(t, err)

	id, err := store.CreateVersion("aggressive_day_trader", DefaultParams(), "", "")
	require.NoError(t, err)

	err = store.SetCurrent("does-not-exist")
	assert.ErrorIs(t, err, ErrVersionNotFound)
	assert.Equal(t, id, store.CurrentID())
}

func TestGetEmptyIDResolvesCurrent(t *testing.T) {
	repo := newMemoryRepository()
	store, err := NewStore(repo, testLogger())
	require.NoError(t, err)

	_, err = store.Get("")
	assert.ErrorIs(t, err, ErrVersionNotFound)

	id, err := store.CreateVersion("aggressive_day_trader", DefaultParams(), "", "")
	require.NoError(t, err)

	v, err := store.Get("")
	require.NoError(t, err)
	assert.Equal(t, id, v.VersionID)
}

func TestStoreReloadsFromRepository(t *testing.T) {
	repo := newMemoryRepository()
	store, err := NewStore(repo, testLogger())
	require.NoError(t, err)

	id, err := store.CreateVersion("aggressive_day_trader", DefaultParams(), "", "initial version")
	require.NoError(t, err)
	params := DefaultParams()
	params.MinConfidence = 77
	child, err := store.CreateVersion("aggressive_day_trader", params, id, "low win rate")
	require.NoError(t, err)
	require.NoError(t, store.SetCurrent(child))

	reloaded, err := NewStore(repo, testLogger())
	require.NoError(t, err)

	assert.Equal(t, child, reloaded.CurrentID())
	assert.Len(t, reloaded.ListAll(), 2)

	v, err := reloaded.Get(child)
	require.NoError(t, err)
	assert.Equal(t, id, v.ParentVersion)
	assert.Equal(t, "low win rate", v.ChangeReason)
	assert.Equal(t, params, v.Params)
}

func TestStoreRejectsDanglingCurrentPointer(t *testing.T) {
	repo := newMemoryRepository()
	require.NoError(t, repo.Put("current_version", []byte(`{"version_id":"ghost"}`)))

	_, err := NewStore(repo, testLogger())
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	repo := newMemoryRepository()
	store, err := NewStore(repo, testLogger())
	require.NoError(t, err)

	id, err := store.CreateVersion("aggressive_day_trader", DefaultParams(), "", "")
	require.NoError(t, err)

	v, err := store.Get(id)
	require.NoError(t, err)
	v.ChangeReason = "mutated"

	again, err := store.Get(id)
	require.NoError(t, err)
	assert.Empty(t, again.ChangeReason)
}
