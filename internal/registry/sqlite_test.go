package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "models.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	store := openTestStore(t)
	key := testKey("54511")
	model := fittedModel(t, key, "v1")
	require.NoError(t, store.Put(model))

	got, ok, err := store.GetModel(key)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, model.Version, got.Version)
	assert.True(t, model.TrainedAt.Equal(got.TrainedAt))
	assert.True(t, model.TrainStart.Equal(got.TrainStart))
	assert.True(t, model.TrainEnd.Equal(got.TrainEnd))
	assert.Equal(t, model.TrainRows, got.TrainRows)
	assert.Equal(t, model.ValRows, got.ValRows)
	assert.Equal(t, model.Validation, got.Validation)
	assert.Equal(t, model.Baseline, got.Baseline)

	// The restored regressor must predict identically to the original.
	for _, features := range [][]float64{{1, 0}, {2, 1}, {3, -1}} {
		assert.InDelta(t, model.Regressor.Predict(features), got.Regressor.Predict(features), 1e-9)
	}
}

func TestSQLiteMissingKey(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.GetModel(testKey("54511"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok = store.Get(testKey("54511"))
	assert.False(t, ok)
}

func TestSQLitePutUpserts(t *testing.T) {
	store := openTestStore(t)
	key := testKey("54511")
	require.NoError(t, store.Put(fittedModel(t, key, "v1")))
	require.NoError(t, store.Put(fittedModel(t, key, "v2")))

	assert.Equal(t, 1, store.Len())
	got, ok, err := store.GetModel(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", got.Version)
}

func TestSQLiteKeysOrdered(t *testing.T) {
	store := openTestStore(t)
	humidity := domain.ModelKey{Variable: domain.VarHumidity, StationID: "54511", SchemaVersion: 1}
	require.NoError(t, store.Put(fittedModel(t, testKey("58847"), "v1")))
	require.NoError(t, store.Put(fittedModel(t, testKey("54511"), "v1")))
	require.NoError(t, store.Put(fittedModel(t, humidity, "v1")))

	keys := store.Keys()
	require.Len(t, keys, 3)
	assert.Equal(t, humidity, keys[0])
	assert.Equal(t, testKey("54511"), keys[1])
	assert.Equal(t, testKey("58847"), keys[2])
}

func TestSQLiteRejectsUnserializableRegressor(t *testing.T) {
	store := openTestStore(t)
	model := fittedModel(t, testKey("54511"), "v1")
	model.Regressor = bareLookupPredictor{}

	assert.Error(t, store.Put(model))
}

type bareLookupPredictor struct{}

func (bareLookupPredictor) Predict([]float64) float64 { return 0 }
func (bareLookupPredictor) Name() string              { return "bare" }

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	key := testKey("54511")
	require.NoError(t, store.Put(fittedModel(t, key, "v1")))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.Get(key)
	require.True(t, ok)
	assert.Equal(t, "v1", got.Version)
}
