package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

type failingRegistry struct {
	err error
}

func (f failingRegistry) Put(domain.CorrectionModel) error { return f.err }
func (f failingRegistry) Get(domain.ModelKey) (domain.CorrectionModel, bool) {
	return domain.CorrectionModel{}, false
}
func (f failingRegistry) Keys() []domain.ModelKey { return nil }
func (f failingRegistry) Len() int                { return 0 }

func TestTeeWritesThrough(t *testing.T) {
	primary := NewMemory()
	mirror := NewMemory()
	tee := NewTee(primary, mirror)

	key := testKey("54511")
	require.NoError(t, tee.Put(fittedModel(t, key, "v1")))

	_, ok := primary.Get(key)
	assert.True(t, ok)
	_, ok = mirror.Get(key)
	assert.True(t, ok)
}

func TestTeeReadsFromPrimary(t *testing.T) {
	primary := NewMemory()
	mirror := NewMemory()
	tee := NewTee(primary, mirror)

	key := testKey("54511")
	require.NoError(t, mirror.Put(fittedModel(t, key, "mirror-only")))

	_, ok := tee.Get(key)
	assert.False(t, ok)
	assert.Empty(t, tee.Keys())
	assert.Zero(t, tee.Len())
}

func TestTeeMirrorFailureKeepsPrimary(t *testing.T) {
	primary := NewMemory()
	mirrorErr := errors.New("disk full")
	tee := NewTee(primary, failingRegistry{err: mirrorErr})

	key := testKey("54511")
	err := tee.Put(fittedModel(t, key, "v1"))
	assert.ErrorIs(t, err, mirrorErr)

	// The current run can still serve the model from memory.
	got, ok := tee.Get(key)
	require.True(t, ok)
	assert.Equal(t, "v1", got.Version)
}
