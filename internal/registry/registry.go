// Package registry stores trained correction models keyed by (variable,
// station, feature schema version). Get never fails for a missing key —
// absence is a (zero, false) return and callers fall back to identity
// correction. Concurrent writes to distinct keys do not interfere;
// same-key writes are last-write-wins.
package registry

import (
	"sort"
	"sync"

	"github.com/ziheng1027/gridcorrect/internal/domain"
)

// Registry is the storage boundary for trained models. The core is agnostic
// to whether an implementation is in-memory, on-disk, or networked.
type Registry interface {
	Put(model domain.CorrectionModel) error
	Get(key domain.ModelKey) (domain.CorrectionModel, bool)
	Keys() []domain.ModelKey
	Len() int
}

// Memory is the default in-process registry: an RWMutex-guarded map,
// constructed empty per run and discarded at the end of it.
type Memory struct {
	mu     sync.RWMutex
	models map[domain.ModelKey]domain.CorrectionModel
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{models: make(map[domain.ModelKey]domain.CorrectionModel)}
}

// Put stores or supersedes the model for its key.
func (m *Memory) Put(model domain.CorrectionModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[model.Key] = model
	return nil
}

// Get returns the current model for a key, or ok=false when absent.
func (m *Memory) Get(key domain.ModelKey) (domain.CorrectionModel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	model, ok := m.models[key]
	return model, ok
}

// Keys lists stored keys in deterministic order.
func (m *Memory) Keys() []domain.ModelKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]domain.ModelKey, 0, len(m.models))
	for k := range m.models {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Len returns the number of stored models.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.models)
}
