package registry

import "github.com/ziheng1027/gridcorrect/internal/domain"

// Tee mirrors every Put into a secondary registry (typically the SQLite
// store, for provenance) while serving reads from the primary in-memory one.
type Tee struct {
	Primary Registry
	Mirror  Registry
}

// NewTee wires a write-through registry pair.
func NewTee(primary, mirror Registry) *Tee {
	return &Tee{Primary: primary, Mirror: mirror}
}

// Put stores into the primary first; a mirror failure is returned but the
// primary copy stays usable for the current run.
func (t *Tee) Put(model domain.CorrectionModel) error {
	if err := t.Primary.Put(model); err != nil {
		return err
	}
	return t.Mirror.Put(model)
}

// Get reads from the primary.
func (t *Tee) Get(key domain.ModelKey) (domain.CorrectionModel, bool) { return t.Primary.Get(key) }

// Keys lists the primary's keys.
func (t *Tee) Keys() []domain.ModelKey { return t.Primary.Keys() }

// Len counts the primary's models.
func (t *Tee) Len() int { return t.Primary.Len() }
