package shared

import (
	"time"

	"github.com/google/uuid"
)

// DocMeta is the metadata every stored document carries: identity, an
// optimistic-concurrency revision token, audit stamps and a monotonically
// increasing version counter.
type DocMeta struct {
	ID         uuid.UUID
	Revision   uuid.UUID
	Version    int64
	CreatedBy  uuid.UUID
	CreatedAt  time.Time
	ModifiedBy uuid.UUID
	ModifiedAt time.Time
}

// NewDocMeta initialises metadata for a freshly created document.
func NewDocMeta(actor uuid.UUID, now time.Time) DocMeta {
	return DocMeta{
		ID:         uuid.New(),
		Revision:   uuid.New(),
		Version:    1,
		CreatedBy:  actor,
		CreatedAt:  now,
		ModifiedBy: actor,
		ModifiedAt: now,
	}
}

// Touch rotates the revision token and advances the version. Repositories
// persist the new revision with a WHERE clause on the old one, so a stale
// writer loses the race and gets a Conflict.
func (m *DocMeta) Touch(actor uuid.UUID, now time.Time) {
	m.Revision = uuid.New()
	m.Version++
	m.ModifiedBy = actor
	m.ModifiedAt = now
}
