package storage

import (
	"errors"

	"election-backend/models"
)

// ErrNotFound is returned by LoadSnapshot when nothing has been persisted
// yet. Callers start from a fresh election in that case.
var ErrNotFound = errors.New("snapshot not found")

// Store persists the full Election aggregate plus the full vote ledger as
// one snapshot, overwritten after every mutation and loaded once at
// startup. The core treats it as a key/value blob store.
type Store interface {
	SaveSnapshot(snap *models.Snapshot) error
	LoadSnapshot() (*models.Snapshot, error)
	Close() error
}
