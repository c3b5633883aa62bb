package recorder

import (
	"errors"
	"time"

	"BetaBasket/internal/model"
)

// ErrNotFound is returned when no snapshot has been recorded for a session.
var ErrNotFound = errors.New("no recorded snapshot")

// SnapshotRecord is a stored snapshot header.
type SnapshotRecord struct {
	ID         int64
	SessionID  string
	Generation uint64
	Timestamp  time.Time
	Selections []model.Selection
	Stats      model.BasketStats
	Points     []model.IndexPoint
}

// Recorder persists published snapshots for later analysis.
type Recorder interface {
	RecordSnapshot(sessionID string, snap model.Snapshot) error
	LatestSnapshot(sessionID string) (*SnapshotRecord, error)
	Close() error
}
