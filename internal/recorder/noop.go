package recorder

import "BetaBasket/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSnapshot(_ string, _ model.Snapshot) error { return nil }
func (n *NoopRecorder) LatestSnapshot(_ string) (*SnapshotRecord, error) {
	return nil, ErrNotFound
}
func (n *NoopRecorder) Close() error { return nil }
