package recorder

import "GemFarm/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordFarmEvent(_ *FarmEvent) error         { return nil }
func (n *NoopRecorder) RecordSnapshot(_ *model.FarmSnapshot) error { return nil }
func (n *NoopRecorder) Close() error                               { return nil }
