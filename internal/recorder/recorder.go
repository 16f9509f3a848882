package recorder

import "GemFarm/internal/model"

// EventType classifies a farm history entry.
type EventType string

const (
	EventFund        EventType = "FUND"
	EventStake       EventType = "STAKE"
	EventUnstake     EventType = "UNSTAKE"
	EventClaim       EventType = "CLAIM"
	EventAuthorize   EventType = "AUTHORIZE"
	EventDeauthorize EventType = "DEAUTHORIZE"
)

// FarmEvent records one successful state change of a farm.
type FarmEvent struct {
	Timestamp   int64
	EventType   EventType
	FarmID      string
	FarmerID    string // empty for farm-level events
	Actor       string
	Currency    string
	Amount      uint64
	TotalStaked uint64 // farm total after the event
	Note        string
}

// Recorder persists farm history for analysis.
type Recorder interface {
	RecordFarmEvent(evt *FarmEvent) error
	RecordSnapshot(snap *model.FarmSnapshot) error
	Close() error
}
