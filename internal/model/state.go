package model

import "time"

// EngineState is the persisted form of every farm entity.
type EngineState struct {
	Farms          map[string]*Farm                `json:"farms"`
	Farmers        map[string]*Farmer              `json:"farmers"`
	Vaults         map[string]*Vault               `json:"vaults"`
	Authorizations map[string]*FunderAuthorization `json:"authorizations"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}

// NewEngineState returns an empty state with all maps allocated.
func NewEngineState() *EngineState {
	return &EngineState{
		Farms:          make(map[string]*Farm),
		Farmers:        make(map[string]*Farmer),
		Vaults:         make(map[string]*Vault),
		Authorizations: make(map[string]*FunderAuthorization),
	}
}

// FarmSnapshot is a point-in-time summary of one farm used for history and reports.
type FarmSnapshot struct {
	FarmID            string          `json:"farm_id"`
	Timestamp         int64           `json:"timestamp"`
	TotalStaked       uint64          `json:"total_staked"`
	ActiveFarmerCount uint64          `json:"active_farmer_count"`
	Tracks            []TrackSnapshot `json:"tracks"`
}

// TrackSnapshot summarises one reward track.
type TrackSnapshot struct {
	Track            TrackID `json:"track"`
	Currency         string  `json:"currency"`
	TotalFunded      uint64  `json:"total_funded"`
	TotalClaimed     uint64  `json:"total_claimed"`
	TotalClaimable   uint64  `json:"total_claimable"`
	RewardRate       string  `json:"reward_rate"`
	RewardEndTs      int64   `json:"reward_end_ts"`
	AccRewardPerUnit string  `json:"acc_reward_per_unit"`
}
