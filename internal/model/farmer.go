package model

import "cosmossdk.io/math"

// FarmerState is the staking position of a farmer.
type FarmerState string

const (
	FarmerUnstaked FarmerState = "UNSTAKED"
	FarmerStaked   FarmerState = "STAKED"
	// FarmerPendingCooldown holds no stake and earns nothing, but its vault stays
	// locked until the cooldown ends.
	FarmerPendingCooldown FarmerState = "PENDING_COOLDOWN"
)

// FarmerReward is a farmer's ledger for one reward track.
type FarmerReward struct {
	// Snapshot is the track accumulator value at the last settle.
	Snapshot  math.LegacyDec `json:"snapshot"`
	Claimable uint64         `json:"claimable"`
	PaidOut   uint64         `json:"paid_out"`
}

// NewFarmerReward returns an empty ledger snapshotted at acc.
func NewFarmerReward(acc math.LegacyDec) FarmerReward {
	return FarmerReward{Snapshot: acc}
}

// Farmer is a participant's staking position and reward ledger under a farm.
type Farmer struct {
	ID               string       `json:"id"`
	Farm             string       `json:"farm"`
	Owner            string       `json:"owner"`
	Vault            string       `json:"vault"`
	State            FarmerState  `json:"state"`
	Staked           uint64       `json:"staked"`
	MinStakingEndsTs int64        `json:"min_staking_ends_ts"`
	CooldownEndsTs   int64        `json:"cooldown_ends_ts"`
	RewardA          FarmerReward `json:"reward_a"`
	RewardB          FarmerReward `json:"reward_b"`
}

// Reward returns the ledger for track id, or nil for an unknown slot.
func (f *Farmer) Reward(id TrackID) *FarmerReward {
	switch id {
	case TrackA:
		return &f.RewardA
	case TrackB:
		return &f.RewardB
	}
	return nil
}

// Vault is the custody record for a farmer's gems.
type Vault struct {
	ID     string `json:"id"`
	Farm   string `json:"farm"`
	Farmer string `json:"farmer"`
	Owner  string `json:"owner"`
	Locked bool   `json:"locked"`
}
