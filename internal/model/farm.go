package model

import "cosmossdk.io/math"

// TrackID names one of the two reward slots of a farm.
type TrackID string

const (
	TrackA TrackID = "A"
	TrackB TrackID = "B"
)

// Tracks lists the reward slots in payout order.
var Tracks = []TrackID{TrackA, TrackB}

// RewardTrack is one currency's funding and accrual ledger inside a Farm.
type RewardTrack struct {
	Currency    string `json:"currency"`
	PotAccount  string `json:"pot_account"`
	TotalFunded uint64 `json:"total_funded"`
	// TotalClaimed is the cumulative amount paid out to farmers.
	TotalClaimed      uint64         `json:"total_claimed"`
	RewardDurationSec uint64         `json:"reward_duration_sec"`
	RewardRate        math.LegacyDec `json:"reward_rate"` // units per second
	RewardEndTs       int64          `json:"reward_end_ts"`
	LastUpdateTs      int64          `json:"last_update_ts"`
	// AccRewardPerUnit is the running sum of elapsed*rate/totalStaked.
	AccRewardPerUnit math.LegacyDec `json:"acc_reward_per_unit"`
}

// NewRewardTrack returns an unfunded track for currency whose pot is potAccount.
func NewRewardTrack(currency, potAccount string, now int64) RewardTrack {
	return RewardTrack{
		Currency:         currency,
		PotAccount:       potAccount,
		RewardRate:       math.LegacyZeroDec(),
		LastUpdateTs:     now,
		AccRewardPerUnit: math.LegacyZeroDec(),
	}
}

// Remaining is the funded amount not yet paid out.
func (t RewardTrack) Remaining() uint64 {
	if t.TotalClaimed > t.TotalFunded {
		return 0
	}
	return t.TotalFunded - t.TotalClaimed
}

// Farm is the aggregate root holding reward funding state and global stake totals.
type Farm struct {
	ID                  string      `json:"id"`
	Manager             string      `json:"manager"`
	Bank                string      `json:"bank"`
	RewardA             RewardTrack `json:"reward_a"`
	RewardB             RewardTrack `json:"reward_b"`
	TotalStaked         uint64      `json:"total_staked"`
	ActiveFarmerCount   uint64      `json:"active_farmer_count"`
	MinStakingPeriodSec uint64      `json:"min_staking_period_sec"`
	CooldownPeriodSec   uint64      `json:"cooldown_period_sec"`
	CreatedAt           int64       `json:"created_at"`
}

// Track returns a pointer to the track in slot id, or nil for an unknown slot.
func (f *Farm) Track(id TrackID) *RewardTrack {
	switch id {
	case TrackA:
		return &f.RewardA
	case TrackB:
		return &f.RewardB
	}
	return nil
}

// TrackFor resolves a currency to its slot.
func (f *Farm) TrackFor(currency string) (TrackID, bool) {
	switch currency {
	case f.RewardA.Currency:
		return TrackA, true
	case f.RewardB.Currency:
		return TrackB, true
	}
	return "", false
}

// FunderAuthorization grants Funder the right to fund Farm. Its existence is the permission.
type FunderAuthorization struct {
	Farm         string `json:"farm"`
	Funder       string `json:"funder"`
	AuthorizedAt int64  `json:"authorized_at"`
}
