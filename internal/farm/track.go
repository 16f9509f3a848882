package farm

import (
	"fmt"

	"GemFarm/internal/calculator"
	"GemFarm/internal/model"
)

// updateAccumulator brings every track of f up to now. Time always advances, but
// reward only converts to per-unit reward while something is staked.
func updateAccumulator(f *model.Farm, now int64) {
	for _, id := range model.Tracks {
		t := f.Track(id)
		elapsed := calculator.AccruableSeconds(t.LastUpdateTs, now, t.RewardEndTs)
		t.AccRewardPerUnit = calculator.AccrueRewardPerUnit(t.AccRewardPerUnit, t.RewardRate, elapsed, f.TotalStaked)
		// a clock that steps back must not reopen an already accrued interval
		if now > t.LastUpdateTs {
			t.LastUpdateTs = now
		}
	}
}

// settle moves what fr earned since its last snapshot into its claimable balance.
// updateAccumulator must run on f first.
func settle(f *model.Farm, fr *model.Farmer) error {
	for _, id := range model.Tracks {
		t := f.Track(id)
		r := fr.Reward(id)
		earned, err := calculator.EarnedSince(fr.Staked, t.AccRewardPerUnit, r.Snapshot)
		if err != nil {
			return fmt.Errorf("settle track %s: %w", id, err)
		}
		claimable, err := calculator.AddUint64(r.Claimable, earned)
		if err != nil {
			return fmt.Errorf("settle track %s: %w", id, err)
		}
		r.Claimable = claimable
		r.Snapshot = t.AccRewardPerUnit
	}
	return nil
}

// reconcile runs updateAccumulator and settle, in that order.
func reconcile(f *model.Farm, fr *model.Farmer, now int64) error {
	updateAccumulator(f, now)
	return settle(f, fr)
}

// fundTrack accrues f under the old rate, then starts a new window of durationSec
// paying amount. The new rate replaces whatever remained of the old window.
// A window never opens before the track's clock, so a late-arriving fund cannot
// pay for an interval that was already settled.
func fundTrack(f *model.Farm, id model.TrackID, amount, durationSec uint64, now int64) error {
	if amount == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	if durationSec == 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidArgument)
	}
	t := f.Track(id)
	start := max(now, t.LastUpdateTs)
	end, err := calculator.AddSeconds(start, durationSec)
	if err != nil {
		return fmt.Errorf("reward window end: %w", err)
	}
	updateAccumulator(f, now)

	funded, err := calculator.AddUint64(t.TotalFunded, amount)
	if err != nil {
		return fmt.Errorf("total funded: %w", err)
	}
	rate, err := calculator.RewardRate(amount, durationSec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	t.TotalFunded = funded
	t.RewardRate = rate
	t.RewardDurationSec = durationSec
	t.RewardEndTs = end
	t.LastUpdateTs = start
	return nil
}
