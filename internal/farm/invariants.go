package farm

import (
	"errors"
	"fmt"
	"time"

	"GemFarm/internal/calculator"
	"GemFarm/internal/model"
)

// CheckInvariants verifies the farm's stake totals and that no track owes more than it was funded.
func (e *Engine) CheckInvariants(farmID string) error {
	unlock, err := e.lockFarm(farmID)
	if err != nil {
		return err
	}
	defer unlock()

	e.mu.RLock()
	defer e.mu.RUnlock()

	f, ok := e.state.Farms[farmID]
	if !ok {
		return fmt.Errorf("farm %s: %w", farmID, ErrNotFound)
	}
	farmers := e.farmersOfLocked(farmID)

	var errs []error
	var staked, active uint64
	owed := map[model.TrackID]uint64{}
	for _, fr := range farmers {
		staked += fr.Staked
		if fr.State == model.FarmerStaked {
			active++
		}
		if fr.State != model.FarmerStaked && fr.Staked != 0 {
			errs = append(errs, fmt.Errorf("farmer %s: state %s still holds %d gems", fr.ID, fr.State, fr.Staked))
		}
		v, ok := e.state.Vaults[fr.Vault]
		if !ok {
			errs = append(errs, fmt.Errorf("farmer %s: vault %s missing", fr.ID, fr.Vault))
		} else if v.Locked != (fr.State != model.FarmerUnstaked) {
			errs = append(errs, fmt.Errorf("farmer %s: state %s with vault locked=%v", fr.ID, fr.State, v.Locked))
		}
		for _, id := range model.Tracks {
			r := fr.Reward(id)
			owed[id] += r.Claimable + r.PaidOut
		}
	}
	if staked != f.TotalStaked {
		errs = append(errs, fmt.Errorf("total staked %d, farmers hold %d", f.TotalStaked, staked))
	}
	if active != f.ActiveFarmerCount {
		errs = append(errs, fmt.Errorf("active farmer count %d, %d farmers staked", f.ActiveFarmerCount, active))
	}
	for _, id := range model.Tracks {
		t := f.Track(id)
		if owed[id] > t.TotalFunded {
			errs = append(errs, fmt.Errorf("track %s owes %d but was funded %d", id, owed[id], t.TotalFunded))
		}
		if t.TotalClaimed > t.TotalFunded {
			errs = append(errs, fmt.Errorf("track %s paid %d but was funded %d", id, t.TotalClaimed, t.TotalFunded))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: farm %s: %w", ErrInvalidState, farmID, errors.Join(errs...))
	}
	return nil
}

// Snapshot summarises a farm as of now without changing it. Claimable totals
// include rewards accrued since each farmer's last settle.
func (e *Engine) Snapshot(farmID string, now time.Time) (*model.FarmSnapshot, error) {
	unlock, err := e.lockFarm(farmID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	f, err := e.farmCopy(farmID)
	if err != nil {
		return nil, err
	}
	farmers := e.FarmersOf(farmID)

	ts := now.Unix()
	updateAccumulator(&f, ts)
	snap := &model.FarmSnapshot{
		FarmID:            farmID,
		Timestamp:         ts,
		TotalStaked:       f.TotalStaked,
		ActiveFarmerCount: f.ActiveFarmerCount,
	}
	for _, id := range model.Tracks {
		t := f.Track(id)
		var claimable uint64
		for i := range farmers {
			fr := &farmers[i]
			r := fr.Reward(id)
			earned, err := calculator.EarnedSince(fr.Staked, t.AccRewardPerUnit, r.Snapshot)
			if err != nil {
				return nil, fmt.Errorf("farmer %s: %w", fr.ID, err)
			}
			claimable += r.Claimable + earned
		}
		snap.Tracks = append(snap.Tracks, model.TrackSnapshot{
			Track:            id,
			Currency:         t.Currency,
			TotalFunded:      t.TotalFunded,
			TotalClaimed:     t.TotalClaimed,
			TotalClaimable:   claimable,
			RewardRate:       t.RewardRate.String(),
			RewardEndTs:      t.RewardEndTs,
			AccRewardPerUnit: t.AccRewardPerUnit.String(),
		})
	}
	return snap, nil
}
