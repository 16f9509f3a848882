package farm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GemFarm/internal/calculator"
	"GemFarm/internal/model"
	"GemFarm/internal/recorder"
)

var (
	farmerNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("gemfarm/farmer"))
	vaultNamespace  = uuid.NewSHA1(uuid.NameSpaceOID, []byte("gemfarm/vault"))
)

// FarmerID is the deterministic ID of owner's farmer under farmID.
func FarmerID(farmID, owner string) string {
	return uuid.NewSHA1(farmerNamespace, []byte(farmID+"/"+owner)).String()
}

// VaultID is the deterministic ID of owner's vault under farmID.
func VaultID(farmID, owner string) string {
	return uuid.NewSHA1(vaultNamespace, []byte(farmID+"/"+owner)).String()
}

// InitFarmer registers owner under the farm and opens an empty, unlocked vault for them.
func (e *Engine) InitFarmer(ctx context.Context, now time.Time, farmID, owner string) (*model.Farmer, *model.Vault, error) {
	unlock, err := e.lockFarm(farmID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	if owner == "" {
		return nil, nil, fmt.Errorf("%w: owner is required", ErrInvalidArgument)
	}
	f, err := e.farmCopy(farmID)
	if err != nil {
		return nil, nil, err
	}
	farmerID := FarmerID(farmID, owner)
	if _, err := e.Farmer(farmerID); err == nil {
		return nil, nil, fmt.Errorf("farmer %s on farm %s: %w", owner, farmID, ErrAlreadyExists)
	}

	vault := model.Vault{ID: VaultID(farmID, owner), Farm: farmID, Farmer: farmerID, Owner: owner}
	farmer := model.Farmer{
		ID:      farmerID,
		Farm:    farmID,
		Owner:   owner,
		Vault:   vault.ID,
		State:   model.FarmerUnstaked,
		RewardA: model.NewFarmerReward(f.RewardA.AccRewardPerUnit),
		RewardB: model.NewFarmerReward(f.RewardB.AccRewardPerUnit),
	}
	if err := e.bank.OpenVault(ctx, vault.ID); err != nil {
		return nil, nil, fmt.Errorf("%w: open vault: %v", ErrTransferFailed, err)
	}

	saveErr := e.commit(func(s *model.EngineState) {
		fr, v := farmer, vault
		s.Farmers[fr.ID] = &fr
		s.Vaults[v.ID] = &v
	})
	e.logger.Info("farmer initialized",
		zap.String("farm", farmID), zap.String("farmer", farmerID), zap.String("owner", owner))
	return &farmer, &vault, saveErr
}

// Stake locks the farmer's vault and registers every gem it holds as stake.
func (e *Engine) Stake(ctx context.Context, now time.Time, farmID, farmerID, owner string) (*model.Farmer, error) {
	unlock, err := e.lockFarm(farmID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := e.loadPosition(farmID, farmerID, owner)
	if err != nil {
		return nil, err
	}
	if p.vault.Locked {
		return nil, fmt.Errorf("%w: vault %s is already locked", ErrInvalidState, p.vault.ID)
	}
	gems, err := e.bank.GemBalance(ctx, p.vault.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: gem balance: %v", ErrTransferFailed, err)
	}
	if gems == 0 {
		return nil, fmt.Errorf("%w: vault %s is empty", ErrInvalidState, p.vault.ID)
	}

	ts := now.Unix()
	if err := reconcile(&p.farm, &p.farmer, ts); err != nil {
		return nil, err
	}
	total, err := calculator.AddUint64(p.farm.TotalStaked, gems)
	if err != nil {
		return nil, fmt.Errorf("total staked: %w", err)
	}
	minEnds, err := calculator.AddSeconds(ts, p.farm.MinStakingPeriodSec)
	if err != nil {
		return nil, fmt.Errorf("minimum staking end: %w", err)
	}
	p.farm.TotalStaked = total
	p.farm.ActiveFarmerCount++
	p.farmer.Staked = gems
	p.farmer.State = model.FarmerStaked
	p.farmer.MinStakingEndsTs = minEnds
	p.farmer.CooldownEndsTs = 0

	if err := e.bank.SetLocked(ctx, p.vault.ID, true); err != nil {
		return nil, fmt.Errorf("%w: lock vault: %v", ErrTransferFailed, err)
	}
	p.vault.Locked = true
	saveErr := e.commitPosition(p)

	e.logger.Info("gems staked",
		zap.String("farm", farmID),
		zap.String("farmer", farmerID),
		zap.Uint64("gems", gems),
		zap.Uint64("total_staked", total))
	e.record(&recorder.FarmEvent{
		Timestamp: ts, EventType: recorder.EventStake, FarmID: farmID, FarmerID: farmerID,
		Actor: owner, Amount: gems, TotalStaked: total,
	})
	out := p.farmer
	return &out, saveErr
}

// Unstake credits rewards earned so far and clears the stake. With a cooldown
// period the farmer then waits in FarmerPendingCooldown with the vault still
// locked, and a second Unstake after the cooldown ends unlocks it. Without one
// the vault unlocks immediately. Claimable balances are kept.
func (e *Engine) Unstake(ctx context.Context, now time.Time, farmID, farmerID, owner string) (*model.Farmer, error) {
	unlock, err := e.lockFarm(farmID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := e.loadPosition(farmID, farmerID, owner)
	if err != nil {
		return nil, err
	}
	if !p.vault.Locked {
		return nil, fmt.Errorf("%w: vault %s is not locked", ErrInvalidState, p.vault.ID)
	}
	ts := now.Unix()

	var gems uint64
	switch p.farmer.State {
	case model.FarmerStaked:
		if ts < p.farmer.MinStakingEndsTs {
			return nil, fmt.Errorf("%w: minimum staking period ends at %d", ErrInvalidState, p.farmer.MinStakingEndsTs)
		}
		if gems, err = endStaking(p, ts); err != nil {
			return nil, err
		}
	case model.FarmerPendingCooldown:
		if ts < p.farmer.CooldownEndsTs {
			return nil, fmt.Errorf("%w: cooldown ends at %d", ErrInvalidState, p.farmer.CooldownEndsTs)
		}
		if err := reconcile(&p.farm, &p.farmer, ts); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: farmer %s is %s", ErrInvalidState, farmerID, p.farmer.State)
	}

	note := "cooling down"
	if p.farmer.State == model.FarmerPendingCooldown && ts >= p.farmer.CooldownEndsTs {
		if err := e.bank.SetLocked(ctx, p.vault.ID, false); err != nil {
			return nil, fmt.Errorf("%w: unlock vault: %v", ErrTransferFailed, err)
		}
		p.vault.Locked = false
		p.farmer.State = model.FarmerUnstaked
		p.farmer.CooldownEndsTs = 0
		note = "vault unlocked"
	}
	saveErr := e.commitPosition(p)

	e.logger.Info("gems unstaked",
		zap.String("farm", farmID),
		zap.String("farmer", farmerID),
		zap.String("state", string(p.farmer.State)),
		zap.Uint64("gems", gems),
		zap.Uint64("claimable_a", p.farmer.RewardA.Claimable),
		zap.Uint64("claimable_b", p.farmer.RewardB.Claimable))
	e.record(&recorder.FarmEvent{
		Timestamp: ts, EventType: recorder.EventUnstake, FarmID: farmID, FarmerID: farmerID,
		Actor: owner, Amount: gems, TotalStaked: p.farm.TotalStaked, Note: note,
	})
	out := p.farmer
	return &out, saveErr
}

// endStaking settles p up to ts, removes its gems from the farm totals and starts
// the cooldown. It returns the number of gems released.
func endStaking(p *position, ts int64) (uint64, error) {
	cooldownEnds, err := calculator.AddSeconds(ts, p.farm.CooldownPeriodSec)
	if err != nil {
		return 0, fmt.Errorf("cooldown end: %w", err)
	}
	if err := reconcile(&p.farm, &p.farmer, ts); err != nil {
		return 0, err
	}
	gems := p.farmer.Staked
	total, err := calculator.SubUint64(p.farm.TotalStaked, gems)
	if err != nil {
		return 0, fmt.Errorf("total staked: %w", err)
	}
	if p.farm.ActiveFarmerCount == 0 {
		return 0, fmt.Errorf("active farmer count: %w", ErrUnderflow)
	}
	p.farm.TotalStaked = total
	p.farm.ActiveFarmerCount--
	p.farmer.Staked = 0
	p.farmer.State = model.FarmerPendingCooldown
	p.farmer.MinStakingEndsTs = 0
	p.farmer.CooldownEndsTs = cooldownEnds
	return gems, nil
}

// RefreshFarmer brings a farmer's claimable balances up to now without changing stake.
// Anyone may refresh any farmer.
func (e *Engine) RefreshFarmer(ctx context.Context, now time.Time, farmID, farmerID string) (*model.Farmer, error) {
	unlock, err := e.lockFarm(farmID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	fr, err := e.Farmer(farmerID)
	if err != nil {
		return nil, err
	}
	p, err := e.loadPosition(farmID, farmerID, fr.Owner)
	if err != nil {
		return nil, err
	}
	if err := reconcile(&p.farm, &p.farmer, now.Unix()); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	saveErr := e.commitPosition(p)
	out := p.farmer
	return &out, saveErr
}
