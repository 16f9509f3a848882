package farm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GemFarm/internal/model"
	"GemFarm/internal/recorder"
)

// InitFarmParams describes a new farm.
type InitFarmParams struct {
	// ID is optional; a random UUID is used when empty.
	ID                  string
	Manager             string
	Bank                string
	RewardA             string
	RewardB             string
	MinStakingPeriodSec uint64
	// CooldownPeriodSec keeps an unstaked vault locked this long. Zero unlocks at once.
	CooldownPeriodSec uint64
}

// PotAccount is the custody account holding a farm's funded rewards of currency.
func PotAccount(farmID, currency string) string {
	return fmt.Sprintf("farm:%s:pot:%s", farmID, currency)
}

// InitFarm creates a farm with two empty reward tracks.
func (e *Engine) InitFarm(ctx context.Context, now time.Time, p InitFarmParams) (*model.Farm, error) {
	if p.Manager == "" {
		return nil, fmt.Errorf("%w: manager is required", ErrInvalidArgument)
	}
	if p.RewardA == "" || p.RewardB == "" || p.RewardA == p.RewardB {
		return nil, fmt.Errorf("%w: reward currencies must be set and distinct", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := now.Unix()
	f := model.Farm{
		ID:                  id,
		Manager:             p.Manager,
		Bank:                p.Bank,
		RewardA:             model.NewRewardTrack(p.RewardA, PotAccount(id, p.RewardA), ts),
		RewardB:             model.NewRewardTrack(p.RewardB, PotAccount(id, p.RewardB), ts),
		MinStakingPeriodSec: p.MinStakingPeriodSec,
		CooldownPeriodSec:   p.CooldownPeriodSec,
		CreatedAt:           ts,
	}

	e.mu.Lock()
	if _, ok := e.state.Farms[id]; ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("farm %s: %w", id, ErrAlreadyExists)
	}
	cp := f
	e.state.Farms[id] = &cp
	e.locks[id] = &sync.Mutex{}
	saveErr := e.saveLocked()
	e.mu.Unlock()

	e.logger.Info("farm initialized",
		zap.String("farm", id),
		zap.String("manager", p.Manager),
		zap.String("reward_a", p.RewardA),
		zap.String("reward_b", p.RewardB))
	return &f, saveErr
}

// FundParams describes a funding deposit into one reward track.
type FundParams struct {
	Farm        string
	Funder      string
	Currency    string
	Source      string // funder's account; defaults to Funder
	Amount      uint64
	DurationSec uint64
}

// Fund moves Amount of Currency from the funder into the farm pot and starts a new
// reward window of DurationSec. Nothing changes unless the transfer succeeds.
func (e *Engine) Fund(ctx context.Context, now time.Time, p FundParams) (*model.RewardTrack, error) {
	unlock, err := e.lockFarm(p.Farm)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !e.Authorized(p.Farm, p.Funder) {
		return nil, fmt.Errorf("%w: %s may not fund farm %s", ErrUnauthorized, p.Funder, p.Farm)
	}
	f, err := e.farmCopy(p.Farm)
	if err != nil {
		return nil, err
	}
	id, ok := f.TrackFor(p.Currency)
	if !ok {
		return nil, fmt.Errorf("%w: farm %s has no %s track", ErrInvalidArgument, p.Farm, p.Currency)
	}
	if err := fundTrack(&f, id, p.Amount, p.DurationSec, now.Unix()); err != nil {
		return nil, err
	}

	source := p.Source
	if source == "" {
		source = p.Funder
	}
	t := f.Track(id)
	if err := e.bank.Transfer(ctx, p.Currency, source, t.PotAccount, p.Amount); err != nil {
		e.logger.Warn("funding transfer rejected",
			zap.String("farm", p.Farm), zap.String("funder", p.Funder), zap.Error(err))
		return nil, fmt.Errorf("%w: fund %s: %v", ErrTransferFailed, p.Currency, err)
	}

	saveErr := e.commit(func(s *model.EngineState) {
		cp := f
		s.Farms[f.ID] = &cp
	})
	e.logger.Info("farm funded",
		zap.String("farm", p.Farm),
		zap.String("currency", p.Currency),
		zap.Uint64("amount", p.Amount),
		zap.Uint64("duration_sec", p.DurationSec))
	e.record(&recorder.FarmEvent{
		Timestamp: now.Unix(), EventType: recorder.EventFund, FarmID: p.Farm,
		Actor: p.Funder, Currency: p.Currency, Amount: p.Amount, TotalStaked: f.TotalStaked,
		Note: fmt.Sprintf("duration=%ds", p.DurationSec),
	})
	out := *t
	return &out, saveErr
}
