package farm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"GemFarm/internal/calculator"
	"GemFarm/internal/model"
	"GemFarm/internal/recorder"
)

// ClaimParams selects what a farmer claims.
type ClaimParams struct {
	Farm   string
	Farmer string
	Owner  string
	// Currencies to claim. Empty claims both tracks.
	Currencies []string
	// Destination receives the payout; defaults to Owner.
	Destination string
}

// Payout is the outcome of claiming one currency.
type Payout struct {
	Track    model.TrackID
	Currency string
	Amount   uint64
	Err      error
}

// ClaimResult lists one Payout per requested currency.
type ClaimResult struct {
	Payouts []Payout
}

// Paid returns the amount paid out for currency.
func (r *ClaimResult) Paid(currency string) uint64 {
	for _, p := range r.Payouts {
		if p.Currency == currency && p.Err == nil {
			return p.Amount
		}
	}
	return 0
}

// Claim settles the farmer up to now and pays out each requested currency
// independently. A failed transfer leaves that currency's claimable balance in
// place for a retry and does not undo payouts of other currencies.
func (e *Engine) Claim(ctx context.Context, now time.Time, p ClaimParams) (*ClaimResult, error) {
	unlock, err := e.lockFarm(p.Farm)
	if err != nil {
		return nil, err
	}
	defer unlock()

	pos, err := e.loadPosition(p.Farm, p.Farmer, p.Owner)
	if err != nil {
		return nil, err
	}
	tracks, err := resolveTracks(&pos.farm, p.Currencies)
	if err != nil {
		return nil, err
	}
	dest := p.Destination
	if dest == "" {
		dest = p.Owner
	}

	ts := now.Unix()
	if err := reconcile(&pos.farm, &pos.farmer, ts); err != nil {
		return nil, err
	}

	result := &ClaimResult{}
	var failures []error
	paidAny := false
	for _, id := range tracks {
		t := pos.farm.Track(id)
		r := pos.farmer.Reward(id)
		payout := Payout{Track: id, Currency: t.Currency, Amount: r.Claimable}
		if payout.Amount == 0 {
			result.Payouts = append(result.Payouts, payout)
			continue
		}

		paid, err := calculator.AddUint64(r.PaidOut, payout.Amount)
		if err == nil {
			var claimed uint64
			claimed, err = calculator.AddUint64(t.TotalClaimed, payout.Amount)
			if err == nil {
				err = e.bank.Transfer(ctx, t.Currency, t.PotAccount, dest, payout.Amount)
				if err != nil {
					err = fmt.Errorf("%w: claim %s: %v", ErrTransferFailed, t.Currency, err)
				}
			}
			if err == nil {
				r.Claimable = 0
				r.PaidOut = paid
				t.TotalClaimed = claimed
				paidAny = true
			}
		}
		if err != nil {
			payout.Err = err
			failures = append(failures, err)
			e.logger.Warn("claim payout failed",
				zap.String("farm", p.Farm),
				zap.String("farmer", p.Farmer),
				zap.String("currency", t.Currency),
				zap.Error(err))
		}
		result.Payouts = append(result.Payouts, payout)
	}

	// with every transfer failed nothing is committed, not even the settle
	if paidAny || len(failures) == 0 {
		if err := e.commitPosition(pos); err != nil {
			failures = append(failures, err)
		}
	}

	for _, po := range result.Payouts {
		if po.Err != nil || po.Amount == 0 {
			continue
		}
		e.logger.Info("rewards claimed",
			zap.String("farm", p.Farm),
			zap.String("farmer", p.Farmer),
			zap.String("currency", po.Currency),
			zap.Uint64("amount", po.Amount))
		e.record(&recorder.FarmEvent{
			Timestamp: ts, EventType: recorder.EventClaim, FarmID: p.Farm, FarmerID: p.Farmer,
			Actor: p.Owner, Currency: po.Currency, Amount: po.Amount, TotalStaked: pos.farm.TotalStaked,
			Note: "to " + dest,
		})
	}
	return result, errors.Join(failures...)
}

func resolveTracks(f *model.Farm, currencies []string) ([]model.TrackID, error) {
	if len(currencies) == 0 {
		return model.Tracks, nil
	}
	seen := make(map[model.TrackID]bool, len(currencies))
	var out []model.TrackID
	for _, c := range currencies {
		id, ok := f.TrackFor(c)
		if !ok {
			return nil, fmt.Errorf("%w: farm %s has no %s track", ErrInvalidArgument, f.ID, c)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}
