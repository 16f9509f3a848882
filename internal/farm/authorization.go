package farm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"GemFarm/internal/model"
	"GemFarm/internal/recorder"
)

func authorizationKey(farmID, funder string) string {
	return farmID + "/" + funder
}

func (e *Engine) requireManager(farmID, manager string) error {
	f, err := e.farmCopy(farmID)
	if err != nil {
		return err
	}
	if f.Manager != manager {
		return fmt.Errorf("%w: %s is not the manager of farm %s", ErrUnauthorized, manager, farmID)
	}
	return nil
}

// AuthorizeFunder lets funder add rewards to the farm. Authorizing an already
// authorized funder succeeds and returns the existing authorization unchanged.
func (e *Engine) AuthorizeFunder(ctx context.Context, now time.Time, farmID, manager, funder string) (*model.FunderAuthorization, error) {
	unlock, err := e.lockFarm(farmID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := e.requireManager(farmID, manager); err != nil {
		return nil, err
	}
	if funder == "" {
		return nil, fmt.Errorf("%w: funder is required", ErrInvalidArgument)
	}

	key := authorizationKey(farmID, funder)
	e.mu.RLock()
	existing, ok := e.state.Authorizations[key]
	e.mu.RUnlock()
	if ok {
		cp := *existing
		return &cp, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	auth := model.FunderAuthorization{Farm: farmID, Funder: funder, AuthorizedAt: now.Unix()}
	saveErr := e.commit(func(s *model.EngineState) {
		a := auth
		s.Authorizations[key] = &a
	})
	e.logger.Info("funder authorized", zap.String("farm", farmID), zap.String("funder", funder))
	e.record(&recorder.FarmEvent{
		Timestamp: now.Unix(), EventType: recorder.EventAuthorize,
		FarmID: farmID, Actor: manager, Note: funder,
	})
	return &auth, saveErr
}

// DeauthorizeFunder revokes a funder. Revoking a funder that is not authorized fails with ErrNotFound.
func (e *Engine) DeauthorizeFunder(ctx context.Context, now time.Time, farmID, manager, funder string) error {
	unlock, err := e.lockFarm(farmID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := e.requireManager(farmID, manager); err != nil {
		return err
	}

	key := authorizationKey(farmID, funder)
	e.mu.RLock()
	_, ok := e.state.Authorizations[key]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("authorization for %s on farm %s: %w", funder, farmID, ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	saveErr := e.commit(func(s *model.EngineState) {
		delete(s.Authorizations, key)
	})
	e.logger.Info("funder deauthorized", zap.String("farm", farmID), zap.String("funder", funder))
	e.record(&recorder.FarmEvent{
		Timestamp: now.Unix(), EventType: recorder.EventDeauthorize,
		FarmID: farmID, Actor: manager, Note: funder,
	})
	return saveErr
}

// Authorized reports whether funder may fund the farm.
func (e *Engine) Authorized(farmID, funder string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.state.Authorizations[authorizationKey(farmID, funder)]
	return ok
}

// Authorizations lists the funders authorized on a farm.
func (e *Engine) Authorizations(farmID string) []model.FunderAuthorization {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []model.FunderAuthorization
	for _, a := range e.state.Authorizations {
		if a.Farm == farmID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Funder < out[j].Funder })
	return out
}
