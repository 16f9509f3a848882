// Package farm implements the staking and reward accounting engine.
package farm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"GemFarm/internal/custody"
	"GemFarm/internal/model"
	"GemFarm/internal/recorder"
)

// Options configures an Engine.
type Options struct {
	// StateFile is where the engine persists its state. Empty disables persistence.
	StateFile string
	Bank      custody.Bank
	Recorder  recorder.Recorder
	Logger    *zap.Logger
}

// Engine owns every farm entity and serialises changes per farm.
type Engine struct {
	// mu guards the state maps and locks; it is held only while copying in or committing.
	mu    sync.RWMutex
	state *model.EngineState
	// locks holds one exclusive section per farm. An operation keeps its farm's lock
	// from first read to commit so no two changes on a farm interleave.
	locks map[string]*sync.Mutex

	bank     custody.Bank
	rec      recorder.Recorder
	logger   *zap.Logger
	filePath string
}

// NewEngine creates an Engine, loading state from disk when a state file is configured.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Bank == nil {
		return nil, fmt.Errorf("%w: bank is required", ErrInvalidArgument)
	}
	state := model.NewEngineState()
	if opts.StateFile != "" {
		loaded, err := LoadState(opts.StateFile)
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}
		state = loaded
	}
	normalize(state)

	e := &Engine{
		state:    state,
		locks:    make(map[string]*sync.Mutex, len(state.Farms)),
		bank:     opts.Bank,
		rec:      opts.Recorder,
		logger:   opts.Logger,
		filePath: opts.StateFile,
	}
	if e.rec == nil {
		e.rec = recorder.NewNoopRecorder()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	for id := range state.Farms {
		e.locks[id] = &sync.Mutex{}
	}
	if err := e.restoreVaults(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// restoreVaults makes custody agree with the loaded state: every vault is open and
// locked exactly when the state says so.
func (e *Engine) restoreVaults(ctx context.Context) error {
	e.mu.RLock()
	vaults := make([]model.Vault, 0, len(e.state.Vaults))
	for _, v := range e.state.Vaults {
		vaults = append(vaults, *v)
	}
	e.mu.RUnlock()

	for _, v := range vaults {
		if err := e.bank.OpenVault(ctx, v.ID); err != nil {
			return fmt.Errorf("%w: reopen vault %s: %v", ErrTransferFailed, v.ID, err)
		}
		if err := e.bank.SetLocked(ctx, v.ID, v.Locked); err != nil {
			return fmt.Errorf("%w: restore lock on vault %s: %v", ErrTransferFailed, v.ID, err)
		}
	}
	return nil
}

// Reload replaces the in-memory state with the state file and brings custody in
// line with it. It is meant for processes that only read, such as the snapshot
// daemon, while another process writes the file.
func (e *Engine) Reload() error {
	if e.filePath == "" {
		return nil
	}
	state, err := LoadState(e.filePath)
	if err != nil {
		return fmt.Errorf("reload state: %w", err)
	}
	normalize(state)

	e.mu.Lock()
	e.state = state
	for id := range state.Farms {
		if _, ok := e.locks[id]; !ok {
			e.locks[id] = &sync.Mutex{}
		}
	}
	e.mu.Unlock()
	return e.restoreVaults(context.Background())
}

func normalize(s *model.EngineState) {
	if s.Farms == nil {
		s.Farms = make(map[string]*model.Farm)
	}
	if s.Farmers == nil {
		s.Farmers = make(map[string]*model.Farmer)
	}
	if s.Vaults == nil {
		s.Vaults = make(map[string]*model.Vault)
	}
	if s.Authorizations == nil {
		s.Authorizations = make(map[string]*model.FunderAuthorization)
	}
}

// lockFarm enters the farm's exclusive section. The returned func leaves it.
func (e *Engine) lockFarm(farmID string) (func(), error) {
	e.mu.RLock()
	l, ok := e.locks[farmID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("farm %s: %w", farmID, ErrNotFound)
	}
	l.Lock()
	return l.Unlock, nil
}

// farmCopy returns a detached copy of a farm. Callers hold the farm lock.
func (e *Engine) farmCopy(farmID string) (model.Farm, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.state.Farms[farmID]
	if !ok {
		return model.Farm{}, fmt.Errorf("farm %s: %w", farmID, ErrNotFound)
	}
	return *f, nil
}

// position is a detached copy of everything one farmer operation reads.
type position struct {
	farm   model.Farm
	farmer model.Farmer
	vault  model.Vault
}

// loadPosition copies a farm, farmer and vault and checks that they belong together
// and that actor owns the farmer.
func (e *Engine) loadPosition(farmID, farmerID, actor string) (*position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	f, ok := e.state.Farms[farmID]
	if !ok {
		return nil, fmt.Errorf("farm %s: %w", farmID, ErrNotFound)
	}
	fr, ok := e.state.Farmers[farmerID]
	if !ok {
		return nil, fmt.Errorf("farmer %s: %w", farmerID, ErrNotFound)
	}
	v, ok := e.state.Vaults[fr.Vault]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", fr.Vault, ErrNotFound)
	}
	if fr.Farm != farmID || v.Farm != farmID || v.Farmer != fr.ID {
		return nil, fmt.Errorf("%w: vault %s does not belong to farm %s", ErrInvalidState, v.ID, farmID)
	}
	if actor != fr.Owner {
		return nil, fmt.Errorf("%w: %s does not own farmer %s", ErrUnauthorized, actor, farmerID)
	}
	return &position{farm: *f, farmer: *fr, vault: *v}, nil
}

// commit installs the given entities and persists the state. A non-nil error wraps
// ErrPersist; the entities are installed either way.
func (e *Engine) commit(apply func(s *model.EngineState)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	apply(e.state)
	return e.saveLocked()
}

// saveLocked persists the state. Callers hold e.mu.
func (e *Engine) saveLocked() error {
	if e.filePath == "" {
		return nil
	}
	if err := SaveState(e.filePath, e.state); err != nil {
		e.logger.Error("failed to save farm state", zap.String("file", e.filePath), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrPersist, e.filePath, err)
	}
	return nil
}

func (e *Engine) commitPosition(p *position) error {
	farm, farmer, vault := p.farm, p.farmer, p.vault
	return e.commit(func(s *model.EngineState) {
		s.Farms[farm.ID] = &farm
		s.Farmers[farmer.ID] = &farmer
		s.Vaults[vault.ID] = &vault
	})
}

func (e *Engine) record(evt *recorder.FarmEvent) {
	if err := e.rec.RecordFarmEvent(evt); err != nil {
		e.logger.Error("record farm event",
			zap.String("type", string(evt.EventType)),
			zap.String("farm", evt.FarmID),
			zap.Error(err))
	}
}

// Farm returns a copy of a farm.
func (e *Engine) Farm(farmID string) (*model.Farm, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.state.Farms[farmID]
	if !ok {
		return nil, fmt.Errorf("farm %s: %w", farmID, ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

// Farmer returns a copy of a farmer.
func (e *Engine) Farmer(farmerID string) (*model.Farmer, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.state.Farmers[farmerID]
	if !ok {
		return nil, fmt.Errorf("farmer %s: %w", farmerID, ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

// Vault returns a copy of a vault.
func (e *Engine) Vault(vaultID string) (*model.Vault, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.state.Vaults[vaultID]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", vaultID, ErrNotFound)
	}
	cp := *v
	return &cp, nil
}

// Farms returns the IDs of all farms in sorted order.
func (e *Engine) Farms() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.state.Farms))
	for id := range e.state.Farms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FarmersOf returns copies of every farmer registered under farmID, sorted by ID.
func (e *Engine) FarmersOf(farmID string) []model.Farmer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.farmersOfLocked(farmID)
}

func (e *Engine) farmersOfLocked(farmID string) []model.Farmer {
	var out []model.Farmer
	for _, f := range e.state.Farmers {
		if f.Farm == farmID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
