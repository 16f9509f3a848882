package custody

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"GemFarm/internal/calculator"
)

type balanceKey struct {
	currency string
	account  string
}

type vaultRecord struct {
	gems   uint64
	locked bool
}

// MemoryBank is an in-process Bank used by the daemon, the CLI and tests.
// A bank opened with OpenMemoryBank writes every change through to its file.
type MemoryBank struct {
	mu       sync.Mutex
	balances map[balanceKey]uint64
	vaults   map[string]vaultRecord
	filePath string

	failTransfers map[string]bool
	failLocks     bool
}

// NewMemoryBank creates an empty bank.
func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		balances:      make(map[balanceKey]uint64),
		vaults:        make(map[string]vaultRecord),
		failTransfers: make(map[string]bool),
	}
}

// FailTransfers makes every transfer of currency fail until called again with false.
func (b *MemoryBank) FailTransfers(currency string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failTransfers[currency] = fail
}

// FailLocks makes every SetLocked call fail until called again with false.
func (b *MemoryBank) FailLocks(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failLocks = fail
}

// mutateLocked runs fn and persists the result. When the write fails the change
// is rolled back, so memory never holds what the file does not. Callers hold b.mu.
func (b *MemoryBank) mutateLocked(fn func() error) error {
	if b.filePath == "" {
		return fn()
	}
	balances, vaults := maps.Clone(b.balances), maps.Clone(b.vaults)
	if err := fn(); err != nil {
		return err
	}
	if err := b.saveLocked(); err != nil {
		b.balances, b.vaults = balances, vaults
		return err
	}
	return nil
}

// Mint credits amount of currency to account.
func (b *MemoryBank) Mint(currency, account string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.mutateLocked(func() error {
		k := balanceKey{currency, account}
		sum, err := calculator.AddUint64(b.balances[k], amount)
		if err != nil {
			return err
		}
		b.balances[k] = sum
		return nil
	})
}

// Balance returns the balance of currency held by account.
func (b *MemoryBank) Balance(currency, account string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[balanceKey{currency, account}]
}

// Transfer implements Transferer.
func (b *MemoryBank) Transfer(ctx context.Context, currency, from, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failTransfers[currency] {
		return fmt.Errorf("transfer %s: rejected by bank", currency)
	}
	src := balanceKey{currency, from}
	dst := balanceKey{currency, to}
	if b.balances[src] < amount {
		return fmt.Errorf("transfer %d %s from %s: %w", amount, currency, from, ErrInsufficientFunds)
	}
	if from == to {
		return nil
	}
	return b.mutateLocked(func() error {
		credited, err := calculator.AddUint64(b.balances[dst], amount)
		if err != nil {
			return err
		}
		b.balances[src] -= amount
		b.balances[dst] = credited
		return nil
	})
}

// OpenVault implements VaultOpener. Reopening an existing vault is a no-op.
func (b *MemoryBank) OpenVault(ctx context.Context, vault string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.vaults[vault]; ok {
		return nil
	}
	return b.mutateLocked(func() error {
		b.vaults[vault] = vaultRecord{}
		return nil
	})
}

// DepositGems adds gems to a vault. Deposits are allowed only while it is unlocked.
func (b *MemoryBank) DepositGems(vault string, count uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.vaults[vault]
	if !ok {
		return fmt.Errorf("deposit into %s: %w", vault, ErrUnknownVault)
	}
	if v.locked {
		return fmt.Errorf("deposit into %s: %w", vault, ErrVaultLocked)
	}
	sum, err := calculator.AddUint64(v.gems, count)
	if err != nil {
		return err
	}
	return b.mutateLocked(func() error {
		v.gems = sum
		b.vaults[vault] = v
		return nil
	})
}

// WithdrawGems removes gems from an unlocked vault.
func (b *MemoryBank) WithdrawGems(vault string, count uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.vaults[vault]
	if !ok {
		return fmt.Errorf("withdraw from %s: %w", vault, ErrUnknownVault)
	}
	if v.locked {
		return fmt.Errorf("withdraw from %s: %w", vault, ErrVaultLocked)
	}
	left, err := calculator.SubUint64(v.gems, count)
	if err != nil {
		return fmt.Errorf("withdraw from %s: %w", vault, err)
	}
	return b.mutateLocked(func() error {
		v.gems = left
		b.vaults[vault] = v
		return nil
	})
}

// SetLocked implements VaultLocker.
func (b *MemoryBank) SetLocked(ctx context.Context, vault string, locked bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failLocks {
		return fmt.Errorf("lock %s: rejected by bank", vault)
	}
	v, ok := b.vaults[vault]
	if !ok {
		return fmt.Errorf("lock %s: %w", vault, ErrUnknownVault)
	}
	if v.locked == locked {
		return nil
	}
	return b.mutateLocked(func() error {
		v.locked = locked
		b.vaults[vault] = v
		return nil
	})
}

// GemBalance implements GemCounter.
func (b *MemoryBank) GemBalance(_ context.Context, vault string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.vaults[vault]
	if !ok {
		return 0, fmt.Errorf("balance of %s: %w", vault, ErrUnknownVault)
	}
	return v.gems, nil
}

// IsLocked reports the custody gate of a vault.
func (b *MemoryBank) IsLocked(vault string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.vaults[vault]
	return ok && v.locked
}
