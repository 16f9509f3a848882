// Package custody defines the token and vault capabilities the farm engine consumes.
package custody

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds is returned when the source account cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownVault is returned for a vault the bank never opened.
	ErrUnknownVault = errors.New("unknown vault")

	// ErrVaultLocked is returned when gems are moved out of a locked vault.
	ErrVaultLocked = errors.New("vault locked")
)

// Transferer moves amount units of currency between accounts. It is all-or-nothing:
// on error neither account changes.
type Transferer interface {
	Transfer(ctx context.Context, currency, from, to string, amount uint64) error
}

// VaultOpener registers a new empty, unlocked vault.
type VaultOpener interface {
	OpenVault(ctx context.Context, vault string) error
}

// VaultLocker flips the custody gate of a vault.
type VaultLocker interface {
	SetLocked(ctx context.Context, vault string, locked bool) error
}

// GemCounter reports how many gems a vault holds.
type GemCounter interface {
	GemBalance(ctx context.Context, vault string) (uint64, error)
}

// Bank bundles every capability the engine needs from its environment.
type Bank interface {
	Transferer
	VaultOpener
	VaultLocker
	GemCounter
}
