package custody

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// bankFile is the on-disk form of a MemoryBank.
type bankFile struct {
	// Balances maps currency to account to amount.
	Balances map[string]map[string]uint64 `json:"balances"`
	Vaults   map[string]vaultFile         `json:"vaults"`
}

type vaultFile struct {
	Gems   uint64 `json:"gems"`
	Locked bool   `json:"locked"`
}

// OpenMemoryBank loads a bank from a JSON file and writes every later change back
// to it. A missing file starts an empty bank.
func OpenMemoryBank(filePath string) (*MemoryBank, error) {
	b := NewMemoryBank()
	b.filePath = filePath

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, err
	}
	var f bankFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	for currency, accounts := range f.Balances {
		for account, amount := range accounts {
			b.balances[balanceKey{currency, account}] = amount
		}
	}
	for id, v := range f.Vaults {
		b.vaults[id] = vaultRecord{gems: v.Gems, locked: v.Locked}
	}
	return b, nil
}

// saveLocked writes the bank via a temp file and rename. Callers hold b.mu.
func (b *MemoryBank) saveLocked() error {
	f := bankFile{
		Balances: make(map[string]map[string]uint64),
		Vaults:   make(map[string]vaultFile, len(b.vaults)),
	}
	for k, amount := range b.balances {
		if amount == 0 {
			continue
		}
		if f.Balances[k.currency] == nil {
			f.Balances[k.currency] = make(map[string]uint64)
		}
		f.Balances[k.currency][k.account] = amount
	}
	for id, v := range b.vaults {
		f.Vaults[id] = vaultFile{Gems: v.gems, Locked: v.locked}
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(b.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save bank: %w", err)
		}
	}
	tmp := b.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("save bank: %w", err)
	}
	if err := os.Rename(tmp, b.filePath); err != nil {
		return fmt.Errorf("save bank: %w", err)
	}
	return nil
}
