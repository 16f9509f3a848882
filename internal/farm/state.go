package farm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"GemFarm/internal/model"
)

// LoadState reads the engine state from a JSON file. Returns an empty state if the file doesn't exist.
func LoadState(filePath string) (*model.EngineState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewEngineState(), nil
		}
		return nil, err
	}
	state := model.NewEngineState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return state, nil
}

// SaveState writes the engine state to a JSON file via a temp file and rename.
func SaveState(filePath string, state *model.EngineState) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
