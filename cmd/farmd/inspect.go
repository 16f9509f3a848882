package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"GemFarm/internal/custody"
	"GemFarm/internal/farm"
	"GemFarm/internal/model"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [farm-id...]",
	Short: "Print farm snapshots from the state file as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openOffline()
		if err != nil {
			return err
		}
		return inspect(cmd.OutOrStdout(), eng, args, time.Now())
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify stake and reward invariants for every farm",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openOffline()
		if err != nil {
			return err
		}
		return check(cmd.OutOrStdout(), eng)
	},
}

// openOffline loads the engine read-only against an empty custody backend.
func openOffline() (*farm.Engine, error) {
	return farm.NewEngine(farm.Options{
		StateFile: cfg.State.File,
		Bank:      custody.NewMemoryBank(),
		Logger:    logger,
	})
}

func inspect(w io.Writer, eng *farm.Engine, ids []string, now time.Time) error {
	if len(ids) == 0 {
		ids = eng.Farms()
	}
	snaps := make([]*model.FarmSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := eng.Snapshot(id, now)
		if err != nil {
			return fmt.Errorf("farm %s: %w", id, err)
		}
		snaps = append(snaps, snap)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snaps)
}

func check(w io.Writer, eng *farm.Engine) error {
	var failed int
	for _, id := range eng.Farms() {
		if err := eng.CheckInvariants(id); err != nil {
			failed++
			fmt.Fprintf(w, "FAIL %s: %v\n", id, err)
			continue
		}
		fmt.Fprintf(w, "ok   %s\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d farm(s) failed invariant checks", failed)
	}
	return nil
}
