package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"GemFarm/internal/custody"
	"GemFarm/internal/farm"
	"GemFarm/internal/recorder"
)

// session is an engine over the state file with the file-backed custody bank.
type session struct {
	eng  *farm.Engine
	bank *custody.MemoryBank
	rec  recorder.Recorder
}

func (s *session) Close() error { return s.rec.Close() }

func openSession() (*session, error) {
	bank, err := custody.OpenMemoryBank(cfg.Custody.File)
	if err != nil {
		return nil, fmt.Errorf("open custody: %w", err)
	}
	rec := openRecorder(cfg.Database.SQLitePath)
	eng, err := farm.NewEngine(farm.Options{
		StateFile: cfg.State.File,
		Bank:      bank,
		Recorder:  rec,
		Logger:    logger,
	})
	if err != nil {
		rec.Close()
		return nil, err
	}
	return &session{eng: eng, bank: bank, rec: rec}, nil
}

// withSession opens a session for one command and prints what fn returns as JSON.
func withSession(fn func(ctx context.Context, s *session, now time.Time) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		out, err := fn(ctx, s, opTime())
		if !isNil(out) {
			if perr := printJSON(cmd.OutOrStdout(), out); perr != nil && err == nil {
				err = perr
			}
		}
		return err
	}
}

// isNil reports whether v is nil or wraps a nil pointer or map.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		return rv.IsNil()
	}
	return false
}

var atUnix int64

// opTime is the timestamp operations run at: --at when given, otherwise now.
func opTime() time.Time {
	if atUnix != 0 {
		return time.Unix(atUnix, 0)
	}
	return time.Now()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an amount", farm.ErrInvalidArgument, s)
	}
	return n, nil
}

var initFarmParams farm.InitFarmParams

var farmCmd = &cobra.Command{
	Use:   "farm",
	Short: "Create farms and manage their funders",
}

var farmInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a farm with two reward tracks",
	Args:  cobra.NoArgs,
	RunE: withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
		return s.eng.InitFarm(ctx, now, initFarmParams)
	}),
}

var manager string

var farmAuthorizeCmd = &cobra.Command{
	Use:   "authorize <farm-id> <funder>",
	Short: "Allow a funder to fund the farm",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
			return s.eng.AuthorizeFunder(ctx, now, args[0], manager, args[1])
		})(cmd, args)
	},
}

var farmDeauthorizeCmd = &cobra.Command{
	Use:   "deauthorize <farm-id> <funder>",
	Short: "Revoke a funder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
			return nil, s.eng.DeauthorizeFunder(ctx, now, args[0], manager, args[1])
		})(cmd, args)
	},
}

var fundParams farm.FundParams

var fundCmd = &cobra.Command{
	Use:   "fund <farm-id>",
	Short: "Fund a reward track, replacing its current rate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
			p := fundParams
			p.Farm = args[0]
			return s.eng.Fund(ctx, now, p)
		})(cmd, args)
	},
}

var farmerCmd = &cobra.Command{
	Use:   "farmer",
	Short: "Register and refresh farmers",
}

var farmerInitCmd = &cobra.Command{
	Use:   "init <farm-id> <owner>",
	Short: "Register owner on the farm and open their vault",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
			fr, v, err := s.eng.InitFarmer(ctx, now, args[0], args[1])
			if fr == nil {
				return nil, err
			}
			return map[string]any{"farmer": fr, "vault": v}, err
		})(cmd, args)
	},
}

var farmerRefreshCmd = &cobra.Command{
	Use:   "refresh <farm-id> <owner>",
	Short: "Bring the farmer's claimable rewards up to date",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
			return s.eng.RefreshFarmer(ctx, now, args[0], farm.FarmerID(args[0], args[1]))
		})(cmd, args)
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit <farm-id> <owner> <gems>",
	Short: "Put gems into the owner's vault",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
			return vaultGems(ctx, s, args, s.bank.DepositGems)
		})(cmd, args)
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <farm-id> <owner> <gems>",
	Short: "Take gems out of the owner's unlocked vault",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
			return vaultGems(ctx, s, args, s.bank.WithdrawGems)
		})(cmd, args)
	},
}

// vaultGems applies move to the vault of args[1] on farm args[0] and reports the new balance.
func vaultGems(ctx context.Context, s *session, args []string, move func(vault string, count uint64) error) (any, error) {
	n, err := parseAmount(args[2])
	if err != nil {
		return nil, err
	}
	fr, err := s.eng.Farmer(farm.FarmerID(args[0], args[1]))
	if err != nil {
		return nil, err
	}
	if err := move(fr.Vault, n); err != nil {
		return nil, err
	}
	gems, err := s.bank.GemBalance(ctx, fr.Vault)
	if err != nil {
		return nil, err
	}
	return map[string]any{"vault": fr.Vault, "gems": gems}, nil
}

var stakeCmd = &cobra.Command{
	Use:   "stake <farm-id> <owner>",
	Short: "Lock the owner's vault and stake every gem in it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
			return s.eng.Stake(ctx, now, args[0], farm.FarmerID(args[0], args[1]), args[1])
		})(cmd, args)
	},
}

var unstakeCmd = &cobra.Command{
	Use:   "unstake <farm-id> <owner>",
	Short: "End staking, or end the cooldown and unlock the vault",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
			return s.eng.Unstake(ctx, now, args[0], farm.FarmerID(args[0], args[1]), args[1])
		})(cmd, args)
	},
}

var claimTo string

var claimCmd = &cobra.Command{
	Use:   "claim <farm-id> <owner> [currency...]",
	Short: "Pay out claimable rewards; all currencies when none are named",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
			res, err := s.eng.Claim(ctx, now, farm.ClaimParams{
				Farm:        args[0],
				Farmer:      farm.FarmerID(args[0], args[1]),
				Owner:       args[1],
				Currencies:  args[2:],
				Destination: claimTo,
			})
			if res == nil {
				return nil, err
			}
			paid := make(map[string]uint64, len(res.Payouts))
			for _, p := range res.Payouts {
				if p.Err == nil {
					paid[p.Currency] = p.Amount
				}
			}
			return paid, err
		})(cmd, args)
	},
}

var mintCmd = &cobra.Command{
	Use:   "mint <currency> <account> <amount>",
	Short: "Credit currency to an account in the local custody bank",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session, now time.Time) (any, error) {
			n, err := parseAmount(args[2])
			if err != nil {
				return nil, err
			}
			if err := s.bank.Mint(args[0], args[1], n); err != nil {
				return nil, err
			}
			return map[string]uint64{args[1]: s.bank.Balance(args[0], args[1])}, nil
		})(cmd, args)
	},
}

func init() {
	for _, c := range []*cobra.Command{farmInitCmd, farmAuthorizeCmd, farmDeauthorizeCmd, fundCmd,
		farmerInitCmd, farmerRefreshCmd, depositCmd, withdrawCmd, stakeCmd, unstakeCmd, claimCmd} {
		c.Flags().Int64Var(&atUnix, "at", 0, "Unix time to run the operation at (default: now)")
	}

	f := farmInitCmd.Flags()
	f.StringVar(&initFarmParams.ID, "id", "", "Farm ID (default: random UUID)")
	f.StringVar(&initFarmParams.Manager, "manager", "", "Manager identity")
	f.StringVar(&initFarmParams.Bank, "bank", "", "Gem bank the farm accepts")
	f.StringVar(&initFarmParams.RewardA, "reward-a", "", "Currency of reward track A")
	f.StringVar(&initFarmParams.RewardB, "reward-b", "", "Currency of reward track B")
	f.Uint64Var(&initFarmParams.MinStakingPeriodSec, "min-staking", 0, "Minimum staking period in seconds")
	f.Uint64Var(&initFarmParams.CooldownPeriodSec, "cooldown", 0, "Cooldown after unstaking in seconds")
	_ = farmInitCmd.MarkFlagRequired("manager")

	for _, c := range []*cobra.Command{farmAuthorizeCmd, farmDeauthorizeCmd} {
		c.Flags().StringVar(&manager, "manager", "", "Manager identity")
		_ = c.MarkFlagRequired("manager")
	}

	f = fundCmd.Flags()
	f.StringVar(&fundParams.Funder, "funder", "", "Authorized funder")
	f.StringVar(&fundParams.Source, "source", "", "Account paying the rewards (default: funder)")
	f.StringVar(&fundParams.Currency, "currency", "", "Reward currency")
	f.Uint64Var(&fundParams.Amount, "amount", 0, "Amount to fund")
	f.Uint64Var(&fundParams.DurationSec, "duration", 0, "Reward window in seconds")
	for _, name := range []string{"funder", "currency", "amount", "duration"} {
		_ = fundCmd.MarkFlagRequired(name)
	}

	claimCmd.Flags().StringVar(&claimTo, "to", "", "Destination account (default: owner)")

	farmCmd.AddCommand(farmInitCmd, farmAuthorizeCmd, farmDeauthorizeCmd)
	farmerCmd.AddCommand(farmerInitCmd, farmerRefreshCmd)
	rootCmd.AddCommand(farmCmd, fundCmd, farmerCmd, depositCmd, withdrawCmd, stakeCmd, unstakeCmd, claimCmd, mintCmd)
}
