package farm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GemFarm/internal/custody"
	"GemFarm/internal/model"
)

const (
	manager = "manager"
	funder  = "funder"
	usdc    = "USDC"
	bonk    = "BONK"
)

var t0 = time.Unix(1_700_000_000, 0)

func at(sec int64) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

type fixture struct {
	t    *testing.T
	ctx  context.Context
	bank *custody.MemoryBank
	eng  *Engine
	farm string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, Options{}, InitFarmParams{})
}

func newFixtureWith(t *testing.T, opts Options, p InitFarmParams) *fixture {
	t.Helper()
	bank := custody.NewMemoryBank()
	opts.Bank = bank
	eng, err := NewEngine(opts)
	require.NoError(t, err)

	p.Manager, p.Bank, p.RewardA, p.RewardB = manager, "bank-1", usdc, bonk
	f, err := eng.InitFarm(context.Background(), t0, p)
	require.NoError(t, err)

	fx := &fixture{t: t, ctx: context.Background(), bank: bank, eng: eng, farm: f.ID}
	require.NoError(t, bank.Mint(usdc, funder, 1_000_000))
	require.NoError(t, bank.Mint(bonk, funder, 1_000_000))
	_, err = eng.AuthorizeFunder(fx.ctx, t0, f.ID, manager, funder)
	require.NoError(t, err)
	return fx
}

// farmer registers owner and deposits gems into their vault.
func (fx *fixture) farmer(owner string, gems uint64) *model.Farmer {
	fx.t.Helper()
	fr, v, err := fx.eng.InitFarmer(fx.ctx, t0, fx.farm, owner)
	require.NoError(fx.t, err)
	if gems > 0 {
		require.NoError(fx.t, fx.bank.DepositGems(v.ID, gems))
	}
	return fr
}

func (fx *fixture) fund(currency string, amount, duration uint64, now time.Time) {
	fx.t.Helper()
	_, err := fx.eng.Fund(fx.ctx, now, FundParams{
		Farm: fx.farm, Funder: funder, Currency: currency, Amount: amount, DurationSec: duration,
	})
	require.NoError(fx.t, err)
}

func (fx *fixture) stake(fr *model.Farmer, now time.Time) *model.Farmer {
	fx.t.Helper()
	out, err := fx.eng.Stake(fx.ctx, now, fx.farm, fr.ID, fr.Owner)
	require.NoError(fx.t, err)
	return out
}

func (fx *fixture) unstake(fr *model.Farmer, now time.Time) *model.Farmer {
	fx.t.Helper()
	out, err := fx.eng.Unstake(fx.ctx, now, fx.farm, fr.ID, fr.Owner)
	require.NoError(fx.t, err)
	return out
}

func (fx *fixture) claim(fr *model.Farmer, now time.Time, currencies ...string) *ClaimResult {
	fx.t.Helper()
	res, err := fx.eng.Claim(fx.ctx, now, ClaimParams{
		Farm: fx.farm, Farmer: fr.ID, Owner: fr.Owner, Currencies: currencies,
	})
	require.NoError(fx.t, err)
	return res
}

func (fx *fixture) farmState() *model.Farm {
	fx.t.Helper()
	f, err := fx.eng.Farm(fx.farm)
	require.NoError(fx.t, err)
	return f
}

func TestInitFarm(t *testing.T) {
	fx := newFixture(t)
	f := fx.farmState()

	assert.Equal(t, manager, f.Manager)
	assert.Zero(t, f.TotalStaked)
	assert.Zero(t, f.ActiveFarmerCount)
	assert.Equal(t, usdc, f.RewardA.Currency)
	assert.Equal(t, bonk, f.RewardB.Currency)
	assert.True(t, f.RewardA.AccRewardPerUnit.IsZero())

	_, err := fx.eng.InitFarm(fx.ctx, t0, InitFarmParams{ID: f.ID, Manager: manager, RewardA: usdc, RewardB: bonk})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = fx.eng.InitFarm(fx.ctx, t0, InitFarmParams{Manager: manager, RewardA: usdc, RewardB: usdc})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestInitFarmer(t *testing.T) {
	fx := newFixture(t)
	fr, v, err := fx.eng.InitFarmer(fx.ctx, t0, fx.farm, "alice")
	require.NoError(t, err)

	assert.Equal(t, model.FarmerUnstaked, fr.State)
	assert.Zero(t, fr.Staked)
	assert.False(t, v.Locked)
	assert.Equal(t, fr.Vault, v.ID)
	assert.Equal(t, FarmerID(fx.farm, "alice"), fr.ID)

	_, _, err = fx.eng.InitFarmer(fx.ctx, t0, fx.farm, "alice")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, _, err = fx.eng.InitFarmer(fx.ctx, t0, "no-such-farm", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthorizeFunder_Idempotent(t *testing.T) {
	fx := newFixture(t)

	first, err := fx.eng.AuthorizeFunder(fx.ctx, at(10), fx.farm, manager, "carol")
	require.NoError(t, err)
	before := fx.eng.Authorizations(fx.farm)

	second, err := fx.eng.AuthorizeFunder(fx.ctx, at(20), fx.farm, manager, "carol")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	if diff := cmp.Diff(before, fx.eng.Authorizations(fx.farm)); diff != "" {
		t.Errorf("authorization set changed (-before +after):\n%s", diff)
	}
}

func TestDeauthorizeFunder_NotIdempotent(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.eng.DeauthorizeFunder(fx.ctx, t0, fx.farm, manager, funder))
	err := fx.eng.DeauthorizeFunder(fx.ctx, t0, fx.farm, manager, funder)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, fx.eng.Authorized(fx.farm, funder))
}

func TestFunderManagement_RequiresManager(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.eng.AuthorizeFunder(fx.ctx, t0, fx.farm, "mallory", "mallory")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, fx.eng.Authorized(fx.farm, "mallory"))

	err = fx.eng.DeauthorizeFunder(fx.ctx, t0, fx.farm, "mallory", funder)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, fx.eng.Authorized(fx.farm, funder))
}

func TestFund_Gating(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.bank.Mint(usdc, "dave", 500))
	params := FundParams{Farm: fx.farm, Funder: "dave", Currency: usdc, Amount: 100, DurationSec: 10}

	_, err := fx.eng.Fund(fx.ctx, t0, params)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = fx.eng.AuthorizeFunder(fx.ctx, t0, fx.farm, manager, "dave")
	require.NoError(t, err)
	_, err = fx.eng.Fund(fx.ctx, t0, params)
	require.NoError(t, err)

	require.NoError(t, fx.eng.DeauthorizeFunder(fx.ctx, t0, fx.farm, manager, "dave"))
	_, err = fx.eng.Fund(fx.ctx, t0, params)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, uint64(100), fx.farmState().RewardA.TotalFunded)
	assert.Equal(t, uint64(400), fx.bank.Balance(usdc, "dave"))
}

func TestFund_RejectsBadInput(t *testing.T) {
	fx := newFixture(t)
	tests := []struct {
		name string
		p    FundParams
		want error
	}{
		{"zero amount", FundParams{Currency: usdc, Amount: 0, DurationSec: 10}, ErrInvalidArgument},
		{"zero duration", FundParams{Currency: usdc, Amount: 10, DurationSec: 0}, ErrInvalidArgument},
		{"unknown currency", FundParams{Currency: "DOGE", Amount: 10, DurationSec: 10}, ErrInvalidArgument},
		{"insufficient funds", FundParams{Currency: usdc, Amount: 2_000_000, DurationSec: 10}, ErrTransferFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.Farm, tt.p.Funder = fx.farm, funder
			_, err := fx.eng.Fund(fx.ctx, t0, tt.p)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	f := fx.farmState()
	assert.Zero(t, f.RewardA.TotalFunded)
	assert.True(t, f.RewardA.RewardRate.IsZero())
	assert.Equal(t, uint64(1_000_000), fx.bank.Balance(usdc, funder))
}

func TestFund_MovesCurrencyIntoPot(t *testing.T) {
	fx := newFixture(t)
	fx.fund(usdc, 10000, 100, t0)

	f := fx.farmState()
	assert.Equal(t, uint64(10000), fx.bank.Balance(usdc, f.RewardA.PotAccount))
	assert.Equal(t, uint64(990_000), fx.bank.Balance(usdc, funder))
	assert.Equal(t, "100.000000000000000000", f.RewardA.RewardRate.String())
	assert.Equal(t, at(100).Unix(), f.RewardA.RewardEndTs)
}

func TestStakeUnstake_RoundTrip(t *testing.T) {
	fx := newFixture(t)
	fx.fund(usdc, 10000, 100, t0)
	alice := fx.farmer("alice", 5)

	staked := fx.stake(alice, t0)
	f := fx.farmState()
	assert.Equal(t, uint64(1), f.ActiveFarmerCount)
	assert.Equal(t, uint64(5), f.TotalStaked)
	assert.Equal(t, uint64(5), staked.Staked)
	assert.True(t, fx.bank.IsLocked(alice.Vault))

	out := fx.unstake(alice, at(40))
	f = fx.farmState()
	assert.Zero(t, f.ActiveFarmerCount)
	assert.Zero(t, f.TotalStaked)
	assert.Zero(t, out.Staked)
	assert.False(t, fx.bank.IsLocked(alice.Vault))
	assert.Equal(t, uint64(4000), out.RewardA.Claimable)
	assert.Zero(t, out.RewardB.Claimable)

	// claimable survives the unstake and stays payable
	res := fx.claim(alice, at(90))
	assert.Equal(t, uint64(4000), res.Paid(usdc))
	assert.Equal(t, uint64(4000), fx.bank.Balance(usdc, "alice"))
	require.NoError(t, fx.eng.CheckInvariants(fx.farm))
}

func TestClaim_SingleFarmerFullDuration(t *testing.T) {
	for _, gems := range []uint64{1, 3, 7, 10} {
		fx := newFixture(t)
		alice := fx.farmer("alice", gems)
		fx.stake(alice, t0)
		fx.fund(usdc, 10000, 100, at(5))

		res := fx.claim(alice, at(150))
		paid := res.Paid(usdc)
		assert.LessOrEqual(t, paid, uint64(10000), "gems=%d", gems)
		assert.GreaterOrEqual(t, paid, uint64(9999), "gems=%d", gems)
		if 10000%gems == 0 {
			assert.Equal(t, uint64(10000), paid, "gems=%d", gems)
		}
	}
}

func TestNoRewardWithoutStake(t *testing.T) {
	fx := newFixture(t)
	fx.fund(usdc, 10000, 100, t0)
	alice := fx.farmer("alice", 2)

	// nobody staked during [0, 50]
	refreshed, err := fx.eng.RefreshFarmer(fx.ctx, at(50), fx.farm, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, refreshed.RewardA.Claimable)

	fx.stake(alice, at(50))
	res := fx.claim(alice, at(200))
	assert.Equal(t, uint64(5000), res.Paid(usdc))
}

func TestTwoFarmers_SplitByStakeAndTime(t *testing.T) {
	fx := newFixture(t)
	alice := fx.farmer("alice", 1)
	bob := fx.farmer("bob", 3)

	fx.stake(alice, t0)
	fx.fund(usdc, 10000, 100, t0)
	fx.stake(bob, at(50))

	assert.Equal(t, uint64(6250), fx.claim(alice, at(100)).Paid(usdc))
	assert.Equal(t, uint64(3750), fx.claim(bob, at(100)).Paid(usdc))
	require.NoError(t, fx.eng.CheckInvariants(fx.farm))
}

func TestFund_ReplacesRate(t *testing.T) {
	fx := newFixture(t)
	alice := fx.farmer("alice", 1)
	fx.stake(alice, t0)

	fx.fund(usdc, 10000, 100, t0)
	// halfway through, a new funding restarts the window at the new rate
	fx.fund(usdc, 1000, 10, at(50))

	res := fx.claim(alice, at(500))
	assert.Equal(t, uint64(5000+1000), res.Paid(usdc))
	assert.Equal(t, uint64(11000), fx.farmState().RewardA.TotalFunded)
}

func TestStake_Preconditions(t *testing.T) {
	fx := newFixture(t)
	empty := fx.farmer("empty", 0)
	_, err := fx.eng.Stake(fx.ctx, t0, fx.farm, empty.ID, "empty")
	assert.ErrorIs(t, err, ErrInvalidState)

	alice := fx.farmer("alice", 4)
	_, err = fx.eng.Stake(fx.ctx, t0, fx.farm, alice.ID, "bob")
	assert.ErrorIs(t, err, ErrUnauthorized)

	fx.stake(alice, t0)
	_, err = fx.eng.Stake(fx.ctx, at(1), fx.farm, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState)

	fx.unstake(alice, at(2))
	_, err = fx.eng.Unstake(fx.ctx, at(3), fx.farm, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStake_LockFailureRecordsNothing(t *testing.T) {
	fx := newFixture(t)
	alice := fx.farmer("alice", 4)

	fx.bank.FailLocks(true)
	_, err := fx.eng.Stake(fx.ctx, t0, fx.farm, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrTransferFailed)

	f := fx.farmState()
	assert.Zero(t, f.TotalStaked)
	assert.Zero(t, f.ActiveFarmerCount)
	fr, err := fx.eng.Farmer(alice.ID)
	require.NoError(t, err)
	assert.Zero(t, fr.Staked)
	assert.Equal(t, model.FarmerUnstaked, fr.State)

	fx.bank.FailLocks(false)
	fx.stake(alice, at(1))
}

func TestUnstake_MinStakingPeriod(t *testing.T) {
	fx := newFixtureWith(t, Options{}, InitFarmParams{MinStakingPeriodSec: 60})
	alice := fx.farmer("alice", 1)
	fx.stake(alice, t0)

	_, err := fx.eng.Unstake(fx.ctx, at(59), fx.farm, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState)
	fx.unstake(alice, at(60))
}

func TestUnstake_NoCooldownUnlocksAtOnce(t *testing.T) {
	fx := newFixture(t)
	alice := fx.farmer("alice", 2)
	fx.stake(alice, t0)

	out := fx.unstake(alice, at(10))
	assert.Equal(t, model.FarmerUnstaked, out.State)
	assert.Zero(t, out.CooldownEndsTs)
	assert.False(t, fx.bank.IsLocked(alice.Vault))
	require.NoError(t, fx.bank.WithdrawGems(alice.Vault, 2))
}

func TestUnstake_CooldownKeepsVaultLocked(t *testing.T) {
	fx := newFixtureWith(t, Options{}, InitFarmParams{CooldownPeriodSec: 30})
	fx.fund(usdc, 10000, 100, t0)
	alice := fx.farmer("alice", 2)
	fx.stake(alice, t0)

	cooling := fx.unstake(alice, at(20))
	assert.Equal(t, model.FarmerPendingCooldown, cooling.State)
	assert.Zero(t, cooling.Staked)
	assert.Equal(t, at(50).Unix(), cooling.CooldownEndsTs)
	assert.Equal(t, uint64(2000), cooling.RewardA.Claimable)
	assert.True(t, fx.bank.IsLocked(alice.Vault))
	assert.ErrorIs(t, fx.bank.WithdrawGems(alice.Vault, 2), custody.ErrVaultLocked)

	f := fx.farmState()
	assert.Zero(t, f.TotalStaked)
	assert.Zero(t, f.ActiveFarmerCount)
	require.NoError(t, fx.eng.CheckInvariants(fx.farm))

	_, err := fx.eng.Stake(fx.ctx, at(30), fx.farm, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState, "cannot restake while cooling down")
	_, err = fx.eng.Unstake(fx.ctx, at(49), fx.farm, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState)

	// nothing accrues to a cooling farmer
	done := fx.unstake(alice, at(50))
	assert.Equal(t, model.FarmerUnstaked, done.State)
	assert.Equal(t, uint64(2000), done.RewardA.Claimable)
	assert.False(t, fx.bank.IsLocked(alice.Vault))
	require.NoError(t, fx.eng.CheckInvariants(fx.farm))

	_, err = fx.eng.Unstake(fx.ctx, at(60), fx.farm, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, uint64(2000), fx.claim(alice, at(60), usdc).Paid(usdc))
}

func TestFund_BackdatedFundDoesNotRewindTrack(t *testing.T) {
	fx := newFixture(t)
	alice := fx.farmer("alice", 1)
	fx.fund(usdc, 10000, 100, at(100))
	fx.stake(alice, at(100))

	fx.fund(usdc, 1000, 10, at(50))
	f := fx.farmState()
	assert.Equal(t, at(100).Unix(), f.RewardA.LastUpdateTs)
	assert.Equal(t, at(110).Unix(), f.RewardA.RewardEndTs)

	// alice staked at 100, so nothing before it is hers
	assert.Equal(t, uint64(1000), fx.claim(alice, at(200), usdc).Paid(usdc))
	require.NoError(t, fx.eng.CheckInvariants(fx.farm))
}

func TestOwnershipMismatch(t *testing.T) {
	fx := newFixture(t)
	other, err := fx.eng.InitFarm(fx.ctx, t0, InitFarmParams{Manager: manager, RewardA: usdc, RewardB: bonk})
	require.NoError(t, err)

	fx.fund(usdc, 10000, 100, t0)
	alice := fx.farmer("alice", 3)
	fx.stake(alice, t0)
	before := fx.farmState()

	_, err = fx.eng.Unstake(fx.ctx, at(50), other.ID, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = fx.eng.Stake(fx.ctx, at(50), other.ID, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = fx.eng.Claim(fx.ctx, at(50), ClaimParams{Farm: other.ID, Farmer: alice.ID, Owner: "alice"})
	assert.ErrorIs(t, err, ErrInvalidState)

	after := fx.farmState()
	assert.Equal(t, before.TotalStaked, after.TotalStaked)
	assert.True(t, before.RewardA.AccRewardPerUnit.Equal(after.RewardA.AccRewardPerUnit))
	assert.Zero(t, fx.bank.Balance(usdc, "alice"))
	otherFarm, err := fx.eng.Farm(other.ID)
	require.NoError(t, err)
	assert.Zero(t, otherFarm.TotalStaked)
}

func TestClaim_TracksAreIndependent(t *testing.T) {
	fx := newFixture(t)
	alice := fx.farmer("alice", 2)
	fx.stake(alice, t0)
	fx.fund(usdc, 1000, 100, t0)
	fx.fund(bonk, 500, 100, t0)

	fx.bank.FailTransfers(bonk, true)
	res, err := fx.eng.Claim(fx.ctx, at(100), ClaimParams{Farm: fx.farm, Farmer: alice.ID, Owner: "alice"})
	assert.ErrorIs(t, err, ErrTransferFailed)
	require.NotNil(t, res)
	assert.Equal(t, uint64(1000), res.Paid(usdc))
	assert.Zero(t, res.Paid(bonk))

	fr, err := fx.eng.Farmer(alice.ID)
	require.NoError(t, err)
	assert.Zero(t, fr.RewardA.Claimable)
	assert.Equal(t, uint64(1000), fr.RewardA.PaidOut)
	assert.Equal(t, uint64(500), fr.RewardB.Claimable)

	fx.bank.FailTransfers(bonk, false)
	res = fx.claim(alice, at(120), bonk)
	assert.Equal(t, uint64(500), res.Paid(bonk))
	assert.Equal(t, uint64(1000), fx.bank.Balance(usdc, "alice"))
	assert.Equal(t, uint64(500), fx.bank.Balance(bonk, "alice"))
	require.NoError(t, fx.eng.CheckInvariants(fx.farm))
}

func TestClaim_AllTransfersFailedChangesNothing(t *testing.T) {
	fx := newFixture(t)
	alice := fx.farmer("alice", 1)
	fx.stake(alice, t0)
	fx.fund(usdc, 1000, 100, t0)
	before, err := fx.eng.Farmer(alice.ID)
	require.NoError(t, err)

	fx.bank.FailTransfers(usdc, true)
	_, err = fx.eng.Claim(fx.ctx, at(50), ClaimParams{Farm: fx.farm, Farmer: alice.ID, Owner: "alice", Currencies: []string{usdc}})
	assert.ErrorIs(t, err, ErrTransferFailed)

	after, err := fx.eng.Farmer(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, before.RewardA.Claimable, after.RewardA.Claimable)
	assert.True(t, before.RewardA.Snapshot.Equal(after.RewardA.Snapshot))
}

func TestClaim_UnknownCurrency(t *testing.T) {
	fx := newFixture(t)
	alice := fx.farmer("alice", 1)
	_, err := fx.eng.Claim(fx.ctx, t0, ClaimParams{Farm: fx.farm, Farmer: alice.ID, Owner: "alice", Currencies: []string{"DOGE"}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEngine_PersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "farm.json")
	fx := newFixtureWith(t, Options{StateFile: path}, InitFarmParams{})
	alice := fx.farmer("alice", 2)
	fx.stake(alice, t0)
	fx.fund(usdc, 1000, 100, t0)

	reloaded, err := NewEngine(Options{StateFile: path, Bank: fx.bank})
	require.NoError(t, err)
	assert.Equal(t, []string{fx.farm}, reloaded.Farms())
	assert.True(t, reloaded.Authorized(fx.farm, funder))

	res, err := reloaded.Claim(fx.ctx, at(100), ClaimParams{Farm: fx.farm, Farmer: alice.ID, Owner: "alice"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), res.Paid(usdc))
	require.NoError(t, reloaded.CheckInvariants(fx.farm))
}

func TestSnapshot_ProjectsPendingRewards(t *testing.T) {
	fx := newFixture(t)
	alice := fx.farmer("alice", 1)
	bob := fx.farmer("bob", 1)
	fx.stake(alice, t0)
	fx.stake(bob, t0)
	fx.fund(usdc, 1000, 100, t0)

	snap, err := fx.eng.Snapshot(fx.farm, at(50))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.ActiveFarmerCount)
	require.Len(t, snap.Tracks, 2)
	assert.Equal(t, uint64(500), snap.Tracks[0].TotalClaimable)
	assert.Zero(t, snap.Tracks[1].TotalClaimable)

	// snapshots are read-only
	f := fx.farmState()
	assert.Equal(t, t0.Unix(), f.RewardA.LastUpdateTs)
}

func TestEngine_ReloadRestoresCustodyLocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.json")
	fx := newFixtureWith(t, Options{StateFile: path}, InitFarmParams{})
	alice := fx.farmer("alice", 2)
	fx.stake(alice, t0)

	// a fresh custody backend knows nothing about alice's vault until the engine restores it
	bank := custody.NewMemoryBank()
	reloaded, err := NewEngine(Options{StateFile: path, Bank: bank})
	require.NoError(t, err)
	assert.True(t, bank.IsLocked(alice.Vault))

	out, err := reloaded.Unstake(fx.ctx, at(10), fx.farm, alice.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.FarmerUnstaked, out.State)
	assert.False(t, bank.IsLocked(alice.Vault))
}

func TestEngine_ReloadPicksUpOtherWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.json")
	mirror := custody.NewMemoryBank()
	reader, err := NewEngine(Options{StateFile: path, Bank: mirror})
	require.NoError(t, err)
	assert.Empty(t, reader.Farms())

	fx := newFixtureWith(t, Options{StateFile: path}, InitFarmParams{})
	alice := fx.farmer("alice", 2)
	fx.stake(alice, t0)
	require.NoError(t, reader.Reload())
	assert.Equal(t, []string{fx.farm}, reader.Farms())
	assert.True(t, mirror.IsLocked(alice.Vault), "vaults opened by the writer are mirrored")

	snap, err := reader.Snapshot(fx.farm, t0)
	require.NoError(t, err)
	assert.Equal(t, fx.farm, snap.FarmID)
}

func TestEngine_ReportsPersistFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	fx := newFixtureWith(t, Options{StateFile: filepath.Join(dir, "farm.json")}, InitFarmParams{})
	alice := fx.farmer("alice", 2)

	// a regular file where the directory should be makes every save fail
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, nil, 0644))

	out, err := fx.eng.Stake(fx.ctx, t0, fx.farm, alice.ID, "alice")
	assert.ErrorIs(t, err, ErrPersist)
	require.NotNil(t, out)
	assert.Equal(t, model.FarmerStaked, out.State)
	assert.Equal(t, uint64(2), fx.farmState().TotalStaked, "the change stays in memory")
	require.NoError(t, fx.eng.CheckInvariants(fx.farm))

	_, err = fx.eng.Claim(fx.ctx, at(10), ClaimParams{Farm: fx.farm, Farmer: alice.ID, Owner: "alice"})
	assert.ErrorIs(t, err, ErrPersist)
}
