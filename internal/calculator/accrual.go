package calculator

import (
	"errors"

	"cosmossdk.io/math"
)

var (
	// ErrOverflow is returned when an amount would exceed uint64.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("arithmetic underflow")
)

// AddUint64 adds with an overflow check.
func AddUint64(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// SubUint64 subtracts with an underflow check.
func SubUint64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// AddSeconds offsets a unix timestamp by sec with an overflow check.
func AddSeconds(ts int64, sec uint64) (int64, error) {
	const maxInt64 = 1<<63 - 1
	if sec > maxInt64 {
		return 0, ErrOverflow
	}
	if ts > 0 && int64(sec) > maxInt64-ts {
		return 0, ErrOverflow
	}
	return ts + int64(sec), nil
}

// RewardRate returns amount/durationSec truncated to 18 decimals.
func RewardRate(amount, durationSec uint64) (math.LegacyDec, error) {
	if durationSec == 0 {
		return math.LegacyDec{}, errors.New("duration must be positive")
	}
	return decFromUint64(amount).QuoTruncate(decFromUint64(durationSec)), nil
}

// AccruableSeconds returns the part of [from, to] that lies before end.
func AccruableSeconds(from, to, end int64) uint64 {
	if to > end {
		to = end
	}
	if from >= to {
		return 0
	}
	return uint64(to - from)
}

// AccrueRewardPerUnit advances the per-unit accumulator by elapsed*rate/totalStaked.
// Nothing accrues while totalStaked is zero. Every division truncates.
func AccrueRewardPerUnit(acc, rate math.LegacyDec, elapsedSec, totalStaked uint64) math.LegacyDec {
	if totalStaked == 0 || elapsedSec == 0 || rate.IsZero() {
		return acc
	}
	emitted := rate.MulTruncate(decFromUint64(elapsedSec))
	return acc.Add(emitted.QuoTruncate(decFromUint64(totalStaked)))
}

// EarnedSince returns staked*(acc-snapshot), truncated to whole units.
func EarnedSince(staked uint64, acc, snapshot math.LegacyDec) (uint64, error) {
	if staked == 0 {
		return 0, nil
	}
	diff := acc.Sub(snapshot)
	if diff.IsNegative() {
		return 0, ErrUnderflow
	}
	earned := diff.MulTruncate(decFromUint64(staked)).TruncateInt()
	if !earned.IsUint64() {
		return 0, ErrOverflow
	}
	return earned.Uint64(), nil
}

func decFromUint64(v uint64) math.LegacyDec {
	return math.LegacyNewDecFromInt(math.NewIntFromUint64(v))
}
