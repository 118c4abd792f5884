// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package errs defines the protocol failure taxonomy. Every rejected
// operation carries one of the kinds below; wrapping with pkg/errors
// preserves the kind so callers can match with Is.
package errs

import (
	stderrors "errors"
	"fmt"
)

// Kind names a failure class.
type Kind string

// Authorisation failures.
const (
	KindUnauthorized      Kind = "unauthorized"
	KindSenderNotNewOwner Kind = "sender is not the proposed owner"
	KindNotWhitelisted    Kind = "sender is not whitelisted"
)

// Input validation failures.
const (
	KindInvalidZeroAmount        Kind = "invalid zero amount"
	KindAssetMismatch            Kind = "asset mismatch"
	KindAssetUnknown             Kind = "asset unknown"
	KindDuplicatedPools          Kind = "duplicated pools"
	KindNotSupportedProfitStep   Kind = "profit step is not supported"
	KindInvalidValidatorAddress  Kind = "invalid validator address"
	KindProtocolRewardFeeTooHigh Kind = "protocol reward fee too high"
	KindFeeTooHigh               Kind = "fee too high"
	KindCantBeZero               Kind = "cant be zero"
	KindValidatorWhitelisted     Kind = "validator is already whitelisted"
	KindValidatorNotWhitelisted  Kind = "validator is not whitelisted"
)

// Timing failures.
const (
	KindSubmitBatchAfter  Kind = "batch can only be submitted later"
	KindExecutionInFuture Kind = "execution is in the future"
)

// Resource failures.
const (
	KindNoTokensAvailable       Kind = "no tokens available"
	KindNotEnoughFundsTakeable  Kind = "not enough funds takeable"
	KindNotEnoughAssetsInPool   Kind = "not enough assets in the pool"
	KindNotEnoughProfit         Kind = "not enough profit"
	KindNoWithdrawableAsset     Kind = "no withdrawable asset"
	KindNothingToUnbond         Kind = "nothing to unbond"
	KindNothingToWithdraw       Kind = "nothing to withdraw"
	KindNothingToDeposit        Kind = "nothing to deposit"
)

// State machine failures.
const (
	KindAlreadyExecuting      Kind = "already executing"
	KindNotExecuting          Kind = "not executing"
	KindWithdrawBeforeExecute Kind = "withdraw from liquid staking before execute"
	KindDonationsDisabled     Kind = "donations are disabled"
	KindLockExpired           Kind = "lock expired"
	KindLockNotExpired        Kind = "lock has not expired"
	KindLockAlreadyExists     Kind = "lock already exists"
	KindLockNotFound          Kind = "lock not found"
	KindBlacklisted           Kind = "address is blacklisted"
)

// Gauge failures.
const (
	KindZeroVotingPower      Kind = "zero voting power"
	KindTuneNoValidators     Kind = "no validators can be tuned"
	KindDuplicatedValidators Kind = "duplicated validators"
	KindVotesTooRecent       Kind = "votes changed too recently"
	KindEmpNotTuned          Kind = "EMP not tuned."
	KindNoVamp               Kind = "No vAMP. Vote first before tuning."
)

// Error is a kinded protocol error.
type Error struct {
	kind Kind
	msg  string
}

// Kind returns the failure class.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.msg == "" {
		return string(e.kind)
	}
	return string(e.kind) + ": " + e.msg
}

// New creates a kinded error with no extra detail.
func New(kind Kind) error {
	return &Error{kind: kind}
}

// Newf creates a kinded error with formatted detail.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var perr *Error
	if stderrors.As(err, &perr) {
		return perr.kind == kind
	}
	return false
}
