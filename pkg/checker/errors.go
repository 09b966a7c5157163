package checker

import (
	"errors"
	"fmt"
)

// Kind classifies why a step failed.
type Kind string

const (
	KindNone        Kind = ""
	KindConfig      Kind = "config"
	KindNetwork     Kind = "network"
	KindTransaction Kind = "transaction"
	KindUnsupported Kind = "unsupported"
	KindSignature   Kind = "signature"
	KindFunds       Kind = "funds"
	KindTimeout     Kind = "timeout"
	KindCall        Kind = "call"
	KindAssertion   Kind = "assertion"
	KindUnknown     Kind = "unknown"
)

var (
	// ErrReverted indicates a mined transaction reported status 0.
	ErrReverted = errors.New("transaction reverted")

	// ErrNoContractAddress indicates the deployment did not produce contract code.
	ErrNoContractAddress = errors.New("deployment produced no contract")

	// ErrCodeNotEmpty indicates a fresh account already has code.
	ErrCodeNotEmpty = errors.New("account already has code")

	// ErrDelegationNotSet indicates the account code is not a designator for the delegate.
	ErrDelegationNotSet = errors.New("account code is not a delegation to the delegate contract")

	// ErrDelegationNotCleared indicates the account still has code after revocation.
	ErrDelegationNotCleared = errors.New("account code was not cleared")

	// ErrUnexpectedValue indicates a call through the delegated account returned the wrong value.
	ErrUnexpectedValue = errors.New("unexpected value returned")

	// ErrAuthorityMismatch indicates the recovered authority is not the delegated account.
	ErrAuthorityMismatch = errors.New("authorization authority does not match account")

	// ErrBalanceNotIncreased indicates the funding transfer did not reach the account.
	ErrBalanceNotIncreased = errors.New("account balance did not increase by the funding amount")

	// ErrInsufficientFunds indicates the funder cannot cover the funding amount.
	ErrInsufficientFunds = errors.New("funder balance is below the funding amount")

	// ErrNoBaseFee indicates the latest block has no base fee, so fee-market transactions are unavailable.
	ErrNoBaseFee = errors.New("latest block has no base fee")
)

// StepError is the failure of a single step.
type StepError struct {
	Step Step
	Kind Kind
	Err  error
}

func (e *StepError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}

	return fmt.Sprintf("step %s failed (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// withKind tags err with kind. The step is filled in by the runner.
func withKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}

	return &StepError{Kind: kind, Err: err}
}

// KindOf returns the kind carried by err, classifying untagged errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var stepErr *StepError
	if errors.As(err, &stepErr) && stepErr.Kind != KindNone {
		return stepErr.Kind
	}

	return Classify(err)
}
