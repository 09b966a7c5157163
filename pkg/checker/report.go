package checker

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Step names a stage of the check.
type Step string

const (
	StepConnect       Step = "connect"
	StepDeploy        Step = "deploy"
	StepCreateAccount Step = "create_account"
	StepFund          Step = "fund"
	StepAuthorize     Step = "authorize"
	StepDelegate      Step = "delegate"
	StepVerify        Step = "verify"
	StepStorage       Step = "storage"
	StepRevoke        Step = "revoke"
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	// OutcomeVerified means the delegated account returned the expected constant.
	OutcomeVerified Outcome = "verified"
	// OutcomeDelegationFailed means the type-4 transaction was mined but delegation did not behave as expected.
	OutcomeDelegationFailed Outcome = "delegation_failed"
	// OutcomeTxRejected means the node refused or reverted the type-4 transaction.
	OutcomeTxRejected Outcome = "tx_rejected"
	// OutcomeSetupFailed means the run failed before the type-4 transaction was submitted.
	OutcomeSetupFailed Outcome = "setup_failed"
)

type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// StepResult records how a single step went.
type StepResult struct {
	Step     Step          `json:"step"`
	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
	Fields   logrus.Fields `json:"fields,omitempty"`
	Kind     Kind          `json:"kind,omitempty"`
	Error    string        `json:"error,omitempty"`

	err error
}

// Err returns the step's error, if any.
func (s *StepResult) Err() error {
	return s.err
}

// Report is the result of a single run.
type Report struct {
	Network       string         `json:"network"`
	ChainID       *big.Int       `json:"chainId,omitempty"`
	ClientVersion string         `json:"clientVersion,omitempty"`
	ClientType    string         `json:"clientType,omitempty"`
	Funder        common.Address `json:"funder"`
	Account       common.Address `json:"account"`
	Delegate      common.Address `json:"delegate"`

	AuthorizationNonce *uint64     `json:"authorizationNonce,omitempty"`
	DelegationTx       common.Hash `json:"delegationTx"`
	ExpectedValue      uint64      `json:"expectedValue"`
	ReturnedValue      *big.Int    `json:"returnedValue,omitempty"`

	Outcome    Outcome      `json:"outcome"`
	Steps      []StepResult `json:"steps"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`

	err error
}

// Success reports whether the delegation was verified.
func (r *Report) Success() bool {
	return r.Outcome == OutcomeVerified
}

// Err returns the error that ended the run, or nil on success.
func (r *Report) Err() error {
	return r.err
}

// FailedStep returns the step that ended the run, or nil on success.
func (r *Report) FailedStep() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Status == StepStatusFailed {
			return &r.Steps[i]
		}
	}

	return nil
}

// FailureKind returns the kind of the failed step, or KindNone on success.
func (r *Report) FailureKind() Kind {
	if step := r.FailedStep(); step != nil {
		return step.Kind
	}

	return KindNone
}

// Step returns the result for step, or nil if it never ran.
func (r *Report) Step(step Step) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Step == step {
			return &r.Steps[i]
		}
	}

	return nil
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// outcomeFor maps a failure at step to the run outcome.
func outcomeFor(step Step, kind Kind) Outcome {
	switch step {
	case StepConnect, StepDeploy, StepCreateAccount, StepFund, StepAuthorize:
		return OutcomeSetupFailed
	case StepDelegate:
		if kind == KindTimeout || kind == KindNetwork {
			return OutcomeDelegationFailed
		}

		return OutcomeTxRejected
	default:
		return OutcomeDelegationFailed
	}
}
