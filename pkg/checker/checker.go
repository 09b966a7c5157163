package checker

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/eip7702-checker/pkg/authorization"
	pcommon "github.com/ethpandaops/eip7702-checker/pkg/common"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum/execution"
)

// Checker runs the delegation check against a single execution node.
type Checker struct {
	log       logrus.FieldLogger
	node      *execution.Node
	ethConfig *ethereum.Config
	config    *Config

	signHash authorization.HashSigner
	newKey   func() (*ecdsa.PrivateKey, error)
}

type Option func(*Checker)

// WithHashSigner replaces the signer used for authorizations.
func WithHashSigner(signer authorization.HashSigner) Option {
	return func(c *Checker) {
		c.signHash = signer
	}
}

// WithKeyGenerator replaces the generator used for the delegated account key.
func WithKeyGenerator(fn func() (*ecdsa.PrivateKey, error)) Option {
	return func(c *Checker) {
		c.newKey = fn
	}
}

func New(log logrus.FieldLogger, node *execution.Node, ethConfig *ethereum.Config, config *Config, opts ...Option) *Checker {
	c := &Checker{
		log:       log.WithField("component", "checker"),
		node:      node,
		ethConfig: ethConfig,
		config:    config,
		signHash:  authorization.DefaultSigner,
		newKey:    crypto.GenerateKey,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// session carries state between the steps of one run.
type session struct {
	report *Report

	chainID *big.Int
	signer  types.Signer

	funderKey *ecdsa.PrivateKey
	funder    common.Address

	accountKey *ecdsa.PrivateKey
	account    common.Address

	delegate common.Address
	auth     *authorization.Authorization
}

func (s *session) chainLabel() string {
	if s.chainID == nil {
		return "unknown"
	}

	return s.chainID.String()
}

type stepFunc func(ctx context.Context, s *session) (logrus.Fields, error)

type plannedStep struct {
	step    Step
	run     stepFunc
	enabled bool
}

func (c *Checker) plan() []plannedStep {
	return []plannedStep{
		{step: StepConnect, run: c.connect, enabled: true},
		{step: StepDeploy, run: c.deploy, enabled: true},
		{step: StepCreateAccount, run: c.createAccount, enabled: true},
		{step: StepFund, run: c.fund, enabled: true},
		{step: StepAuthorize, run: c.authorize, enabled: true},
		{step: StepDelegate, run: c.submitDelegation, enabled: true},
		{step: StepVerify, run: c.verify, enabled: true},
		{step: StepStorage, run: c.checkStorage, enabled: c.config.Verify.Storage},
		{step: StepRevoke, run: c.revoke, enabled: c.config.Verify.Revoke},
	}
}

// Run executes every step in order and stops at the first failure. It never
// returns nil; inspect Report.Success and Report.Err for the result.
func (c *Checker) Run(ctx context.Context) *Report {
	report := &Report{
		Network:       "unknown",
		ExpectedValue: c.config.ExpectedConstant,
		StartedAt:     time.Now(),
	}

	s := &session{report: report}

	defer func() {
		if err := c.node.Stop(context.WithoutCancel(ctx)); err != nil {
			c.log.WithError(err).Warn("Failed to stop execution node")
		}
	}()

	for _, planned := range c.plan() {
		if !planned.enabled {
			report.Steps = append(report.Steps, StepResult{Step: planned.step, Status: StepStatusSkipped})

			continue
		}

		result := c.runStep(ctx, s, planned.step, planned.run)
		report.Steps = append(report.Steps, result)

		if result.err != nil {
			report.err = result.err
			report.Outcome = outcomeFor(planned.step, result.Kind)

			break
		}
	}

	if report.err == nil {
		report.Outcome = OutcomeVerified
	}

	report.FinishedAt = time.Now()

	c.record(s, report)

	return report
}

func (c *Checker) runStep(ctx context.Context, s *session, step Step, fn stepFunc) StepResult {
	log := c.log.WithField("step", step)
	log.Debug("Running step")

	start := time.Now()

	fields, err := fn(ctx, s)

	result := StepResult{
		Step:     step,
		Status:   StepStatusSuccess,
		Duration: time.Since(start),
		Fields:   fields,
	}

	if err != nil {
		kind := KindOf(err)

		var stepErr *StepError
		if errors.As(err, &stepErr) && stepErr.Step == "" {
			stepErr.Step = step
			stepErr.Kind = kind
		} else {
			err = &StepError{Step: step, Kind: kind, Err: err}
		}

		result.Status = StepStatusFailed
		result.Kind = kind
		result.Error = err.Error()
		result.err = err
	}

	pcommon.StepDuration.WithLabelValues(s.chainLabel(), string(step), string(result.Status)).Observe(result.Duration.Seconds())

	entry := log.WithField("duration", result.Duration.String())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}

	if err != nil {
		entry.WithError(err).WithField("kind", result.Kind).Error("Step failed")
	} else {
		entry.Info("Step completed")
	}

	return result
}

func (c *Checker) record(s *session, report *Report) {
	chainID := s.chainLabel()

	pcommon.RunsTotal.WithLabelValues(chainID, string(report.Outcome)).Inc()
	pcommon.LastRunTimestamp.WithLabelValues(chainID).Set(float64(report.FinishedAt.Unix()))

	success := 0.0
	if report.Success() {
		success = 1
	}

	pcommon.LastRunSuccess.WithLabelValues(chainID).Set(success)

	log := c.log.WithFields(logrus.Fields{
		"outcome":  report.Outcome,
		"network":  report.Network,
		"duration": report.Duration().String(),
	})

	if report.Success() {
		log.Info("EIP-7702 delegation verified")

		return
	}

	log.WithError(report.err).Error("EIP-7702 delegation check failed")
}
