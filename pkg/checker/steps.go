package checker

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/eip7702-checker/pkg/authorization"
	pcommon "github.com/ethpandaops/eip7702-checker/pkg/common"
	"github.com/ethpandaops/eip7702-checker/pkg/delegate"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum"
)

func addressOf(key *ecdsa.PrivateKey) common.Address {
	return ethereum.AddressOf(key)
}

// submitter returns the key that sends transactions to the delegated account.
func (c *Checker) submitter(s *session) *ecdsa.PrivateKey {
	if c.config.Submission.Sponsored {
		return s.funderKey
	}

	return s.accountKey
}

func (c *Checker) observeGas(s *session, step Step, receipt *types.Receipt) {
	pcommon.GasUsed.WithLabelValues(s.chainLabel(), string(step)).Set(float64(receipt.GasUsed))
}

func (c *Checker) connect(ctx context.Context, s *session) (logrus.Fields, error) {
	if err := c.node.Start(ctx); err != nil {
		kind := Classify(err)
		if kind == KindUnknown {
			kind = KindNetwork
		}

		return nil, withKind(kind, err)
	}

	chainID := c.node.ChainID()
	if chainID == nil || chainID.Sign() == 0 {
		return nil, withKind(KindNetwork, errors.New("node did not report a chain ID"))
	}

	if c.config.ChainID != 0 && (!chainID.IsUint64() || chainID.Uint64() != c.config.ChainID) {
		return nil, withKind(KindConfig, fmt.Errorf("%w: node reports %s, expected %d",
			ethereum.ErrChainIDMismatch, chainID, c.config.ChainID))
	}

	s.chainID = chainID
	s.signer = types.LatestSignerForChainID(chainID)

	s.report.ChainID = chainID
	s.report.ClientVersion = c.node.ClientVersion()
	s.report.ClientType = string(c.node.ClientType())
	s.report.Network = c.ethConfig.NetworkName(chainID.Uint64())

	funderKey, err := ethereum.ParsePrivateKey(c.config.FunderPrivateKey)
	if err != nil {
		return nil, withKind(KindConfig, fmt.Errorf("invalid funder key: %w", err))
	}

	s.funderKey = funderKey
	s.funder = addressOf(funderKey)
	s.report.Funder = s.funder

	balance, err := c.node.BalanceAt(ctx, s.funder)
	if err != nil {
		return nil, fmt.Errorf("failed to get funder balance: %w", err)
	}

	fields := logrus.Fields{
		"chain_id":       chainID.String(),
		"network":        s.report.Network,
		"client":         s.report.ClientVersion,
		"client_type":    s.report.ClientType,
		"funder":         s.funder.Hex(),
		"funder_balance": balance.String(),
	}

	amount, err := c.config.FundingAmountWei()
	if err != nil {
		return fields, withKind(KindConfig, err)
	}

	gasPrice, err := c.node.SuggestGasPrice(ctx)
	if err != nil {
		return fields, fmt.Errorf("failed to get gas price: %w", err)
	}

	// The funder pays for the deployment and the transfer.
	gas := new(big.Int).SetUint64(c.config.DeployGasLimit + c.config.TransferGasLimit)
	required := new(big.Int).Add(amount, gas.Mul(gas, gasPrice))

	fields["funder_required"] = required.String()

	if balance.Cmp(required) < 0 {
		return fields, fmt.Errorf("%w: %s has %s wei, needs %s (%s funding plus gas)",
			ErrInsufficientFunds, s.funder.Hex(), balance, required, amount)
	}

	return fields, nil
}

func (c *Checker) deploy(ctx context.Context, s *session) (logrus.Fields, error) {
	code, err := delegate.Code(c.config.DelegateBytecode)
	if err != nil {
		return nil, withKind(KindConfig, err)
	}

	tx, err := c.legacyTx(ctx, s, s.funderKey, nil, nil, c.config.DeployGasLimit, code)
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{"tx": tx.Hash().Hex()}

	receipt, err := c.sendAndWait(ctx, tx)
	if err != nil {
		return fields, err
	}

	c.observeGas(s, StepDeploy, receipt)

	fields["gas_used"] = receipt.GasUsed
	fields["block"] = receipt.BlockNumber.String()

	if receipt.ContractAddress == (common.Address{}) {
		return fields, fmt.Errorf("%w: receipt of %s has no contract address", ErrNoContractAddress, tx.Hash().Hex())
	}

	fields["contract"] = receipt.ContractAddress.Hex()

	deployed, err := c.node.CodeAt(ctx, receipt.ContractAddress)
	if err != nil {
		return fields, fmt.Errorf("failed to get code of %s: %w", receipt.ContractAddress.Hex(), err)
	}

	if len(deployed) == 0 {
		return fields, fmt.Errorf("%w: no code at %s", ErrNoContractAddress, receipt.ContractAddress.Hex())
	}

	fields["code_size"] = len(deployed)

	s.delegate = receipt.ContractAddress
	s.report.Delegate = receipt.ContractAddress

	return fields, nil
}

func (c *Checker) createAccount(ctx context.Context, s *session) (logrus.Fields, error) {
	configured := c.config.DelegatedPrivateKey != ""

	var (
		key *ecdsa.PrivateKey
		err error
	)

	if configured {
		key, err = ethereum.ParsePrivateKey(c.config.DelegatedPrivateKey)
		if err != nil {
			return nil, withKind(KindConfig, fmt.Errorf("invalid delegated key: %w", err))
		}
	} else {
		key, err = c.newKey()
		if err != nil {
			return nil, withKind(KindSignature, fmt.Errorf("failed to generate account key: %w", err))
		}
	}

	s.accountKey = key
	s.account = addressOf(key)
	s.report.Account = s.account

	fields := logrus.Fields{
		"account":    s.account.Hex(),
		"configured": configured,
	}

	code, err := c.node.CodeAt(ctx, s.account)
	if err != nil {
		return fields, fmt.Errorf("failed to get code of %s: %w", s.account.Hex(), err)
	}

	if len(code) != 0 {
		if previous, ok := types.ParseDelegation(code); ok {
			fields["previous_delegate"] = previous.Hex()
		}

		return fields, fmt.Errorf("%w: %s has %d bytes of code", ErrCodeNotEmpty, s.account.Hex(), len(code))
	}

	return fields, nil
}

func (c *Checker) fund(ctx context.Context, s *session) (logrus.Fields, error) {
	amount, err := c.config.FundingAmountWei()
	if err != nil {
		return nil, withKind(KindConfig, err)
	}

	before, err := c.node.BalanceAt(ctx, s.account)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", s.account.Hex(), err)
	}

	tx, err := c.legacyTx(ctx, s, s.funderKey, &s.account, amount, c.config.TransferGasLimit, nil)
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"tx":     tx.Hash().Hex(),
		"amount": amount.String(),
	}

	receipt, err := c.sendAndWait(ctx, tx)
	if err != nil {
		return fields, err
	}

	c.observeGas(s, StepFund, receipt)

	after, err := c.node.BalanceAt(ctx, s.account)
	if err != nil {
		return fields, fmt.Errorf("failed to get balance of %s: %w", s.account.Hex(), err)
	}

	fields["balance"] = after.String()

	if new(big.Int).Sub(after, before).Cmp(amount) < 0 {
		return fields, fmt.Errorf("%w: balance went from %s to %s", ErrBalanceNotIncreased, before, after)
	}

	return fields, nil
}

// signAuthorization builds and signs an authorization from the delegated account.
func (c *Checker) signAuthorization(s *session, target common.Address, nonce uint64) (*authorization.Authorization, error) {
	auth := authorization.New(s.chainID, target, nonce)

	if err := auth.SignWith(s.accountKey, c.signHash); err != nil {
		return nil, withKind(KindSignature, err)
	}

	authority, err := auth.Authority()
	if err != nil {
		return nil, withKind(KindSignature, err)
	}

	if authority != s.account {
		return nil, fmt.Errorf("%w: recovered %s, expected %s", ErrAuthorityMismatch, authority.Hex(), s.account.Hex())
	}

	return auth, nil
}

func (c *Checker) authorize(ctx context.Context, s *session) (logrus.Fields, error) {
	current, err := c.node.NonceAt(ctx, s.account)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce of %s: %w", s.account.Hex(), err)
	}

	nonce := c.config.AuthorizationNonce(current)

	fields := logrus.Fields{
		"account_nonce": current,
		"nonce":         nonce,
		"delegate":      s.delegate.Hex(),
	}

	auth, err := c.signAuthorization(s, s.delegate, nonce)
	if err != nil {
		return fields, err
	}

	hash, err := auth.SigningHash()
	if err != nil {
		return fields, withKind(KindSignature, err)
	}

	fields["hash"] = hash.Hex()
	fields["y_parity"] = auth.YParity

	s.auth = auth
	s.report.AuthorizationNonce = &nonce

	return fields, nil
}

// sendSetCode submits a type-4 transaction carrying auth. Execution of the
// call itself may revert (the delegate has no fallback) without affecting
// the delegation, so a reverted receipt is returned without an error.
func (c *Checker) sendSetCode(ctx context.Context, s *session, auth *authorization.Authorization, fields logrus.Fields) (*types.Transaction, error) {
	setCode, err := auth.SetCode()
	if err != nil {
		return nil, withKind(KindSignature, err)
	}

	key := c.submitter(s)

	tx, err := c.setCodeTx(ctx, s, key, []types.SetCodeAuthorization{setCode})
	if err != nil {
		return nil, err
	}

	fields["tx"] = tx.Hash().Hex()
	fields["sender"] = addressOf(key).Hex()

	receipt, err := c.sendAndWait(ctx, tx)
	if err != nil && !(receipt != nil && errors.Is(err, ErrReverted)) {
		if KindOf(err) == KindUnknown {
			err = withKind(KindTransaction, err)
		}

		return tx, err
	}

	fields["gas_used"] = receipt.GasUsed
	fields["block"] = receipt.BlockNumber.String()
	fields["status"] = receipt.Status

	if receipt.Status != types.ReceiptStatusSuccessful {
		c.log.WithFields(fields).Warn("Set code transaction execution reverted, authorizations still apply")
	}

	return tx, nil
}

func (c *Checker) submitDelegation(ctx context.Context, s *session) (logrus.Fields, error) {
	fields := logrus.Fields{"sponsored": c.config.Submission.Sponsored}

	tx, err := c.sendSetCode(ctx, s, s.auth, fields)
	if tx != nil {
		s.report.DelegationTx = tx.Hash()
	}

	if err != nil {
		return fields, err
	}

	if gasUsed, ok := fields["gas_used"].(uint64); ok {
		pcommon.GasUsed.WithLabelValues(s.chainLabel(), string(StepDelegate)).Set(float64(gasUsed))
	}

	mined, _, err := c.node.TransactionByHash(ctx, tx.Hash())
	if err != nil {
		c.log.WithError(err).WithField("tx", tx.Hash().Hex()).Warn("Failed to fetch mined transaction")

		return fields, nil
	}

	fields["type"] = mined.Type()

	included := mined.SetCodeAuthorizations()
	fields["authorizations"] = len(included)

	if len(included) == 0 {
		return fields, nil
	}

	// The node must have kept the signed tuple intact.
	authority, err := authorization.FromSetCode(included[0]).Authority()
	if err != nil || authority != s.account {
		c.log.WithError(err).WithFields(fields).Warn("Mined authorization does not recover to the delegated account")

		return fields, nil
	}

	fields["authority"] = authority.Hex()

	return fields, nil
}

func (c *Checker) verify(ctx context.Context, s *session) (logrus.Fields, error) {
	fields := logrus.Fields{"account": s.account.Hex()}

	result, err := c.node.CallContract(ctx, geth.CallMsg{To: &s.account, Data: delegate.GetConstantCalldata()})
	if err != nil {
		return fields, withKind(callKind(err), fmt.Errorf("getConstant() on %s failed: %w", s.account.Hex(), err))
	}

	value, err := delegate.UnpackUint256(delegate.MethodGetConstant, result)
	if err != nil {
		if errors.Is(err, delegate.ErrEmptyReturn) {
			return fields, withKind(KindAssertion, fmt.Errorf("getConstant() on %s: %w, delegation not applied", s.account.Hex(), err))
		}

		return fields, withKind(KindCall, err)
	}

	s.report.ReturnedValue = value
	fields["value"] = value.String()

	expected := new(big.Int).SetUint64(c.config.ExpectedConstant)
	if value.Cmp(expected) != 0 {
		return fields, fmt.Errorf("%w: getConstant() returned %s, expected %s", ErrUnexpectedValue, value, expected)
	}

	code, err := c.node.CodeAt(ctx, s.account)
	if err != nil {
		return fields, fmt.Errorf("failed to get code of %s: %w", s.account.Hex(), err)
	}

	target, ok := types.ParseDelegation(code)
	if !ok || target != s.delegate {
		return fields, fmt.Errorf("%w: code is %x", ErrDelegationNotSet, code)
	}

	fields["designator"] = fmt.Sprintf("%x", code)

	return fields, nil
}

func (c *Checker) checkStorage(ctx context.Context, s *session) (logrus.Fields, error) {
	want := new(big.Int).SetUint64(c.config.Verify.StorageValue)

	data, err := delegate.Pack(delegate.MethodSetValue, want)
	if err != nil {
		return nil, withKind(KindConfig, err)
	}

	tx, err := c.dynamicFeeTx(ctx, s, c.submitter(s), s.account, data)
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{
		"tx":    tx.Hash().Hex(),
		"value": want.String(),
	}

	receipt, err := c.sendAndWait(ctx, tx)
	if err != nil {
		return fields, err
	}

	c.observeGas(s, StepStorage, receipt)

	got, err := c.callUint(ctx, s.account, delegate.MethodGetValue)
	if err != nil {
		return fields, err
	}

	if got.Cmp(want) != 0 {
		return fields, fmt.Errorf("%w: getValue() on account returned %s, expected %s", ErrUnexpectedValue, got, want)
	}

	public, err := c.callUint(ctx, s.account, delegate.MethodValue)
	if err != nil {
		return fields, err
	}

	if public.Cmp(want) != 0 {
		return fields, fmt.Errorf("%w: value() on account returned %s, expected %s", ErrUnexpectedValue, public, want)
	}

	// The write must land in the account's storage, not the delegate's.
	own, err := c.callUint(ctx, s.delegate, delegate.MethodGetValue)
	if err != nil {
		return fields, err
	}

	fields["delegate_value"] = own.String()

	if own.Sign() != 0 {
		return fields, fmt.Errorf("%w: getValue() on delegate returned %s, expected 0", ErrUnexpectedValue, own)
	}

	return fields, nil
}

func (c *Checker) revoke(ctx context.Context, s *session) (logrus.Fields, error) {
	current, err := c.node.NonceAt(ctx, s.account)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce of %s: %w", s.account.Hex(), err)
	}

	// A pinned authorization nonce has been consumed by now.
	nonce := authorization.Nonce(current, c.config.NonceOffset())

	fields := logrus.Fields{"nonce": nonce}

	auth, err := c.signAuthorization(s, common.Address{}, nonce)
	if err != nil {
		return fields, err
	}

	if _, err := c.sendSetCode(ctx, s, auth, fields); err != nil {
		return fields, err
	}

	code, err := c.node.CodeAt(ctx, s.account)
	if err != nil {
		return fields, fmt.Errorf("failed to get code of %s: %w", s.account.Hex(), err)
	}

	if len(code) != 0 {
		return fields, fmt.Errorf("%w: %s still has code %x", ErrDelegationNotCleared, s.account.Hex(), code)
	}

	return fields, nil
}
