package checker

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/eip7702-checker/pkg/delegate"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum/execution"
)

func (c *Checker) waitOptions() execution.WaitOptions {
	return execution.WaitOptions{
		Timeout:      c.config.ReceiptTimeout,
		PollInterval: c.config.ReceiptPollInterval,
	}
}

// sendAndWait submits tx and waits for it to be mined successfully.
func (c *Checker) sendAndWait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if err := c.node.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to send transaction %s: %w", tx.Hash().Hex(), err)
	}

	c.log.WithFields(logrus.Fields{
		"tx":   tx.Hash().Hex(),
		"type": tx.Type(),
	}).Debug("Transaction submitted")

	receipt, err := c.node.WaitForReceipt(ctx, tx.Hash(), c.waitOptions())
	if err != nil {
		return nil, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, withKind(KindTransaction, fmt.Errorf("%w: %s used %d of %d gas",
			ErrReverted, tx.Hash().Hex(), receipt.GasUsed, tx.Gas()))
	}

	return receipt, nil
}

// legacyTx builds and signs a legacy transaction from key. A nil to creates a contract.
func (c *Checker) legacyTx(ctx context.Context, s *session, key *ecdsa.PrivateKey, to *common.Address, value *big.Int, gas uint64, data []byte) (*types.Transaction, error) {
	from := addressOf(key)

	nonce, err := c.node.NonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce of %s: %w", from.Hex(), err)
	}

	gasPrice, err := c.node.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	if value == nil {
		value = new(big.Int)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       to,
		Value:    value,
		Data:     data,
	})

	signed, err := types.SignTx(tx, s.signer, key)
	if err != nil {
		return nil, withKind(KindSignature, fmt.Errorf("failed to sign transaction: %w", err))
	}

	return signed, nil
}

// fees returns (maxPriorityFeePerGas, maxFeePerGas) where maxFee is 2*baseFee + tip.
func (c *Checker) fees(ctx context.Context) (tip, maxFee *big.Int, err error) {
	tip, err = c.config.PriorityFeeWei()
	if err != nil {
		return nil, nil, withKind(KindConfig, err)
	}

	header, err := c.node.LatestHeader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest header: %w", err)
	}

	if header.BaseFee == nil {
		return nil, nil, withKind(KindUnsupported, ErrNoBaseFee)
	}

	maxFee = new(big.Int).Mul(header.BaseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)

	return tip, maxFee, nil
}

// setCodeTx builds and signs a type-4 transaction from key to the delegated
// account carrying auths.
func (c *Checker) setCodeTx(ctx context.Context, s *session, key *ecdsa.PrivateKey, auths []types.SetCodeAuthorization) (*types.Transaction, error) {
	from := addressOf(key)

	nonce, err := c.node.NonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce of %s: %w", from.Hex(), err)
	}

	tip, maxFee, err := c.fees(ctx)
	if err != nil {
		return nil, err
	}

	chainID, overflow := uint256.FromBig(s.chainID)
	if overflow {
		return nil, withKind(KindConfig, fmt.Errorf("chain ID %s does not fit in 256 bits", s.chainID))
	}

	tx := types.NewTx(&types.SetCodeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: uint256.MustFromBig(tip),
		GasFeeCap: uint256.MustFromBig(maxFee),
		Gas:       c.config.CallGasLimit,
		To:        s.account,
		Value:     new(uint256.Int),
		AuthList:  auths,
	})

	signed, err := types.SignTx(tx, s.signer, key)
	if err != nil {
		return nil, withKind(KindSignature, fmt.Errorf("failed to sign set code transaction: %w", err))
	}

	return signed, nil
}

// dynamicFeeTx builds and signs a type-2 transaction from key.
func (c *Checker) dynamicFeeTx(ctx context.Context, s *session, key *ecdsa.PrivateKey, to common.Address, data []byte) (*types.Transaction, error) {
	from := addressOf(key)

	nonce, err := c.node.NonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce of %s: %w", from.Hex(), err)
	}

	tip, maxFee, err := c.fees(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Gas:       c.config.CallGasLimit,
		To:        &to,
		Data:      data,
	})

	signed, err := types.SignTx(tx, s.signer, key)
	if err != nil {
		return nil, withKind(KindSignature, fmt.Errorf("failed to sign transaction: %w", err))
	}

	return signed, nil
}

// callUint calls a no-argument uint256 getter of the delegate ABI at target.
func (c *Checker) callUint(ctx context.Context, target common.Address, method string) (*big.Int, error) {
	data, err := delegate.Pack(method)
	if err != nil {
		return nil, withKind(KindConfig, err)
	}

	result, err := c.node.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data})
	if err != nil {
		return nil, withKind(callKind(err), fmt.Errorf("eth_call %s() on %s failed: %w", method, target.Hex(), err))
	}

	value, err := delegate.UnpackUint256(method, result)
	if err != nil {
		if errors.Is(err, delegate.ErrEmptyReturn) {
			return nil, withKind(KindAssertion, fmt.Errorf("%s() on %s: %w", method, target.Hex(), err))
		}

		return nil, withKind(KindCall, fmt.Errorf("%s() on %s: %w", method, target.Hex(), err))
	}

	return value, nil
}

// callKind keeps transport failures distinct from calls the node executed and rejected.
func callKind(err error) Kind {
	switch kind := Classify(err); kind {
	case KindNetwork, KindTimeout:
		return kind
	default:
		return KindCall
	}
}
