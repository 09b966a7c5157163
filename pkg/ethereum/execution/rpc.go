package execution

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	pcommon "github.com/ethpandaops/eip7702-checker/pkg/common"
)

const (
	statusError   = "error"
	statusSuccess = "success"
)

// observe records RPC metrics for a single call.
func (n *Node) observe(method string, start time.Time, err error) {
	duration := time.Since(start)

	status := statusSuccess
	if err != nil {
		status = statusError
	}

	chainID := "unknown"
	if id := n.ChainID(); id != nil {
		chainID = id.String()
	}

	pcommon.RPCCallDuration.WithLabelValues(chainID, n.config.Name, method, status).Observe(duration.Seconds())
	pcommon.RPCCallsTotal.WithLabelValues(chainID, n.config.Name, method, status).Inc()
}

// BalanceAt returns the latest balance of account.
func (n *Node) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}

	start := time.Now()

	balance, err := n.backend.BalanceAt(ctx, account, nil)

	n.observe("eth_getBalance", start, err)

	return balance, err
}

// NonceAt returns the transaction count of account at the latest block.
func (n *Node) NonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := n.ready(); err != nil {
		return 0, err
	}

	start := time.Now()

	nonce, err := n.backend.NonceAt(ctx, account, nil)

	n.observe("eth_getTransactionCount", start, err)

	return nonce, err
}

// CodeAt returns the code deployed at account at the latest block.
func (n *Node) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}

	start := time.Now()

	code, err := n.backend.CodeAt(ctx, account, nil)

	n.observe("eth_getCode", start, err)

	return code, err
}

// SuggestGasPrice returns the node's legacy gas price suggestion.
func (n *Node) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}

	start := time.Now()

	price, err := n.backend.SuggestGasPrice(ctx)

	n.observe("eth_gasPrice", start, err)

	return price, err
}

// LatestHeader returns the header of the latest block.
func (n *Node) LatestHeader(ctx context.Context) (*types.Header, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}

	start := time.Now()

	header, err := n.backend.HeaderByNumber(ctx, nil)

	n.observe("eth_getBlockByNumber", start, err)

	return header, err
}

// SendTransaction submits a signed transaction.
func (n *Node) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := n.ready(); err != nil {
		return err
	}

	start := time.Now()

	err := n.backend.SendTransaction(ctx, tx)

	n.observe("eth_sendRawTransaction", start, err)

	return err
}

// TransactionReceipt returns the receipt of a mined transaction, or ethereum.NotFound.
func (n *Node) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}

	start := time.Now()

	receipt, err := n.backend.TransactionReceipt(ctx, hash)

	n.observe("eth_getTransactionReceipt", start, err)

	return receipt, err
}

// TransactionByHash returns the transaction with the given hash.
func (n *Node) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if err := n.ready(); err != nil {
		return nil, false, err
	}

	start := time.Now()

	tx, pending, err := n.backend.TransactionByHash(ctx, hash)

	n.observe("eth_getTransactionByHash", start, err)

	return tx, pending, err
}

// CallContract executes msg against the latest state without creating a transaction.
func (n *Node) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}

	start := time.Now()

	result, err := n.backend.CallContract(ctx, msg, nil)

	n.observe("eth_call", start, err)

	return result, err
}
