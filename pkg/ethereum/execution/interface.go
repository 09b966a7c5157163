package execution

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the subset of the go-ethereum client API the checker relies on.
//
// Implementations include:
//   - *ethclient.Client: JSON-RPC over HTTP or websocket
//   - simulated.Client: the in-process node from go-ethereum's ethclient/simulated package
type Backend interface {
	ethereum.ChainStateReader
	ethereum.ContractCaller
	ethereum.GasPricer
	ethereum.TransactionReader
	ethereum.TransactionSender

	// ChainID returns the chain ID used for transaction replay protection.
	ChainID(ctx context.Context) (*big.Int, error)

	// HeaderByNumber returns the header at number, or the latest header when number is nil.
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// RPCCaller issues raw JSON-RPC calls. *rpc.Client satisfies it.
type RPCCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}
