package checker

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/ethpandaops/eip7702-checker/pkg/authorization"
	"github.com/ethpandaops/eip7702-checker/pkg/delegate"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum/execution"
)

// Node error messages are matched case-insensitively. Order matters: the first
// group with a matching fragment wins.
var messageKinds = []struct {
	kind      Kind
	fragments []string
}{
	{
		kind: KindUnsupported,
		fragments: []string{
			"transaction type not supported",
			"tx type not supported",
			"txtypenotsupported",
			"unsupported transaction type",
			"unknown transaction type",
			"invalid transaction type",
			"invalid_transaction_type",
			"typed transaction too short",
			"eip-7702 not enabled",
			"eip7702 not enabled",
			"method not found",
		},
	},
	{
		kind:      KindFunds,
		fragments: []string{"insufficient funds", "insufficient balance"},
	},
	{
		kind: KindSignature,
		fragments: []string{
			"invalid sender",
			"invalid signature",
			"invalid authorization",
			"invalid chain id",
			"authorization",
		},
	},
	{
		kind:      KindTimeout,
		fragments: []string{"timeout", "deadline exceeded"},
	},
	{
		kind: KindNetwork,
		fragments: []string{
			"connection refused",
			"connection reset",
			"no such host",
			"network is unreachable",
			"broken pipe",
			"eof",
		},
	},
	{
		kind: KindTransaction,
		fragments: []string{
			"nonce too low",
			"nonce too high",
			"underpriced",
			"fee cap",
			"less than block base fee",
			"intrinsic gas",
			"gas limit",
			"already known",
			"exceeds block gas limit",
		},
	},
}

// Classify maps an error from any step to a failure kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	switch {
	case errors.Is(err, execution.ErrReceiptTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, authorization.ErrInvalidYParity),
		errors.Is(err, authorization.ErrInvalidSignature),
		errors.Is(err, authorization.ErrNotSigned),
		errors.Is(err, ErrAuthorityMismatch):
		return KindSignature
	case errors.Is(err, ErrCodeNotEmpty),
		errors.Is(err, ErrDelegationNotSet),
		errors.Is(err, ErrDelegationNotCleared),
		errors.Is(err, ErrUnexpectedValue),
		errors.Is(err, ErrBalanceNotIncreased),
		errors.Is(err, delegate.ErrEmptyReturn):
		return KindAssertion
	case errors.Is(err, ErrReverted),
		errors.Is(err, ErrNoContractAddress):
		return KindTransaction
	case errors.Is(err, ErrInsufficientFunds):
		return KindFunds
	case errors.Is(err, ErrNoBaseFee):
		return KindUnsupported
	case errors.Is(err, ethereum.ErrInvalidPrivateKey),
		errors.Is(err, ethereum.ErrChainIDMismatch):
		return KindConfig
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}

		return KindNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())

	for _, group := range messageKinds {
		for _, fragment := range group.fragments {
			if strings.Contains(msg, fragment) {
				return group.kind
			}
		}
	}

	return KindUnknown
}
