package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// ErrReceiptTimeout indicates a transaction was not mined within the wait budget.
var ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")

// WaitOptions bounds how long WaitForReceipt polls.
type WaitOptions struct {
	// Timeout is the total time allowed for the receipt to appear.
	Timeout time.Duration
	// PollInterval is the initial delay between polls; it grows exponentially.
	PollInterval time.Duration
	// MaxPollInterval caps the delay between polls.
	MaxPollInterval time.Duration
}

// WaitForReceipt polls for the receipt of hash until it is mined or the timeout
// expires (ErrReceiptTimeout). Lookup errors, such as geth's "transaction
// indexing is in progress", are retried until then.
func (n *Node) WaitForReceipt(ctx context.Context, hash common.Hash, opts WaitOptions) (*types.Receipt, error) {
	if opts.MaxPollInterval == 0 {
		opts.MaxPollInterval = 5 * time.Second
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.PollInterval
	b.MaxInterval = opts.MaxPollInterval
	b.MaxElapsedTime = opts.Timeout

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var (
		receipt *types.Receipt
		lastErr error
	)

	attempts := 0

	operation := func() error {
		attempts++

		r, err := n.TransactionReceipt(waitCtx, hash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
				lastErr = err

				n.log.WithError(err).WithField("tx", hash.Hex()).Debug("Receipt lookup failed, retrying")
			}

			return err
		}

		receipt = r

		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, waitCtx)); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), ctx.Err())
		}

		if lastErr != nil {
			return nil, fmt.Errorf("%w: %s not mined after %s (last error: %v)", ErrReceiptTimeout, hash.Hex(), opts.Timeout, lastErr)
		}

		return nil, fmt.Errorf("%w: %s not mined after %s", ErrReceiptTimeout, hash.Hex(), opts.Timeout)
	}

	n.log.WithFields(logrus.Fields{
		"tx":       hash.Hex(),
		"block":    receipt.BlockNumber,
		"attempts": attempts,
	}).Debug("Transaction mined")

	return receipt, nil
}
