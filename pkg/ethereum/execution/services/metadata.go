package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Caller issues raw JSON-RPC calls.
type Caller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// ChainIDReader is used when no raw JSON-RPC caller is available.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

type MetadataService struct {
	rpc     Caller
	chain   ChainIDReader
	log     logrus.FieldLogger
	retries uint64

	nodeVersion string
	chainID     *big.Int

	mu sync.RWMutex
}

// NewMetadataService creates a metadata service. rpc may be nil, in which case the
// client version is reported as unknown and the chain ID comes from chain.
func NewMetadataService(log logrus.FieldLogger, rpc Caller, chain ChainIDReader, retries uint64) *MetadataService {
	return &MetadataService{
		rpc:     rpc,
		chain:   chain,
		log:     log.WithField("module", "ethereum/execution/metadata"),
		retries: retries,
	}
}

func (m *MetadataService) Start(ctx context.Context) error {
	m.log.Debug("Starting metadata service")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	attemptCount := 0

	operation := func() error {
		attemptCount++

		if err := m.RefreshAll(ctx); err != nil {
			m.log.WithError(err).WithField("attempt", attemptCount).Warn("Failed to refresh metadata")

			return err
		}

		return m.Ready(ctx)
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, m.retries), ctx)); err != nil {
		return fmt.Errorf("failed to initialise node metadata: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"node_version": m.ClientVersion(),
		"chain_id":     m.ChainID(),
	}).Debug("Metadata initialized successfully")

	return nil
}

func (m *MetadataService) Name() Name {
	return "metadata"
}

func (m *MetadataService) Stop(_ context.Context) error {
	return nil
}

func (m *MetadataService) Ready(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.chainID == nil || m.chainID.Sign() == 0 {
		return errors.New("chain ID is not available")
	}

	return nil
}

func (m *MetadataService) web3ClientVersion(ctx context.Context) (string, error) {
	if m.rpc == nil {
		return string(ClientUnknown), nil
	}

	var version string

	if err := m.rpc.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		return "", err
	}

	return version, nil
}

func (m *MetadataService) GetChainID(ctx context.Context) (*big.Int, error) {
	if m.rpc == nil {
		return m.chain.ChainID(ctx)
	}

	var chainID hexutil.Big

	if err := m.rpc.CallContext(ctx, &chainID, "eth_chainId"); err != nil {
		return nil, err
	}

	m.log.WithField("raw_chain_id", chainID.String()).Debug("Retrieved chain ID from RPC")

	return chainID.ToInt(), nil
}

func (m *MetadataService) RefreshAll(ctx context.Context) error {
	chainID, err := m.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}

	if chainID == nil {
		return errors.New("chain ID is not available")
	}

	version, err := m.web3ClientVersion(ctx)
	if err != nil {
		// Some gateways do not expose web3_*; the chain ID alone is enough to proceed.
		m.log.WithError(err).Debug("Failed to get client version")

		version = string(ClientUnknown)
	}

	m.mu.Lock()
	m.chainID = chainID
	m.nodeVersion = version
	m.mu.Unlock()

	return nil
}

func (m *MetadataService) Client() Client {
	return ClientFromString(m.ClientVersion())
}

func (m *MetadataService) ClientVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.nodeVersion
}

// ChainID returns the cached chain ID, or nil before Start succeeded.
func (m *MetadataService) ChainID() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.chainID == nil {
		return nil
	}

	return new(big.Int).Set(m.chainID)
}
