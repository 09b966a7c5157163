package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/eip7702-checker/internal/version"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum/execution/services"
)

// ErrNodeNotStarted is returned when a node is used before Start succeeded.
var ErrNodeNotStarted = errors.New("execution node not started")

// headerTransport adds custom headers to requests and respects context cancellation.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Add custom headers
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	// Check if context is already cancelled before making request
	if req.Context().Err() != nil {
		return nil, req.Context().Err()
	}

	return t.base.RoundTrip(req)
}

// Node is an instrumented handle on an execution client.
type Node struct {
	config    *Config
	log       logrus.FieldLogger
	backend   Backend
	rpcClient *rpc.Client
	caller    RPCCaller

	metadata *services.MetadataService
	services []services.Service

	mu      sync.RWMutex
	started bool
	dialed  bool
}

// NewNode creates a node that dials config.NodeAddress on Start.
func NewNode(log logrus.FieldLogger, conf *Config) *Node {
	return &Node{
		config: conf,
		log:    log.WithFields(logrus.Fields{"type": "execution", "source": conf.Name}),
	}
}

// NewNodeWithBackend creates a node on top of an existing backend, such as the
// go-ethereum simulated client. caller may be nil.
func NewNodeWithBackend(log logrus.FieldLogger, conf *Config, backend Backend, caller RPCCaller) *Node {
	n := NewNode(log, conf)
	n.backend = backend
	n.caller = caller

	return n
}

func (n *Node) Start(ctx context.Context) error {
	n.log.WithField("node_address", n.config.NodeAddress).Debug("Starting execution node")

	if n.backend == nil {
		if err := n.dial(ctx); err != nil {
			return err
		}
	}

	var caller services.Caller
	if n.caller != nil {
		caller = n.caller
	}

	metadata := services.NewMetadataService(n.log, caller, n.backend, n.config.ConnectRetries)

	n.mu.Lock()
	n.metadata = metadata
	n.services = []services.Service{metadata}
	n.mu.Unlock()

	startCtx, cancel := context.WithTimeout(ctx, n.config.ConnectTimeout)
	defer cancel()

	for _, service := range n.services {
		if err := service.Start(startCtx); err != nil {
			n.log.WithError(err).WithField("service", service.Name()).Error("Failed to start service")

			return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
		}
	}

	n.mu.Lock()
	n.started = true
	n.mu.Unlock()

	n.log.WithFields(logrus.Fields{
		"client":   n.metadata.ClientVersion(),
		"chain_id": n.metadata.ChainID(),
	}).Info("Connected to execution node")

	return nil
}

func (n *Node) dial(ctx context.Context) error {
	// Create HTTP client without fixed timeout - let context handle it
	httpClient := http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	headers := map[string]string{"User-Agent": version.UserAgent()}
	for key, value := range n.config.NodeHeaders {
		headers[key] = value
	}

	httpClient.Transport = &headerTransport{
		headers: headers,
		base:    httpClient.Transport,
	}

	opts := []rpc.ClientOption{rpc.WithHTTPClient(&httpClient)}
	for key, value := range n.config.NodeHeaders {
		// Only honoured by websocket connections; HTTP goes through headerTransport.
		opts = append(opts, rpc.WithHeader(key, value))
	}

	rpcClient, err := rpc.DialOptions(ctx, n.config.NodeAddress, opts...)
	if err != nil {
		n.log.WithError(err).Error("Failed to create RPC client")

		return fmt.Errorf("failed to create RPC client for %s: %w", n.config.NodeAddress, err)
	}

	n.rpcClient = rpcClient
	n.caller = rpcClient
	n.backend = ethclient.NewClient(rpcClient)
	n.dialed = true

	return nil
}

func (n *Node) Stop(ctx context.Context) error {
	n.log.Debug("Stopping execution node")

	for _, service := range n.services {
		if err := service.Stop(ctx); err != nil {
			n.log.WithError(err).WithField("service", service.Name()).Error("Failed to stop service")
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.rpcClient != nil {
		n.rpcClient.Close()
	}

	// A dialed node re-dials on the next Start.
	if n.dialed {
		n.rpcClient = nil
		n.caller = nil
		n.backend = nil
		n.dialed = false
	}

	n.started = false

	return nil
}

// Name returns the configured name for this node.
func (n *Node) Name() string {
	return n.config.Name
}

// ChainID returns the chain ID reported by the node during Start.
func (n *Node) ChainID() *big.Int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.metadata == nil {
		return nil
	}

	return n.metadata.ChainID()
}

// ClientVersion returns the web3_clientVersion string of the node.
func (n *Node) ClientVersion() string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.metadata == nil {
		return ""
	}

	return n.metadata.ClientVersion()
}

// ClientType returns the detected client implementation.
func (n *Node) ClientType() services.Client {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.metadata == nil {
		return services.ClientUnknown
	}

	return n.metadata.Client()
}

func (n *Node) ready() error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.started || n.backend == nil {
		return ErrNodeNotStarted
	}

	return nil
}
