// Package testutil provides test helper utilities shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewMiniredis creates an in-memory Redis server for unit tests.
// The server is automatically cleaned up when the test completes.
func NewMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	return miniredis.RunT(t)
}

// NewMiniredisClient creates a Redis client connected to an in-memory miniredis server.
// Both the server and client are automatically cleaned up when the test completes.
func NewMiniredisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client, s
}

// NewLogger returns a logger that only prints errors.
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

// AutoMiningClient is a simulated client that mines a block after every
// accepted transaction, like a dev node with instant sealing.
type AutoMiningClient struct {
	simulated.Client

	backend *simulated.Backend
}

func (c *AutoMiningClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.Client.SendTransaction(ctx, tx); err != nil {
		return err
	}

	c.backend.Commit()

	return nil
}

// NewSimulatedChain starts an in-process chain (chain ID 1337, all forks
// active) with alloc as genesis state. It is closed when the test completes.
func NewSimulatedChain(t *testing.T, alloc types.GenesisAlloc) (*simulated.Backend, *AutoMiningClient) {
	t.Helper()

	backend := simulated.NewBackend(alloc)

	t.Cleanup(func() {
		_ = backend.Close()
	})

	return backend, &AutoMiningClient{Client: backend.Client(), backend: backend}
}
