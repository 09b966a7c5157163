// Package leaderelection lets several watch replicas share one funder key
// while only one of them runs checks at a time.
package leaderelection

import (
	"context"
	"fmt"
	"time"
)

// LeadershipCallback is a function invoked when leadership status changes.
// The callback is invoked synchronously, so implementations should return quickly
// to avoid delaying leadership renewal.
type LeadershipCallback func(ctx context.Context, isLeader bool)

// Elector defines the interface for leader election implementations.
type Elector interface {
	// Start begins the leader election process
	Start(ctx context.Context) error

	// Stop gracefully stops the leader election and releases the lock if held
	Stop(ctx context.Context) error

	// IsLeader returns true if this replica is currently the leader
	IsLeader() bool

	// OnLeadershipChange registers a callback invoked in registration order
	// whenever leadership is gained or lost.
	OnLeadershipChange(callback LeadershipCallback)

	// LeaderID returns the current leader's ID
	LeaderID(ctx context.Context) (string, error)
}

// Config holds configuration for leader election.
type Config struct {
	// Enabled turns on leader election in watch mode. Requires redis.
	Enabled bool `yaml:"enabled" default:"false"`

	// TTL is the time-to-live for the leader lock
	TTL time.Duration `yaml:"ttl" default:"30s"`

	// RenewalInterval is how often to renew the leader lock
	RenewalInterval time.Duration `yaml:"renewalInterval" default:"10s"`

	// NodeID is the unique identifier for this replica.
	// If empty, a random ID will be generated
	NodeID string `yaml:"nodeId"`
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.TTL <= 0 {
		return fmt.Errorf("leader election ttl must be positive")
	}

	if c.RenewalInterval <= 0 || c.RenewalInterval >= c.TTL {
		return fmt.Errorf("leader election renewalInterval (%s) must be positive and shorter than ttl (%s)",
			c.RenewalInterval, c.TTL)
	}

	return nil
}
