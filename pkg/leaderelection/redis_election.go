package leaderelection

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/eip7702-checker/pkg/common"
)

// ErrNoLeader is returned by LeaderID when no replica holds the lock.
var ErrNoLeader = errors.New("no leader elected")

var (
	// KEYS[1] lock, ARGV[1] node id, ARGV[2] ttl in ms.
	extendLock = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)

	// KEYS[1] lock, ARGV[1] node id.
	deleteLock = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
)

// RedisElector holds leadership while the lock key contains its node ID.
type RedisElector struct {
	client redis.Cmdable
	log    logrus.FieldLogger
	config *Config
	nodeID string
	key    string

	mu      sync.RWMutex
	leader  bool
	since   time.Time
	stopped bool

	callbacksMu sync.RWMutex
	callbacks   []LeadershipCallback

	done chan struct{}
	wg   sync.WaitGroup
}

var _ Elector = (*RedisElector)(nil)

// NewRedisElector creates an elector competing for key. A nil config uses
// a 30s lock renewed every 10s.
func NewRedisElector(client redis.Cmdable, log logrus.FieldLogger, key string, config *Config) (*RedisElector, error) {
	if config == nil {
		config = &Config{TTL: 30 * time.Second, RenewalInterval: 10 * time.Second}
	}

	nodeID := config.NodeID
	if nodeID == "" {
		id, err := randomNodeID()
		if err != nil {
			return nil, err
		}

		nodeID = id
	}

	return &RedisElector{
		client: client,
		log: log.WithFields(logrus.Fields{
			"component": "leader-election",
			"node_id":   nodeID,
		}),
		config: config,
		nodeID: nodeID,
		key:    key,
		done:   make(chan struct{}),
	}, nil
}

func randomNodeID() (string, error) {
	b := make([]byte, 16)

	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate node ID: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// NodeID returns the ID this elector writes into the lock.
func (e *RedisElector) NodeID() string {
	return e.nodeID
}

func (e *RedisElector) Start(ctx context.Context) error {
	e.log.WithField("key", e.key).Info("Starting leader election")

	common.LeaderElectionStatus.WithLabelValues(e.nodeID).Set(0)

	e.wg.Add(1)

	go e.loop(ctx)

	return nil
}

func (e *RedisElector) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()

		return nil
	}

	e.stopped = true
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()

	if !e.IsLeader() {
		return nil
	}

	released, err := deleteLock.Run(ctx, e.client, []string{e.key}, e.nodeID).Int64()
	if err != nil {
		common.LeaderElectionErrors.WithLabelValues(e.nodeID, "release").Inc()

		return fmt.Errorf("failed to release leadership: %w", err)
	}

	if released == 0 {
		e.log.Warn("Lock was already taken by another replica")
	}

	e.transition(ctx, false)

	return nil
}

func (e *RedisElector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.leader
}

func (e *RedisElector) LeaderID(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.key).Result()

	switch {
	case errors.Is(err, redis.Nil):
		return "", ErrNoLeader
	case err != nil:
		return "", fmt.Errorf("failed to get leader ID: %w", err)
	default:
		return id, nil
	}
}

func (e *RedisElector) OnLeadershipChange(callback LeadershipCallback) {
	e.callbacksMu.Lock()
	defer e.callbacksMu.Unlock()

	e.callbacks = append(e.callbacks, callback)
}

func (e *RedisElector) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.RenewalInterval)
	defer ticker.Stop()

	for {
		if held := e.holdLock(ctx); held != e.IsLeader() {
			e.transition(ctx, held)
		}

		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
		}
	}
}

// holdLock extends the lock if this replica owns it, otherwise tries to take it.
// Errors count as not holding the lock.
func (e *RedisElector) holdLock(ctx context.Context) bool {
	if e.IsLeader() {
		extended, err := extendLock.Run(ctx, e.client, []string{e.key}, e.nodeID, e.config.TTL.Milliseconds()).Int64()
		if err != nil || extended != 1 {
			e.log.WithError(err).Warn("Failed to renew leadership")
			common.LeaderElectionErrors.WithLabelValues(e.nodeID, "renew").Inc()

			return false
		}

		return true
	}

	acquired, err := e.client.SetNX(ctx, e.key, e.nodeID, e.config.TTL).Result()
	if err != nil {
		e.log.WithError(err).Error("Failed to acquire leadership")
		common.LeaderElectionErrors.WithLabelValues(e.nodeID, "acquire").Inc()

		return false
	}

	return acquired
}

// transition records a leadership change and notifies callbacks in registration order.
func (e *RedisElector) transition(ctx context.Context, leader bool) {
	e.mu.Lock()
	held := time.Since(e.since)
	e.leader = leader

	if leader {
		e.since = time.Now()
	}
	e.mu.Unlock()

	if leader {
		e.log.Info("Gained leadership")
		common.LeaderElectionStatus.WithLabelValues(e.nodeID).Set(1)
		common.LeaderElectionTransitions.WithLabelValues(e.nodeID, "gained").Inc()
	} else {
		e.log.WithField("held", held.String()).Info("Lost leadership")
		common.LeaderElectionStatus.WithLabelValues(e.nodeID).Set(0)
		common.LeaderElectionTransitions.WithLabelValues(e.nodeID, "lost").Inc()
		common.LeaderElectionDuration.WithLabelValues(e.nodeID).Observe(held.Seconds())
	}

	e.callbacksMu.RLock()
	callbacks := append([]LeadershipCallback(nil), e.callbacks...)
	e.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		callback(ctx, leader)
	}
}
