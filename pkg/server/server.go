package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	"github.com/go-co-op/gocron"
	r "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/eip7702-checker/pkg/checker"
	"github.com/ethpandaops/eip7702-checker/pkg/config"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum/execution"
	"github.com/ethpandaops/eip7702-checker/pkg/leaderelection"
	"github.com/ethpandaops/eip7702-checker/pkg/observability"
	"github.com/ethpandaops/eip7702-checker/pkg/redis"
	"github.com/ethpandaops/eip7702-checker/pkg/report"
)

// NodeFactory creates the execution node for a single run.
type NodeFactory func(log logrus.FieldLogger, conf *execution.Config) *execution.Node

type Server struct {
	log    logrus.FieldLogger
	config *config.Config

	redis     *r.Client
	sink      *report.RedisSink
	publisher *report.Publisher
	scheduler *gocron.Scheduler
	elector   leaderelection.Elector

	newNode     NodeFactory
	checkerOpts []checker.Option

	pprofServer  *http.Server
	healthServer *http.Server

	mu   sync.RWMutex
	last *checker.Report
}

type Option func(*Server)

// WithNodeFactory replaces how execution nodes are created.
func WithNodeFactory(fn NodeFactory) Option {
	return func(s *Server) {
		s.newNode = fn
	}
}

// WithCheckerOptions passes opts to every checker the server creates.
func WithCheckerOptions(opts ...checker.Option) Option {
	return func(s *Server) {
		s.checkerOpts = append(s.checkerOpts, opts...)
	}
}

func NewServer(log logrus.FieldLogger, config *config.Config, opts ...Option) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log:     log,
		config:  config,
		newNode: execution.NewNode,
	}

	var sinks []report.Sink

	if config.Redis != nil {
		redisClient, err := redis.New(config.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}

		s.redis = redisClient
		s.sink = report.NewRedisSink(redisClient, config.Redis.Prefix, config.Redis.History)
		sinks = append(sinks, s.sink)

		if config.Watch.LeaderElection.Enabled {
			elector, err := leaderelection.NewRedisElector(redisClient, log,
				config.Redis.Prefix+":leader", &config.Watch.LeaderElection)
			if err != nil {
				return nil, fmt.Errorf("failed to create leader elector: %w", err)
			}

			s.elector = elector
		}
	}

	if config.MetricsTextfile != "" {
		sinks = append(sinks, report.NewTextfileSink(config.MetricsTextfile, nil))
	}

	s.publisher = report.NewPublisher(log, sinks...)

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// RunOnce runs a single check bounded by runTimeout and publishes the report.
func (s *Server) RunOnce(ctx context.Context) *checker.Report {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	node := s.newNode(s.log.WithField("component", "ethereum"), &s.config.Ethereum.Execution)

	c := checker.New(s.log, node, &s.config.Ethereum, &s.config.Checker, s.checkerOpts...)

	result := c.Run(runCtx)

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	if err := s.publisher.Publish(context.WithoutCancel(ctx), result); err != nil {
		s.log.WithError(err).Warn("Report was not published to every sink")
	}

	return result
}

// Last returns the report of the most recent run, or nil.
func (s *Server) Last() *checker.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.last
}

// Start runs checks on the watch interval until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Start metrics server
	if s.config.MetricsAddr != "" {
		g.Go(func() error {
			return observability.StartMetricsServer(ctx, s.log.WithField("component", "metrics"), s.config.MetricsAddr)
		})
	}

	// Start pprof server if configured
	if s.config.PProfAddr != nil {
		s.pprofServer = s.newPProfServer()

		g.Go(func() error {
			return listen(s.pprofServer)
		})
	}

	// Start health check server if configured
	if s.config.HealthCheckAddr != nil {
		s.healthServer = s.newHealthServer()

		g.Go(func() error {
			return listen(s.healthServer)
		})
	}

	if s.elector != nil {
		if err := s.elector.Start(ctx); err != nil {
			return fmt.Errorf("failed to start leader election: %w", err)
		}
	}

	if err := s.startScheduler(ctx); err != nil {
		return err
	}

	// Wait for shutdown signal
	g.Go(func() error {
		<-ctx.Done()

		return s.stop(ctx)
	})

	return g.Wait()
}

func (s *Server) startScheduler(ctx context.Context) error {
	s.scheduler = gocron.NewScheduler(time.UTC)
	s.scheduler.SingletonModeAll()

	if !s.config.Watch.RunOnStart {
		s.scheduler.WaitForScheduleAll()
	}

	if _, err := s.scheduler.Every(s.config.Watch.Interval).Do(func() {
		if ctx.Err() != nil {
			return
		}

		if s.elector != nil && !s.elector.IsLeader() {
			s.log.Debug("Not the leader, skipping check")

			return
		}

		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule check: %w", err)
	}

	s.log.WithField("interval", s.config.Watch.Interval.String()).Info("Scheduling EIP-7702 checks")

	s.scheduler.StartAsync()

	return nil
}

func (s *Server) stop(ctx context.Context) error {
	// Create a timeout context for cleanup
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("Starting graceful shutdown...")

	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	if s.elector != nil {
		if err := s.elector.Stop(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to stop leader election")
		}
	}

	if err := s.Close(); err != nil {
		s.log.WithError(err).Error("failed to close redis")
	}

	// Shutdown HTTP servers
	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown pprof server")
		}
	}

	if s.healthServer != nil {
		if err := s.healthServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown health server")
		}
	}

	if err := observability.StopMetricsServer(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop metrics server")
	}

	s.log.Info("Checker stopped gracefully")

	return nil
}

// Close releases the redis connection, if any.
func (s *Server) Close() error {
	if s.redis == nil {
		return nil
	}

	s.log.Info("Closing Redis connection...")

	err := s.redis.Close()
	s.redis = nil

	return err
}

func listen(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) newPProfServer() *http.Server {
	s.log.WithField("addr", *s.config.PProfAddr).Info("Starting pprof server")

	return &http.Server{
		Addr:              *s.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}
}

func (s *Server) newHealthServer() *http.Server {
	s.log.WithField("addr", *s.config.HealthCheckAddr).Info("Starting healthcheck server")

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/last", s.handleLast)

	return &http.Server{
		Addr:              *s.config.HealthCheckAddr,
		ReadHeaderTimeout: 120 * time.Second,
		Handler:           mux,
	}
}

// lastRecord returns this process's latest report, falling back to the one
// stored in redis by any replica.
func (s *Server) lastRecord(ctx context.Context) (*report.Record, error) {
	if last := s.Last(); last != nil {
		return report.NewRecord(last), nil
	}

	if s.sink == nil {
		return nil, nil
	}

	return s.sink.Last(ctx)
}

// handleLast serves the latest record; the status is 503 when it did not verify.
func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	record, err := s.lastRecord(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("Failed to load last report")
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	if record == nil {
		w.WriteHeader(http.StatusNoContent)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if !record.Success {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(record); err != nil {
		s.log.WithError(err).Debug("Failed to write last report")
	}
}
