package common

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eip7702_checker_rpc_call_duration_seconds",
		Help:    "Duration of RPC calls to Ethereum nodes",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"chain_id", "node", "method", "status"})

	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eip7702_checker_rpc_calls_total",
		Help: "Total RPC calls made to Ethereum nodes",
	}, []string{"chain_id", "node", "method", "status"})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eip7702_checker_step_duration_seconds",
		Help:    "Time taken by each step of the delegation check",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"chain_id", "step", "status"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eip7702_checker_runs_total",
		Help: "Total number of delegation checks by outcome",
	}, []string{"chain_id", "outcome"})

	LastRunSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eip7702_checker_last_run_success",
		Help: "1 if the most recent delegation check verified the delegation, 0 otherwise",
	}, []string{"chain_id"})

	LastRunTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eip7702_checker_last_run_timestamp_seconds",
		Help: "Unix timestamp of the most recent delegation check",
	}, []string{"chain_id"})

	GasUsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eip7702_checker_gas_used",
		Help: "Gas used by the transactions of the most recent check",
	}, []string{"chain_id", "step"})
)

var (
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eip7702_checker_leader_election_status",
		Help: "1 if this replica is the leader, 0 otherwise",
	}, []string{"node_id"})

	LeaderElectionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eip7702_checker_leader_election_transitions_total",
		Help: "Total leadership transitions",
	}, []string{"node_id", "transition"})

	LeaderElectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eip7702_checker_leader_election_duration_seconds",
		Help:    "How long leadership was held",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16),
	}, []string{"node_id"})

	LeaderElectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eip7702_checker_leader_election_errors_total",
		Help: "Total leader election errors by operation",
	}, []string{"node_id", "operation"})
)
