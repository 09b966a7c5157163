package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ethpandaops/eip7702-checker/pkg/checker"
)

// RedisSink stores the latest report and a bounded history under prefix.
//
// Keys:
//
//	<prefix>:last             latest record as JSON
//	<prefix>:history          list of records, newest first, trimmed to history entries
//	<prefix>:outcomes         hash of outcome -> run count
type RedisSink struct {
	client  redis.Cmdable
	prefix  string
	history int64
}

func NewRedisSink(client redis.Cmdable, prefix string, history int64) *RedisSink {
	return &RedisSink{
		client:  client,
		prefix:  prefix,
		history: history,
	}
}

func (s *RedisSink) Name() string {
	return "redis"
}

func (s *RedisSink) LastKey() string {
	return s.prefix + ":last"
}

func (s *RedisSink) HistoryKey() string {
	return s.prefix + ":history"
}

func (s *RedisSink) OutcomesKey() string {
	return s.prefix + ":outcomes"
}

func (s *RedisSink) Publish(ctx context.Context, r *checker.Report) error {
	data, err := json.Marshal(NewRecord(r))
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.LastKey(), data, 0)
	pipe.LPush(ctx, s.HistoryKey(), data)

	if s.history > 0 {
		pipe.LTrim(ctx, s.HistoryKey(), 0, s.history-1)
	}

	pipe.HIncrBy(ctx, s.OutcomesKey(), string(r.Outcome), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}

	return nil
}

// Last returns the most recently stored record, or nil if none exists.
func (s *RedisSink) Last(ctx context.Context) (*Record, error) {
	data, err := s.client.Get(ctx, s.LastKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get last report: %w", err)
	}

	record := &Record{Report: &checker.Report{}}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("failed to decode last report: %w", err)
	}

	return record, nil
}
