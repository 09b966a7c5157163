package report

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/eip7702-checker/pkg/checker"
)

// Sink receives every finished report.
type Sink interface {
	Name() string
	Publish(ctx context.Context, r *checker.Report) error
}

// Publisher fans a report out to all sinks.
type Publisher struct {
	log   logrus.FieldLogger
	sinks []Sink
}

func NewPublisher(log logrus.FieldLogger, sinks ...Sink) *Publisher {
	return &Publisher{
		log:   log.WithField("component", "publisher"),
		sinks: sinks,
	}
}

// Publish sends r to every sink concurrently. A failing sink does not stop the
// others; the first error is returned.
func (p *Publisher) Publish(ctx context.Context, r *checker.Report) error {
	var g errgroup.Group

	for _, sink := range p.sinks {
		g.Go(func() error {
			if err := sink.Publish(ctx, r); err != nil {
				p.log.WithError(err).WithField("sink", sink.Name()).Error("Failed to publish report")

				return fmt.Errorf("sink %s: %w", sink.Name(), err)
			}

			return nil
		})
	}

	return g.Wait()
}
