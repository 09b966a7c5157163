package report

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethpandaops/eip7702-checker/pkg/checker"
)

// TextfileSink writes the metrics registry to a node-exporter textfile after every run.
type TextfileSink struct {
	path     string
	gatherer prometheus.Gatherer
}

func NewTextfileSink(path string, gatherer prometheus.Gatherer) *TextfileSink {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &TextfileSink{path: path, gatherer: gatherer}
}

func (s *TextfileSink) Name() string {
	return "textfile"
}

func (s *TextfileSink) Publish(_ context.Context, _ *checker.Report) error {
	return prometheus.WriteToTextfile(s.path, s.gatherer)
}
