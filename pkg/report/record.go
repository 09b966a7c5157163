package report

import (
	"github.com/ethpandaops/eip7702-checker/internal/version"
	"github.com/ethpandaops/eip7702-checker/pkg/checker"
)

// Record is the published form of a report.
type Record struct {
	*checker.Report

	Success     bool         `json:"success"`
	FailedStep  checker.Step `json:"failedStep,omitempty"`
	FailureKind checker.Kind `json:"failureKind,omitempty"`
	Error       string       `json:"error,omitempty"`
	Diagnosis   []string     `json:"diagnosis,omitempty"`
	Checker     string       `json:"checker"`
}

func NewRecord(r *checker.Report) *Record {
	record := &Record{
		Report:      r,
		Success:     r.Success(),
		FailureKind: r.FailureKind(),
		Checker:     version.Full(),
	}

	if step := r.FailedStep(); step != nil {
		record.FailedStep = step.Step
	}

	if !record.Success {
		record.Error = errorMessage(r)
		record.Diagnosis = Diagnose(record.FailureKind)
	}

	return record
}
