// Package report renders and publishes the results of delegation checks.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethpandaops/eip7702-checker/pkg/checker"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Write renders r to w in format.
func Write(w io.Writer, format Format, r *checker.Report) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(NewRecord(r))
	}

	return WriteText(w, r)
}

// WriteText writes a human readable summary of r, with a diagnosis on failure.
func WriteText(w io.Writer, r *checker.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Network:\t%s\n", r.Network)

	if r.ChainID != nil {
		fmt.Fprintf(tw, "Chain ID:\t%s\n", r.ChainID)
	}

	if r.ClientVersion != "" {
		fmt.Fprintf(tw, "Client:\t%s\n", r.ClientVersion)
	}

	if r.ClientType != "" {
		fmt.Fprintf(tw, "Client type:\t%s\n", r.ClientType)
	}

	fmt.Fprintf(tw, "Funder:\t%s\n", r.Funder.Hex())
	fmt.Fprintf(tw, "Account:\t%s\n", r.Account.Hex())
	fmt.Fprintf(tw, "Delegate:\t%s\n", r.Delegate.Hex())

	if r.AuthorizationNonce != nil {
		fmt.Fprintf(tw, "Authorization nonce:\t%d\n", *r.AuthorizationNonce)
	}

	fmt.Fprintln(tw)

	for _, step := range r.Steps {
		line := fmt.Sprintf("  %s\t%s\t%s", statusMark(step.Status), step.Step, step.Duration.Round(time.Millisecond))

		if detail := stepDetail(step); detail != "" {
			line += "\t" + detail
		}

		fmt.Fprintln(tw, line)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)

	if r.Success() {
		fmt.Fprintf(w, "SUCCESS: EIP-7702 delegation verified, %s delegates to %s (getConstant() = %s)\n",
			r.Account.Hex(), r.Delegate.Hex(), r.ReturnedValue)

		return nil
	}

	fmt.Fprintf(w, "FAILURE (%s): %s\n", r.Outcome, errorMessage(r))

	if causes := Diagnose(r.FailureKind()); len(causes) > 0 {
		fmt.Fprintln(w, "\nThis likely means:")

		for i, cause := range causes {
			fmt.Fprintf(w, "  %d. %s\n", i+1, cause)
		}
	}

	return nil
}

func statusMark(status checker.StepStatus) string {
	switch status {
	case checker.StepStatusSuccess:
		return "ok"
	case checker.StepStatusFailed:
		return "FAIL"
	default:
		return "skip"
	}
}

func stepDetail(step checker.StepResult) string {
	if step.Status == checker.StepStatusFailed {
		return fmt.Sprintf("[%s] %s", step.Kind, step.Error)
	}

	if len(step.Fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(step.Fields))
	for key := range step.Fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, step.Fields[key]))
	}

	return strings.Join(parts, " ")
}

func errorMessage(r *checker.Report) string {
	if err := r.Err(); err != nil {
		return err.Error()
	}

	if step := r.FailedStep(); step != nil {
		return step.Error
	}

	return ""
}
