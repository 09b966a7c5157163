package report_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/eip7702-checker/internal/testutil"
	"github.com/ethpandaops/eip7702-checker/pkg/checker"
	"github.com/ethpandaops/eip7702-checker/pkg/report"
)

func verifiedReport() *checker.Report {
	nonce := uint64(1)
	started := time.Date(2025, 5, 7, 10, 0, 0, 0, time.UTC)

	return &checker.Report{
		Network:            "surge-devnet",
		ChainID:            big.NewInt(763374),
		ClientVersion:      "Geth/v1.15.11",
		ClientType:         "geth",
		Account:            common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Delegate:           common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		AuthorizationNonce: &nonce,
		ExpectedValue:      12345,
		ReturnedValue:      big.NewInt(12345),
		Outcome:            checker.OutcomeVerified,
		Steps: []checker.StepResult{
			{Step: checker.StepConnect, Status: checker.StepStatusSuccess, Duration: 20 * time.Millisecond},
			{Step: checker.StepVerify, Status: checker.StepStatusSuccess, Fields: logrus.Fields{"value": "12345"}},
			{Step: checker.StepRevoke, Status: checker.StepStatusSkipped},
		},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
}

func rejectedReport() *checker.Report {
	r := verifiedReport()
	r.Outcome = checker.OutcomeTxRejected
	r.ReturnedValue = nil
	r.Steps = []checker.StepResult{
		{Step: checker.StepConnect, Status: checker.StepStatusSuccess},
		{
			Step:   checker.StepDelegate,
			Status: checker.StepStatusFailed,
			Kind:   checker.KindUnsupported,
			Error:  "transaction type not supported",
		},
	}

	return r
}

func TestWriteText_Success(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, report.WriteText(&buf, verifiedReport()))

	out := buf.String()
	assert.Contains(t, out, "surge-devnet")
	assert.Regexp(t, `Client type:\s+geth`, out)
	assert.Contains(t, out, "SUCCESS")
	assert.Contains(t, out, "getConstant() = 12345")
	assert.Contains(t, out, "value=12345")
	assert.NotContains(t, out, "This likely means")
}

func TestWriteText_FailureDiagnosis(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, report.WriteText(&buf, rejectedReport()))

	out := buf.String()
	assert.Contains(t, out, "FAILURE (tx_rejected): transaction type not supported")
	assert.Contains(t, out, "EIP-7702 is not activated on this network")
	assert.Contains(t, out, "The authorization list format is not supported")
	assert.Contains(t, out, "The node does not implement EIP-7702 yet")
	assert.Contains(t, out, "[unsupported]")
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, report.Write(&buf, report.FormatJSON, rejectedReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "tx_rejected", decoded["outcome"])
	assert.Equal(t, "delegate", decoded["failedStep"])
	assert.Equal(t, "unsupported", decoded["failureKind"])
	assert.NotEmpty(t, decoded["diagnosis"])
}

func TestParseFormat(t *testing.T) {
	f, err := report.ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, report.FormatJSON, f)

	f, err = report.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, report.FormatText, f)

	_, err = report.ParseFormat("yaml")
	assert.Error(t, err)
}

func TestDiagnose(t *testing.T) {
	assert.Len(t, report.Diagnose(checker.KindUnsupported), 3)
	assert.Empty(t, report.Diagnose(checker.KindNone))
}

func TestRedisSink(t *testing.T) {
	client, _ := testutil.NewMiniredisClient(t)
	ctx := context.Background()
	sink := report.NewRedisSink(client, "eip7702-checker", 2)

	last, err := sink.Last(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, sink.Publish(ctx, verifiedReport()))
	require.NoError(t, sink.Publish(ctx, verifiedReport()))
	require.NoError(t, sink.Publish(ctx, rejectedReport()))

	history, err := client.LLen(ctx, "eip7702-checker:history").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), history)

	outcomes, err := client.HGetAll(ctx, "eip7702-checker:outcomes").Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"verified": "2", "tx_rejected": "1"}, outcomes)

	last, err = sink.Last(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.False(t, last.Success)
	assert.Equal(t, checker.OutcomeTxRejected, last.Outcome)
	assert.Equal(t, checker.StepDelegate, last.FailedStep)
	assert.Equal(t, checker.KindUnsupported, last.FailureKind)
	assert.Equal(t, int64(763374), last.ChainID.Int64())
}

func TestTextfileSink(t *testing.T) {
	registry := prometheus.NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eip7702_checker_test_gauge",
		Help: "Test gauge",
	})
	registry.MustRegister(gauge)
	gauge.Set(1)

	path := filepath.Join(t.TempDir(), "eip7702.prom")
	sink := report.NewTextfileSink(path, registry)

	require.NoError(t, sink.Publish(context.Background(), verifiedReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "eip7702_checker_test_gauge 1")
}

type fakeSink struct {
	name  string
	err   error
	calls int
}

func (f *fakeSink) Name() string {
	return f.name
}

func (f *fakeSink) Publish(_ context.Context, _ *checker.Report) error {
	f.calls++

	return f.err
}

func TestPublisher(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	boom := errors.New("boom")
	ok := &fakeSink{name: "ok"}
	failing := &fakeSink{name: "failing", err: boom}

	publisher := report.NewPublisher(log, ok, failing)

	err := publisher.Publish(context.Background(), verifiedReport())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, failing.calls)

	assert.NoError(t, report.NewPublisher(log).Publish(context.Background(), verifiedReport()))
}
