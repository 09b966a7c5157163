package checker_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/eip7702-checker/internal/testutil"
	"github.com/ethpandaops/eip7702-checker/pkg/authorization"
	"github.com/ethpandaops/eip7702-checker/pkg/checker"
	"github.com/ethpandaops/eip7702-checker/pkg/delegate"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum/execution"
)

const (
	funderHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	accountHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

type testEnv struct {
	backend    *simulated.Backend
	client     *testutil.AutoMiningClient
	node       *execution.Node
	funderKey  *ecdsa.PrivateKey
	accountKey *ecdsa.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	funderKey, err := crypto.HexToECDSA(funderHex)
	require.NoError(t, err)

	accountKey, err := crypto.HexToECDSA(accountHex)
	require.NoError(t, err)

	balance := new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))

	backend, client := testutil.NewSimulatedChain(t, types.GenesisAlloc{
		crypto.PubkeyToAddress(funderKey.PublicKey): {Balance: balance},
	})

	return &testEnv{
		backend:    backend,
		client:     client,
		node:       newSimulatedNode(client),
		funderKey:  funderKey,
		accountKey: accountKey,
	}
}

func newSimulatedNode(backend execution.Backend) *execution.Node {
	return execution.NewNodeWithBackend(testutil.NewLogger(), &execution.Config{
		Name:           "simulated",
		NodeAddress:    "http://localhost:8545",
		ConnectTimeout: 5 * time.Second,
	}, backend, nil)
}

func (e *testEnv) config() *checker.Config {
	return &checker.Config{
		ChainID:             params.AllDevChainProtocolChanges.ChainID.Uint64(),
		FunderPrivateKey:    funderHex,
		ExpectedConstant:    delegate.ExpectedConstant,
		FundingAmount:       "1000000000000000000",
		PriorityFee:         "2000000000",
		DeployGasLimit:      500000,
		CallGasLimit:        500000,
		TransferGasLimit:    21000,
		ReceiptTimeout:      10 * time.Second,
		ReceiptPollInterval: 10 * time.Millisecond,
		Verify: checker.VerifyConfig{
			Storage:      true,
			StorageValue: 42,
		},
	}
}

func (e *testEnv) checker(conf *checker.Config, opts ...checker.Option) *checker.Checker {
	opts = append([]checker.Option{checker.WithKeyGenerator(func() (*ecdsa.PrivateKey, error) {
		return e.accountKey, nil
	})}, opts...)

	return checker.New(testutil.NewLogger(), e.node, &ethereum.Config{}, conf, opts...)
}

func (e *testEnv) account() common.Address {
	return crypto.PubkeyToAddress(e.accountKey.PublicKey)
}

func callMsg(to common.Address, data []byte) geth.CallMsg {
	return geth.CallMsg{To: &to, Data: data}
}

func TestRun_VerifiesDelegation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, err := env.client.CodeAt(ctx, env.account(), nil)
	require.NoError(t, err)
	assert.Empty(t, code, "fresh account has no code")

	report := env.checker(env.config()).Run(ctx)

	require.NoError(t, report.Err())
	assert.True(t, report.Success())
	assert.Equal(t, checker.OutcomeVerified, report.Outcome)
	assert.Equal(t, checker.KindNone, report.FailureKind())
	assert.Nil(t, report.FailedStep())

	require.NotNil(t, report.ReturnedValue)
	assert.Equal(t, int64(delegate.ExpectedConstant), report.ReturnedValue.Int64())
	assert.Equal(t, env.account(), report.Account)
	assert.NotEqual(t, common.Address{}, report.Delegate)
	assert.NotEqual(t, common.Hash{}, report.DelegationTx)
	assert.Equal(t, "dev", report.Network)
	assert.Equal(t, "unknown", report.ClientType, "the simulated node does not answer web3_clientVersion")

	require.NotNil(t, report.AuthorizationNonce)
	assert.Equal(t, uint64(1), *report.AuthorizationNonce)

	code, err = env.client.CodeAt(ctx, env.account(), nil)
	require.NoError(t, err)

	target, ok := types.ParseDelegation(code)
	require.True(t, ok)
	assert.Equal(t, report.Delegate, target)

	// getConstant() through the account returns the 32 byte big-endian encoding of 12345.
	result, err := env.client.CallContract(ctx, callMsg(env.account(), delegate.GetConstantCalldata()), nil)
	require.NoError(t, err)
	assert.Equal(t, common.LeftPadBytes(big.NewInt(12345).Bytes(), 32), result)

	mined, _, err := env.client.TransactionByHash(ctx, report.DelegationTx)
	require.NoError(t, err)
	assert.Equal(t, uint8(types.SetCodeTxType), mined.Type())

	delegation := report.Step(checker.StepDelegate)
	require.NotNil(t, delegation)
	assert.Equal(t, 1, delegation.Fields["authorizations"])
	assert.Equal(t, env.account().Hex(), delegation.Fields["authority"])

	for _, step := range []checker.Step{
		checker.StepConnect,
		checker.StepDeploy,
		checker.StepCreateAccount,
		checker.StepFund,
		checker.StepAuthorize,
		checker.StepDelegate,
		checker.StepVerify,
		checker.StepStorage,
	} {
		result := report.Step(step)
		require.NotNil(t, result, step)
		assert.Equal(t, checker.StepStatusSuccess, result.Status, step)
	}

	assert.Equal(t, checker.StepStatusSkipped, report.Step(checker.StepRevoke).Status)
}

func TestRun_ReusedAuthorizationNonceIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	report := env.checker(env.config()).Run(ctx)
	require.True(t, report.Success(), report.Err())
	require.NotNil(t, report.AuthorizationNonce)

	// Re-point the delegation with the nonce that has already been consumed.
	other := common.HexToAddress("0x000000000000000000000000000000000000beef")

	auth := authorization.New(big.NewInt(1337), other, *report.AuthorizationNonce)
	require.NoError(t, auth.Sign(env.accountKey))

	setCode, err := auth.SetCode()
	require.NoError(t, err)

	funder := crypto.PubkeyToAddress(env.funderKey.PublicKey)

	nonce, err := env.client.NonceAt(ctx, funder, nil)
	require.NoError(t, err)

	header, err := env.client.HeaderByNumber(ctx, nil)
	require.NoError(t, err)

	account := env.account()
	signer := types.LatestSignerForChainID(big.NewInt(1337))

	tx, err := types.SignNewTx(env.funderKey, signer, &types.SetCodeTx{
		ChainID:   uint256.NewInt(1337),
		Nonce:     nonce,
		GasTipCap: uint256.NewInt(params.GWei),
		GasFeeCap: uint256.MustFromBig(new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), big.NewInt(params.GWei))),
		Gas:       200000,
		To:        account,
		Value:     new(uint256.Int),
		AuthList:  []types.SetCodeAuthorization{setCode},
	})
	require.NoError(t, err)
	require.NoError(t, env.client.SendTransaction(ctx, tx))

	_, err = env.client.TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)

	code, err := env.client.CodeAt(ctx, account, nil)
	require.NoError(t, err)

	target, ok := types.ParseDelegation(code)
	require.True(t, ok)
	assert.Equal(t, report.Delegate, target, "delegation must not be re-pointed by a stale authorization")
}

func TestRun_InvalidYParityFailsBeforeSubmission(t *testing.T) {
	env := newTestEnv(t)

	badSigner := func(hash []byte, key *ecdsa.PrivateKey) ([]byte, error) {
		sig, err := crypto.Sign(hash, key)
		if err != nil {
			return nil, err
		}

		sig[crypto.RecoveryIDOffset] += 27

		return sig, nil
	}

	report := env.checker(env.config(), checker.WithHashSigner(badSigner)).Run(context.Background())

	require.Error(t, report.Err())
	assert.ErrorIs(t, report.Err(), authorization.ErrInvalidYParity)
	assert.Equal(t, checker.OutcomeSetupFailed, report.Outcome)
	assert.Equal(t, checker.KindSignature, report.FailureKind())

	failed := report.FailedStep()
	require.NotNil(t, failed)
	assert.Equal(t, checker.StepAuthorize, failed.Step)

	assert.Nil(t, report.Step(checker.StepDelegate), "no type-4 transaction is attempted")
	assert.Equal(t, common.Hash{}, report.DelegationTx)
}

func TestRun_UnexpectedConstant(t *testing.T) {
	env := newTestEnv(t)

	conf := env.config()
	conf.ExpectedConstant = 54321

	report := env.checker(conf).Run(context.Background())

	require.Error(t, report.Err())
	assert.ErrorIs(t, report.Err(), checker.ErrUnexpectedValue)
	assert.Equal(t, checker.OutcomeDelegationFailed, report.Outcome)
	assert.Equal(t, checker.KindAssertion, report.FailureKind())
	assert.Equal(t, checker.StepVerify, report.FailedStep().Step)

	require.NotNil(t, report.ReturnedValue)
	assert.Equal(t, int64(12345), report.ReturnedValue.Int64())
}

func TestRun_StaleAuthorizationNonce(t *testing.T) {
	env := newTestEnv(t)

	// Offset 0 signs the sender's pre-increment nonce, which the node skips.
	offset := uint64(0)

	conf := env.config()
	conf.Authorization.NonceOffset = &offset

	report := env.checker(conf).Run(context.Background())

	require.Error(t, report.Err())
	assert.Equal(t, checker.OutcomeDelegationFailed, report.Outcome)
	assert.Equal(t, checker.KindAssertion, report.FailureKind())
	assert.Equal(t, checker.StepVerify, report.FailedStep().Step)
	assert.ErrorIs(t, report.Err(), delegate.ErrEmptyReturn)
}

func TestRun_Sponsored(t *testing.T) {
	env := newTestEnv(t)

	conf := env.config()
	conf.Submission.Sponsored = true

	report := env.checker(conf).Run(context.Background())

	require.True(t, report.Success(), report.Err())
	require.NotNil(t, report.AuthorizationNonce)
	assert.Equal(t, uint64(0), *report.AuthorizationNonce)

	assert.Equal(t, crypto.PubkeyToAddress(env.funderKey.PublicKey).Hex(), report.Step(checker.StepDelegate).Fields["sender"])
}

func TestRun_Revoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	conf := env.config()
	conf.Verify.Revoke = true

	report := env.checker(conf).Run(ctx)

	require.True(t, report.Success(), report.Err())
	assert.Equal(t, checker.StepStatusSuccess, report.Step(checker.StepRevoke).Status)

	code, err := env.client.CodeAt(ctx, env.account(), nil)
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestRun_ChainIDMismatch(t *testing.T) {
	env := newTestEnv(t)

	conf := env.config()
	conf.ChainID = 763374

	report := env.checker(conf).Run(context.Background())

	assert.ErrorIs(t, report.Err(), ethereum.ErrChainIDMismatch)
	assert.Equal(t, checker.OutcomeSetupFailed, report.Outcome)
	assert.Equal(t, checker.KindConfig, report.FailureKind())
	assert.Equal(t, checker.StepConnect, report.FailedStep().Step)
}

func TestRun_InsufficientFunderBalance(t *testing.T) {
	env := newTestEnv(t)

	conf := env.config()
	conf.FundingAmount = "1000000000000000000000000"

	report := env.checker(conf).Run(context.Background())

	assert.ErrorIs(t, report.Err(), checker.ErrInsufficientFunds)
	assert.Equal(t, checker.KindFunds, report.FailureKind())
	assert.Equal(t, checker.OutcomeSetupFailed, report.Outcome)
}

func TestRun_FunderCannotCoverGas(t *testing.T) {
	env := newTestEnv(t)

	// Exactly the genesis balance: enough for the transfer value, not for gas.
	conf := env.config()
	conf.FundingAmount = new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether)).String()

	report := env.checker(conf).Run(context.Background())

	assert.ErrorIs(t, report.Err(), checker.ErrInsufficientFunds)
	assert.Equal(t, checker.KindFunds, report.FailureKind())
	assert.Equal(t, checker.StepConnect, report.FailedStep().Step)
	assert.Nil(t, report.Step(checker.StepDeploy))
}

func TestRun_RepeatableOnSameNode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	conf := env.config()
	conf.Verify.Revoke = true

	first := env.checker(conf).Run(ctx)
	require.True(t, first.Success(), first.Err())

	// The revoked account is empty again, so the same key can be delegated anew.
	second := env.checker(conf).Run(ctx)
	require.True(t, second.Success(), second.Err())
	assert.NotEqual(t, first.Delegate, second.Delegate)
}

// noSetCodeClient behaves like a node without EIP-7702 support.
type noSetCodeClient struct {
	*testutil.AutoMiningClient
}

func (c *noSetCodeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if tx.Type() == types.SetCodeTxType {
		return errors.New("transaction type not supported")
	}

	return c.AutoMiningClient.SendTransaction(ctx, tx)
}

func TestRun_SetCodeTxRejected(t *testing.T) {
	env := newTestEnv(t)
	env.node = newSimulatedNode(&noSetCodeClient{AutoMiningClient: env.client})

	report := env.checker(env.config()).Run(context.Background())

	assert.False(t, report.Success())
	assert.Equal(t, checker.OutcomeTxRejected, report.Outcome)
	assert.Equal(t, checker.KindUnsupported, report.FailureKind())
	assert.Equal(t, checker.StepDelegate, report.FailedStep().Step)
	assert.Nil(t, report.Step(checker.StepVerify))
}

func TestRun_ReceiptNeverArrives(t *testing.T) {
	env := newTestEnv(t)

	// No block has been sealed yet, so geth answers receipt lookups with
	// "transaction indexing is in progress" until the wait gives up.
	env.node = newSimulatedNode(env.backend.Client())

	conf := env.config()
	conf.ReceiptTimeout = 300 * time.Millisecond

	report := env.checker(conf).Run(context.Background())

	assert.ErrorIs(t, report.Err(), execution.ErrReceiptTimeout)
	assert.Equal(t, checker.OutcomeSetupFailed, report.Outcome)
	assert.Equal(t, checker.KindTimeout, report.FailureKind())
	assert.Equal(t, checker.StepDeploy, report.FailedStep().Step)
}
