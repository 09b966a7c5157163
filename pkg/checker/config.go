package checker

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethpandaops/eip7702-checker/pkg/authorization"
	"github.com/ethpandaops/eip7702-checker/pkg/delegate"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum"
)

type AuthorizationConfig struct {
	// NonceOffset is added to the authority's current nonce. Defaults to 1 when
	// the authority submits the transaction itself and 0 when it is sponsored.
	NonceOffset *uint64 `yaml:"nonceOffset"`
	// Nonce pins the authorization nonce, ignoring the on-chain nonce.
	Nonce *uint64 `yaml:"nonce"`
}

type SubmissionConfig struct {
	// Sponsored makes the funder send the type-4 transaction instead of the delegated account.
	Sponsored bool `yaml:"sponsored"`
}

type VerifyConfig struct {
	// Storage writes through the delegated code and checks it lands in the account's storage.
	Storage bool `yaml:"storage" default:"true"`
	// StorageValue is the value written by the storage check.
	StorageValue uint64 `yaml:"storageValue" default:"42"`
	// Revoke clears the delegation at the end of the run and checks the code is gone.
	Revoke bool `yaml:"revoke"`
}

type Config struct {
	// ChainID is the expected chain ID. Zero accepts whatever the node reports.
	ChainID uint64 `yaml:"chainId" default:"763374"`
	// FunderPrivateKey pays for the deployment and funds the delegated account.
	FunderPrivateKey string `yaml:"funderPrivateKey"`
	// DelegatedPrivateKey is the key of the delegated account. A fresh key is generated when empty.
	DelegatedPrivateKey string `yaml:"delegatedPrivateKey"`
	// DelegateBytecode overrides the built-in delegate contract creation code.
	DelegateBytecode string `yaml:"delegateBytecode"`
	// ExpectedConstant is what getConstant() must return through the delegated account.
	ExpectedConstant uint64 `yaml:"expectedConstant" default:"12345"`
	// FundingAmount in wei sent to the delegated account.
	FundingAmount string `yaml:"fundingAmount" default:"1000000000000000000"`
	// PriorityFee in wei, used as maxPriorityFeePerGas.
	PriorityFee string `yaml:"priorityFee" default:"2000000000"`

	DeployGasLimit   uint64 `yaml:"deployGasLimit" default:"500000"`
	CallGasLimit     uint64 `yaml:"callGasLimit" default:"500000"`
	TransferGasLimit uint64 `yaml:"transferGasLimit" default:"21000"`

	// ReceiptTimeout bounds the wait for each transaction to be mined.
	ReceiptTimeout time.Duration `yaml:"receiptTimeout" default:"2m"`
	// ReceiptPollInterval is the initial interval between receipt polls.
	ReceiptPollInterval time.Duration `yaml:"receiptPollInterval" default:"500ms"`

	Authorization AuthorizationConfig `yaml:"authorization"`
	Submission    SubmissionConfig    `yaml:"submission"`
	Verify        VerifyConfig        `yaml:"verify"`
}

func (c *Config) Validate() error {
	if c.FunderPrivateKey == "" {
		return errors.New("funderPrivateKey is required")
	}

	if _, err := ethereum.ParsePrivateKey(c.FunderPrivateKey); err != nil {
		return fmt.Errorf("invalid funderPrivateKey: %w", err)
	}

	if c.DelegatedPrivateKey != "" {
		if _, err := ethereum.ParsePrivateKey(c.DelegatedPrivateKey); err != nil {
			return fmt.Errorf("invalid delegatedPrivateKey: %w", err)
		}
	}

	if _, err := delegate.Code(c.DelegateBytecode); err != nil {
		return fmt.Errorf("invalid delegateBytecode: %w", err)
	}

	if _, err := c.FundingAmountWei(); err != nil {
		return err
	}

	if _, err := c.PriorityFeeWei(); err != nil {
		return err
	}

	if c.DeployGasLimit == 0 || c.CallGasLimit == 0 {
		return errors.New("deployGasLimit and callGasLimit must be positive")
	}

	if c.TransferGasLimit < 21000 {
		return fmt.Errorf("transferGasLimit must be at least 21000, got %d", c.TransferGasLimit)
	}

	if c.ReceiptTimeout <= 0 {
		return errors.New("receiptTimeout must be positive")
	}

	if c.ReceiptPollInterval <= 0 {
		return errors.New("receiptPollInterval must be positive")
	}

	if c.Verify.Storage && c.Verify.StorageValue == 0 {
		return errors.New("verify.storageValue must be non-zero when verify.storage is enabled")
	}

	return nil
}

// FundingAmountWei parses FundingAmount.
func (c *Config) FundingAmountWei() (*big.Int, error) {
	return parseWei("fundingAmount", c.FundingAmount)
}

// PriorityFeeWei parses PriorityFee.
func (c *Config) PriorityFeeWei() (*big.Int, error) {
	return parseWei("priorityFee", c.PriorityFee)
}

// AuthorizationNonce derives the authorization nonce from the authority's current nonce.
func (c *Config) AuthorizationNonce(current uint64) uint64 {
	if c.Authorization.Nonce != nil {
		return *c.Authorization.Nonce
	}

	return authorization.Nonce(current, c.NonceOffset())
}

// NonceOffset is the configured offset, or the default for the submission mode.
func (c *Config) NonceOffset() uint64 {
	if c.Authorization.NonceOffset != nil {
		return *c.Authorization.NonceOffset
	}

	if c.Submission.Sponsored {
		return 0
	}

	return 1
}

func parseWei(field, value string) (*big.Int, error) {
	wei, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q: not a base 10 integer", field, value)
	}

	if wei.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q: negative", field, value)
	}

	return wei, nil
}
