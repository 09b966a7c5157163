package ethereum

import (
	"fmt"

	"github.com/ethpandaops/eip7702-checker/pkg/ethereum/execution"
)

type Config struct {
	// Execution is the execution node the check runs against.
	Execution execution.Config `yaml:"execution"`
	// Override network name for custom networks (bypasses networkMap)
	OverrideNetworkName *string `yaml:"overrideNetworkName"`
}

func (c *Config) Validate() error {
	if err := c.Execution.Validate(); err != nil {
		return fmt.Errorf("invalid execution configuration: %w", err)
	}

	return nil
}

// NetworkName resolves the display name for chainID, honouring OverrideNetworkName.
func (c *Config) NetworkName(chainID uint64) string {
	if c.OverrideNetworkName != nil && *c.OverrideNetworkName != "" {
		return *c.OverrideNetworkName
	}

	network, err := GetNetworkByChainID(chainID)
	if err != nil {
		return "unknown"
	}

	return network.Name
}
