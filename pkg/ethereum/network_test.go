package ethereum_test

import (
	"testing"

	"github.com/ethpandaops/eip7702-checker/pkg/ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNetworkByChainID(t *testing.T) {
	tests := []struct {
		name      string
		chainID   uint64
		expected  string
		expectErr bool
	}{
		{name: "mainnet", chainID: 1, expected: "mainnet"},
		{name: "surge devnet", chainID: 763374, expected: "surge-devnet"},
		{name: "simulated dev chain", chainID: 1337, expected: "dev"},
		{name: "unknown chain", chainID: 424242, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, err := ethereum.GetNetworkByChainID(tt.chainID)
			if tt.expectErr {
				require.ErrorIs(t, err, ethereum.ErrUnsupportedChainID)
				assert.Nil(t, network)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, network.Name)
			assert.Equal(t, tt.chainID, network.ID)
		})
	}
}

func TestConfig_NetworkName(t *testing.T) {
	config := &ethereum.Config{}
	assert.Equal(t, "surge-devnet", config.NetworkName(763374))
	assert.Equal(t, "unknown", config.NetworkName(424242))

	override := "my-devnet"
	config.OverrideNetworkName = &override
	assert.Equal(t, "my-devnet", config.NetworkName(763374))
}
