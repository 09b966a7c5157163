package cmd

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/eip7702-checker/pkg/authorization"
	"github.com/ethpandaops/eip7702-checker/pkg/config"
	"github.com/ethpandaops/eip7702-checker/pkg/ethereum"
)

var signAuthKey string

var signAuthCmd = &cobra.Command{
	Use:   "sign-auth <chain-id> <delegate> <nonce>",
	Short: "Signs an EIP-7702 authorization offline.",
	Long: `Signs the authorization keccak256(0x05 || rlp([chain_id, address, nonce])) with
--private-key (or $` + config.FunderKeyEnv + `) and prints the tuple. No node is contacted.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := signAuthKey
		if key == "" {
			key = os.Getenv(config.FunderKeyEnv)
		}

		return signAuth(cmd.OutOrStdout(), args, key)
	},
}

func init() {
	signAuthCmd.Flags().StringVar(&signAuthKey, "private-key", "", "hex private key of the authority")

	rootCmd.AddCommand(signAuthCmd)
}

func signAuth(out io.Writer, args []string, hexKey string) error {
	chainID, ok := new(big.Int).SetString(args[0], 0)
	if !ok || chainID.Sign() < 0 {
		return fmt.Errorf("invalid chain id %q", args[0])
	}

	if !common.IsHexAddress(args[1]) {
		return fmt.Errorf("invalid delegate address %q", args[1])
	}

	nonce, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid nonce %q: %w", args[2], err)
	}

	if strings.TrimSpace(hexKey) == "" {
		return fmt.Errorf("--private-key or %s is required", config.FunderKeyEnv)
	}

	key, err := ethereum.ParsePrivateKey(hexKey)
	if err != nil {
		return err
	}

	auth := authorization.New(chainID, common.HexToAddress(args[1]), nonce)
	if err := auth.Sign(key); err != nil {
		return err
	}

	hash, err := auth.SigningHash()
	if err != nil {
		return err
	}

	authority, err := auth.Authority()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "chainId:   %s\n", auth.ChainID)
	fmt.Fprintf(out, "address:   %s\n", auth.Address.Hex())
	fmt.Fprintf(out, "nonce:     %d\n", auth.Nonce)
	fmt.Fprintf(out, "hash:      %s\n", hash.Hex())
	fmt.Fprintf(out, "authority: %s\n", authority.Hex())
	fmt.Fprintf(out, "yParity:   %d\n", auth.YParity)
	fmt.Fprintf(out, "r:         %#x\n", auth.R)
	fmt.Fprintf(out, "s:         %#x\n", auth.S)

	return nil
}
