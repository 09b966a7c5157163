package report

import (
	"github.com/ethpandaops/eip7702-checker/pkg/checker"
)

var hints = map[checker.Kind][]string{
	checker.KindUnsupported: {
		"EIP-7702 is not activated on this network",
		"The authorization list format is not supported",
		"The node does not implement EIP-7702 yet",
	},
	checker.KindNetwork: {
		"The RPC endpoint is unreachable; check ethereum.execution.nodeAddress",
		"Custom headers (ethereum.execution.nodeHeaders) may be required by the endpoint",
	},
	checker.KindTimeout: {
		"The node accepted the transaction but did not mine it within checker.receiptTimeout",
		"Check that the chain is producing blocks",
	},
	checker.KindFunds: {
		"The funder cannot pay for the deployment, the funding transfer and gas",
		"Lower checker.fundingAmount or top up the funder account",
	},
	checker.KindSignature: {
		"The authorization or transaction signature was rejected",
		"Check checker.chainId matches the node and the authorization nonce settings",
	},
	checker.KindTransaction: {
		"The node rejected or reverted a transaction",
		"Gas limits or fee settings may be too low for this network",
	},
	checker.KindCall: {
		"eth_call against the delegated account failed",
	},
	checker.KindAssertion: {
		"The type-4 transaction was mined but calls through the account did not reach the delegate",
		"An empty result means the authorization was skipped; check the authorization nonce",
	},
	checker.KindConfig: {
		"The configuration does not match the node; see the error above",
	},
}

// Diagnose returns likely causes for a failure of kind.
func Diagnose(kind checker.Kind) []string {
	return hints[kind]
}
