package ethereum

import "errors"

// Sentinel errors for Ethereum client operations.
var (
	// ErrChainIDMismatch indicates the node reports a different chain ID than configured.
	ErrChainIDMismatch = errors.New("chain ID mismatch")

	// ErrUnsupportedChainID indicates an unsupported chain ID was provided.
	ErrUnsupportedChainID = errors.New("unsupported chain ID")

	// ErrInvalidPrivateKey indicates a configured private key could not be parsed.
	ErrInvalidPrivateKey = errors.New("invalid private key")
)
