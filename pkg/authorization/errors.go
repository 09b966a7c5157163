package authorization

import "errors"

var (
	// ErrInvalidYParity indicates the signer produced a recovery id outside {0, 1}.
	ErrInvalidYParity = errors.New("signature recovery id is not a valid y-parity")

	// ErrInvalidSignature indicates the signature is malformed or has out of range values.
	ErrInvalidSignature = errors.New("invalid authorization signature")

	// ErrNotSigned indicates an operation that needs a signature was called before Sign.
	ErrNotSigned = errors.New("authorization is not signed")

	// ErrValueOverflow indicates a value does not fit into 256 bits.
	ErrValueOverflow = errors.New("value overflows uint256")
)
