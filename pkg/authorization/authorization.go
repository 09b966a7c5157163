// Package authorization builds and signs EIP-7702 authorization tuples.
//
// An authorization lets an externally owned account point its code at a
// delegate contract. The signed message is
//
//	keccak256(0x05 || rlp([chain_id, address, nonce]))
//
// and the signature is carried as (y_parity, r, s) with y_parity in {0, 1}.
package authorization

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Magic is the domain separator prepended to the RLP payload before hashing.
const Magic byte = 0x05

// HashSigner produces a 65 byte [R || S || V] signature over a 32 byte hash.
type HashSigner func(hash []byte, key *ecdsa.PrivateKey) ([]byte, error)

// DefaultSigner is go-ethereum's secp256k1 signer; V is the raw recovery id.
var DefaultSigner HashSigner = crypto.Sign

type Authorization struct {
	ChainID *big.Int
	Address common.Address
	Nonce   uint64

	YParity uint8
	R       *big.Int
	S       *big.Int
}

// New returns an unsigned authorization delegating to address.
func New(chainID *big.Int, address common.Address, nonce uint64) *Authorization {
	return &Authorization{
		ChainID: new(big.Int).Set(chainID),
		Address: address,
		Nonce:   nonce,
	}
}

// Nonce returns the authorization nonce for an account whose current nonce is
// current. offset is 1 when the authority also sends the enclosing transaction,
// because the sender nonce is bumped before the authorization list is processed.
func Nonce(current, offset uint64) uint64 {
	return current + offset
}

// Encode returns rlp([chain_id, address, nonce]).
func (a *Authorization) Encode() ([]byte, error) {
	return rlp.EncodeToBytes([]any{a.ChainID, a.Address, a.Nonce})
}

// SigningHash returns keccak256(0x05 || rlp([chain_id, address, nonce])).
func (a *Authorization) SigningHash() (common.Hash, error) {
	encoded, err := a.Encode()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode authorization: %w", err)
	}

	return crypto.Keccak256Hash([]byte{Magic}, encoded), nil
}

// Sign signs the authorization with key using DefaultSigner.
func (a *Authorization) Sign(key *ecdsa.PrivateKey) error {
	return a.SignWith(key, DefaultSigner)
}

// SignWith signs the authorization using signer. It fails with ErrInvalidYParity
// if the recovery id is not 0 or 1, leaving the authorization unsigned.
func (a *Authorization) SignWith(key *ecdsa.PrivateKey, signer HashSigner) error {
	hash, err := a.SigningHash()
	if err != nil {
		return err
	}

	sig, err := signer(hash.Bytes(), key)
	if err != nil {
		return fmt.Errorf("failed to sign authorization: %w", err)
	}

	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}

	v := sig[crypto.RecoveryIDOffset]
	if v > 1 {
		return fmt.Errorf("%w: %d", ErrInvalidYParity, v)
	}

	a.R = new(big.Int).SetBytes(sig[:32])
	a.S = new(big.Int).SetBytes(sig[32:64])
	a.YParity = v

	return nil
}

// Signed reports whether the authorization carries a signature.
func (a *Authorization) Signed() bool {
	return a.R != nil && a.S != nil
}

// signature returns the 65 byte [R || S || V] form.
func (a *Authorization) signature() ([]byte, error) {
	if !a.Signed() {
		return nil, ErrNotSigned
	}

	if !crypto.ValidateSignatureValues(a.YParity, a.R, a.S, true) {
		return nil, ErrInvalidSignature
	}

	sig := make([]byte, crypto.SignatureLength)
	a.R.FillBytes(sig[:32])
	a.S.FillBytes(sig[32:64])
	sig[crypto.RecoveryIDOffset] = a.YParity

	return sig, nil
}

// Authority recovers the address that signed the authorization.
func (a *Authorization) Authority() (common.Address, error) {
	sig, err := a.signature()
	if err != nil {
		return common.Address{}, err
	}

	hash, err := a.SigningHash()
	if err != nil {
		return common.Address{}, err
	}

	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// SetCode converts the signed authorization into the go-ethereum form carried
// in a SetCodeTx authorization list.
func (a *Authorization) SetCode() (types.SetCodeAuthorization, error) {
	if !a.Signed() {
		return types.SetCodeAuthorization{}, ErrNotSigned
	}

	chainID, overflow := uint256.FromBig(a.ChainID)
	if overflow {
		return types.SetCodeAuthorization{}, fmt.Errorf("%w: chain ID %s", ErrValueOverflow, a.ChainID)
	}

	r, overflow := uint256.FromBig(a.R)
	if overflow {
		return types.SetCodeAuthorization{}, fmt.Errorf("%w: r", ErrValueOverflow)
	}

	s, overflow := uint256.FromBig(a.S)
	if overflow {
		return types.SetCodeAuthorization{}, fmt.Errorf("%w: s", ErrValueOverflow)
	}

	return types.SetCodeAuthorization{
		ChainID: *chainID,
		Address: a.Address,
		Nonce:   a.Nonce,
		V:       a.YParity,
		R:       *r,
		S:       *s,
	}, nil
}

// FromSetCode converts a go-ethereum authorization back into an Authorization.
func FromSetCode(auth types.SetCodeAuthorization) *Authorization {
	return &Authorization{
		ChainID: auth.ChainID.ToBig(),
		Address: auth.Address,
		Nonce:   auth.Nonce,
		YParity: auth.V,
		R:       auth.R.ToBig(),
		S:       auth.S.ToBig(),
	}
}
