package authorization_test

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/eip7702-checker/pkg/authorization"
)

var delegateAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return key
}

func TestEncode_FieldOrder(t *testing.T) {
	auth := authorization.New(big.NewInt(763374), delegateAddr, 1)

	encoded, err := auth.Encode()
	require.NoError(t, err)

	var decoded struct {
		ChainID *big.Int
		Address common.Address
		Nonce   uint64
	}

	require.NoError(t, rlp.DecodeBytes(encoded, &decoded))
	assert.Equal(t, int64(763374), decoded.ChainID.Int64())
	assert.Equal(t, delegateAddr, decoded.Address)
	assert.Equal(t, uint64(1), decoded.Nonce)
}

func TestSigningHash_MatchesGoEthereum(t *testing.T) {
	tests := []struct {
		name    string
		chainID int64
		nonce   uint64
	}{
		{name: "surge devnet", chainID: 763374, nonce: 1},
		{name: "mainnet zero nonce", chainID: 1, nonce: 0},
		{name: "any chain", chainID: 0, nonce: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := authorization.New(big.NewInt(tt.chainID), delegateAddr, tt.nonce)

			hash, err := auth.SigningHash()
			require.NoError(t, err)

			encoded, err := auth.Encode()
			require.NoError(t, err)

			assert.Equal(t, crypto.Keccak256Hash(append([]byte{0x05}, encoded...)), hash)

			auth.R, auth.S = big.NewInt(1), big.NewInt(1)

			setCode, err := auth.SetCode()
			require.NoError(t, err)
			assert.Equal(t, setCode.SigHash(), hash)
		})
	}
}

func TestSign_RecoversAuthority(t *testing.T) {
	key := newKey(t)
	expected := crypto.PubkeyToAddress(key.PublicKey)

	auth := authorization.New(big.NewInt(763374), delegateAddr, 1)
	require.False(t, auth.Signed())
	require.NoError(t, auth.Sign(key))
	require.True(t, auth.Signed())

	assert.LessOrEqual(t, auth.YParity, uint8(1))

	authority, err := auth.Authority()
	require.NoError(t, err)
	assert.Equal(t, expected, authority)

	// go-ethereum must agree on the signer of the converted tuple.
	setCode, err := auth.SetCode()
	require.NoError(t, err)

	gethAuthority, err := setCode.Authority()
	require.NoError(t, err)
	assert.Equal(t, expected, gethAuthority)
}

func TestSign_MatchesSignSetCode(t *testing.T) {
	key := newKey(t)

	auth := authorization.New(big.NewInt(1337), delegateAddr, 7)
	require.NoError(t, auth.Sign(key))

	unsigned, err := (&authorization.Authorization{
		ChainID: big.NewInt(1337),
		Address: delegateAddr,
		Nonce:   7,
		R:       big.NewInt(0),
		S:       big.NewInt(0),
	}).SetCode()
	require.NoError(t, err)

	expected, err := types.SignSetCode(key, unsigned)
	require.NoError(t, err)

	actual, err := auth.SetCode()
	require.NoError(t, err)

	assert.Equal(t, expected, actual)
}

func TestSignWith_RejectsInvalidYParity(t *testing.T) {
	for _, v := range []byte{2, 27, 28} {
		legacySigner := func(hash []byte, key *ecdsa.PrivateKey) ([]byte, error) {
			sig, err := crypto.Sign(hash, key)
			if err != nil {
				return nil, err
			}

			sig[64] = v

			return sig, nil
		}

		auth := authorization.New(big.NewInt(763374), delegateAddr, 1)

		err := auth.SignWith(newKey(t), legacySigner)
		require.ErrorIs(t, err, authorization.ErrInvalidYParity, "v=%d", v)
		assert.False(t, auth.Signed())

		_, err = auth.SetCode()
		assert.ErrorIs(t, err, authorization.ErrNotSigned)
	}
}

func TestSignWith_SignerErrors(t *testing.T) {
	auth := authorization.New(big.NewInt(1), delegateAddr, 0)

	err := auth.SignWith(newKey(t), func([]byte, *ecdsa.PrivateKey) ([]byte, error) {
		return nil, errors.New("hsm unavailable")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hsm unavailable")

	err = auth.SignWith(newKey(t), func([]byte, *ecdsa.PrivateKey) ([]byte, error) {
		return make([]byte, 64), nil
	})
	require.ErrorIs(t, err, authorization.ErrInvalidSignature)
}

func TestAuthority_TamperedTuple(t *testing.T) {
	key := newKey(t)

	auth := authorization.New(big.NewInt(763374), delegateAddr, 1)
	require.NoError(t, auth.Sign(key))

	auth.Nonce = 2

	authority, err := auth.Authority()
	require.NoError(t, err)
	assert.NotEqual(t, crypto.PubkeyToAddress(key.PublicKey), authority)
}

func TestAuthority_Unsigned(t *testing.T) {
	_, err := authorization.New(big.NewInt(1), delegateAddr, 0).Authority()
	assert.ErrorIs(t, err, authorization.ErrNotSigned)
}

func TestFromSetCode_RoundTrip(t *testing.T) {
	auth := authorization.New(big.NewInt(763374), delegateAddr, 3)
	require.NoError(t, auth.Sign(newKey(t)))

	setCode, err := auth.SetCode()
	require.NoError(t, err)

	back := authorization.FromSetCode(setCode)
	assert.Equal(t, 0, auth.ChainID.Cmp(back.ChainID))
	assert.Equal(t, auth.Address, back.Address)
	assert.Equal(t, auth.Nonce, back.Nonce)
	assert.Equal(t, auth.YParity, back.YParity)
	assert.Equal(t, 0, auth.R.Cmp(back.R))
	assert.Equal(t, 0, auth.S.Cmp(back.S))
}

func TestNonce(t *testing.T) {
	assert.Equal(t, uint64(1), authorization.Nonce(0, 1))
	assert.Equal(t, uint64(5), authorization.Nonce(5, 0))
}
