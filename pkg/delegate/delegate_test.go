package delegate_test

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/eip7702-checker/pkg/delegate"
)

func TestSelectors(t *testing.T) {
	code, err := delegate.Code("")
	require.NoError(t, err)

	tests := []struct {
		signature string
		method    string
		args      []any
		expected  string
	}{
		{signature: "getConstant()", method: delegate.MethodGetConstant, expected: "f13a38a6"},
		{signature: "getValue()", method: delegate.MethodGetValue, expected: "20965255"},
		{signature: "setValue(uint256)", method: delegate.MethodSetValue, args: []any{big.NewInt(42)}, expected: "55241077"},
		{signature: "value()", method: delegate.MethodValue, expected: "3fa4f245"},
	}

	for _, tt := range tests {
		t.Run(tt.signature, func(t *testing.T) {
			selector := delegate.Selector(tt.signature)
			assert.Equal(t, tt.expected, hex.EncodeToString(selector[:]))

			packed, err := delegate.Pack(tt.method, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, selector[:], packed[:4])

			// The dispatcher compares against PUSH4 <selector>.
			assert.True(t, bytes.Contains(code, append([]byte{0x63}, selector[:]...)), "selector missing from bytecode")
		})
	}

	assert.Equal(t, "f13a38a6", hex.EncodeToString(delegate.GetConstantCalldata()))
}

func TestCode(t *testing.T) {
	builtin, err := delegate.Code("")
	require.NoError(t, err)
	assert.Equal(t, byte(0x60), builtin[0])

	withoutPrefix, err := delegate.Code(delegate.Bytecode[2:])
	require.NoError(t, err)
	assert.Equal(t, builtin, withoutPrefix)

	_, err = delegate.Code("0xzz")
	assert.Error(t, err)

	_, err = delegate.Code("0x")
	assert.Error(t, err)
}

func TestUnpackUint256(t *testing.T) {
	data := common.LeftPadBytes(big.NewInt(delegate.ExpectedConstant).Bytes(), 32)

	value, err := delegate.UnpackUint256(delegate.MethodGetConstant, data)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), value.Int64())

	_, err = delegate.UnpackUint256(delegate.MethodGetConstant, nil)
	require.ErrorIs(t, err, delegate.ErrEmptyReturn)

	_, err = delegate.UnpackUint256(delegate.MethodGetConstant, []byte{0x30, 0x39})
	assert.Error(t, err)
}

func TestPackSetValue(t *testing.T) {
	data, err := delegate.Pack(delegate.MethodSetValue, big.NewInt(42))
	require.NoError(t, err)
	require.Len(t, data, 36)

	selector := delegate.Selector("setValue(uint256)")
	assert.Equal(t, selector[:], data[:4])
	assert.Equal(t, int64(42), new(big.Int).SetBytes(data[4:]).Int64())
}
