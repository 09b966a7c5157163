// Package delegate holds the contract EOAs delegate to during the check.
//
// Source:
//
//	contract Test {
//	    uint256 public value;
//	    function getValue() public view returns (uint256) { return value; }
//	    function setValue(uint256 _value) public { value = _value; }
//	    function getConstant() public pure returns (uint256) { return 12345; }
//	}
package delegate

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Bytecode is the creation code of the contract above (solc 0.8.27).
const Bytecode = "0x6080604052348015600e575f5ffd5b506101a38061001c5f395ff3fe608060405234801561000f575f5ffd5b506004361061004a575f3560e01c8063209652551461004e5780633fa4f2451461006c578063552410771461008a578063f13a38a6146100a6575b5f5ffd5b6100566100c4565b60405161006391906100fb565b60405180910390f35b6100746100cc565b60405161008191906100fb565b60405180910390f35b6100a4600480360381019061009f9190610142565b6100d1565b005b6100ae6100da565b6040516100bb91906100fb565b60405180910390f35b5f5f54905090565b5f5481565b805f8190555050565b5f613039905090565b5f819050919050565b6100f5816100e3565b82525050565b5f60208201905061010e5f8301846100ec565b92915050565b5f5ffd5b610121816100e3565b811461012b575f5ffd5b50565b5f8135905061013c81610118565b92915050565b5f6020828403121561015757610156610114565b5b5f6101648482850161012e565b9150509291505056fea264697066735822122011dc001a28350260e7b3193ee7e82fa0d38cd9ef8557ae1c7149ad397e78402864736f6c634300081b0033"

// ExpectedConstant is the value getConstant() returns.
const ExpectedConstant = 12345

const (
	MethodGetConstant = "getConstant"
	MethodGetValue    = "getValue"
	MethodSetValue    = "setValue"
	MethodValue       = "value"
)

const abiJSON = `[
	{"type":"function","name":"getConstant","stateMutability":"pure","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getValue","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"setValue","stateMutability":"nonpayable","inputs":[{"name":"_value","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"value","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// ErrEmptyReturn indicates a call returned no data, which is what an account without code returns.
var ErrEmptyReturn = errors.New("call returned no data")

var contractABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid delegate ABI: %v", err))
	}

	return parsed
}

// Code decodes hex creation code. An empty string yields the built-in Bytecode.
func Code(hexCode string) ([]byte, error) {
	hexCode = strings.TrimSpace(hexCode)
	if hexCode == "" {
		hexCode = Bytecode
	}

	if !strings.HasPrefix(hexCode, "0x") {
		hexCode = "0x" + hexCode
	}

	code, err := hexutil.Decode(hexCode)
	if err != nil {
		return nil, fmt.Errorf("invalid contract bytecode: %w", err)
	}

	if len(code) == 0 {
		return nil, errors.New("contract bytecode is empty")
	}

	return code, nil
}

// Selector returns the 4 byte function selector of a canonical signature such as "getConstant()".
func Selector(signature string) [4]byte {
	var selector [4]byte

	copy(selector[:], crypto.Keccak256([]byte(signature))[:4])

	return selector
}

// Pack ABI-encodes a call to method.
func Pack(method string, args ...any) ([]byte, error) {
	return contractABI.Pack(method, args...)
}

// GetConstantCalldata returns the calldata for getConstant(), which is just its selector.
func GetConstantCalldata() []byte {
	selector := Selector("getConstant()")

	return selector[:]
}

// UnpackUint256 decodes the single uint256 returned by method.
func UnpackUint256(method string, data []byte) (*big.Int, error) {
	if len(data) == 0 {
		return nil, ErrEmptyReturn
	}

	values, err := contractABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}

	if len(values) != 1 {
		return nil, fmt.Errorf("failed to decode %s result: expected 1 value, got %d", method, len(values))
	}

	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to decode %s result: unexpected type %T", method, values[0])
	}

	return value, nil
}
