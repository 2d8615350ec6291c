package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// FileRegistry methods.
const (
	methodUploadFile    = "uploadFile"
	methodGetTotalFiles = "getTotalFiles"
	methodGetFile       = "getFile"
	methodGrant         = "grantDownloadPermission"
	methodCanDownload   = "canDownload"
)

// registryABIJSON is the interface of the FileRegistry contract.
const registryABIJSON = `[
	{"type":"function","name":"uploadFile","stateMutability":"nonpayable",
	 "inputs":[{"name":"fileName","type":"string"},{"name":"fileHash","type":"string"}],"outputs":[]},
	{"type":"function","name":"getTotalFiles","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getFile","stateMutability":"view",
	 "inputs":[{"name":"index","type":"uint256"}],
	 "outputs":[{"name":"fileName","type":"string"},{"name":"fileHash","type":"string"},{"name":"uploader","type":"address"}]},
	{"type":"function","name":"grantDownloadPermission","stateMutability":"nonpayable",
	 "inputs":[{"name":"index","type":"uint256"},{"name":"user","type":"address"}],"outputs":[]},
	{"type":"function","name":"canDownload","stateMutability":"view",
	 "inputs":[{"name":"index","type":"uint256"},{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

var registryABI = mustParseABI(registryABIJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("ledger: invalid registry ABI: " + err.Error())
	}
	return parsed
}

// indexArg and addressArg convert registry arguments to their ABI types.
func indexArg(index uint64) *big.Int { return new(big.Int).SetUint64(index) }

func addressArg(a wallet.Address) common.Address { return common.Address(a) }

// packCall ABI-encodes a call to method, selector included.
func packCall(method string, args ...interface{}) ([]byte, error) {
	data, err := registryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %w", ErrInvalidParams, method, err)
	}
	return data, nil
}

// unpackOutputs decodes the return data of method. The decoder bounds-checks
// every offset and length, so malformed node output is an error.
func unpackOutputs(method string, data []byte) ([]interface{}, error) {
	out, err := registryABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidResponse, method, err)
	}
	m := registryABI.Methods[method]
	if len(out) != len(m.Outputs) {
		return nil, fmt.Errorf("%w: decode %s: %d values, want %d", ErrInvalidResponse, method, len(out), len(m.Outputs))
	}
	return out, nil
}

// unpackUint64 decodes a single uint256 result that must fit in uint64.
func unpackUint64(method string, data []byte) (uint64, error) {
	out, err := unpackOutputs(method, data)
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(*big.Int)
	if !ok || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s returned %v, want uint64", ErrInvalidResponse, method, out[0])
	}
	return v.Uint64(), nil
}

// unpackBool decodes a single bool result.
func unpackBool(method string, data []byte) (bool, error) {
	out, err := unpackOutputs(method, data)
	if err != nil {
		return false, err
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s returned %T, want bool", ErrInvalidResponse, method, out[0])
	}
	return v, nil
}

// unpackFile decodes the (string,string,address) tuple returned by getFile.
func unpackFile(data []byte) (filename, hash string, uploader wallet.Address, err error) {
	out, err := unpackOutputs(methodGetFile, data)
	if err != nil {
		return "", "", wallet.Address{}, err
	}
	filename, ok1 := out[0].(string)
	hash, ok2 := out[1].(string)
	addr, ok3 := out[2].(common.Address)
	if !ok1 || !ok2 || !ok3 {
		return "", "", wallet.Address{}, fmt.Errorf("%w: getFile returned %T, %T, %T", ErrInvalidResponse, out[0], out[1], out[2])
	}
	return filename, hash, wallet.Address(addr), nil
}
