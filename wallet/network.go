package wallet

import (
	"fmt"
	"sort"
)

// NetworkConfig describes an EVM chain that can host the file registry.
// RPCURL is empty for public chains, where the operator must supply an
// endpoint.
type NetworkConfig struct {
	Name    string
	ChainID uint64
	RPCURL  string
}

// Chain presets.
var (
	MainNet   = NetworkConfig{Name: "mainnet", ChainID: 1}
	Sepolia   = NetworkConfig{Name: "sepolia", ChainID: 11155111}
	Localhost = NetworkConfig{Name: "localhost", ChainID: 31337, RPCURL: "http://127.0.0.1:8545"}
)

var presets = map[string]*NetworkConfig{
	MainNet.Name:   &MainNet,
	Sepolia.Name:   &Sepolia,
	Localhost.Name: &Localhost,
}

// GetNetwork returns the preset named name, or ErrInvalidNetwork.
func GetNetwork(name string) (*NetworkConfig, error) {
	if n, ok := presets[name]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidNetwork, name)
}

// NetworkNames returns the preset names in sorted order.
func NetworkNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
