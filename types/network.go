package types

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Network identifies a blockchain in CAIP-2 form, namespace:reference
// (e.g., "eip155:10143").
type Network string

const (
	// NetworkMonadTestnet is the Monad testnet, chain id 10143.
	NetworkMonadTestnet Network = "eip155:10143"
)

// EIP155Network builds the CAIP-2 identifier for an EVM chain id.
func EIP155Network(chainID uint64) Network {
	return Network("eip155:" + strconv.FormatUint(chainID, 10))
}

// IsEIP155 reports whether the network belongs to the EVM namespace.
func (n Network) IsEIP155() bool {
	return strings.HasPrefix(string(n), "eip155:")
}

// ChainID extracts the numeric chain id from an eip155 network identifier.
func (n Network) ChainID() (*big.Int, error) {
	if !n.IsEIP155() {
		return nil, fmt.Errorf("network %q is not an eip155 network", n)
	}

	ref := strings.TrimPrefix(string(n), "eip155:")
	id, ok := new(big.Int).SetString(ref, 10)
	if !ok || id.Sign() <= 0 {
		return nil, fmt.Errorf("network %q has an invalid chain id", n)
	}

	return id, nil
}

func (n Network) String() string {
	return string(n)
}
