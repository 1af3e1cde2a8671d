// Package challenge assembles the payment terms a caller receives when no
// proof accompanies a request. Building a challenge is pure: fixed price,
// fixed network, configured recipient, no I/O and no chain state.
package challenge

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/x402-chat/types"
	"github.com/vitwit/x402-chat/utils"
)

// Protocol defaults for the Monad testnet deployment.
const (
	DefaultAssetName         = "MON"
	DefaultAssetSymbol       = "MON"
	DefaultAssetDecimals     = 18
	DefaultMaxTimeoutSeconds = 86400

	description = "AI Query Payment"
)

// DefaultPrice returns the flat per-request price: 10^15 base units, 0.001 of
// the native asset at 18 decimals.
func DefaultPrice() *big.Int {
	return big.NewInt(1_000_000_000_000_000)
}

// Config fixes the terms a Builder offers.
type Config struct {
	// Network in CAIP-2 form. Zero value means the Monad testnet.
	Network types.Network

	// Recipient address payments must be sent to. Required.
	Recipient string

	// Price in base units. Nil means DefaultPrice.
	Price *big.Int

	// Asset display metadata for the challenge extra block. Zero values
	// mean the MON defaults.
	AssetName     string
	AssetSymbol   string
	AssetDecimals int

	// MaxTimeoutSeconds bound offered to callers. Zero means the default.
	MaxTimeoutSeconds int
}

// Builder constructs payment challenges for one resource server.
type Builder struct {
	network        types.Network
	recipient      string
	price          *big.Int
	assetName      string
	assetSymbol    string
	assetDecimals  int
	maxTimeout     int
	priceFormatted string
}

// NewBuilder validates the terms and precomputes the display price.
func NewBuilder(cfg Config) (*Builder, error) {
	if !common.IsHexAddress(cfg.Recipient) {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: "challenge recipient is not a valid address",
		}
	}

	network := cfg.Network
	if network == "" {
		network = types.NetworkMonadTestnet
	}

	price := cfg.Price
	if price == nil {
		price = DefaultPrice()
	}
	if price.Sign() <= 0 {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: "challenge price must be positive",
		}
	}

	name := cfg.AssetName
	if name == "" {
		name = DefaultAssetName
	}
	symbol := cfg.AssetSymbol
	if symbol == "" {
		symbol = DefaultAssetSymbol
	}
	decimals := cfg.AssetDecimals
	if decimals == 0 {
		decimals = DefaultAssetDecimals
	}
	maxTimeout := cfg.MaxTimeoutSeconds
	if maxTimeout == 0 {
		maxTimeout = DefaultMaxTimeoutSeconds
	}

	return &Builder{
		network:        network,
		recipient:      cfg.Recipient,
		price:          new(big.Int).Set(price),
		assetName:      name,
		assetSymbol:    symbol,
		assetDecimals:  decimals,
		maxTimeout:     maxTimeout,
		priceFormatted: utils.FormatAmountFromBigInt(price, decimals) + " " + symbol,
	}, nil
}

// Price returns a copy of the configured price in base units.
func (b *Builder) Price() *big.Int {
	return new(big.Int).Set(b.price)
}

// Recipient returns the configured payment recipient.
func (b *Builder) Recipient() string {
	return b.recipient
}

// Build assembles the single payment requirement offered for a resource.
// The architecture allows several accepted options per challenge; this
// deployment offers exactly one.
func (b *Builder) Build(resource string) types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            string(types.SchemeExact),
		Network:           b.network.String(),
		MaxAmountRequired: b.price.String(),
		Resource:          resource,
		Description:       description,
		MimeType:          "application/json",
		OutputSchema: map[string]interface{}{
			"input": map[string]interface{}{
				"type":         "http",
				"method":       "POST",
				"discoverable": true,
			},
		},
		PayTo:             b.recipient,
		MaxTimeoutSeconds: b.maxTimeout,
		Asset:             types.AssetNative,
		Extra: map[string]interface{}{
			"recipientAddress": b.recipient,
			"name":             b.assetName,
			"symbol":           b.assetSymbol,
			"decimals":         b.assetDecimals,
			"priceFormatted":   b.priceFormatted,
		},
	}
}

// Response wraps a challenge for a resource into the 402 body, with the
// message explaining why payment is being asked for.
func (b *Builder) Response(resource, message string) *types.X402Response {
	return &types.X402Response{
		X402Version: int(types.X402Version1),
		Accepts:     []types.PaymentRequirements{b.Build(resource)},
		Error:       message,
	}
}
