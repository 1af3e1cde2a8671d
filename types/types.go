package types

import (
	"fmt"
)

// X402Version represents the version of the x402 protocol
type X402Version int

const (
	X402Version1 X402Version = 1
)

// PaymentScheme represents different payment schemes
type PaymentScheme string

const (
	SchemeExact PaymentScheme = "exact"
)

// AssetNative designates the chain's native asset in PaymentRequirements.Asset.
const AssetNative = "native"

// Header names shared by both sides of the protocol.
const (
	// PaymentHeader carries the payment proof on gated requests.
	PaymentHeader = "X-PAYMENT"

	// PaymentReceiptHeader carries the verification receipt on admitted
	// responses, written before the first body byte.
	PaymentReceiptHeader = "X-Payment-Response"
)

// PaymentRequirements defines the requirements a resource server accepts for payment.
type PaymentRequirements struct {
	// Scheme of the payment protocol to use (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network of the blockchain to send payment on, in CAIP-2 form
	// (e.g., "eip155:10143").
	Network string `json:"network"`

	// Maximum amount required to pay for the resource in atomic units of the asset.
	// Represented as a string because Go does not support uint256.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// URL of the resource to pay for.
	Resource string `json:"resource"`

	// Description of the resource being purchased.
	Description string `json:"description"`

	// MIME type of the resource response (e.g., "application/json").
	MimeType string `json:"mimeType"`

	// Output schema of the resource response, if applicable.
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`

	// Address to which the payment must be sent.
	PayTo string `json:"payTo"`

	// Maximum time in seconds for the resource server to respond.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Asset identifier: "native" for the chain's native asset, or a token
	// contract address.
	Asset string `json:"asset"`

	// Extra information about payment details specific to the scheme.
	// For native transfers this carries the asset display name, symbol,
	// decimals and a human-readable price.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// X402Response represents a server response that includes supported payment options.
// It is the body of every 402 answer: with Accepts populated it is the payment
// challenge, without it is a payment rejection.
type X402Response struct {
	// Version of the x402 payment protocol.
	X402Version int `json:"x402Version"`

	// List of payment requirements that the resource server accepts.
	Accepts []PaymentRequirements `json:"accepts,omitempty"`

	// Message from the resource server indicating any processing error.
	Error string `json:"error"`
}

// PaymentProof is the evidence of payment a caller attaches to a request.
// The system imposes no schema beyond a transaction hash the ledger can resolve.
type PaymentProof struct {
	TxHash string `json:"txHash"`
}

// Validate checks that the proof carries a transaction hash.
func (p *PaymentProof) Validate() error {
	if p.TxHash == "" {
		return fmt.Errorf("paymentProof.txHash is required")
	}
	return nil
}

// Receipt is attached to an admitted response as a header value.
// Ephemeral: constructed per request, never stored.
type Receipt struct {
	TxHash   string `json:"txHash"`
	Verified bool   `json:"verified"`
}

// VerificationOutcome is the tri-state result of checking a payment proof.
type VerificationOutcome string

const (
	// OutcomeAccepted: the proof resolves to a confirmed, successful
	// transaction to the expected recipient with sufficient value.
	OutcomeAccepted VerificationOutcome = "accepted"

	// OutcomeRejected: a check failed. Not found, failed status, wrong
	// recipient or insufficient value.
	OutcomeRejected VerificationOutcome = "rejected"

	// OutcomeUnavailable: the ledger could not be consulted. Treated the
	// same as rejected at the protocol boundary (fail closed) but kept
	// distinguishable for logging and alerting.
	OutcomeUnavailable VerificationOutcome = "unavailable"
)

// Accepted reports whether the outcome admits the request.
func (o VerificationOutcome) Accepted() bool {
	return o == OutcomeAccepted
}

func (o VerificationOutcome) String() string {
	return string(o)
}

// ErrorResponse is the body of internal-error (500) answers.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Error types
type X402Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e X402Error) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrInvalidPayload      = "INVALID_PAYLOAD"
	ErrInvalidRequirements = "INVALID_REQUIREMENTS"
	ErrInvalidChatRequest  = "INVALID_CHAT_REQUEST"
	ErrUnsupportedNetwork  = "UNSUPPORTED_NETWORK"
	ErrInsufficientAmount  = "INSUFFICIENT_AMOUNT"
	ErrPaymentReplayed     = "PAYMENT_REPLAYED"
	ErrVerificationFailed  = "VERIFICATION_FAILED"
	ErrUpstreamError       = "UPSTREAM_ERROR"
	ErrNetworkError        = "NETWORK_ERROR"
	ErrConfigError         = "CONFIG_ERROR"
)

func (pr *PaymentRequirements) Validate() error {
	if pr.Scheme == "" {
		return fmt.Errorf("paymentRequirements.scheme is required")
	}

	if pr.Network == "" {
		return fmt.Errorf("paymentRequirements.network is required")
	}

	if pr.MaxAmountRequired == "" {
		return fmt.Errorf("paymentRequirements.maxAmountRequired is required")
	}

	if pr.PayTo == "" {
		return fmt.Errorf("paymentRequirements.payTo is required")
	}

	if pr.Asset == "" {
		return fmt.Errorf("paymentRequirements.asset is required")
	}

	if pr.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("paymentRequirements.maxTimeoutSeconds must be greater than 0")
	}

	return nil
}
