// Package client implements the paying side of the protocol: an
// http.RoundTripper that answers 402 challenges by paying through a Wallet
// and retrying the original request with the proof attached.
package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vitwit/x402-chat/logger"
	"github.com/vitwit/x402-chat/types"
	"github.com/vitwit/x402-chat/utils"
)

// ErrPaymentDeclined reports that the wallet refused to pay. The transport
// does not retry after it; callers can branch on it with errors.Is.
var ErrPaymentDeclined = errors.New("payment declined by wallet")

// maxChallengeBytes caps how much of a 402 body the transport will read.
const maxChallengeBytes = 64 * 1024

// Transport intercepts 402 responses, settles the first offered payment
// requirement through the wallet and replays the request once with the
// X-PAYMENT header set. Any other response passes through untouched.
type Transport struct {
	// Base performs the actual HTTP round trips. nil means
	// http.DefaultTransport.
	Base http.RoundTripper

	// Wallet pays challenges. Required.
	Wallet Wallet

	// Log is optional.
	Log logger.Logger
}

// NewClient wraps wallet in a ready-to-use HTTP client.
func NewClient(wallet Wallet, log logger.Logger) *http.Client {
	return &http.Client{Transport: &Transport{Wallet: wallet, Log: log}}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Wallet == nil {
		return nil, errors.New("client: no wallet configured")
	}

	// Bodies are one-shot readers; buffer up front so the request can be
	// replayed after payment.
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("client: buffer request body: %w", err)
		}
		body = b
	}

	resp, err := t.base().RoundTrip(t.clone(req, body, ""))
	if err != nil || resp.StatusCode != http.StatusPaymentRequired {
		return resp, err
	}

	requirement, err := t.readChallenge(resp)
	if err != nil {
		return nil, err
	}

	t.log().Info("payment required", map[string]any{
		"resource": requirement.Resource,
		"amount":   requirement.MaxAmountRequired,
		"payTo":    requirement.PayTo,
	})

	txHash, err := t.Wallet.Pay(req.Context(), *requirement)
	if err != nil {
		if errors.Is(err, ErrPaymentDeclined) {
			return nil, err
		}
		return nil, fmt.Errorf("client: wallet payment failed: %w", err)
	}

	t.log().Info("payment settled, retrying request", map[string]any{"txHash": txHash})
	return t.base().RoundTrip(t.clone(req, body, txHash))
}

// readChallenge consumes a 402 body and returns the first acceptable
// payment requirement.
func (t *Transport) readChallenge(resp *http.Response) (*types.PaymentRequirements, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxChallengeBytes))
	if err != nil {
		return nil, fmt.Errorf("client: read challenge body: %w", err)
	}

	x402Resp, err := utils.ParseX402Response(raw)
	if err != nil {
		return nil, fmt.Errorf("client: parse challenge: %w", err)
	}
	if len(x402Resp.Accepts) == 0 {
		return nil, errors.New("client: challenge offered no payment requirements")
	}
	return &x402Resp.Accepts[0], nil
}

// clone rebuilds the request with a fresh body and, when txHash is set, the
// payment proof header.
func (t *Transport) clone(req *http.Request, body []byte, txHash string) *http.Request {
	out := req.Clone(req.Context())
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
	}
	if txHash != "" {
		out.Header.Set(types.PaymentHeader, txHash)
	}
	return out
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) log() logger.Logger {
	if t.Log != nil {
		return t.Log
	}
	return logger.NoopLogger{}
}
