package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vitwit/x402-chat/challenge"
	"github.com/vitwit/x402-chat/logger"
	"github.com/vitwit/x402-chat/metrics"
	"github.com/vitwit/x402-chat/store"
	"github.com/vitwit/x402-chat/types"
	"github.com/vitwit/x402-chat/verification"
)

// PaymentHeader is the request header carrying the proof of payment: a single
// opaque transaction hash.
const PaymentHeader = types.PaymentHeader

type receiptCtxKey struct{}

// ReceiptFromContext returns the receipt the gate attached after admitting
// the request.
func ReceiptFromContext(ctx context.Context) (types.Receipt, bool) {
	receipt, ok := ctx.Value(receiptCtxKey{}).(types.Receipt)
	return receipt, ok
}

// Gate is the protocol state machine guarding gated routes. A request with
// no proof header is challenged; a request with one is verified and then
// either rejected or admitted to the wrapped handler. Both non-admitting
// answers are 402s that differ only in body text.
type Gate struct {
	builder  *challenge.Builder
	verifier *verification.Verifier
	replays  store.ReplayStore
	network  string
	log      logger.Logger
	rec      metrics.Recorder
}

// NewGate assembles the gate. builder and verifier may be nil when the
// operator has not configured a payment recipient; the gate then answers
// every request with a configuration error instead of silently waving
// traffic through. replays may be nil to disable replay protection.
func NewGate(builder *challenge.Builder, verifier *verification.Verifier, replays store.ReplayStore, network string, log logger.Logger, rec metrics.Recorder) *Gate {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Gate{
		builder:  builder,
		verifier: verifier,
		replays:  replays,
		network:  network,
		log:      log,
		rec:      rec,
	}
}

// Middleware wraps a handler with the payment protocol.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		labels := map[string]string{"network": g.network}

		if g.builder == nil || g.verifier == nil {
			g.log.Error("payment gate misconfigured", map[string]any{"path": r.URL.Path})
			writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{
				Error:   "Server configuration error",
				Details: "payment recipient address is not configured",
			})
			return
		}

		proof := r.Header.Get(PaymentHeader)
		if proof == "" {
			// Expected first contact, not an error: answer with the terms.
			g.rec.IncCounter(metrics.EventChallengeIssued, labels)
			writeJSON(w, http.StatusPaymentRequired,
				g.builder.Response(resourceURL(r), "X-PAYMENT header is required"))
			return
		}

		outcome := g.verifier.Verify(r.Context(), types.PaymentProof{TxHash: proof})
		switch outcome {
		case types.OutcomeAccepted:
		case types.OutcomeUnavailable:
			g.rec.IncCounter(metrics.EventPaymentUnavailable, labels)
			writeJSON(w, http.StatusPaymentRequired, &types.X402Response{
				X402Version: int(types.X402Version1),
				Error:       "Payment verification temporarily unavailable, retry shortly",
			})
			return
		default:
			g.rec.IncCounter(metrics.EventPaymentRejected, labels)
			writeJSON(w, http.StatusPaymentRequired, &types.X402Response{
				X402Version: int(types.X402Version1),
				Error:       "Payment verification failed or transaction not found",
			})
			return
		}

		if g.replays != nil && !g.replays.Consume(proof) {
			g.log.Warn("payment proof replayed", map[string]any{"txHash": proof})
			g.rec.IncCounter(metrics.EventPaymentReplayed, labels)
			writeJSON(w, http.StatusPaymentRequired, &types.X402Response{
				X402Version: int(types.X402Version1),
				Error:       "Payment verification failed: transaction already redeemed",
			})
			return
		}

		g.rec.IncCounter(metrics.EventPaymentAccepted, labels)
		receipt := types.Receipt{TxHash: proof, Verified: true}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), receiptCtxKey{}, receipt)))
	})
}

// resourceURL reconstructs the absolute URL of the gated resource for the
// challenge body.
func resourceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
