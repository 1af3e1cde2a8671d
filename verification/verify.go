// Package verification decides whether a claimed proof of payment entitles a
// request to service. The verifier is deliberately boring: two oracle reads,
// three comparisons, and a tri-state answer. It never returns an error and
// never panics past its boundary; every failure mode folds into a
// non-accepting outcome.
package verification

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/vitwit/x402-chat/clients"
	"github.com/vitwit/x402-chat/logger"
	"github.com/vitwit/x402-chat/metrics"
	"github.com/vitwit/x402-chat/types"
)

// DefaultTimeout bounds the two oracle reads of a single verification.
const DefaultTimeout = 15 * time.Second

// Config carries the expectations a payment is checked against. All fields
// are injected; the verifier reads no ambient state.
type Config struct {
	// Recipient is the address payments must be sent to.
	Recipient string

	// MinAmount is the required transfer value in base units. Overpayment
	// passes, underpayment by a single unit does not.
	MinAmount *big.Int

	// Timeout bounds one verification including both oracle reads.
	// Zero means DefaultTimeout.
	Timeout time.Duration
}

// Verifier checks payment proofs against a single recipient and price on one
// network.
type Verifier struct {
	oracle    clients.Oracle
	recipient string
	minAmount *big.Int
	timeout   time.Duration
	log       logger.Logger
	rec       metrics.Recorder
}

// NewVerifier builds a verifier over the given oracle. The recipient must be
// a hex address and the minimum amount must be non-negative.
func NewVerifier(oracle clients.Oracle, cfg Config, log logger.Logger, rec metrics.Recorder) (*Verifier, error) {
	if oracle == nil {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: "verifier requires an oracle client",
		}
	}
	if !common.IsHexAddress(cfg.Recipient) {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: "verifier recipient is not a valid address",
		}
	}
	if cfg.MinAmount == nil || cfg.MinAmount.Sign() < 0 {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: "verifier minimum amount must be a non-negative integer",
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	return &Verifier{
		oracle:    oracle,
		recipient: cfg.Recipient,
		minAmount: new(big.Int).Set(cfg.MinAmount),
		timeout:   timeout,
		log:       log,
		rec:       rec,
	}, nil
}

// Verify checks a proof of payment. The receipt is read first so a failed or
// unknown transaction is rejected without the second oracle round trip; the
// transaction itself is read only to compare recipient and value.
//
// The outcome is the only thing that escapes: oracle transport trouble maps
// to OutcomeUnavailable, everything else that goes wrong maps to
// OutcomeRejected.
func (v *Verifier) Verify(ctx context.Context, proof types.PaymentProof) (outcome types.VerificationOutcome) {
	start := time.Now()
	labels := map[string]string{"network": v.oracle.Network()}

	defer func() {
		// The contract is a boolean-like answer, never a fault. A panic
		// anywhere below surfaces as a rejection.
		if r := recover(); r != nil {
			v.log.Error("verification panicked", map[string]any{"txHash": proof.TxHash, "panic": r})
			outcome = types.OutcomeRejected
		}
		v.rec.ObserveLatency(metrics.OpVerify, time.Since(start), labels)
	}()

	if err := proof.Validate(); err != nil {
		v.log.Info("payment rejected", map[string]any{"reason": "empty proof"})
		return types.OutcomeRejected
	}

	vctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	receipt, err := v.oracle.TransactionReceipt(vctx, proof.TxHash)
	if err != nil {
		return v.failure("receipt", proof.TxHash, err)
	}

	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		v.log.Info("payment rejected", map[string]any{
			"txHash": proof.TxHash,
			"reason": "transaction did not succeed",
			"status": receipt.Status,
		})
		return types.OutcomeRejected
	}

	tx, err := v.oracle.TransactionByHash(vctx, proof.TxHash)
	if err != nil {
		return v.failure("transaction", proof.TxHash, err)
	}

	// Addresses are hexadecimal and checksum casing varies between wallets
	// and nodes, so the comparison ignores case.
	if !strings.EqualFold(tx.To, v.recipient) {
		v.log.Info("payment rejected", map[string]any{
			"txHash": proof.TxHash,
			"reason": "wrong recipient",
			"to":     tx.To,
		})
		return types.OutcomeRejected
	}

	if tx.Value.Cmp(v.minAmount) < 0 {
		v.log.Info("payment rejected", map[string]any{
			"txHash":   proof.TxHash,
			"reason":   "insufficient value",
			"value":    tx.Value.String(),
			"required": v.minAmount.String(),
		})
		return types.OutcomeRejected
	}

	v.log.Debug("payment accepted", map[string]any{
		"txHash": proof.TxHash,
		"value":  tx.Value.String(),
	})
	return types.OutcomeAccepted
}

// failure folds an oracle error into the right non-accepting outcome.
func (v *Verifier) failure(stage, txHash string, err error) types.VerificationOutcome {
	if errors.Is(err, clients.ErrNotFound) {
		v.log.Info("payment rejected", map[string]any{
			"txHash": txHash,
			"reason": stage + " not found",
		})
		return types.OutcomeRejected
	}

	// The ledger could not be asked. Still a 402 for the caller, but loud
	// for the operator: a flapping RPC endpoint locks out paying users.
	v.log.Warn("verification unavailable", map[string]any{
		"txHash": txHash,
		"stage":  stage,
		"error":  err.Error(),
	})
	return types.OutcomeUnavailable
}
