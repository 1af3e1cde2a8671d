// Package relay forwards admitted chat requests to the completion upstream
// and streams the answer back. The relay never buffers a whole completion:
// each chunk is written and flushed as it arrives, so the first byte reaches
// the caller while the model is still generating.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vitwit/x402-chat/logger"
	"github.com/vitwit/x402-chat/metrics"
	"github.com/vitwit/x402-chat/types"
)

// ReceiptHeader carries the payment receipt on admitted responses. It is set
// before the first body byte because headers cannot follow the stream.
const ReceiptHeader = types.PaymentReceiptHeader

// Stream is a lazy, finite, non-restartable sequence of completion chunks.
// Next returns io.EOF when the completion is finished.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Streamer is the external completion capability: given a message history
// and a model, it produces a chunk stream.
type Streamer interface {
	Stream(ctx context.Context, model string, messages []types.ChatMessage) (Stream, error)
}

// Config fixes the model table of a Relay.
type Config struct {
	// Models maps accepted model identifiers to upstream model names.
	Models map[string]string

	// DefaultModel is the upstream model used when the requested identifier
	// is unknown or empty. Required.
	DefaultModel string
}

// Relay connects the request gate to the completion upstream.
type Relay struct {
	streamer     Streamer
	models       map[string]string
	defaultModel string
	network      string
	log          logger.Logger
	rec          metrics.Recorder
}

// NewRelay wires a relay to its upstream.
func NewRelay(streamer Streamer, cfg Config, network string, log logger.Logger, rec metrics.Recorder) (*Relay, error) {
	if streamer == nil {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: "relay requires a completion streamer",
		}
	}
	if cfg.DefaultModel == "" {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: "relay requires a default model",
		}
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	return &Relay{
		streamer:     streamer,
		models:       cfg.Models,
		defaultModel: cfg.DefaultModel,
		network:      network,
		log:          log,
		rec:          rec,
	}, nil
}

// ResolveModel maps a requested model identifier to an upstream model name.
// Unknown identifiers resolve to the default model rather than erroring.
func (r *Relay) ResolveModel(id string) string {
	if upstream, ok := r.models[id]; ok {
		return upstream
	}
	return r.defaultModel
}

// Stream serves one admitted request. A non-nil return means nothing has
// been written yet and the caller still owns the response; once the receipt
// header and status go out, failures can only truncate the body.
func (r *Relay) Stream(ctx context.Context, w http.ResponseWriter, req *types.ChatRequest, receipt types.Receipt) error {
	if err := req.Validate(); err != nil {
		return &types.X402Error{
			Code:    types.ErrInvalidChatRequest,
			Message: err.Error(),
		}
	}

	model := r.ResolveModel(req.Model)
	if model != req.Model {
		r.log.Debug("model resolved to default", map[string]any{
			"requested": req.Model,
			"model":     model,
		})
	}

	upstream, err := r.streamer.Stream(ctx, model, req.Messages)
	if err != nil {
		return &types.X402Error{
			Code:    types.ErrUpstreamError,
			Message: fmt.Sprintf("completion upstream failed: %v", err),
		}
	}
	defer upstream.Close()

	receiptJSON, err := json.Marshal(receipt)
	if err != nil {
		return &types.X402Error{
			Code:    types.ErrUpstreamError,
			Message: fmt.Sprintf("failed to encode receipt: %v", err),
		}
	}

	w.Header().Set(ReceiptHeader, string(receiptJSON))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	start := time.Now()
	labels := map[string]string{"network": r.network}

	for {
		chunk, err := upstream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.rec.IncCounter(metrics.EventStreamCompleted, labels)
				r.rec.ObserveLatency(metrics.OpStream, time.Since(start), labels)
				return nil
			}
			// Headers are long gone; all that is left is to stop and let
			// the transport close the truncated body.
			r.log.Error("completion stream broke mid-flight", map[string]any{
				"txHash": receipt.TxHash,
				"error":  err.Error(),
			})
			r.rec.IncCounter(metrics.EventStreamFailed, labels)
			return nil
		}
		if chunk == "" {
			continue
		}

		if _, err := io.WriteString(w, chunk); err != nil {
			r.log.Debug("caller went away mid-stream", map[string]any{"txHash": receipt.TxHash})
			r.rec.IncCounter(metrics.EventStreamFailed, labels)
			return nil
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
