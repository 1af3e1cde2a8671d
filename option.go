package x402chat

import (
	"github.com/vitwit/x402-chat/clients"
	"github.com/vitwit/x402-chat/logger"
	"github.com/vitwit/x402-chat/metrics"
	"github.com/vitwit/x402-chat/relay"
	"github.com/vitwit/x402-chat/store"
)

// Option customizes a Gateway before wiring.
type Option func(*Gateway)

func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		g.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gateway) {
		g.rec = r
	}
}

// WithStreamer replaces the OpenAI-backed completion source.
func WithStreamer(s relay.Streamer) Option {
	return func(g *Gateway) {
		g.streamer = s
	}
}

// WithReplayStore replaces the built-in in-memory replay store.
func WithReplayStore(s store.ReplayStore) Option {
	return func(g *Gateway) {
		g.replays = s
	}
}

// WithOracle replaces the RPC-backed chain oracle.
func WithOracle(o clients.Oracle) Option {
	return func(g *Gateway) {
		g.oracle = o
	}
}
