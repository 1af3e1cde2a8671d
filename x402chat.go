// Package x402chat assembles the payment-gated chat service: a chain
// oracle, payment verifier, challenge builder and completion relay behind
// one HTTP server, wired from a single Config.
package x402chat

import (
	"context"
	"net/http"

	"github.com/vitwit/x402-chat/challenge"
	"github.com/vitwit/x402-chat/clients"
	"github.com/vitwit/x402-chat/config"
	"github.com/vitwit/x402-chat/logger"
	"github.com/vitwit/x402-chat/metrics"
	"github.com/vitwit/x402-chat/relay"
	"github.com/vitwit/x402-chat/server"
	"github.com/vitwit/x402-chat/store"
	"github.com/vitwit/x402-chat/types"
	"github.com/vitwit/x402-chat/utils"
	"github.com/vitwit/x402-chat/verification"
)

// Gateway owns every component of the service and their lifecycles.
type Gateway struct {
	cfg      *config.Config
	log      logger.Logger
	rec      metrics.Recorder
	streamer relay.Streamer
	replays  store.ReplayStore

	oracle   clients.Oracle
	builder  *challenge.Builder
	verifier *verification.Verifier
	memStore *store.MemoryStore
	srv      *server.Server
}

// New wires a Gateway from cfg. A missing recipient address is tolerated so
// operators can bring the process up before funding is arranged: the server
// starts, but gated routes answer with a configuration error until a
// recipient is set.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, &types.X402Error{Code: types.ErrConfigError, Message: "config is required"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &types.X402Error{Code: types.ErrConfigError, Message: err.Error()}
	}

	g := &Gateway{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = logger.NewZapLogger(cfg.Log.Level)
	}
	if g.rec == nil {
		g.rec = metrics.NoopRecorder{}
	}
	if g.streamer == nil {
		g.streamer = relay.NewOpenAIStreamer(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, g.log)
	}

	network := types.Network(cfg.Chain.Network)

	if cfg.Payment.RecipientAddress == "" {
		g.log.Warn("payment recipient not configured, gated routes will refuse service", nil)
	} else {
		price, err := utils.ValidateBigInt(cfg.Payment.Price)
		if err != nil {
			return nil, err
		}

		if g.oracle == nil {
			oracle, err := clients.NewOracleClient(cfg.Chain.RPCURL, network, g.log)
			if err != nil {
				return nil, err
			}
			g.oracle = oracle
		}

		verifier, err := verification.NewVerifier(g.oracle, verification.Config{
			Recipient: cfg.Payment.RecipientAddress,
			MinAmount: price,
			Timeout:   cfg.Chain.VerifyTimeout,
		}, g.log, g.rec)
		if err != nil {
			g.Close()
			return nil, err
		}
		g.verifier = verifier

		builder, err := challenge.NewBuilder(challenge.Config{
			Network:   network,
			Recipient: cfg.Payment.RecipientAddress,
			Price:     price,
		})
		if err != nil {
			g.Close()
			return nil, err
		}
		g.builder = builder
	}

	if g.replays == nil && cfg.Replay.Enabled {
		mem := store.NewMemoryStore(cfg.Replay.TTL)
		mem.StartSweeper(cfg.Replay.SweepInterval)
		g.memStore = mem
		g.replays = mem
	}

	rel, err := relay.NewRelay(g.streamer, relay.Config{
		Models:       cfg.Models.Aliases,
		DefaultModel: cfg.Models.Default,
	}, cfg.Chain.Network, g.log, g.rec)
	if err != nil {
		g.Close()
		return nil, err
	}

	gate := server.NewGate(g.builder, g.verifier, g.replays, cfg.Chain.Network, g.log, g.rec)
	srv, err := server.New(server.Config{ListenAddr: cfg.Server.ListenAddr}, gate, rel, g.log)
	if err != nil {
		g.Close()
		return nil, err
	}
	g.srv = srv

	return g, nil
}

// Handler returns the routed HTTP handler, mainly for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.srv.Handler()
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (g *Gateway) Start() error {
	return g.srv.Start()
}

// Shutdown drains in-flight requests, open completion streams included.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.srv.Shutdown(ctx)
}

// Close releases the oracle connection and the replay store. Call after
// Shutdown.
func (g *Gateway) Close() {
	if g.oracle != nil {
		g.oracle.Close()
	}
	if g.memStore != nil {
		g.memStore.Close()
	}
}

// Version information
const (
	Version         = "1.0.0"
	ProtocolVersion = 1
)

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	return map[string]interface{}{
		"library_version":    Version,
		"protocol_version":   ProtocolVersion,
		"supported_networks": []string{string(types.NetworkMonadTestnet)},
		"supported_schemes":  []string{string(types.SchemeExact)},
		"supported_assets":   []string{types.AssetNative},
	}
}
