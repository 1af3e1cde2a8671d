// Package clients holds the ledger-facing RPC clients. The oracle issues
// single best-effort reads: no retries, no caching, and no interpretation
// beyond mapping the node's JSON into typed results.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/vitwit/x402-chat/logger"
	"github.com/vitwit/x402-chat/types"
)

// ErrNotFound means the ledger resolved the query but the transaction is not
// there, or answered with something that cannot be read as one. Transport
// trouble is returned as a distinct wrapped error so callers can tell "the
// chain says no" from "the chain could not be asked".
var ErrNotFound = errors.New("transaction not found")

// Receipt is the subset of a transaction receipt the verifier inspects.
type Receipt struct {
	TxHash string
	Status uint64
}

// Transaction is the subset of transaction details the verifier inspects.
// Value is never nil; absent or empty values decode to zero.
type Transaction struct {
	Hash  string
	To    string
	Value *big.Int
}

// OracleClient reads transaction state from a ledger JSON-RPC endpoint.
type OracleClient struct {
	rpcURL  string
	network types.Network
	client  *rpc.Client
	log     logger.Logger
}

// NewOracleClient connects to the given JSON-RPC endpoint.
func NewOracleClient(rpcURL string, network types.Network, log logger.Logger) (*OracleClient, error) {
	if rpcURL == "" {
		return nil, &types.X402Error{
			Code:    types.ErrConfigError,
			Message: "oracle rpc url is required",
		}
	}
	if log == nil {
		log = logger.NoopLogger{}
	}

	client, err := rpc.Dial(rpcURL)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrNetworkError,
			Message: fmt.Sprintf("failed to connect to %s: %v", rpcURL, err),
		}
	}

	return &OracleClient{
		rpcURL:  rpcURL,
		network: network,
		client:  client,
		log:     log,
	}, nil
}

// TransactionReceipt fetches the receipt for a transaction hash.
// Returns ErrNotFound when the node resolves the query to nothing usable;
// any other error means the node could not be reached.
func (c *OracleClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	raw, err := c.call(ctx, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}

	// The response shape is not trusted: each field is checked for presence
	// and type before use, and anything off degrades to ErrNotFound.
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		c.log.Debug("oracle receipt response is not an object", map[string]any{"txHash": txHash})
		return nil, ErrNotFound
	}

	statusHex, ok := fields["status"].(string)
	if !ok {
		c.log.Debug("oracle receipt has no status field", map[string]any{"txHash": txHash})
		return nil, ErrNotFound
	}

	status, err := hexutil.DecodeUint64(statusHex)
	if err != nil {
		c.log.Debug("oracle receipt status is not a hex quantity", map[string]any{"txHash": txHash, "status": statusHex})
		return nil, ErrNotFound
	}

	return &Receipt{TxHash: txHash, Status: status}, nil
}

// TransactionByHash fetches transaction details for a hash. Same error
// contract as TransactionReceipt.
func (c *OracleClient) TransactionByHash(ctx context.Context, txHash string) (*Transaction, error) {
	raw, err := c.call(ctx, "eth_getTransactionByHash", txHash)
	if err != nil {
		return nil, err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		c.log.Debug("oracle transaction response is not an object", map[string]any{"txHash": txHash})
		return nil, ErrNotFound
	}

	// A missing "to" covers both malformed responses and contract-creation
	// transactions; neither can pay anyone.
	to, ok := fields["to"].(string)
	if !ok || to == "" {
		c.log.Debug("oracle transaction has no recipient", map[string]any{"txHash": txHash})
		return nil, ErrNotFound
	}

	// Absent, empty or unparseable values count as zero, which the verifier
	// rejects as underpayment.
	value := new(big.Int)
	if v, ok := fields["value"].(string); ok && v != "" {
		if parsed, err := hexutil.DecodeBig(v); err == nil {
			value = parsed
		} else {
			c.log.Debug("oracle transaction value is not a hex quantity", map[string]any{"txHash": txHash, "value": v})
		}
	}

	return &Transaction{Hash: txHash, To: to, Value: value}, nil
}

// call performs one JSON-RPC request and folds the node's answer into either
// a raw result, ErrNotFound, or a wrapped transport error.
func (c *OracleClient) call(ctx context.Context, method, txHash string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.client.CallContext(ctx, &raw, method, txHash)
	if err != nil {
		if errors.Is(err, rpc.ErrNoResult) {
			return nil, ErrNotFound
		}
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			// The node answered; the query itself cannot resolve to a
			// transaction (bad hash format and the like).
			c.log.Debug("oracle rejected query", map[string]any{"method": method, "txHash": txHash, "code": rpcErr.ErrorCode()})
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNotFound
	}

	return raw, nil
}

// Network returns the CAIP-2 identifier this oracle was configured for.
func (c *OracleClient) Network() string {
	return c.network.String()
}

// Close releases the underlying RPC connection.
func (c *OracleClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
