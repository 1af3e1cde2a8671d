package clients

import (
	"context"
)

// Oracle is the read-only view of the ledger the verifier depends on.
// OracleClient is the JSON-RPC implementation; tests substitute fakes.
type Oracle interface {
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
	TransactionByHash(ctx context.Context, txHash string) (*Transaction, error)
	Network() string
	Close()
}
