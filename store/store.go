// Package store records redeemed payment proofs. The ledger guarantees a
// transaction is only ever mined once; it does not know the gateway already
// served a completion for it. The store closes that gap: one transaction
// hash, one admitted request.
package store

// ReplayStore is consulted by the request gate after a proof verifies.
type ReplayStore interface {
	// Consume marks a transaction hash as redeemed and reports whether this
	// call was the first to do so. Subsequent calls for the same hash
	// return false.
	Consume(txHash string) bool
}
