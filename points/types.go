/*
Package points provides the loyalty-points ledger engine.

PURPOSE:
  Tracks points per user, grouped by the payer (vendor) that issued them.
  Three operations are exposed to callers:
  - AddTransaction: record an earn or adjustment for one payer
  - SpendPoints:    deduct points across payers, oldest eligible first
  - Balances:       report the current point total per payer

KEY CONCEPTS IN THIS FILE (types.go):
  - User:        identity anchor owning transactions and balances
  - Payer:       named points issuer, matched case-insensitively
  - BalanceKey:  the (user, payer) pair identifying a Balance
  - Balance:     current point total for one (user, payer) pair
  - Transaction: immutable record of points earned at a point in time

DATA RULES:
  1. At most one Balance exists per BalanceKey.
  2. Transactions are never modified after insert. Spending mutates the
     Balance, not the Transaction.
  3. The Store is the source of truth. The Service re-reads per call and
     never keeps users, balances or transactions between calls.

SEE ALSO:
  - store.go:     Persistence interfaces
  - service.go:   Recorder, spend and balance query
  - allocator.go: Spend allocation walk
*/
package points

import (
	"slices"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID int64
type PayerID int64
type TransactionID int64

// =============================================================================
// USER & PAYER
// =============================================================================

// User owns an insertion-ordered list of transactions and a set of balances.
// Both are references into the Store, not copies.
type User struct {
	ID           UserID
	Name         string
	Transactions []TransactionID
	Balances     []BalanceKey
}

// AppendTransaction records a transaction at the end of the user's history.
func (u *User) AppendTransaction(id TransactionID) {
	u.Transactions = append(u.Transactions, id)
}

// AddBalance adds key to the user's balance set. Adding a key twice is a no-op.
func (u *User) AddBalance(key BalanceKey) {
	if slices.Contains(u.Balances, key) {
		return
	}
	u.Balances = append(u.Balances, key)
}

// Payer is a points issuer. Immutable once created.
type Payer struct {
	ID   PayerID
	Name string
}

// PayerKey is the form payer names are compared in. Every store matches
// names on this key, so lookups agree across backends.
func PayerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// =============================================================================
// BALANCE - one per (user, payer)
// =============================================================================

// BalanceKey identifies a Balance. Equality is structural, so the key can be
// used directly as a map key.
type BalanceKey struct {
	UserID  UserID
	PayerID PayerID
}

// Balance is the current point total a user holds for one payer.
type Balance struct {
	Key       BalanceKey
	PayerName string
	Points    int64
	UpdatedAt time.Time
}

// =============================================================================
// TRANSACTION - immutable ledger entry
// =============================================================================

// Transaction records points earned (or adjusted, when negative) from one payer.
type Transaction struct {
	ID        TransactionID
	Key       BalanceKey
	Points    int64
	Timestamp time.Time
}

// =============================================================================
// OPERATION RESULTS - plain data handed to the boundary layer
// =============================================================================

// TransactionSummary is returned by AddTransaction.
type TransactionSummary struct {
	Payer             string
	TransactionPoints int64
	TotalPoints       int64
	Timestamp         time.Time
}

// Deduction is the number of points taken from one payer by a spend.
// Points is negative (or zero) for ordinary spends.
type Deduction struct {
	Payer  string
	Points int64
}
