/*
store.go - Persistence interfaces for the points ledger

PURPOSE:
  Defines the boundary between the points engine and the database.
  The engine never caches what the Store returns; each operation reads
  current state and writes its result back inside one WithTx unit.

KEY INTERFACES:
  Store:     Lookups and writes the engine needs
  TxStore:   Store plus atomic execution of a unit of work
  Directory: User and payer provisioning (not used by the engine itself)

ATOMICITY:
  WithTx runs fn against a Store view bound to one transaction. If fn
  returns an error, every write made through that view is rolled back.
  Implementations must also keep two units touching the same user from
  observing each other's partial writes.

IMPLEMENTATIONS:
  - points/store/memory.go:   In-memory, for tests and demos
  - store/sqlite/sqlite.go:   SQLite (single writer)
  - store/postgres/postgres.go: PostgreSQL (row lock per user)
*/
package points

import "context"

// Store is the ledger storage the engine reads and writes.
type Store interface {
	// GetUser returns ErrUserNotFound if the id does not resolve.
	GetUser(ctx context.Context, id UserID) (User, error)

	// FindPayerByName matches name case-insensitively.
	// Returns ErrPayerNotFound if no payer matches.
	FindPayerByName(ctx context.Context, name string) (Payer, error)

	// GetBalance returns nil, nil when no balance exists for key.
	GetBalance(ctx context.Context, key BalanceKey) (*Balance, error)

	// UpsertBalance inserts or replaces the balance identified by b.Key.
	UpsertBalance(ctx context.Context, b Balance) (Balance, error)

	// UpsertBalances writes all balances or none.
	UpsertBalances(ctx context.Context, bs []Balance) error

	// InsertTransaction assigns the transaction its ID.
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)

	// SaveUser persists the user and its transaction/balance associations.
	SaveUser(ctx context.Context, u User) error

	// LoadTransactions returns the user's transactions in insertion order.
	LoadTransactions(ctx context.Context, userID UserID) ([]Transaction, error)

	// LoadBalances returns every balance the user holds, with payer names.
	LoadBalances(ctx context.Context, userID UserID) ([]Balance, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Directory provisions users and payers.
type Directory interface {
	// CreateUser assigns a new id.
	CreateUser(ctx context.Context, name string) (User, error)

	// CreatePayer returns ErrPayerExists if the name is taken, ignoring case.
	CreatePayer(ctx context.Context, name string) (Payer, error)

	ListPayers(ctx context.Context) ([]Payer, error)
}

// LedgerStore is everything a backing store offers.
type LedgerStore interface {
	TxStore
	Directory
}
