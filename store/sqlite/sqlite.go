/*
Package sqlite provides a SQLite-backed implementation of the ledger store.

PURPOSE:
  Implements points.LedgerStore (Store, TxStore, Directory) on SQLite.
  The PostgreSQL store in store/postgres follows the same layout; only the
  placeholder syntax and locking differ.

KEY TABLES:
  users:        Identity anchor
  payers:       Points issuers (unique name, case-insensitive)
  balances:     One row per (user_id, payer_id), composite primary key
  transactions: Append-only; references its balance row

CONCURRENCY:
  SQLite has a single writer. The store holds a sync.RWMutex and a single
  connection; WithTx takes the write lock for the whole unit, so two units
  never interleave.

MIGRATIONS:
  Versioned SQL files under migrations/ are embedded and applied with goose
  on New().

USAGE:
  store, err := sqlite.New("./data/points.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := points.NewService(store, logger)

SEE ALSO:
  - points/store.go:           Interface definitions
  - points/store/memory.go:    In-memory implementation for testing
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/warp/points-engine/points"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: required for ":memory:" and matches SQLite's single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// =============================================================================
// LEDGER STORE (points.Store interface)
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id points.UserID) (points.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetUser(ctx, id)
}

func (s *Store) FindPayerByName(ctx context.Context, name string) (points.Payer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().FindPayerByName(ctx, name)
}

func (s *Store) GetBalance(ctx context.Context, key points.BalanceKey) (*points.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().GetBalance(ctx, key)
}

func (s *Store) UpsertBalance(ctx context.Context, b points.Balance) (points.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().UpsertBalance(ctx, b)
}

// UpsertBalances writes all balances in one database transaction.
func (s *Store) UpsertBalances(ctx context.Context, bs []points.Balance) error {
	return s.WithTx(ctx, func(st points.Store) error {
		return st.UpsertBalances(ctx, bs)
	})
}

func (s *Store) InsertTransaction(ctx context.Context, tx points.Transaction) (points.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().InsertTransaction(ctx, tx)
}

func (s *Store) SaveUser(ctx context.Context, u points.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn().SaveUser(ctx, u)
}

func (s *Store) LoadTransactions(ctx context.Context, userID points.UserID) ([]points.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().LoadTransactions(ctx, userID)
}

func (s *Store) LoadBalances(ctx context.Context, userID points.UserID) ([]points.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn().LoadBalances(ctx, userID)
}

// =============================================================================
// TRANSACTIONAL STORE (points.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store points.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// DIRECTORY (points.Directory interface)
// =============================================================================

// CreateUser inserts a user and lets SQLite pick the id.
func (s *Store) CreateUser(ctx context.Context, name string) (points.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (name, created_at, updated_at) VALUES (?, ?, ?)",
		name, now, now,
	)
	if err != nil {
		return points.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return points.User{}, fmt.Errorf("failed to read user id: %w", err)
	}
	return points.User{ID: points.UserID(id), Name: name}, nil
}

// CreatePayer returns points.ErrPayerExists if the name is taken, ignoring case.
func (s *Store) CreatePayer(ctx context.Context, name string) (points.Payer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return points.Payer{}, &points.InvalidInputError{Field: "name", Reason: "must not be blank"}
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO payers (name, name_key, created_at) VALUES (?, ?, ?)",
		name, points.PayerKey(name), formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return points.Payer{}, points.ErrPayerExists
		}
		return points.Payer{}, fmt.Errorf("failed to create payer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return points.Payer{}, fmt.Errorf("failed to read payer id: %w", err)
	}
	return points.Payer{ID: points.PayerID(id), Name: name}, nil
}

// ListPayers returns all payers ordered by name.
func (s *Store) ListPayers(ctx context.Context) ([]points.Payer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM payers ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list payers: %w", err)
	}
	defer rows.Close()

	var payers []points.Payer
	for rows.Next() {
		var p points.Payer
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan payer: %w", err)
		}
		payers = append(payers, p)
	}
	return payers, rows.Err()
}

// =============================================================================
// QUERIES - shared by the store and its transactions
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs ledger queries against either the pool or an open transaction.
// Callers hold the store lock.
type conn struct {
	q querier
}

func (s *Store) conn() *conn {
	return &conn{q: s.db}
}

func (c *conn) GetUser(ctx context.Context, id points.UserID) (points.User, error) {
	u := points.User{ID: id}
	err := c.q.QueryRowContext(ctx, "SELECT name FROM users WHERE id = ?", id).Scan(&u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return points.User{}, fmt.Errorf("%w: %d", points.ErrUserNotFound, id)
	}
	if err != nil {
		return points.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	rows, err := c.q.QueryContext(ctx, "SELECT id FROM transactions WHERE user_id = ? ORDER BY id", id)
	if err != nil {
		return points.User{}, fmt.Errorf("failed to load user transactions: %w", err)
	}
	for rows.Next() {
		var txID points.TransactionID
		if err := rows.Scan(&txID); err != nil {
			rows.Close()
			return points.User{}, fmt.Errorf("failed to scan transaction id: %w", err)
		}
		u.Transactions = append(u.Transactions, txID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return points.User{}, err
	}

	rows, err = c.q.QueryContext(ctx, "SELECT payer_id FROM balances WHERE user_id = ? ORDER BY payer_id", id)
	if err != nil {
		return points.User{}, fmt.Errorf("failed to load user balances: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var payerID points.PayerID
		if err := rows.Scan(&payerID); err != nil {
			return points.User{}, fmt.Errorf("failed to scan payer id: %w", err)
		}
		u.Balances = append(u.Balances, points.BalanceKey{UserID: id, PayerID: payerID})
	}
	return u, rows.Err()
}

func (c *conn) FindPayerByName(ctx context.Context, name string) (points.Payer, error) {
	var p points.Payer
	err := c.q.QueryRowContext(ctx,
		"SELECT id, name FROM payers WHERE name_key = ?",
		points.PayerKey(name),
	).Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return points.Payer{}, fmt.Errorf("%w: %q", points.ErrPayerNotFound, name)
	}
	if err != nil {
		return points.Payer{}, fmt.Errorf("failed to find payer: %w", err)
	}
	return p, nil
}

func (c *conn) GetBalance(ctx context.Context, key points.BalanceKey) (*points.Balance, error) {
	var (
		b         = points.Balance{Key: key}
		updatedAt string
	)
	err := c.q.QueryRowContext(ctx, `
		SELECT b.point_balance, b.updated_at, p.name
		FROM balances b JOIN payers p ON p.id = b.payer_id
		WHERE b.user_id = ? AND b.payer_id = ?`,
		key.UserID, key.PayerID,
	).Scan(&b.Points, &updatedAt, &b.PayerName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("balance (user %d, payer %d): %w", key.UserID, key.PayerID, err)
	}
	return &b, nil
}

func (c *conn) UpsertBalance(ctx context.Context, b points.Balance) (points.Balance, error) {
	if err := c.upsertBalance(ctx, b); err != nil {
		return points.Balance{}, err
	}
	saved, err := c.GetBalance(ctx, b.Key)
	if err != nil {
		return points.Balance{}, err
	}
	if saved == nil {
		return points.Balance{}, fmt.Errorf("balance (user %d, payer %d) missing after upsert", b.Key.UserID, b.Key.PayerID)
	}
	return *saved, nil
}

func (c *conn) UpsertBalances(ctx context.Context, bs []points.Balance) error {
	for _, b := range bs {
		if err := c.upsertBalance(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) upsertBalance(ctx context.Context, b points.Balance) error {
	updatedAt := b.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO balances (user_id, payer_id, point_balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, payer_id) DO UPDATE SET
			point_balance = excluded.point_balance,
			updated_at = excluded.updated_at`,
		b.Key.UserID, b.Key.PayerID, b.Points, formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

func (c *conn) InsertTransaction(ctx context.Context, tx points.Transaction) (points.Transaction, error) {
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO transactions (user_id, payer_id, points, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		tx.Key.UserID, tx.Key.PayerID, tx.Points, formatTime(tx.Timestamp), formatTime(time.Now()),
	)
	if err != nil {
		return points.Transaction{}, fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return points.Transaction{}, fmt.Errorf("failed to read transaction id: %w", err)
	}
	tx.ID = points.TransactionID(id)
	return tx, nil
}

// SaveUser upserts the user row. Transaction and balance associations are
// carried by the user_id columns of those tables.
func (c *conn) SaveUser(ctx context.Context, u points.User) error {
	now := formatTime(time.Now())
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO users (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at`,
		u.ID, u.Name, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (c *conn) LoadTransactions(ctx context.Context, userID points.UserID) ([]points.Transaction, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, user_id, payer_id, points, occurred_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []points.Transaction
	for rows.Next() {
		var (
			tx         points.Transaction
			occurredAt string
		)
		if err := rows.Scan(&tx.ID, &tx.Key.UserID, &tx.Key.PayerID, &tx.Points, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if tx.Timestamp, err = parseTime(occurredAt); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", tx.ID, err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (c *conn) LoadBalances(ctx context.Context, userID points.UserID) ([]points.Balance, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT b.user_id, b.payer_id, p.name, b.point_balance, b.updated_at
		FROM balances b JOIN payers p ON p.id = b.payer_id
		WHERE b.user_id = ?
		ORDER BY p.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []points.Balance
	for rows.Next() {
		var (
			b         points.Balance
			updatedAt string
		)
		if err := rows.Scan(&b.Key.UserID, &b.Key.PayerID, &b.PayerName, &b.Points, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("balance (user %d, payer %d): %w", b.Key.UserID, b.Key.PayerID, err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed stored time %q: %w", s, err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
