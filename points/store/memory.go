// Package store provides Store implementations.
package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	users        map[points.UserID]points.User
	payers       map[points.PayerID]points.Payer
	balances     map[points.BalanceKey]points.Balance
	transactions map[points.TransactionID]points.Transaction

	nextUserID  points.UserID
	nextPayerID points.PayerID
	nextTxID    points.TransactionID
}

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[points.UserID]points.User),
		payers:       make(map[points.PayerID]points.Payer),
		balances:     make(map[points.BalanceKey]points.Balance),
		transactions: make(map[points.TransactionID]points.Transaction),
		nextUserID:   1,
		nextPayerID:  1,
		nextTxID:     1,
	}
}

func (m *Memory) GetUser(_ context.Context, id points.UserID) (points.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id)
}

func (m *Memory) FindPayerByName(_ context.Context, name string) (points.Payer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findPayerLocked(name)
}

func (m *Memory) GetBalance(_ context.Context, key points.BalanceKey) (*points.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBalanceLocked(key), nil
}

func (m *Memory) UpsertBalance(_ context.Context, b points.Balance) (points.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertBalanceLocked(b)
}

// UpsertBalances validates every balance before writing any of them.
func (m *Memory) UpsertBalances(_ context.Context, bs []points.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertBalancesLocked(bs)
}

func (m *Memory) InsertTransaction(_ context.Context, tx points.Transaction) (points.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertTransactionLocked(tx)
}

func (m *Memory) SaveUser(_ context.Context, u points.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveUserLocked(u)
	return nil
}

func (m *Memory) LoadTransactions(_ context.Context, userID points.UserID) ([]points.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadTransactionsLocked(userID)
}

func (m *Memory) LoadBalances(_ context.Context, userID points.UserID) ([]points.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadBalancesLocked(userID)
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) CreateUser(_ context.Context, name string) (points.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := points.User{ID: m.nextUserID, Name: name}
	m.saveUserLocked(u)
	return u, nil
}

func (m *Memory) CreatePayer(_ context.Context, name string) (points.Payer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		return points.Payer{}, &points.InvalidInputError{Field: "name", Reason: "must not be blank"}
	}
	if _, err := m.findPayerLocked(name); err == nil {
		return points.Payer{}, points.ErrPayerExists
	}

	p := points.Payer{ID: m.nextPayerID, Name: name}
	m.payers[p.ID] = p
	m.nextPayerID++
	return p, nil
}

func (m *Memory) ListPayers(_ context.Context) ([]points.Payer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payers := slices.Collect(maps.Values(m.payers))
	slices.SortFunc(payers, func(a, b points.Payer) int { return cmp.Compare(a.Name, b.Name) })
	return payers, nil
}

// =============================================================================
// LOCKED OPERATIONS - callers hold m.mu
// =============================================================================

func (m *Memory) getUserLocked(id points.UserID) (points.User, error) {
	u, ok := m.users[id]
	if !ok {
		return points.User{}, fmt.Errorf("%w: %d", points.ErrUserNotFound, id)
	}
	return cloneUser(u), nil
}

func (m *Memory) findPayerLocked(name string) (points.Payer, error) {
	key := points.PayerKey(name)
	for _, p := range m.payers {
		if points.PayerKey(p.Name) == key {
			return p, nil
		}
	}
	return points.Payer{}, fmt.Errorf("%w: %q", points.ErrPayerNotFound, name)
}

func (m *Memory) getBalanceLocked(key points.BalanceKey) *points.Balance {
	b, ok := m.balances[key]
	if !ok {
		return nil
	}
	return &b
}

func (m *Memory) checkBalanceLocked(b points.Balance) (points.Balance, error) {
	if _, ok := m.users[b.Key.UserID]; !ok {
		return b, fmt.Errorf("balance references %w: %d", points.ErrUserNotFound, b.Key.UserID)
	}
	p, ok := m.payers[b.Key.PayerID]
	if !ok {
		return b, fmt.Errorf("balance references unknown payer %d", b.Key.PayerID)
	}
	b.PayerName = p.Name
	return b, nil
}

func (m *Memory) upsertBalanceLocked(b points.Balance) (points.Balance, error) {
	b, err := m.checkBalanceLocked(b)
	if err != nil {
		return points.Balance{}, err
	}
	m.balances[b.Key] = b
	return b, nil
}

func (m *Memory) upsertBalancesLocked(bs []points.Balance) error {
	checked := make([]points.Balance, len(bs))
	for i, b := range bs {
		c, err := m.checkBalanceLocked(b)
		if err != nil {
			return err
		}
		checked[i] = c
	}
	for _, b := range checked {
		m.balances[b.Key] = b
	}
	return nil
}

func (m *Memory) insertTransactionLocked(tx points.Transaction) (points.Transaction, error) {
	if _, ok := m.balances[tx.Key]; !ok {
		return points.Transaction{}, fmt.Errorf("transaction references missing balance (user %d, payer %d)",
			tx.Key.UserID, tx.Key.PayerID)
	}
	tx.ID = m.nextTxID
	m.nextTxID++
	m.transactions[tx.ID] = tx
	return tx, nil
}

func (m *Memory) saveUserLocked(u points.User) {
	m.users[u.ID] = cloneUser(u)
	if u.ID >= m.nextUserID {
		m.nextUserID = u.ID + 1
	}
}

func (m *Memory) loadTransactionsLocked(userID points.UserID) ([]points.Transaction, error) {
	if _, ok := m.users[userID]; !ok {
		return nil, fmt.Errorf("%w: %d", points.ErrUserNotFound, userID)
	}
	var txs []points.Transaction
	for _, tx := range m.transactions {
		if tx.Key.UserID == userID {
			txs = append(txs, tx)
		}
	}
	slices.SortFunc(txs, func(a, b points.Transaction) int { return cmp.Compare(a.ID, b.ID) })
	return txs, nil
}

func (m *Memory) loadBalancesLocked(userID points.UserID) ([]points.Balance, error) {
	if _, ok := m.users[userID]; !ok {
		return nil, fmt.Errorf("%w: %d", points.ErrUserNotFound, userID)
	}
	var bs []points.Balance
	for _, b := range m.balances {
		if b.Key.UserID == userID {
			bs = append(bs, b)
		}
	}
	slices.SortFunc(bs, func(a, b points.Balance) int { return cmp.Compare(a.PayerName, b.PayerName) })
	return bs, nil
}

func cloneUser(u points.User) points.User {
	u.Transactions = slices.Clone(u.Transactions)
	u.Balances = slices.Clone(u.Balances)
	return u
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The store-wide lock is held for the whole unit, so units never interleave.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(points.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	if err := ctx.Err(); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users        map[points.UserID]points.User
	payers       map[points.PayerID]points.Payer
	balances     map[points.BalanceKey]points.Balance
	transactions map[points.TransactionID]points.Transaction
	nextUserID   points.UserID
	nextPayerID  points.PayerID
	nextTxID     points.TransactionID
}

func (tm *TxMemory) snapshot() memorySnapshot {
	users := make(map[points.UserID]points.User, len(tm.users))
	for k, v := range tm.users {
		users[k] = cloneUser(v)
	}
	return memorySnapshot{
		users:        users,
		payers:       maps.Clone(tm.payers),
		balances:     maps.Clone(tm.balances),
		transactions: maps.Clone(tm.transactions),
		nextUserID:   tm.nextUserID,
		nextPayerID:  tm.nextPayerID,
		nextTxID:     tm.nextTxID,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.users = s.users
	tm.payers = s.payers
	tm.balances = s.balances
	tm.transactions = s.transactions
	tm.nextUserID = s.nextUserID
	tm.nextPayerID = s.nextPayerID
	tm.nextTxID = s.nextTxID
}

// txMemoryView runs against the parent with its lock already held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) GetUser(_ context.Context, id points.UserID) (points.User, error) {
	return tv.parent.getUserLocked(id)
}

func (tv *txMemoryView) FindPayerByName(_ context.Context, name string) (points.Payer, error) {
	return tv.parent.findPayerLocked(name)
}

func (tv *txMemoryView) GetBalance(_ context.Context, key points.BalanceKey) (*points.Balance, error) {
	return tv.parent.getBalanceLocked(key), nil
}

func (tv *txMemoryView) UpsertBalance(_ context.Context, b points.Balance) (points.Balance, error) {
	return tv.parent.upsertBalanceLocked(b)
}

func (tv *txMemoryView) UpsertBalances(_ context.Context, bs []points.Balance) error {
	return tv.parent.upsertBalancesLocked(bs)
}

func (tv *txMemoryView) InsertTransaction(_ context.Context, tx points.Transaction) (points.Transaction, error) {
	return tv.parent.insertTransactionLocked(tx)
}

func (tv *txMemoryView) SaveUser(_ context.Context, u points.User) error {
	tv.parent.saveUserLocked(u)
	return nil
}

func (tv *txMemoryView) LoadTransactions(_ context.Context, userID points.UserID) ([]points.Transaction, error) {
	return tv.parent.loadTransactionsLocked(userID)
}

func (tv *txMemoryView) LoadBalances(_ context.Context, userID points.UserID) ([]points.Balance, error) {
	return tv.parent.loadBalancesLocked(userID)
}
