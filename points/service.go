/*
service.go - Points ledger operations

PURPOSE:
  The entry point used by the boundary layer (HTTP handlers, CLI). Each
  method takes and returns plain data; Store types never leak out.

OPERATIONS:
  AddTransaction: resolve user and payer, bump the (user, payer) balance,
                  insert the transaction, link both to the user
  SpendPoints:    load history and balances, run Allocate, persist the
                  touched balances in one batch
  Balances:       payer name -> current points
  History:        raw transaction list with payer names

ATOMICITY:
  AddTransaction and SpendPoints each run in a single TxStore.WithTx.
  Any error inside rolls back every write made during the call.

SEE ALSO:
  - allocator.go: The spend walk
  - store.go:     Persistence contract
*/
package points

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Service implements the ledger operations on top of a TxStore.
type Service struct {
	store  TxStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a service. A nil logger falls back to slog.Default().
func NewService(store TxStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "points"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// TRANSACTION RECORDER
// =============================================================================

// AddTransaction records points for userID from the payer named payerName.
// points may be negative. A missing balance starts from zero.
func (s *Service) AddTransaction(ctx context.Context, userID UserID, payerName string, points int64, at time.Time) (TransactionSummary, error) {
	var summary TransactionSummary

	err := s.store.WithTx(ctx, func(st Store) error {
		user, err := st.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		payer, err := st.FindPayerByName(ctx, payerName)
		if err != nil {
			return err
		}

		key := BalanceKey{UserID: user.ID, PayerID: payer.ID}
		bal, err := st.GetBalance(ctx, key)
		if err != nil {
			return fmt.Errorf("get balance: %w", err)
		}
		if bal == nil {
			bal = &Balance{Key: key, PayerName: payer.Name}
		}
		bal.Points += points
		bal.UpdatedAt = s.now()

		saved, err := st.UpsertBalance(ctx, *bal)
		if err != nil {
			return fmt.Errorf("upsert balance: %w", err)
		}

		tx, err := st.InsertTransaction(ctx, Transaction{Key: key, Points: points, Timestamp: at})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		user.AppendTransaction(tx.ID)
		user.AddBalance(key)
		if err := st.SaveUser(ctx, user); err != nil {
			return fmt.Errorf("save user: %w", err)
		}

		summary = TransactionSummary{
			Payer:             payer.Name,
			TransactionPoints: tx.Points,
			TotalPoints:       saved.Points,
			Timestamp:         tx.Timestamp,
		}
		return nil
	})
	if err != nil {
		s.logFailure(ctx, "add transaction", userID, err)
		return TransactionSummary{}, err
	}

	s.logger.DebugContext(ctx, "transaction recorded",
		"user_id", userID, "payer", summary.Payer,
		"points", summary.TransactionPoints, "total", summary.TotalPoints)
	return summary, nil
}

// =============================================================================
// SPEND
// =============================================================================

// SpendPoints deducts points from the user's payers, oldest eligible
// transaction first. On failure nothing is written.
func (s *Service) SpendPoints(ctx context.Context, userID UserID, points int64) ([]Deduction, error) {
	if points < 0 {
		return nil, &InvalidInputError{Field: "points", Reason: "must not be negative"}
	}

	var deductions []Deduction

	err := s.store.WithTx(ctx, func(st Store) error {
		if _, err := st.GetUser(ctx, userID); err != nil {
			return err
		}
		if points == 0 {
			deductions = []Deduction{}
			return nil
		}

		txs, err := st.LoadTransactions(ctx, userID)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		balances, err := st.LoadBalances(ctx, userID)
		if err != nil {
			return fmt.Errorf("load balances: %w", err)
		}

		alloc, err := Allocate(userID, txs, balances, points)
		if err != nil {
			return err
		}

		now := s.now()
		for i := range alloc.Touched {
			alloc.Touched[i].UpdatedAt = now
		}
		if err := st.UpsertBalances(ctx, alloc.Touched); err != nil {
			return fmt.Errorf("upsert balances: %w", err)
		}

		deductions = alloc.Deductions
		return nil
	})
	if err != nil {
		s.logFailure(ctx, "spend points", userID, err)
		return nil, err
	}

	s.logger.DebugContext(ctx, "points spent",
		"user_id", userID, "requested", points, "payers", len(deductions))
	return deductions, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Balances returns the current points per payer name.
func (s *Service) Balances(ctx context.Context, userID UserID) (map[string]int64, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	balances, err := s.store.LoadBalances(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}

	result := make(map[string]int64, len(balances))
	for _, b := range balances {
		result[b.PayerName] = b.Points
	}
	return result, nil
}

// HistoryEntry is a transaction with its payer name resolved.
type HistoryEntry struct {
	ID        TransactionID
	Payer     string
	Points    int64
	Timestamp time.Time
}

// History returns the user's raw transaction list in insertion order.
func (s *Service) History(ctx context.Context, userID UserID) ([]HistoryEntry, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	txs, err := s.store.LoadTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	balances, err := s.store.LoadBalances(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}

	names := make(map[BalanceKey]string, len(balances))
	for _, b := range balances {
		names[b.Key] = b.PayerName
	}

	entries := make([]HistoryEntry, 0, len(txs))
	for _, tx := range txs {
		entries = append(entries, HistoryEntry{
			ID:        tx.ID,
			Payer:     names[tx.Key],
			Points:    tx.Points,
			Timestamp: tx.Timestamp,
		})
	}
	return entries, nil
}

func (s *Service) logFailure(ctx context.Context, op string, userID UserID, err error) {
	if IsClientError(err) || errors.Is(err, context.Canceled) {
		s.logger.DebugContext(ctx, op+" rejected", "user_id", userID, "error", err)
		return
	}
	s.logger.WarnContext(ctx, op+" failed", "user_id", userID, "error", err)
}
