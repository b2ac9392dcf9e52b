/*
allocator.go - Spend allocation across payers

PURPOSE:
  Decides which payers a spend is taken from. Given the user's full
  transaction history and current balances, it walks transactions in a
  fixed order and deducts until the requested amount is covered.

ORDERING (ascending, stable):
  1. Transaction timestamp     - oldest first
  2. Transaction points        - smaller first
  3. Owning balance's points   - DESCENDING, larger headroom first
  The balance used for (3) is the value loaded before the walk starts.

ELIGIBILITY:
  A transaction is used only if its points are <= its balance's running
  total at the moment it is reached. Ineligible transactions are skipped
  whole, never partially consumed. Transactions with zero or negative
  points always pass this check and contribute a non-positive deduction,
  which hands points back to the running remainder.

EXAMPLE:
  Balances: A=1100, B=200, C=10000. Spend 5000.
    A +300  (oldest)   -> take 300,   remaining 4700, A=800
    B +200             -> take 200,   remaining 4500, B=0
    A -200             -> take -200,  remaining 4700, A=1000
    C +10000           -> take 4700,  remaining 0,    C=5300
  Result: A -100, B -200, C -4700

FAILURE:
  If the walk ends with points still remaining, Allocate returns an
  InsufficientBalanceError and no Touched balances. Inputs are never
  modified, so callers have nothing to undo.

SEE ALSO:
  - service.go: Loads inputs and persists Touched inside one WithTx
*/
package points

import (
	"cmp"
	"fmt"
	"slices"
)

// Allocation is the outcome of a successful walk.
type Allocation struct {
	// Deductions holds one entry per payer touched, sorted by payer name.
	Deductions []Deduction

	// Touched holds the updated balances in first-touch order.
	Touched []Balance
}

// Allocate walks txs oldest-eligible-first until requested points are
// covered. balances must contain the balance of every transaction in txs.
// A request of 0 returns an empty Allocation.
func Allocate(userID UserID, txs []Transaction, balances []Balance, requested int64) (Allocation, error) {
	if requested < 0 {
		return Allocation{}, &InvalidInputError{Field: "points", Reason: "must not be negative"}
	}
	if requested == 0 {
		return Allocation{Deductions: []Deduction{}}, nil
	}

	current := make(map[BalanceKey]*Balance, len(balances))
	for _, b := range balances {
		current[b.Key] = &b
	}
	for _, tx := range txs {
		if _, ok := current[tx.Key]; !ok {
			return Allocation{}, fmt.Errorf("transaction %d references missing balance (user %d, payer %d)",
				tx.ID, tx.Key.UserID, tx.Key.PayerID)
		}
	}

	ordered := slices.Clone(txs)
	slices.SortStableFunc(ordered, func(a, b Transaction) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Points, b.Points); c != 0 {
			return c
		}
		return cmp.Compare(current[b.Key].Points, current[a.Key].Points)
	})

	var (
		remaining = requested
		totals    = make(map[string]int64)
		touched   []BalanceKey
	)
	for _, tx := range ordered {
		bal := current[tx.Key]
		if tx.Points > bal.Points {
			continue
		}

		deduction := min(tx.Points, remaining)
		remaining -= deduction
		bal.Points -= deduction

		if !slices.Contains(touched, tx.Key) {
			touched = append(touched, tx.Key)
		}
		totals[bal.PayerName] -= deduction

		if remaining == 0 {
			break
		}
	}

	if remaining > 0 {
		return Allocation{}, &InsufficientBalanceError{UserID: userID, Requested: requested}
	}

	alloc := Allocation{
		Deductions: make([]Deduction, 0, len(totals)),
		Touched:    make([]Balance, 0, len(touched)),
	}
	for payer, pts := range totals {
		alloc.Deductions = append(alloc.Deductions, Deduction{Payer: payer, Points: pts})
	}
	slices.SortFunc(alloc.Deductions, func(a, b Deduction) int {
		return cmp.Compare(a.Payer, b.Payer)
	})
	for _, key := range touched {
		alloc.Touched = append(alloc.Touched, *current[key])
	}
	return alloc, nil
}
