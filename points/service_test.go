package points_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/points/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type ledgerFixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.TxMemory
	svc    *points.Service
	user   points.User
	payers map[string]points.Payer
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewTxMemory()

	user, err := st.CreateUser(ctx, "test-user")
	require.NoError(t, err)

	return &ledgerFixture{
		t:      t,
		ctx:    ctx,
		store:  st,
		svc:    points.NewService(st, quietLogger()),
		user:   user,
		payers: make(map[string]points.Payer),
	}
}

func (f *ledgerFixture) payer(name string) points.Payer {
	f.t.Helper()
	if p, ok := f.payers[name]; ok {
		return p
	}
	p, err := f.store.CreatePayer(f.ctx, name)
	require.NoError(f.t, err)
	f.payers[name] = p
	return p
}

func (f *ledgerFixture) key(name string) points.BalanceKey {
	return points.BalanceKey{UserID: f.user.ID, PayerID: f.payer(name).ID}
}

// setBalance writes a balance row directly, bypassing the recorder.
func (f *ledgerFixture) setBalance(name string, pts int64) {
	f.t.Helper()
	_, err := f.store.UpsertBalance(f.ctx, points.Balance{Key: f.key(name), Points: pts})
	require.NoError(f.t, err)
}

// addTx inserts a raw transaction without touching the balance.
func (f *ledgerFixture) addTx(name string, pts int64, at string) {
	f.t.Helper()
	_, err := f.store.InsertTransaction(f.ctx, points.Transaction{
		Key:       f.key(name),
		Points:    pts,
		Timestamp: mustTime(f.t, at),
	})
	require.NoError(f.t, err)
}

func (f *ledgerFixture) balances() map[string]int64 {
	f.t.Helper()
	b, err := f.svc.Balances(f.ctx, f.user.ID)
	require.NoError(f.t, err)
	return b
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

// =============================================================================
// TRANSACTION RECORDER
// =============================================================================

func TestAddTransaction_NoBalance_CreatesFromZero(t *testing.T) {
	f := newFixture(t)
	f.payer("DANNON")
	at := mustTime(t, "2020-11-02T14:00:00Z")

	summary, err := f.svc.AddTransaction(f.ctx, f.user.ID, "DANNON", 1000, at)
	require.NoError(t, err)

	assert.Equal(t, points.TransactionSummary{
		Payer:             "DANNON",
		TransactionPoints: 1000,
		TotalPoints:       1000,
		Timestamp:         at,
	}, summary)
	assert.Equal(t, map[string]int64{"DANNON": 1000}, f.balances())
}

func TestAddTransaction_ExistingBalance_AddsToIt(t *testing.T) {
	f := newFixture(t)
	f.setBalance("payerName", 1)

	summary, err := f.svc.AddTransaction(f.ctx, f.user.ID, "payerName", 999, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), summary.TotalPoints)

	txs, err := f.store.LoadTransactions(f.ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(999), txs[0].Points)
	assert.NotZero(t, txs[0].ID)
}

func TestAddTransaction_SequenceSumsOnFreshBalance(t *testing.T) {
	f := newFixture(t)
	f.payer("UNILEVER")

	var sum int64
	for i, pts := range []int64{200, -50, 1000, 0, -150, 7} {
		summary, err := f.svc.AddTransaction(f.ctx, f.user.ID, "UNILEVER", pts,
			time.Date(2020, 11, 1, i, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		sum += pts
		assert.Equal(t, sum, summary.TotalPoints)
	}
	assert.Equal(t, map[string]int64{"UNILEVER": sum}, f.balances())
}

func TestAddTransaction_PayerMatchedIgnoringCase(t *testing.T) {
	f := newFixture(t)
	f.payer("MILLER COORS")

	summary, err := f.svc.AddTransaction(f.ctx, f.user.ID, "miller coors", 10, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "MILLER COORS", summary.Payer, "summary carries the stored payer name")
}

func TestAddTransaction_LinksTransactionAndBalanceToUser(t *testing.T) {
	f := newFixture(t)
	f.payer("DANNON")

	_, err := f.svc.AddTransaction(f.ctx, f.user.ID, "DANNON", 10, time.Now())
	require.NoError(t, err)
	_, err = f.svc.AddTransaction(f.ctx, f.user.ID, "DANNON", 20, time.Now())
	require.NoError(t, err)

	user, err := f.store.GetUser(f.ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, user.Transactions, 2)
	assert.Equal(t, []points.BalanceKey{f.key("DANNON")}, user.Balances, "balances form a set")
}

func TestAddTransaction_UserNotFound(t *testing.T) {
	f := newFixture(t)
	f.payer("DANNON")

	_, err := f.svc.AddTransaction(f.ctx, 9999, "DANNON", 10, time.Now())
	assert.ErrorIs(t, err, points.ErrUserNotFound)
	assert.True(t, points.IsNotFound(err))
}

func TestAddTransaction_PayerNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddTransaction(f.ctx, f.user.ID, "NOT_FOUND", 10, time.Now())
	assert.ErrorIs(t, err, points.ErrPayerNotFound)
	assert.Empty(t, f.balances())
}

// failingStore fails SaveUser inside WithTx, after the balance and the
// transaction have already been written.
type failingStore struct {
	*store.TxMemory
}

func (fs failingStore) WithTx(ctx context.Context, fn func(points.Store) error) error {
	return fs.TxMemory.WithTx(ctx, func(st points.Store) error {
		return fn(failingView{Store: st})
	})
}

type failingView struct {
	points.Store
}

var errDiskFull = errors.New("disk full")

func (failingView) SaveUser(context.Context, points.User) error { return errDiskFull }

func TestAddTransaction_StoreFailure_RollsBack(t *testing.T) {
	f := newFixture(t)
	f.setBalance("DANNON", 100)
	svc := points.NewService(failingStore{f.store}, quietLogger())

	_, err := svc.AddTransaction(f.ctx, f.user.ID, "DANNON", 50, time.Now())
	require.ErrorIs(t, err, errDiskFull)
	assert.False(t, points.IsClientError(err))

	assert.Equal(t, map[string]int64{"DANNON": 100}, f.balances())
	txs, err := f.store.LoadTransactions(f.ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// =============================================================================
// SPEND
// =============================================================================

func TestSpendPoints_OldestFirstAcrossPayers(t *testing.T) {
	f := newFixture(t)
	f.setBalance("payerName1", 1100)
	f.setBalance("payerName2", 200)
	f.setBalance("payerName3", 10000)
	f.addTx("payerName1", 1000, "2020-11-02T14:00:00Z")
	f.addTx("payerName2", 200, "2020-10-31T11:00:00Z")
	f.addTx("payerName1", -200, "2020-10-31T15:00:00Z")
	f.addTx("payerName3", 10000, "2020-11-01T14:00:00Z")
	f.addTx("payerName1", 300, "2020-10-31T10:00:00Z")

	deductions, err := f.svc.SpendPoints(f.ctx, f.user.ID, 5000)
	require.NoError(t, err)

	assert.ElementsMatch(t, []points.Deduction{
		{Payer: "payerName1", Points: -100},
		{Payer: "payerName2", Points: -200},
		{Payer: "payerName3", Points: -4700},
	}, deductions)
	assert.Equal(t, map[string]int64{
		"payerName1": 1000,
		"payerName2": 0,
		"payerName3": 5300,
	}, f.balances())
}

func TestSpendPoints_TransactionExceedingBalance_Skipped(t *testing.T) {
	f := newFixture(t)
	f.setBalance("payerName", 1100)
	f.setBalance("payerToSkipName", 199)
	f.addTx("payerName", 500, "2020-11-02T14:00:00Z")
	f.addTx("payerToSkipName", 200, "2020-10-31T11:00:00Z")

	deductions, err := f.svc.SpendPoints(f.ctx, f.user.ID, 500)
	require.NoError(t, err)

	assert.Equal(t, []points.Deduction{{Payer: "payerName", Points: -500}}, deductions)
	assert.Equal(t, map[string]int64{"payerName": 600, "payerToSkipName": 199}, f.balances())
}

func TestSpendPoints_InsufficientEligiblePoints_FailsWithoutWrites(t *testing.T) {
	f := newFixture(t)
	f.setBalance("payerName", 6)
	f.setBalance("payer2", 3)
	f.addTx("payerName", 6, "2020-10-01T12:00:00Z")
	f.addTx("payer2", 4, "2020-11-01T12:00:00Z")

	_, err := f.svc.SpendPoints(f.ctx, f.user.ID, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, points.ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "10")

	var ib *points.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, int64(10), ib.Requested)

	assert.Equal(t, map[string]int64{"payerName": 6, "payer2": 3}, f.balances(),
		"the 6 points taken before failing must not be persisted")
}

func TestSpendPoints_Zero_ReturnsEmpty(t *testing.T) {
	f := newFixture(t)
	f.setBalance("DANNON", 300)
	f.addTx("DANNON", -200, "2020-10-01T12:00:00Z")
	f.addTx("DANNON", 500, "2020-10-02T12:00:00Z")

	deductions, err := f.svc.SpendPoints(f.ctx, f.user.ID, 0)
	require.NoError(t, err)
	assert.NotNil(t, deductions)
	assert.Empty(t, deductions)
	assert.Equal(t, map[string]int64{"DANNON": 300}, f.balances())
}

func TestSpendPoints_Negative_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SpendPoints(f.ctx, f.user.ID, -1)
	assert.ErrorIs(t, err, points.ErrInvalidInput)
}

func TestSpendPoints_UserNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SpendPoints(f.ctx, 424242, 10)
	assert.ErrorIs(t, err, points.ErrUserNotFound)
}

func TestSpendPoints_SamePayerTwice_SingleSummedEntry(t *testing.T) {
	f := newFixture(t)
	f.payer("DANNON")
	_, err := f.svc.AddTransaction(f.ctx, f.user.ID, "DANNON", 100, mustTime(t, "2020-10-01T00:00:00Z"))
	require.NoError(t, err)
	_, err = f.svc.AddTransaction(f.ctx, f.user.ID, "DANNON", 100, mustTime(t, "2020-10-02T00:00:00Z"))
	require.NoError(t, err)

	deductions, err := f.svc.SpendPoints(f.ctx, f.user.ID, 150)
	require.NoError(t, err)
	assert.Equal(t, []points.Deduction{{Payer: "DANNON", Points: -150}}, deductions)
	assert.Equal(t, map[string]int64{"DANNON": 50}, f.balances())
}

func TestSpendPoints_DeductionsSumToRequested(t *testing.T) {
	f := newFixture(t)
	for _, p := range []string{"A", "B", "C"} {
		f.payer(p)
	}
	adds := []struct {
		payer string
		pts   int64
		at    string
	}{
		{"A", 120, "2021-01-01T00:00:00Z"},
		{"B", 80, "2021-01-02T00:00:00Z"},
		{"C", 400, "2021-01-03T00:00:00Z"},
		{"A", 60, "2021-01-04T00:00:00Z"},
		{"B", 15, "2021-01-05T00:00:00Z"},
	}
	for _, a := range adds {
		_, err := f.svc.AddTransaction(f.ctx, f.user.ID, a.payer, a.pts, mustTime(t, a.at))
		require.NoError(t, err)
	}

	for _, requested := range []int64{1, 37, 200, 275} {
		before := f.balances()

		deductions, err := f.svc.SpendPoints(f.ctx, f.user.ID, requested)
		require.NoError(t, err, "spend %d", requested)

		var total int64
		for _, d := range deductions {
			assert.LessOrEqual(t, d.Points, int64(0))
			total -= d.Points
		}
		assert.Equal(t, requested, total)

		after := f.balances()
		var beforeSum, afterSum int64
		for p := range before {
			beforeSum += before[p]
			afterSum += after[p]
		}
		assert.Equal(t, beforeSum-requested, afterSum, "net effect equals the spend")
	}
}

func TestSpendPoints_ThenAdd_BalanceReflectsNetEffect(t *testing.T) {
	f := newFixture(t)
	f.payer("DANNON")
	f.payer("UNILEVER")

	_, err := f.svc.AddTransaction(f.ctx, f.user.ID, "DANNON", 300, mustTime(t, "2020-10-31T10:00:00Z"))
	require.NoError(t, err)
	_, err = f.svc.AddTransaction(f.ctx, f.user.ID, "UNILEVER", 200, mustTime(t, "2020-10-31T11:00:00Z"))
	require.NoError(t, err)

	_, err = f.svc.SpendPoints(f.ctx, f.user.ID, 400)
	require.NoError(t, err)
	_, err = f.svc.AddTransaction(f.ctx, f.user.ID, "UNILEVER", 50, mustTime(t, "2020-11-01T11:00:00Z"))
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"DANNON": 0, "UNILEVER": 150}, f.balances())
}

// =============================================================================
// QUERIES
// =============================================================================

func TestBalances_ReturnsEveryPayerOfUser(t *testing.T) {
	f := newFixture(t)
	f.setBalance("payerName1", 1100)
	f.setBalance("payerName2", 200)
	f.setBalance("payerName3", 10000)

	other, err := f.store.CreateUser(f.ctx, "other")
	require.NoError(t, err)
	_, err = f.store.UpsertBalance(f.ctx, points.Balance{
		Key:    points.BalanceKey{UserID: other.ID, PayerID: f.payer("payerName1").ID},
		Points: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{
		"payerName1": 1100,
		"payerName2": 200,
		"payerName3": 10000,
	}, f.balances())
}

func TestBalances_UserNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Balances(f.ctx, 99999)
	assert.ErrorIs(t, err, points.ErrUserNotFound)
}

func TestHistory_InsertionOrderWithPayerNames(t *testing.T) {
	f := newFixture(t)
	f.payer("DANNON")
	f.payer("UNILEVER")

	_, err := f.svc.AddTransaction(f.ctx, f.user.ID, "UNILEVER", 200, mustTime(t, "2020-10-31T11:00:00Z"))
	require.NoError(t, err)
	_, err = f.svc.AddTransaction(f.ctx, f.user.ID, "dannon", 300, mustTime(t, "2020-10-31T10:00:00Z"))
	require.NoError(t, err)

	entries, err := f.svc.History(f.ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "UNILEVER", entries[0].Payer)
	assert.Equal(t, "DANNON", entries[1].Payer)
	assert.Equal(t, int64(300), entries[1].Points)
}

// =============================================================================
// SEED
// =============================================================================

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewTxMemory()
	payers := []string{"DANNON", "UNILEVER", "MILLER COORS"}

	require.NoError(t, points.Seed(ctx, st, points.User{ID: 0, Name: "default"}, payers))
	require.NoError(t, points.Seed(ctx, st, points.User{ID: 0, Name: "default"}, payers))

	u, err := st.GetUser(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "default", u.Name)

	list, err := st.ListPayers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
