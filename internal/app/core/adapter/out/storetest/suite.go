// Package storetest 提供所有 usecase.Backend 實作共用的行為測試
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

// Factory 每個子測試建立一個乾淨的 Backend
type Factory func(t *testing.T) usecase.Backend

// fixture 測試用 use case 組合
type fixture struct {
	backend  usecase.Backend
	ledger   *usecase.CoreUseCase
	accounts *usecase.AccountUseCase
}

func newFixture(t *testing.T, factory Factory, opts ...usecase.Option) *fixture {
	t.Helper()
	backend := factory(t)
	return &fixture{
		backend:  backend,
		ledger:   usecase.NewCoreUseCase(backend, opts...),
		accounts: usecase.NewAccountUseCase(backend, opts...),
	}
}

// open 建立帳戶並存入初始金額
func (f *fixture) open(t *testing.T, owner string, currency domain.Currency, initial int64) *domain.Account {
	t.Helper()
	account, err := f.accounts.CreateAccount(context.Background(), owner, currency)
	require.NoError(t, err)
	if initial > 0 {
		_, err := f.ledger.Deposit(context.Background(), owner, usecase.MovementCommand{
			AccountID: account.ID,
			Amount:    decimal.NewFromInt(initial),
		})
		require.NoError(t, err)
	}
	return account
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	account, err := f.backend.Accounts().FindByID(context.Background(), id)
	require.NoError(t, err)
	return domain.FromMinorUnits(account.Balance)
}

func (f *fixture) count(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	_, total, err := f.backend.Transactions().FindMatching(context.Background(), domain.TransactionQuery{
		AccountID: id,
		Limit:     1,
	})
	require.NoError(t, err)
	return total
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// Run 執行完整的行為測試
func Run(t *testing.T, factory Factory) {
	t.Run("CreateAccount", func(t *testing.T) { testCreateAccount(t, factory) })
	t.Run("DepositWithdraw", func(t *testing.T) { testDepositWithdraw(t, factory) })
	t.Run("WithdrawInsufficientFunds", func(t *testing.T) { testWithdrawInsufficientFunds(t, factory) })
	t.Run("WithdrawDepositRoundTrip", func(t *testing.T) { testRoundTrip(t, factory) })
	t.Run("Transfer", func(t *testing.T) { testTransfer(t, factory) })
	t.Run("TransferSameAccount", func(t *testing.T) { testTransferSameAccount(t, factory) })
	t.Run("TransferFailures", func(t *testing.T) { testTransferFailures(t, factory) })
	t.Run("Ownership", func(t *testing.T) { testOwnership(t, factory) })
	t.Run("ConcurrentWithdraw", func(t *testing.T) { testConcurrentWithdraw(t, factory) })
	t.Run("ConcurrentOppositeTransfers", func(t *testing.T) { testConcurrentOppositeTransfers(t, factory) })
	t.Run("RandomInterleaving", func(t *testing.T) { testRandomInterleaving(t, factory) })
	t.Run("HistoryPagination", func(t *testing.T) { testHistoryPagination(t, factory) })
	t.Run("HistoryFilters", func(t *testing.T) { testHistoryFilters(t, factory) })
	t.Run("TransactionsByReference", func(t *testing.T) { testTransactionsByReference(t, factory) })
	t.Run("AbortRollsBack", func(t *testing.T) { testAbortRollsBack(t, factory) })
}

func testCreateAccount(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	ctx := context.Background()

	usd, err := f.accounts.CreateAccount(ctx, "alice", domain.CurrencyUSD)
	require.NoError(t, err)
	assert.Len(t, usd.AccountNumber, domain.AccountNumberLength)
	assert.Zero(t, usd.Balance)

	_, err = f.accounts.CreateAccount(ctx, "alice", domain.CurrencyUSD)
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)

	ngn, err := f.accounts.CreateAccount(ctx, "alice", domain.CurrencyNGN)
	require.NoError(t, err)
	assert.NotEqual(t, usd.AccountNumber, ngn.AccountNumber)

	_, err = f.accounts.CreateAccount(ctx, "alice", domain.Currency("EUR"))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	list, err := f.accounts.ListAccounts(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	got, err := f.accounts.GetAccount(ctx, "alice", usd.ID)
	require.NoError(t, err)
	assert.Equal(t, usd.AccountNumber, got.AccountNumber)

	_, err = f.accounts.GetAccount(ctx, "bob", usd.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testDepositWithdraw(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	ctx := context.Background()
	account := f.open(t, "alice", domain.CurrencyUSD, 0)

	credit, err := f.ledger.Deposit(ctx, "alice", usecase.MovementCommand{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("150.25"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeCredit, credit.Type)
	assert.Equal(t, usecase.NarrationDeposit, credit.Narration)
	assert.NotEmpty(t, credit.Reference)
	assert.Nil(t, credit.LinkedTransactionID)

	debit, err := f.ledger.Withdraw(ctx, "alice", usecase.MovementCommand{
		AccountID: account.ID,
		Amount:    decimal.RequireFromString("50.25"),
		Narration: "atm",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeDebit, debit.Type)
	assert.Equal(t, "atm", debit.Narration)
	assert.Equal(t, int64(502_500), debit.Amount, "amount is stored positive")
	assert.NotEqual(t, credit.Reference, debit.Reference)

	assert.True(t, amount(100).Equal(f.balance(t, account.ID)))
	assert.Equal(t, int64(2), f.count(t, account.ID))

	_, err = f.ledger.Deposit(ctx, "alice", usecase.MovementCommand{AccountID: account.ID, Amount: amount(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = f.ledger.Withdraw(ctx, "alice", usecase.MovementCommand{AccountID: account.ID, Amount: amount(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = f.ledger.Deposit(ctx, "alice", usecase.MovementCommand{AccountID: account.ID, Amount: decimal.RequireFromString("0.00001")})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, int64(2), f.count(t, account.ID))
}

func testWithdrawInsufficientFunds(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	account := f.open(t, "alice", domain.CurrencyUSD, 50)

	_, err := f.ledger.Withdraw(context.Background(), "alice", usecase.MovementCommand{
		AccountID: account.ID,
		Amount:    amount(60),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, amount(50).Equal(f.balance(t, account.ID)))
	assert.Equal(t, int64(1), f.count(t, account.ID), "no record for a failed withdrawal")
}

func testRoundTrip(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	ctx := context.Background()
	account := f.open(t, "alice", domain.CurrencyNGN, 500)
	before := f.balance(t, account.ID)

	for _, v := range []string{"0.0001", "1", "123.4567", "500"} {
		cmd := usecase.MovementCommand{AccountID: account.ID, Amount: decimal.RequireFromString(v)}
		_, err := f.ledger.Withdraw(ctx, "alice", cmd)
		require.NoError(t, err)
		_, err = f.ledger.Deposit(ctx, "alice", cmd)
		require.NoError(t, err)
		assert.True(t, before.Equal(f.balance(t, account.ID)), "amount %s", v)
	}
}

func testTransfer(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	ctx := context.Background()
	a := f.open(t, "alice", domain.CurrencyUSD, 100)
	b := f.open(t, "bob", domain.CurrencyUSD, 10)

	result, err := f.ledger.Transfer(ctx, "alice", usecase.TransferCommand{
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
		Amount:        amount(40),
	})
	require.NoError(t, err)

	assert.True(t, amount(60).Equal(f.balance(t, a.ID)))
	assert.True(t, amount(50).Equal(f.balance(t, b.ID)))

	debit, credit := result.Debit, result.Credit
	assert.Equal(t, domain.TransactionTypeDebit, debit.Type)
	assert.Equal(t, domain.TransactionTypeCredit, credit.Type)
	assert.Equal(t, a.ID, debit.AccountID)
	assert.Equal(t, b.ID, credit.AccountID)
	assert.Equal(t, debit.Reference, credit.Reference)
	require.NotNil(t, debit.LinkedTransactionID)
	require.NotNil(t, credit.LinkedTransactionID)
	assert.Equal(t, credit.ID, *debit.LinkedTransactionID)
	assert.Equal(t, debit.ID, *credit.LinkedTransactionID)
	assert.Equal(t, usecase.NarrationTransferOut, debit.Narration)
	assert.Equal(t, usecase.NarrationTransferIn, credit.Narration)

	stored, err := f.backend.Transactions().FindByReference(ctx, debit.Reference)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, tran := range stored {
		require.NotNil(t, tran.LinkedTransactionID)
		if tran.ID == debit.ID {
			assert.Equal(t, credit.ID, *tran.LinkedTransactionID)
		} else {
			assert.Equal(t, credit.ID, tran.ID)
			assert.Equal(t, debit.ID, *tran.LinkedTransactionID)
		}
	}
}

func testTransferSameAccount(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	a := f.open(t, "alice", domain.CurrencyUSD, 100)

	for _, v := range []int64{-5, 0, 1, 100, 1000} {
		_, err := f.ledger.Transfer(context.Background(), "alice", usecase.TransferCommand{
			FromAccountID: a.ID,
			ToAccountID:   a.ID,
			Amount:        amount(v),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest, "amount %d", v)
	}
	assert.True(t, amount(100).Equal(f.balance(t, a.ID)))
	assert.Equal(t, int64(1), f.count(t, a.ID))
}

func testTransferFailures(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	ctx := context.Background()
	usd := f.open(t, "alice", domain.CurrencyUSD, 100)
	ngn := f.open(t, "bob", domain.CurrencyNGN, 100)
	bobUSD := f.open(t, "bob", domain.CurrencyUSD, 0)

	tests := []struct {
		name string
		cmd  usecase.TransferCommand
		want error
	}{
		{
			name: "missing destination",
			cmd:  usecase.TransferCommand{FromAccountID: usd.ID, ToAccountID: uuid.New(), Amount: amount(1)},
			want: domain.ErrNotFound,
		},
		{
			name: "missing source",
			cmd:  usecase.TransferCommand{FromAccountID: uuid.New(), ToAccountID: usd.ID, Amount: amount(1)},
			want: domain.ErrNotFound,
		},
		{
			name: "source not owned",
			cmd:  usecase.TransferCommand{FromAccountID: bobUSD.ID, ToAccountID: usd.ID, Amount: amount(1)},
			want: domain.ErrNotFound,
		},
		{
			name: "currency mismatch",
			cmd:  usecase.TransferCommand{FromAccountID: usd.ID, ToAccountID: ngn.ID, Amount: amount(1)},
			want: domain.ErrCurrencyMismatch,
		},
		{
			name: "insufficient funds",
			cmd:  usecase.TransferCommand{FromAccountID: usd.ID, ToAccountID: bobUSD.ID, Amount: amount(101)},
			want: domain.ErrInsufficientFunds,
		},
		{
			name: "bad amount",
			cmd:  usecase.TransferCommand{FromAccountID: usd.ID, ToAccountID: bobUSD.ID, Amount: amount(0)},
			want: domain.ErrInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Transfer(ctx, "alice", tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.True(t, amount(100).Equal(f.balance(t, usd.ID)))
	assert.True(t, amount(100).Equal(f.balance(t, ngn.ID)))
	assert.True(t, decimal.Zero.Equal(f.balance(t, bobUSD.ID)))
	assert.Equal(t, int64(1), f.count(t, usd.ID))
	assert.Equal(t, int64(0), f.count(t, bobUSD.ID))
}

func testOwnership(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	ctx := context.Background()
	a := f.open(t, "alice", domain.CurrencyUSD, 100)
	b := f.open(t, "bob", domain.CurrencyUSD, 0)

	_, err := f.ledger.Deposit(ctx, "mallory", usecase.MovementCommand{AccountID: a.ID, Amount: amount(1)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.ledger.Withdraw(ctx, "mallory", usecase.MovementCommand{AccountID: a.ID, Amount: amount(1)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.ledger.Transfer(ctx, "mallory", usecase.TransferCommand{FromAccountID: a.ID, ToAccountID: b.ID, Amount: amount(1)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.ledger.History(ctx, "mallory", usecase.HistoryQuery{AccountID: a.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// 不存在與非本人無法區分
	_, errMissing := f.ledger.Deposit(ctx, "alice", usecase.MovementCommand{AccountID: uuid.New(), Amount: amount(1)})
	_, errForeign := f.ledger.Deposit(ctx, "alice", usecase.MovementCommand{AccountID: b.ID, Amount: amount(1)})
	require.Error(t, errMissing)
	require.Error(t, errForeign)
	assert.Equal(t, errMissing.Error(), errForeign.Error())

	assert.Equal(t, int64(1), f.count(t, a.ID))
	assert.Equal(t, int64(0), f.count(t, b.ID))
}

func testConcurrentWithdraw(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	account := f.open(t, "alice", domain.CurrencyUSD, 100)

	const attempts = 2
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := f.ledger.Withdraw(context.Background(), "alice", usecase.MovementCommand{
				AccountID: account.ID,
				Amount:    amount(100),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], domain.ErrInsufficientFunds)
	assert.True(t, decimal.Zero.Equal(f.balance(t, account.ID)))
}

func testConcurrentOppositeTransfers(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	a := f.open(t, "alice", domain.CurrencyUSD, 1000)
	b := f.open(t, "bob", domain.CurrencyUSD, 1000)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := f.ledger.Transfer(context.Background(), "alice", usecase.TransferCommand{
				FromAccountID: a.ID, ToAccountID: b.ID, Amount: amount(1),
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.ledger.Transfer(context.Background(), "bob", usecase.TransferCommand{
				FromAccountID: b.ID, ToAccountID: a.ID, Amount: amount(1),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.True(t, amount(1000).Equal(f.balance(t, a.ID)))
	assert.True(t, amount(1000).Equal(f.balance(t, b.ID)))
	assert.Equal(t, int64(1+2*n), f.count(t, a.ID))
}

// testRandomInterleaving 隨機交錯的存提款，任何時候已提交餘額都不可為負，且等於成功操作的淨額
func testRandomInterleaving(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	account := f.open(t, "alice", domain.CurrencyUSD, 20)

	const workers = 8
	const perWorker = 25
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		net = amount(20)
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				v := amount(int64((seed*31+i*17)%13 + 1))
				cmd := usecase.MovementCommand{AccountID: account.ID, Amount: v}
				var err error
				withdraw := (seed+i)%2 == 0
				if withdraw {
					_, err = f.ledger.Withdraw(context.Background(), "alice", cmd)
				} else {
					_, err = f.ledger.Deposit(context.Background(), "alice", cmd)
				}
				if err != nil {
					if !errors.Is(err, domain.ErrInsufficientFunds) {
						t.Errorf("unexpected error: %v", err)
					}
					continue
				}
				mu.Lock()
				if withdraw {
					net = net.Sub(v)
				} else {
					net = net.Add(v)
				}
				mu.Unlock()

				observed, err := f.backend.Accounts().FindByID(context.Background(), account.ID)
				if err != nil {
					t.Errorf("read balance: %v", err)
				} else if observed.Balance < 0 {
					t.Errorf("observed negative balance %d", observed.Balance)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.True(t, net.Equal(f.balance(t, account.ID)), "balance must equal the net of successful operations")
}

func testHistoryPagination(t *testing.T, factory Factory) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var (
		clockMu sync.Mutex
		tick    int
	)
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	f := newFixture(t, factory, usecase.WithClock(clock))
	ctx := context.Background()
	account := f.open(t, "alice", domain.CurrencyUSD, 0)

	for i := 1; i <= 15; i++ {
		_, err := f.ledger.Deposit(ctx, "alice", usecase.MovementCommand{
			AccountID: account.ID,
			Amount:    amount(int64(i)),
			Narration: fmt.Sprintf("deposit %d", i),
		})
		require.NoError(t, err)
	}

	page1, err := f.ledger.History(ctx, "alice", usecase.HistoryQuery{
		AccountID:  account.ID,
		Pagination: domain.Pagination{Page: 1, Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, page1.Items, 10)
	assert.Equal(t, int64(15), page1.Total)
	assert.Equal(t, 2, page1.PageCount)
	assert.True(t, page1.NextPage)
	assert.Zero(t, page1.Skipped)
	assert.Equal(t, "deposit 15", page1.Items[0].Narration, "newest first")
	for i := 1; i < len(page1.Items); i++ {
		assert.False(t, page1.Items[i].CreatedAt.After(page1.Items[i-1].CreatedAt))
	}

	page2, err := f.ledger.History(ctx, "alice", usecase.HistoryQuery{
		AccountID:  account.ID,
		Pagination: domain.Pagination{Page: 2, Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, page2.Items, 5)
	assert.False(t, page2.NextPage)
	assert.Equal(t, 10, page2.Skipped)
	assert.Equal(t, "deposit 1", page2.Items[4].Narration)

	_, err = f.ledger.History(ctx, "alice", usecase.HistoryQuery{
		AccountID:  account.ID,
		Pagination: domain.Pagination{Page: -1},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	// 跳過筆數剛好落在 int 範圍內的最後一頁：空頁且沒有下一頁
	farPage := math.MaxInt/10 + 1
	far, err := f.ledger.History(ctx, "alice", usecase.HistoryQuery{
		AccountID:  account.ID,
		Pagination: domain.Pagination{Page: farPage, Limit: 10},
	})
	require.NoError(t, err)
	assert.Empty(t, far.Items)
	assert.Equal(t, int64(15), far.Total)
	assert.False(t, far.NextPage)
	assert.Equal(t, (farPage-1)*10, far.Skipped)

	for _, page := range []int{farPage + 1, math.MaxInt64 / 5, math.MaxInt} {
		_, err = f.ledger.History(ctx, "alice", usecase.HistoryQuery{
			AccountID:  account.ID,
			Pagination: domain.Pagination{Page: page, Limit: 10},
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest, "page %d", page)
	}
}

func testHistoryFilters(t *testing.T, factory Factory) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var (
		clockMu sync.Mutex
		tick    int
	)
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Hour)
	}
	f := newFixture(t, factory, usecase.WithClock(clock))
	ctx := context.Background()
	a := f.open(t, "alice", domain.CurrencyUSD, 0)
	b := f.open(t, "bob", domain.CurrencyUSD, 0)

	var created []*domain.Transaction
	for i := 0; i < 3; i++ {
		tran, err := f.ledger.Deposit(ctx, "alice", usecase.MovementCommand{AccountID: a.ID, Amount: amount(10)})
		require.NoError(t, err)
		created = append(created, tran)
	}
	transfer, err := f.ledger.Transfer(ctx, "alice", usecase.TransferCommand{FromAccountID: a.ID, ToAccountID: b.ID, Amount: amount(5)})
	require.NoError(t, err)
	withdrawal, err := f.ledger.Withdraw(ctx, "alice", usecase.MovementCommand{AccountID: a.ID, Amount: amount(1)})
	require.NoError(t, err)

	debits, err := f.ledger.History(ctx, "alice", usecase.HistoryQuery{
		AccountID: a.ID,
		Filter:    domain.TransactionFilter{Type: domain.TransactionTypeDebit},
	})
	require.NoError(t, err)
	require.Len(t, debits.Items, 2)
	assert.Equal(t, withdrawal.ID, debits.Items[0].ID)
	assert.Equal(t, transfer.Debit.ID, debits.Items[1].ID)

	byRef, err := f.ledger.History(ctx, "alice", usecase.HistoryQuery{
		AccountID: a.ID,
		Filter:    domain.TransactionFilter{Reference: transfer.Debit.Reference},
	})
	require.NoError(t, err)
	require.Len(t, byRef.Items, 1, "only the record on the queried account")

	from := created[1].CreatedAt
	to := created[2].CreatedAt
	ranged, err := f.ledger.History(ctx, "alice", usecase.HistoryQuery{
		AccountID: a.ID,
		Filter:    domain.TransactionFilter{FromDate: &from, ToDate: &to},
	})
	require.NoError(t, err)
	require.Len(t, ranged.Items, 2, "date range is inclusive on both ends")
	assert.Equal(t, created[2].ID, ranged.Items[0].ID)
	assert.Equal(t, created[1].ID, ranged.Items[1].ID)

	openEnded, err := f.ledger.History(ctx, "alice", usecase.HistoryQuery{
		AccountID: a.ID,
		Filter:    domain.TransactionFilter{FromDate: &to},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), openEnded.Total)

	_, err = f.ledger.History(ctx, "alice", usecase.HistoryQuery{
		AccountID: a.ID,
		Filter:    domain.TransactionFilter{FromDate: &to, ToDate: &from},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func testTransactionsByReference(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	ctx := context.Background()
	a := f.open(t, "alice", domain.CurrencyUSD, 100)
	b := f.open(t, "bob", domain.CurrencyUSD, 0)

	result, err := f.ledger.Transfer(ctx, "alice", usecase.TransferCommand{FromAccountID: a.ID, ToAccountID: b.ID, Amount: amount(10)})
	require.NoError(t, err)

	mine, err := f.ledger.TransactionsByReference(ctx, "alice", result.Debit.Reference)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, result.Debit.ID, mine[0].ID)

	theirs, err := f.ledger.TransactionsByReference(ctx, "bob", result.Debit.Reference)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, result.Credit.ID, theirs[0].ID)

	_, err = f.ledger.TransactionsByReference(ctx, "mallory", result.Debit.Reference)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.ledger.TransactionsByReference(ctx, "alice", "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func testAbortRollsBack(t *testing.T, factory Factory) {
	f := newFixture(t, factory)
	ctx := context.Background()
	account := f.open(t, "alice", domain.CurrencyUSD, 100)
	boom := errors.New("boom")

	err := f.backend.Run(ctx, func(ctx context.Context, store usecase.Store) error {
		found, err := store.Accounts().FindForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}
		locked := found[account.ID]
		locked.Balance = 0
		if err := store.Accounts().UpdateBalance(ctx, locked); err != nil {
			return err
		}
		err = store.Transactions().Create(ctx, &domain.Transaction{
			ID:        uuid.New(),
			AccountID: account.ID,
			Type:      domain.TransactionTypeDebit,
			Amount:    100 * domain.CurrencyScale,
			Reference: usecase.NewReference(),
			CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		})
		if err != nil {
			return err
		}

		inside, err := store.Accounts().FindByID(ctx, account.ID)
		if err != nil {
			return err
		}
		if inside.Balance != 0 {
			return fmt.Errorf("unit should read its own write, got %d", inside.Balance)
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, amount(100).Equal(f.balance(t, account.ID)))
	assert.Equal(t, int64(1), f.count(t, account.ID))
}
