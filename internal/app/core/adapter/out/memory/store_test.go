package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/storetest"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

func TestStoreSuite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) usecase.Backend {
		s, err := NewStore(nil)
		require.NoError(t, err)
		return s
	})
}

func TestStoreSuiteWithWAL(t *testing.T) {
	storetest.Run(t, func(t *testing.T) usecase.Backend {
		w, err := OpenJournal(filepath.Join(t.TempDir(), "ledger.wal"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = w.Close() })
		s, err := NewStore(w)
		require.NoError(t, err)
		return s
	})
}

func TestStoreRecoversFromWAL(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.wal")

	w, err := OpenJournal(path)
	require.NoError(t, err)
	s, err := NewStore(w)
	require.NoError(t, err)

	accounts := usecase.NewAccountUseCase(s)
	ledger := usecase.NewCoreUseCase(s)
	alice, err := accounts.CreateAccount(ctx, "alice", domain.CurrencyUSD)
	require.NoError(t, err)
	bob, err := accounts.CreateAccount(ctx, "bob", domain.CurrencyUSD)
	require.NoError(t, err)

	_, err = ledger.Deposit(ctx, "alice", usecase.MovementCommand{AccountID: alice.ID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	transfer, err := ledger.Transfer(ctx, "alice", usecase.TransferCommand{
		FromAccountID: alice.ID,
		ToAccountID:   bob.ID,
		Amount:        decimal.RequireFromString("12.5"),
	})
	require.NoError(t, err)
	_, err = ledger.Withdraw(ctx, "alice", usecase.MovementCommand{AccountID: alice.ID, Amount: decimal.NewFromInt(1000)})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.NoError(t, w.Close())

	reopened, err := OpenJournal(path)
	require.NoError(t, err)
	defer reopened.Close()
	recovered, err := NewStore(reopened)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), recovered.lastSequence, "rejected operations never reach the log")

	got, err := recovered.Accounts().FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(875_000), got.Balance)
	assert.Equal(t, alice.AccountNumber, got.AccountNumber)

	got, err = recovered.Accounts().FindByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(125_000), got.Balance)

	pair, err := recovered.Transactions().FindByReference(ctx, transfer.Debit.Reference)
	require.NoError(t, err)
	require.Len(t, pair, 2)
	require.NotNil(t, pair[0].LinkedTransactionID)
	assert.Equal(t, pair[1].ID, *pair[0].LinkedTransactionID)

	_, err = usecase.NewAccountUseCase(recovered).CreateAccount(ctx, "alice", domain.CurrencyUSD)
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists, "uniqueness index is rebuilt")

	// 恢復後可繼續寫入，序號接續
	_, err = usecase.NewCoreUseCase(recovered).Deposit(ctx, "bob", usecase.MovementCommand{AccountID: bob.ID, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), recovered.lastSequence)
}

func TestStoreRecoveryIgnoresTornCommit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.wal")

	w, err := OpenJournal(path)
	require.NoError(t, err)
	s, err := NewStore(w)
	require.NoError(t, err)
	account, err := usecase.NewAccountUseCase(s).CreateAccount(ctx, "alice", domain.CurrencyUSD)
	require.NoError(t, err)
	_, err = usecase.NewCoreUseCase(s).Deposit(ctx, "alice", usecase.MovementCommand{AccountID: account.ID, Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// 模擬提交寫到一半就崩潰
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString(`{"kind":"commit","seq":2,"balances":{"`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := OpenJournal(path)
	require.NoError(t, err)
	defer reopened.Close()
	recovered, err := NewStore(reopened)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), recovered.lastSequence)
	assert.Equal(t, 2, reopened.Len())

	got, err := recovered.Accounts().FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), got.Balance)

	_, err = usecase.NewCoreUseCase(recovered).Deposit(ctx, "alice", usecase.MovementCommand{AccountID: account.ID, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), recovered.lastSequence)
}

func TestStoreStagedWritesInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(nil)
	require.NoError(t, err)
	account, err := usecase.NewAccountUseCase(s).CreateAccount(ctx, "alice", domain.CurrencyNGN)
	require.NoError(t, err)

	inside := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, store usecase.Store) error {
			found, err := store.Accounts().FindForUpdate(ctx, account.ID)
			if err != nil {
				return err
			}
			locked := found[account.ID]
			locked.Balance = 42
			if err := store.Accounts().UpdateBalance(ctx, locked); err != nil {
				return err
			}
			close(inside)
			<-proceed
			return nil
		})
	}()

	<-inside
	committed, err := s.Accounts().FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, committed.Balance)
	close(proceed)
	require.NoError(t, <-done)

	committed, err = s.Accounts().FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), committed.Balance)
}

func TestStoreLockWaitHonoursContext(t *testing.T) {
	s, err := NewStore(nil)
	require.NoError(t, err)
	account, err := usecase.NewAccountUseCase(s).CreateAccount(context.Background(), "alice", domain.CurrencyUSD)
	require.NoError(t, err)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Run(context.Background(), func(ctx context.Context, store usecase.Store) error {
			if _, err := store.Accounts().FindForUpdate(ctx, account.ID); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.Run(ctx, func(ctx context.Context, store usecase.Store) error {
		_, err := store.Accounts().FindForUpdate(ctx, account.ID)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreOutsideUnit(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(nil)
	require.NoError(t, err)

	_, err = s.Accounts().FindForUpdate(ctx, uuid.New())
	assert.ErrorIs(t, err, errOutsideUnit)
	assert.ErrorIs(t, s.Accounts().UpdateBalance(ctx, &domain.Account{ID: uuid.New()}), errOutsideUnit)
	assert.ErrorIs(t, s.Transactions().Create(ctx, &domain.Transaction{Amount: 1}), errOutsideUnit)

	err = s.Run(ctx, func(ctx context.Context, store usecase.Store) error {
		return store.Accounts().UpdateBalance(ctx, &domain.Account{ID: uuid.New()})
	})
	assert.ErrorIs(t, err, errNotLocked)
}

func TestFindMatchingOrdersNewestFirst(t *testing.T) {
	id := uuid.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewStore(nil)
	require.NoError(t, err)

	// 刻意亂序寫入
	for _, offset := range []int{3, 1, 2, 5, 4} {
		s.insertTransaction(&domain.Transaction{
			ID:        uuid.New(),
			AccountID: id,
			Type:      domain.TransactionTypeCredit,
			Amount:    int64(offset),
			Reference: usecase.NewReference(),
			CreatedAt: base.Add(time.Duration(offset) * time.Minute),
		})
	}
	items, total := s.findTransactions(domain.TransactionQuery{AccountID: id, Offset: 1, Limit: 3}, nil)
	assert.Equal(t, int64(5), total)
	require.Len(t, items, 3)
	assert.Equal(t, []int64{4, 3, 2}, []int64{items[0].Amount, items[1].Amount, items[2].Amount})
}
