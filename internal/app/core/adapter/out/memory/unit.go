package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

// lockTable 每個帳戶一把可被 context 取消的鎖 (容量 1 的 channel)
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uuid.UUID]chan struct{})}
}

func (t *lockTable) get(id uuid.UUID) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[id] = ch
	}
	return ch
}

func (t *lockTable) acquire(ctx context.Context, id uuid.UUID) error {
	select {
	case t.get(id) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *lockTable) release(id uuid.UUID) {
	<-t.get(id)
}

// unit 一個原子單元：持有的帳戶鎖 + 暫存寫入，提交前對外不可見
type unit struct {
	s        *Store
	held     map[uuid.UUID]struct{}
	order    []uuid.UUID
	balances map[uuid.UUID]int64
	staged   []*domain.Transaction
}

func newUnit(s *Store) *unit {
	return &unit{
		s:        s,
		held:     make(map[uuid.UUID]struct{}),
		balances: make(map[uuid.UUID]int64),
	}
}

func (u *unit) Accounts() usecase.AccountStore {
	return unitAccounts{u}
}

func (u *unit) Transactions() usecase.TransactionStore {
	return unitTransactions{u}
}

// lock 依 LockOrder 取得尚未持有的帳戶鎖，不存在的帳戶略過
func (u *unit) lock(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range domain.LockOrder(ids...) {
		if _, ok := u.held[id]; ok {
			continue
		}
		if !u.s.hasAccount(id) {
			continue
		}
		if err := u.s.accountLocks.acquire(ctx, id); err != nil {
			return err
		}
		u.held[id] = struct{}{}
		u.order = append(u.order, id)
	}
	return nil
}

// release 釋放所有持有的鎖 (反向順序)
func (u *unit) release() {
	for i := len(u.order) - 1; i >= 0; i-- {
		u.s.accountLocks.release(u.order[i])
	}
	u.order = nil
	u.held = make(map[uuid.UUID]struct{})
}

// view 已提交帳戶加上本單元暫存的餘額
func (u *unit) view(id uuid.UUID) (*domain.Account, bool) {
	account, ok := u.s.getAccount(id)
	if !ok {
		return nil, false
	}
	if balance, staged := u.balances[id]; staged {
		account.Balance = balance
	}
	return account, true
}

// commit 先寫 WAL 再一次套用到記憶體
func (u *unit) commit() error {
	if len(u.balances) == 0 && len(u.staged) == 0 {
		return nil
	}
	for id, balance := range u.balances {
		if balance < 0 {
			return fmt.Errorf("memory: refusing to commit negative balance for %s: %w", id, domain.ErrInsufficientFunds)
		}
	}

	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now().UTC()
	seq := s.lastSequence + 1
	if s.journal != nil {
		if err := s.journal.Append(newCommitRecord(seq, at, u.balances, u.staged)); err != nil {
			return fmt.Errorf("%w: %w", ErrWALWriteFailed, err)
		}
	}
	if err := s.applyCommit(u.balances, u.staged, at); err != nil {
		return err
	}
	s.lastSequence = seq
	return nil
}

// unitAccounts 原子單元內的 AccountStore
type unitAccounts struct {
	u *unit
}

func (unitAccounts) Create(context.Context, *domain.Account) error {
	return errors.New("memory: account creation inside a unit of work is not supported")
}

func (a unitAccounts) FindByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	account, ok := a.u.view(id)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

func (a unitAccounts) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	accounts, err := a.u.s.Accounts().FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if balance, ok := a.u.balances[account.ID]; ok {
			account.Balance = balance
		}
	}
	return accounts, nil
}

func (a unitAccounts) FindForUpdate(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	if err := a.u.lock(ctx, ids); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range ids {
		if _, ok := a.u.held[id]; !ok {
			continue
		}
		if account, ok := a.u.view(id); ok {
			out[id] = account
		}
	}
	return out, nil
}

func (a unitAccounts) UpdateBalance(_ context.Context, account *domain.Account) error {
	if _, ok := a.u.held[account.ID]; !ok {
		return errNotLocked
	}
	if account.Balance < 0 {
		return domain.ErrInsufficientFunds
	}
	a.u.balances[account.ID] = account.Balance
	return nil
}

// unitTransactions 原子單元內的 TransactionStore，寫入在提交前只有本單元看得到
type unitTransactions struct {
	u *unit
}

func (t unitTransactions) Create(_ context.Context, txs ...*domain.Transaction) error {
	for _, tran := range txs {
		if tran.Amount <= 0 {
			return domain.ErrAmountMustBePositive
		}
	}
	for _, tran := range txs {
		t.u.staged = append(t.u.staged, tran.Clone())
	}
	return nil
}

func (t unitTransactions) FindMatching(_ context.Context, query domain.TransactionQuery) ([]*domain.Transaction, int64, error) {
	items, total := t.u.s.findTransactions(query, t.u.staged)
	return items, total, nil
}

func (t unitTransactions) FindByReference(ctx context.Context, reference string) ([]*domain.Transaction, error) {
	out, err := t.u.s.Transactions().FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	for _, tran := range t.u.staged {
		if tran.Reference == reference {
			out = append(out, tran.Clone())
		}
	}
	return out, nil
}

var _ usecase.Store = (*unit)(nil)
