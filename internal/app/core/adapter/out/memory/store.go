package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

var (
	// ErrWALWriteFailed WAL 寫入失敗，原子單元不會生效
	ErrWALWriteFailed = errors.New("wal write failed")

	errOutsideUnit = errors.New("memory: operation requires a unit of work")
	errNotLocked   = errors.New("memory: account must be locked with FindForUpdate before update")
)

type ownerCurrency struct {
	ownerID  string
	currency domain.Currency
}

// Store 是一個使用 Mutex 實現的帳本儲存
//
// 結構:
//
//	mu: 保護 accounts / transactions 等已提交狀態
//	accountLocks: 每個帳戶一把鎖，原子單元以遞增 ID 順序取得並持有到結束
//	journal: Write-Ahead Log，nil 代表純記憶體
type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]*domain.Account
	byOwner      map[ownerCurrency]uuid.UUID
	byNumber     map[string]uuid.UUID
	transactions []*domain.Transaction
	byReference  map[string][]*domain.Transaction
	lastSequence uint64
	accountLocks *lockTable
	journal      *Journal
	now          func() time.Time
}

// NewStore 建立一個新的 Store 實例，若有 WAL 會先從檔案恢復狀態
//
// 參數:
//
//	j: OpenJournal 開啟的 WAL，可為 nil
//
// 回傳:
//
//	*Store: Store 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewStore(j *Journal) (*Store, error) {
	s := &Store{
		accounts:     make(map[uuid.UUID]*domain.Account),
		byOwner:      make(map[ownerCurrency]uuid.UUID),
		byNumber:     make(map[string]uuid.UUID),
		byReference:  make(map[string][]*domain.Transaction),
		accountLocks: newLockTable(),
		journal:      j,
		now:          time.Now,
	}
	if j != nil {
		if err := s.recoverFromWAL(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Accounts 非交易讀取用的 AccountStore
func (s *Store) Accounts() usecase.AccountStore {
	return committedAccounts{s}
}

// Transactions 非交易讀取用的 TransactionStore
func (s *Store) Transactions() usecase.TransactionStore {
	return committedTransactions{s}
}

// Run 執行原子單元：fn 成功時一次套用所有暫存寫入，失敗時丟棄
//
// 參數:
//
//	ctx: 上下文，等待帳戶鎖時會被尊重
//	fn: 要執行的工作
//
// 回傳:
//
//	error: fn 的原始錯誤或提交錯誤
func (s *Store) Run(ctx context.Context, fn usecase.UnitOfWork) error {
	u := newUnit(s)
	defer u.release()

	if err := fn(ctx, u); err != nil {
		return err
	}
	return u.commit()
}

// getAccount 讀取已提交的帳戶拷貝
func (s *Store) getAccount(id uuid.UUID) (*domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, false
	}
	return account.Clone(), true
}

func (s *Store) hasAccount(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[id]
	return ok
}

// findTransactions 在 mu 讀鎖下依新到舊查詢，staged 為原子單元內尚未提交的紀錄 (視為最新)
func (s *Store) findTransactions(query domain.TransactionQuery, staged []*domain.Transaction) ([]*domain.Transaction, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findMatching(query, s.transactions, staged)
}

func (s *Store) createAccount(account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerCurrency{ownerID: account.OwnerID, currency: account.Currency}
	if _, ok := s.byOwner[key]; ok {
		return domain.ErrAccountAlreadyExists
	}
	if _, ok := s.byNumber[account.AccountNumber]; ok {
		return domain.ErrDuplicateAccountNumber
	}
	if _, ok := s.accounts[account.ID]; ok {
		return fmt.Errorf("memory: account id %s already exists", account.ID)
	}

	if s.journal != nil {
		if err := s.journal.Append(newAccountRecord(account)); err != nil {
			return fmt.Errorf("%w: %w", ErrWALWriteFailed, err)
		}
	}
	s.insertAccount(account.Clone())
	return nil
}

// insertAccount 需持有 mu
func (s *Store) insertAccount(account *domain.Account) {
	s.accounts[account.ID] = account
	s.byOwner[ownerCurrency{ownerID: account.OwnerID, currency: account.Currency}] = account.ID
	s.byNumber[account.AccountNumber] = account.ID
}

// applyCommit 需持有 mu
func (s *Store) applyCommit(balances map[uuid.UUID]int64, txs []*domain.Transaction, at time.Time) error {
	for id := range balances {
		if _, ok := s.accounts[id]; !ok {
			return fmt.Errorf("memory: commit references unknown account %s", id)
		}
	}
	for id, balance := range balances {
		account := s.accounts[id]
		account.Balance = balance
		account.UpdatedAt = at
	}
	for _, tran := range txs {
		s.insertTransaction(tran)
	}
	return nil
}

// insertTransaction 依 CreatedAt 排序插入，同時間者維持寫入順序；需持有 mu
func (s *Store) insertTransaction(tran *domain.Transaction) {
	s.transactions = append(s.transactions, tran)
	for i := len(s.transactions) - 1; i > 0 && s.transactions[i-1].CreatedAt.After(tran.CreatedAt); i-- {
		s.transactions[i], s.transactions[i-1] = s.transactions[i-1], s.transactions[i]
	}
	s.byReference[tran.Reference] = append(s.byReference[tran.Reference], tran)
}

// committedAccounts 在原子單元外使用的 AccountStore
type committedAccounts struct {
	s *Store
}

func (c committedAccounts) Create(_ context.Context, account *domain.Account) error {
	return c.s.createAccount(account)
}

func (c committedAccounts) FindByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	account, ok := c.s.getAccount(id)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

func (c committedAccounts) FindByOwner(_ context.Context, ownerID string) ([]*domain.Account, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	out := make([]*domain.Account, 0, len(domain.Currencies))
	for _, currency := range domain.Currencies {
		if id, ok := c.s.byOwner[ownerCurrency{ownerID: ownerID, currency: currency}]; ok {
			out = append(out, c.s.accounts[id].Clone())
		}
	}
	return out, nil
}

func (committedAccounts) FindForUpdate(context.Context, ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	return nil, errOutsideUnit
}

func (committedAccounts) UpdateBalance(context.Context, *domain.Account) error {
	return errOutsideUnit
}

// committedTransactions 在原子單元外使用的 TransactionStore
type committedTransactions struct {
	s *Store
}

func (committedTransactions) Create(context.Context, ...*domain.Transaction) error {
	return errOutsideUnit
}

func (c committedTransactions) FindMatching(_ context.Context, query domain.TransactionQuery) ([]*domain.Transaction, int64, error) {
	items, total := c.s.findTransactions(query, nil)
	return items, total, nil
}

func (c committedTransactions) FindByReference(_ context.Context, reference string) ([]*domain.Transaction, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return cloneAll(c.s.byReference[reference]), nil
}

// findMatching 依新到舊走訪 lists (後面的 list 較新)，回傳分頁內容與總筆數
func findMatching(query domain.TransactionQuery, lists ...[]*domain.Transaction) ([]*domain.Transaction, int64) {
	var (
		total int64
		items = make([]*domain.Transaction, 0, query.Limit)
	)
	for l := len(lists) - 1; l >= 0; l-- {
		list := lists[l]
		for i := len(list) - 1; i >= 0; i-- {
			tran := list[i]
			if tran.AccountID != query.AccountID || !query.Filter.Match(tran) {
				continue
			}
			if total >= int64(query.Offset) && len(items) < query.Limit {
				items = append(items, tran.Clone())
			}
			total++
		}
	}
	return items, total
}

func cloneAll(in []*domain.Transaction) []*domain.Transaction {
	out := make([]*domain.Transaction, len(in))
	for i, tran := range in {
		out[i] = tran.Clone()
	}
	return out
}

var _ usecase.Backend = (*Store)(nil)
