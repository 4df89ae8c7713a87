package usecase

import (
	"context"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// AccountStore 帳戶儲存介面，唯一擁有餘額寫入權限
type AccountStore interface {
	// Create 建立帳戶；(owner, currency) 重複回傳 ErrAccountAlreadyExists，帳號重複回傳 ErrDuplicateAccountNumber
	Create(ctx context.Context, account *domain.Account) error
	// FindByID 找不到回傳 ErrNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	// FindByOwner 列出擁有者所有帳戶
	FindByOwner(ctx context.Context, ownerID string) ([]*domain.Account, error)
	// FindForUpdate 依遞增 ID 順序鎖定帳戶直到原子單元結束，不存在的 ID 不會出現在結果中
	FindForUpdate(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error)
	// UpdateBalance 寫入已鎖定帳戶的新餘額
	UpdateBalance(ctx context.Context, account *domain.Account) error
}

// TransactionStore 交易紀錄儲存介面，只能新增不能修改
type TransactionStore interface {
	// Create 一次寫入多筆紀錄，全部成功或全部失敗
	Create(ctx context.Context, txs ...*domain.Transaction) error
	// FindMatching 依條件查詢，依建立時間新到舊排序，並回傳符合條件的總筆數
	FindMatching(ctx context.Context, query domain.TransactionQuery) ([]*domain.Transaction, int64, error)
	// FindByReference 查詢同一 reference 的所有紀錄
	FindByReference(ctx context.Context, reference string) ([]*domain.Transaction, error)
}

// Store 一組可一起操作的儲存介面
type Store interface {
	Accounts() AccountStore
	Transactions() TransactionStore
}

// UnitOfWork 在原子單元內執行的工作
type UnitOfWork func(ctx context.Context, store Store) error

// Executor 原子執行器：fn 回傳 nil 時提交，否則回滾並原樣回傳錯誤
type Executor interface {
	Run(ctx context.Context, fn UnitOfWork) error
}

// Backend 儲存後端：非交易讀取用的 Store 加上原子執行器
type Backend interface {
	Store
	Executor
}
