package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/mysql"
)

var errOutsideUnit = errors.New("mysql: FindForUpdate requires a unit of work")

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID            string    `gorm:"primaryKey;type:char(36)"`
	OwnerID       string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_accounts_owner_currency,priority:1"`
	Currency      string    `gorm:"type:varchar(3);not null;uniqueIndex:idx_accounts_owner_currency,priority:2"`
	Balance       int64     `gorm:"not null;default:0;check:chk_accounts_balance,balance >= 0"`
	AccountNumber string    `gorm:"type:char(10);not null;uniqueIndex"`
	CreatedAt     time.Time `gorm:"type:datetime(6);not null"`
	UpdatedAt     time.Time `gorm:"type:datetime(6);not null"`
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlTransaction 對應資料庫的 transactions 表
// Seq 為寫入順序，同一時間的紀錄以它排序
type sqlTransaction struct {
	Seq                 int64     `gorm:"primaryKey;autoIncrement"`
	ID                  string    `gorm:"type:char(36);not null;uniqueIndex"`
	AccountID           string    `gorm:"type:char(36);not null;index:idx_transactions_account_created,priority:1"`
	Type                string    `gorm:"type:varchar(6);not null"`
	Amount              int64     `gorm:"not null;check:chk_transactions_amount,amount > 0"`
	Narration           string    `gorm:"type:varchar(255);not null;default:''"`
	Reference           string    `gorm:"type:varchar(32);not null;index"`
	LinkedTransactionID *string   `gorm:"type:char(36)"`
	CreatedAt           time.Time `gorm:"type:datetime(6);not null;index:idx_transactions_account_created,priority:2"`
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

// Store 以 GORM 實作的 MySQL 帳本儲存
// 原子單元對應一個資料庫 transaction，帳戶以 SELECT ... FOR UPDATE 悲觀鎖定
type Store struct {
	db   *gorm.DB
	inTx bool
}

// NewStore 建立 MySQL Store
func NewStore(client *mysql.Client) *Store {
	return &Store{db: client.DB()}
}

// Migrate 建立或更新資料表
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlTransaction{})
}

func (s *Store) Accounts() usecase.AccountStore {
	return accountRepo{db: s.db, inTx: s.inTx}
}

func (s *Store) Transactions() usecase.TransactionStore {
	return transactionRepo{db: s.db}
}

// Run 在資料庫 transaction 內執行 fn，fn 回傳錯誤時 rollback
func (s *Store) Run(ctx context.Context, fn usecase.UnitOfWork) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &Store{db: tx, inTx: true})
	})
}

type accountRepo struct {
	db   *gorm.DB
	inTx bool
}

func (r accountRepo) Create(ctx context.Context, account *domain.Account) error {
	row := toSQLAccount(account)
	err := r.db.WithContext(ctx).Create(row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return r.classifyDuplicate(ctx, account)
	}
	return err
}

// classifyDuplicate 判斷撞到的是 (owner, currency) 還是帳號
func (r accountRepo) classifyDuplicate(ctx context.Context, account *domain.Account) error {
	var count int64
	err := r.db.WithContext(ctx).Model(&sqlAccount{}).
		Where("owner_id = ? AND currency = ?", account.OwnerID, string(account.Currency)).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrAccountAlreadyExists
	}
	return domain.ErrDuplicateAccountNumber
}

func (r accountRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var row sqlAccount
	err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (r accountRepo) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	var rows []sqlAccount
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("currency").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		account, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, nil
}

// FindForUpdate 取得鎖定帳號 悲觀鎖，依 id 遞增順序上鎖避免死結
func (r accountRepo) FindForUpdate(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	if !r.inTx {
		return nil, errOutsideUnit
	}
	order := domain.LockOrder(ids...)
	keys := make([]string, len(order))
	for i, id := range order {
		keys[i] = id.String()
	}

	var rows []sqlAccount
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", keys).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*domain.Account, len(rows))
	for i := range rows {
		account, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out[account.ID] = account
	}
	return out, nil
}

// UpdateBalance 寫回餘額，找不到帳戶時回傳 ErrAccountNotFound
// RowsAffected 依賴 DSN 的 clientFoundRows，餘額未變動的列也會被計入
func (r accountRepo) UpdateBalance(ctx context.Context, account *domain.Account) error {
	if account.Balance < 0 {
		return domain.ErrInsufficientFunds
	}
	res := r.db.WithContext(ctx).Model(&sqlAccount{}).
		Where("id = ?", account.ID.String()).
		Updates(map[string]any{
			"balance":    account.Balance,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

type transactionRepo struct {
	db *gorm.DB
}

// Create 一次 INSERT 多筆紀錄
func (r transactionRepo) Create(ctx context.Context, txs ...*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	rows := make([]*sqlTransaction, len(txs))
	for i, tran := range txs {
		if tran.Amount <= 0 {
			return domain.ErrAmountMustBePositive
		}
		rows[i] = toSQLTransaction(tran)
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r transactionRepo) FindMatching(ctx context.Context, query domain.TransactionQuery) ([]*domain.Transaction, int64, error) {
	filter := func(db *gorm.DB) *gorm.DB {
		db = db.Where("account_id = ?", query.AccountID.String())
		f := query.Filter
		if f.Type != "" {
			db = db.Where("type = ?", string(f.Type))
		}
		if f.Reference != "" {
			db = db.Where("reference = ?", f.Reference)
		}
		if f.FromDate != nil {
			db = db.Where("created_at >= ?", f.FromDate.UTC())
		}
		if f.ToDate != nil {
			db = db.Where("created_at <= ?", f.ToDate.UTC())
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&sqlTransaction{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []sqlTransaction
	err := r.db.WithContext(ctx).Scopes(filter).
		Order("created_at DESC").
		Order("seq DESC").
		Offset(query.Offset).
		Limit(query.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	items, err := toDomainTransactions(rows)
	return items, total, err
}

func (r transactionRepo) FindByReference(ctx context.Context, reference string) ([]*domain.Transaction, error) {
	var rows []sqlTransaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).Order("seq").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainTransactions(rows)
}

func toSQLAccount(account *domain.Account) *sqlAccount {
	return &sqlAccount{
		ID:            account.ID.String(),
		OwnerID:       account.OwnerID,
		Currency:      string(account.Currency),
		Balance:       account.Balance,
		AccountNumber: account.AccountNumber,
		CreatedAt:     account.CreatedAt.UTC(),
		UpdatedAt:     account.UpdatedAt.UTC(),
	}
}

func (row *sqlAccount) toDomain() (*domain.Account, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("mysql: bad account id %q: %w", row.ID, err)
	}
	return &domain.Account{
		ID:            id,
		OwnerID:       row.OwnerID,
		Currency:      domain.Currency(row.Currency),
		Balance:       row.Balance,
		AccountNumber: row.AccountNumber,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}, nil
}

func toSQLTransaction(tran *domain.Transaction) *sqlTransaction {
	row := &sqlTransaction{
		ID:        tran.ID.String(),
		AccountID: tran.AccountID.String(),
		Type:      string(tran.Type),
		Amount:    tran.Amount,
		Narration: tran.Narration,
		Reference: tran.Reference,
		CreatedAt: tran.CreatedAt.UTC(),
	}
	if tran.LinkedTransactionID != nil {
		linked := tran.LinkedTransactionID.String()
		row.LinkedTransactionID = &linked
	}
	return row
}

func toDomainTransactions(rows []sqlTransaction) ([]*domain.Transaction, error) {
	out := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, fmt.Errorf("mysql: bad transaction id %q: %w", row.ID, err)
		}
		accountID, err := uuid.Parse(row.AccountID)
		if err != nil {
			return nil, fmt.Errorf("mysql: bad account id %q: %w", row.AccountID, err)
		}
		tran := &domain.Transaction{
			ID:        id,
			AccountID: accountID,
			Type:      domain.TransactionType(row.Type),
			Amount:    row.Amount,
			Narration: row.Narration,
			Reference: row.Reference,
			CreatedAt: row.CreatedAt.UTC(),
		}
		if row.LinkedTransactionID != nil {
			linked, err := uuid.Parse(*row.LinkedTransactionID)
			if err != nil {
				return nil, fmt.Errorf("mysql: bad linked transaction id %q: %w", *row.LinkedTransactionID, err)
			}
			tran.LinkedTransactionID = &linked
		}
		out = append(out, tran)
	}
	return out, nil
}

var _ usecase.Backend = (*Store)(nil)
