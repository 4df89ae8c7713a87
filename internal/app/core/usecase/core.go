package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// 預設摘要
const (
	NarrationDeposit     = "Deposit"
	NarrationWithdrawal  = "Withdrawal"
	NarrationTransferOut = "Transfer out"
	NarrationTransferIn  = "Transfer in"
)

// MovementCommand 存款/提款請求
type MovementCommand struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Narration string
}

// TransferCommand 轉帳請求
type TransferCommand struct {
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        decimal.Decimal
	Narration     string
}

// HistoryQuery 歷史查詢請求
type HistoryQuery struct {
	AccountID  uuid.UUID
	Filter     domain.TransactionFilter
	Pagination domain.Pagination
}

// Option 設定 use case 的選項函數
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

// WithLogger 指定 logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock 指定時間來源 (測試用)
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CoreUseCase 是核心業務邏輯層：存款、提款、轉帳與歷史查詢
type CoreUseCase struct {
	backend  Backend
	recorder *Recorder
	logger   *zap.Logger
}

// NewCoreUseCase 建立核心 use case
func NewCoreUseCase(backend Backend, opts ...Option) *CoreUseCase {
	o := buildOptions(opts)
	return &CoreUseCase{
		backend:  backend,
		recorder: NewRecorder(o.now),
		logger:   o.logger,
	}
}

// Deposit 存款：驗證帳戶所有權 -> 增加餘額 -> 記錄一筆 CREDIT
//
// 參數:
//
//	ctx: 上下文
//	ownerID: 呼叫者身分
//	cmd: 存款內容
//
// 回傳:
//
//	*domain.Transaction: CREDIT 紀錄
//	error: ErrInvalidRequest / ErrNotFound / ErrAborted
func (c *CoreUseCase) Deposit(ctx context.Context, ownerID string, cmd MovementCommand) (*domain.Transaction, error) {
	amount, err := domain.ToMinorUnits(cmd.Amount)
	if err != nil {
		return nil, c.fail("deposit", err, zap.Stringer("account_id", cmd.AccountID))
	}

	var tran *domain.Transaction
	err = c.run(ctx, func(ctx context.Context, store Store) error {
		account, err := lockOwnedAccount(ctx, store.Accounts(), cmd.AccountID, ownerID)
		if err != nil {
			return err
		}
		if err := account.ApplyDelta(amount); err != nil {
			return err
		}
		if err := store.Accounts().UpdateBalance(ctx, account); err != nil {
			return err
		}
		tran, err = c.recorder.Record(ctx, store.Transactions(), Entry{
			AccountID: account.ID,
			Type:      domain.TransactionTypeCredit,
			Amount:    amount,
			Narration: narrationOr(cmd.Narration, NarrationDeposit),
		})
		return err
	})
	if err != nil {
		return nil, c.fail("deposit", err, zap.Stringer("account_id", cmd.AccountID))
	}

	c.logger.Info("deposit posted",
		zap.Stringer("account_id", tran.AccountID),
		zap.String("reference", tran.Reference),
		zap.Int64("amount", tran.Amount),
	)
	return tran, nil
}

// Withdraw 提款：驗證帳戶所有權 -> 檢查餘額 -> 扣款 -> 記錄一筆 DEBIT
//
// 回傳:
//
//	*domain.Transaction: DEBIT 紀錄
//	error: ErrInvalidRequest / ErrNotFound / ErrInsufficientFunds / ErrAborted
func (c *CoreUseCase) Withdraw(ctx context.Context, ownerID string, cmd MovementCommand) (*domain.Transaction, error) {
	amount, err := domain.ToMinorUnits(cmd.Amount)
	if err != nil {
		return nil, c.fail("withdraw", err, zap.Stringer("account_id", cmd.AccountID))
	}

	var tran *domain.Transaction
	err = c.run(ctx, func(ctx context.Context, store Store) error {
		account, err := lockOwnedAccount(ctx, store.Accounts(), cmd.AccountID, ownerID)
		if err != nil {
			return err
		}
		if err := account.ApplyDelta(-amount); err != nil {
			return err
		}
		if err := store.Accounts().UpdateBalance(ctx, account); err != nil {
			return err
		}
		tran, err = c.recorder.Record(ctx, store.Transactions(), Entry{
			AccountID: account.ID,
			Type:      domain.TransactionTypeDebit,
			Amount:    amount,
			Narration: narrationOr(cmd.Narration, NarrationWithdrawal),
		})
		return err
	})
	if err != nil {
		return nil, c.fail("withdraw", err, zap.Stringer("account_id", cmd.AccountID))
	}

	c.logger.Info("withdrawal posted",
		zap.Stringer("account_id", tran.AccountID),
		zap.String("reference", tran.Reference),
		zap.Int64("amount", tran.Amount),
	)
	return tran, nil
}

// Transfer 轉帳：同一原子單元內鎖定雙方帳戶、檢查所有權/幣別/餘額，
// 扣款與入帳後寫入互相連結的 DEBIT/CREDIT 兩筆紀錄。
// 目標帳戶不要求屬於呼叫者。
//
// 回傳:
//
//	*domain.TransferResult: 扣款與入帳紀錄
//	error: ErrInvalidRequest / ErrNotFound / ErrCurrencyMismatch / ErrInsufficientFunds / ErrAborted
func (c *CoreUseCase) Transfer(ctx context.Context, ownerID string, cmd TransferCommand) (*domain.TransferResult, error) {
	fields := []zap.Field{
		zap.Stringer("from_account_id", cmd.FromAccountID),
		zap.Stringer("to_account_id", cmd.ToAccountID),
	}
	if cmd.FromAccountID == cmd.ToAccountID {
		return nil, c.fail("transfer", fmt.Errorf("%w: cannot transfer to same account", domain.ErrInvalidRequest), fields...)
	}
	amount, err := domain.ToMinorUnits(cmd.Amount)
	if err != nil {
		return nil, c.fail("transfer", err, fields...)
	}

	var result *domain.TransferResult
	err = c.run(ctx, func(ctx context.Context, store Store) error {
		accounts, err := store.Accounts().FindForUpdate(ctx, cmd.FromAccountID, cmd.ToAccountID)
		if err != nil {
			return err
		}
		from, okFrom := accounts[cmd.FromAccountID]
		to, okTo := accounts[cmd.ToAccountID]
		if !okFrom || !okTo {
			return domain.ErrAccountNotFound
		}
		if !from.OwnedBy(ownerID) {
			return domain.ErrAccountNotFound
		}
		if from.Currency != to.Currency {
			return fmt.Errorf("%w: %s -> %s", domain.ErrCurrencyMismatch, from.Currency, to.Currency)
		}
		if err := from.ApplyDelta(-amount); err != nil {
			return err
		}
		if err := to.ApplyDelta(amount); err != nil {
			return err
		}
		for _, account := range []*domain.Account{from, to} {
			if err := store.Accounts().UpdateBalance(ctx, account); err != nil {
				return err
			}
		}
		result, err = c.recorder.RecordPair(ctx, store.Transactions(),
			Entry{
				AccountID: from.ID,
				Type:      domain.TransactionTypeDebit,
				Amount:    amount,
				Narration: narrationOr(cmd.Narration, NarrationTransferOut),
			},
			Entry{
				AccountID: to.ID,
				Type:      domain.TransactionTypeCredit,
				Amount:    amount,
				Narration: narrationOr(cmd.Narration, NarrationTransferIn),
			},
		)
		return err
	})
	if err != nil {
		return nil, c.fail("transfer", err, fields...)
	}

	c.logger.Info("transfer posted",
		append(fields,
			zap.String("reference", result.Debit.Reference),
			zap.Int64("amount", amount),
		)...,
	)
	return result, nil
}

// History 查詢帳戶交易紀錄 (新到舊)，不上鎖
func (c *CoreUseCase) History(ctx context.Context, ownerID string, query HistoryQuery) (*domain.Page[domain.Transaction], error) {
	page, err := query.Pagination.Normalize()
	if err != nil {
		return nil, c.fail("history", err, zap.Stringer("account_id", query.AccountID))
	}
	if err := query.Filter.Validate(); err != nil {
		return nil, c.fail("history", err, zap.Stringer("account_id", query.AccountID))
	}

	if _, err := findOwnedAccount(ctx, c.backend.Accounts(), query.AccountID, ownerID); err != nil {
		return nil, c.fail("history", err, zap.Stringer("account_id", query.AccountID))
	}

	items, total, err := c.backend.Transactions().FindMatching(ctx, domain.TransactionQuery{
		AccountID: query.AccountID,
		Filter:    query.Filter,
		Offset:    page.Offset(),
		Limit:     page.Limit,
	})
	if err != nil {
		return nil, c.fail("history", fmt.Errorf("%w: %w", domain.ErrAborted, err), zap.Stringer("account_id", query.AccountID))
	}
	return domain.NewPage(items, page, total), nil
}

// TransactionsByReference 依 reference 查詢紀錄，只回傳呼叫者自己帳戶上的紀錄
func (c *CoreUseCase) TransactionsByReference(ctx context.Context, ownerID string, reference string) ([]*domain.Transaction, error) {
	if reference == "" {
		return nil, c.fail("reference lookup", fmt.Errorf("%w: reference is required", domain.ErrInvalidRequest))
	}
	owned, err := c.backend.Accounts().FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, c.fail("reference lookup", fmt.Errorf("%w: %w", domain.ErrAborted, err))
	}
	ownedIDs := make(map[uuid.UUID]struct{}, len(owned))
	for _, account := range owned {
		ownedIDs[account.ID] = struct{}{}
	}

	all, err := c.backend.Transactions().FindByReference(ctx, reference)
	if err != nil {
		return nil, c.fail("reference lookup", fmt.Errorf("%w: %w", domain.ErrAborted, err))
	}
	out := make([]*domain.Transaction, 0, len(all))
	for _, tran := range all {
		if _, ok := ownedIDs[tran.AccountID]; ok {
			out = append(out, tran)
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrTransactionNotFound
	}
	return out, nil
}

// run 在原子單元內執行 fn，非業務錯誤一律包成 ErrAborted
func (c *CoreUseCase) run(ctx context.Context, fn UnitOfWork) error {
	err := c.backend.Run(ctx, fn)
	if err == nil || domain.IsBusiness(err) || errors.Is(err, domain.ErrAborted) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrAborted, err)
}

func (c *CoreUseCase) fail(op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	if domain.IsBusiness(err) {
		c.logger.Warn("ledger operation rejected", fields...)
	} else {
		c.logger.Error("ledger operation failed", fields...)
	}
	return err
}

// lockOwnedAccount 在原子單元內鎖定帳戶並驗證所有權；不存在與非本人一律回傳 ErrAccountNotFound
func lockOwnedAccount(ctx context.Context, accounts AccountStore, id uuid.UUID, ownerID string) (*domain.Account, error) {
	found, err := accounts.FindForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	account, ok := found[id]
	if !ok || !account.OwnedBy(ownerID) {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

// findOwnedAccount 不上鎖的所有權驗證
func findOwnedAccount(ctx context.Context, accounts AccountStore, id uuid.UUID, ownerID string) (*domain.Account, error) {
	account, err := accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrAborted, err)
	}
	if !account.OwnedBy(ownerID) {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

func narrationOr(narration, fallback string) string {
	if narration == "" {
		return fallback
	}
	return narration
}
