package usecase

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// 帳號碰撞時的最大重試次數
const maxAccountNumberAttempts = 5

// AccountUseCase 帳戶建立與查詢
type AccountUseCase struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time
	// newNumber 帳號產生器，測試時可替換
	newNumber func() string
}

// NewAccountUseCase 建立帳戶 use case
func NewAccountUseCase(backend Backend, opts ...Option) *AccountUseCase {
	o := buildOptions(opts)
	return &AccountUseCase{
		backend:   backend,
		logger:    o.logger,
		now:       o.now,
		newNumber: NewAccountNumber,
	}
}

// NewAccountNumber 產生 10 位數字帳號
func NewAccountNumber() string {
	u := uuid.New()
	n := binary.BigEndian.Uint64(u[:8]) % 10_000_000_000
	return fmt.Sprintf("%0*d", domain.AccountNumberLength, n)
}

// CreateAccount 為擁有者建立指定幣別的帳戶，同一幣別只能有一個
//
// 參數:
//
//	ctx: 上下文
//	ownerID: 擁有者
//	currency: 幣別
//
// 回傳:
//
//	*domain.Account: 新帳戶 (餘額 0)
//	error: ErrInvalidRequest / ErrAccountAlreadyExists / ErrAborted
func (a *AccountUseCase) CreateAccount(ctx context.Context, ownerID string, currency domain.Currency) (*domain.Account, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrInvalidRequest)
	}
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: unsupported currency %q", domain.ErrInvalidRequest, currency)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAccountNumberAttempts; attempt++ {
		now := a.now().UTC().Truncate(time.Microsecond)
		account := &domain.Account{
			ID:            uuid.New(),
			OwnerID:       ownerID,
			Currency:      currency,
			AccountNumber: a.newNumber(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err := a.backend.Accounts().Create(ctx, account)
		switch {
		case err == nil:
			a.logger.Info("account created",
				zap.Stringer("account_id", account.ID),
				zap.String("owner_id", ownerID),
				zap.String("currency", string(currency)),
			)
			return account.Clone(), nil
		case errors.Is(err, domain.ErrDuplicateAccountNumber):
			a.logger.Debug("account number collision, retrying", zap.Int("attempt", attempt))
			lastErr = err
			continue
		case errors.Is(err, domain.ErrAccountAlreadyExists):
			return nil, fmt.Errorf("%w: owner already has a %s account", domain.ErrAccountAlreadyExists, currency)
		default:
			a.logger.Error("create account failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", domain.ErrAborted, err)
		}
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrAborted, lastErr)
}

// GetAccount 取得呼叫者自己的帳戶
func (a *AccountUseCase) GetAccount(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Account, error) {
	return findOwnedAccount(ctx, a.backend.Accounts(), id, ownerID)
}

// ListAccounts 列出呼叫者所有帳戶
func (a *AccountUseCase) ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	accounts, err := a.backend.Accounts().FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAborted, err)
	}
	return accounts, nil
}
