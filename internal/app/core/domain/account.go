package domain

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Currency 幣別，建立後不可變更
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyUSD Currency = "USD"
)

// Currencies 支援的幣別清單
var Currencies = []Currency{CurrencyNGN, CurrencyUSD}

// Valid 是否為支援的幣別
func (c Currency) Valid() bool {
	for _, s := range Currencies {
		if c == s {
			return true
		}
	}
	return false
}

// ParseCurrency 解析幣別字串
func ParseCurrency(s string) (Currency, error) {
	c := Currency(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unsupported currency %q", ErrInvalidRequest, s)
	}
	return c, nil
}

// AccountNumberLength 系統產生的帳號長度
const AccountNumberLength = 10

// Account 帳戶，餘額以最小單位儲存
type Account struct {
	ID            uuid.UUID
	OwnerID       string
	Currency      Currency
	Balance       int64
	AccountNumber string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OwnedBy 帳戶是否屬於 ownerID
func (a *Account) OwnedBy(ownerID string) bool {
	return a != nil && ownerID != "" && a.OwnerID == ownerID
}

// ApplyDelta 對餘額套用有號變動量，結果為負時回傳 ErrInsufficientFunds 且不修改帳戶
func (a *Account) ApplyDelta(delta int64) error {
	next := a.Balance + delta
	// 溢位保護：正向變動卻變小
	if delta > 0 && next < a.Balance {
		return fmt.Errorf("%w: balance overflow", ErrInvalidRequest)
	}
	if next < 0 {
		return ErrInsufficientFunds
	}
	a.Balance = next
	return nil
}

// Clone 回傳值拷貝，避免外部改寫 store 內部狀態
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// LockOrder 回傳需要鎖定的帳號 ID (去重並排序) 以避免死鎖
func LockOrder(ids ...uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
