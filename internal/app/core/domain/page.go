package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// 分頁預設值
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// TransactionFilter 歷史查詢條件，零值代表不過濾
type TransactionFilter struct {
	Type      TransactionType
	Reference string
	// FromDate / ToDate 皆為閉區間
	FromDate *time.Time
	ToDate   *time.Time
}

// Validate 檢查過濾條件
func (f TransactionFilter) Validate() error {
	if f.Type != "" && !f.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidRequest, f.Type)
	}
	if f.FromDate != nil && f.ToDate != nil && f.FromDate.After(*f.ToDate) {
		return fmt.Errorf("%w: fromDate is after toDate", ErrInvalidRequest)
	}
	return nil
}

// Match 紀錄是否符合過濾條件 (不含帳戶條件)
func (f TransactionFilter) Match(tx *Transaction) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Reference != "" && tx.Reference != f.Reference {
		return false
	}
	if f.FromDate != nil && tx.CreatedAt.Before(*f.FromDate) {
		return false
	}
	if f.ToDate != nil && tx.CreatedAt.After(*f.ToDate) {
		return false
	}
	return true
}

// Pagination 1-based 頁碼與每頁筆數
type Pagination struct {
	Page  int
	Limit int
}

// Normalize 補上預設值並限制上限
// 負數或跳過筆數超出 int 範圍的頁碼回傳 ErrInvalidRequest
func (p Pagination) Normalize() (Pagination, error) {
	if p.Page < 0 || p.Limit < 0 {
		return p, fmt.Errorf("%w: page and limit must not be negative", ErrInvalidRequest)
	}
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return p, fmt.Errorf("%w: page %d is out of range", ErrInvalidRequest, p.Page)
	}
	return p, nil
}

// Offset 要跳過的筆數，p 須先經過 Normalize
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TransactionQuery 交給 store 的查詢
type TransactionQuery struct {
	AccountID uuid.UUID
	Filter    TransactionFilter
	Offset    int
	Limit     int
}

// Page 分頁結果
type Page[T any] struct {
	Items     []*T
	Page      int
	Limit     int
	Total     int64
	PageCount int
	Skipped   int
	NextPage  bool
}

// NewPage 依總筆數計算分頁資訊
func NewPage[T any](items []*T, p Pagination, total int64) *Page[T] {
	if items == nil {
		items = []*T{}
	}
	limit := int64(p.Limit)
	pageCount := int((total + limit - 1) / limit)
	skipped := p.Offset()
	// 等同 page*limit < total，改寫成減法避免乘法溢位
	next := int64(skipped) < total-limit
	return &Page[T]{
		Items:     items,
		Page:      p.Page,
		Limit:     p.Limit,
		Total:     total,
		PageCount: pageCount,
		Skipped:   skipped,
		NextPage:  next,
	}
}
