package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransactionType 交易方向，相對於該筆紀錄所屬帳戶
type TransactionType string

const (
	// 扣款
	TransactionTypeDebit TransactionType = "DEBIT"
	// 入帳
	TransactionTypeCredit TransactionType = "CREDIT"
)

// Valid 是否為合法的交易方向
func (t TransactionType) Valid() bool {
	return t == TransactionTypeDebit || t == TransactionTypeCredit
}

// ParseTransactionType 解析交易方向字串
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown transaction type %q", ErrInvalidRequest, s)
	}
	return t, nil
}

// Transaction 不可變的交易紀錄
//
// 金額永遠為正，方向由 Type 表示。轉帳產生的兩筆紀錄共用 Reference，
// 並以 LinkedTransactionID 互相指向。
type Transaction struct {
	ID                  uuid.UUID
	AccountID           uuid.UUID
	Type                TransactionType
	Amount              int64
	Narration           string
	Reference           string
	LinkedTransactionID *uuid.UUID
	CreatedAt           time.Time
}

// Clone 回傳值拷貝
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	if t.LinkedTransactionID != nil {
		id := *t.LinkedTransactionID
		cp.LinkedTransactionID = &id
	}
	return &cp
}

// TransferResult 轉帳結果：扣款方與入帳方兩筆紀錄
type TransferResult struct {
	Debit  *Transaction
	Credit *Transaction
}
