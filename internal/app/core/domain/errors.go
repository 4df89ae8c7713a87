package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest 請求本身不合法 (金額、分頁參數、自己轉給自己)，不會觸及儲存層
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound 找不到帳戶，或帳戶不屬於呼叫者 (兩者刻意不區分)
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrCurrencyMismatch 轉帳雙方幣別不同
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrAborted 原子單元因內部原因回滾 (例如儲存層失敗)
	ErrAborted = errors.New("operation aborted")

	// ErrAccountAlreadyExists 同一擁有者同一幣別已有帳戶
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrDuplicateAccountNumber 帳號碰撞，由建立帳戶流程重試
	ErrDuplicateAccountNumber = errors.New("duplicate account number")

	// ErrAccountNotFound 帳戶不存在或不屬於呼叫者
	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)

	// ErrTransactionNotFound 查無交易紀錄
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)

	// ErrAmountMustBePositive 交易紀錄金額必須為正數 (程式錯誤，非使用者錯誤)
	ErrAmountMustBePositive = errors.New("amount must be positive")
)

// Kind 錯誤分類，給 transport 層對應狀態碼使用
type Kind uint8

const (
	KindInternal Kind = iota
	KindInvalidRequest
	KindNotFound
	KindInsufficientFunds
	KindCurrencyMismatch
	KindAlreadyExists
	KindAborted
)

// KindOf 回傳 err 所屬的錯誤分類，nil 回傳 KindInternal
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrCurrencyMismatch):
		return KindCurrencyMismatch
	case errors.Is(err, ErrAccountAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrAborted):
		return KindAborted
	default:
		return KindInternal
	}
}

// IsBusiness 是否為呼叫者可預期的業務錯誤 (非 Aborted / Internal)
func IsBusiness(err error) bool {
	switch KindOf(err) {
	case KindInvalidRequest, KindNotFound, KindInsufficientFunds, KindCurrencyMismatch, KindAlreadyExists:
		return true
	}
	return false
}
