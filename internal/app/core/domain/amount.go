package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// amount 使用int64，並定義精度：小數點後 4 位
const (
	CurrencyScale    = 10000
	currencyExponent = -4
)

var (
	scaleDecimal = decimal.NewFromInt(CurrencyScale)
	maxMinor     = decimal.NewFromInt(math.MaxInt64)
)

// ToMinorUnits 將外部傳入的十進位金額轉成最小單位整數
//
// 參數:
//
//	amount: 十進位金額 (例如 12.5)
//
// 回傳:
//
//	int64: 最小單位金額 (12.5 -> 125000)
//	error: 金額 <= 0、超過精度或溢位時回傳 ErrInvalidRequest
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidRequest)
	}
	minor := amount.Mul(scaleDecimal)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: amount %s exceeds %d decimal places", ErrInvalidRequest, amount, -currencyExponent)
	}
	if minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: amount %s is too large", ErrInvalidRequest, amount)
	}
	return minor.IntPart(), nil
}

// ParseAmount 解析字串金額並轉成最小單位
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed amount %q", ErrInvalidRequest, s)
	}
	return ToMinorUnits(d)
}

// FromMinorUnits 將最小單位整數轉回十進位
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, currencyExponent)
}

// FormatAmount 以十進位字串輸出最小單位金額
func FormatAmount(minor int64) string {
	return FromMinorUnits(minor).String()
}
