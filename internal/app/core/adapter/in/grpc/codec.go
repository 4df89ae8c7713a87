package grpc

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// 請求欄位讀取，錯誤一律為 ErrInvalidRequest

func stringField(in *structpb.Struct, key string) (string, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", domain.ErrInvalidRequest, key)
	}
	return s.StringValue, nil
}

func uuidField(in *structpb.Struct, key string) (uuid.UUID, error) {
	s, err := stringField(in, key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a uuid", domain.ErrInvalidRequest, key)
	}
	return id, nil
}

// amountField 金額必須以字串傳遞，避免浮點誤差
func amountField(in *structpb.Struct, key string) (decimal.Decimal, error) {
	s, err := stringField(in, key)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a decimal string", domain.ErrInvalidRequest, key)
	}
	return d, nil
}

func intField(in *structpb.Struct, key string) (int, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	// 超過 2^53 的 float64 已無法精確表示整數
	if !ok || math.Abs(n.NumberValue) > 1<<53 || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidRequest, key)
	}
	return int(n.NumberValue), nil
}

func timeField(in *structpb.Struct, key string) (*time.Time, error) {
	s, err := stringField(in, key)
	if err != nil || s == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrInvalidRequest, key)
	}
	return &t, nil
}

// 回應轉換

func accountValue(a *domain.Account) map[string]any {
	return map[string]any{
		"id":             a.ID.String(),
		"owner_id":       a.OwnerID,
		"currency":       string(a.Currency),
		"balance":        domain.FormatAmount(a.Balance),
		"account_number": a.AccountNumber,
		"created_at":     a.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":     a.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func transactionValue(t *domain.Transaction) map[string]any {
	v := map[string]any{
		"id":         t.ID.String(),
		"account_id": t.AccountID.String(),
		"type":       string(t.Type),
		"amount":     domain.FormatAmount(t.Amount),
		"narration":  t.Narration,
		"reference":  t.Reference,
		"created_at": t.CreatedAt.Format(time.RFC3339Nano),
	}
	if t.LinkedTransactionID != nil {
		v["linked_transaction_id"] = t.LinkedTransactionID.String()
	}
	return v
}

func transactionsValue(txs []*domain.Transaction) []any {
	out := make([]any, len(txs))
	for i, t := range txs {
		out[i] = transactionValue(t)
	}
	return out
}

func pageValue(p *domain.Page[domain.Transaction]) map[string]any {
	return map[string]any{
		"items":      transactionsValue(p.Items),
		"page":       p.Page,
		"limit":      p.Limit,
		"total":      p.Total,
		"page_count": p.PageCount,
		"skipped":    p.Skipped,
		"next_page":  p.NextPage,
	}
}
