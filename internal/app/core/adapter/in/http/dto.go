package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

type createAccountRequest struct {
	Currency string `json:"currency"`
}

// movementRequest amount 可為 JSON 字串或數字，以 decimal 解析不經過浮點數
type movementRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Narration string          `json:"narration"`
}

type transferRequest struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Narration     string          `json:"narration"`
}

type historyParams struct {
	Page      int    `query:"page"`
	Limit     int    `query:"limit"`
	Type      string `query:"type"`
	Reference string `query:"reference"`
	FromDate  string `query:"from_date"`
	ToDate    string `query:"to_date"`
}

type accountResponse struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Currency      string    `json:"currency"`
	Balance       string    `json:"balance"`
	AccountNumber string    `json:"account_number"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type transactionResponse struct {
	ID                  string    `json:"id"`
	AccountID           string    `json:"account_id"`
	Type                string    `json:"type"`
	Amount              string    `json:"amount"`
	Narration           string    `json:"narration"`
	Reference           string    `json:"reference"`
	LinkedTransactionID *string   `json:"linked_transaction_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

type transferResponse struct {
	Debit  transactionResponse `json:"debit"`
	Credit transactionResponse `json:"credit"`
}

type pageResponse struct {
	Items     []transactionResponse `json:"items"`
	Page      int                   `json:"page"`
	Limit     int                   `json:"limit"`
	Total     int64                 `json:"total"`
	PageCount int                   `json:"page_count"`
	Skipped   int                   `json:"skipped"`
	NextPage  bool                  `json:"next_page"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		ID:            a.ID.String(),
		OwnerID:       a.OwnerID,
		Currency:      string(a.Currency),
		Balance:       domain.FormatAmount(a.Balance),
		AccountNumber: a.AccountNumber,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func newTransactionResponse(t *domain.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:        t.ID.String(),
		AccountID: t.AccountID.String(),
		Type:      string(t.Type),
		Amount:    domain.FormatAmount(t.Amount),
		Narration: t.Narration,
		Reference: t.Reference,
		CreatedAt: t.CreatedAt,
	}
	if t.LinkedTransactionID != nil {
		linked := t.LinkedTransactionID.String()
		resp.LinkedTransactionID = &linked
	}
	return resp
}

func newTransactionResponses(txs []*domain.Transaction) []transactionResponse {
	out := make([]transactionResponse, len(txs))
	for i, t := range txs {
		out[i] = newTransactionResponse(t)
	}
	return out
}

func newPageResponse(p *domain.Page[domain.Transaction]) pageResponse {
	return pageResponse{
		Items:     newTransactionResponses(p.Items),
		Page:      p.Page,
		Limit:     p.Limit,
		Total:     p.Total,
		PageCount: p.PageCount,
		Skipped:   p.Skipped,
		NextPage:  p.NextPage,
	}
}
