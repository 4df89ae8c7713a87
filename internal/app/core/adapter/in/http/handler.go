package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

// OwnerHeader 呼叫者身分
const OwnerHeader = "X-Owner-ID"

const ownerLocal = "owner_id"

type Handler struct {
	core     *usecase.CoreUseCase
	accounts *usecase.AccountUseCase
	logger   *zap.Logger
}

func NewHandler(core *usecase.CoreUseCase, accounts *usecase.AccountUseCase, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{core: core, accounts: accounts, logger: logger}
}

// NewApp 建立 fiber app 並註冊所有路由
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          h.errorHandler,
	})
	app.Use(recover.New())

	v1 := app.Group("/v1", requireOwner)
	v1.Post("/accounts", h.CreateAccount)
	v1.Get("/accounts", h.ListAccounts)
	v1.Get("/accounts/:id", h.GetAccount)
	v1.Get("/accounts/:id/transactions", h.History)
	v1.Post("/deposit", h.Deposit)
	v1.Post("/withdraw", h.Withdraw)
	v1.Post("/transfer", h.Transfer)
	v1.Get("/transactions/:reference", h.TransactionsByReference)
	return app
}

// requireOwner 從 header 取出呼叫者身分
func requireOwner(c *fiber.Ctx) error {
	owner := c.Get(OwnerHeader)
	if owner == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing "+OwnerHeader+" header")
	}
	c.Locals(ownerLocal, owner)
	return c.Next()
}

func owner(c *fiber.Ctx) string {
	v, _ := c.Locals(ownerLocal).(string)
	return v
}

func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(err)
	}
	account, err := h.accounts.CreateAccount(c.UserContext(), owner(c), domain.Currency(req.Currency))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(newAccountResponse(account))
}

func (h *Handler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.accounts.ListAccounts(c.UserContext(), owner(c))
	if err != nil {
		return err
	}
	out := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = newAccountResponse(a)
	}
	return c.JSON(out)
}

func (h *Handler) GetAccount(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"), "id")
	if err != nil {
		return err
	}
	account, err := h.accounts.GetAccount(c.UserContext(), owner(c), id)
	if err != nil {
		return err
	}
	return c.JSON(newAccountResponse(account))
}

func (h *Handler) Deposit(c *fiber.Ctx) error {
	cmd, err := parseMovement(c)
	if err != nil {
		return err
	}
	tran, err := h.core.Deposit(c.UserContext(), owner(c), cmd)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(newTransactionResponse(tran))
}

func (h *Handler) Withdraw(c *fiber.Ctx) error {
	cmd, err := parseMovement(c)
	if err != nil {
		return err
	}
	tran, err := h.core.Withdraw(c.UserContext(), owner(c), cmd)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(newTransactionResponse(tran))
}

func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(err)
	}
	from, err := parseID(req.FromAccountID, "from_account_id")
	if err != nil {
		return err
	}
	to, err := parseID(req.ToAccountID, "to_account_id")
	if err != nil {
		return err
	}
	result, err := h.core.Transfer(c.UserContext(), owner(c), usecase.TransferCommand{
		FromAccountID: from,
		ToAccountID:   to,
		Amount:        req.Amount,
		Narration:     req.Narration,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(transferResponse{
		Debit:  newTransactionResponse(result.Debit),
		Credit: newTransactionResponse(result.Credit),
	})
}

func (h *Handler) History(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"), "id")
	if err != nil {
		return err
	}
	var params historyParams
	if err := c.QueryParser(&params); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	query := usecase.HistoryQuery{
		AccountID:  id,
		Pagination: domain.Pagination{Page: params.Page, Limit: params.Limit},
		Filter: domain.TransactionFilter{
			Type:      domain.TransactionType(params.Type),
			Reference: params.Reference,
		},
	}
	if query.Filter.FromDate, err = parseTime(params.FromDate, "from_date"); err != nil {
		return err
	}
	if query.Filter.ToDate, err = parseTime(params.ToDate, "to_date"); err != nil {
		return err
	}

	page, err := h.core.History(c.UserContext(), owner(c), query)
	if err != nil {
		return err
	}
	return c.JSON(newPageResponse(page))
}

func (h *Handler) TransactionsByReference(c *fiber.Ctx) error {
	txs, err := h.core.TransactionsByReference(c.UserContext(), owner(c), c.Params("reference"))
	if err != nil {
		return err
	}
	return c.JSON(newTransactionResponses(txs))
}

func parseMovement(c *fiber.Ctx) (usecase.MovementCommand, error) {
	var req movementRequest
	if err := c.BodyParser(&req); err != nil {
		return usecase.MovementCommand{}, invalidBody(err)
	}
	id, err := parseID(req.AccountID, "account_id")
	if err != nil {
		return usecase.MovementCommand{}, err
	}
	return usecase.MovementCommand{AccountID: id, Amount: req.Amount, Narration: req.Narration}, nil
}

func parseID(s, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a uuid", domain.ErrInvalidRequest, name)
	}
	return id, nil
}

func parseTime(s, name string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrInvalidRequest, name)
	}
	return &t, nil
}

func invalidBody(err error) error {
	return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidRequest, err)
}

// statusOf domain 錯誤對應的 HTTP 狀態碼
func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientFunds, domain.KindCurrencyMismatch:
		return http.StatusUnprocessableEntity
	case domain.KindAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler 所有 handler 直接回傳 domain 錯誤，由這裡統一轉成 JSON
func (h *Handler) errorHandler(c *fiber.Ctx, err error) error {
	code := statusOf(err)
	message := err.Error()

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code >= http.StatusInternalServerError {
		h.logger.Error("http request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)
		// 不對外暴露內部錯誤細節
		message = http.StatusText(code)
	}
	return c.Status(code).JSON(errorResponse{Error: message})
}
