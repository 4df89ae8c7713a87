package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

const (
	uniqueViolation = "23505"

	constraintOwnerCurrency = "accounts_owner_currency_key"
	constraintAccountNumber = "accounts_account_number_key"
)

// Schema 帳本資料表，可重複執行
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             UUID PRIMARY KEY,
	owner_id       VARCHAR(128) NOT NULL,
	currency       VARCHAR(3)   NOT NULL,
	balance        BIGINT       NOT NULL DEFAULT 0 CHECK (balance >= 0),
	account_number CHAR(10)     NOT NULL,
	created_at     TIMESTAMPTZ  NOT NULL,
	updated_at     TIMESTAMPTZ  NOT NULL,
	CONSTRAINT accounts_owner_currency_key UNIQUE (owner_id, currency),
	CONSTRAINT accounts_account_number_key UNIQUE (account_number)
);

CREATE TABLE IF NOT EXISTS transactions (
	seq                   BIGSERIAL PRIMARY KEY,
	id                    UUID         NOT NULL UNIQUE,
	account_id            UUID         NOT NULL REFERENCES accounts (id),
	type                  VARCHAR(6)   NOT NULL CHECK (type IN ('DEBIT', 'CREDIT')),
	amount                BIGINT       NOT NULL CHECK (amount > 0),
	narration             VARCHAR(255) NOT NULL DEFAULT '',
	reference             VARCHAR(32)  NOT NULL,
	linked_transaction_id UUID,
	created_at            TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_created ON transactions (account_id, created_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_reference ON transactions (reference);
`

const (
	accountColumns     = "id, owner_id, currency, balance, account_number, created_at, updated_at"
	transactionColumns = "id, account_id, type, amount, narration, reference, linked_transaction_id, created_at"
)

var errOutsideUnit = errors.New("postgres: FindForUpdate requires a unit of work")

// querier pgxpool.Pool 與 pgx.Tx 共同的查詢介面
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store 以 pgx 實作的 Postgres 帳本儲存
type Store struct {
	pool *pgxpool.Pool
}

// NewStore 建立 Postgres Store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate 建立資料表
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *Store) Accounts() usecase.AccountStore {
	return accountRepo{q: s.pool}
}

func (s *Store) Transactions() usecase.TransactionStore {
	return transactionRepo{q: s.pool}
}

// Run 開啟 READ COMMITTED transaction 執行 fn，fn 失敗或 panic 時 rollback
func (s *Store) Run(ctx context.Context, fn usecase.UnitOfWork) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	// Commit 之後 Rollback 為 no-op
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// txStore 原子單元內的 Store
type txStore struct {
	tx pgx.Tx
}

func (s txStore) Accounts() usecase.AccountStore {
	return accountRepo{q: s.tx, inTx: true}
}

func (s txStore) Transactions() usecase.TransactionStore {
	return transactionRepo{q: s.tx}
}

type accountRepo struct {
	q    querier
	inTx bool
}

func (r accountRepo) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID, account.OwnerID, string(account.Currency), account.Balance,
		account.AccountNumber, account.CreatedAt.UTC(), account.UpdatedAt.UTC(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case constraintOwnerCurrency:
			return domain.ErrAccountAlreadyExists
		case constraintAccountNumber:
			return domain.ErrDuplicateAccountNumber
		}
	}
	return err
}

func (r accountRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	return account, err
}

func (r accountRepo) FindByOwner(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	rows, err := r.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY currency`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

// FindForUpdate 以 id 遞增順序鎖定帳戶，鎖持有到 transaction 結束
func (r accountRepo) FindForUpdate(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	if !r.inTx {
		return nil, errOutsideUnit
	}
	order := domain.LockOrder(ids...)
	keys := make([]string, len(order))
	for i, id := range order {
		keys[i] = id.String()
	}

	rows, err := r.q.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`,
		keys,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]*domain.Account, len(order))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[account.ID] = account
	}
	return out, rows.Err()
}

func (r accountRepo) UpdateBalance(ctx context.Context, account *domain.Account) error {
	if account.Balance < 0 {
		return domain.ErrInsufficientFunds
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1`,
		account.ID, account.Balance, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

type transactionRepo struct {
	q querier
}

// Create 以單一 INSERT 寫入多筆紀錄
func (r transactionRepo) Create(ctx context.Context, txs ...*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args = make([]any, 0, len(txs)*8)
	)
	sb.WriteString(`INSERT INTO transactions (` + transactionColumns + `) VALUES `)
	for i, tran := range txs {
		if tran.Amount <= 0 {
			return domain.ErrAmountMustBePositive
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8)
		args = append(args,
			tran.ID, tran.AccountID, string(tran.Type), tran.Amount,
			tran.Narration, tran.Reference, tran.LinkedTransactionID, tran.CreatedAt.UTC(),
		)
	}
	_, err := r.q.Exec(ctx, sb.String(), args...)
	return err
}

func (r transactionRepo) FindMatching(ctx context.Context, query domain.TransactionQuery) ([]*domain.Transaction, int64, error) {
	where, args := buildWhere(query)

	var total int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, query.Limit, query.Offset)
	rows, err := r.q.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM transactions%s ORDER BY created_at DESC, seq DESC LIMIT $%d OFFSET $%d`,
			transactionColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectTransactions(rows)
	return items, total, err
}

func (r transactionRepo) FindByReference(ctx context.Context, reference string) ([]*domain.Transaction, error) {
	rows, err := r.q.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1 ORDER BY seq`, reference)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// buildWhere 依過濾條件組出 WHERE 子句與參數
func buildWhere(query domain.TransactionQuery) (string, []any) {
	conds := []string{"account_id = $1"}
	args := []any{query.AccountID}
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	f := query.Filter
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Reference != "" {
		add("reference = $%d", f.Reference)
	}
	if f.FromDate != nil {
		add("created_at >= $%d", f.FromDate.UTC())
	}
	if f.ToDate != nil {
		add("created_at <= $%d", f.ToDate.UTC())
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account  domain.Account
		currency string
	)
	err := row.Scan(
		&account.ID, &account.OwnerID, &currency, &account.Balance,
		&account.AccountNumber, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.Currency = domain.Currency(currency)
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return &account, nil
}

func collectTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	defer rows.Close()
	out := make([]*domain.Transaction, 0)
	for rows.Next() {
		var (
			tran     domain.Transaction
			tranType string
		)
		err := rows.Scan(
			&tran.ID, &tran.AccountID, &tranType, &tran.Amount,
			&tran.Narration, &tran.Reference, &tran.LinkedTransactionID, &tran.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		tran.Type = domain.TransactionType(tranType)
		tran.CreatedAt = tran.CreatedAt.UTC()
		out = append(out, &tran)
	}
	return out, rows.Err()
}

var (
	_ usecase.Backend = (*Store)(nil)
	_ usecase.Store   = txStore{}
)
