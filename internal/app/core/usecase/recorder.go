package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

const (
	referencePrefix = "TX-"
	// 10 個隨機位元組 = 80 bits = 16 個 base32 字元
	referenceBytes  = 10
	referenceLength = referenceBytes * 8 / 5
)

var referenceEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Entry 一筆待記錄的資金移動
type Entry struct {
	AccountID uuid.UUID
	Type      domain.TransactionType
	Amount    int64
	Narration string
	// Reference 為空時由 Recorder 產生
	Reference string
}

// Recorder 唯一負責建立交易紀錄的元件
type Recorder struct {
	now func() time.Time
}

// NewRecorder 建立 Recorder，now 為 nil 時使用 time.Now
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// NewReference 產生 80 bits 熵的短 reference
func NewReference() string {
	var b [referenceBytes]byte
	// crypto/rand.Read 只在系統熵來源失效時回傳錯誤
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("usecase: read random reference: %v", err))
	}
	return referencePrefix + referenceEncoding.EncodeToString(b[:])
}

// Record 建立並寫入單筆交易紀錄
//
// 參數:
//
//	ctx: 上下文
//	store: 目前原子單元的 TransactionStore
//	entry: 資金移動內容
//
// 回傳:
//
//	*domain.Transaction: 已寫入的紀錄
//	error: 寫入錯誤
func (r *Recorder) Record(ctx context.Context, store TransactionStore, entry Entry) (*domain.Transaction, error) {
	tx, err := r.build(entry, r.now())
	if err != nil {
		return nil, err
	}
	if err := store.Create(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// RecordPair 建立互相連結的扣款/入帳兩筆紀錄，共用同一個 reference，並一次寫入
func (r *Recorder) RecordPair(ctx context.Context, store TransactionStore, debit, credit Entry) (*domain.TransferResult, error) {
	if debit.Type != domain.TransactionTypeDebit || credit.Type != domain.TransactionTypeCredit {
		return nil, fmt.Errorf("recorder: pair must be DEBIT then CREDIT, got %s/%s", debit.Type, credit.Type)
	}
	reference := debit.Reference
	if reference == "" {
		reference = NewReference()
	}
	debit.Reference = reference
	credit.Reference = reference

	now := r.now()
	debitTx, err := r.build(debit, now)
	if err != nil {
		return nil, err
	}
	creditTx, err := r.build(credit, now)
	if err != nil {
		return nil, err
	}
	debitTx.LinkedTransactionID = &creditTx.ID
	creditTx.LinkedTransactionID = &debitTx.ID

	if err := store.Create(ctx, debitTx, creditTx); err != nil {
		return nil, err
	}
	return &domain.TransferResult{Debit: debitTx, Credit: creditTx}, nil
}

func (r *Recorder) build(entry Entry, now time.Time) (*domain.Transaction, error) {
	if entry.Amount <= 0 {
		return nil, fmt.Errorf("recorder: %w (got %d)", domain.ErrAmountMustBePositive, entry.Amount)
	}
	if !entry.Type.Valid() {
		return nil, fmt.Errorf("recorder: unknown transaction type %q", entry.Type)
	}
	reference := entry.Reference
	if reference == "" {
		reference = NewReference()
	}
	return &domain.Transaction{
		ID:        uuid.New(),
		AccountID: entry.AccountID,
		Type:      entry.Type,
		Amount:    entry.Amount,
		Narration: entry.Narration,
		Reference: reference,
		CreatedAt: now.UTC().Truncate(time.Microsecond),
	}, nil
}
