package memory

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

// Journal 記憶體帳本的 WAL，每一行是一筆 walRecord
type Journal = wal.Log[walRecord]

// OpenJournal 開啟或建立記憶體帳本的 WAL 檔案
func OpenJournal(path string) (*Journal, error) {
	return wal.Open[walRecord](path)
}

// WAL 紀錄種類
const (
	recordKindAccount = "account"
	recordKindCommit  = "commit"
)

// walRecord WAL 內的一行
type walRecord struct {
	Kind         string              `json:"kind"`
	Sequence     uint64              `json:"seq,omitempty"`
	At           time.Time           `json:"at"`
	Account      *walAccount         `json:"account,omitempty"`
	Balances     map[uuid.UUID]int64 `json:"balances,omitempty"`
	Transactions []*walTransaction   `json:"transactions,omitempty"`
}

type walAccount struct {
	ID            uuid.UUID       `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Currency      domain.Currency `json:"currency"`
	AccountNumber string          `json:"account_number"`
	Balance       int64           `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
}

type walTransaction struct {
	ID                  uuid.UUID              `json:"id"`
	AccountID           uuid.UUID              `json:"account_id"`
	Type                domain.TransactionType `json:"type"`
	Amount              int64                  `json:"amount"`
	Narration           string                 `json:"narration,omitempty"`
	Reference           string                 `json:"reference"`
	LinkedTransactionID *uuid.UUID             `json:"linked_transaction_id,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
}

func newAccountRecord(account *domain.Account) walRecord {
	return walRecord{
		Kind: recordKindAccount,
		At:   account.CreatedAt,
		Account: &walAccount{
			ID:            account.ID,
			OwnerID:       account.OwnerID,
			Currency:      account.Currency,
			AccountNumber: account.AccountNumber,
			Balance:       account.Balance,
			CreatedAt:     account.CreatedAt,
		},
	}
}

func newCommitRecord(seq uint64, at time.Time, balances map[uuid.UUID]int64, txs []*domain.Transaction) walRecord {
	rec := walRecord{
		Kind:         recordKindCommit,
		Sequence:     seq,
		At:           at,
		Balances:     balances,
		Transactions: make([]*walTransaction, 0, len(txs)),
	}
	for _, tran := range txs {
		rec.Transactions = append(rec.Transactions, &walTransaction{
			ID:                  tran.ID,
			AccountID:           tran.AccountID,
			Type:                tran.Type,
			Amount:              tran.Amount,
			Narration:           tran.Narration,
			Reference:           tran.Reference,
			LinkedTransactionID: tran.LinkedTransactionID,
			CreatedAt:           tran.CreatedAt,
		})
	}
	return rec
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 NewStore 呼叫，無需 Lock (單執行緒)
//
// 回傳:
//
//	error: 恢復過程錯誤
func (s *Store) recoverFromWAL() error {
	return s.journal.Replay(func(rec walRecord) error {
		return s.applyRecoverRecord(&rec)
	})
}

// applyRecoverRecord 恢復單筆紀錄至記憶體 (不寫入 WAL)
func (s *Store) applyRecoverRecord(rec *walRecord) error {
	switch rec.Kind {
	case recordKindAccount:
		if rec.Account == nil {
			return errors.New("memory: wal account record without account")
		}
		a := rec.Account
		s.insertAccount(&domain.Account{
			ID:            a.ID,
			OwnerID:       a.OwnerID,
			Currency:      a.Currency,
			Balance:       a.Balance,
			AccountNumber: a.AccountNumber,
			CreatedAt:     a.CreatedAt,
			UpdatedAt:     a.CreatedAt,
		})
		return nil
	case recordKindCommit:
		if rec.Sequence != s.lastSequence+1 {
			return fmt.Errorf("memory: wal sequence gap: have %d, got %d", s.lastSequence, rec.Sequence)
		}
		txs := make([]*domain.Transaction, 0, len(rec.Transactions))
		for _, t := range rec.Transactions {
			txs = append(txs, &domain.Transaction{
				ID:                  t.ID,
				AccountID:           t.AccountID,
				Type:                t.Type,
				Amount:              t.Amount,
				Narration:           t.Narration,
				Reference:           t.Reference,
				LinkedTransactionID: t.LinkedTransactionID,
				CreatedAt:           t.CreatedAt,
			})
		}
		if err := s.applyCommit(rec.Balances, txs, rec.At); err != nil {
			return err
		}
		s.lastSequence = rec.Sequence
		return nil
	default:
		return fmt.Errorf("memory: unknown wal record kind %q", rec.Kind)
	}
}
