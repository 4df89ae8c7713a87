package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// captureStore 只記錄 Create 呼叫的 TransactionStore
type captureStore struct {
	calls [][]*domain.Transaction
	err   error
}

func (c *captureStore) Create(_ context.Context, txs ...*domain.Transaction) error {
	if c.err != nil {
		return c.err
	}
	c.calls = append(c.calls, txs)
	return nil
}

func (c *captureStore) FindMatching(context.Context, domain.TransactionQuery) ([]*domain.Transaction, int64, error) {
	return nil, 0, nil
}

func (c *captureStore) FindByReference(context.Context, string) ([]*domain.Transaction, error) {
	return nil, nil
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 123_456_789, time.FixedZone("UTC+8", 8*3600))
}

func TestNewReference(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		ref := NewReference()
		assert.True(t, strings.HasPrefix(ref, referencePrefix))
		assert.Len(t, ref, len(referencePrefix)+referenceLength)
		_, dup := seen[ref]
		require.False(t, dup, "reference collision: %s", ref)
		seen[ref] = struct{}{}
	}
}

func TestNewReferenceUsesWholeAlphabetAtEveryPosition(t *testing.T) {
	const samples = 4000
	seen := make([]map[rune]struct{}, referenceLength)
	for i := range seen {
		seen[i] = make(map[rune]struct{})
	}
	for i := 0; i < samples; i++ {
		body := strings.TrimPrefix(NewReference(), referencePrefix)
		for pos, r := range body {
			seen[pos][r] = struct{}{}
		}
	}
	// 沒有固定位元時，每個位置都會出現完整的 32 個字元
	for pos, chars := range seen {
		assert.Len(t, chars, 32, "position %d", pos)
	}
}

func TestRecorderRecord(t *testing.T) {
	store := &captureStore{}
	r := NewRecorder(fixedClock)
	accountID := uuid.New()

	tran, err := r.Record(context.Background(), store, Entry{
		AccountID: accountID,
		Type:      domain.TransactionTypeCredit,
		Amount:    5000,
		Narration: "salary",
	})
	require.NoError(t, err)
	require.Len(t, store.calls, 1)
	assert.Same(t, tran, store.calls[0][0])

	assert.NotEqual(t, uuid.Nil, tran.ID)
	assert.Equal(t, accountID, tran.AccountID)
	assert.Equal(t, int64(5000), tran.Amount)
	assert.Equal(t, "salary", tran.Narration)
	assert.Nil(t, tran.LinkedTransactionID)
	assert.Equal(t, time.UTC, tran.CreatedAt.Location())
	assert.Zero(t, tran.CreatedAt.Nanosecond()%1000, "truncated to microseconds")
}

func TestRecorderRecordKeepsGivenReference(t *testing.T) {
	tran, err := NewRecorder(fixedClock).Record(context.Background(), &captureStore{}, Entry{
		AccountID: uuid.New(),
		Type:      domain.TransactionTypeDebit,
		Amount:    1,
		Reference: "TX-FIXED",
	})
	require.NoError(t, err)
	assert.Equal(t, "TX-FIXED", tran.Reference)
}

func TestRecorderRejectsBadEntries(t *testing.T) {
	r := NewRecorder(fixedClock)
	store := &captureStore{}

	tests := []struct {
		name  string
		entry Entry
	}{
		{"zero amount", Entry{AccountID: uuid.New(), Type: domain.TransactionTypeCredit, Amount: 0}},
		{"negative amount", Entry{AccountID: uuid.New(), Type: domain.TransactionTypeDebit, Amount: -10}},
		{"unknown type", Entry{AccountID: uuid.New(), Type: "REFUND", Amount: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Record(context.Background(), store, tt.entry)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, store.calls)

	_, err := r.Record(context.Background(), store, Entry{AccountID: uuid.New(), Type: domain.TransactionTypeCredit, Amount: 0})
	assert.ErrorIs(t, err, domain.ErrAmountMustBePositive)
}

func TestRecorderRecordPair(t *testing.T) {
	store := &captureStore{}
	from, to := uuid.New(), uuid.New()

	result, err := NewRecorder(fixedClock).RecordPair(context.Background(), store,
		Entry{AccountID: from, Type: domain.TransactionTypeDebit, Amount: 700},
		Entry{AccountID: to, Type: domain.TransactionTypeCredit, Amount: 700},
	)
	require.NoError(t, err)
	require.Len(t, store.calls, 1, "both records written in a single call")
	require.Len(t, store.calls[0], 2)

	debit, credit := result.Debit, result.Credit
	assert.Equal(t, debit.Reference, credit.Reference)
	assert.Equal(t, debit.CreatedAt, credit.CreatedAt)
	require.NotNil(t, debit.LinkedTransactionID)
	require.NotNil(t, credit.LinkedTransactionID)
	assert.Equal(t, credit.ID, *debit.LinkedTransactionID)
	assert.Equal(t, debit.ID, *credit.LinkedTransactionID)
	assert.Equal(t, from, debit.AccountID)
	assert.Equal(t, to, credit.AccountID)
}

func TestRecorderRecordPairFailures(t *testing.T) {
	r := NewRecorder(fixedClock)

	_, err := r.RecordPair(context.Background(), &captureStore{},
		Entry{AccountID: uuid.New(), Type: domain.TransactionTypeCredit, Amount: 1},
		Entry{AccountID: uuid.New(), Type: domain.TransactionTypeDebit, Amount: 1},
	)
	assert.Error(t, err)

	boom := errors.New("disk full")
	_, err = r.RecordPair(context.Background(), &captureStore{err: boom},
		Entry{AccountID: uuid.New(), Type: domain.TransactionTypeDebit, Amount: 1},
		Entry{AccountID: uuid.New(), Type: domain.TransactionTypeCredit, Amount: 1},
	)
	assert.ErrorIs(t, err, boom)
}
