package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	grpcpool "github.com/JoeShih716/go-wallet-ledger/pkg/grpc"
)

func newTestClient(t *testing.T) *LedgerServiceClient {
	t.Helper()
	store, err := memory.NewStore(nil)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)

	srv := NewServer(NewGrpcServer(
		usecase.NewCoreUseCase(store, usecase.WithLogger(log)),
		usecase.NewAccountUseCase(store, usecase.WithLogger(log)),
		log,
	))
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	pool := grpcpool.NewPool(grpcpool.WithIdentityHeader(OwnerMetadataKey))
	t.Cleanup(func() { _ = pool.Close() })
	conn, err := pool.GetConnection("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	return NewLedgerServiceClient(conn)
}

func as(owner string) context.Context {
	return grpcpool.ContextWithIdentity(context.Background(), owner)
}

func mustStruct(t *testing.T, v map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(v)
	require.NoError(t, err)
	return s
}

func field(s *structpb.Struct, path ...string) *structpb.Value {
	v := structpb.NewStructValue(s)
	for _, key := range path {
		v = v.GetStructValue().GetFields()[key]
	}
	return v
}

func createAccount(t *testing.T, c *LedgerServiceClient, owner, currency string) string {
	t.Helper()
	resp, err := c.CreateAccount(as(owner), mustStruct(t, map[string]any{"currency": currency}))
	require.NoError(t, err)
	return field(resp, "account", "id").GetStringValue()
}

func TestLedgerServiceFlow(t *testing.T) {
	c := newTestClient(t)
	alice := createAccount(t, c, "alice", "USD")
	bob := createAccount(t, c, "bob", "USD")

	resp, err := c.Deposit(as("alice"), mustStruct(t, map[string]any{"account_id": alice, "amount": "100.5"}))
	require.NoError(t, err)
	assert.Equal(t, "CREDIT", field(resp, "transaction", "type").GetStringValue())
	assert.Equal(t, "100.5", field(resp, "transaction", "amount").GetStringValue())

	resp, err = c.Transfer(as("alice"), mustStruct(t, map[string]any{
		"from_account_id": alice,
		"to_account_id":   bob,
		"amount":          "0.5",
	}))
	require.NoError(t, err)
	debitRef := field(resp, "debit", "reference").GetStringValue()
	assert.Equal(t, debitRef, field(resp, "credit", "reference").GetStringValue())
	assert.Equal(t, field(resp, "credit", "id").GetStringValue(), field(resp, "debit", "linked_transaction_id").GetStringValue())

	_, err = c.Withdraw(as("alice"), mustStruct(t, map[string]any{"account_id": alice, "amount": "25"}))
	require.NoError(t, err)

	resp, err = c.GetAccount(as("alice"), mustStruct(t, map[string]any{"account_id": alice}))
	require.NoError(t, err)
	assert.Equal(t, "75", field(resp, "account", "balance").GetStringValue())

	resp, err = c.History(as("alice"), mustStruct(t, map[string]any{"account_id": alice, "limit": 2}))
	require.NoError(t, err)
	assert.Equal(t, float64(3), field(resp, "total").GetNumberValue())
	assert.True(t, field(resp, "next_page").GetBoolValue())
	items := field(resp, "items").GetListValue().GetValues()
	require.Len(t, items, 2)
	assert.Equal(t, "DEBIT", items[0].GetStructValue().GetFields()["type"].GetStringValue())
}

func TestLedgerServiceErrorCodes(t *testing.T) {
	c := newTestClient(t)
	alice := createAccount(t, c, "alice", "USD")
	ngn := createAccount(t, c, "bob", "NGN")

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{
			name: "missing owner",
			call: func() error {
				_, err := c.Deposit(context.Background(), mustStruct(t, map[string]any{"account_id": alice, "amount": "1"}))
				return err
			},
			want: codes.Unauthenticated,
		},
		{
			name: "numeric amount",
			call: func() error {
				_, err := c.Deposit(as("alice"), mustStruct(t, map[string]any{"account_id": alice, "amount": 1.5}))
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "bad account id",
			call: func() error {
				_, err := c.Deposit(as("alice"), mustStruct(t, map[string]any{"account_id": "nope", "amount": "1"}))
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "foreign account",
			call: func() error {
				_, err := c.Deposit(as("mallory"), mustStruct(t, map[string]any{"account_id": alice, "amount": "1"}))
				return err
			},
			want: codes.NotFound,
		},
		{
			name: "insufficient funds",
			call: func() error {
				_, err := c.Withdraw(as("alice"), mustStruct(t, map[string]any{"account_id": alice, "amount": "1"}))
				return err
			},
			want: codes.FailedPrecondition,
		},
		{
			name: "currency mismatch",
			call: func() error {
				_, err := c.Transfer(as("alice"), mustStruct(t, map[string]any{"from_account_id": alice, "to_account_id": ngn, "amount": "1"}))
				return err
			},
			want: codes.FailedPrecondition,
		},
		{
			name: "duplicate account",
			call: func() error {
				_, err := c.CreateAccount(as("alice"), mustStruct(t, map[string]any{"currency": "USD"}))
				return err
			},
			want: codes.AlreadyExists,
		},
		{
			name: "fractional page",
			call: func() error {
				_, err := c.History(as("alice"), mustStruct(t, map[string]any{"account_id": alice, "page": 1.5}))
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "page beyond integer range",
			call: func() error {
				_, err := c.History(as("alice"), mustStruct(t, map[string]any{"account_id": alice, "page": 1e19}))
				return err
			},
			want: codes.InvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}
