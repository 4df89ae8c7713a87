package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

// OwnerMetadataKey 呼叫者身分的 metadata key
const OwnerMetadataKey = "x-owner-id"

type GrpcServer struct {
	core     *usecase.CoreUseCase
	accounts *usecase.AccountUseCase
	logger   *zap.Logger
}

func NewGrpcServer(core *usecase.CoreUseCase, accounts *usecase.AccountUseCase, logger *zap.Logger) *GrpcServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrpcServer{
		core:     core,
		accounts: accounts,
		logger:   logger,
	}
}

// NewServer 建立已註冊帳本服務與攔截器的 grpc.Server
func NewServer(srv *GrpcServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(LoggingInterceptor(srv.logger), OwnerInterceptor()),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterLedgerServiceServer(s, srv)
	return s
}

func (s *GrpcServer) Deposit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cmd, err := movementCommand(req)
	if err != nil {
		return nil, toStatus(err)
	}
	tran, err := s.core.Deposit(ctx, ownerFrom(ctx), cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"transaction": transactionValue(tran)})
}

func (s *GrpcServer) Withdraw(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cmd, err := movementCommand(req)
	if err != nil {
		return nil, toStatus(err)
	}
	tran, err := s.core.Withdraw(ctx, ownerFrom(ctx), cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"transaction": transactionValue(tran)})
}

func (s *GrpcServer) Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cmd, err := transferCommand(req)
	if err != nil {
		return nil, toStatus(err)
	}
	result, err := s.core.Transfer(ctx, ownerFrom(ctx), cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{
		"debit":  transactionValue(result.Debit),
		"credit": transactionValue(result.Credit),
	})
}

func (s *GrpcServer) History(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	query, err := historyQuery(req)
	if err != nil {
		return nil, toStatus(err)
	}
	page, err := s.core.History(ctx, ownerFrom(ctx), query)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(pageValue(page))
}

func (s *GrpcServer) CreateAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	currency, err := stringField(req, "currency")
	if err != nil {
		return nil, toStatus(err)
	}
	account, err := s.accounts.CreateAccount(ctx, ownerFrom(ctx), domain.Currency(currency))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"account": accountValue(account)})
}

func (s *GrpcServer) GetAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := uuidField(req, "account_id")
	if err != nil {
		return nil, toStatus(err)
	}
	account, err := s.accounts.GetAccount(ctx, ownerFrom(ctx), id)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"account": accountValue(account)})
}

func movementCommand(req *structpb.Struct) (usecase.MovementCommand, error) {
	var (
		cmd usecase.MovementCommand
		err error
	)
	if cmd.AccountID, err = uuidField(req, "account_id"); err != nil {
		return cmd, err
	}
	if cmd.Amount, err = amountField(req, "amount"); err != nil {
		return cmd, err
	}
	cmd.Narration, err = stringField(req, "narration")
	return cmd, err
}

func transferCommand(req *structpb.Struct) (usecase.TransferCommand, error) {
	var (
		cmd usecase.TransferCommand
		err error
	)
	if cmd.FromAccountID, err = uuidField(req, "from_account_id"); err != nil {
		return cmd, err
	}
	if cmd.ToAccountID, err = uuidField(req, "to_account_id"); err != nil {
		return cmd, err
	}
	if cmd.Amount, err = amountField(req, "amount"); err != nil {
		return cmd, err
	}
	cmd.Narration, err = stringField(req, "narration")
	return cmd, err
}

func historyQuery(req *structpb.Struct) (usecase.HistoryQuery, error) {
	var (
		q   usecase.HistoryQuery
		err error
	)
	if q.AccountID, err = uuidField(req, "account_id"); err != nil {
		return q, err
	}
	if q.Pagination.Page, err = intField(req, "page"); err != nil {
		return q, err
	}
	if q.Pagination.Limit, err = intField(req, "limit"); err != nil {
		return q, err
	}
	tranType, err := stringField(req, "type")
	if err != nil {
		return q, err
	}
	q.Filter.Type = domain.TransactionType(tranType)
	if q.Filter.Reference, err = stringField(req, "reference"); err != nil {
		return q, err
	}
	if q.Filter.FromDate, err = timeField(req, "from_date"); err != nil {
		return q, err
	}
	q.Filter.ToDate, err = timeField(req, "to_date")
	return q, err
}

func newStruct(v map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toStatus 將 domain 錯誤轉成 gRPC status
func toStatus(err error) error {
	var code codes.Code
	switch domain.KindOf(err) {
	case domain.KindInvalidRequest:
		code = codes.InvalidArgument
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindInsufficientFunds, domain.KindCurrencyMismatch:
		code = codes.FailedPrecondition
	case domain.KindAlreadyExists:
		code = codes.AlreadyExists
	case domain.KindAborted:
		code = codes.Aborted
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

type ownerKey struct{}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// OwnerInterceptor 從 metadata 取出 x-owner-id，缺少時回傳 Unauthenticated
func OwnerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get(OwnerMetadataKey)
		if len(values) == 0 || values[0] == "" {
			return nil, status.Error(codes.Unauthenticated, "missing "+OwnerMetadataKey)
		}
		return handler(context.WithValue(ctx, ownerKey{}, values[0]), req)
	}
}

// LoggingInterceptor 記錄每個請求的方法、耗時與狀態碼
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("code", code.String()),
		}
		switch code {
		case codes.OK:
			logger.Debug("grpc request", fields...)
		case codes.Internal, codes.Aborted, codes.Unknown:
			logger.Error("grpc request failed", append(fields, zap.Error(err))...)
		default:
			logger.Info("grpc request rejected", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

var _ LedgerServiceServer = (*GrpcServer)(nil)
