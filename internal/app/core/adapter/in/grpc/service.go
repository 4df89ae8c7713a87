package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 完整服務名稱
const ServiceName = "ledger.v1.LedgerService"

// 方法完整路徑
const (
	MethodDeposit       = "/" + ServiceName + "/Deposit"
	MethodWithdraw      = "/" + ServiceName + "/Withdraw"
	MethodTransfer      = "/" + ServiceName + "/Transfer"
	MethodHistory       = "/" + ServiceName + "/History"
	MethodCreateAccount = "/" + ServiceName + "/CreateAccount"
	MethodGetAccount    = "/" + ServiceName + "/GetAccount"
)

// LedgerServiceServer 帳本 gRPC 服務，請求與回應皆為 google.protobuf.Struct
type LedgerServiceServer interface {
	Deposit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Withdraw(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(LedgerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler 將 structMethod 包成 grpc.MethodDesc 需要的 handler
func unaryHandler(fullMethod string, call structMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc 手寫的服務描述，等同 protoc 產生的 _grpc.pb.go
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deposit", Handler: unaryHandler(MethodDeposit, LedgerServiceServer.Deposit)},
		{MethodName: "Withdraw", Handler: unaryHandler(MethodWithdraw, LedgerServiceServer.Withdraw)},
		{MethodName: "Transfer", Handler: unaryHandler(MethodTransfer, LedgerServiceServer.Transfer)},
		{MethodName: "History", Handler: unaryHandler(MethodHistory, LedgerServiceServer.History)},
		{MethodName: "CreateAccount", Handler: unaryHandler(MethodCreateAccount, LedgerServiceServer.CreateAccount)},
		{MethodName: "GetAccount", Handler: unaryHandler(MethodGetAccount, LedgerServiceServer.GetAccount)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/ledger.proto",
}

// RegisterLedgerServiceServer 註冊服務
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// LedgerServiceClient 帳本服務客戶端
type LedgerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerServiceClient 建立客戶端，cc 可以是 pkg/grpc Pool 取得的連線
func NewLedgerServiceClient(cc grpc.ClientConnInterface) *LedgerServiceClient {
	return &LedgerServiceClient{cc: cc}
}

func (c *LedgerServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerServiceClient) Deposit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDeposit, in, opts...)
}

func (c *LedgerServiceClient) Withdraw(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodWithdraw, in, opts...)
}

func (c *LedgerServiceClient) Transfer(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodTransfer, in, opts...)
}

func (c *LedgerServiceClient) History(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodHistory, in, opts...)
}

func (c *LedgerServiceClient) CreateAccount(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodCreateAccount, in, opts...)
}

func (c *LedgerServiceClient) GetAccount(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetAccount, in, opts...)
}
