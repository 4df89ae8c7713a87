package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type identityKey struct{}

// ContextWithIdentity 設定這次呼叫的呼叫者身分
func ContextWithIdentity(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom 取出 ContextWithIdentity 設定的身分
func IdentityFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityKey{}).(string)
	return id, ok && id != ""
}

// identityInterceptor 把 context 內的身分附加為 header；沒有身分時照原樣送出
func identityInterceptor(header string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if id, ok := IdentityFrom(ctx); ok {
			ctx = metadata.AppendToOutgoingContext(ctx, header, id)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// LoggingInterceptor 記錄失敗的呼叫，成功只在 debug 等級輸出
func LoggingInterceptor(log *zap.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("target", cc.Target()),
			zap.Duration("elapsed", time.Since(start)),
		}
		if id, ok := IdentityFrom(ctx); ok {
			fields = append(fields, zap.String("identity", id))
		}
		if code := status.Code(err); code != codes.OK {
			log.Warn("grpc call failed", append(fields, zap.String("code", code.String()), zap.Error(err))...)
		} else {
			log.Debug("grpc call", fields...)
		}
		return err
	}
}
