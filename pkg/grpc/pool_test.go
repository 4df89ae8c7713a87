package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// startHealthServer 以 bufconn 啟動只有 health 服務的 server，並記錄收到的 metadata
func startHealthServer(t *testing.T, seen chan<- metadata.MD) grpc.DialOption {
	t.Helper()
	lis := bufconn.Listen(1 << 16)
	srv := grpc.NewServer(grpc.UnaryInterceptor(func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		select {
		case seen <- md:
		default:
		}
		return handler(ctx, req)
	}))
	hs := health.NewServer()
	hs.SetServingStatus("ledger", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func TestPoolReusesConnection(t *testing.T) {
	dialer := startHealthServer(t, make(chan metadata.MD, 1))
	pool := NewPool(WithDialOptions(dialer))

	a, err := pool.GetConnection("passthrough:///ledger")
	require.NoError(t, err)
	b, err := pool.GetConnection("passthrough:///ledger")
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, pool.Close())
	c, err := pool.GetConnection("passthrough:///ledger")
	require.NoError(t, err)
	assert.NotSame(t, a, c, "closed connections are replaced")
	require.NoError(t, pool.Close())
}

func TestPoolSendsIdentityAndLogs(t *testing.T) {
	seen := make(chan metadata.MD, 4)
	dialer := startHealthServer(t, seen)
	core, logs := observer.New(zapcore.DebugLevel)

	pool := NewPool(
		WithDialOptions(dialer),
		WithIdentityHeader("x-owner-id"),
		WithInterceptor(LoggingInterceptor(zap.New(core))),
	)
	defer pool.Close()
	conn, err := pool.GetConnection("passthrough:///ledger")
	require.NoError(t, err)
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(ContextWithIdentity(context.Background(), "alice"), &healthpb.HealthCheckRequest{Service: "ledger"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	md := <-seen
	assert.Equal(t, []string{"alice"}, md.Get("x-owner-id"))

	// 沒有身分時不送 header
	_, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "ledger"})
	require.NoError(t, err)
	md = <-seen
	assert.Empty(t, md.Get("x-owner-id"))

	_, err = client.Check(ContextWithIdentity(context.Background(), "bob"), &healthpb.HealthCheckRequest{Service: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	failed := logs.FilterMessage("grpc call failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "NotFound", failed[0].ContextMap()["code"])
	assert.Equal(t, "bob", failed[0].ContextMap()["identity"])
	assert.Equal(t, 2, logs.FilterMessage("grpc call").Len())
}

func TestPoolWithoutIdentityHeader(t *testing.T) {
	seen := make(chan metadata.MD, 1)
	pool := NewPool(WithDialOptions(startHealthServer(t, seen)))
	defer pool.Close()
	conn, err := pool.GetConnection("passthrough:///ledger")
	require.NoError(t, err)

	_, err = healthpb.NewHealthClient(conn).Check(ContextWithIdentity(context.Background(), "alice"), &healthpb.HealthCheckRequest{Service: "ledger"})
	require.NoError(t, err)
	assert.Empty(t, (<-seen).Get("x-owner-id"))
}

func TestIdentityFrom(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)
	_, ok = IdentityFrom(ContextWithIdentity(context.Background(), ""))
	assert.False(t, ok)
	id, ok := IdentityFrom(ContextWithIdentity(context.Background(), "alice"))
	assert.True(t, ok)
	assert.Equal(t, "alice", id)
}
