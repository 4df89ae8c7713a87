package grpc

import (
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// 預設 keepalive：閒置 10 秒送一次 ping，1 秒內沒有回應視為斷線
const (
	defaultKeepaliveTime    = 10 * time.Second
	defaultKeepaliveTimeout = time.Second
)

// Pool 依目標地址共用 gRPC 連線，可同時被多個 goroutine 使用
//
// 結構:
//
//	conns: 目標地址 -> 連線，已 Shutdown 的連線在下次取得時重建
//	identityHeader: 不為空時，context 內的呼叫者身分會以此 metadata key 送出
//	interceptors: 依加入順序串接在身分攔截器之後
type Pool struct {
	mu             sync.RWMutex
	conns          map[string]*grpc.ClientConn
	identityHeader string
	interceptors   []grpc.UnaryClientInterceptor
	dialOptions    []grpc.DialOption
	keepalive      keepalive.ClientParameters
}

// PoolOption Pool 的設定選項
type PoolOption func(*Pool)

// WithIdentityHeader 讓 Pool 把 ContextWithIdentity 放入的身分以 header 送出
func WithIdentityHeader(header string) PoolOption {
	return func(p *Pool) {
		p.identityHeader = header
	}
}

// WithInterceptor 加入 UnaryClientInterceptor，可呼叫多次
func WithInterceptor(interceptor grpc.UnaryClientInterceptor) PoolOption {
	return func(p *Pool) {
		p.interceptors = append(p.interceptors, interceptor)
	}
}

// WithDialOptions 每條新連線都會附加的 DialOption
func WithDialOptions(opts ...grpc.DialOption) PoolOption {
	return func(p *Pool) {
		p.dialOptions = append(p.dialOptions, opts...)
	}
}

// WithKeepalive 覆寫 keepalive 間隔與逾時
func WithKeepalive(interval, timeout time.Duration) PoolOption {
	return func(p *Pool) {
		p.keepalive.Time = interval
		p.keepalive.Timeout = timeout
	}
}

// NewPool 建立連線池
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		conns: make(map[string]*grpc.ClientConn),
		keepalive: keepalive.ClientParameters{
			Time:                defaultKeepaliveTime,
			Timeout:             defaultKeepaliveTimeout,
			PermitWithoutStream: true,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetConnection 取得 target 的共用連線，不存在或已關閉時建立新的
//
// 參數:
//
//	target: 目標地址 (e.g., "localhost:50051" 或 "passthrough:///bufnet")
//	opts: 只套用在這次新建連線的額外選項
//
// 回傳:
//
//	*grpc.ClientConn: 共用連線，由 Pool.Close 關閉
//	error: 建立失敗
func (p *Pool) GetConnection(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	p.mu.RLock()
	conn, ok := p.conns[target]
	p.mu.RUnlock()
	if ok && conn.GetState() != connectivity.Shutdown {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// 等鎖期間可能已被其他 goroutine 建好
	if conn, ok := p.conns[target]; ok && conn.GetState() != connectivity.Shutdown {
		return conn, nil
	}

	// grpc.NewClient 不會立即連線，第一次呼叫時才建立 transport
	conn, err := grpc.NewClient(target, p.dialOptionsFor(opts)...)
	if err != nil {
		return nil, fmt.Errorf("grpc pool: new client for %s: %w", target, err)
	}
	p.conns[target] = conn
	return conn, nil
}

// dialOptionsFor 組合預設、Pool 層級與單次的 DialOption，後者可覆寫前者
func (p *Pool) dialOptionsFor(extra []grpc.DialOption) []grpc.DialOption {
	// 內部服務走私有網路，預設不加密
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(p.keepalive),
	}

	chain := make([]grpc.UnaryClientInterceptor, 0, len(p.interceptors)+1)
	if p.identityHeader != "" {
		chain = append(chain, identityInterceptor(p.identityHeader))
	}
	chain = append(chain, p.interceptors...)
	if len(chain) > 0 {
		opts = append(opts, grpc.WithChainUnaryInterceptor(chain...))
	}

	opts = append(opts, p.dialOptions...)
	return append(opts, extra...)
}

// Close 關閉所有連線並清空連線池，回傳第一個錯誤
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for target, conn := range p.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("grpc pool: close %s: %w", target, err)
		}
		delete(p.conns, target)
	}
	return firstErr
}
