package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	grpc_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-wallet-ledger/pkg/grpc"
	"github.com/JoeShih716/go-wallet-ledger/pkg/logger"
)

// 對帳本服務做來回轉帳壓測，結束時檢查兩個帳戶總額不變
func main() {
	target := flag.String("target", "localhost:50051", "ledger grpc address")
	total := flag.Int("n", 100000, "number of transfers")
	concurrency := flag.Int("c", 200, "concurrent requests")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	log, _, err := logger.New(logger.Config{Environment: logger.EnvironmentLocal, Level: "info"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	pool := grpc.NewPool(
		grpc.WithIdentityHeader(grpc_adapter.OwnerMetadataKey),
		grpc.WithInterceptor(grpc.LoggingInterceptor(log)),
	)
	defer pool.Close()
	conn, err := pool.GetConnection(*target)
	if err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	client := grpc_adapter.NewLedgerServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// 每次執行使用新的擁有者，避免與前次資料衝突
	run := uuid.NewString()[:8]
	owners := [2]string{"loadtest-a-" + run, "loadtest-b-" + run}
	var ids [2]string
	for i, owner := range owners {
		if ids[i], err = setupAccount(ctx, client, owner); err != nil {
			log.Fatal("setup account", zap.String("owner", owner), zap.Error(err))
		}
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Int64
		sem    = make(chan struct{}, *concurrency)
	)
	start := time.Now()
	for i := 0; i < *total; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			from, to := idx%2, (idx+1)%2
			req, _ := structpb.NewStruct(map[string]any{
				"from_account_id": ids[from],
				"to_account_id":   ids[to],
				"amount":          "1",
			})
			if _, err := client.Transfer(as(ctx, owners[from]), req); err != nil {
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	sum := decimal.Zero
	for i, owner := range owners {
		req, _ := structpb.NewStruct(map[string]any{"account_id": ids[i]})
		resp, err := client.GetAccount(as(ctx, owner), req)
		if err != nil {
			log.Fatal("read balance", zap.Error(err))
		}
		balance := resp.GetFields()["account"].GetStructValue().GetFields()["balance"].GetStringValue()
		v, err := decimal.NewFromString(balance)
		if err != nil {
			log.Fatal("parse balance", zap.String("balance", balance), zap.Error(err))
		}
		sum = sum.Add(v)
	}

	log.Info("loadtest finished",
		zap.Int("transfers", *total),
		zap.Int64("failed", failed.Load()),
		zap.Duration("elapsed", elapsed),
		zap.Float64("tps", float64(*total)/elapsed.Seconds()),
		zap.Stringer("total_balance", sum),
	)
	if want := decimal.NewFromInt(2 * initialBalance); !sum.Equal(want) {
		log.Fatal("balances drifted", zap.Stringer("want", want), zap.Stringer("got", sum))
	}
}

const initialBalance = 1000

func as(ctx context.Context, owner string) context.Context {
	return grpc.ContextWithIdentity(ctx, owner)
}

func setupAccount(ctx context.Context, client *grpc_adapter.LedgerServiceClient, owner string) (string, error) {
	req, _ := structpb.NewStruct(map[string]any{"currency": "USD"})
	resp, err := client.CreateAccount(as(ctx, owner), req)
	if err != nil {
		return "", err
	}
	id := resp.GetFields()["account"].GetStructValue().GetFields()["id"].GetStringValue()

	req, _ = structpb.NewStruct(map[string]any{"account_id": id, "amount": fmt.Sprint(initialBalance)})
	if _, err := client.Deposit(as(ctx, owner), req); err != nil {
		return "", err
	}
	return id, nil
}
