package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/dkurilov/checkout/internal/config"
	"github.com/dkurilov/checkout/internal/gateway"
	"github.com/dkurilov/checkout/internal/reconciler"
	"github.com/dkurilov/checkout/internal/server"
	"github.com/dkurilov/checkout/internal/storage"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(start())
}

func start() int {
	logger, err := zap.NewProduction()
	if err != nil {
		return 1
	}

	zap.ReplaceGlobals(logger)
	defer zap.L().Sync()

	config, err := config.NewConfig()
	if err != nil {
		zap.L().Info("error create config", zap.Error(err))
		return 1
	}

	db, err := sqlx.Connect("postgres", config.DatabaseURI)
	if err != nil {
		zap.L().Info("error failed to connect to db", zap.Error(err))
		return 1
	}

	defer db.Close()

	postgresStorage, err := storage.NewPostgresStorage(db)
	if err != nil {
		zap.L().Info("error failed to create postgres storage", zap.Error(err))
		return 1
	}

	callTimeout := time.Duration(config.GatewayTimeoutSeconds) * time.Second

	engine := reconciler.NewEngine(postgresStorage, config.TrustConfirmedPayment)

	inipay := gateway.Inipay()
	engine.Register(inipay, gateway.NewClient(inipay, gateway.Config{
		MerchantID:  config.InipayMerchantID,
		SignKey:     config.InipaySignKey,
		APIKey:      config.InipayAPIKey,
		RefundURL:   config.InipayRefundURL,
		CallTimeout: callTimeout,
	}, postgresStorage))

	nicepay := gateway.Nicepay()
	engine.Register(nicepay, gateway.NewClient(nicepay, gateway.Config{
		MerchantID:  config.NicepayMerchantID,
		SignKey:     config.NicepayMerchantKey,
		APIKey:      config.NicepayMerchantKey,
		RefundURL:   config.NicepayRefundURL,
		CallTimeout: callTimeout,
	}, postgresStorage))

	server := server.NewServer(config, postgresStorage, engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := server.Start(); err != nil {
			zap.L().Info("error starting server", zap.Error(err))
			return err
		}

		return nil
	})

	<-ctx.Done()

	eg.Go(func() error {
		if err := server.Stop(); err != nil {
			zap.L().Info("error stopping server", zap.Error(err))
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return 1
	}

	return 0
}
