package main

import (
	"context"

	"github.com/gabapcia/paywatch/internal/chainwatch"
	"github.com/gabapcia/paywatch/internal/config"
	"github.com/gabapcia/paywatch/internal/handlers/cli"
	"github.com/gabapcia/paywatch/internal/handlers/rest"
	"github.com/gabapcia/paywatch/internal/infra/blockchain/solana"
	"github.com/gabapcia/paywatch/internal/infra/storage/postgres"
	"github.com/gabapcia/paywatch/internal/infra/storage/redis"
	"github.com/gabapcia/paywatch/internal/ledger"
	"github.com/gabapcia/paywatch/internal/payproc"
	"github.com/gabapcia/paywatch/internal/pkg/logger"
	"github.com/gabapcia/paywatch/internal/pkg/resilience/retry"
	"github.com/gabapcia/paywatch/internal/pkg/telemetry"
	transporthttp "github.com/gabapcia/paywatch/internal/pkg/transport/http"
	"github.com/gabapcia/paywatch/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/paywatch/internal/walletquery"
	"github.com/gabapcia/paywatch/internal/walletregistry"
	"github.com/gabapcia/paywatch/internal/webhook"
)

const serviceName = "paywatch"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel)); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.OtelExporterEndpoint != "" {
		shutdown, err := telemetry.Init(ctx, serviceName)
		if err != nil {
			logger.Fatal(ctx, "failed to initialize telemetry", "error", err)
		}
		defer shutdown(ctx)
	}

	db, err := postgres.NewClient(ctx, cfg.DatabaseURL, cfg.DatabaseMaxOpenConns)
	if err != nil {
		logger.Fatal(ctx, "failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal(ctx, "failed to run database migrations", "error", err)
	}

	cache, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal(ctx, "failed to connect to redis", "error", err)
	}
	defer cache.Close()

	rpcConn := jsonrpc.NewClient(transporthttp.NewClient().StandardClient(), cfg.SolanaRPCEndpoint)
	chain := solana.NewClient(rpcConn, cfg.TokenMint)

	var (
		registry   = walletregistry.New(db)
		reconciler = ledger.New(db)
		query      = walletquery.New(db, cfg.TokenName, cfg.TokenSymbol)
	)

	dispatcher := webhook.New(db, db, db,
		webhook.WithTriggerStatuses(cfg.WebhookNotifyOn...),
		webhook.WithMaxAttempts(cfg.WebhookMaxAttempts),
		webhook.WithBackoff(webhook.NewExponentialBackoff(cfg.WebhookBackoffBase, cfg.WebhookBackoffCeiling)),
		webhook.WithDispatchInterval(cfg.WebhookDispatchInterval),
		webhook.WithBatchSize(cfg.WebhookDispatchBatch),
		webhook.WithLeaseTTL(cfg.WebhookLeaseTTL),
		webhook.WithSigningSecret(cfg.WebhookSecret),
	)

	watcher := chainwatch.New(chain, db, payproc.NewSink(reconciler, dispatcher),
		chainwatch.WithWatermarkStorage(cache),
		chainwatch.WithPollInterval(cfg.PollInterval),
		chainwatch.WithBatchLimit(cfg.PollBatchLimit),
		chainwatch.WithMaxConcurrency(cfg.PollMaxWallets),
		chainwatch.WithRetry(retry.New()),
	)

	var (
		pipeline = payproc.New(watcher, dispatcher)
		api      = rest.NewServer(cfg.HTTPAddr, registry, query, dispatcher)
	)

	if err := cli.Run(ctx, registry, pipeline, api); err != nil {
		logger.Fatal(ctx, "application exited with error", "error", err)
	}
}
