package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/styleforge/backend/internal/blobstore"
	"github.com/styleforge/backend/internal/config"
	"github.com/styleforge/backend/internal/generation"
	"github.com/styleforge/backend/internal/ledger"
	"github.com/styleforge/backend/internal/locks"
	"github.com/styleforge/backend/internal/payments"
	"github.com/styleforge/backend/internal/repository"
	"github.com/styleforge/backend/internal/tasks"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Cannot reach Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	creditRepo := repository.NewCreditRepo(pool)
	taskRepo := repository.NewTaskRepo(pool)
	orderRepo := repository.NewOrderRepo(pool)

	ledgerSvc := ledger.NewService(accountRepo, creditRepo)

	// Jobs: insert func is set after River client is created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn tasks.InsertGenerateJobTxFunc
	insertGenerateJob := func(ctx context.Context, tx pgx.Tx, args generation.GenerateJobArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	taskSvc := tasks.NewService(pool, taskRepo, accountRepo, ledgerSvc, insertGenerateJob, cfg.TaskCreditCost, cfg.WelcomeCredits, logger)

	// Generation worker
	genClient := generation.NewClient(nil, cfg.GenerationAPIURL, cfg.GenerationAPIKey, cfg.GenerationModel)
	blobs := blobstore.NewS3Store(blobstore.S3Config{
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})

	workers := river.NewWorkers()
	river.AddWorker(workers, generation.NewGenerateWorker(taskSvc, genClient, blobs, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args generation.GenerateJobArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	// Payments
	lockMgr := locks.NewManager(rdb)
	gateway := payments.NewClient(nil, cfg.PaymentAPIURL, cfg.PaymentMerchantID, cfg.PaymentSecret)
	reconciler := payments.NewReconciler(pool, orderRepo, ledgerSvc, lockMgr, gateway, logger)

	validator, err := tasks.NewValidator(cfg.SchemaDir)
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	RegisterV1Routes(mux, cfg, taskSvc, reconciler, orderRepo, accountRepo, creditRepo, validator, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (processes jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
