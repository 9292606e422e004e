package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-jobboard-trust/internal/config"
	"github.com/go-jobboard-trust/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-jobboard-trust/internal/infrastructure/jwt"
	"github.com/go-jobboard-trust/internal/infrastructure/memory"
	"github.com/go-jobboard-trust/internal/infrastructure/notify"
	"github.com/go-jobboard-trust/internal/infrastructure/redisstore"
	s3infra "github.com/go-jobboard-trust/internal/infrastructure/s3"
	"github.com/go-jobboard-trust/internal/infrastructure/smtp"
	"github.com/go-jobboard-trust/internal/infrastructure/sns"
	"github.com/go-jobboard-trust/internal/metrics"
	"github.com/go-jobboard-trust/internal/pkg/clock"
	"github.com/go-jobboard-trust/internal/pkg/logger"
	transporthttp "github.com/go-jobboard-trust/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger.SetupDefault(os.Stdout, cfg.LogLevel)
	if envErr != nil {
		slog.Info("no .env file found, reading from environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg := dynamo.AWSConfig(ctx, cfg)

	deps := &transporthttp.Deps{
		Clock: clock.System(),
		Settings: transporthttp.Settings{
			CodeTTL:       cfg.VerificationCodeTTL,
			DispatchWait:  cfg.DispatchWait,
			ExposeCodes:   cfg.VerificationExposeCodes,
			FlagThreshold: cfg.FlagThreshold,
			SendCodeRate:  cfg.SendCodeRate,
			SendCodeBurst: cfg.SendCodeBurst,
		},
	}
	if cfg.VerificationExposeCodes && cfg.IsProduction() {
		slog.Warn("VERIFICATION_EXPOSE_CODES is enabled in production")
	}

	switch cfg.StoreBackend {
	case "memory":
		slog.Warn("using in-memory stores; data is lost on restart")
		users := memory.NewUserDirectory()
		if err := seedUsers(users, cfg.MemorySeedFile); err != nil {
			slog.Error("could not seed users", "file", cfg.MemorySeedFile, "err", err)
			os.Exit(1)
		}
		deps.UserRepo = users
		deps.JobRepo = memory.NewJobDirectory()
		deps.ReportRepo = memory.NewReportLog()
		deps.VerificationStore = memory.NewVerificationStore()
	case "dynamo":
		// Bootstrap DynamoDB tables (creates them if they don't exist).
		dynamoClient := dynamo.NewClient(awsCfg, cfg)
		dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)
		deps.UserRepo = dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
		deps.JobRepo = dynamo.NewJobRepo(dynamoClient, cfg.DynamoTables.Jobs)
		deps.ReportRepo = dynamo.NewReportRepo(dynamoClient, cfg.DynamoTables.JobReports)
		deps.VerificationStore = dynamo.NewVerificationRepo(dynamoClient, cfg.DynamoTables.Verifications)
	default:
		slog.Error("unknown STORE_BACKEND", "value", cfg.StoreBackend)
		os.Exit(1)
	}

	switch cfg.VerificationStore {
	case "", "dynamo":
	case "redis":
		rdb, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("redis unavailable", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		deps.VerificationStore = redisstore.NewVerificationStore(rdb)
		slog.Info("verification codes stored in redis", "addr", cfg.RedisAddr)
	default:
		slog.Warn("unknown VERIFICATION_STORE, codes follow STORE_BACKEND", "value", cfg.VerificationStore)
	}

	deps.Dispatcher = notify.NewDispatcher(smtp.NewMailer(cfg), sns.NewSender(awsCfg, cfg))

	if cfg.ModerationArchiveEnabled {
		deps.Archiver = s3infra.NewArchiver(s3infra.NewClient(awsCfg, cfg), cfg.S3BucketName)
	}

	// JWT provider (optional; authenticated routes answer 401 without it).
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		deps.JWTProvider = p
	} else {
		slog.Warn("JWT provider not available", "err", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Metrics = metrics.NewCollector(reg)
	deps.Gatherer = reg

	router := transporthttp.NewRouter(ctx, cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// seedUsers loads the memory backend's users from a JSON file. Without one
// the directory starts empty and every user lookup answers 404.
func seedUsers(users *memory.UserDirectory, path string) error {
	if path == "" {
		slog.Warn("MEMORY_SEED_FILE not set; the user directory is empty")
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := users.Load(f)
	if err != nil {
		return err
	}
	slog.Info("users loaded", "file", path, "count", n)
	return nil
}
