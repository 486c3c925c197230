package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"crowdfund/portal-backend/internal/chain"
	"crowdfund/portal-backend/internal/config"
	"crowdfund/portal-backend/internal/funding"
	"crowdfund/portal-backend/internal/imagegen"
	"crowdfund/portal-backend/internal/projects"
	"crowdfund/portal-backend/pkg/storage"
)

// App holds the process-scoped clients and the services built on them
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Mongo      *storage.Mongo
	Redis      *redis.Client
	Chain      *chain.Client
	Projects   projects.Service
	Workflow   *funding.Workflow
	Reconciler *funding.Reconciler
}

// NewLogger returns a development logger for "debug" and a production logger
// at the given level otherwise
func NewLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// New connects every collaborator. Partial connections are closed on failure.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (a *App, err error) {
	a = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.Mongo, err = storage.ConnectMongo(ctx, storage.MongoConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Name,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err = projects.EnsureIndexes(ctx, a.Mongo.Database()); err != nil {
		return nil, err
	}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err = a.Redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	wallet, err := chain.WalletFromSettings(cfg.Chain.PrivateKey, cfg.Chain.KeystorePath, cfg.Chain.KeystorePassphrase)
	if err != nil {
		return nil, err
	}
	a.Chain, err = chain.Dial(ctx, cfg.Chain.RPCURL, wallet, chain.Config{
		ContractAddress: cfg.Chain.ContractAddress,
		ChainID:         cfg.Chain.ChainID,
		SubmitTimeout:   cfg.Chain.SubmitTimeout,
	}, logger.Named("chain"))
	if err != nil {
		return nil, err
	}

	resolver, err := newImageResolver(ctx, cfg.Images, logger.Named("images"))
	if err != nil {
		return nil, err
	}

	repo := projects.NewMongoRepository(a.Mongo.Database())
	a.Projects = projects.NewService(repo, cfg.Database.OpTimeout, logger.Named("projects"))

	journal := funding.NewRedisJournal(a.Redis)
	guard := funding.NewRedisGuard(a.Redis, cfg.Redis.GuardTTL)
	a.Workflow = funding.NewWorkflow(a.Chain, a.Projects, journal, guard, resolver, logger.Named("funding"))
	a.Reconciler = funding.NewReconciler(journal, a.Projects, a.Chain,
		cfg.Reconciler.BatchSize, cfg.Reconciler.MaxPendingAge, logger.Named("reconciler"))

	return a, nil
}

func newImageResolver(ctx context.Context, cfg config.ImagesConfig, logger *zap.Logger) (*imagegen.Resolver, error) {
	var generator imagegen.Generator
	if cfg.GeminiAPIKey != "" {
		g, err := imagegen.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		generator = g
	} else {
		logger.Info("no gemini api key, cover images fall back to the placeholder")
	}

	var store imagegen.ObjectStore
	if cfg.S3Bucket != "" {
		s3c, err := storage.NewS3Client(ctx, storage.S3Config{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		store = s3c
	}

	return imagegen.NewResolver(generator, store, imagegen.ResolverConfig{
		Bucket:         cfg.S3Bucket,
		PlaceholderURL: cfg.PlaceholderURL,
		Timeout:        cfg.Timeout,
	}, logger), nil
}

// Ping checks the record store and redis
func (a *App) Ping(ctx context.Context) map[string]string {
	status := map[string]string{"mongodb": "ok", "redis": "ok", "signer": "connected"}
	if err := a.Mongo.Ping(ctx); err != nil {
		status["mongodb"] = err.Error()
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		status["redis"] = err.Error()
	}
	if !a.Chain.Connected() {
		status["signer"] = "not configured"
	}
	return status
}

func (a *App) Close(ctx context.Context) {
	if a.Chain != nil {
		a.Chain.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.Mongo != nil {
		if err := a.Mongo.Close(ctx); err != nil {
			a.Logger.Warn("failed to close mongodb", zap.Error(err))
		}
	}
}
