package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/ai"
	"github.com/spigell/placement-engine/internal/ai/gemini"
	"github.com/spigell/placement-engine/internal/ai/langchain"
	"github.com/spigell/placement-engine/internal/events"
	"github.com/spigell/placement-engine/internal/extract"
	"github.com/spigell/placement-engine/internal/feedback"
	"github.com/spigell/placement-engine/internal/intake"
	"github.com/spigell/placement-engine/internal/lifecycle"
	"github.com/spigell/placement-engine/internal/logger"
	"github.com/spigell/placement-engine/internal/matching"
	"github.com/spigell/placement-engine/internal/secrets"
	"github.com/spigell/placement-engine/internal/store"
)

const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
)

// engine holds every long-lived dependency a command may need.
type engine struct {
	config    *Config
	logger    *zap.Logger
	store     store.Store
	extractor *extract.Extractor
	matcher   *matching.Matcher
	manager   *lifecycle.Manager
	closers   []func()
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	_ = e.logger.Sync()
}

func buildEngine(ctx context.Context, config *Config, log *zap.Logger) (*engine, error) {
	e := &engine{config: config, logger: log}

	st, closeStore, err := openStore(ctx, config.Store, log)
	if err != nil {
		return nil, err
	}
	e.store = st
	e.closers = append(e.closers, closeStore)

	judge, err := newJudge(ctx, config.AI, log)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.extractor = extract.New(config.Extract.MaxBytes, log)

	e.matcher, err = matching.NewMatcher(judge, log.Named("matcher"), matching.Options{
		MaxLogLength:   config.AI.MaxLogLength,
		MaxResumeRunes: config.AI.MaxResumeRunes,
	})
	if err != nil {
		e.Close()
		return nil, err
	}

	generator, err := feedback.NewGenerator(judge, log.Named("feedback"), config.AI.MaxLogLength)
	if err != nil {
		e.Close()
		return nil, err
	}

	documents, err := intake.New(config.Intake.Dir, config.Intake.BaseURL)
	if err != nil {
		e.Close()
		return nil, err
	}

	publisher, closePublisher, err := newPublisher(ctx, config.Redis, log)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, closePublisher)

	e.manager, err = lifecycle.NewManager(lifecycle.Deps{
		Store:     st,
		Scorer:    e.matcher,
		Feedback:  generator,
		Extractor: e.extractor,
		Documents: documents,
		Publisher: publisher,
		Logger:    log.Named("lifecycle"),
	})
	if err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

func openStore(ctx context.Context, cfg *StoreConfig, log *zap.Logger) (store.Store, func(), error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", driverMemory:
		log.Warn("using in-memory store, data is lost on exit")
		return store.NewMemory(), func() {}, nil
	case driverPostgres:
		pg, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		log.Info("connected to postgres", zap.Int32("max_conns", cfg.MaxConns))
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg *StoreConfig) (*store.Postgres, error) {
	url, err := secrets.Load(secrets.Source{
		Name:  "database url",
		Value: cfg.DatabaseURL,
		File:  cfg.DatabaseURLFile,
		Env:   "DATABASE_URL",
	})
	if err != nil {
		return nil, err
	}

	pool, err := store.NewPostgresPool(ctx, url, cfg.MaxConns)
	if err != nil {
		return nil, err
	}
	return store.NewPostgres(pool), nil
}

func newJudge(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Judge, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider == "" {
		provider = gemini.Provider
	}
	if cfg.Gemini == nil {
		cfg.Gemini = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	var (
		base      ai.Judge
		model     string
		retryable func(error) bool
	)
	switch provider {
	case gemini.Provider:
		generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		base, model, retryable = generator, generator.Model(), gemini.IsTemporary
	case langchain.Provider:
		judge, err := langchain.NewGoogleAI(ctx, apiKey, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		base, model = judge, judge.Model()
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	judgeLogger := logger.WithJudge(log, provider, model)
	judgeLogger.Info("judge configured",
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("ai_retry_attempts", cfg.MaxRetries),
	)

	retrying := ai.Retrying(base, ai.RetryPolicy{
		MaxAttempts: cfg.MaxRetries + 1,
		Retryable:   retryable,
	}, judgeLogger)

	return ai.Bounded(retrying, cfg.Timeout), nil
}

func newPublisher(ctx context.Context, cfg *RedisConfig, log *zap.Logger) (events.Publisher, func(), error) {
	if cfg == nil || strings.TrimSpace(cfg.URL) == "" {
		log.Info("redis is not configured, lifecycle events are disabled")
		return events.Nop{}, func() {}, nil
	}

	client, err := events.NewRedisClient(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	closeClient := func() {
		if err := client.Close(); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("closing redis client", zap.Error(err))
		}
	}
	return events.NewRedisPublisher(client, cfg.ChannelPrefix), closeClient, nil
}

// setup is the common prologue of commands: logger, config, engine.
func setup(ctx context.Context) (*engine, error) {
	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	log.Info("starting the placement-engine", zap.String("version", version))

	e, err := buildEngine(ctx, config, log)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func newLogger() (*zap.Logger, error) {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}
	return log, nil
}
