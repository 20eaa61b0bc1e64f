// Package bootstrap wires the chat core from configuration. It is shared by
// the HTTP server, the CLI and the worker.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/suPer8Hu/research-chat/internal/ai"
	"github.com/suPer8Hu/research-chat/internal/chat"
	"github.com/suPer8Hu/research-chat/internal/config"
	"github.com/suPer8Hu/research-chat/internal/db"
	"github.com/suPer8Hu/research-chat/internal/observe"
	"github.com/suPer8Hu/research-chat/internal/research"
	"github.com/suPer8Hu/research-chat/internal/store/dynamostore"
	"github.com/suPer8Hu/research-chat/internal/store/memstore"
	"github.com/suPer8Hu/research-chat/internal/store/rabbitmq"
	"github.com/suPer8Hu/research-chat/internal/store/redisstore"
	"github.com/suPer8Hu/research-chat/internal/store/sqlstore"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production zap logger at level ("debug", "info", ...).
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// Locale resolves the configured locale and applies the optional label file.
func Locale(cfg config.Config) (research.Locale, error) {
	loc := research.LocaleByName(cfg.Locale)
	if cfg.LabelsFile == "" {
		return loc, nil
	}
	return research.LoadLocale(cfg.LabelsFile, loc)
}

// OpenBlobStore connects the configured session backend. The returned func
// releases it.
func OpenBlobStore(ctx context.Context, cfg config.Config) (chat.BlobStore, func() error, error) {
	nop := func() error { return nil }

	switch cfg.BlobBackend {
	case "memory":
		return memstore.New(), nop, nil

	case "", "sqlite", "mysql":
		driver := cfg.BlobBackend
		if driver == "" {
			driver = "sqlite"
		}
		gdb, err := db.Connect(driver, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		s, err := sqlstore.New(gdb)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}
		return s, closeDB, nil

	case "redis":
		s, err := redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		s, err := dynamostore.New(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
		if err != nil {
			return nil, nil, err
		}
		return s, nop, nil

	default:
		return nil, nil, fmt.Errorf("bootstrap: unsupported BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

// NewRegistry registers every provider the configuration can build.
func NewRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("gemini", func(ctx context.Context, model string) (ai.Provider, error) {
		if strings.TrimSpace(model) == "" {
			model = cfg.GeminiModel
		}
		return ai.NewGeminiProvider(ctx, cfg.GeminiAPIKey, model)
	})

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		if strings.TrimSpace(model) == "" {
			model = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})

	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		if strings.TrimSpace(model) == "" {
			model = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})

	return reg
}

// NewReporter logs every error record and, when RABBIT_URL is set, also
// publishes it for the worker.
func NewReporter(cfg config.Config, log *zap.Logger) (observe.Reporter, func() error, error) {
	logRep := observe.NewLogReporter(log)
	if cfg.RabbitURL == "" {
		return logRep, func() error { return nil }, nil
	}

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: rabbitmq publisher: %w", err)
	}
	queueRep := observe.NewQueueReporter(pub, log)
	closeFn := func() error {
		queueRep.Flush()
		return pub.Close()
	}
	return observe.Multi{logRep, queueRep}, closeFn, nil
}

// App is the wired chat core.
type App struct {
	Config  config.Config
	Log     *zap.Logger
	Store   *chat.Store
	Service *chat.Service

	closers []func() error
}

// New wires the core and restores the persisted sessions.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (_ *App, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	app := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	loc, err := Locale(cfg)
	if err != nil {
		return nil, err
	}
	order, err := chat.ParseOrder(cfg.SessionOrder)
	if err != nil {
		return nil, err
	}

	blobs, closeBlobs, err := OpenBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeBlobs)

	reporter, closeReporter, err := NewReporter(cfg, log)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeReporter)

	provider, err := NewRegistry(cfg).Get(ctx, cfg.AIProvider, "")
	if err != nil {
		return nil, err
	}

	app.Store = chat.NewStore(blobs,
		chat.WithLocale(loc),
		chat.WithBlobKey(cfg.BlobKey),
		chat.WithOrder(order),
		chat.WithStoreLogger(log.Named("store")),
		chat.WithStoreReporter(reporter),
	)
	app.Store.Restore(ctx)

	app.Service, err = chat.NewService(app.Store, provider,
		chat.WithLogger(log.Named("chat")),
		chat.WithReporter(reporter),
		chat.WithContextWindow(cfg.ChatContextWindowSize),
		chat.WithTimeout(cfg.GenerationTimeout),
		chat.WithGrounding(cfg.GeminiGrounding),
		chat.WithTemperature(cfg.AITemperature),
	)
	if err != nil {
		return nil, err
	}

	log.Info("chat core ready",
		zap.String("locale", loc.Name),
		zap.String("backend", cfg.BlobBackend),
		zap.String("provider", cfg.AIProvider),
		zap.Int("sessions", len(app.Store.ListSessions())),
	)
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
