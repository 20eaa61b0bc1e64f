package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr     string
	LogLevel     string
	JWTSecret    string
	AllowOrigins []string

	// Locale
	Locale     string
	LabelsFile string

	// Session persistence
	BlobBackend   string
	BlobKey       string
	DBDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DynamoTable   string
	SessionOrder  string

	ChatContextWindowSize int
	GenerationTimeout     time.Duration

	// AI provider
	AIProvider        string
	AITemperature     float32
	GeminiAPIKey      string
	GeminiModel       string
	GeminiGrounding   bool
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string

	// rabbitMQ
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int
	WorkerMaxRetries  int
	WorkerRetryDelay  time.Duration
}

func Load() Config {
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	locale := os.Getenv("LOCALE")
	if locale == "" {
		locale = "id"
	}

	backend := strings.ToLower(os.Getenv("BLOB_BACKEND"))
	if backend == "" {
		backend = "sqlite"
	}

	blobKey := os.Getenv("BLOB_KEY")
	if blobKey == "" {
		blobKey = "research_sessions"
	}

	// DSN demo:
	// sqlite: research.db
	// mysql:  app:apppass@tcp(127.0.0.1:3306)/research?charset=utf8mb4&parseTime=true&loc=Local
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "research.db"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	dynamoTable := os.Getenv("DYNAMO_TABLE")
	if dynamoTable == "" {
		dynamoTable = "research-chat"
	}

	sessionOrder := os.Getenv("SESSION_ORDER")
	if sessionOrder == "" {
		sessionOrder = "created"
	}

	// AI provider config
	aiProvider := os.Getenv("AI_PROVIDER")
	if aiProvider == "" {
		aiProvider = "gemini"
	}

	geminiModel := os.Getenv("GEMINI_MODEL")
	if geminiModel == "" {
		geminiModel = "gemini-3-pro-preview"
	}

	ollamaBaseURL := os.Getenv("OLLAMA_BASE_URL")
	if ollamaBaseURL == "" {
		ollamaBaseURL = "http://localhost:11434"
	}

	ollamaModel := os.Getenv("OLLAMA_MODEL")
	if ollamaModel == "" {
		ollamaModel = "llama3:latest"
	}

	openRouterBaseURL := os.Getenv("OPENROUTER_BASE_URL")
	if openRouterBaseURL == "" {
		openRouterBaseURL = "https://openrouter.ai/api/v1"
	}
	openRouterModel := os.Getenv("OPENROUTER_MODEL")
	if openRouterModel == "" {
		openRouterModel = "openrouter/auto"
	}

	// rabbitMQ config; an empty URL disables error-record publishing
	rabbitQueue := os.Getenv("RABBIT_QUEUE")
	if rabbitQueue == "" {
		rabbitQueue = "chat_errors"
	}

	workers := intEnv("WORKER_CONCURRENCY", 2)
	if workers <= 0 {
		workers = 2
	}
	if workers > 50 {
		workers = 50
	}

	return Config{
		HTTPAddr:     httpAddr,
		LogLevel:     logLevel,
		JWTSecret:    os.Getenv("JWT_SECRET"),
		AllowOrigins: listEnv("CORS_ALLOW_ORIGINS"),

		Locale:     locale,
		LabelsFile: os.Getenv("LABELS_FILE"),

		BlobBackend:   backend,
		BlobKey:       blobKey,
		DBDSN:         dsn,
		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intEnv("REDIS_DB", 0),
		DynamoTable:   dynamoTable,
		SessionOrder:  sessionOrder,

		ChatContextWindowSize: intEnv("CHAT_CONTEXT_WINDOW_SIZE", 20),
		GenerationTimeout:     durationEnv("GENERATION_TIMEOUT", 90*time.Second),

		AIProvider:        aiProvider,
		AITemperature:     float32Env("AI_TEMPERATURE", 0.7),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       geminiModel,
		GeminiGrounding:   boolEnv("GEMINI_GROUNDING", true),
		OllamaBaseURL:     ollamaBaseURL,
		OllamaModel:       ollamaModel,
		OpenRouterBaseURL: openRouterBaseURL,
		OpenRouterAPIKey:  os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:   openRouterModel,
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       rabbitQueue,
		WorkerConcurrency: workers,
		WorkerMaxRetries:  intEnv("WORKER_MAX_RETRIES", 3),
		WorkerRetryDelay:  durationEnv("WORKER_RETRY_DELAY", 10*time.Second),
	}
}

// Unparsable values fall back to the default.

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// listEnv splits a comma-separated value, dropping blanks.
func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func boolEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func float32Env(key string, def float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
