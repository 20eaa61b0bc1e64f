package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/research-chat/internal/ai"
	"github.com/suPer8Hu/research-chat/internal/config"
	"github.com/suPer8Hu/research-chat/internal/observe"
	"go.uber.org/zap"
)

func testConfig() config.Config {
	return config.Config{
		Locale:                "en",
		BlobBackend:           "memory",
		BlobKey:               "research_sessions",
		SessionOrder:          "created",
		ChatContextWindowSize: 20,
		AIProvider:            "ollama",
		OllamaBaseURL:         "http://127.0.0.1:1",
		OllamaModel:           "llama3:latest",
		GeminiModel:           "gemini-3-pro-preview",
	}
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("debug")
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zap.DebugLevel))

	log, err = NewLogger("warn")
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zap.InfoLevel))

	_, err = NewLogger("loud")
	require.Error(t, err)
}

func TestLocale_LabelsFile(t *testing.T) {
	cfg := testConfig()
	loc, err := Locale(cfg)
	require.NoError(t, err)
	require.Equal(t, "en", loc.Name)

	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_title: Hasil\n"), 0o600))
	cfg.LabelsFile = path
	loc, err = Locale(cfg)
	require.NoError(t, err)
	require.Equal(t, "Hasil", loc.DefaultTitle)
}

func TestOpenBlobStore(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig()
	blobs, closeFn, err := OpenBlobStore(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, blobs.Save(ctx, "k", []byte("v")))
	require.NoError(t, closeFn())

	cfg.BlobBackend = "sqlite"
	cfg.DBDSN = "file:" + t.Name() + "?mode=memory&cache=shared"
	blobs, closeFn, err = OpenBlobStore(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, blobs.Save(ctx, "k", []byte("v")))
	got, err := blobs.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(got))
	require.NoError(t, closeFn())

	cfg.BlobBackend = "etcd"
	_, _, err = OpenBlobStore(ctx, cfg)
	require.ErrorContains(t, err, "unsupported BLOB_BACKEND")
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(testConfig())
	require.Equal(t, []string{"gemini", "ollama", "openrouter"}, reg.Names())

	p, err := reg.Get(context.Background(), "ollama", "")
	require.NoError(t, err)
	require.Equal(t, "llama3:latest", p.(*ai.OllamaProvider).Model)

	_, err = reg.Get(context.Background(), "gemini", "")
	require.ErrorContains(t, err, "api key is required")
}

func TestNewReporter_LogOnlyWithoutRabbit(t *testing.T) {
	rep, closeFn, err := NewReporter(testConfig(), zap.NewNop())
	require.NoError(t, err)
	_, ok := rep.(*observe.LogReporter)
	require.True(t, ok)
	require.NoError(t, closeFn())
}

func TestNew(t *testing.T) {
	app, err := New(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close()) }()

	sessions := app.Store.ListSessions()
	require.Len(t, sessions, 1)
	require.Equal(t, "New Research Discussion", sessions[0].Title)
	require.False(t, app.Service.ActiveInFlight())
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.SessionOrder = "random"
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg = testConfig()
	cfg.AIProvider = "unknown"
	_, err = New(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown ai provider")
}
