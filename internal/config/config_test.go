package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CHROME_DEBUGGER_URL", "DB_PATH", "ANTHROPIC_API_KEY", "GEMINI_API_KEY",
		"MODEL", "API_SECRET", "REPLYDRAFT_METRICS_ADDR", "REPLYDRAFT_API_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.GetReadyPoll())
	assert.Equal(t, 800*time.Millisecond, cfg.GetDebounce())
	assert.Equal(t, time.Second, cfg.GetAttachRetry())
	assert.Equal(t, 5*time.Second, cfg.GetStatusTimeout())
	assert.Equal(t, 60*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 10*time.Second, cfg.GetNoResponseFade())
	assert.Equal(t, "anthropic", cfg.Server.Provider)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "replydraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
observer:
  debounce: 2s
store:
  path: /tmp/x.db
selectors:
  rules:
    composer: "textarea"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.GetDebounce())
	assert.Equal(t, 500*time.Millisecond, cfg.GetReadyPoll(), "untouched keys keep defaults")
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, "textarea", cfg.Selectors.Rules["composer"])
}

func TestLoad_VoiceProfile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "replydraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  persona: Alex Kim
  voice:
    summary: Direct and warm
    closings: ["Best", "Talk soon"]
    formality: 2
    examples:
      - "Happy to help. Send over the deck and I'll take a look this week."
    feedback:
      - too formal
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	v := cfg.Server.Voice
	assert.False(t, v.IsZero())
	assert.Equal(t, "Direct and warm", v.Summary)
	assert.Equal(t, []string{"Best", "Talk soon"}, v.Closings)
	assert.Equal(t, 2, v.Formality)
	assert.Len(t, v.Examples, 1)
	assert.Equal(t, []string{"too formal"}, v.Feedback)
	assert.True(t, DefaultConfig().Server.Voice.IsZero())
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("observer: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PATH", "/data/drafts.db")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("MODEL", "gemini-2.5-flash")
	t.Setenv("API_SECRET", "s3cret")
	t.Setenv("CHROME_DEBUGGER_URL", "ws://127.0.0.1:9222")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/data/drafts.db", cfg.Store.Path)
	assert.Equal(t, "gemini", cfg.Server.Provider)
	assert.Equal(t, "g-key", cfg.Server.APIKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.Server.Model)
	assert.Equal(t, "s3cret", cfg.Server.APISecret)
	assert.Equal(t, "ws://127.0.0.1:9222", cfg.Browser.DebuggerURL)
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Observer.Debounce = "soon"
	cfg.Drafts.RequestTimeout = "-5s"
	assert.Equal(t, 800*time.Millisecond, cfg.GetDebounce())
	assert.Equal(t, 60*time.Second, cfg.GetRequestTimeout())
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "replydraft.yaml")
	cfg := DefaultConfig()
	cfg.MetricsAddr = ":9100"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", loaded.MetricsAddr)
}

func TestValidateServer(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.ValidateServer(), "no key")

	cfg.Server.APIKey = "k"
	assert.Error(t, cfg.ValidateServer(), "no secret")

	cfg.Server.APISecret = "s"
	assert.NoError(t, cfg.ValidateServer())

	cfg.Server.Provider = "openai"
	assert.Error(t, cfg.ValidateServer())
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	lc := LoggingConfig{}
	assert.False(t, lc.IsCategoryEnabled("pipeline"), "production mode")

	lc.DebugMode = true
	assert.True(t, lc.IsCategoryEnabled("pipeline"))

	lc.Categories = map[string]bool{"pipeline": false}
	assert.False(t, lc.IsCategoryEnabled("pipeline"))
	assert.True(t, lc.IsCategoryEnabled("store"))
	assert.Equal(t, lc.Categories, lc.Options().Categories)
}
