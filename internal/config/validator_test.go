package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level), level)
	}
	assert.Error(t, v.ValidateLogLevel("verbose"))
	assert.Error(t, v.ValidateLogLevel(""))
}

func TestValidateStorageDriver(t *testing.T) {
	v := NewValidator()

	t.Run("known drivers", func(t *testing.T) {
		assert.NoError(t, v.ValidateStorageDriver("file"))
		assert.NoError(t, v.ValidateStorageDriver("sqlite"))
		assert.NoError(t, v.ValidateStorageDriver("redis"))
	})

	t.Run("empty uses default", func(t *testing.T) {
		assert.NoError(t, v.ValidateStorageDriver(""))
	})

	t.Run("unknown driver", func(t *testing.T) {
		err := v.ValidateStorageDriver("mongo")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "file, sqlite, redis")
	})
}

func TestValidatePort(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidatePort(8787))
	assert.Error(t, v.ValidatePort(0))
	assert.Error(t, v.ValidatePort(65536))
}

func TestValidateOrigin(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateOrigin("*"))
	assert.NoError(t, v.ValidateOrigin("http://localhost:3000"))
	assert.NoError(t, v.ValidateOrigin("https://vigil.example.com"))
	assert.Error(t, v.ValidateOrigin("localhost:3000"))
	assert.Error(t, v.ValidateOrigin("http://localhost:3000/app"))
}

func TestValidateToolType(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateToolType("price_monitor"))
	assert.NoError(t, v.ValidateToolType("will_executor"))

	err := v.ValidateToolType("email_sender")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "price_monitor")
}

func TestValidateHookEvent(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateHookEvent("notification.created"))
	assert.NoError(t, v.ValidateHookEvent("daemon.startup"))

	err := v.ValidateHookEvent("agent:bootstrap")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "event.fired")
}

func TestValidateSignatureAlgorithm(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateSignatureAlgorithm(""))
	assert.NoError(t, v.ValidateSignatureAlgorithm("sha1"))
	assert.Error(t, v.ValidateSignatureAlgorithm("md5"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("defaults are valid", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(DefaultConfig()))
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Logging.Level = "loud"
		cfg.Storage.Driver = "mongo"
		cfg.API.Port = -1
		cfg.API.AllowedOrigins = []string{"not an origin"}
		cfg.Tracing.Enabled = true
		cfg.Tracing.SampleRate = 2
		cfg.Tools = []ToolConfig{
			{Name: "a", Type: "unknown"},
			{Name: "b", Type: "price_monitor"},
			{Name: "b", Type: "price_monitor"},
		}

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 7)
	})

	t.Run("redis requires an address", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storage.Driver = "redis"
		cfg.Storage.Redis.Addr = ""

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 1)
	})

	t.Run("hooks are checked only when enabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Hooks.Items = []HookConfig{{ID: "bad", Event: "nope", Enabled: true}}
		assert.Empty(t, v.ValidateConfig(cfg))

		cfg.Hooks.Enabled = true
		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 2, "unknown event and missing script")

		cfg.Hooks.Items[0].Enabled = false
		assert.Empty(t, v.ValidateConfig(cfg))
	})

	t.Run("webhook sources", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Webhooks.Enabled = true
		cfg.Webhooks.Sources = []WebhookSource{
			{Source: "alerts", Secret: "x"},
			{Source: "alerts"},
			{Source: ""},
			{Source: "gh", Algorithm: "md5"},
		}

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 3)
	})
}
