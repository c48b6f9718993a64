package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, ProviderGemini, cfg.LLMProvider)
	assert.Equal(t, BlobFS, cfg.BlobBackend)
	assert.Equal(t, 4, cfg.MediaParallelism)
	assert.InDelta(t, 5.0, cfg.SamsaraRateLimit, 0.001)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MEDIA_PARALLELISM", "many")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		JWTSecret:       "s",
		LLMProvider:     ProviderOpenAI,
		OpenAIAPIKey:    "k",
		SamsaraAPIToken: "t",
		BlobBackend:     BlobFS,
	}
	require.NoError(t, valid.Validate())

	missingKey := valid
	missingKey.OpenAIAPIKey = ""
	assert.ErrorContains(t, missingKey.Validate(), "OPENAI_API_KEY")

	s3 := valid
	s3.BlobBackend = BlobS3
	assert.ErrorContains(t, s3.Validate(), "S3_BUCKET")

	unknown := valid
	unknown.LLMProvider = "llama"
	unknown.JWTSecret = ""
	err := unknown.Validate()
	assert.ErrorContains(t, err, "JWT_SECRET")
	assert.ErrorContains(t, err, "unknown LLM_PROVIDER")
}

func TestNewLoggerWritesBothFormats(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := NewLogger(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("tag sync completed", "created", 2)

	assert.Contains(t, stderr.String(), "tag sync completed")
	assert.NotContains(t, stderr.String(), "hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(file.String())), &line))
	assert.Equal(t, "tag sync completed", line["msg"])
	assert.EqualValues(t, 2, line["created"])
}
