package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, "sonar", cfg.Content.Model)
	assert.Equal(t, 3, cfg.Content.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Content.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Content.BackoffUnit)
	assert.Equal(t, 500, cfg.Content.MinWords)
	assert.Equal(t, "eleven_multilingual_v2", cfg.Speech.ModelID)
	assert.Equal(t, 55*time.Minute, cfg.Publisher.TokenTTL)
	assert.Equal(t, "metro_business_brief", cfg.Trigger.FallbackSeriesID)
	assert.Equal(t, 10, cfg.Pipeline.KeepArtifacts)
	assert.Equal(t, 5, cfg.Pipeline.StatusLimit)
	assert.False(t, cfg.Database.Enabled)
	assert.False(t, cfg.Schedule.RunOnStart)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_CONTENT_KEY", "pplx-123")
	t.Setenv("TEST_BUCKET", "audio")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
credentials:
  content_api_key: ${TEST_CONTENT_KEY}
storage:
  bucket: ${TEST_BUCKET}
content:
  max_retries: 5
  backoff_unit: 500ms
trigger:
  fallback_series_id: tech_voice
speech:
  voice_settings:
    stability: 0.7
database:
  enabled: true
  user: podcaster
  dbname: ledger
log_level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pplx-123", cfg.Credentials.ContentAPIKey)
	assert.Equal(t, "audio", cfg.Storage.Bucket)
	assert.Equal(t, 5, cfg.Content.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Content.BackoffUnit)
	assert.Equal(t, "tech_voice", cfg.Trigger.FallbackSeriesID)
	require.NotNil(t, cfg.Speech.VoiceSettings.Stability)
	assert.InDelta(t, 0.7, *cfg.Speech.VoiceSettings.Stability, 1e-9)
	assert.Nil(t, cfg.Speech.VoiceSettings.Style)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "host=localhost port=5432 user=podcaster password= dbname=ledger sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestCredentials_Missing(t *testing.T) {
	assert.Equal(t, []string{"content_api_key", "speech_api_key", "publisher_client_id", "publisher_client_secret"},
		CredentialsConfig{}.Missing())
	assert.Empty(t, CredentialsConfig{
		ContentAPIKey:         "a",
		SpeechAPIKey:          "b",
		PublisherClientID:     "c",
		PublisherClientSecret: "d",
	}.Missing())
}
