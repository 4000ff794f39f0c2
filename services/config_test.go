package services

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg := LoadConfig()

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 120*time.Second, cfg.Server.RequestCeiling())
	assert.Equal(t, "gemini-2.5-flash", cfg.Model.Name)
	assert.Equal(t, "gemini-2.5-flash-preview-tts", cfg.Speech.TTSModelName)
	assert.Equal(t, []string{"gemini", "openai", "elevenlabs"}, cfg.Speech.ProviderChain)
	assert.Equal(t, 7, cfg.Interview.DefaultTotalQuestions)
	assert.Equal(t, time.Hour, cfg.Blob.SignTTL())
	assert.Equal(t, 10, cfg.Transcription.Concurrency)
	assert.False(t, cfg.Database.Seed)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("MODEL_NAME", "gemini-2.5-pro")
	t.Setenv("TTS_PROVIDER_CHAIN", "openai, elevenlabs")
	t.Setenv("DEFAULT_TOTAL_QUESTIONS", "3")
	t.Setenv("DATABASE_SEED", "true")

	cfg := LoadConfig()

	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model.Name)
	assert.Equal(t, []string{"openai", "elevenlabs"}, cfg.Speech.ProviderChain)
	assert.Equal(t, 3, cfg.Interview.DefaultTotalQuestions)
	assert.True(t, cfg.Database.Seed)
}

func TestSplitChain(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitChain("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitChain(" a , b "))
	assert.Equal(t, []string{"solo"}, splitChain("solo"))
	assert.Nil(t, splitChain(""))
	assert.Nil(t, splitChain(" , ,"))
}
