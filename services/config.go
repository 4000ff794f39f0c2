package services

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// splitChain parses a comma-separated provider list, dropping empty items.
func splitChain(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Config holds application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Model         ModelConfig
	Speech        SpeechConfig
	Blob          BlobConfig
	JWT           JWTConfig
	Interview     InterviewConfig
	Prompts       PromptsConfig
	Transcription TranscriptionConfig
}

type ServerConfig struct {
	ListenAddr        string
	MaxRequestSeconds int
}

func (s ServerConfig) RequestCeiling() time.Duration {
	return time.Duration(s.MaxRequestSeconds) * time.Second
}

type DatabaseConfig struct {
	URL          string
	Seed         bool
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

type RedisConfig struct {
	URL string
}

type ModelConfig struct {
	ProviderURL string
	ProviderKey string
	Name        string
}

type SpeechConfig struct {
	TTSModelName  string
	ProviderChain []string
	OpenAIKey     string
	ElevenLabsKey string
}

type BlobConfig struct {
	Bucket         string
	Region         string
	Endpoint       string
	KeyPrefix      string
	SignTTLSeconds int

	// Static credentials for S3-compatible stores (minio, r2). Empty
	// means the default AWS credential chain.
	AccessKeyID     string
	SecretAccessKey string
}

func (b BlobConfig) SignTTL() time.Duration {
	return time.Duration(b.SignTTLSeconds) * time.Second
}

type JWTConfig struct {
	Secret string
}

type InterviewConfig struct {
	DefaultTotalQuestions int
}

type PromptsConfig struct {
	Dir string
}

type TranscriptionConfig struct {
	Concurrency int
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.listen_addr", ":8080")
	viper.SetDefault("server.max_request_seconds", "120")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.seed", "false")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("model.provider_url", "")
	viper.SetDefault("model.provider_key", "")
	viper.SetDefault("model.name", "gemini-2.5-flash")
	viper.SetDefault("speech.tts_model_name", "gemini-2.5-flash-preview-tts")
	viper.SetDefault("speech.provider_chain", "gemini,openai,elevenlabs")
	viper.SetDefault("speech.openai_api_key", "")
	viper.SetDefault("speech.elevenlabs_api_key", "")
	viper.SetDefault("blob.bucket", "")
	viper.SetDefault("blob.region", "us-east-1")
	viper.SetDefault("blob.endpoint", "")
	viper.SetDefault("blob.key_prefix", "")
	viper.SetDefault("blob.sign_ttl_seconds", "3600")
	viper.SetDefault("blob.access_key_id", "")
	viper.SetDefault("blob.secret_access_key", "")
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("interview.default_total_questions", "7")
	viper.SetDefault("prompts.dir", "")
	viper.SetDefault("transcription.concurrency", "10")

	// Map environment variables to config keys
	viper.BindEnv("server.listen_addr", "LISTEN_ADDR")
	viper.BindEnv("server.max_request_seconds", "MAX_REQUEST_SECONDS")
	viper.BindEnv("database.url", "DB_URL")
	viper.BindEnv("database.seed", "DATABASE_SEED")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("redis.url", "REDIS_URL")
	viper.BindEnv("model.provider_url", "MODEL_PROVIDER_URL")
	viper.BindEnv("model.provider_key", "MODEL_PROVIDER_KEY")
	viper.BindEnv("model.name", "MODEL_NAME")
	viper.BindEnv("speech.tts_model_name", "TTS_MODEL_NAME")
	viper.BindEnv("speech.provider_chain", "TTS_PROVIDER_CHAIN")
	viper.BindEnv("speech.openai_api_key", "OPENAI_API_KEY")
	viper.BindEnv("speech.elevenlabs_api_key", "ELEVENLABS_API_KEY")
	viper.BindEnv("blob.bucket", "BLOB_BUCKET")
	viper.BindEnv("blob.region", "BLOB_REGION")
	viper.BindEnv("blob.endpoint", "BLOB_ENDPOINT")
	viper.BindEnv("blob.key_prefix", "BLOB_KEY_PREFIX")
	viper.BindEnv("blob.sign_ttl_seconds", "BLOB_SIGN_TTL_SECONDS")
	viper.BindEnv("blob.access_key_id", "BLOB_ACCESS_KEY_ID")
	viper.BindEnv("blob.secret_access_key", "BLOB_SECRET_ACCESS_KEY")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("interview.default_total_questions", "DEFAULT_TOTAL_QUESTIONS")
	viper.BindEnv("prompts.dir", "PROMPTS_DIR")
	viper.BindEnv("transcription.concurrency", "TRANSCRIPTION_CONCURRENCY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return &Config{
		Server: ServerConfig{
			ListenAddr:        viper.GetString("server.listen_addr"),
			MaxRequestSeconds: viper.GetInt("server.max_request_seconds"),
		},
		Database: DatabaseConfig{
			URL:          viper.GetString("database.url"),
			Seed:         viper.GetBool("database.seed"),
			LogLevel:     viper.GetString("database.log_level"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Model: ModelConfig{
			ProviderURL: viper.GetString("model.provider_url"),
			ProviderKey: viper.GetString("model.provider_key"),
			Name:        viper.GetString("model.name"),
		},
		Speech: SpeechConfig{
			TTSModelName:  viper.GetString("speech.tts_model_name"),
			ProviderChain: splitChain(viper.GetString("speech.provider_chain")),
			OpenAIKey:     viper.GetString("speech.openai_api_key"),
			ElevenLabsKey: viper.GetString("speech.elevenlabs_api_key"),
		},
		Blob: BlobConfig{
			Bucket:          viper.GetString("blob.bucket"),
			Region:          viper.GetString("blob.region"),
			Endpoint:        viper.GetString("blob.endpoint"),
			KeyPrefix:       viper.GetString("blob.key_prefix"),
			SignTTLSeconds:  viper.GetInt("blob.sign_ttl_seconds"),
			AccessKeyID:     viper.GetString("blob.access_key_id"),
			SecretAccessKey: viper.GetString("blob.secret_access_key"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		Interview: InterviewConfig{
			DefaultTotalQuestions: viper.GetInt("interview.default_total_questions"),
		},
		Prompts: PromptsConfig{
			Dir: viper.GetString("prompts.dir"),
		},
		Transcription: TranscriptionConfig{
			Concurrency: viper.GetInt("transcription.concurrency"),
		},
	}
}
