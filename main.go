package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jmalhotra98/intervue/backend/prompts"
	"github.com/jmalhotra98/intervue/backend/repository"
	"github.com/jmalhotra98/intervue/backend/services"
	"github.com/jmalhotra98/intervue/backend/storage"
)

func main() {
	// Setup structured logging with JSON format
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := services.LoadConfig()
	ctx := context.Background()

	repo, err := openDatabase(cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to database")

	if cfg.Database.Seed {
		if err := services.NewDatabaseSeeder(repo).SeedDatabase(); err != nil {
			slog.Error("Database seeding failed", "error", err)
		}
	}

	cache, pingRedis := openCache(cfg)
	blobs := openBlobStore(ctx, cfg)

	catalog, err := prompts.NewCatalog(cfg.Prompts.Dir)
	if err != nil {
		slog.Error("Failed to load prompts", "error", err)
		os.Exit(1)
	}

	gemini, err := services.NewGeminiService(ctx, cfg.Model, cfg.Speech.TTSModelName)
	if err != nil {
		slog.Error("Failed to initialize model provider", "error", err)
		os.Exit(1)
	}
	slog.Info("Model provider initialized", "model", cfg.Model.Name)

	var openaiSpeech *services.OpenAISpeechService
	if cfg.Speech.OpenAIKey != "" {
		openaiSpeech = services.NewOpenAISpeechService(cfg.Speech.OpenAIKey)
	}

	var fallback services.Transcriber
	if openaiSpeech != nil {
		fallback = openaiSpeech
	}
	transcriber := services.NewTranscriptionService(repo, gemini, fallback, blobs, cache, cfg.Transcription.Concurrency)

	feedback, err := services.NewFeedbackService(repo, gemini, catalog, transcriber)
	if err != nil {
		slog.Error("Failed to initialize feedback service", "error", err)
		os.Exit(1)
	}

	engine := services.NewEngine(repo, gemini, catalog, blobs, cache, feedback, cfg)
	engine.StartJanitor(ctx, 5*time.Minute, 30*time.Minute)

	tts := services.NewTTSService(
		speechVendors(cfg, gemini, openaiSpeech),
		blobs, cache, catalog, cfg.Blob.SignTTL(),
	)

	auth := services.NewAuthService(repo, cfg.JWT.Secret)

	server := services.NewServer(cfg, services.ServerDeps{
		Repo:        repo,
		Blobs:       blobs,
		Cache:       cache,
		Engine:      engine,
		TTS:         tts,
		Transcriber: transcriber,
		Feedback:    feedback,
		Auth:        auth,
		PingRedis:   pingRedis,
	})
	server.Start()
}

func openDatabase(cfg *services.Config) (*repository.Repository, error) {
	level := gormlogger.Silent
	switch cfg.Database.LogLevel {
	case "info":
		level = gormlogger.Info
	case "warn":
		level = gormlogger.Warn
	case "error":
		level = gormlogger.Error
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	repo := repository.New(db)
	if err := repo.AutoMigrate(); err != nil {
		return nil, err
	}
	return repo, nil
}

func openCache(cfg *services.Config) (services.Cache, func(ctx context.Context) error) {
	if cfg.Redis.URL == "" {
		slog.Warn("Redis not configured, using in-memory cache")
		return services.NewMemCache(), nil
	}
	rc, err := services.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		slog.Error("Failed to connect to redis, using in-memory cache", "error", err)
		return services.NewMemCache(), nil
	}
	slog.Info("Connected to redis")
	return rc, rc.Ping
}

func openBlobStore(ctx context.Context, cfg *services.Config) storage.BlobStore {
	if cfg.Blob.Bucket == "" {
		slog.Warn("Blob bucket not configured, using in-memory store")
		return storage.NewMemStore()
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Blob.Region)}
	if cfg.Blob.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Blob.AccessKeyID, cfg.Blob.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		slog.Error("Failed to load AWS config, using in-memory store", "error", err)
		return storage.NewMemStore()
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Blob.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Blob.Endpoint)
			o.UsePathStyle = true
		}
	})
	signer := s3.NewPresignClient(client)
	slog.Info("Blob store initialized", "bucket", cfg.Blob.Bucket)
	return storage.NewS3Store(client, signer, cfg.Blob.Bucket, cfg.Blob.KeyPrefix)
}

// speechVendors assembles the synthesis chain in configured order,
// skipping vendors without credentials.
func speechVendors(cfg *services.Config, gemini *services.GeminiService, openaiSpeech *services.OpenAISpeechService) []services.SpeechVendor {
	var vendors []services.SpeechVendor
	for _, name := range cfg.Speech.ProviderChain {
		switch name {
		case "gemini":
			vendors = append(vendors, gemini)
		case "openai":
			if openaiSpeech != nil {
				vendors = append(vendors, openaiSpeech)
			}
		case "elevenlabs":
			if cfg.Speech.ElevenLabsKey != "" {
				vendors = append(vendors, services.NewElevenLabsService(cfg.Speech.ElevenLabsKey))
			}
		default:
			slog.Warn("Unknown tts vendor in chain, skipping", "vendor", name)
		}
	}
	return vendors
}
