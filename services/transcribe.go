package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmalhotra98/intervue/backend/models"
	"github.com/jmalhotra98/intervue/backend/repository"
	"github.com/jmalhotra98/intervue/backend/storage"
)

// transcriptTTL bounds transcript cache entries; the durable copy lives on
// the turn row.
const transcriptTTL = 24 * time.Hour

// Transcriber is the speech-to-text slice of a vendor.
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, mime, languageHint string) (string, Usage, error)
}

// TranscriptionService backfills user-turn transcripts from their stored
// recordings, on demand and in bounded batches.
type TranscriptionService struct {
	repo        *repository.Repository
	primary     Transcriber
	fallback    Transcriber // may be nil
	blobs       storage.BlobStore
	cache       Cache
	concurrency int
}

func NewTranscriptionService(repo *repository.Repository, primary, fallback Transcriber, blobs storage.BlobStore, cache Cache, concurrency int) *TranscriptionService {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &TranscriptionService{
		repo:        repo,
		primary:     primary,
		fallback:    fallback,
		blobs:       blobs,
		cache:       cache,
		concurrency: concurrency,
	}
}

// TranscribeTurns resolves transcripts for the given turns of one
// interview. Turns without audio or with real text already are returned
// as-is. Failures are isolated per turn and recorded with the failure
// sentinel.
func (s *TranscriptionService) TranscribeTurns(ctx context.Context, p Principal, interviewID string, turnIDs []string) (map[string]string, error) {
	iv, err := s.repo.GetInterview(ctx, interviewID, p.UserID, p.IsAdmin)
	if err != nil {
		return nil, err
	}

	results := make(map[string]string, len(turnIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, turnID := range turnIDs {
		g.Go(func() error {
			text := s.transcribeOne(gctx, iv, turnID)
			mu.Lock()
			results[turnID] = text
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// TranscribeAll backfills every audio turn of an interview that still
// holds a sentinel. Used before feedback generation.
func (s *TranscriptionService) TranscribeAll(ctx context.Context, p Principal, interviewID string) error {
	history, err := s.repo.History(ctx, interviewID)
	if err != nil {
		return err
	}
	var pending []string
	for _, t := range history {
		if t.Role == models.RoleUser && t.AudioKey != nil && models.IsSentinel(t.Content) && t.Content != models.SentinelSilent {
			pending = append(pending, t.ID)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	_, err = s.TranscribeTurns(ctx, p, interviewID, pending)
	return err
}

// transcribeOne resolves a single turn's transcript and persists it. The
// returned text is what the display layer should show.
func (s *TranscriptionService) transcribeOne(ctx context.Context, iv *models.Interview, turnID string) string {
	turn, err := s.repo.GetTurn(ctx, iv.ID, turnID)
	if err != nil {
		slog.Warn("transcription: turn not found", "interview_id", iv.ID, "turn_id", turnID)
		return models.SentinelNoTranscript
	}
	if !models.IsSentinel(turn.Content) {
		return turn.Content
	}
	if turn.AudioKey == nil {
		return models.SentinelNoTranscript
	}

	if cached, ok, _ := s.cache.Get(ctx, cacheNSTranscript+*turn.AudioKey); ok {
		s.store(ctx, iv.ID, turnID, cached)
		return cached
	}

	data, err := s.blobs.Get(ctx, *turn.AudioKey)
	if err != nil {
		slog.Error("transcription: audio fetch failed", "key", *turn.AudioKey, "error", err)
		s.store(ctx, iv.ID, turnID, models.SentinelTranscriptionFailed)
		return models.SentinelTranscriptionFailed
	}
	mime := s.recordingMIME(ctx, iv.ID, turn)

	text, _, err := s.primary.Transcribe(ctx, data, mime, iv.Language)
	if err != nil && s.fallback != nil {
		slog.Warn("primary transcription failed, trying fallback", "error", err)
		text, _, err = s.fallback.Transcribe(ctx, data, mime, iv.Language)
	}
	if err != nil {
		slog.Error("transcription failed", "interview_id", iv.ID, "turn_id", turnID, "error", err)
		s.store(ctx, iv.ID, turnID, models.SentinelTranscriptionFailed)
		return models.SentinelTranscriptionFailed
	}

	if text == "" {
		text = models.SentinelSilent
	}
	if err := s.cache.Set(ctx, cacheNSTranscript+*turn.AudioKey, text, transcriptTTL); err != nil {
		slog.Warn("transcript cache write failed", "error", err)
	}
	s.store(ctx, iv.ID, turnID, text)
	return text
}

func (s *TranscriptionService) store(ctx context.Context, interviewID, turnID, text string) {
	if err := s.repo.SetTurnContent(ctx, interviewID, turnID, text); err != nil {
		slog.Warn("transcript backfill rejected", "turn_id", turnID, "error", err)
	}
}

// recordingMIME looks up the recording's stored MIME type, defaulting to
// webm when the recording row is missing.
func (s *TranscriptionService) recordingMIME(ctx context.Context, interviewID string, turn *models.Turn) string {
	var rec models.AudioRecording
	err := s.repo.DB().WithContext(ctx).
		First(&rec, "interview_id = ? AND blob_key = ?", interviewID, *turn.AudioKey).Error
	if err != nil || rec.MIMEType == "" {
		return "audio/webm"
	}
	return rec.MIMEType
}
