package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmalhotra98/intervue/backend/envelope"
	"github.com/jmalhotra98/intervue/backend/models"
	"github.com/jmalhotra98/intervue/backend/prompts"
	"github.com/jmalhotra98/intervue/backend/repository"
	"github.com/jmalhotra98/intervue/backend/storage"
)

// kickoffMessage is the hidden user message that elicits the interviewer's
// opening question. Stored as a seed turn; never displayed.
const kickoffMessage = "Start the interview now. Greet the candidate briefly and ask your first question."

// interactionTTL bounds how long a client interactionId suppresses
// duplicate processing.
const interactionTTL = 10 * time.Minute

// ConversationStore is the persistence surface the engine drives. Satisfied
// by *repository.Repository.
type ConversationStore interface {
	GetInterview(ctx context.Context, id, callerID string, isAdmin bool) (*models.Interview, error)
	History(ctx context.Context, interviewID string) ([]models.Turn, error)
	AppendTurn(ctx context.Context, interviewID, role, content string, opts repository.AppendOptions) (*models.Turn, error)
	CountQuestions(ctx context.Context, interviewID string) (int, error)
	AttachAudioByQuestionIndex(ctx context.Context, interviewID string, questionIndex int, rec *models.AudioRecording) error
	SetTurnTTSKey(ctx context.Context, interviewID, turnID, key string) error
	SetStatus(ctx context.Context, id string, status string) error
	AddTokenUsage(ctx context.Context, id string, inputTokens, outputTokens int, cost float64) error
	AddDuration(ctx context.Context, id string, seconds int) error
}

// Engine drives one interview conversation per request: seeding, turn
// appends, model streaming, termination counting and feedback dispatch.
type Engine struct {
	repo     ConversationStore
	provider ModelProvider
	catalog  *prompts.Catalog
	blobs    storage.BlobStore
	cache    Cache
	feedback *FeedbackService
	cfg      *Config

	activity sync.Map // interview id -> time.Time
}

func NewEngine(repo ConversationStore, provider ModelProvider, catalog *prompts.Catalog, blobs storage.BlobStore, cache Cache, feedback *FeedbackService, cfg *Config) *Engine {
	return &Engine{
		repo:     repo,
		provider: provider,
		catalog:  catalog,
		blobs:    blobs,
		cache:    cache,
		feedback: feedback,
		cfg:      cfg,
	}
}

// ChatInput is one candidate request on /ai/chat.
type ChatInput struct {
	InstructionType string
	InterviewID     string
	Message         string
	History         []ChatMessage // coordinator flows only; interviews load their own
	Audio           *AudioInput
	AudioDuration   float64
	Language        string
	MaxOutputTokens int32
	QuestionIndex   int // advisory; the server count is authoritative
	InteractionID   string
	SuggestedRoles  string // resumeCoordinator only

	// RawEnvelope streams the model's JSON envelope verbatim instead of
	// the flattened display text of its response field.
	RawEnvelope bool
}

// HandleChat dispatches one chat request onto the streaming response.
func (e *Engine) HandleChat(ctx context.Context, p Principal, in ChatInput, sw *StreamWriter) error {
	switch in.InstructionType {
	case prompts.NameInterviewer, "":
		return e.handleInterviewTurn(ctx, p, in, sw)
	case prompts.NameCoordinator, prompts.NameResumeCoordinator, prompts.NameSetupVerifier:
		return e.handleCoordinator(ctx, in, sw)
	default:
		return E(KindValidation, "unknown instructionType", nil)
	}
}

// handleCoordinator streams a setup conversation. Nothing persists; the
// envelope JSON passes through raw so the client can watch for READY.
func (e *Engine) handleCoordinator(ctx context.Context, in ChatInput, sw *StreamWriter) error {
	language := in.Language
	if language == "" {
		language = "English"
	}
	var system string
	switch in.InstructionType {
	case prompts.NameCoordinator:
		system = e.catalog.Coordinator(language)
	case prompts.NameResumeCoordinator:
		system = e.catalog.ResumeCoordinator(language, in.SuggestedRoles)
	case prompts.NameSetupVerifier:
		system = e.catalog.SetupVerifier(language)
	}

	stream, err := e.provider.ChatStream(ctx, ChatRequest{
		System:          system,
		History:         in.History,
		Message:         in.Message,
		MaxOutputTokens: in.MaxOutputTokens,
		ResponseJSON:    true,
	})
	if err != nil {
		return err
	}

	for chunk := range stream.Chunks() {
		if err := sw.WriteChunk(chunk); err != nil {
			return E(KindCancelled, "client gone", err)
		}
	}
	usage, err := stream.Wait()
	if err != nil {
		if !sw.WroteChunk() {
			return err
		}
		return sw.WriteTrailer(Trailer{Usage: &usage, Error: clientMessage(err)})
	}
	return sw.WriteTrailer(Trailer{Usage: &usage})
}

// handleInterviewTurn runs one turn of the question/answer loop.
func (e *Engine) handleInterviewTurn(ctx context.Context, p Principal, in ChatInput, sw *StreamWriter) error {
	requestStart := time.Now()

	iv, err := e.repo.GetInterview(ctx, in.InterviewID, p.UserID, p.IsAdmin)
	if err != nil {
		return err
	}
	if iv.Status == models.StatusArchived {
		return E(KindConflict, "interview is archived", nil)
	}
	e.touch(iv.ID)

	// interactionId dedupe: a retried request replays the last model turn
	// instead of generating a new one. The claim is released unless this
	// request commits a model turn, so a retry after a cancelled or failed
	// stream is processed fresh rather than replaying a stale question.
	var claimKey string
	if in.InteractionID != "" {
		key := cacheNSInteraction + iv.ID + ":" + in.InteractionID
		won, err := e.cache.SetNX(ctx, key, "1", interactionTTL)
		if err != nil {
			slog.Warn("interaction dedupe unavailable", "error", err)
		} else if !won {
			return e.replayLastModelTurn(ctx, iv, sw)
		} else {
			claimKey = key
		}
	}
	committed := false
	defer func() {
		if claimKey == "" || committed {
			return
		}
		if err := e.cache.Del(context.WithoutCancel(ctx), claimKey); err != nil {
			slog.Warn("interaction claim release failed", "key", claimKey, "error", err)
		}
	}()

	history, err := e.repo.History(ctx, iv.ID)
	if err != nil {
		return err
	}

	isStart := strings.TrimSpace(in.Message) == "" && in.Audio == nil
	if isStart && hasCountedModelTurn(history) {
		// Duplicate start: resume by replaying, never re-seed.
		return e.replayLastModelTurn(ctx, iv, sw)
	}
	if iv.Status == models.StatusCompleted {
		return e.replayLastModelTurn(ctx, iv, sw)
	}

	newTurnIDs := []string{}
	var audio *AudioInput

	if isStart {
		turn, err := e.repo.AppendTurn(ctx, iv.ID, models.RoleUser, kickoffMessage, repository.AppendOptions{Seed: true})
		if err != nil {
			return err
		}
		history = append(history, *turn)
	} else {
		content := in.Message
		if in.Audio != nil {
			audio = in.Audio
			content = models.SentinelAudioPending
			if err := e.storeAnswerAudio(ctx, iv, in); err != nil {
				return err
			}
		}
		turn, err := e.repo.AppendTurn(ctx, iv.ID, models.RoleUser, content, repository.AppendOptions{})
		if err != nil {
			return err
		}
		newTurnIDs = append(newTurnIDs, turn.ID)
		history = append(history, *turn)
	}

	language := iv.Language
	if in.Language != "" {
		language = in.Language
	}
	// Rows created before the target count was required fall back to the
	// configured default.
	totalQuestions := iv.TotalQuestions
	if totalQuestions <= 0 {
		totalQuestions = e.cfg.Interview.DefaultTotalQuestions
	}
	system := e.catalog.Interviewer(prompts.InterviewerParams{
		Role:           iv.Role,
		FocusArea:      iv.FocusArea,
		Level:          iv.Level,
		Language:       language,
		HasResume:      hasResumeBootstrap(history),
		TotalQuestions: totalQuestions,
	})

	req := ChatRequest{
		System:          system,
		History:         toChatHistory(history),
		Audio:           audio,
		MaxOutputTokens: in.MaxOutputTokens,
		ResponseJSON:    true,
	}
	// The current user message is already the last history entry; the
	// audio rides separately so the model hears the raw answer.
	if len(req.History) > 0 {
		last := req.History[len(req.History)-1]
		req.History = req.History[:len(req.History)-1]
		req.Message = last.Text
	}

	stream, err := e.provider.ChatStream(ctx, req)
	if err != nil {
		return err
	}

	splitter := envelope.NewSplitter("response")
	var buf strings.Builder
	for chunk := range stream.Chunks() {
		buf.WriteString(chunk)
		out := chunk
		if !in.RawEnvelope {
			out = splitter.Delta(buf.String())
		}
		if err := sw.WriteChunk(out); err != nil {
			// Client closed the body: drain and drop the partial turn.
			for range stream.Chunks() {
			}
			return E(KindCancelled, "client gone", err)
		}
	}
	usage, err := stream.Wait()
	if err != nil {
		if KindOf(err) == KindCancelled {
			return err
		}
		if !sw.WroteChunk() {
			return err
		}
		return sw.WriteTrailer(Trailer{Usage: &usage, Error: clientMessage(err)})
	}

	env, perr := envelope.ParseInterviewer(buf.String())
	content := env.Response
	if perr != nil || content == "" {
		// Unparseable reply: keep the raw text so nothing is lost.
		content = buf.String()
	}

	modelTurn, err := e.repo.AppendTurn(ctx, iv.ID, models.RoleModel, content, repository.AppendOptions{})
	if err != nil {
		return err
	}
	committed = true
	newTurnIDs = append(newTurnIDs, modelTurn.ID)

	questionCount, err := e.repo.CountQuestions(ctx, iv.ID)
	if err != nil {
		return err
	}
	complete := env.IsInterviewComplete || questionCount >= totalQuestions

	if err := e.repo.AddTokenUsage(ctx, iv.ID, int(usage.InputTokens), int(usage.OutputTokens), usage.EstimatedCost()); err != nil {
		slog.Warn("token accounting failed", "interview_id", iv.ID, "error", err)
	}
	if err := e.repo.AddDuration(ctx, iv.ID, int(time.Since(requestStart).Seconds())); err != nil {
		slog.Warn("duration accounting failed", "interview_id", iv.ID, "error", err)
	}

	if complete {
		e.completeInterview(ctx, iv, language)
	}

	reported := questionCount
	if reported > totalQuestions {
		reported = totalQuestions
	}
	return sw.WriteTrailer(Trailer{
		Usage:               &usage,
		NewTurnIDs:          newTurnIDs,
		IsInterviewComplete: complete,
		QuestionNumber:      reported,
	})
}

// storeAnswerAudio persists the inline recording and pre-registers it for
// the user turn about to be appended.
func (e *Engine) storeAnswerAudio(ctx context.Context, iv *models.Interview, in ChatInput) error {
	questionCount, err := e.repo.CountQuestions(ctx, iv.ID)
	if err != nil {
		return err
	}
	if questionCount < 1 {
		return E(KindValidation, "no question to answer yet", nil)
	}
	key := fmt.Sprintf("audio/%s/%s", iv.ID, uuid.NewString())
	mime := in.Audio.MIME
	if mime == "" {
		mime = "audio/webm"
	}
	if err := e.blobs.Put(ctx, key, in.Audio.Data, mime); err != nil {
		return E(KindUpstreamUnavailable, "audio store unavailable", err)
	}
	rec := &models.AudioRecording{
		QuestionIndex:   questionCount,
		BlobKey:         key,
		MIMEType:        mime,
		DurationSeconds: in.AudioDuration,
	}
	// Parks in the pending table; the append that follows adopts it.
	return e.repo.AttachAudioByQuestionIndex(ctx, iv.ID, questionCount, rec)
}

// replayLastModelTurn re-sends the latest visible model turn without a
// model call.
func (e *Engine) replayLastModelTurn(ctx context.Context, iv *models.Interview, sw *StreamWriter) error {
	history, err := e.repo.History(ctx, iv.ID)
	if err != nil {
		return err
	}
	questionCount := 0
	var last *models.Turn
	for i := range history {
		t := &history[i]
		if t.Role == models.RoleModel && !t.Seed {
			questionCount++
			last = t
		}
	}
	if last == nil {
		return E(KindConflict, "nothing to replay", nil)
	}
	if err := sw.WriteChunk(last.Content); err != nil {
		return E(KindCancelled, "client gone", err)
	}
	return sw.WriteTrailer(Trailer{
		IsInterviewComplete: iv.Status == models.StatusCompleted,
		QuestionNumber:      min(questionCount, iv.TotalQuestions),
	})
}

// completeInterview flips the status and dispatches feedback generation in
// the background, detached from the request's cancellation.
func (e *Engine) completeInterview(ctx context.Context, iv *models.Interview, language string) {
	if err := e.repo.SetStatus(ctx, iv.ID, models.StatusCompleted); err != nil {
		slog.Error("failed to complete interview", "interview_id", iv.ID, "error", err)
		return
	}
	slog.Info("interview complete", "interview_id", iv.ID)
	if e.feedback == nil {
		return
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		genCtx, cancel := context.WithTimeout(bg, 2*time.Minute)
		defer cancel()
		if _, err := e.feedback.GenerateAndStore(genCtx, iv.ID, language); err != nil {
			slog.Error("feedback generation failed", "interview_id", iv.ID, "error", err)
		}
	}()
}

func (e *Engine) touch(interviewID string) {
	e.activity.Store(interviewID, time.Now())
}

// StartJanitor prunes per-interview in-memory state for interviews idle
// past the TTL. Runs until ctx is done.
func (e *Engine) StartJanitor(ctx context.Context, interval, idleTTL time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-idleTTL)
				e.activity.Range(func(k, v any) bool {
					if t, ok := v.(time.Time); ok && t.Before(cutoff) {
						e.activity.Delete(k)
					}
					return true
				})
			}
		}
	}()
}

func hasCountedModelTurn(history []models.Turn) bool {
	for _, t := range history {
		if t.Role == models.RoleModel && !t.Seed {
			return true
		}
	}
	return false
}

// hasResumeBootstrap reports whether a hidden resume pair precedes the
// interview proper.
func hasResumeBootstrap(history []models.Turn) bool {
	for _, t := range history {
		if t.Seed && t.Role == models.RoleModel {
			return true
		}
	}
	return false
}

// toChatHistory converts stored turns to the model's view. Seed turns are
// included: they carry the kickoff and resume context the model needs.
func toChatHistory(history []models.Turn) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(history))
	for _, t := range history {
		msgs = append(msgs, ChatMessage{Role: t.Role, Text: t.Content})
	}
	return msgs
}
