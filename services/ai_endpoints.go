package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type AIEndpoints struct {
	engine      *Engine
	tts         *TTSService
	transcriber *TranscriptionService
	feedback    *FeedbackService
}

func NewAIEndpoints(engine *Engine, tts *TTSService, transcriber *TranscriptionService, feedback *FeedbackService) *AIEndpoints {
	return &AIEndpoints{engine: engine, tts: tts, transcriber: transcriber, feedback: feedback}
}

func (e *AIEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/ai", func(r chi.Router) {
		r.Post("/chat", e.ChatHandler)
		r.Post("/feedback", e.FeedbackHandler)
		r.Post("/tts", e.TTSHandler)
		r.Post("/tts-stream", e.TTSStreamHandler)
		r.Post("/transcribe", e.TranscribeHandler)
	})
}

type chatHistoryEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type ChatRequestBody struct {
	InstructionType string             `json:"instructionType"`
	InterviewID     string             `json:"interviewId"`
	Message         string             `json:"message"`
	History         []chatHistoryEntry `json:"history"`
	Audio           string             `json:"audio"` // base64
	AudioMIMEType   string             `json:"audioMimeType"`
	AudioDuration   float64            `json:"audioDurationSeconds"`
	Language        string             `json:"language"`
	MaxOutputTokens int32              `json:"maxOutputTokens"`
	QuestionIndex   int                `json:"questionIndex"`
	InteractionID   string             `json:"interactionId"`
	SuggestedRoles  string             `json:"suggestedRoles"`
	// useStructuredOutput asks for the raw envelope JSON instead of the
	// flattened display text.
	UseStructuredOutput bool `json:"useStructuredOutput"`
}

func (e *AIEndpoints) ChatHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}
	var req ChatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, E(KindValidation, "invalid request body", err))
		return
	}

	in := ChatInput{
		InstructionType: req.InstructionType,
		InterviewID:     req.InterviewID,
		Message:         req.Message,
		AudioDuration:   req.AudioDuration,
		Language:        req.Language,
		MaxOutputTokens: req.MaxOutputTokens,
		QuestionIndex:   req.QuestionIndex,
		InteractionID:   req.InteractionID,
		SuggestedRoles:  req.SuggestedRoles,
		RawEnvelope:     req.UseStructuredOutput,
	}
	for _, m := range req.History {
		in.History = append(in.History, ChatMessage{Role: m.Role, Text: m.Text})
	}
	if req.Audio != "" {
		data, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			WriteError(w, r, E(KindValidation, "audio is not valid base64", err))
			return
		}
		in.Audio = &AudioInput{Data: data, MIME: req.AudioMIMEType}
	}

	sw := NewStreamWriter(w)
	if err := e.engine.HandleChat(r.Context(), p, in, sw); err != nil {
		if sw.WroteChunk() {
			// Headers are gone; the missing trailer tells the client.
			slog.Error("chat stream aborted", "request_id", middleware.GetReqID(r.Context()), "error", err)
			return
		}
		WriteError(w, r, err)
	}
}

type FeedbackRequestBody struct {
	InterviewID string `json:"interviewId"`
	Transcript  string `json:"transcript"`
	Language    string `json:"language"`
}

func (e *AIEndpoints) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}
	var req FeedbackRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, E(KindValidation, "invalid request body", err))
		return
	}
	language := req.Language
	if language == "" {
		language = "English"
	}

	if req.InterviewID != "" {
		if _, err := e.engine.repo.GetInterview(r.Context(), req.InterviewID, p.UserID, p.IsAdmin); err != nil {
			WriteError(w, r, err)
			return
		}
		fb, err := e.feedback.GenerateAndStore(r.Context(), req.InterviewID, language)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"feedback": fb})
		return
	}

	if req.Transcript == "" {
		WriteError(w, r, E(KindValidation, "transcript or interviewId is required", nil))
		return
	}
	fb := e.feedback.GenerateFromTranscript(r.Context(), req.Transcript, language)
	WriteJSON(w, http.StatusOK, map[string]any{"feedback": fb})
}

type TTSRequestBody struct {
	Text        string `json:"text"`
	Language    string `json:"language"`
	Voice       string `json:"voice"`
	InterviewID string `json:"interviewId"`
	// HistoryID links the synthesis to a model turn so replays reuse the
	// cached audio.
	HistoryID string `json:"historyId"`
}

func (b *TTSRequestBody) normalize() error {
	if b.Text == "" {
		return E(KindValidation, "text is required", nil)
	}
	if b.Language == "" {
		b.Language = "English"
	}
	if b.Voice == "" {
		if b.InterviewID != "" {
			b.Voice = PickDeterministicVoice(b.InterviewID)
		} else {
			b.Voice = interviewerVoices[0]
		}
	}
	return nil
}

func (e *AIEndpoints) TTSHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := PrincipalFrom(r.Context()); !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}
	var req TTSRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, E(KindValidation, "invalid request body", err))
		return
	}
	if err := req.normalize(); err != nil {
		WriteError(w, r, err)
		return
	}

	url, audio, err := e.tts.Synthesize(r.Context(), req.Text, req.Language, req.Voice)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	e.rememberTTSKey(r.Context(), req)
	if url != "" {
		WriteJSON(w, http.StatusOK, map[string]string{"audioUrl": url})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"audio":    base64.StdEncoding.EncodeToString(audio),
		"mimeType": "audio/mpeg",
	})
}

func (e *AIEndpoints) TTSStreamHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := PrincipalFrom(r.Context()); !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}
	var req TTSRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, E(KindValidation, "invalid request body", err))
		return
	}
	if err := req.normalize(); err != nil {
		WriteError(w, r, err)
		return
	}

	if err := e.tts.StreamSpeech(r.Context(), w, r, req.Text, req.Language, req.Voice); err != nil {
		if KindOf(err) == KindCancelled {
			return
		}
		slog.Error("tts stream failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		return
	}
	e.rememberTTSKey(r.Context(), req)
}

// rememberTTSKey records the synthesis cache key on the model turn, when
// the request named one. Failures only cost a future cache hit.
func (e *AIEndpoints) rememberTTSKey(ctx context.Context, req TTSRequestBody) {
	if req.InterviewID == "" || req.HistoryID == "" {
		return
	}
	key := e.tts.CacheKey(req.Text, req.Language, req.Voice)
	if err := e.engine.repo.SetTurnTTSKey(context.WithoutCancel(ctx), req.InterviewID, req.HistoryID, key); err != nil {
		slog.Warn("tts key not recorded", "interview_id", req.InterviewID, "turn_id", req.HistoryID, "error", err)
	}
}

type TranscribeRequestBody struct {
	InterviewID string `json:"interviewId"`
	HistoryIDs  []struct {
		HistoryID     string `json:"historyId"`
		InteractionID string `json:"interactionId"`
	} `json:"historyIds"`
}

func (e *AIEndpoints) TranscribeHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}
	var req TranscribeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, E(KindValidation, "invalid request body", err))
		return
	}
	if req.InterviewID == "" {
		WriteError(w, r, E(KindValidation, "interviewId is required", nil))
		return
	}
	turnIDs := make([]string, 0, len(req.HistoryIDs))
	for _, h := range req.HistoryIDs {
		if h.HistoryID != "" {
			turnIDs = append(turnIDs, h.HistoryID)
		}
	}
	if len(turnIDs) == 0 {
		WriteError(w, r, E(KindValidation, "historyIds is required", nil))
		return
	}

	results, err := e.transcriber.TranscribeTurns(r.Context(), p, req.InterviewID, turnIDs)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"transcriptions": results})
}
