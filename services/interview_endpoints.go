package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmalhotra98/intervue/backend/models"
	"github.com/jmalhotra98/intervue/backend/repository"
)

type InterviewEndpoints struct {
	repo   *repository.Repository
	engine *Engine
	cfg    *Config
}

func NewInterviewEndpoints(repo *repository.Repository, engine *Engine, cfg *Config) *InterviewEndpoints {
	return &InterviewEndpoints{repo: repo, engine: engine, cfg: cfg}
}

type CreateInterviewRequest struct {
	Role           string `json:"role"`
	FocusArea      string `json:"focusArea"`
	Level          string `json:"level"`
	Language       string `json:"language"`
	TotalQuestions int    `json:"totalQuestions"`
	UseResume      bool   `json:"useResume"`
}

type InterviewResponse struct {
	Interview *models.Interview           `json:"interview"`
	History   []repository.DisplayMessage `json:"history,omitempty"`
}

func (e *InterviewEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/interviews", func(r chi.Router) {
		r.Post("/", e.CreateInterviewHandler)
		r.Get("/", e.ListInterviewsHandler)
		r.Get("/{id}", e.GetInterviewHandler)
		r.Put("/{id}", e.UpdateInterviewHandler)
		r.Delete("/{id}", e.DeleteInterviewHandler)
	})
}

func (e *InterviewEndpoints) CreateInterviewHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}

	var req CreateInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, E(KindValidation, "invalid request body", err))
		return
	}
	if req.Role == "" {
		WriteError(w, r, E(KindValidation, "role is required", nil))
		return
	}
	if req.TotalQuestions < 0 || req.TotalQuestions > 50 {
		WriteError(w, r, E(KindValidation, "totalQuestions out of range", nil))
		return
	}
	if req.TotalQuestions == 0 {
		req.TotalQuestions = e.cfg.Interview.DefaultTotalQuestions
	}
	if req.Language == "" {
		req.Language = "English"
	}

	iv := &models.Interview{
		UserID:         p.UserID,
		Role:           req.Role,
		FocusArea:      req.FocusArea,
		Level:          req.Level,
		Language:       req.Language,
		TotalQuestions: req.TotalQuestions,
	}
	if err := e.repo.CreateInterview(r.Context(), iv); err != nil {
		WriteError(w, r, err)
		return
	}

	if req.UseResume {
		if user, err := e.repo.GetUserByID(r.Context(), p.UserID); err == nil && user.ResumeBlobKey != "" {
			// Runs in the background; the interview works without it.
			go e.engine.BootstrapResume(context.WithoutCancel(r.Context()), iv.ID, user.ResumeBlobKey, iv.Language)
		}
	}

	WriteJSON(w, http.StatusCreated, InterviewResponse{Interview: iv})
}

func (e *InterviewEndpoints) ListInterviewsHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}
	interviews, err := e.repo.ListInterviews(r.Context(), p.UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"interviews": interviews,
		"count":      len(interviews),
	})
}

func (e *InterviewEndpoints) GetInterviewHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}
	id := chi.URLParam(r, "id")
	iv, err := e.repo.GetInterview(r.Context(), id, p.UserID, p.IsAdmin)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	history, err := e.repo.Hydrate(r.Context(), iv.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, InterviewResponse{Interview: iv, History: history})
}

type UpdateInterviewRequest struct {
	Status          *string        `json:"status"`
	DurationSeconds *int           `json:"durationSeconds"`
	Feedback        *FeedbackPatch `json:"feedback"`
}

// FeedbackPatch is a client-supplied evaluation on PUT /interviews/{id}.
// Stored write-once; a later patch cannot overwrite it.
type FeedbackPatch struct {
	OverallScore        int      `json:"overallScore"`
	CommunicationScore  int      `json:"communicationScore"`
	TechnicalScore      int      `json:"technicalScore"`
	ProblemSolvingScore *int     `json:"problemSolvingScore"`
	DomainScore         *int     `json:"domainKnowledgeScore"`
	Strengths           []string `json:"strengths"`
	Weaknesses          []string `json:"weaknesses"`
	Suggestion          string   `json:"suggestion"`
}

func (p *FeedbackPatch) validate() error {
	scores := []int{p.OverallScore, p.CommunicationScore, p.TechnicalScore}
	if p.ProblemSolvingScore != nil {
		scores = append(scores, *p.ProblemSolvingScore)
	}
	if p.DomainScore != nil {
		scores = append(scores, *p.DomainScore)
	}
	for _, s := range scores {
		if s < 0 || s > 100 {
			return E(KindValidation, "feedback scores must be within 0-100", nil)
		}
	}
	return nil
}

func (p *FeedbackPatch) toModel(interviewID string) *models.Feedback {
	strengths := p.Strengths
	if strengths == nil {
		strengths = []string{}
	}
	weaknesses := p.Weaknesses
	if weaknesses == nil {
		weaknesses = []string{}
	}
	return &models.Feedback{
		InterviewID:         interviewID,
		OverallScore:        p.OverallScore,
		CommunicationScore:  p.CommunicationScore,
		TechnicalScore:      p.TechnicalScore,
		ProblemSolvingScore: p.ProblemSolvingScore,
		DomainScore:         p.DomainScore,
		Strengths:           strengths,
		Weaknesses:          weaknesses,
		Suggestion:          p.Suggestion,
	}
}

func (e *InterviewEndpoints) UpdateInterviewHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}
	var req UpdateInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, E(KindValidation, "invalid request body", err))
		return
	}
	if req.Status != nil {
		switch *req.Status {
		case models.StatusInProgress, models.StatusCompleted, models.StatusArchived:
		default:
			WriteError(w, r, E(KindValidation, "invalid status", nil))
			return
		}
	}
	if req.DurationSeconds != nil && *req.DurationSeconds < 0 {
		WriteError(w, r, E(KindValidation, "durationSeconds must be non-negative", nil))
		return
	}
	if req.Feedback != nil {
		if err := req.Feedback.validate(); err != nil {
			WriteError(w, r, err)
			return
		}
	}

	id := chi.URLParam(r, "id")
	iv, err := e.repo.GetInterview(r.Context(), id, p.UserID, p.IsAdmin)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if req.Feedback != nil {
		if err := e.repo.SaveFeedback(r.Context(), req.Feedback.toModel(iv.ID)); err != nil {
			WriteError(w, r, err)
			return
		}
	}

	// A completed interview must carry feedback. A bare completed patch
	// kicks off generation instead of leaving the interview unevaluated.
	generateFeedback := req.Status != nil && *req.Status == models.StatusCompleted &&
		req.Feedback == nil && iv.Feedback == nil && e.engine.feedback != nil

	iv, err = e.repo.PatchInterview(r.Context(), id, p.UserID, p.IsAdmin, repository.InterviewPatch{
		Status:          req.Status,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if generateFeedback {
		bg := context.WithoutCancel(r.Context())
		go func() {
			genCtx, cancel := context.WithTimeout(bg, 2*time.Minute)
			defer cancel()
			if _, err := e.engine.feedback.GenerateAndStore(genCtx, iv.ID, iv.Language); err != nil {
				slog.Error("feedback generation failed", "interview_id", iv.ID, "error", err)
			}
		}()
	}

	WriteJSON(w, http.StatusOK, InterviewResponse{Interview: iv})
}

func (e *InterviewEndpoints) DeleteInterviewHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		WriteError(w, r, E(KindUnauthorized, "no principal", nil))
		return
	}
	id := chi.URLParam(r, "id")
	if err := e.repo.ArchiveInterview(r.Context(), id, p.UserID, p.IsAdmin); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "interview archived"})
}
