package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/jmalhotra98/intervue/backend/models"
	"github.com/jmalhotra98/intervue/backend/prompts"
	"github.com/jmalhotra98/intervue/backend/repository"
)

// feedbackReport is the strict shape the judge model must return.
type feedbackReport struct {
	OverallScore        int      `json:"overallScore"`
	CommunicationScore  int      `json:"communicationScore"`
	TechnicalScore      int      `json:"technicalScore"`
	ProblemSolvingScore *int     `json:"problemSolvingScore,omitempty"`
	DomainScore         *int     `json:"domainKnowledgeScore,omitempty"`
	Strengths           []string `json:"strengths"`
	Weaknesses          []string `json:"weaknesses"`
	Suggestion          string   `json:"suggestion"`
}

// FeedbackService turns a completed transcript into a scored report.
type FeedbackService struct {
	repo        *repository.Repository
	provider    ModelProvider
	catalog     *prompts.Catalog
	transcriber *TranscriptionService
	schema      *jsonschema.Schema
}

func NewFeedbackService(repo *repository.Repository, provider ModelProvider, catalog *prompts.Catalog, transcriber *TranscriptionService) (*FeedbackService, error) {
	schema, err := jsonschema.For[feedbackReport](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("feedback schema: %w", err)
	}
	return &FeedbackService{
		repo:        repo,
		provider:    provider,
		catalog:     catalog,
		transcriber: transcriber,
		schema:      schema,
	}, nil
}

// GenerateAndStore produces and persists feedback for a completed
// interview. Transcription is finished first so the judge sees real
// answers. Judge failure degrades to a zeroed record; the interview still
// counts as completed.
func (f *FeedbackService) GenerateAndStore(ctx context.Context, interviewID, language string) (*models.Feedback, error) {
	internal := Principal{IsAdmin: true}
	if err := f.transcriber.TranscribeAll(ctx, internal, interviewID); err != nil {
		slog.Warn("transcription before feedback incomplete", "interview_id", interviewID, "error", err)
	}

	msgs, err := f.repo.Hydrate(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	transcript := RenderTranscript(msgs)

	fb := f.judge(ctx, transcript, language)
	fb.InterviewID = interviewID
	if err := f.repo.SaveFeedback(ctx, fb); err != nil {
		if errors.Is(err, repository.ErrFeedbackExists) {
			return f.repo.GetFeedback(ctx, interviewID)
		}
		return nil, err
	}
	return fb, nil
}

// GenerateFromTranscript scores a caller-supplied transcript without
// touching storage. Serves /ai/feedback when no interview id is given.
func (f *FeedbackService) GenerateFromTranscript(ctx context.Context, transcript, language string) *models.Feedback {
	return f.judge(ctx, transcript, language)
}

func (f *FeedbackService) judge(ctx context.Context, transcript, language string) *models.Feedback {
	if language == "" {
		language = "English"
	}
	var report feedbackReport
	_, err := f.provider.ChatOneShotJSON(ctx, ChatRequest{
		System:  f.catalog.FeedbackJudge(language),
		Message: transcript,
	}, f.schema, &report)
	if err != nil {
		slog.Error("feedback judge failed", "error", err)
		return degradedFeedback(err)
	}

	return &models.Feedback{
		OverallScore:        clampScore(report.OverallScore),
		CommunicationScore:  clampScore(report.CommunicationScore),
		TechnicalScore:      clampScore(report.TechnicalScore),
		ProblemSolvingScore: clampScorePtr(report.ProblemSolvingScore),
		DomainScore:         clampScorePtr(report.DomainScore),
		Strengths:           report.Strengths,
		Weaknesses:          report.Weaknesses,
		Suggestion:          report.Suggestion,
	}
}

// degradedFeedback is written when the judge cannot produce a valid
// report. All zeroes plus a diagnostic suggestion.
func degradedFeedback(cause error) *models.Feedback {
	return &models.Feedback{
		Strengths:  []string{},
		Weaknesses: []string{},
		Suggestion: "Automatic evaluation was unavailable for this interview (" + clientMessage(cause) + "). Review the transcript manually.",
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampScorePtr(v *int) *int {
	if v == nil {
		return nil
	}
	c := clampScore(*v)
	return &c
}

// RenderTranscript flattens hydrated messages into the plain Q/A text the
// judge reads.
func RenderTranscript(msgs []repository.DisplayMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case models.RoleModel:
			if m.QuestionNumber > 0 {
				fmt.Fprintf(&sb, "Interviewer (Q%d): %s\n", m.QuestionNumber, m.Content)
			} else {
				fmt.Fprintf(&sb, "Interviewer: %s\n", m.Content)
			}
		case models.RoleUser:
			fmt.Fprintf(&sb, "Candidate: %s\n", m.Content)
		}
	}
	return sb.String()
}
