package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/jmalhotra98/intervue/backend/models"
	"github.com/jmalhotra98/intervue/backend/repository"
)

// ResumeAnalysis is the resumeAnalyzer one-shot payload.
type ResumeAnalysis struct {
	Greeting         string          `json:"greeting"`
	StrengthsSummary string          `json:"strengthsSummary"`
	SuggestedRoles   []SuggestedRole `json:"suggestedRoles"`
	Suggestion       string          `json:"suggestion"`
}

type SuggestedRole struct {
	Role      string `json:"role"`
	Reason    string `json:"reason"`
	FocusArea string `json:"focusArea"`
}

var resumeSchema = mustSchemaFor[ResumeAnalysis]()

func mustSchemaFor[T any]() *jsonschema.Schema {
	s, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		panic(err)
	}
	return s
}

// AnalyzeResume runs the resumeAnalyzer one-shot over stored resume text.
func (e *Engine) AnalyzeResume(ctx context.Context, resumeKey, language string) (*ResumeAnalysis, error) {
	data, err := e.blobs.Get(ctx, resumeKey)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = "English"
	}
	var analysis ResumeAnalysis
	_, err = e.provider.ChatOneShotJSON(ctx, ChatRequest{
		System:  e.catalog.ResumeAnalyzer(language),
		Message: string(data),
	}, resumeSchema, &analysis)
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

// BootstrapResume injects the hidden (user, model) pair that puts the
// candidate's resume in front of the interviewer. Called when an interview
// is created for a user with a stored resume. Failure is non-fatal; the
// interview just runs without resume context.
func (e *Engine) BootstrapResume(ctx context.Context, interviewID, resumeKey, language string) {
	analysis, err := e.AnalyzeResume(ctx, resumeKey, language)
	if err != nil {
		slog.Warn("resume bootstrap skipped", "interview_id", interviewID, "error", err)
		return
	}
	data, err := e.blobs.Get(ctx, resumeKey)
	if err != nil {
		slog.Warn("resume bootstrap skipped", "interview_id", interviewID, "error", err)
		return
	}

	userContent := "Here is my resume:\n" + string(data)
	ack, _ := json.Marshal(analysis)
	modelContent := fmt.Sprintf("Resume noted. %s\n%s", analysis.StrengthsSummary, ack)

	if _, err := e.repo.AppendTurn(ctx, interviewID, models.RoleUser, userContent, repository.AppendOptions{Seed: true}); err != nil {
		slog.Warn("resume bootstrap user turn failed", "interview_id", interviewID, "error", err)
		return
	}
	if _, err := e.repo.AppendTurn(ctx, interviewID, models.RoleModel, modelContent, repository.AppendOptions{Seed: true}); err != nil {
		slog.Warn("resume bootstrap model turn failed", "interview_id", interviewID, "error", err)
	}
}
