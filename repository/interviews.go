package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jmalhotra98/intervue/backend/models"
)

func (r *Repository) CreateInterview(ctx context.Context, iv *models.Interview) error {
	if iv.Status == "" {
		iv.Status = models.StatusInProgress
	}
	if err := r.db.WithContext(ctx).Create(iv).Error; err != nil {
		return fmt.Errorf("create interview: %w", err)
	}
	return nil
}

// ListInterviews returns the caller's interviews, newest first, archived
// ones excluded.
func (r *Repository) ListInterviews(ctx context.Context, userID string) ([]models.Interview, error) {
	var interviews []models.Interview
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status <> ?", userID, models.StatusArchived).
		Order("created_at DESC").
		Preload("Feedback").
		Find(&interviews).Error
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	return interviews, nil
}

// GetInterview loads one interview and enforces ownership: non-admin
// callers only see their own rows.
func (r *Repository) GetInterview(ctx context.Context, id, callerID string, isAdmin bool) (*models.Interview, error) {
	var iv models.Interview
	err := r.db.WithContext(ctx).Preload("Feedback").First(&iv, "id = ?", id).Error
	if err != nil {
		return nil, translateGorm(err)
	}
	if iv.UserID != callerID && !isAdmin {
		return nil, ErrForbidden
	}
	return &iv, nil
}

// InterviewPatch carries the mutable fields of PUT /interviews/{id}. Nil
// fields are left untouched.
type InterviewPatch struct {
	Status          *string
	DurationSeconds *int
}

func (r *Repository) PatchInterview(ctx context.Context, id, callerID string, isAdmin bool, patch InterviewPatch) (*models.Interview, error) {
	iv, err := r.GetInterview(ctx, id, callerID, isAdmin)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.DurationSeconds != nil {
		updates["duration_seconds"] = *patch.DurationSeconds
	}
	if len(updates) == 0 {
		return iv, nil
	}
	if err := r.db.WithContext(ctx).Model(iv).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("patch interview: %w", err)
	}
	return iv, nil
}

// ArchiveInterview soft-deletes by flipping status to ARCHIVED. The row
// and its turns survive for later inspection.
func (r *Repository) ArchiveInterview(ctx context.Context, id, callerID string, isAdmin bool) error {
	iv, err := r.GetInterview(ctx, id, callerID, isAdmin)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(iv).Update("status", models.StatusArchived).Error
}

// SetStatus updates the lifecycle state without an ownership check; only
// the engine calls it.
func (r *Repository) SetStatus(ctx context.Context, id string, status string) error {
	res := r.db.WithContext(ctx).Model(&models.Interview{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("set status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTokenUsage accumulates token counts and estimated cost. Sums only
// grow; negative deltas are ignored.
func (r *Repository) AddTokenUsage(ctx context.Context, id string, inputTokens, outputTokens int, cost float64) error {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	return r.db.WithContext(ctx).Model(&models.Interview{}).Where("id = ?", id).
		Updates(map[string]any{
			"input_tokens":   gorm.Expr("input_tokens + ?", inputTokens),
			"output_tokens":  gorm.Expr("output_tokens + ?", outputTokens),
			"estimated_cost": gorm.Expr("estimated_cost + ?", cost),
		}).Error
}

// AddDuration folds one request's elapsed seconds into the running total.
func (r *Repository) AddDuration(ctx context.Context, id string, seconds int) error {
	if seconds <= 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Interview{}).Where("id = ?", id).
		Update("duration_seconds", gorm.Expr("duration_seconds + ?", seconds)).Error
}

// SaveFeedback records the evaluation exactly once per interview.
func (r *Repository) SaveFeedback(ctx context.Context, fb *models.Feedback) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "interview_id"}},
		DoNothing: true,
	}).Create(fb)
	if res.Error != nil {
		return fmt.Errorf("save feedback: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrFeedbackExists
	}
	return nil
}

func (r *Repository) GetFeedback(ctx context.Context, interviewID string) (*models.Feedback, error) {
	var fb models.Feedback
	err := r.db.WithContext(ctx).First(&fb, "interview_id = ?", interviewID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &fb, nil
}
