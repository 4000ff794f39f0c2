package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmalhotra98/intervue/backend/models"
)

// AppendOptions carries the optional attributes of a new turn.
type AppendOptions struct {
	// AudioKey links the candidate's recording on the single-request path.
	AudioKey *string
	// Seed marks internal turns (kickoff, resume bootstrap) that are
	// never displayed and never counted as questions.
	Seed bool
}

// AppendTurn atomically appends one turn to an interview.
//
// For model turns the interview's question count advances. For user turns
// a parked recording for the matching question index, if any, is adopted
// as the turn's audio key. Appends for one interview are serialized.
func (r *Repository) AppendTurn(ctx context.Context, interviewID, role, content string, opts AppendOptions) (*models.Turn, error) {
	unlock := r.lockInterview(interviewID)
	defer unlock()

	turn := &models.Turn{
		InterviewID: interviewID,
		Role:        role,
		Content:     content,
		Seed:        opts.Seed,
		AudioKey:    opts.AudioKey,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.Interview{}).Where("id = ?", interviewID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}

		var maxSeq int
		row := tx.Model(&models.Turn{}).Where("interview_id = ?", interviewID).
			Select("COALESCE(MAX(seq), 0)")
		if err := row.Scan(&maxSeq).Error; err != nil {
			return err
		}
		turn.Seq = maxSeq + 1

		if role == models.RoleUser && !opts.Seed && turn.AudioKey == nil {
			if err := adoptPendingAudio(tx, turn); err != nil {
				return err
			}
		}

		if err := tx.Create(turn).Error; err != nil {
			return err
		}

		if role == models.RoleModel && !opts.Seed {
			return tx.Model(&models.Interview{}).Where("id = ?", interviewID).
				Update("question_count", gorm.Expr("question_count + 1")).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("append turn: %w", err)
	}
	return turn, nil
}

// adoptPendingAudio drains a parked recording whose question index matches
// the user turn being appended. The index of a user turn is the number of
// counted model turns that precede it.
func adoptPendingAudio(tx *gorm.DB, turn *models.Turn) error {
	var questionIndex int
	err := tx.Model(&models.Turn{}).
		Where("interview_id = ? AND role = ? AND seed = ?", turn.InterviewID, models.RoleModel, false).
		Select("COUNT(*)").Scan(&questionIndex).Error
	if err != nil {
		return err
	}
	if questionIndex == 0 {
		return nil
	}

	var pending models.PendingAudio
	err = tx.Where("interview_id = ? AND question_index = ?", turn.InterviewID, questionIndex).
		First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	turn.AudioKey = &pending.BlobKey
	return tx.Unscoped().Delete(&pending).Error
}

// AttachAudio binds a recording to a known user turn. The recording's
// question index is derived from the turn's position in the interview.
func (r *Repository) AttachAudio(ctx context.Context, interviewID, turnID string, rec *models.AudioRecording) error {
	unlock := r.lockInterview(interviewID)
	defer unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var turn models.Turn
		err := tx.First(&turn, "id = ? AND interview_id = ?", turnID, interviewID).Error
		if err != nil {
			return translateGorm(err)
		}
		if turn.Role != models.RoleUser {
			return ErrTurnKindMismatch
		}
		if turn.AudioKey != nil {
			return ErrAlreadyAttached
		}
		// The turn's question index is derived from its position, not
		// trusted from the caller.
		var questionIndex int
		err = tx.Model(&models.Turn{}).
			Where("interview_id = ? AND role = ? AND seed = ? AND seq < ?",
				interviewID, models.RoleModel, false, turn.Seq).
			Select("COUNT(*)").Scan(&questionIndex).Error
		if err != nil {
			return err
		}
		rec.InterviewID = interviewID
		rec.QuestionIndex = questionIndex
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		return tx.Model(&turn).Update("audio_key", rec.BlobKey).Error
	})
}

// AttachAudioByQuestionIndex binds a recording to the user turn that
// answers the questionIndex-th model question. When that turn does not
// exist yet, the recording is parked and adopted by the next matching
// AppendTurn.
func (r *Repository) AttachAudioByQuestionIndex(ctx context.Context, interviewID string, questionIndex int, rec *models.AudioRecording) error {
	if questionIndex < 1 {
		return ErrBadQuestionIndex
	}
	unlock := r.lockInterview(interviewID)
	defer unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec.InterviewID = interviewID
		rec.QuestionIndex = questionIndex
		if err := tx.Create(rec).Error; err != nil {
			return err
		}

		turn, err := userTurnAtQuestionIndex(tx, interviewID, questionIndex)
		if err != nil {
			return err
		}
		if turn == nil {
			return tx.Create(&models.PendingAudio{
				InterviewID:   interviewID,
				QuestionIndex: questionIndex,
				RecordingID:   rec.ID,
				BlobKey:       rec.BlobKey,
			}).Error
		}
		if turn.AudioKey != nil {
			return ErrAlreadyAttached
		}
		return tx.Model(turn).Update("audio_key", rec.BlobKey).Error
	})
}

// userTurnAtQuestionIndex finds the first user turn after the
// questionIndex-th counted model turn. Returns nil when no such user turn
// exists yet.
func userTurnAtQuestionIndex(tx *gorm.DB, interviewID string, questionIndex int) (*models.Turn, error) {
	var turns []models.Turn
	err := tx.Where("interview_id = ? AND seed = ?", interviewID, false).
		Order("seq ASC").Find(&turns).Error
	if err != nil {
		return nil, err
	}
	modelSeen := 0
	for i := range turns {
		switch turns[i].Role {
		case models.RoleModel:
			modelSeen++
		case models.RoleUser:
			if modelSeen == questionIndex {
				return &turns[i], nil
			}
		}
	}
	return nil, nil
}

// SetTurnContent backfills a turn's content. Permitted only while the
// stored content is empty or a sentinel.
func (r *Repository) SetTurnContent(ctx context.Context, interviewID, turnID, text string) error {
	unlock := r.lockInterview(interviewID)
	defer unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var turn models.Turn
		err := tx.First(&turn, "id = ? AND interview_id = ?", turnID, interviewID).Error
		if err != nil {
			return translateGorm(err)
		}
		if !models.IsSentinel(turn.Content) {
			return ErrContentLocked
		}
		return tx.Model(&turn).Update("content", text).Error
	})
}

// History returns the full ordered turn sequence, seed turns included.
func (r *Repository) History(ctx context.Context, interviewID string) ([]models.Turn, error) {
	var turns []models.Turn
	err := r.db.WithContext(ctx).Where("interview_id = ?", interviewID).
		Order("seq ASC").Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return turns, nil
}

// DisplayMessage is one hydrated transcript entry.
type DisplayMessage struct {
	TurnID         string  `json:"turn_id"`
	Role           string  `json:"role"`
	Content        string  `json:"content"`
	AudioKey       *string `json:"audio_key,omitempty"`
	TTSAudioKey    *string `json:"tts_audio_key,omitempty"`
	QuestionNumber int     `json:"question_number,omitempty"`
}

// Hydrate returns the displayable transcript: seed turns filtered out,
// model turns numbered, sentinel contents passed through for the client
// to render as placeholders.
func (r *Repository) Hydrate(ctx context.Context, interviewID string) ([]DisplayMessage, error) {
	turns, err := r.History(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	return HydrateTurns(turns), nil
}

// HydrateTurns applies the display rules to an already loaded history.
func HydrateTurns(turns []models.Turn) []DisplayMessage {
	msgs := make([]DisplayMessage, 0, len(turns))
	questionNumber := 0
	for _, t := range turns {
		if t.Seed {
			continue
		}
		msg := DisplayMessage{
			TurnID:      t.ID,
			Role:        t.Role,
			Content:     t.Content,
			AudioKey:    t.AudioKey,
			TTSAudioKey: t.TTSAudioKey,
		}
		if t.Role == models.RoleModel {
			questionNumber++
			msg.QuestionNumber = questionNumber
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// CountQuestions returns the number of counted model turns, the
// authoritative question count.
func (r *Repository) CountQuestions(ctx context.Context, interviewID string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Turn{}).
		Where("interview_id = ? AND role = ? AND seed = ?", interviewID, models.RoleModel, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return int(n), nil
}

// GetRecording loads one audio recording with an ownership check through
// its interview.
func (r *Repository) GetRecording(ctx context.Context, interviewID, recordingID string) (*models.AudioRecording, error) {
	var rec models.AudioRecording
	err := r.db.WithContext(ctx).First(&rec, "id = ? AND interview_id = ?", recordingID, interviewID).Error
	if err != nil {
		return nil, translateGorm(err)
	}
	return &rec, nil
}

// GetTurn loads one turn scoped to its interview.
func (r *Repository) GetTurn(ctx context.Context, interviewID, turnID string) (*models.Turn, error) {
	var turn models.Turn
	err := r.db.WithContext(ctx).First(&turn, "id = ? AND interview_id = ?", turnID, interviewID).Error
	if err != nil {
		return nil, translateGorm(err)
	}
	return &turn, nil
}

// SetTurnTTSKey records the cached synthesized audio for a model turn.
func (r *Repository) SetTurnTTSKey(ctx context.Context, interviewID, turnID, key string) error {
	res := r.db.WithContext(ctx).Model(&models.Turn{}).
		Where("id = ? AND interview_id = ?", turnID, interviewID).
		Update("tts_audio_key", key)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
