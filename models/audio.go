package models

import (
	"time"

	"gorm.io/gorm"
)

// AudioRecording is a candidate answer recording. QuestionIndex is 1-based:
// the recording answers the Nth model question. The turn holds the forward
// link (Turn.AudioKey); reverse lookups go through (interview_id, question_index).
type AudioRecording struct {
	ID              string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InterviewID     string         `gorm:"type:uuid;not null;uniqueIndex:idx_audio_question,priority:1" json:"interview_id"`
	QuestionIndex   int            `gorm:"not null;uniqueIndex:idx_audio_question,priority:2" json:"question_index"`
	BlobKey         string         `gorm:"size:255;not null" json:"blob_key"`
	MIMEType        string         `gorm:"size:100" json:"mime_type,omitempty"`
	DurationSeconds float64        `gorm:"not null;default:0" json:"duration_seconds"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Interview Interview `gorm:"foreignKey:InterviewID" json:"-"`
}

// PendingAudio parks a recording uploaded before its user turn exists.
// AppendTurn drains the row once the matching user turn is created, so
// uploads and turns may arrive in either order without losing the linkage.
type PendingAudio struct {
	ID            string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InterviewID   string         `gorm:"type:uuid;not null;uniqueIndex:idx_pending_question,priority:1" json:"interview_id"`
	QuestionIndex int            `gorm:"not null;uniqueIndex:idx_pending_question,priority:2" json:"question_index"`
	RecordingID   string         `gorm:"type:uuid;not null" json:"recording_id"`
	BlobKey       string         `gorm:"size:255;not null" json:"blob_key"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
