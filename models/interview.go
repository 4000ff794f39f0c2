package models

import (
	"time"

	"gorm.io/gorm"
)

// Interview statuses. Transitions: in_progress -> completed, in_progress -> archived.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusArchived   = "archived"
)

// Turn roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Sentinels stored in a user turn's content while real text is not available.
const (
	SentinelAudioPending        = "🎤 Audio Answer Submitted"
	SentinelSilent              = "[Silent]"
	SentinelTranscriptionFailed = "[Transcription Failed]"
	SentinelNoTranscript        = "[No transcript available]"
)

// IsSentinel reports whether content is a reserved placeholder rather than
// real user text. SetTurnContent may overwrite sentinels but never real text.
func IsSentinel(content string) bool {
	switch content {
	case "", SentinelAudioPending, SentinelSilent, SentinelTranscriptionFailed, SentinelNoTranscript:
		return true
	}
	return false
}

// Interview records one mock-interview session for a user
type Interview struct {
	ID             string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID         string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Role           string         `gorm:"size:100;not null" json:"role"`
	FocusArea      string         `gorm:"size:100" json:"focus_area"`
	Level          string         `gorm:"size:50" json:"level"`
	Language       string         `gorm:"size:50;default:'English'" json:"language"`
	TotalQuestions int            `gorm:"not null;default:7" json:"total_questions"`
	Status         string         `gorm:"not null;default:'in_progress';check:status IN ('in_progress', 'completed', 'archived')" json:"status"`
	// QuestionCount mirrors the number of model turns; the turns table is authoritative
	QuestionCount   int            `gorm:"not null;default:0" json:"question_count"`
	DurationSeconds int            `gorm:"not null;default:0" json:"duration_seconds"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	// Running token accounting; monotonically non-decreasing
	InputTokens   int64   `gorm:"not null;default:0" json:"input_tokens"`
	OutputTokens  int64   `gorm:"not null;default:0" json:"output_tokens"`
	EstimatedCost float64 `gorm:"type:decimal(10,6);not null;default:0" json:"estimated_cost"`

	// Relationships
	User     User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Turns    []Turn           `gorm:"foreignKey:InterviewID" json:"turns,omitempty"`
	Feedback *Feedback        `gorm:"foreignKey:InterviewID" json:"feedback,omitempty"`
	Audio    []AudioRecording `gorm:"foreignKey:InterviewID" json:"audio,omitempty"`
}

// Turn is one entry in the ordered conversation of an interview.
// Turns are append-only; the only permitted content change is a
// sentinel-to-transcript backfill.
type Turn struct {
	ID          string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InterviewID string `gorm:"type:uuid;not null;index:idx_turns_interview_seq,priority:1" json:"interview_id"`
	// Seq is the per-interview monotonic counter; it breaks creation-time ties
	Seq     int    `gorm:"not null;index:idx_turns_interview_seq,priority:2" json:"seq"`
	Role    string `gorm:"not null;check:role IN ('user', 'model')" json:"role"`
	Content string `gorm:"type:text;not null" json:"content"`
	// Seed turns (the interview kickoff and resume bootstrap pair) are never displayed
	Seed        bool           `gorm:"not null;default:false" json:"-"`
	AudioKey    *string        `gorm:"size:255" json:"audio_key,omitempty"`
	TTSAudioKey *string        `gorm:"size:255" json:"tts_audio_key,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Interview Interview `gorm:"foreignKey:InterviewID" json:"-"`
}

// Feedback is the scored evaluation of a completed interview.
// Written exactly once; immutable after creation.
type Feedback struct {
	ID                  string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InterviewID         string         `gorm:"type:uuid;not null;uniqueIndex" json:"interview_id"`
	OverallScore        int            `gorm:"not null" json:"overall_score"`
	CommunicationScore  int            `gorm:"not null" json:"communication_score"`
	TechnicalScore      int            `gorm:"not null" json:"technical_score"`
	ProblemSolvingScore *int           `json:"problem_solving_score,omitempty"`
	DomainScore         *int           `json:"domain_knowledge_score,omitempty"`
	Strengths           []string       `gorm:"serializer:json" json:"strengths"`
	Weaknesses          []string       `gorm:"serializer:json" json:"weaknesses"`
	Suggestion          string         `gorm:"type:text" json:"suggestion"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Interview Interview `gorm:"foreignKey:InterviewID" json:"-"`
}
