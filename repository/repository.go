// Package repository persists users, interviews and conversation turns via
// gorm. Conversation writes for one interview are serialized through a
// per-interview mutex so append order equals creation order.
package repository

import (
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/jmalhotra98/intervue/backend/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist or is
	// not visible to the caller.
	ErrNotFound = errors.New("repository: not found")

	// ErrForbidden is returned when the caller does not own the interview
	// and is not an admin.
	ErrForbidden = errors.New("repository: forbidden")

	// ErrTurnKindMismatch is returned when audio is attached to a turn
	// that is not a user turn.
	ErrTurnKindMismatch = errors.New("repository: audio can only attach to user turns")

	// ErrAlreadyAttached is returned when a turn already carries an audio
	// key.
	ErrAlreadyAttached = errors.New("repository: turn already has audio attached")

	// ErrContentLocked is returned when setTurnContent targets a turn
	// whose content is real user text rather than a sentinel.
	ErrContentLocked = errors.New("repository: turn content is not replaceable")

	// ErrFeedbackExists is returned on a second feedback write for the
	// same interview.
	ErrFeedbackExists = errors.New("repository: feedback already recorded")

	// ErrBadQuestionIndex is returned when a recording targets a question
	// index below 1. Question numbering starts at 1.
	ErrBadQuestionIndex = errors.New("repository: question index must be positive")
)

// Repository is the single persistence facade. Safe for concurrent use.
type Repository struct {
	db     *gorm.DB
	lockMu sync.Mutex
	locks  map[string]*interviewLock
}

// interviewLock serializes conversation writes for one interview. Entries
// are refcounted and dropped once the last writer releases, so the map
// only holds interviews with a write in flight.
type interviewLock struct {
	mu   sync.Mutex
	refs int
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db, locks: make(map[string]*interviewLock)}
}

// AutoMigrate creates or updates the schema for all models.
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.Interview{},
		&models.Turn{},
		&models.AudioRecording{},
		&models.PendingAudio{},
		&models.Feedback{},
	)
}

// DB exposes the underlying handle for migrations and tests.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// lockInterview acquires the write lock for one interview and returns the
// release func.
func (r *Repository) lockInterview(id string) func() {
	r.lockMu.Lock()
	l := r.locks[id]
	if l == nil {
		l = &interviewLock{}
		r.locks[id] = l
	}
	l.refs++
	r.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.lockMu.Unlock()
	}
}

// lockCount reports the live lock entries; used by tests.
func (r *Repository) lockCount() int {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	return len(r.locks)
}

func translateGorm(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
