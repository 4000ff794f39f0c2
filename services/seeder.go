package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmalhotra98/intervue/backend/models"
	"github.com/jmalhotra98/intervue/backend/repository"
)

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	repo *repository.Repository
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(repo *repository.Repository) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo}
}

// SeedDatabase seeds the database with initial data (idempotent)
func (s *DatabaseSeeder) SeedDatabase() error {
	ctx := context.Background()

	users := []models.User{
		{
			Email:       "test@example.com",
			FullName:    "Test User",
			TargetRole:  "Backend Engineer",
			TargetLevel: "Senior",
		},
		{
			Email:    "demo@example.com",
			FullName: "Demo User",
		},
	}
	for i := range users {
		if err := s.seedUser(ctx, &users[i]); err != nil {
			slog.Error("Failed to seed user", "email", users[i].Email, "error", err)
		}
	}

	testUser, err := s.repo.GetUserByEmail(ctx, "test@example.com")
	if err != nil {
		return fmt.Errorf("failed to get test user: %w", err)
	}

	interviews, err := s.repo.ListInterviews(ctx, testUser.ID)
	if err != nil {
		return fmt.Errorf("failed to list interviews: %w", err)
	}
	if len(interviews) > 0 {
		slog.Info("Database seeding already completed, skipping")
		return nil
	}

	iv := &models.Interview{
		UserID:         testUser.ID,
		Role:           "Backend Engineer",
		FocusArea:      "Distributed Systems",
		Level:          "Senior",
		Language:       "English",
		TotalQuestions: 3,
	}
	if err := s.repo.CreateInterview(ctx, iv); err != nil {
		return fmt.Errorf("failed to seed interview: %w", err)
	}

	turns := []struct {
		role    string
		content string
		seed    bool
	}{
		{models.RoleUser, "Start the interview now. Greet the candidate briefly and ask your first question.", true},
		{models.RoleModel, "Welcome! Let's begin. Tell me about a distributed system you designed and the trade-offs you made.", false},
		{models.RoleUser, "I built an event-driven order pipeline on Kafka with idempotent consumers.", false},
	}
	for _, t := range turns {
		if _, err := s.repo.AppendTurn(ctx, iv.ID, t.role, t.content, repository.AppendOptions{Seed: t.seed}); err != nil {
			return fmt.Errorf("failed to seed turn: %w", err)
		}
	}

	slog.Info("Database seeding completed", "interview_id", iv.ID)
	return nil
}

func (s *DatabaseSeeder) seedUser(ctx context.Context, user *models.User) error {
	existing, err := s.repo.GetUserByEmail(ctx, user.Email)
	if err == nil {
		user.ID = existing.ID
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return s.repo.CreateUser(ctx, user)
}
