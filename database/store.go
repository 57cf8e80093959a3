package database

import (
	"context"
	"fmt"

	"github.com/korjavin/quizbot/config"
	"github.com/korjavin/quizbot/models"
)

// Store is everything the bot persists: users, questions and answers.
// It serves as the quiz engine's QuestionStore and ResultSink.
type Store interface {
	SaveUser(ctx context.Context, user models.User) error
	ListUsers(ctx context.Context) ([]models.User, error)

	InsertQuestions(ctx context.Context, questions []models.Question) error
	CountQuestions(ctx context.Context) (int, error)
	Categories(ctx context.Context) ([]string, error)
	QuestionsByCategory(ctx context.Context, category string) ([]models.Question, error)

	RecordAnswer(ctx context.Context, event models.AnswerEvent) error
	GetUserStats(ctx context.Context, userID int64) (models.UserStats, error)
	RecentAnswers(ctx context.Context, userID int64, limit int) ([]models.AnswerEvent, error)
	MostMissedQuestions(ctx context.Context, userID int64, limit int) ([]models.MissedQuestion, error)

	Close() error
}

// Open connects to the backend selected by cfg.DBDriver
func Open(cfg *config.Config) (Store, error) {
	switch cfg.DBDriver {
	case "", "sqlite":
		return New(cfg.DatabasePath)
	case "postgres":
		return OpenPostgres(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}
