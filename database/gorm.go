package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/korjavin/quizbot/models"
)

type userRow struct {
	UserID    int64  `gorm:"primaryKey;autoIncrement:false"`
	FullName  string `gorm:"not null;default:''"`
	Username  string `gorm:"not null;default:''"`
	CreatedAt time.Time
}

func (userRow) TableName() string { return "users" }

type questionRow struct {
	ID            int64    `gorm:"primaryKey"`
	Text          string   `gorm:"not null"`
	Options       []string `gorm:"serializer:json;not null"`
	CorrectAnswer string   `gorm:"not null"`
	Category      string   `gorm:"not null;index"`
}

func (questionRow) TableName() string { return "questions" }

type answerRow struct {
	ID             int64     `gorm:"primaryKey"`
	UserID         int64     `gorm:"not null;index"`
	SessionID      string    `gorm:"not null"`
	QuestionID     int64     `gorm:"not null"`
	SelectedAnswer string    `gorm:"not null"`
	IsCorrect      bool      `gorm:"not null"`
	AnsweredAt     time.Time `gorm:"not null"`
}

func (answerRow) TableName() string { return "user_answer" }

// GormDB implements Store on top of gorm, used for PostgreSQL
type GormDB struct {
	db *gorm.DB
}

// OpenPostgres connects to PostgreSQL and migrates the schema
func OpenPostgres(dsn string) (*GormDB, error) {
	return NewGorm(postgres.Open(dsn))
}

// NewGorm opens a gorm connection with the given dialector and migrates the schema
func NewGorm(dialector gorm.Dialector) (*GormDB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&userRow{}, &questionRow{}, &answerRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &GormDB{db: db}, nil
}

// Close closes the underlying connection pool
func (g *GormDB) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveUser inserts the user or refreshes their name
func (g *GormDB) SaveUser(ctx context.Context, user models.User) error {
	row := userRow{UserID: user.ID, FullName: user.FullName, Username: user.Username}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "username"}),
	}).Create(&row).Error
}

// ListUsers returns every known user ordered by name
func (g *GormDB) ListUsers(ctx context.Context) ([]models.User, error) {
	var rows []userRow
	if err := g.db.WithContext(ctx).Order("full_name, user_id").Find(&rows).Error; err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, models.User{ID: r.UserID, FullName: r.FullName, Username: r.Username})
	}
	return users, nil
}

// InsertQuestions stores questions in one transaction and fills in their IDs
func (g *GormDB) InsertQuestions(ctx context.Context, questions []models.Question) error {
	if len(questions) == 0 {
		return nil
	}

	rows := make([]questionRow, len(questions))
	for i, q := range questions {
		rows[i] = questionRow{Text: q.Text, Options: q.Options, CorrectAnswer: q.CorrectAnswer, Category: q.Category}
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return err
	}

	for i := range questions {
		questions[i].ID = rows[i].ID
	}
	return nil
}

// CountQuestions returns the number of stored questions
func (g *GormDB) CountQuestions(ctx context.Context) (int, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&questionRow{}).Count(&n).Error
	return int(n), err
}

// Categories returns the distinct question categories in alphabetical order
func (g *GormDB) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := g.db.WithContext(ctx).Model(&questionRow{}).
		Distinct("category").Order("category").Pluck("category", &categories).Error
	return categories, err
}

// QuestionsByCategory returns the questions of exactly this category ordered by ID
func (g *GormDB) QuestionsByCategory(ctx context.Context, category string) ([]models.Question, error) {
	var rows []questionRow
	if err := g.db.WithContext(ctx).Where("category = ?", category).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}

	questions := make([]models.Question, 0, len(rows))
	for _, r := range rows {
		questions = append(questions, models.Question{
			ID:            r.ID,
			Text:          r.Text,
			Options:       r.Options,
			CorrectAnswer: r.CorrectAnswer,
			Category:      r.Category,
		})
	}
	return questions, nil
}

// RecordAnswer appends an answer event
func (g *GormDB) RecordAnswer(ctx context.Context, e models.AnswerEvent) error {
	return g.db.WithContext(ctx).Create(&answerRow{
		UserID:         e.UserID,
		SessionID:      e.SessionID,
		QuestionID:     e.QuestionID,
		SelectedAnswer: e.SelectedAnswer,
		IsCorrect:      e.IsCorrect,
		AnsweredAt:     e.AnsweredAt,
	}).Error
}

// GetUserStats retrieves statistics about the user's answers
func (g *GormDB) GetUserStats(ctx context.Context, userID int64) (models.UserStats, error) {
	var correct, incorrect int64

	q := g.db.WithContext(ctx).Model(&answerRow{})
	if err := q.Where("user_id = ? AND is_correct = ?", userID, true).Count(&correct).Error; err != nil {
		return models.UserStats{}, err
	}

	q = g.db.WithContext(ctx).Model(&answerRow{})
	if err := q.Where("user_id = ? AND is_correct = ?", userID, false).Count(&incorrect).Error; err != nil {
		return models.UserStats{}, err
	}

	return models.UserStats{Correct: int(correct), Incorrect: int(incorrect)}, nil
}

// RecentAnswers returns the user's latest answers, newest first
func (g *GormDB) RecentAnswers(ctx context.Context, userID int64, limit int) ([]models.AnswerEvent, error) {
	var rows []answerRow
	err := g.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("answered_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]models.AnswerEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, models.AnswerEvent{
			UserID:         r.UserID,
			SessionID:      r.SessionID,
			QuestionID:     r.QuestionID,
			SelectedAnswer: r.SelectedAnswer,
			IsCorrect:      r.IsCorrect,
			AnsweredAt:     r.AnsweredAt,
		})
	}
	return events, nil
}

// MostMissedQuestions gets the questions most frequently answered incorrectly
func (g *GormDB) MostMissedQuestions(ctx context.Context, userID int64, limit int) ([]models.MissedQuestion, error) {
	var result []models.MissedQuestion
	err := g.db.WithContext(ctx).
		Table("user_answer AS a").
		Select("a.question_id AS question_id, q.text AS text, COUNT(*) AS count").
		Joins("JOIN questions q ON q.id = a.question_id").
		Where("a.user_id = ? AND a.is_correct = ?", userID, false).
		Group("a.question_id, q.text").
		Order("count DESC, a.question_id").
		Limit(limit).
		Scan(&result).Error
	return result, err
}
