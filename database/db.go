package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/korjavin/quizbot/models"
)

// DB handles all database operations on SQLite
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes tables
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one connection avoids "database is locked"
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err = createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			full_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			options TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			category TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_questions_category ON questions (category)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS user_answer (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			question_id INTEGER NOT NULL,
			selected_answer TEXT NOT NULL,
			is_correct BOOLEAN NOT NULL,
			answered_at INTEGER NOT NULL
		)
	`)
	return err
}

// SaveUser inserts the user or refreshes their name
func (db *DB) SaveUser(ctx context.Context, user models.User) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (user_id, full_name, username, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET full_name = excluded.full_name, username = excluded.username`,
		user.ID, user.FullName, user.Username, time.Now().Unix(),
	)
	return err
}

// ListUsers returns every known user ordered by name
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT user_id, full_name, username FROM users ORDER BY full_name, user_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// InsertQuestions stores questions in one transaction and fills in their IDs
func (db *DB) InsertQuestions(ctx context.Context, questions []models.Question) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO questions (text, options, correct_answer, category) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range questions {
		q := &questions[i]
		options, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}

		res, err := stmt.ExecContext(ctx, q.Text, string(options), q.CorrectAnswer, q.Category)
		if err != nil {
			return fmt.Errorf("failed to insert question %q: %w", q.Text, err)
		}
		if q.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CountQuestions returns the number of stored questions
func (db *DB) CountQuestions(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM questions").Scan(&n)
	return n, err
}

// Categories returns the distinct question categories in alphabetical order
func (db *DB) Categories(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT DISTINCT category FROM questions ORDER BY category")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// QuestionsByCategory returns the questions of exactly this category ordered by ID
func (db *DB) QuestionsByCategory(ctx context.Context, category string) ([]models.Question, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, text, options, correct_answer, category FROM questions WHERE category = ? ORDER BY id",
		category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		var options string
		if err := rows.Scan(&q.ID, &q.Text, &options, &q.CorrectAnswer, &q.Category); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("question %d has malformed options: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// RecordAnswer appends an answer event
func (db *DB) RecordAnswer(ctx context.Context, e models.AnswerEvent) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO user_answer (user_id, session_id, question_id, selected_answer, is_correct, answered_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.UserID, e.SessionID, e.QuestionID, e.SelectedAnswer, e.IsCorrect, e.AnsweredAt.Unix(),
	)
	return err
}

// GetUserStats retrieves statistics about the user's answers
func (db *DB) GetUserStats(ctx context.Context, userID int64) (models.UserStats, error) {
	var s models.UserStats
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_answer WHERE user_id = ? AND is_correct = 1",
		userID,
	).Scan(&s.Correct)
	if err != nil {
		return models.UserStats{}, err
	}

	err = db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_answer WHERE user_id = ? AND is_correct = 0",
		userID,
	).Scan(&s.Incorrect)
	return s, err
}

// RecentAnswers returns the user's latest answers, newest first
func (db *DB) RecentAnswers(ctx context.Context, userID int64, limit int) ([]models.AnswerEvent, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT user_id, session_id, question_id, selected_answer, is_correct, answered_at
		FROM user_answer
		WHERE user_id = ?
		ORDER BY answered_at DESC, id DESC
		LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AnswerEvent
	for rows.Next() {
		var e models.AnswerEvent
		var answeredAt int64
		if err := rows.Scan(&e.UserID, &e.SessionID, &e.QuestionID, &e.SelectedAnswer, &e.IsCorrect, &answeredAt); err != nil {
			return nil, err
		}
		e.AnsweredAt = time.Unix(answeredAt, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}

// MostMissedQuestions gets the questions most frequently answered incorrectly
func (db *DB) MostMissedQuestions(ctx context.Context, userID int64, limit int) ([]models.MissedQuestion, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.question_id, q.text, COUNT(*) AS count
		FROM user_answer a
		JOIN questions q ON q.id = a.question_id
		WHERE a.user_id = ? AND a.is_correct = 0
		GROUP BY a.question_id, q.text
		ORDER BY count DESC, a.question_id
		LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.MissedQuestion
	for rows.Next() {
		var m models.MissedQuestion
		if err := rows.Scan(&m.QuestionID, &m.Text, &m.Count); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
