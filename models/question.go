package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidQuestion is returned when a question breaks its invariants
var ErrInvalidQuestion = errors.New("invalid question")

var validate = validator.New()

// Question represents a quiz question from the questions table
type Question struct {
	ID            int64    `yaml:"-"`
	Text          string   `yaml:"text" validate:"required"`
	Options       []string `yaml:"options" validate:"min=2,dive,required"`
	CorrectAnswer string   `yaml:"correct_answer" validate:"required"`
	Category      string   `yaml:"category" validate:"required"`
}

// Validate checks the struct tags and that the correct answer is one of the options
func (q Question) Validate() error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuestion, err)
	}

	if !q.HasOption(q.CorrectAnswer) {
		return fmt.Errorf("%w: correct answer %q is not among the options", ErrInvalidQuestion, q.CorrectAnswer)
	}

	return nil
}

// HasOption reports whether text exactly matches one of the options
func (q Question) HasOption(text string) bool {
	for _, o := range q.Options {
		if o == text {
			return true
		}
	}
	return false
}

// AnswerEvent is one submitted answer, stored in user_answer and never changed afterwards
type AnswerEvent struct {
	UserID         int64
	SessionID      string
	QuestionID     int64
	SelectedAnswer string
	IsCorrect      bool
	AnsweredAt     time.Time
}

// User is a Telegram user who has talked to the bot
type User struct {
	ID       int64
	FullName string
	Username string
}

// UserStats is the all-time answer count of a user
type UserStats struct {
	Correct   int
	Incorrect int
}

// Total returns the number of answered questions
func (s UserStats) Total() int {
	return s.Correct + s.Incorrect
}

// Accuracy returns the share of correct answers in percent
func (s UserStats) Accuracy() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total()) * 100
}

// MissedQuestion is a question a user answered incorrectly Count times
type MissedQuestion struct {
	QuestionID int64
	Text       string
	Count      int
}

// StatsOf counts the correct and incorrect answers among events
func StatsOf(events []AnswerEvent) UserStats {
	var s UserStats
	for _, e := range events {
		if e.IsCorrect {
			s.Correct++
		} else {
			s.Incorrect++
		}
	}
	return s
}
