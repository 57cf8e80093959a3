package quiz

import (
	"time"

	"github.com/korjavin/quizbot/models"
)

// State is the position of a user in the quiz flow
type State int

const (
	Idle State = iota
	Confirming
	CategorySelecting
	Asking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Confirming:
		return "confirming"
	case CategorySelecting:
		return "category_selecting"
	case Asking:
		return "asking"
	default:
		return "unknown"
	}
}

// Session is the in-memory quiz progress of one user.
// Questions, Step and Score are only meaningful once State is Asking.
type Session struct {
	ID        string
	UserID    int64
	State     State
	Category  string
	Questions []models.Question
	Step      int
	Score     int
	StartedAt time.Time
}

// Total returns the number of questions in the session
func (s *Session) Total() int {
	return len(s.Questions)
}

// Current returns the question waiting for an answer
func (s *Session) Current() (models.Question, bool) {
	if s.Step < 0 || s.Step >= len(s.Questions) {
		return models.Question{}, false
	}
	return s.Questions[s.Step], true
}

// Finished reports whether every question has been answered
func (s *Session) Finished() bool {
	return s.Step >= len(s.Questions)
}

// Peer identifies who sent an event and where replies go.
// In private chats ChatID equals UserID.
type Peer struct {
	UserID int64
	ChatID int64
}

// Prompt is an outbound message: text plus the labels the user can pick from
type Prompt struct {
	Text           string
	Options        []string
	RemoveKeyboard bool
}
