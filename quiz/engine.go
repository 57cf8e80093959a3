package quiz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/korjavin/quizbot/models"
)

// Labels of the confirmation keyboard
const (
	LabelYes = "Yes"
	LabelNo  = "No"
)

const (
	textConfirm      = "Do you want to take a quiz?"
	textPickCategory = "Choose a category:"
	textNoCategories = "There are no quizzes yet. Please try again later."
	textNoQuestions  = "There are no questions in this category yet. Choose another one:"
	textLoadFailed   = "Sorry, I couldn't load the questions. Please try again."
	textFallback     = "Press /play to start a quiz."
	textCancelled    = "Quiz cancelled. Press /play to start again."
	textCorrect      = "✅ Correct!"
	textWrong        = "❌ Wrong! The correct answer is: %s"
	textQuestion     = "Question %d/%d\n\n%s"
	textFinished     = "🏁 Quiz finished!\nCorrect answers: %d/%d"
)

// QuestionStore provides questions grouped by category.
// QuestionsByCategory must return the same order on every call.
type QuestionStore interface {
	Categories(ctx context.Context) ([]string, error)
	QuestionsByCategory(ctx context.Context, category string) ([]models.Question, error)
}

// ResultSink persists answer events
type ResultSink interface {
	RecordAnswer(ctx context.Context, event models.AnswerEvent) error
}

// Messenger delivers prompts to a chat
type Messenger interface {
	Send(ctx context.Context, chatID int64, p Prompt) error
}

type handlerFunc func(e *Engine, ctx context.Context, peer Peer, sess *Session, text string)

// routes maps the state a user is in to the handler for a free-text message
var routes = map[State]handlerFunc{
	Idle: func(e *Engine, ctx context.Context, peer Peer, _ *Session, _ string) {
		e.send(ctx, peer, fallbackPrompt())
	},
	Confirming: func(e *Engine, ctx context.Context, peer Peer, sess *Session, text string) {
		e.confirm(ctx, peer, sess, text == LabelYes)
	},
	CategorySelecting: func(e *Engine, ctx context.Context, peer Peer, sess *Session, text string) {
		e.selectCategory(ctx, peer, sess, text)
	},
	Asking: func(e *Engine, ctx context.Context, peer Peer, sess *Session, text string) {
		e.submitAnswer(ctx, peer, sess, text)
	},
}

// Engine drives the quiz flow of every user:
// Idle -> Confirming -> CategorySelecting -> Asking -> Idle.
// Events of one user are handled one at a time; different users run in parallel.
type Engine struct {
	questions    QuestionStore
	results      ResultSink
	messenger    Messenger
	sessions     SessionStore
	maxQuestions int
	locks        *userLocks

	now   func() time.Time
	newID func() string
}

// NewEngine creates a quiz engine. maxQuestions <= 0 means no cap.
// A nil sessions store is replaced with a MemoryStore.
func NewEngine(questions QuestionStore, results ResultSink, messenger Messenger, sessions SessionStore, maxQuestions int) *Engine {
	if sessions == nil {
		sessions = NewMemoryStore()
	}

	return &Engine{
		questions:    questions,
		results:      results,
		messenger:    messenger,
		sessions:     sessions,
		maxQuestions: maxQuestions,
		locks:        newUserLocks(),
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
	}
}

// State returns the state of the user, Idle when there is no session
func (e *Engine) State(userID int64) State {
	sess, ok := e.sessions.Get(userID)
	if !ok {
		return Idle
	}
	return sess.State
}

// StartSession moves the user to Confirming, dropping any session in progress
func (e *Engine) StartSession(ctx context.Context, peer Peer) {
	defer e.locks.lock(peer.UserID)()

	if old, ok := e.sessions.Get(peer.UserID); ok && old.State == Asking {
		log.WithFields(log.Fields{
			"user_id": peer.UserID,
			"step":    old.Step,
			"total":   old.Total(),
		}).Info("Discarding quiz in progress")
	}

	e.sessions.Set(&Session{
		ID:        e.newID(),
		UserID:    peer.UserID,
		State:     Confirming,
		StartedAt: e.now(),
	})

	e.send(ctx, peer, Prompt{Text: textConfirm, Options: []string{LabelYes, LabelNo}})
}

// Confirm answers the start question. Only valid in Confirming.
func (e *Engine) Confirm(ctx context.Context, peer Peer, accepted bool) {
	defer e.locks.lock(peer.UserID)()

	sess, ok := e.sessions.Get(peer.UserID)
	if !ok || sess.State != Confirming {
		e.send(ctx, peer, fallbackPrompt())
		return
	}
	e.confirm(ctx, peer, sess, accepted)
}

// SelectCategory loads the category's questions and asks the first one.
// Only valid in CategorySelecting.
func (e *Engine) SelectCategory(ctx context.Context, peer Peer, category string) {
	defer e.locks.lock(peer.UserID)()

	sess, ok := e.sessions.Get(peer.UserID)
	if !ok || sess.State != CategorySelecting {
		e.send(ctx, peer, fallbackPrompt())
		return
	}
	e.selectCategory(ctx, peer, sess, category)
}

// SubmitAnswer scores an answer to the current question. Only valid in Asking.
func (e *Engine) SubmitAnswer(ctx context.Context, peer Peer, answer string) {
	defer e.locks.lock(peer.UserID)()

	sess, ok := e.sessions.Get(peer.UserID)
	if !ok || sess.State != Asking {
		e.send(ctx, peer, fallbackPrompt())
		return
	}
	e.submitAnswer(ctx, peer, sess, answer)
}

// Cancel drops the user's session whatever state it is in
func (e *Engine) Cancel(ctx context.Context, peer Peer) {
	defer e.locks.lock(peer.UserID)()

	if _, ok := e.sessions.Get(peer.UserID); !ok {
		e.send(ctx, peer, fallbackPrompt())
		return
	}

	e.sessions.Clear(peer.UserID)
	e.send(ctx, peer, Prompt{Text: textCancelled, RemoveKeyboard: true})
}

// HandleText routes a free-text message by the user's current state
func (e *Engine) HandleText(ctx context.Context, peer Peer, text string) {
	defer e.locks.lock(peer.UserID)()

	sess, ok := e.sessions.Get(peer.UserID)
	state := Idle
	if ok {
		state = sess.State
	}

	route, found := routes[state]
	if !found {
		log.Warnf("No route for state %s of user %d, resetting", state, peer.UserID)
		e.sessions.Clear(peer.UserID)
		route = routes[Idle]
	}
	route(e, ctx, peer, sess, text)
}

func (e *Engine) confirm(ctx context.Context, peer Peer, sess *Session, accepted bool) {
	if !accepted {
		e.sessions.Clear(peer.UserID)
		e.send(ctx, peer, fallbackPrompt())
		return
	}

	categories, err := e.questions.Categories(ctx)
	if err != nil {
		log.Errorf("Error loading categories for user %d: %v", peer.UserID, err)
		e.send(ctx, peer, Prompt{Text: textLoadFailed, Options: []string{LabelYes, LabelNo}})
		return
	}

	if len(categories) == 0 {
		e.sessions.Clear(peer.UserID)
		e.send(ctx, peer, Prompt{Text: textNoCategories, RemoveKeyboard: true})
		return
	}

	sess.State = CategorySelecting
	e.sessions.Set(sess)
	e.send(ctx, peer, Prompt{Text: textPickCategory, Options: categories})
}

func (e *Engine) selectCategory(ctx context.Context, peer Peer, sess *Session, category string) {
	questions, err := e.questions.QuestionsByCategory(ctx, category)
	if err != nil {
		log.Errorf("Error loading questions of category %q for user %d: %v", category, peer.UserID, err)
		e.send(ctx, peer, Prompt{Text: textLoadFailed})
		return
	}

	if len(questions) == 0 {
		e.send(ctx, peer, e.categoryPrompt(ctx, textNoQuestions))
		return
	}

	if e.maxQuestions > 0 && len(questions) > e.maxQuestions {
		questions = questions[:e.maxQuestions]
	}

	sess.State = Asking
	sess.Category = category
	sess.Questions = questions
	sess.Step = 0
	sess.Score = 0
	e.sessions.Set(sess)

	log.Printf("User %d started category %q with %d questions", peer.UserID, category, len(questions))

	e.send(ctx, peer, questionPrompt(sess))
}

func (e *Engine) submitAnswer(ctx context.Context, peer Peer, sess *Session, answer string) {
	question, ok := sess.Current()
	if !ok {
		// Asking with nothing left to ask should not happen; recover to Idle
		log.Warnf("User %d is asking past the last question (step %d/%d)", peer.UserID, sess.Step, sess.Total())
		e.sessions.Clear(peer.UserID)
		e.send(ctx, peer, fallbackPrompt())
		return
	}

	isCorrect := answer == question.CorrectAnswer

	event := models.AnswerEvent{
		UserID:         peer.UserID,
		SessionID:      sess.ID,
		QuestionID:     question.ID,
		SelectedAnswer: answer,
		IsCorrect:      isCorrect,
		AnsweredAt:     e.now(),
	}
	if err := e.results.RecordAnswer(ctx, event); err != nil {
		log.WithFields(log.Fields{
			"user_id":     peer.UserID,
			"question_id": question.ID,
		}).Errorf("Error saving answer: %v", err)
	}

	if isCorrect {
		sess.Score++
		e.send(ctx, peer, Prompt{Text: textCorrect})
	} else {
		e.send(ctx, peer, Prompt{Text: fmt.Sprintf(textWrong, question.CorrectAnswer)})
	}
	sess.Step++

	if sess.Finished() {
		e.sessions.Clear(peer.UserID)
		log.Printf("User %d finished category %q: %d/%d", peer.UserID, sess.Category, sess.Score, sess.Total())
		e.send(ctx, peer, Prompt{
			Text:           fmt.Sprintf(textFinished, sess.Score, sess.Total()),
			RemoveKeyboard: true,
		})
		return
	}

	e.sessions.Set(sess)
	e.send(ctx, peer, questionPrompt(sess))
}

// categoryPrompt lists the categories again, falling back to plain text if they can't be loaded
func (e *Engine) categoryPrompt(ctx context.Context, text string) Prompt {
	categories, err := e.questions.Categories(ctx)
	if err != nil {
		log.Errorf("Error loading categories: %v", err)
		return Prompt{Text: text}
	}
	return Prompt{Text: text, Options: categories}
}

func (e *Engine) send(ctx context.Context, peer Peer, p Prompt) {
	if err := e.messenger.Send(ctx, peer.ChatID, p); err != nil {
		log.Errorf("Error sending message to chat %d: %v", peer.ChatID, err)
	}
}

func questionPrompt(sess *Session) Prompt {
	q, _ := sess.Current()
	return Prompt{
		Text:    fmt.Sprintf(textQuestion, sess.Step+1, sess.Total(), q.Text),
		Options: q.Options,
	}
}

func fallbackPrompt() Prompt {
	return Prompt{Text: textFallback, RemoveKeyboard: true}
}
