package seed

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korjavin/quizbot/database"
	"github.com/korjavin/quizbot/models"
)

func TestParse(t *testing.T) {
	questions, err := Parse(strings.NewReader(`
- category: Math
  text: "2 * 4 = ?"
  options: ["8", "9"]
  correct_answer: "8"
`))
	require.NoError(t, err)
	assert.Equal(t, []models.Question{{
		Text: "2 * 4 = ?", Options: []string{"8", "9"}, CorrectAnswer: "8", Category: "Math",
	}}, questions)
}

func TestParseRejectsInvalidQuestion(t *testing.T) {
	_, err := Parse(strings.NewReader(`
- category: Math
  text: "2 * 4 = ?"
  options: ["8", "9"]
  correct_answer: "eight"
`))
	assert.ErrorIs(t, err, models.ErrInvalidQuestion)
	assert.Contains(t, err.Error(), "question #1")
}

func TestParseEmpty(t *testing.T) {
	questions, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, questions)
}

func TestShippedQuestionsAreValid(t *testing.T) {
	questions, err := LoadFile(filepath.Join("..", "assets", "questions.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, questions)
}

func TestIfEmpty(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "quiz.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	path := filepath.Join("..", "assets", "questions.yaml")

	n, err := IfEmpty(ctx, db, path)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	math, err := db.QuestionsByCategory(ctx, "Math")
	require.NoError(t, err)
	require.Len(t, math, 3)
	assert.Equal(t, "2 * 4 = ?", math[0].Text)

	n, err = IfEmpty(ctx, db, path)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := db.CountQuestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}
