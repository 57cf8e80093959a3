package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/korjavin/quizbot/models"
)

// Inserter is the part of the store seeding needs
type Inserter interface {
	CountQuestions(ctx context.Context) (int, error)
	InsertQuestions(ctx context.Context, questions []models.Question) error
}

// Parse reads a YAML list of questions and validates every entry
func Parse(r io.Reader) ([]models.Question, error) {
	var questions []models.Question
	if err := yaml.NewDecoder(r).Decode(&questions); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}

	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question #%d: %w", i+1, err)
		}
	}
	return questions, nil
}

// LoadFile parses the questions file at path
func LoadFile(path string) ([]models.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// IfEmpty inserts the questions from path unless the store already has some.
// It returns how many questions were inserted.
func IfEmpty(ctx context.Context, store Inserter, path string) (int, error) {
	n, err := store.CountQuestions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	if n > 0 {
		log.Printf("Questions table already has %d questions, skipping seed", n)
		return 0, nil
	}

	questions, err := LoadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", path, err)
	}

	if err := store.InsertQuestions(ctx, questions); err != nil {
		return 0, fmt.Errorf("failed to insert questions: %w", err)
	}

	log.Printf("Seeded %d questions from %s", len(questions), path)
	return len(questions), nil
}
