package seed

import (
	"context"
	_ "embed"
	"fmt"

	"chatgraph/internal/models"
	"chatgraph/internal/repository"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yml
var questionsYAML []byte

// LoadQuestions parses the built-in question catalog.
func LoadQuestions() ([]models.Question, error) {
	var questions []models.Question
	if err := yaml.Unmarshal(questionsYAML, &questions); err != nil {
		return nil, fmt.Errorf("parse questions.yml: %w", err)
	}
	seen := make(map[string]bool)
	for i := range questions {
		q := &questions[i]
		if q.ID == "" || len(q.Options) == 0 {
			return nil, fmt.Errorf("question %d needs an id and options", i)
		}
		for j := range q.Options {
			if seen[q.Options[j].ID] {
				return nil, fmt.Errorf("duplicate option id %q", q.Options[j].ID)
			}
			seen[q.Options[j].ID] = true
			q.Options[j].QuestionID = q.ID
		}
	}
	return questions, nil
}

// Questions upserts the built-in catalog. Running it twice is harmless.
func Questions(ctx context.Context, rel repository.RelationshipRepository) ([]models.Question, error) {
	questions, err := LoadQuestions()
	if err != nil {
		return nil, err
	}
	for i := range questions {
		if err := rel.UpsertQuestion(ctx, &questions[i]); err != nil {
			return nil, fmt.Errorf("seed question %s: %w", questions[i].ID, err)
		}
	}
	return questions, nil
}
