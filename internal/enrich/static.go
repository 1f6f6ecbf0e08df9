package enrich

import (
	"context"
	"strings"
)

// Static is a heuristic enricher for demos and tests: it treats any sentence
// ending in "?" as a detected question and serves canned option sets. Swap in
// the OpenAI enricher for real content.
type Static struct {
	// Quizzes maps canonical question -> generated quiz. Questions without an
	// entry fall back to Default; a nil Default means generation yields nothing.
	Quizzes map[string]GeneratedQuiz
	Default *GeneratedQuiz
}

func NewStatic(quizzes map[string]GeneratedQuiz) *Static {
	return &Static{Quizzes: quizzes}
}

func (s *Static) Detect(_ context.Context, text string) (Detection, error) {
	for _, sentence := range strings.SplitAfter(text, "?") {
		sentence = strings.TrimSpace(sentence)
		if strings.HasSuffix(sentence, "?") {
			return Detection{HasQuestion: true, Question: sentence}, nil
		}
	}
	return Detection{}, nil
}

func (s *Static) GenerateQuiz(_ context.Context, question string) (*GeneratedQuiz, error) {
	if g, ok := s.Quizzes[question]; ok {
		out := g
		return &out, nil
	}
	if s.Default != nil {
		out := *s.Default
		return &out, nil
	}
	return nil, nil
}

func (s *Static) Summarize(_ context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	const limit = 280
	if len(text) > limit {
		text = text[:limit]
	}
	return text, nil
}
