// Package enrich wraps the external text-to-structured-content service the
// coordinator calls off the transcript stream. All calls are best-effort:
// a failure yields no quiz or no summary, never an error to the presenter.
package enrich

import "context"

// Detection is the outcome of the question-detection step.
type Detection struct {
	HasQuestion bool   `json:"has_question"`
	Question    string `json:"question"`
}

// GeneratedQuiz is the four-option expansion of a detected question.
type GeneratedQuiz struct {
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	OptionD       string `json:"option_d"`
	CorrectAnswer string `json:"correct_answer"` // one of A/B/C/D
}

// Enricher is the content enrichment boundary. GenerateQuiz may return
// (nil, nil) when the service produces nothing usable; callers treat that
// the same as an error, minus the log noise.
type Enricher interface {
	Detect(ctx context.Context, text string) (Detection, error)
	GenerateQuiz(ctx context.Context, question string) (*GeneratedQuiz, error)
	Summarize(ctx context.Context, text string) (string, error)
}
