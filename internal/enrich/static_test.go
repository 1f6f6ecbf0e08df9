package enrich

import (
	"context"
	"strings"
	"testing"
)

func TestStaticDetect(t *testing.T) {
	s := NewStatic(nil)
	ctx := context.Background()

	d, err := s.Detect(ctx, "Today we cover momentum. What is momentum? Let's see.")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !d.HasQuestion || !strings.HasSuffix(d.Question, "What is momentum?") {
		t.Fatalf("unexpected detection: %+v", d)
	}

	d, _ = s.Detect(ctx, "No questions here, just statements.")
	if d.HasQuestion {
		t.Fatalf("statement must not detect a question")
	}
}

func TestStaticGenerateQuiz(t *testing.T) {
	canned := GeneratedQuiz{OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", CorrectAnswer: "C"}
	fallback := GeneratedQuiz{OptionA: "w", OptionB: "x", OptionC: "y", OptionD: "z", CorrectAnswer: "A"}
	s := &Static{
		Quizzes: map[string]GeneratedQuiz{"What is momentum?": canned},
		Default: &fallback,
	}
	ctx := context.Background()

	g, err := s.GenerateQuiz(ctx, "What is momentum?")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if g == nil || g.CorrectAnswer != "C" {
		t.Fatalf("expected the canned quiz, got %+v", g)
	}

	g, _ = s.GenerateQuiz(ctx, "Something unmapped?")
	if g == nil || g.CorrectAnswer != "A" {
		t.Fatalf("expected the fallback quiz, got %+v", g)
	}

	s.Default = nil
	g, err = s.GenerateQuiz(ctx, "Something unmapped?")
	if err != nil || g != nil {
		t.Fatalf("no mapping and no default must yield nothing, got %+v %v", g, err)
	}
}

func TestStaticSummarizeTruncates(t *testing.T) {
	s := NewStatic(nil)
	long := strings.Repeat("x", 500)
	out, err := s.Summarize(context.Background(), long)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(out) != 280 {
		t.Fatalf("expected 280-char summary, got %d", len(out))
	}
}
