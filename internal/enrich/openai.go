package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultModel = "gpt-4o-mini"

const detectSystemPrompt = `You analyze lecture transcript fragments. Decide whether the fragment
contains a question the speaker is posing to the audience. Respond with JSON:
{"has_question": bool, "question": "short canonical form of the question or empty"}`

const generateSystemPrompt = `You write multiple-choice quizzes. Given a question, produce exactly four
plausible options and mark the correct one. Respond with JSON:
{"option_a": "...", "option_b": "...", "option_c": "...", "option_d": "...", "correct_answer": "A"}
correct_answer must be one of A, B, C, D.`

const summarizeSystemPrompt = `You summarize classroom material for students. Be brief and concrete.`

// OpenAI implements Enricher against the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return NewOpenAIWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIWithConfig exists so tests can point the client at a stub server.
func NewOpenAIWithConfig(config openai.ClientConfig, model string) *OpenAI {
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(config), model: model}
}

func (o *OpenAI) Detect(ctx context.Context, text string) (Detection, error) {
	raw, err := o.complete(ctx, detectSystemPrompt, text, true)
	if err != nil {
		return Detection{}, err
	}
	return parseDetection(raw)
}

func (o *OpenAI) GenerateQuiz(ctx context.Context, question string) (*GeneratedQuiz, error) {
	raw, err := o.complete(ctx, generateSystemPrompt, question, true)
	if err != nil {
		return nil, err
	}
	return parseGeneratedQuiz(raw)
}

func (o *OpenAI) Summarize(ctx context.Context, text string) (string, error) {
	if len(strings.Fields(text)) == 0 {
		return "", nil
	}
	return o.complete(ctx, summarizeSystemPrompt, text, false)
}

func (o *OpenAI) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func parseDetection(raw string) (Detection, error) {
	var d Detection
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Detection{}, fmt.Errorf("parse detection: %w", err)
	}
	d.Question = strings.TrimSpace(d.Question)
	if d.HasQuestion && d.Question == "" {
		d.HasQuestion = false
	}
	return d, nil
}

func parseGeneratedQuiz(raw string) (*GeneratedQuiz, error) {
	var g GeneratedQuiz
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("parse generated quiz: %w", err)
	}
	g.CorrectAnswer = strings.ToUpper(strings.TrimSpace(g.CorrectAnswer))
	switch g.CorrectAnswer {
	case "A", "B", "C", "D":
	default:
		return nil, fmt.Errorf("generated quiz: bad correct_answer %q", g.CorrectAnswer)
	}
	if g.OptionA == "" || g.OptionB == "" || g.OptionC == "" || g.OptionD == "" {
		return nil, fmt.Errorf("generated quiz: missing option text")
	}
	return &g, nil
}
