package message

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// maxMinutesChars bounds each meeting's minutes in the prompt.
const maxMinutesChars = 8000

type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	BaseURL     string
}

// AnthropicSummarizer asks Claude for the version-specific part of the notes.
type AnthropicSummarizer struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

func NewAnthropicSummarizer(cfg AnthropicConfig) *AnthropicSummarizer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	return &AnthropicSummarizer{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (s *AnthropicSummarizer) Summarize(ctx context.Context, req SummaryRequest) (string, error) {
	msg, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(s.cfg.Model),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: anthropic.Float(s.cfg.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize %s effective %s: %w", req.Label, req.Effective, err)
	}
	if len(msg.Content) == 0 {
		return "", fmt.Errorf("empty summary for %s effective %s", req.Label, req.Effective)
	}
	return strings.TrimSpace(msg.Content[0].Text), nil
}

func buildPrompt(req SummaryRequest) string {
	minutes := "None available"
	if len(req.Minutes) > 0 {
		parts := make([]string, 0, len(req.Minutes))
		for _, m := range req.Minutes {
			text := m.Text
			if len(text) > maxMinutesChars {
				text = text[:maxMinutesChars]
			}
			parts = append(parts, fmt.Sprintf("--- Meeting %s ---\n%s", m.Date, text))
		}
		minutes = strings.Join(parts, "\n\n")
	}
	date := req.Effective.Long()

	return fmt.Sprintf(`You are summarizing changes to a North Dakota court rule for a git commit message.

Rule: %s - %s
Version effective date: %s

Below are the full explanatory notes for this rule (covering ALL versions).
Extract ONLY the paragraphs or sentences that describe changes effective %s.
Omit the opening summary line that lists all amendment dates.
Omit notes about other versions.
If no paragraphs specifically mention this date, include any general guidance paragraphs that appear to be undated.

If committee minutes text is provided, extract only the portions discussing %s and summarize them briefly (2-3 sentences max).

Format the output as a clean commit message body (no subject line). Keep it concise.

EXPLANATORY NOTES:
%s

COMMITTEE MINUTES:
%s`, req.Label, req.Title, date, date, req.Label, req.Notes, minutes)
}
