package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const triageSystemPrompt = "You triage enquiries sent to a rooftop and commercial solar installer. Respond with strict JSON only."

// Triage is the sales team's first read of an enquiry.
type Triage struct {
	Segment  string `json:"segment"`
	Priority string `json:"priority"`
}

var (
	validSegments   = map[string]bool{"home": true, "commercial": true, "unknown": true}
	validPriorities = map[string]bool{"high": true, "normal": true, "low": true}
)

func (t Triage) validate() error {
	if !validSegments[t.Segment] {
		return fmt.Errorf("segment %q not in home|commercial|unknown", t.Segment)
	}
	if !validPriorities[t.Priority] {
		return fmt.Errorf("priority %q not in high|normal|low", t.Priority)
	}
	return nil
}

type Triager interface {
	Triage(ctx context.Context, lead *Lead) (Triage, error)
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

type AnthropicTriager struct {
	messages AnthropicMessager
}

// NewAnthropicTriagerFromEnv returns an error when triage is disabled or no
// API key is configured; callers then run without triage.
func NewAnthropicTriagerFromEnv() (*AnthropicTriager, error) {
	if envEnabled("LEAD_TRIAGE_NO_LLM") {
		return nil, errors.New("lead triage disabled by LEAD_TRIAGE_NO_LLM")
	}
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	return &AnthropicTriager{messages: newAnthropicClient(apiKey)}, nil
}

func (a *AnthropicTriager) Triage(ctx context.Context, lead *Lead) (Triage, error) {
	ctx, span := tracer.Start(ctx, "leads.triage")
	defer span.End()

	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens:   256,
		System:      []anthropic.TextBlockParam{{Text: triageSystemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(triagePrompt(lead)))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return Triage{}, fmt.Errorf("triage request: %w", err)
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	raw := stripCodeFences(sb.String())
	if raw == "" {
		return Triage{}, errors.New("triage: empty response")
	}
	var out Triage
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Triage{}, fmt.Errorf("triage json parse: %w", err)
	}
	out.Segment = strings.ToLower(strings.TrimSpace(out.Segment))
	out.Priority = strings.ToLower(strings.TrimSpace(out.Priority))
	if err := out.validate(); err != nil {
		return Triage{}, fmt.Errorf("triage validation: %w", err)
	}
	return out, nil
}

func triagePrompt(lead *Lead) string {
	var b strings.Builder
	b.WriteString("Classify this enquiry.\n")
	b.WriteString(`Return {"segment": "home"|"commercial"|"unknown", "priority": "high"|"normal"|"low"}.` + "\n")
	b.WriteString("High priority means a concrete project, site or budget is mentioned.\n\n")
	if lead.Audience != "" {
		fmt.Fprintf(&b, "Audience selected on the site: %s\n", lead.Audience)
	}
	fmt.Fprintf(&b, "Message:\n%s\n", lead.Message)
	return b.String()
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func envEnabled(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
