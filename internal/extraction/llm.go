package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/voxd/internal/act"
	"github.com/fyrsmithlabs/voxd/internal/calendar"
)

const (
	defaultLLMModel    = "gpt-4o-mini"
	defaultRateLimit   = 2 // requests per second
	defaultBurst       = 4
	defaultMaxRetries  = 2
	defaultBaseBackoff = 500 * time.Millisecond
)

// llmExtractor calls an OpenAI-compatible chat completion endpoint and
// validates the reply against the wire schema. Transient failures are
// retried with exponential backoff; the rate limiter protects API
// quotas when several sessions finish at once.
type llmExtractor struct {
	model      llms.Model
	limiter    *rate.Limiter
	maxRetries int
}

func newLLMExtractor(cfg Config) (*llmExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm extraction requires an API key")
	}

	model := cfg.Model
	if model == "" {
		model = defaultLLMModel
	}

	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	return &llmExtractor{
		model:      client,
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
	}, nil
}

func (l *llmExtractor) method() act.Method { return act.MethodLLM }

func (l *llmExtractor) run(ctx context.Context, req Request) (*Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	prompt := buildPrompt(req)

	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		raw, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt,
			llms.WithTemperature(0.2),
			llms.WithMaxTokens(4096),
		)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		result, err := parseResponse(raw, req, act.MethodLLM)
		if err != nil {
			// A malformed reply is a contract violation, not a
			// transient transport error; do not retry blindly more
			// than once.
			lastErr = err
			continue
		}
		return result, nil
	}
	return nil, fmt.Errorf("llm extraction failed after %d attempts: %w", l.maxRetries+1, lastErr)
}

// buildPrompt renders the extraction instruction with the transcript,
// the capture date for relative-date anchoring, and the calendar
// window for collision awareness.
func buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("You turn a spoken conversation into structured commitments.\n")
	b.WriteString("Reply with a single JSON object, no prose, no code fences, shaped exactly as:\n")
	b.WriteString(`{"summary": string, "insights": [{"type": "emotional|practical|relationship|health", "text": string, "importance": 1-5}], "acts": [{"text": string, "category": "action|watch_out|depends_on|note", "assignee": string, "due_context": string, "proposed_date": "YYYY-MM-DD or empty", "proposed_time": "HH:MM or empty", "date_rationale": string, "priority": 1-5, "micro_steps": [string], "success_criteria": string, "motivation": string, "confidence": 0-100}]}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Provide exactly 3 to 5 insights.\n")
	b.WriteString("- Act text is verb-first. Assignee is \"me\", a person's name, or \"shared\".\n")
	fmt.Fprintf(&b, "- Today is %s (%s). Resolve relative dates against it: today=+0, tomorrow=+1, \"this week\" within 7 days, \"next week\" 7-14 days out, \"by <weekday>\" the nearest upcoming one.\n",
		req.CapturedAt.Format(calendar.DateLayout), req.CapturedAt.Weekday())
	b.WriteString("- date_rationale explains why the date/time was chosen, in one sentence.\n")
	b.WriteString("- Avoid proposing a time that exactly matches an existing event below; prefer a free time the same day.\n")

	if len(req.Calendar) > 0 {
		b.WriteString("\nExisting calendar events:\n")
		for _, e := range req.Calendar {
			fmt.Fprintf(&b, "- %s %s (%d min): %s\n", e.Date, e.Time, int(e.Duration/time.Minute), e.Title)
		}
	} else {
		b.WriteString("\nThe calendar window is empty.\n")
	}

	b.WriteString("\nTranscript:\n")
	if req.Transcript != "" {
		b.WriteString(req.Transcript)
	} else {
		fmt.Fprintf(&b, "(audio reference: %s)", req.AudioRef)
	}
	return b.String()
}
