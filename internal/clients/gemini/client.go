package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/yungbote/course-assistant-backend/internal/pkg/httpx"
	"github.com/yungbote/course-assistant-backend/internal/pkg/logger"
)

const (
	DefaultModel      = "gemini-2.5-flash"
	defaultTimeout    = 90 * time.Second
	defaultMaxRetries = 2
	retryBackoff      = 750 * time.Millisecond
)

type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// MaxRetries bounds retries of 429/5xx and transport failures. Negative disables retries.
	MaxRetries int
}

type client struct {
	log        *logger.Logger
	genai      *genai.Client
	model      string
	timeout    time.Duration
	maxRetries int
}

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	switch {
	case retries < 0:
		retries = 0
	case retries == 0:
		retries = defaultMaxRetries
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &client{
		log:        log.With("client", "Gemini", "model", model),
		genai:      gc,
		model:      model,
		timeout:    timeout,
		maxRetries: retries,
	}, nil
}

func (c *client) Complete(ctx context.Context, history []Message, systemInstruction string, contextParts []Part) (string, error) {
	contents, err := buildContents(history, contextParts)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var cfg *genai.GenerateContentConfig
	if s := strings.TrimSpace(systemInstruction); s != "" {
		cfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(s, genai.RoleUser)}
	}

	start := time.Now()
	resp, err := c.generate(ctx, "complete", contents, cfg)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", NewError(KindEmpty, "complete", "model returned no text", nil)
	}
	c.log.Debug("completion done", "turns", len(contents), "duration", time.Since(start))
	return text, nil
}

func (c *client) ExtractDocument(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", NewError(KindInvalidInput, "extract", "document is empty", nil)
	}
	if !SupportedDocumentType(mimeType) {
		return "", NewError(KindUnsupported, "extract", "unsupported document type "+mimeType, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(ExtractionInstruction),
		}, genai.RoleUser),
	}
	resp, err := c.generate(ctx, "extract", contents, nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", NewError(KindEmpty, "extract", "model returned no text", nil)
	}
	return text, nil
}

func (c *client) generate(ctx context.Context, op string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, cfg)
		if err == nil {
			return resp, nil
		}
		cerr := classify(op, err)
		if attempt >= c.maxRetries || ctx.Err() != nil || !httpx.IsRetryableError(cerr) {
			c.log.Warn("generate content failed", "op", op, "attempt", attempt+1, "error", err)
			return nil, cerr
		}
		wait := httpx.JitterSleep(retryBackoff * time.Duration(1<<attempt))
		c.log.Debug("retrying generate content", "op", op, "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, classify(op, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// buildContents lays out the conversation: the knowledge-base turn, the model's
// acknowledgement, then history. Error-role messages are dropped.
func buildContents(history []Message, contextParts []Part) ([]*genai.Content, error) {
	var last *Message
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != RoleError {
			last = &history[i]
			break
		}
	}
	if last == nil || last.Role != RoleUser || strings.TrimSpace(last.Content) == "" {
		return nil, NewError(KindInvalidInput, "complete", "conversation must end with a user message", nil)
	}

	kb := make([]*genai.Part, 0, len(contextParts))
	for _, p := range contextParts {
		if p.Inline() {
			kb = append(kb, genai.NewPartFromBytes(p.Data, p.MIMEType))
		} else if p.Text != "" {
			kb = append(kb, genai.NewPartFromText(p.Text))
		}
	}
	if len(kb) == 0 {
		kb = append(kb, genai.NewPartFromText(EmptyKnowledgeBase))
	}

	out := []*genai.Content{
		genai.NewContentFromParts(kb, genai.RoleUser),
		genai.NewContentFromText(ContextAck, genai.RoleModel),
	}
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleModel:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleModel))
		}
	}
	return out, nil
}
