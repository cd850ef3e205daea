package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/memevault/memevault/domain/meme"
	"github.com/mozillazg/go-unidecode"
	"github.com/revrost/go-openrouter"
)

// Caption defaults.
const (
	DefaultCaptionModel     = "x-ai/grok-4-fast:free"
	DefaultCaptionPrompt    = "Generate a detailed, descriptive caption for this meme."
	DefaultCaptionMaxTokens = 200
	DefaultCaptionTimeout   = 60 * time.Second
	DefaultCaptionTitle     = "MemeVault AI"
	DefaultCaptionReferer   = "http://localhost"
)

// chatCompleter is the subset of the OpenRouter client used for captioning.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openrouter.ChatCompletionRequest) (openrouter.ChatCompletionResponse, error)
}

// OpenRouterConfig configures the OpenRouter captioner.
type OpenRouterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Title       string
	Referer     string
}

// OpenRouterCaptioner describes images with a vision model routed through
// OpenRouter. It does not retry; the caller decides what a failure means.
type OpenRouterCaptioner struct {
	client      chatCompleter
	model       string
	prompt      string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewOpenRouterCaptioner creates a captioner. A missing API key is a
// configuration error.
func NewOpenRouterCaptioner(cfg OpenRouterConfig) (*OpenRouterCaptioner, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: caption API key is not set", meme.ErrConfiguration)
	}

	title := cfg.Title
	if title == "" {
		title = DefaultCaptionTitle
	}
	referer := cfg.Referer
	if referer == "" {
		referer = DefaultCaptionReferer
	}

	opts := []openrouter.Option{
		openrouter.WithXTitle(title),
		openrouter.WithHTTPReferer(referer),
	}
	if cfg.BaseURL != "" {
		base := strings.TrimRight(cfg.BaseURL, "/")
		opts = append(opts, func(c *openrouter.ClientConfig) { c.BaseURL = base })
	}

	client := openrouter.NewClient(cfg.APIKey, opts...)
	return newOpenRouterCaptioner(client, cfg), nil
}

func newOpenRouterCaptioner(client chatCompleter, cfg OpenRouterConfig) *OpenRouterCaptioner {
	c := &OpenRouterCaptioner{
		client:      client,
		model:       cfg.Model,
		prompt:      cfg.Prompt,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}
	if c.model == "" {
		c.model = DefaultCaptionModel
	}
	if c.prompt == "" {
		c.prompt = DefaultCaptionPrompt
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultCaptionMaxTokens
	}
	if c.timeout <= 0 {
		c.timeout = DefaultCaptionTimeout
	}
	return c
}

// Model returns the vision model name.
func (c *OpenRouterCaptioner) Model() string { return c.model }

// Describe returns a caption for image.
func (c *OpenRouterCaptioner) Describe(ctx context.Context, image []byte) (string, error) {
	dataURL, err := imageDataURL(image)
	if err != nil {
		return "", NewError(meme.ErrCaption, "caption", 0, "prepare image", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request := openrouter.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Messages: []openrouter.ChatCompletionMessage{
			openrouter.UserMessageWithImage(c.prompt, dataURL),
		},
	}

	completion, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", wrapCaptionError(err)
	}

	if len(completion.Choices) == 0 {
		return "", NewError(meme.ErrCaption, "caption", 0, "no choices in response", nil)
	}

	content := completion.Choices[0].Message.Content
	if content.Text == "" && len(content.Multi) > 0 {
		return "", NewError(meme.ErrCaption, "caption", 0, "multi-part content is not supported", nil)
	}

	caption := cleanCaption(content.Text)
	if caption == "" {
		return "", NewError(meme.ErrCaption, "caption", 0, "empty caption", nil)
	}
	return caption, nil
}

func wrapCaptionError(err error) error {
	var apiErr *openrouter.APIError
	if errors.As(err, &apiErr) {
		return NewError(meme.ErrCaption, "caption", apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openrouter.RequestError
	if errors.As(err, &reqErr) {
		return NewError(meme.ErrCaption, "caption", reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return NewError(meme.ErrCaption, "caption", 0, "completion failed", err)
}

// cleanCaption trims the model output, transliterates it to ASCII and
// collapses runs of whitespace.
func cleanCaption(s string) string {
	s = unidecode.Unidecode(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

var _ meme.Captioner = (*OpenRouterCaptioner)(nil)
