package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"salesbot/pkg/config"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// Client serves both the reply fallback and voice transcription. Replies in
// one conversation are chained through previous_response_id so the model
// keeps the dialog context without a server-side conversation object.
type Client struct {
	client             osdk.Client
	model              string
	transcriptionModel string
	requestTimeout     time.Duration

	mu       sync.Mutex
	previous map[string]string
}

func New(cfg *config.Config) (*Client, error) {
	providerCfg := cfg.Providers.OpenAI
	apiKey := resolveAPIKey(providerCfg)
	if apiKey == "" {
		return nil, errors.New("providers.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model, err := normalizeModel(providerCfg.Model)
	if err != nil {
		return nil, fmt.Errorf("resolve openai model: %w", err)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(providerCfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(providerCfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(providerCfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(providerCfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	transcriptionModel := strings.TrimSpace(providerCfg.TranscriptionModel)
	if transcriptionModel == "" {
		transcriptionModel = string(osdk.AudioModelWhisper1)
	}

	return &Client{
		client:             osdk.NewClient(opts...),
		model:              model,
		transcriptionModel: transcriptionModel,
		requestTimeout:     requestTimeout,
		previous:           make(map[string]string),
	}, nil
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started")

	if _, err := c.client.Models.List(ctx); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

// Generate answers text in the given conversation. instructions carries the
// tenant's system prompt and is resent on every turn.
func (c *Client) Generate(ctx context.Context, conversationID string, instructions string, text string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "generate")
	startedAt := time.Now()

	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return "", errors.New("conversation id is required")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("prompt is required")
	}

	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: osdk.String(text)},
	}
	if instructions = strings.TrimSpace(instructions); instructions != "" {
		params.Instructions = osdk.String(instructions)
	}

	previousID := c.previousResponse(conversationID)
	if previousID != "" {
		params.PreviousResponseID = osdk.String(previousID)
	}

	log.Debug("provider request started",
		"conversation_id", conversationID,
		"model", c.model,
		"chained", previousID != "",
		"prompt_length", len(text),
	)

	response, err := c.client.Responses.New(ctx, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("generate failed: %w", err)
	}

	c.rememberResponse(conversationID, response.ID)

	reply := strings.TrimSpace(response.OutputText())
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(reply))

	return reply, nil
}

// Transcribe converts a recording to text with the configured audio model.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string, lang string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := providerLogger().With("operation", "transcribe")
	startedAt := time.Now()

	if audio == nil {
		return "", errors.New("audio is required")
	}

	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = "voice.ogg"
	}

	params := osdk.AudioTranscriptionNewParams{
		File:  osdk.File(audio, filename, contentType(filename)),
		Model: osdk.AudioModel(c.transcriptionModel),
	}
	if lang = strings.TrimSpace(lang); lang != "" {
		params.Language = osdk.String(lang)
	}

	log.Debug("provider request started", "model", c.transcriptionModel, "filename", filename, "lang", lang)

	result, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "text_length", len(text))

	return text, nil
}

// Forget drops the response chain of a conversation.
func (c *Client) Forget(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.previous, conversationID)
}

func (c *Client) previousResponse(conversationID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previous[conversationID]
}

func (c *Client) rememberResponse(conversationID string, responseID string) {
	responseID = strings.TrimSpace(responseID)
	if responseID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.previous[conversationID] = responseID
}

func providerLogger() *slog.Logger {
	return slog.Default().With("component", "provider.openai")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func contentType(filename string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); t != "" {
		return t
	}

	return "audio/ogg"
}

func resolveAPIKey(cfg config.OpenAIProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

func normalizeModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("model is required")
	}

	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 {
		return model, nil
	}

	providerID := strings.TrimSpace(parts[0])
	modelID := strings.TrimSpace(parts[1])
	if providerID == "" || modelID == "" {
		return "", errors.New("model is invalid")
	}
	if providerID != "openai" {
		return "", fmt.Errorf("model provider %q is not supported by openai provider", providerID)
	}

	return modelID, nil
}
