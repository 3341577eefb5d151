package provider

import (
	"context"
	"io"
	"log/slog"

	"salesbot/pkg/config"
	provideropenai "salesbot/pkg/provider/openai"
)

// Prompt is one free-form customer message handed to the generative fallback.
type Prompt struct {
	ConversationID string
	Instructions   string
	Lang           string
	Text           string
}

// Responder answers messages the intent rules could not route. An empty reply
// means "no answer"; callers fall back to the qualification funnel.
type Responder interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Transcriber turns a voice or audio recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string, lang string) (string, error)
}

// HealthChecker is implemented by providers that can check their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// New builds the AI collaborators enabled in cfg. Disabled collaborators are
// returned as nil.
func New(cfg *config.Config) (Responder, Transcriber, error) {
	log := slog.Default().With("component", "provider.factory")
	if !cfg.AI.Enabled && !cfg.AI.Transcription {
		log.Debug("AI collaborators disabled")
		return nil, nil, nil
	}

	log.Debug("Resolving provider client", "provider", "openai", "responder", cfg.AI.Enabled, "transcription", cfg.AI.Transcription)

	client, err := provideropenai.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	var (
		responder   Responder
		transcriber Transcriber
	)
	if cfg.AI.Enabled {
		responder = openAIResponder{client: client}
	}
	if cfg.AI.Transcription {
		transcriber = client
	}

	return responder, transcriber, nil
}

// openAIResponder adapts the OpenAI client to Responder.
type openAIResponder struct {
	client *provideropenai.Client
}

func (r openAIResponder) Generate(ctx context.Context, p Prompt) (string, error) {
	return r.client.Generate(ctx, p.ConversationID, p.Instructions, p.Text)
}

func (r openAIResponder) Health(ctx context.Context) error {
	return r.client.Health(ctx)
}
