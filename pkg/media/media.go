// Package media turns voice and audio messages into text before they reach
// the dialog layer.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"salesbot/pkg/bus"
	"salesbot/pkg/provider"
)

const (
	defaultTimeout  = 30 * time.Second
	maxDownloadSize = 20 << 20
)

// Stage downloads a message's media and replaces its empty Content with a
// transcript. Failures leave the message untouched.
type Stage struct {
	transcriber provider.Transcriber
	client      *http.Client
	timeout     time.Duration
	log         *slog.Logger
}

func New(transcriber provider.Transcriber, timeout time.Duration, log *slog.Logger) *Stage {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &Stage{
		transcriber: transcriber,
		client:      &http.Client{},
		timeout:     timeout,
		log:         log.With("component", "media.stage"),
	}
}

// Wrap runs the stage in front of next.
func (s *Stage) Wrap(next bus.MessageHandler) bus.MessageHandler {
	return func(ctx context.Context, msg bus.InboundMessage) (bus.OutboundMessage, error) {
		return next(ctx, s.Normalize(ctx, msg))
	}
}

// Normalize transcribes voice and audio messages that carry no text yet.
func (s *Stage) Normalize(ctx context.Context, msg bus.InboundMessage) bus.InboundMessage {
	if msg.Kind != bus.KindVoice && msg.Kind != bus.KindAudio {
		return msg
	}
	if strings.TrimSpace(msg.Content) != "" || strings.TrimSpace(msg.MediaURL) == "" {
		return msg
	}
	if s.transcriber == nil {
		s.log.Debug("Transcription disabled, passing media through", "channel", msg.Channel, "chat_id", msg.ChatID)
		return msg
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startedAt := time.Now()
	text, err := s.transcribe(ctx, msg)
	if err != nil {
		s.log.Warn("Voice transcription failed",
			"channel", msg.Channel,
			"chat_id", msg.ChatID,
			"kind", msg.Kind,
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"error", err,
		)
		return msg
	}

	s.log.Debug("Audio transcribed", "chat_id", msg.ChatID, "duration_ms", time.Since(startedAt).Milliseconds(), "text_length", len(text))

	msg.Content = text
	metadata := make(map[string]string, len(msg.Metadata)+1)
	for k, v := range msg.Metadata {
		metadata[k] = v
	}
	metadata["transcribed"] = "true"
	msg.Metadata = metadata

	return msg
}

func (s *Stage) transcribe(ctx context.Context, msg bus.InboundMessage) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, msg.MediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download media: unexpected status %d", resp.StatusCode)
	}

	return s.transcriber.Transcribe(ctx, io.LimitReader(resp.Body, maxDownloadSize), fileName(msg), bus.ParseLang(msg.Lang))
}

func fileName(msg bus.InboundMessage) string {
	name := path.Base(strings.SplitN(msg.MediaURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		if msg.Kind == bus.KindVoice {
			return "voice.ogg"
		}
		return "audio.mp3"
	}

	return name
}
