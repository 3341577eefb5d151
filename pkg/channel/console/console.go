// Package console drives the dialog runtime from a local terminal. It is used
// by the chat command and by scripted runs that pipe lines through stdin.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"salesbot/pkg/bus"
	"salesbot/pkg/logger"
)

const (
	defaultChatID = "local"
	metaMessageID = "message_id"
)

// Options selects which tenant and language the local conversation runs as.
type Options struct {
	TenantID   string
	Lang       string
	ChatID     string
	SenderName string
}

// Session is one local conversation. Lines are routed through an in-process
// bus to a single worker that calls the handler, the same path chat channels
// use, so the funnel and cart behave identically.
type Session struct {
	handler    bus.MessageHandler
	opts       Options
	log        *slog.Logger
	messageBus *bus.MessageBus

	cancelWorker context.CancelFunc
	workerDone   chan struct{}

	requestCounter atomic.Uint64
}

func NewSession(handler bus.MessageHandler, opts Options, log *slog.Logger) (*Session, error) {
	if handler == nil {
		return nil, errors.New("message handler is required")
	}
	if log == nil {
		log = slog.Default()
	}

	opts.ChatID = strings.TrimSpace(opts.ChatID)
	if opts.ChatID == "" {
		opts.ChatID = defaultChatID
	}
	if strings.TrimSpace(opts.Lang) != "" {
		opts.Lang = bus.ParseLang(opts.Lang)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		handler:      handler,
		opts:         opts,
		log:          log.With("component", "channel.console"),
		messageBus:   bus.NewMessageBus(),
		cancelWorker: cancel,
		workerDone:   make(chan struct{}),
	}
	go s.runWorker(workerCtx)

	return s, nil
}

// Name returns the channel tag stamped on every message.
func (s *Session) Name() string {
	return bus.ChannelConsole
}

// SessionKey is the channel-scoped key of the local conversation.
func (s *Session) SessionKey() string {
	return bus.ChannelConsole + ":" + s.opts.ChatID
}

// Send delivers one typed line and returns the reply. A reply carrying an
// Error still has customer-facing Content and is not an error here.
func (s *Session) Send(ctx context.Context, text string) (bus.OutboundMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	requestID := strconv.FormatUint(s.requestCounter.Add(1), 10)
	inbound := bus.InboundMessage{
		TenantID:   s.opts.TenantID,
		Channel:    bus.ChannelConsole,
		ChatID:     s.opts.ChatID,
		SenderID:   s.opts.ChatID,
		SenderName: s.opts.SenderName,
		Lang:       s.opts.Lang,
		Kind:       bus.KindText,
		Content:    text,
		SessionKey: s.SessionKey(),
		Metadata: map[string]string{
			metaMessageID: requestID,
		},
	}

	s.log.Debug("Console message", "request_id", requestID, "content_preview", logger.Preview(text))

	if ok := s.messageBus.PublishInbound(ctx, inbound); !ok {
		if err := ctx.Err(); err != nil {
			return bus.OutboundMessage{}, err
		}
		return bus.OutboundMessage{}, errors.New("console session is closed")
	}

	for {
		outbound, ok := s.messageBus.SubscribeOutbound(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return bus.OutboundMessage{}, err
			}
			return bus.OutboundMessage{}, errors.New("console session is closed")
		}
		// Replies to lines whose caller gave up are dropped.
		if outbound.Metadata[metaMessageID] != requestID {
			continue
		}

		if strings.TrimSpace(outbound.Content) == "" && outbound.Error != "" {
			return bus.OutboundMessage{}, fmt.Errorf("handle console message: %s", outbound.Error)
		}
		if outbound.Error != "" {
			s.log.Debug("Console reply carries an error", "request_id", requestID, "error", outbound.Error)
		}

		return outbound, nil
	}
}

// Close stops the worker. Pending and later Sends fail.
func (s *Session) Close() {
	s.cancelWorker()
	s.messageBus.Close()
	<-s.workerDone
}

func (s *Session) runWorker(ctx context.Context) {
	defer close(s.workerDone)

	for {
		inbound, ok := s.messageBus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		outbound, err := s.handler(ctx, inbound)
		if err != nil {
			outbound = bus.OutboundMessage{
				Channel:    inbound.Channel,
				ChatID:     inbound.ChatID,
				SessionKey: inbound.SessionKey,
				Error:      err.Error(),
			}
		}
		outbound.Metadata = withMessageID(outbound.Metadata, inbound.Metadata[metaMessageID])

		if ok := s.messageBus.PublishOutbound(ctx, outbound); !ok {
			return
		}
	}
}

func withMessageID(meta map[string]string, id string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[metaMessageID] = id

	return out
}

// RunLines reads one message per line from r and writes each reply to w until
// r is exhausted, an exit command is typed or ctx ends.
func (s *Session) RunLines(ctx context.Context, r io.Reader, w io.Writer, prompt string) error {
	scanner := bufio.NewScanner(r)

	for {
		if prompt != "" {
			fmt.Fprint(w, prompt)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return nil
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if IsExitCommand(text) {
			return nil
		}

		reply, err := s.Send(ctx, text)
		if err != nil {
			fmt.Fprintf(w, "request failed: %v\n", err)
			continue
		}

		WriteReply(w, reply)
	}
}

// WriteReply prints a reply with one "bot" marker per line followed by its
// attachments.
func WriteReply(w io.Writer, reply bus.OutboundMessage) {
	lines := ReplyLines(reply)
	for _, line := range lines {
		fmt.Fprintf(w, "🛒 %s\n", line)
	}
	if len(lines) > 0 {
		fmt.Fprintln(w)
	}
}

// ReplyLines flattens a reply's text and attachments into printable lines.
func ReplyLines(reply bus.OutboundMessage) []string {
	var lines []string
	if trimmed := strings.TrimSpace(reply.Content); trimmed != "" {
		lines = strings.Split(trimmed, "\n")
	}

	for _, attachment := range reply.Attachments {
		lines = append(lines, AttachmentLine(attachment))
	}

	return lines
}

// AttachmentLine renders an attachment reference, e.g. "📎 document: /tmp/q.html (КП №1a2b)".
func AttachmentLine(a bus.Attachment) string {
	line := "📎 " + a.Kind + ": " + a.URL
	if caption := strings.TrimSpace(a.Caption); caption != "" {
		line += " (" + caption + ")"
	}

	return line
}

func IsExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
