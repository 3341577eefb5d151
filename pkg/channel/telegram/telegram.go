package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"salesbot/pkg/bus"
	"salesbot/pkg/config"
	"salesbot/pkg/dispatch"
	"salesbot/pkg/logger"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	typingRefreshInterval = 4 * time.Second
	defaultFileTimeout    = 10 * time.Second
)

// botAPI is the slice of the Telegram Bot API the adapter uses.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
	SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	FileDownloadURL(filepath string) string
}

// Adapter bridges Telegram updates into normalized inbound messages and sends
// the replies back.
type Adapter struct {
	cfg         config.TelegramConfig
	allowFrom   map[string]struct{}
	fileTimeout time.Duration
	log         *slog.Logger
}

// incoming is a normalized update whose media file, if any, is not resolved
// yet. fileID is empty for plain text.
type incoming struct {
	msg    bus.InboundMessage
	fileID string
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:         cfg,
		allowFrom:   allowFromSet(cfg.AllowFrom),
		fileTimeout: defaultFileTimeout,
		log:         log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return bus.ChannelTelegram
}

// Run starts long polling. Updates of one chat are handled in arrival order;
// different chats are handled in parallel.
func (a *Adapter) Run(ctx context.Context, handler bus.MessageHandler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started", "tenant_id", a.cfg.Tenant)

	return a.serve(ctx, bot, updates, handler)
}

// serve reads updates until ctx ends. Anything that talks to Telegram for a
// message, media lookup included, runs inside that chat's job so a slow call
// only holds up its own conversation.
func (a *Adapter) serve(ctx context.Context, bot botAPI, updates <-chan telego.Update, handler bus.MessageHandler) error {
	chats := dispatch.New(ctx, a.log)
	defer chats.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			in, ok := a.normalize(update)
			if !ok {
				continue
			}

			chats.Submit(in.msg.SessionKey, func(ctx context.Context) {
				a.handle(ctx, bot, handler, a.resolveMedia(ctx, bot, in))
			})
		}
	}
}

// normalize converts a Telegram update into an inbound message. It reports
// false for updates the bot ignores.
func (a *Adapter) normalize(update telego.Update) (incoming, bool) {
	message := update.Message
	if message == nil {
		return incoming{}, false
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return incoming{}, false
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return incoming{}, false
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	in := incoming{msg: bus.InboundMessage{
		TenantID:   strings.TrimSpace(a.cfg.Tenant),
		Channel:    bus.ChannelTelegram,
		ChatID:     chatID,
		SenderID:   senderID,
		SenderName: strings.TrimSpace(message.From.FirstName + " " + message.From.LastName),
		Lang:       a.lang(message.From.LanguageCode),
		Kind:       bus.KindText,
		Content:    strings.TrimSpace(message.Text),
		SessionKey: sessionKey(chatID),
		Metadata: map[string]string{
			"update_id":  strconv.Itoa(update.UpdateID),
			"message_id": strconv.Itoa(message.MessageID),
		},
	}}

	switch {
	case message.Voice != nil:
		in.msg.Kind = bus.KindVoice
		in.fileID = message.Voice.FileID
	case message.Audio != nil:
		in.msg.Kind = bus.KindAudio
		in.fileID = message.Audio.FileID
	case len(message.Photo) > 0:
		in.msg.Kind = bus.KindImage
		in.msg.Content = strings.TrimSpace(message.Caption)
		in.fileID = message.Photo[len(message.Photo)-1].FileID
	}

	if in.msg.Content == "" && in.fileID == "" {
		return incoming{}, false
	}

	a.log.Info("Received message", "chat_id", chatID, "sender_id", senderID, "kind", in.msg.Kind, "content", logger.Preview(in.msg.Content))
	return in, true
}

// resolveMedia turns the file id into a download URL within fileTimeout. On
// failure MediaURL stays empty and the dialog answers from the text alone.
func (a *Adapter) resolveMedia(ctx context.Context, bot botAPI, in incoming) bus.InboundMessage {
	if in.fileID == "" {
		return in.msg
	}

	timeout := a.fileTimeout
	if timeout <= 0 {
		timeout = defaultFileTimeout
	}
	fileCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url, err := a.fileURL(fileCtx, bot, in.fileID)
	if err != nil {
		a.log.Warn("Failed to resolve telegram file", "chat_id", in.msg.ChatID, "kind", in.msg.Kind, "error", err)
		return in.msg
	}

	msg := in.msg
	msg.MediaURL = url
	return msg
}

// handle runs the handler for one message and sends its reply.
func (a *Adapter) handle(ctx context.Context, bot botAPI, handler bus.MessageHandler, inbound bus.InboundMessage) {
	chatID, err := strconv.ParseInt(inbound.ChatID, 10, 64)
	if err != nil {
		a.log.Error("Invalid telegram chat id", "chat_id", inbound.ChatID, "error", err)
		return
	}

	stopTyping := a.startTypingIndicator(ctx, bot, chatID)
	outbound, err := handler(ctx, inbound)
	stopTyping()
	if err != nil {
		a.log.Error("Failed to process inbound message", "chat_id", inbound.ChatID, "error", err)
		outbound = bus.OutboundMessage{Error: err.Error()}
	}

	a.send(ctx, bot, chatID, outbound)
}

// send delivers the reply text first and then each attachment.
func (a *Adapter) send(ctx context.Context, bot botAPI, chatID int64, outbound bus.OutboundMessage) {
	text := strings.TrimSpace(outbound.Content)
	if text == "" {
		text = strings.TrimSpace(outbound.Error)
	}
	if text == "" && len(outbound.Attachments) == 0 {
		return
	}

	if text != "" {
		a.log.Info("Sending message", "chat_id", chatID, "content", logger.Preview(text))
		if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
			a.log.Error("Failed to send telegram message", "chat_id", chatID, "error", err)
		}
	}

	for _, attachment := range outbound.Attachments {
		if err := a.sendAttachment(ctx, bot, chatID, attachment); err != nil {
			a.log.Error("Failed to send telegram attachment", "chat_id", chatID, "kind", attachment.Kind, "error", err)
		}
	}
}

func (a *Adapter) sendAttachment(ctx context.Context, bot botAPI, chatID int64, attachment bus.Attachment) error {
	file, closeFile, err := inputFile(attachment.URL)
	if err != nil {
		return err
	}
	defer closeFile()

	switch attachment.Kind {
	case bus.AttachmentPhoto:
		_, err = bot.SendPhoto(ctx, tu.Photo(tu.ID(chatID), file).WithCaption(attachment.Caption))
	default:
		_, err = bot.SendDocument(ctx, tu.Document(tu.ID(chatID), file).WithCaption(attachment.Caption))
	}

	return err
}

// inputFile references remote files by URL and uploads local ones.
func inputFile(ref string) (telego.InputFile, func(), error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return telego.InputFile{}, func() {}, errors.New("attachment has no url")
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tu.FileFromURL(ref), func() {}, nil
	}

	f, err := os.Open(ref)
	if err != nil {
		return telego.InputFile{}, func() {}, fmt.Errorf("open attachment: %w", err)
	}

	return tu.File(f), func() { _ = f.Close() }, nil
}

func (a *Adapter) fileURL(ctx context.Context, bot botAPI, fileID string) (string, error) {
	file, err := bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", err
	}
	if file == nil || file.FilePath == "" {
		return "", errors.New("telegram returned no file path")
	}

	return bot.FileDownloadURL(file.FilePath), nil
}

// lang prefers the configured language and otherwise trusts the client's
// interface language only when it is one the bot speaks.
func (a *Adapter) lang(languageCode string) string {
	if lang := strings.TrimSpace(a.cfg.Lang); lang != "" {
		return bus.ParseLang(lang)
	}

	switch strings.ToLower(strings.TrimSpace(languageCode)) {
	case bus.LangKK:
		return bus.LangKK
	case bus.LangRU:
		return bus.LangRU
	default:
		return ""
	}
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// sessionKey maps one Telegram chat to one dialog session.
func sessionKey(chatID string) string {
	return bus.ChannelTelegram + ":" + strings.TrimSpace(chatID)
}

func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot botAPI, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
