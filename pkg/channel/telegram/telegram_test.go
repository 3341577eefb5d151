package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesbot/pkg/bus"
	"salesbot/pkg/config"
)

type fakeBot struct {
	mu        sync.Mutex
	messages  []*telego.SendMessageParams
	photos    []*telego.SendPhotoParams
	documents []*telego.SendDocumentParams
	files     map[string]string
	fileDelay time.Duration
}

func (b *fakeBot) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, params)
	return &telego.Message{}, nil
}

func (b *fakeBot) SendPhoto(_ context.Context, params *telego.SendPhotoParams) (*telego.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.photos = append(b.photos, params)
	return &telego.Message{}, nil
}

func (b *fakeBot) SendDocument(_ context.Context, params *telego.SendDocumentParams) (*telego.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.documents = append(b.documents, params)
	return &telego.Message{}, nil
}

func (b *fakeBot) SendChatAction(context.Context, *telego.SendChatActionParams) error {
	return nil
}

func (b *fakeBot) GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error) {
	if b.fileDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.fileDelay):
		}
	}
	path, ok := b.files[params.FileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return &telego.File{FileID: params.FileID, FilePath: path}, nil
}

func (b *fakeBot) FileDownloadURL(path string) string {
	return "https://api.telegram.org/file/bot-token/" + path
}

func newTestAdapter(t *testing.T, cfg config.TelegramConfig) *Adapter {
	t.Helper()

	cfg.Token = "test-token"
	adapter, err := NewAdapter(cfg, nil)
	require.NoError(t, err)
	return adapter
}

func textUpdate(text string) telego.Update {
	return telego.Update{
		UpdateID: 7,
		Message: &telego.Message{
			MessageID: 11,
			Chat:      telego.Chat{ID: 42},
			From:      &telego.User{ID: 5, FirstName: "Айгерим", LanguageCode: "kk"},
			Text:      text,
		},
	}
}

func TestNewAdapterRequiresToken(t *testing.T) {
	_, err := NewAdapter(config.TelegramConfig{}, nil)
	require.Error(t, err)
}

func TestNormalizeTextMessage(t *testing.T) {
	adapter := newTestAdapter(t, config.TelegramConfig{Tenant: "stroymart"})

	in, ok := adapter.normalize(textUpdate(" найди цемент "))

	require.True(t, ok)
	inbound := in.msg
	assert.Empty(t, in.fileID)
	assert.Equal(t, "stroymart", inbound.TenantID)
	assert.Equal(t, bus.ChannelTelegram, inbound.Channel)
	assert.Equal(t, "42", inbound.ChatID)
	assert.Equal(t, "5", inbound.SenderID)
	assert.Equal(t, "Айгерим", inbound.SenderName)
	assert.Equal(t, bus.LangKK, inbound.Lang)
	assert.Equal(t, bus.KindText, inbound.Kind)
	assert.Equal(t, "найди цемент", inbound.Content)
	assert.Equal(t, "telegram:42", inbound.SessionKey)
	assert.Equal(t, "11", inbound.Metadata["message_id"])
}

func TestNormalizeConfiguredLanguageWins(t *testing.T) {
	adapter := newTestAdapter(t, config.TelegramConfig{Lang: "ru"})

	in, ok := adapter.normalize(textUpdate("сәлем"))

	require.True(t, ok)
	assert.Equal(t, bus.LangRU, in.msg.Lang)
}

func TestVoiceFileURLIsResolvedLater(t *testing.T) {
	adapter := newTestAdapter(t, config.TelegramConfig{})
	bot := &fakeBot{files: map[string]string{"voice-1": "voice/file_1.oga"}}

	update := textUpdate("")
	update.Message.Voice = &telego.Voice{FileID: "voice-1"}

	in, ok := adapter.normalize(update)
	require.True(t, ok)
	assert.Equal(t, "voice-1", in.fileID)
	assert.Empty(t, in.msg.MediaURL)

	inbound := adapter.resolveMedia(context.Background(), bot, in)
	assert.Equal(t, bus.KindVoice, inbound.Kind)
	assert.Empty(t, inbound.Content)
	assert.Equal(t, "https://api.telegram.org/file/bot-token/voice/file_1.oga", inbound.MediaURL)
}

func TestNormalizePhotoUsesCaptionAndLargestSize(t *testing.T) {
	adapter := newTestAdapter(t, config.TelegramConfig{})
	bot := &fakeBot{files: map[string]string{"big": "photos/big.jpg"}}

	update := textUpdate("")
	update.Message.Caption = "есть такая плитка?"
	update.Message.Photo = []telego.PhotoSize{{FileID: "small"}, {FileID: "big"}}

	in, ok := adapter.normalize(update)
	require.True(t, ok)

	inbound := adapter.resolveMedia(context.Background(), bot, in)
	assert.Equal(t, bus.KindImage, inbound.Kind)
	assert.Equal(t, "есть такая плитка?", inbound.Content)
	assert.Equal(t, "https://api.telegram.org/file/bot-token/photos/big.jpg", inbound.MediaURL)
}

func TestNormalizeSkipsUnusableUpdates(t *testing.T) {
	adapter := newTestAdapter(t, config.TelegramConfig{AllowFrom: []string{"1"}})

	_, ok := adapter.normalize(telego.Update{})
	assert.False(t, ok, "update without message")

	_, ok = adapter.normalize(textUpdate("привет"))
	assert.False(t, ok, "sender outside allow list")

	adapter.allowFrom = nil
	noSender := textUpdate("привет")
	noSender.Message.From = nil
	_, ok = adapter.normalize(noSender)
	assert.False(t, ok, "message without sender")

	_, ok = adapter.normalize(textUpdate("   "))
	assert.False(t, ok, "blank text without media")
}

func TestResolveMediaLeavesURLEmptyOnFailure(t *testing.T) {
	adapter := newTestAdapter(t, config.TelegramConfig{})

	voice := textUpdate("")
	voice.Message.Voice = &telego.Voice{FileID: "missing"}
	in, ok := adapter.normalize(voice)
	require.True(t, ok)

	inbound := adapter.resolveMedia(context.Background(), &fakeBot{}, in)
	assert.Empty(t, inbound.MediaURL)
	assert.Equal(t, bus.KindVoice, inbound.Kind)

	adapter.fileTimeout = 20 * time.Millisecond
	slow := &fakeBot{files: map[string]string{"missing": "voice/late.oga"}, fileDelay: 5 * time.Second}

	start := time.Now()
	inbound = adapter.resolveMedia(context.Background(), slow, in)
	assert.Empty(t, inbound.MediaURL)
	assert.Less(t, time.Since(start), time.Second)
}

func TestServeSlowFileLookupDoesNotStallOtherChats(t *testing.T) {
	adapter := newTestAdapter(t, config.TelegramConfig{})
	bot := &fakeBot{files: map[string]string{"voice-1": "voice/file_1.oga"}, fileDelay: 5 * time.Second}

	handled := make(chan bus.InboundMessage, 4)
	handler := func(_ context.Context, msg bus.InboundMessage) (bus.OutboundMessage, error) {
		handled <- msg
		return bus.OutboundMessage{Content: "ok"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan telego.Update, 2)
	done := make(chan error, 1)
	go func() { done <- adapter.serve(ctx, bot, updates, handler) }()

	voice := textUpdate("")
	voice.Message.Chat.ID = 1
	voice.Message.Voice = &telego.Voice{FileID: "voice-1"}
	updates <- voice
	updates <- textUpdate("найди цемент")

	select {
	case msg := <-handled:
		assert.Equal(t, "42", msg.ChatID)
		assert.Equal(t, "найди цемент", msg.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("text message waited behind another chat's file lookup")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestHandleSendsTextAndAttachments(t *testing.T) {
	adapter := newTestAdapter(t, config.TelegramConfig{})
	bot := &fakeBot{}

	local := filepath.Join(t.TempDir(), "quote-1.txt")
	require.NoError(t, os.WriteFile(local, []byte("КП"), 0o600))

	handler := func(_ context.Context, msg bus.InboundMessage) (bus.OutboundMessage, error) {
		return bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: "Вот что нашлось",
			Attachments: []bus.Attachment{
				{Kind: bus.AttachmentPhoto, URL: "https://cdn.example/cm400.jpg", Caption: "Цемент"},
				{Kind: bus.AttachmentDocument, URL: local, Caption: "КП"},
			},
		}, nil
	}

	adapter.handle(context.Background(), bot, handler, bus.InboundMessage{ChatID: "42", Channel: bus.ChannelTelegram})

	require.Len(t, bot.messages, 1)
	assert.Equal(t, "Вот что нашлось", bot.messages[0].Text)
	assert.Equal(t, int64(42), bot.messages[0].ChatID.ID)

	require.Len(t, bot.photos, 1)
	assert.Equal(t, "https://cdn.example/cm400.jpg", bot.photos[0].Photo.URL)
	assert.Equal(t, "Цемент", bot.photos[0].Caption)

	require.Len(t, bot.documents, 1)
	assert.NotNil(t, bot.documents[0].Document.File)
}

func TestHandleSendsErrorWhenHandlerFails(t *testing.T) {
	adapter := newTestAdapter(t, config.TelegramConfig{})
	bot := &fakeBot{}

	handler := func(context.Context, bus.InboundMessage) (bus.OutboundMessage, error) {
		return bus.OutboundMessage{}, errors.New("handler down")
	}

	adapter.handle(context.Background(), bot, handler, bus.InboundMessage{ChatID: "42"})

	require.Len(t, bot.messages, 1)
	assert.Equal(t, "handler down", bot.messages[0].Text)
}

func TestInputFileRejectsMissingFiles(t *testing.T) {
	_, closeFile, err := inputFile("")
	closeFile()
	assert.Error(t, err)

	_, closeFile, err = inputFile(filepath.Join(t.TempDir(), "missing.txt"))
	closeFile()
	assert.Error(t, err)
}

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	assert.Len(t, allowed, 2)
	assert.Contains(t, allowed, "123")
	assert.Contains(t, allowed, "456")
	assert.Nil(t, allowFromSet([]string{" "}))
}

func TestSenderAllowed(t *testing.T) {
	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}
	assert.True(t, adapter.senderAllowed("1"))
	assert.False(t, adapter.senderAllowed("2"))

	adapter.allowFrom = nil
	assert.True(t, adapter.senderAllowed("any"))
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "telegram:42", sessionKey(" 42 "))
}
