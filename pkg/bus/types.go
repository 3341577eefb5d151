package bus

import (
	"context"
	"strings"
)

// Channel tags.
const (
	ChannelTelegram = "telegram"
	ChannelWhatsApp = "whatsapp"
	ChannelConsole  = "console"
)

// Canonical language tags. Every boundary converts through ParseLang.
const (
	LangRU = "ru"
	LangKK = "kk"
)

// Message kinds.
const (
	KindText  = "text"
	KindVoice = "voice"
	KindAudio = "audio"
	KindImage = "image"
)

// Attachment kinds.
const (
	AttachmentPhoto    = "photo"
	AttachmentDocument = "document"
)

// InboundMessage is the normalized inbound event every channel adapter produces.
//
// Content holds the text for text messages, the transcript for voice/audio
// (once the media stage ran) and the caption for images.
type InboundMessage struct {
	TenantID   string            `json:"tenant_id"`
	Channel    string            `json:"channel"`
	ChatID     string            `json:"chat_id"`
	SenderID   string            `json:"sender_id"`
	SenderName string            `json:"sender_name,omitempty"`
	Lang       string            `json:"lang"`
	Kind       string            `json:"kind"`
	Content    string            `json:"content"`
	MediaURL   string            `json:"media_url,omitempty"`
	SessionKey string            `json:"session_key"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Attachment is a channel-agnostic media reference sent with a reply.
type Attachment struct {
	Kind    string `json:"kind"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// OutboundMessage is the reply computed for one inbound message.
type OutboundMessage struct {
	Channel     string            `json:"channel"`
	ChatID      string            `json:"chat_id"`
	SessionKey  string            `json:"session_key,omitempty"`
	Content     string            `json:"content"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type MessageHandler func(context.Context, InboundMessage) (OutboundMessage, error)

// Valid reports whether the kind/payload invariant holds: text needs text,
// media kinds need either text or a media reference.
func (m InboundMessage) Valid() bool {
	text := strings.TrimSpace(m.Content) != ""
	media := strings.TrimSpace(m.MediaURL) != ""

	switch m.Kind {
	case KindText, "":
		return text
	case KindVoice, KindAudio, KindImage:
		return text || media
	default:
		return false
	}
}

// ConversationKey scopes a chat id to its tenant and channel. Funnel sessions
// and carts are keyed by it.
func (m InboundMessage) ConversationKey() string {
	return strings.TrimSpace(m.TenantID) + ":" + strings.TrimSpace(m.Channel) + ":" + strings.TrimSpace(m.ChatID)
}

// ParseLang maps the language spellings seen across adapters and configs to a
// canonical tag. Unknown values fall back to Russian.
func ParseLang(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "kk", "kz", "kaz", "kk-kz", "kk_kz", "қаз", "қазақша", "kazakh":
		return LangKK
	default:
		return LangRU
	}
}
