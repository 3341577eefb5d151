package cmd

import (
	"testing"

	"salesbot/pkg/bus"
	"salesbot/pkg/config"
)

func TestResolveChatText(t *testing.T) {
	original := chatText
	t.Cleanup(func() {
		chatText = original
	})

	chatText = " из флага "
	if got := resolveChatText([]string{"из", "аргументов"}); got != "из флага" {
		t.Fatalf("resolveChatText with flag = %q, want %q", got, "из флага")
	}

	chatText = ""
	if got := resolveChatText([]string{"найди", "цемент"}); got != "найди цемент" {
		t.Fatalf("resolveChatText with args = %q, want %q", got, "найди цемент")
	}

	if got := resolveChatText(nil); got != "" {
		t.Fatalf("resolveChatText without input = %q, want empty", got)
	}
}

func TestSessionLang(t *testing.T) {
	t.Parallel()

	tenant := config.TenantConfig{ID: "stroymart", Lang: "kk"}
	tests := []struct {
		flag string
		want string
	}{
		{flag: "", want: bus.LangKK},
		{flag: "ru", want: bus.LangRU},
		{flag: "KZ", want: bus.LangKK},
	}

	for _, tt := range tests {
		if got := sessionLang(tt.flag, tenant); got != tt.want {
			t.Fatalf("sessionLang(%q) = %q, want %q", tt.flag, got, tt.want)
		}
	}
}
