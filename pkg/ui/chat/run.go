package chat

import (
	"context"
	"fmt"

	"salesbot/pkg/bus"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SendFunc delivers one customer line and returns the bot's reply.
type SendFunc func(ctx context.Context, text string) (bus.OutboundMessage, error)

// Info describes the local session shown in the header.
type Info struct {
	TenantID   string
	TenantName string
	Lang       string
	AI         bool
}

func RunInteractive(ctx context.Context, send SendFunc, info Info) error {
	model := newModel(ctx, send, modeInteractive, "", info)
	program := tea.NewProgram(model, tea.WithMouseCellMotion())
	_, err := program.Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner(info.Lang))
	return nil
}

func RunOneShot(ctx context.Context, send SendFunc, text string, info Info) error {
	model := newModel(ctx, send, modeOneShot, text, info)
	program := tea.NewProgram(model)
	_, err := program.Run()
	return err
}

func renderGoodbyeBanner(lang string) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("22")).
		Padding(1, 2)

	if bus.ParseLang(lang) == bus.LangKK {
		return style.Render("🛒 Сатып алғаныңызға рахмет!")
	}

	return style.Render("🛒 Спасибо за покупки!")
}
