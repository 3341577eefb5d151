package chat

import "github.com/charmbracelet/lipgloss"

// Storefront palette (xterm-256).
const (
	colorShelf   = lipgloss.Color("22")
	colorLabel   = lipgloss.Color("230")
	colorReceipt = lipgloss.Color("223")
	colorAisle   = lipgloss.Color("29")
	colorCrate   = lipgloss.Color("180")
	colorOK      = lipgloss.Color("114")
	colorBuyer   = lipgloss.Color("214")
	colorBot     = lipgloss.Color("44")
	colorDoc     = lipgloss.Color("109")
	colorAlert   = lipgloss.Color("203")
	colorMuted   = lipgloss.Color("244")
	colorInk     = lipgloss.Color("16")
)

// theme groups reusable styles for chat UI regions.
type theme struct {
	header, headerMeta, divider lipgloss.Style
	bootLine, bootDone          lipgloss.Style

	// Transcript cards: a bordered body under a colored badge.
	userBox, userTitle             lipgloss.Style
	assistantBox, assistantTitle   lipgloss.Style
	attachmentBox, attachmentTitle lipgloss.Style
	errorBox, errorTitle           lipgloss.Style

	status, statusBusy, statusErr lipgloss.Style
	hint, inputLabel, input       lipgloss.Style
	viewport                      lipgloss.Style
}

func card(border lipgloss.Border, accent lipgloss.Color, bg string) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(accent).
		Background(lipgloss.Color(bg)).
		Padding(0, 1)
}

func badge(fg lipgloss.Color, bg lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(fg).Background(bg).Padding(0, 1)
}

func tone(fg lipgloss.Color, bold bool) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(fg).Bold(bold)
}

func defaultTheme() theme {
	return theme{
		header:     badge(colorLabel, colorShelf),
		headerMeta: tone(colorReceipt, false),
		divider:    tone(colorAisle, false),
		bootLine:   tone(colorCrate, false),
		bootDone:   tone(colorOK, true),

		userBox:         card(lipgloss.DoubleBorder(), colorBuyer, "235"),
		userTitle:       badge(colorInk, colorBuyer),
		assistantBox:    card(lipgloss.DoubleBorder(), colorBot, "234"),
		assistantTitle:  badge(colorInk, colorBot),
		attachmentBox:   card(lipgloss.RoundedBorder(), colorDoc, "236").Foreground(lipgloss.Color("252")),
		attachmentTitle: badge(colorInk, colorDoc),
		errorBox:        card(lipgloss.DoubleBorder(), colorAlert, "52").Foreground(colorAlert),
		errorTitle:      badge(lipgloss.Color("231"), lipgloss.Color("160")),

		status:     tone(lipgloss.Color("250"), true),
		statusBusy: tone(lipgloss.Color("222"), true),
		statusErr:  tone(colorAlert, true),
		hint:       tone(colorMuted, false),
		inputLabel: tone(lipgloss.Color("229"), true),
		input:      card(lipgloss.RoundedBorder(), lipgloss.Color("173"), "236"),
		viewport:   card(lipgloss.ThickBorder(), lipgloss.Color("130"), "233"),
	}
}
