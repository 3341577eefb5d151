package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"salesbot/pkg/bus"
	"salesbot/pkg/channel/console"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type mode int

const (
	modeInteractive mode = iota
	modeOneShot
)

const (
	metaIntent     = "intent"
	metaFunnelStep = "funnel_step"
	metaLeadID     = "lead_id"
)

const mouseWheelLines = 3

type chatMessage struct {
	role        string
	content     string
	attachments []bus.Attachment
	meta        map[string]string
	errText     string
}

type replyMsg struct {
	reply bus.OutboundMessage
	err   error
}

type bootTickMsg struct{}

type model struct {
	ctx          context.Context
	send         SendFunc
	mode         mode
	oneShotInput string

	theme      theme
	spinner    spinner.Model
	input      textinput.Model
	viewport   viewport.Model
	messages   []chatMessage
	width      int
	height     int
	isReady    bool
	isLoading  bool
	lastErr    string
	booting    bool
	bootStep   int
	followLog  bool
	info       Info
	lastIntent string
	funnelStep string
	leads      int
}

func newModel(ctx context.Context, send SendFunc, runMode mode, text string, info Info) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = placeholderFor(info.Lang)
	in.Focus()
	in.CharLimit = 0

	vp := viewport.New(80, 12)

	return &model{
		ctx:          ctx,
		send:         send,
		mode:         runMode,
		oneShotInput: strings.TrimSpace(text),
		theme:        defaultTheme(),
		spinner:      spin,
		input:        in,
		viewport:     vp,
		width:        100,
		height:       28,
		booting:      runMode == modeInteractive,
		followLog:    true,
		info:         info,
	}
}

func (m *model) Init() tea.Cmd {
	if m.mode == modeOneShot && m.oneShotInput != "" {
		m.messages = append(m.messages, chatMessage{role: "user", content: m.oneShotInput})
		m.isLoading = true
		m.refreshViewport(false)
		return tea.Batch(m.spinner.Tick, sendCmd(m.ctx, m.send, m.oneShotInput))
	}

	return bootTickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case bootTickMsg:
		if !m.booting {
			return m, nil
		}

		m.bootStep++
		if m.bootStep < len(bootScriptLines())+1 {
			return m, bootTickCmd()
		}

		m.booting = false
		if m.mode == modeInteractive {
			return m, textinput.Blink
		}

		return m, nil
	case tea.MouseMsg:
		if m.mode == modeInteractive && !m.booting {
			m.handleViewportMouse(typed)
		}
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.booting {
			return m, nil
		}

		if m.mode == modeInteractive {
			if handled := m.handleViewportKey(typed); handled {
				return m, nil
			}
		}

		if m.mode == modeOneShot {
			return m, nil
		}

		if typed.String() == "enter" {
			if m.isLoading {
				return m, nil
			}

			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if console.IsExitCommand(text) {
				return m, tea.Quit
			}

			m.lastErr = ""
			m.messages = append(m.messages, chatMessage{role: "user", content: text})
			m.input.SetValue("")
			m.isLoading = true
			m.followLog = true
			m.refreshViewport(true)
			return m, tea.Batch(m.spinner.Tick, sendCmd(m.ctx, m.send, text))
		}
	}

	if m.mode == modeInteractive {
		m.input, cmd = m.input.Update(msg)
	}

	switch typed := msg.(type) {
	case spinner.TickMsg:
		if !m.isLoading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case replyMsg:
		m.applyReply(typed)
		m.refreshViewport(false)
		if m.mode == modeOneShot {
			return m, tea.Quit
		}
	}

	return m, cmd
}

// applyReply records a reply and the dialog state it reports.
func (m *model) applyReply(msg replyMsg) {
	m.isLoading = false
	if msg.err != nil {
		m.lastErr = msg.err.Error()
		m.messages = append(m.messages, chatMessage{role: "error", content: msg.err.Error()})
		return
	}

	reply := msg.reply
	m.lastErr = reply.Error
	m.messages = append(m.messages, chatMessage{
		role:        "assistant",
		content:     reply.Content,
		attachments: reply.Attachments,
		meta:        reply.Metadata,
		errText:     reply.Error,
	})

	if intent := reply.Metadata[metaIntent]; intent != "" {
		m.lastIntent = intent
	}
	m.funnelStep = reply.Metadata[metaFunnelStep]
	if reply.Metadata[metaLeadID] != "" {
		m.leads++
	}
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}
	if m.mode == modeOneShot {
		return m.oneShotView()
	}
	if m.booting {
		return m.bootView()
	}

	header := m.theme.header.Width(m.width - 2).Render(m.title())
	meta := m.theme.headerMeta.Render(fmt.Sprintf(
		"tenant:%s · lang:%s · ai:%s · turns:%d · intent:%s · funnel:%s · leads:%d",
		displayOrNA(m.info.TenantID),
		displayOrNA(m.info.Lang),
		onOff(m.info.AI),
		conversationTurns(m.messages),
		displayOrNA(m.lastIntent),
		funnelLabel(m.funnelStep),
		m.leads,
	))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("💡 Enter send  ·  PgUp/PgDn scroll  ·  End jump latest  ·  🛑 Ctrl+C/Esc quit")
	if m.isLoading {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s ⚡ waiting for the bot...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("🚨 last message hit an error - see the log")
	}

	parts := []string{header, meta, line, m.theme.viewport.Width(m.width - 2).Render(m.viewport.View()), status}

	if m.mode == modeInteractive {
		parts = append(parts,
			m.theme.inputLabel.Render("🙋 Customer")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
			m.theme.input.Width(m.width-2).Render(m.input.View()),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *model) title() string {
	name := strings.TrimSpace(m.info.TenantName)
	if name == "" {
		return "🛒 salesbot console"
	}

	return "🛒 salesbot console · " + name
}

func (m *model) resizeComponents() {
	w := m.width - 6
	if w < 50 {
		w = 50
	}
	h := m.height - 10
	if m.mode == modeOneShot {
		h = m.height - 6
	}
	if h < 8 {
		h = 8
	}

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	var sections []string
	for _, item := range m.messages {
		switch item.role {
		case "user":
			sections = append(sections, m.renderCard(
				m.theme.userTitle.Render("▛▚ [ 🙋 ] ▞▜"),
				m.theme.userBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		case "assistant":
			sections = append(sections, m.renderCard(
				m.theme.assistantTitle.Render("▛▚ [ 🛒 ] ▞▜"),
				m.theme.assistantBox.Width(m.viewport.Width).Render(m.assistantBody(item)),
			))
			if len(item.attachments) > 0 {
				sections = append(sections, m.renderCard(
					m.theme.attachmentTitle.Render("▛▚ [ 📎 ] ▞▜"),
					m.theme.attachmentBox.Width(m.viewport.Width).Render(attachmentLines(item.attachments)),
				))
			}
		case "error":
			sections = append(sections, m.renderCard(
				m.theme.errorTitle.Render("▛▚ [ERROR] ▞▜"),
				m.theme.errorBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
			))
		}
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if previousOffset > maxOffset {
		previousOffset = maxOffset
	}
	m.viewport.SetYOffset(previousOffset)
}

func (m *model) assistantBody(item chatMessage) string {
	body := strings.TrimSpace(item.content)
	if line := metaLine(item.meta, item.errText); line != "" {
		body = strings.TrimSpace(body + "\n\n" + m.theme.hint.Render(line))
	}

	return body
}

func (m *model) renderCard(title string, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func (m *model) oneShotView() string {
	contentWidth := max(40, m.width-6)
	parts := []string{m.renderCard(
		m.theme.userTitle.Render("▛▚ [SENT] ▞▜"),
		m.theme.userBox.Width(contentWidth).Render(strings.TrimSpace(m.oneShotInput)),
	)}

	if m.isLoading {
		parts = append(parts, m.theme.statusBusy.Render(fmt.Sprintf("%s ⚡ sending message and waiting for the reply...", m.spinner.View())))
		return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
	}

	var answer *chatMessage
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].role != "user" {
			answer = &m.messages[i]
			break
		}
	}

	if answer == nil || answer.role == "error" {
		parts = append(parts,
			m.renderCard(
				m.theme.errorTitle.Render("▛▚ [ERROR] ▞▜"),
				m.theme.errorBox.Width(contentWidth).Render(strings.TrimSpace(m.lastErr)),
			),
		)
		return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n\n"
	}

	parts = append(parts,
		m.renderCard(
			m.theme.assistantTitle.Render("▛▚ [REPLY] ▞▜"),
			m.theme.assistantBox.Width(contentWidth).Render(m.assistantBody(*answer)),
		),
	)
	if len(answer.attachments) > 0 {
		parts = append(parts, m.renderCard(
			m.theme.attachmentTitle.Render("▛▚ [ 📎 ] ▞▜"),
			m.theme.attachmentBox.Width(contentWidth).Render(attachmentLines(answer.attachments)),
		))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n\n"
}

func (m *model) bootView() string {
	header := m.theme.header.Width(m.width - 2).Render(m.title())
	meta := m.theme.headerMeta.Render("boot sequence")
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	script := bootScriptLines()
	count := min(m.bootStep, len(script))
	visible := make([]string, 0, count+1)
	for i := 0; i < count; i++ {
		visible = append(visible, m.theme.bootLine.Render(script[i]))
	}
	if m.bootStep > len(script) {
		visible = append(visible, m.theme.bootDone.Render("✅ storefront open"))
	}

	body := m.theme.viewport.Width(m.width - 2).Render(strings.Join(visible, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, meta, line, body)
}

func bootTickCmd() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(_ time.Time) tea.Msg {
		return bootTickMsg{}
	})
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

// handleViewportMouse scrolls on wheel events. Scrolling up detaches the view
// from new replies until it is scrolled back to the bottom.
func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.SetYOffset(m.viewport.YOffset - mouseWheelLines)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.SetYOffset(m.viewport.YOffset + mouseWheelLines)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func bootScriptLines() []string {
	return []string{
		"[BOOT] loading catalog",
		"[BOOT] compiling intent rules",
		"[BOOT] warming up the cart",
		"[BOOT] unlocking the shop door",
	}
}

func sendCmd(ctx context.Context, send SendFunc, text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := send(ctx, text)
		return replyMsg{reply: reply, err: err}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}

	return "off"
}

func funnelLabel(step string) string {
	if step == "" || step == "0" {
		return "closed"
	}

	return "step " + step
}

func conversationTurns(messages []chatMessage) int {
	count := 0
	for _, message := range messages {
		if message.role == "user" {
			count++
		}
	}

	return count
}

func metaLine(meta map[string]string, errText string) string {
	var parts []string
	if intent := meta[metaIntent]; intent != "" {
		parts = append(parts, "intent: "+intent)
	}
	if step := meta[metaFunnelStep]; step != "" && step != "0" {
		parts = append(parts, "funnel: "+funnelLabel(step))
	}
	if leadID := meta[metaLeadID]; leadID != "" {
		parts = append(parts, "lead: "+leadID)
	}
	if errText != "" {
		parts = append(parts, "error: "+errText)
	}

	return strings.Join(parts, " · ")
}

func attachmentLines(attachments []bus.Attachment) string {
	lines := make([]string, 0, len(attachments))
	for _, attachment := range attachments {
		lines = append(lines, console.AttachmentLine(attachment))
	}

	return strings.Join(lines, "\n")
}

func placeholderFor(lang string) string {
	if bus.ParseLang(lang) == bus.LangKK {
		return "Сұрағыңызды жазыңыз..."
	}

	return "Напишите сообщение..."
}
