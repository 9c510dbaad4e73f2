package tui

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/PaulBabatuyi/feedchat/internal/feed"
	"github.com/PaulBabatuyi/feedchat/internal/session"
)

func (m Model) View() string {
	switch m.app.Gate.State() {
	case session.Loading:
		return m.place("Loading…")
	case session.SignedOut:
		return m.signInView()
	}
	if m.feed == nil {
		return m.place("Loading…")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.topBar(),
		m.viewport.View(),
		m.statusLine(),
		m.styles.InputFrame.Render(m.input.View()),
	)
}

func (m Model) place(s string) string {
	if m.width == 0 || m.height == 0 {
		return s
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}

func (m Model) signInView() string {
	label := "Sign in with Google"
	if m.signingIn {
		label = "Waiting for Google in your browser…"
	}
	parts := []string{
		m.styles.Title.Render("feedchat"),
		m.styles.Button.Render(label),
	}
	if notice := m.app.Gate.Notice(); notice != "" {
		parts = append(parts, "", m.styles.Notice.Render(notice))
	}
	return m.place(lipgloss.JoinVertical(lipgloss.Center, parts...))
}

func (m Model) topBar() string {
	id, _ := m.app.Gate.Identity()
	left := m.styles.Badge.Render(initial(id)) + m.styles.Email.Render(" "+id.Email)
	right := m.styles.Hint.Render("ctrl+o sign out")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.styles.TopBar.Render(left + m.styles.Hint.Render(strings.Repeat(" ", gap)) + right)
}

func (m Model) statusLine() string {
	switch {
	case m.status == "":
		return ""
	case m.statusErr:
		return m.styles.Error.Render(m.status)
	}
	return m.styles.Status.Render(m.status)
}

// initial stands in for the avatar: the first letter of the name or email.
func initial(id session.Identity) string {
	s := id.Name
	if s == "" {
		s = id.Email
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}

// render lays the window out into the viewport and records where each
// message starts.
func (m *Model) render() {
	id, _ := m.app.Gate.Identity()
	msgs := m.feed.Messages()

	blocks := make([]feed.Block, 0, len(msgs))
	rendered := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		s := m.renderMessage(msg, msg.Sender == id.Email)
		rendered = append(rendered, s)
		blocks = append(blocks, feed.Block{ID: msg.ID, Height: lipgloss.Height(s)})
	}
	m.layout = feed.NewLayout(blocks)
	m.viewport.SetContent(strings.Join(rendered, "\n"))
}

func (m Model) renderMessage(msg feed.Message, own bool) string {
	width := m.viewport.Width
	bubbleWidth := width * 3 / 4
	if bubbleWidth < 10 {
		bubbleWidth = width
	}

	if own {
		bubble := m.styles.Own.MaxWidth(bubbleWidth).Render(wrap(msg.Text, bubbleWidth-2))
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble)
	}
	body := m.styles.Sender.Render(msg.Sender+":") + "\n" + wrap(msg.Text, bubbleWidth-2)
	bubble := m.styles.Other.MaxWidth(bubbleWidth).Render(body)
	return lipgloss.PlaceHorizontal(width, lipgloss.Left, bubble)
}

func wrap(s string, width int) string {
	if width < 1 || lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}
