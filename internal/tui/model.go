// Package tui is the terminal surface of the chat client: a sign-in screen
// and a chat screen with a top bar, the scrollable message list and an input
// bar.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/feedchat/internal/app"
	"github.com/PaulBabatuyi/feedchat/internal/feed"
	"github.com/PaulBabatuyi/feedchat/internal/session"
)

const (
	topBarHeight = 1
	statusHeight = 1
	inputHeight  = 3
	inputChrome  = 1
)

// Model is the bubbletea model of the client.
type Model struct {
	app    *app.App
	logger *zap.Logger
	styles Styles

	viewport viewport.Model
	input    textarea.Model
	width    int
	height   int

	signingIn bool

	// Session state, reset on every sign-in.
	gen          int
	ctx          context.Context
	cancel       context.CancelFunc
	feed         *feed.Controller
	sendResults  chan feed.SendResult
	sub          feed.Subscription
	attempts     int
	mounted      bool
	follow       bool
	sending      bool
	loadingOlder bool
	layout       feed.Layout
	status       string
	statusErr    bool
}

// New builds the model around the application context.
func New(a *app.App) Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message (Enter to send, Alt+Enter for a new line)"
	ta.ShowLineNumbers = false
	ta.Prompt = "│ "
	ta.CharLimit = 4096
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	vp := viewport.New(80, 20)
	vp.KeyMap = viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		Up:           key.NewBinding(key.WithKeys("ctrl+up")),
		Down:         key.NewBinding(key.WithKeys("ctrl+down")),
	}

	return Model{
		app:      a,
		logger:   a.Logger.Named("tui"),
		styles:   DefaultStyles(),
		viewport: vp,
		input:    ta,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitAuth(m.app.Gate.Events()),
		restore(m.app),
		textarea.Blink,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case authMsg:
		return m.handleAuth(session.AuthEvent(msg))

	case signInDoneMsg:
		m.signingIn = false
		return m, nil

	case signOutDoneMsg:
		if msg.err != nil {
			m.setError("sign out failed: %v", msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.unmount()
			return m, tea.Quit
		}
		if m.app.Gate.State() != session.SignedIn {
			return m.updateSignIn(msg)
		}
		return m.updateChat(msg)

	case tea.MouseMsg:
		if m.feed == nil || !isWheel(msg) {
			return m, nil
		}
		return m.scroll(msg)
	}

	if m.feed == nil {
		return m, nil
	}
	return m.updateSession(msg)
}

// updateSession handles results that belong to the signed-in session.
func (m Model) updateSession(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case subscribedMsg:
		if msg.gen != m.gen {
			_ = msg.sub.Close()
			return m, nil
		}
		m.sub = msg.sub
		return m, receive(m.gen, msg.sub)

	case snapshotMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.attempts = 0
		m.applySnapshot(msg.msgs)
		return m, tea.Batch(receive(m.gen, m.sub), m.fillGap())

	case subscriptionErrMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.sub = nil
		m.logger.Warn("live subscription lost", zap.Error(msg.err))
		m.setStatus("live updates interrupted, reconnecting…")
		cmd := resubscribeAfter(m.gen, m.attempts)
		m.attempts++
		return m, cmd

	case resubscribeMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m, subscribe(m.ctx, m.gen, m.app.Store, m.feed.PageSize())

	case pageMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		if m.applyPage(msg.page, msg.err) {
			return m, m.fillGap()
		}
		return m, nil

	case sendResultMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.sending = false
		cmd := m.input.Focus()
		if msg.result.Err != nil {
			m.setError("message not sent: %v", msg.result.Err)
			return m, tea.Batch(cmd, waitSend(m.ctx, m.gen, m.sendResults))
		}
		m.input.Reset()
		m.clearStatus()
		m.follow = true
		m.viewport.GotoBottom()
		return m, tea.Batch(cmd, waitSend(m.ctx, m.gen, m.sendResults))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleAuth(ev session.AuthEvent) (tea.Model, tea.Cmd) {
	m.app.Gate.Apply(ev)
	next := waitAuth(m.app.Gate.Events())

	if ev.Identity == nil {
		m.unmount()
		return m, next
	}
	if m.feed != nil {
		return m, next
	}
	return m, tea.Batch(next, m.mount())
}

// mount starts a session: a new controller and the live subscription.
func (m *Model) mount() tea.Cmd {
	m.gen++
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.sendResults = make(chan feed.SendResult, 1)
	results := m.sendResults
	m.feed = m.app.NewFeed(func(r feed.SendResult) {
		select {
		case results <- r:
		default:
		}
	})
	m.mounted = false
	m.attempts = 0
	m.sending = false
	m.loadingOlder = false
	m.layout = feed.Layout{}
	m.clearStatus()
	m.input.Reset()
	m.viewport.SetContent("")

	return tea.Batch(
		m.input.Focus(),
		subscribe(m.ctx, m.gen, m.app.Store, m.feed.PageSize()),
		waitSend(m.ctx, m.gen, m.sendResults),
	)
}

func (m *Model) unmount() {
	if m.feed == nil {
		return
	}
	m.gen++
	m.cancel()
	if m.sub != nil {
		_ = m.sub.Close()
		m.sub = nil
	}
	m.feed.Close()
	m.feed = nil
	m.input.Blur()
}

func (m Model) updateSignIn(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.app.Gate.State() != session.SignedOut {
		return m, nil
	}
	switch msg.String() {
	case "enter", " ":
		if m.signingIn {
			return m, nil
		}
		m.signingIn = true
		return m, signIn(m.app.Gate)
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.feed == nil {
		return m, nil
	}
	switch msg.String() {
	case "ctrl+o":
		return m, signOut(m.app.Gate)
	case "enter":
		return m.submit()
	case "pgup", "pgdown", "ctrl+u", "ctrl+d", "ctrl+up", "ctrl+down":
		return m.scroll(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.feed.SetDraft(m.input.Value())
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	err := m.feed.Submit(m.input.Value())
	switch {
	case errors.Is(err, feed.ErrBlank):
		return m, nil
	case errors.Is(err, feed.ErrBusy):
		m.setStatus("sending…")
		return m, nil
	case err != nil:
		m.setError("message not sent: %v", err)
		return m, nil
	}
	m.sending = true
	m.input.Blur()
	m.setStatus("sending…")
	m.viewport.GotoBottom()
	return m, nil
}

// scroll moves the list and asks for older messages when it reaches the top.
func (m Model) scroll(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.follow = m.viewport.AtBottom()
	if !m.viewport.AtTop() {
		return m, cmd
	}
	return m, tea.Batch(cmd, m.loadOlder())
}

func isWheel(msg tea.MouseMsg) bool {
	switch msg.Button {
	case tea.MouseButtonWheelUp, tea.MouseButtonWheelDown:
		return msg.Action == tea.MouseActionPress
	}
	return false
}

func (m *Model) loadOlder() tea.Cmd {
	cur, ok := m.feed.BeginLoadOlder(true)
	if !ok {
		if m.feed.Exhausted() {
			m.setStatus("beginning of the conversation")
		}
		return nil
	}
	m.loadingOlder = true
	m.setStatus("loading older messages…")
	return fetchOlder(m.ctx, m.gen, m.feed, cur)
}

// fillGap fetches the messages a live snapshot skipped over, one page at a
// time, wherever the list is scrolled.
func (m *Model) fillGap() tea.Cmd {
	cur, ok := m.feed.BeginFillGap()
	if !ok {
		return nil
	}
	m.loadingOlder = true
	return fetchOlder(m.ctx, m.gen, m.feed, cur)
}

func (m *Model) applySnapshot(msgs []feed.Message) {
	anchor, hasAnchor := m.layout.Anchor(m.viewport.YOffset)
	atBottom := m.viewport.AtBottom()

	m.feed.ApplySnapshot(msgs)
	m.render()

	switch {
	case !m.mounted || m.follow || atBottom:
		m.mounted = true
		m.follow = false
		m.viewport.GotoBottom()
	case hasAnchor:
		m.restoreAnchor(anchor)
	}
}

// applyPage merges a fetched page and reports whether it succeeded.
func (m *Model) applyPage(page []feed.Message, err error) bool {
	m.loadingOlder = false
	anchor, hasAnchor := m.layout.Anchor(m.viewport.YOffset)
	following := m.viewport.AtBottom() && !m.viewport.AtTop()

	added, err := m.feed.FinishLoadOlder(page, err)
	if err != nil {
		m.setError("could not load older messages: %v", err)
		return false
	}
	m.clearStatus()
	if added == 0 {
		if m.feed.Exhausted() {
			m.setStatus("beginning of the conversation")
		}
		return true
	}
	m.render()
	switch {
	case following:
		m.viewport.GotoBottom()
	case hasAnchor:
		m.restoreAnchor(anchor)
	}
	return true
}

func (m *Model) restoreAnchor(a feed.Anchor) {
	if y, ok := m.layout.AnchorOffset(a); ok {
		m.viewport.SetYOffset(y)
	}
}

func (m *Model) resize() {
	m.viewport.Width = m.width
	h := m.height - topBarHeight - statusHeight - inputHeight - inputChrome
	if h < 1 {
		h = 1
	}
	m.viewport.Height = h
	m.input.SetWidth(m.width)
	if m.feed != nil {
		anchor, ok := m.layout.Anchor(m.viewport.YOffset)
		m.render()
		if ok {
			m.restoreAnchor(anchor)
		}
	}
}

func (m *Model) setStatus(s string) {
	m.status, m.statusErr = s, false
}

func (m *Model) setError(format string, args ...any) {
	m.status, m.statusErr = fmt.Sprintf(format, args...), true
}

func (m *Model) clearStatus() {
	m.status, m.statusErr = "", false
}
