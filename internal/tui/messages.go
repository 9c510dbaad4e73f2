package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/PaulBabatuyi/feedchat/internal/app"
	"github.com/PaulBabatuyi/feedchat/internal/feed"
	"github.com/PaulBabatuyi/feedchat/internal/session"
)

type (
	authMsg       session.AuthEvent
	signInDoneMsg struct{ err error }
	signOutDoneMsg struct{ err error }

	// Messages below carry the session generation they were issued for so
	// results that arrive after a sign-out are dropped.
	subscribedMsg struct {
		gen int
		sub feed.Subscription
	}
	snapshotMsg struct {
		gen  int
		msgs []feed.Message
	}
	subscriptionErrMsg struct {
		gen int
		err error
	}
	resubscribeMsg struct{ gen int }
	pageMsg        struct {
		gen  int
		page []feed.Message
		err  error
	}
	sendResultMsg struct {
		gen    int
		result feed.SendResult
	}
)

const maxBackoff = 30 * time.Second

func waitAuth(events <-chan session.AuthEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return authMsg(ev)
	}
}

func restore(a *app.App) tea.Cmd {
	return func() tea.Msg {
		a.Restore(context.Background())
		return nil
	}
}

func signIn(g *session.Gate) tea.Cmd {
	return func() tea.Msg {
		return signInDoneMsg{err: g.SignIn(context.Background())}
	}
}

func signOut(g *session.Gate) tea.Cmd {
	return func() tea.Msg {
		return signOutDoneMsg{err: g.SignOut(context.Background())}
	}
}

func subscribe(ctx context.Context, gen int, store feed.Store, limit int) tea.Cmd {
	return func() tea.Msg {
		sub, err := store.Subscribe(ctx, limit)
		if err != nil {
			return subscriptionErrMsg{gen: gen, err: err}
		}
		return subscribedMsg{gen: gen, sub: sub}
	}
}

func receive(gen int, sub feed.Subscription) tea.Cmd {
	return func() tea.Msg {
		msgs, err := sub.Recv()
		if err != nil {
			_ = sub.Close()
			return subscriptionErrMsg{gen: gen, err: err}
		}
		return snapshotMsg{gen: gen, msgs: msgs}
	}
}

func resubscribeAfter(gen, attempt int) tea.Cmd {
	delay := time.Second << min(attempt, 5)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return resubscribeMsg{gen: gen}
	})
}

func fetchOlder(ctx context.Context, gen int, ctrl *feed.Controller, cur feed.Cursor) tea.Cmd {
	return func() tea.Msg {
		page, err := ctrl.FetchOlder(ctx, cur)
		return pageMsg{gen: gen, page: page, err: err}
	}
}

func waitSend(ctx context.Context, gen int, results <-chan feed.SendResult) tea.Cmd {
	return func() tea.Msg {
		select {
		case r := <-results:
			return sendResultMsg{gen: gen, result: r}
		case <-ctx.Done():
			return nil
		}
	}
}
