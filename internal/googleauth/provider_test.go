package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"github.com/PaulBabatuyi/feedchat/internal/session"
)

type fakeExchanger struct {
	mu       sync.Mutex
	tokens   []string
	forgot   int
	identity session.Identity
	err      error
}

func (f *fakeExchanger) Exchange(_ context.Context, idToken string) (session.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, idToken)
	return f.identity, f.err
}

func (f *fakeExchanger) Forget() {
	f.mu.Lock()
	f.forgot++
	f.mu.Unlock()
}

// tokenServer stands in for Google's token endpoint.
func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("code") != "good-code" || r.Form.Get("code_verifier") == "" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
		case "refresh_token":
			if r.Form.Get("refresh_token") != "cached-refresh" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "fresh-refresh",
			"id_token":      "google-id-token",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(t *testing.T, srv *httptest.Server, ex *fakeExchanger, open func(string) error) (*Provider, string) {
	t.Helper()
	cache := filepath.Join(t.TempDir(), "token.json")
	p := New(Config{
		ClientID:    "client-id",
		TokenCache:  cache,
		Endpoint:    oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		OpenBrowser: open,
		Timeout:     5 * time.Second,
	}, ex, zaptest.NewLogger(t))
	t.Cleanup(p.Close)
	return p, cache
}

// followRedirect plays the browser: it checks the consent URL and calls the
// loopback redirect with code.
func followRedirect(t *testing.T, code string, stateOverride string) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()
		assert.Equal(t, "select_account", q.Get("prompt"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.Equal(t, "offline", q.Get("access_type"))
		assert.Contains(t, q.Get("scope"), "email")

		state := q.Get("state")
		if stateOverride != "" {
			state = stateOverride
		}
		redirect := q.Get("redirect_uri") + "?" + url.Values{"code": {code}, "state": {state}}.Encode()
		go func() {
			resp, err := http.Get(redirect)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func TestProvider_SignIn(t *testing.T) {
	srv := tokenServer(t)
	ex := &fakeExchanger{identity: session.Identity{Email: "alice@example.com", PhotoURL: "https://p/a.png"}}
	p, cache := newProvider(t, srv, ex, followRedirect(t, "good-code", ""))

	require.NoError(t, p.SignIn(context.Background()))

	ev := <-p.Observe()
	require.NotNil(t, ev.Identity)
	assert.Equal(t, "alice@example.com", ev.Identity.Email)
	assert.True(t, p.SignedIn())
	assert.Equal(t, []string{"google-id-token"}, ex.tokens)

	data, err := os.ReadFile(cache)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fresh-refresh")
}

func TestProvider_PopupBlocked(t *testing.T) {
	srv := tokenServer(t)
	p, _ := newProvider(t, srv, &fakeExchanger{}, func(string) error {
		return errors.New("exec: xdg-open not found")
	})

	err := p.SignIn(context.Background())
	require.ErrorIs(t, err, session.ErrPopupBlocked)
	assert.False(t, p.SignedIn())
}

func TestProvider_StateMismatch(t *testing.T) {
	srv := tokenServer(t)
	ex := &fakeExchanger{}
	p, _ := newProvider(t, srv, ex, followRedirect(t, "good-code", "forged"))

	err := p.SignIn(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid state")
	assert.Empty(t, ex.tokens)
}

func TestProvider_GatewayRejects(t *testing.T) {
	srv := tokenServer(t)
	ex := &fakeExchanger{err: errors.New("email not verified")}
	p, cache := newProvider(t, srv, ex, followRedirect(t, "good-code", ""))

	require.Error(t, p.SignIn(context.Background()))
	_, err := os.Stat(cache)
	assert.True(t, os.IsNotExist(err))
}

func TestProvider_RestoreFromCache(t *testing.T) {
	srv := tokenServer(t)
	ex := &fakeExchanger{identity: session.Identity{Email: "bob@example.com"}}
	p, cache := newProvider(t, srv, ex, nil)
	require.NoError(t, os.WriteFile(cache, []byte(`{"refresh_token":"cached-refresh"}`), 0o600))

	p.Restore(context.Background())

	ev := <-p.Observe()
	require.NotNil(t, ev.Identity)
	assert.Equal(t, "bob@example.com", ev.Identity.Email)
}

func TestProvider_RestoreWithoutCacheIsSignedOut(t *testing.T) {
	srv := tokenServer(t)
	p, _ := newProvider(t, srv, &fakeExchanger{}, nil)

	p.Restore(context.Background())
	ev := <-p.Observe()
	assert.Nil(t, ev.Identity)
}

func TestProvider_RestoreWithRevokedToken(t *testing.T) {
	srv := tokenServer(t)
	p, cache := newProvider(t, srv, &fakeExchanger{}, nil)
	require.NoError(t, os.WriteFile(cache, []byte(`{"refresh_token":"revoked"}`), 0o600))

	p.Restore(context.Background())
	ev := <-p.Observe()
	assert.Nil(t, ev.Identity)
}

func TestProvider_RenewKeepsIdentityQuiet(t *testing.T) {
	srv := tokenServer(t)
	ex := &fakeExchanger{identity: session.Identity{Email: "bob@example.com"}}
	p, cache := newProvider(t, srv, ex, nil)
	require.NoError(t, os.WriteFile(cache, []byte(`{"refresh_token":"cached-refresh"}`), 0o600))

	require.NoError(t, p.Renew(context.Background()))
	assert.Equal(t, []string{"google-id-token"}, ex.tokens)
	assert.Zero(t, ex.forgot)
	select {
	case ev := <-p.Observe():
		t.Fatalf("renewal published %+v", ev)
	default:
	}
}

func TestProvider_RenewFailureSignsOut(t *testing.T) {
	srv := tokenServer(t)
	ex := &fakeExchanger{}
	p, cache := newProvider(t, srv, ex, nil)
	require.NoError(t, os.WriteFile(cache, []byte(`{"refresh_token":"revoked"}`), 0o600))

	require.Error(t, p.Renew(context.Background()))
	ev := <-p.Observe()
	assert.Nil(t, ev.Identity)
	assert.Equal(t, 1, ex.forgot)
	assert.False(t, p.SignedIn())
}

func TestProvider_RenewWithoutCache(t *testing.T) {
	srv := tokenServer(t)
	p, _ := newProvider(t, srv, &fakeExchanger{}, nil)

	err := p.Renew(context.Background())
	require.ErrorIs(t, err, ErrNoRefreshToken)
	ev := <-p.Observe()
	assert.Nil(t, ev.Identity)
}

func TestProvider_SignOut(t *testing.T) {
	srv := tokenServer(t)
	ex := &fakeExchanger{}
	p, cache := newProvider(t, srv, ex, nil)
	require.NoError(t, os.WriteFile(cache, []byte(`{"refresh_token":"x"}`), 0o600))

	require.NoError(t, p.SignOut(context.Background()))
	ev := <-p.Observe()
	assert.Nil(t, ev.Identity)
	assert.Equal(t, 1, ex.forgot)
	_, err := os.Stat(cache)
	assert.True(t, os.IsNotExist(err))
}

func TestTokenCache_RoundTripAndDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	c := NewTokenCache(path)

	tok, err := c.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)

	require.NoError(t, c.Save(&oauth2.Token{AccessToken: "secret-access", RefreshToken: "r1"}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "secret-access"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err = c.Load()
	require.NoError(t, err)
	assert.Equal(t, "r1", tok.RefreshToken)

	require.NoError(t, c.Clear())
	require.NoError(t, c.Clear())

	off := NewTokenCache("")
	require.NoError(t, off.Save(&oauth2.Token{RefreshToken: "r"}))
	tok, err = off.Load()
	require.NoError(t, err)
	assert.Nil(t, tok)
}
