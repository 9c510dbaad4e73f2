package googleauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const callbackPath = "/oauth-callback"

const successPage = `<html>
<head><title>Signed in</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
<h1>Signed in</h1>
<p>You can close this tab and return to the chat.</p>
<script>window.close();</script>
</body>
</html>`

type callbackResult struct {
	code string
	err  error
}

// serveCallback answers the redirect on ln and delivers the first result.
func serveCallback(ln net.Listener, expectedState string) (*http.Server, <-chan callbackResult) {
	results := make(chan callbackResult, 1)
	deliver := func(r callbackResult) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if q.Get("state") != expectedState {
			http.Error(w, "Invalid state", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("invalid state received")})
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "Sign-in failed: "+e, http.StatusBadRequest)
			deliver(callbackResult{err: fmt.Errorf("auth failed: %s", e)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No code received", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("no code received")})
			return
		}

		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(successPage))
		deliver(callbackResult{code: code})
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(callbackResult{err: err})
		}
	}()
	return server, results
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		_ = server.Close()
	}
}
