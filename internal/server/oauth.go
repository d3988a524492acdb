package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/desertthunder/playsync/internal/resilience"
	"github.com/desertthunder/playsync/internal/shared"
	"golang.org/x/oauth2"
)

// Exchanger trades an authorization code for a token.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// OAuthResult is the outcome of one authorization callback. Exactly one field is set.
type OAuthResult struct {
	Token *oauth2.Token
	Err   *resilience.Record
}

// OAuthHandler handles the redirect of an OAuth2 authorization code flow.
//
// Only the first callback is processed. Failures are normalized with the registry so the caller can resolve
// a recovery for them like any other failure.
type OAuthHandler struct {
	service   string
	exchanger Exchanger
	state     string
	registry  *resilience.Registry

	results chan OAuthResult
	once    sync.Once
	mu      sync.Mutex
	handled bool
}

var _ Handler = (*OAuthHandler)(nil)

// NewOAuthHandler creates a handler for service's callback. state must be unguessable, e.g. [shared.GenerateID].
func NewOAuthHandler(service string, exchanger Exchanger, state string, registry *resilience.Registry) *OAuthHandler {
	return &OAuthHandler{
		service:   service,
		exchanger: exchanger,
		state:     state,
		registry:  registry,
		results:   make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

// ServeHTTP validates the state parameter, exchanges the code and delivers the result on [OAuthHandler.Result].
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.handled {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusConflict)
		return
	}
	h.handled = true
	h.mu.Unlock()

	q := r.URL.Query()

	if q.Get("state") != h.state {
		h.fail(w, fmt.Errorf("%w: callback state mismatch", shared.ErrInvalidInput))
		return
	}

	code := q.Get("code")
	if code == "" {
		reason := q.Get("error")
		if reason == "" {
			reason = "missing_code"
		}
		msg := q.Get("error_description")
		if msg == "" {
			msg = "authorization was not granted: " + reason
		}
		h.fail(w, &resilience.HTTPError{Service: h.service, Status: http.StatusUnauthorized, Code: reason, Message: msg})
		return
	}

	token, err := h.exchanger.Exchange(r.Context(), code)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.Send(OAuthResult{Token: token})
	render(w, http.StatusOK, page{Title: "Authorization Successful", Message: "You can close this window and return to the terminal.", OK: true})
}

func (h *OAuthHandler) fail(w http.ResponseWriter, err error) {
	rec := h.registry.Normalize(err)
	h.Send(OAuthResult{Err: rec})
	render(w, statusFor(rec), page{Title: "Authorization Failed", Message: rec.UserMessage()})
}

func statusFor(rec *resilience.Record) int {
	switch rec.Kind() {
	case resilience.KindValidation:
		return http.StatusBadRequest
	case resilience.KindAuthentication:
		return http.StatusUnauthorized
	case resilience.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

// Send delivers result unless a result was already sent.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result receives exactly one result and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}

type page struct {
	Title   string
	Message string
	OK      bool
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { margin: 0 0 1rem 0; }
        .ok { color: #1DB954; }
        .err { color: #E22134; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1 class="{{if .OK}}ok{{else}}err{{end}}">{{if .OK}}✓{{else}}✗{{end}} {{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

func render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTmpl.Execute(w, p)
}
