package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/msztolcman/sendria/internal/apperr"
	"github.com/msztolcman/sendria/smtp"
)

// envelope is the response shape every JSON endpoint returns, matching
// the original {"code": "...", ...} wrapper.
type envelope struct {
	Code    string      `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Code: "OK", Data: data})
}

// writeError maps any error into an HTTP status and a JSON body whose
// "code" is the apperr.Kind (or a generic 500) instead of inspecting
// error text, replacing the original's exception-class-name reflection.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Kind.HTTPStatus(), envelope{Code: string(appErr.Kind), Message: appErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, envelope{Code: "INTERNAL_ERROR", Message: err.Error()})
}

func notFound(w http.ResponseWriter) {
	writeError(w, apperr.NotFound("message not found"))
}

// withDefaultHeaders stamps every response with a Server header carrying
// the product identity, matching the teacher's default-headers step.
func withDefaultHeaders(ident string, next http.Handler) http.Handler {
	if ident == "" {
		ident = "sendria"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", ident)
		next.ServeHTTP(w, r)
	})
}

// BasicAuth gates every request behind an htpasswd-backed check, reusing
// the SMTP receiver's credential format so operators configure one
// htpasswd file for both surfaces.
type BasicAuth struct {
	Realm string

	mu       sync.RWMutex
	htpasswd *smtp.Htpasswd
}

// NewBasicAuth builds a BasicAuth backed by htpasswd.
func NewBasicAuth(htpasswd *smtp.Htpasswd, realm string) *BasicAuth {
	return &BasicAuth{htpasswd: htpasswd, Realm: realm}
}

// SetHtpasswd swaps the credential table, letting a SIGHUP-driven config
// reload pick up an edited auth file without restarting the listener.
func (a *BasicAuth) SetHtpasswd(htpasswd *smtp.Htpasswd) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.htpasswd = htpasswd
}

// required reports whether a credential table is currently loaded. A nil
// table (set via SetHtpasswd(nil) on reload) disables the check entirely,
// mirroring how a nil smtp.Config.Auth disables SMTP AUTH.
func (a *BasicAuth) required() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.htpasswd != nil
}

func (a *BasicAuth) check(user, pass string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.htpasswd.Check(user, pass)
}

// Wrap returns next guarded by HTTP Basic auth.
func (a *BasicAuth) Wrap(next http.Handler) http.Handler {
	realm := a.Realm
	if realm == "" {
		realm = "sendria"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.required() {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || !a.check(user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
			writeError(w, apperr.New(apperr.KindUnauthorized, "authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
