package web

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"

	"blairboard/internal/config"
	appLog "blairboard/internal/log"
)

const (
	requestIDHeader    = "X-Request-ID"
	originSecretHeader = "X-Origin-Secret"
)

// requestLogger tags each request with an ID, logs its outcome and counts
// it by route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// ServeMux records the matched pattern on the request.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.Request(route, rec.status)

		appLog.Debug("http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func basicAuthEnabled(auth *config.BasicAuthConfig) bool {
	if auth == nil {
		return false
	}
	// An empty username or password disables auth.
	return auth.Username != "" && auth.Password != ""
}

// accessGuard enforces the origin secret and HTTP basic auth. Both are read
// from the current config on every request, so a config reload through
// POST /api/refresh changes credentials without a restart. /health stays
// open.
func (s *Server) accessGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		cfg, err := s.store.Get()
		if err != nil {
			appLog.Error("web: config unavailable", err)
			writeError(w, http.StatusInternalServerError, "configuration unavailable")
			return
		}

		// The origin secret proves the request came through the fronting
		// proxy; it is checked before credentials.
		if secret := cfg.Server.OriginSecret; secret != "" && !secureCompare(r.Header.Get(originSecretHeader), secret) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		if auth := cfg.Server.BasicAuth; basicAuthEnabled(auth) {
			u, p, ok := r.BasicAuth()
			if !ok || !secureCompare(u, auth.Username) || !secureCompare(p, auth.Password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="blairboard", charset="UTF-8"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
