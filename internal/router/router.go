package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sclinedc/edc-core/internal/auth"
	"github.com/sclinedc/edc-core/internal/role"
	"github.com/sclinedc/edc-core/internal/site"
	"github.com/sclinedc/edc-core/internal/study"
	"github.com/sclinedc/edc-core/internal/survey"
	"github.com/sclinedc/edc-core/internal/user"
	"github.com/sclinedc/edc-core/pkg/utilities"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs every request at debug level and tags it with a
// generated request id, echoed back in the X-Request-Id header.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-Id")
			if reqID == "" {
				reqID = utilities.NewKSUID()
			}
			w.Header().Set("X-Request-Id", reqID)
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. It is
// intentionally simple and conservative so it works with most setups.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Handlers collects every feature handler the router mounts.
type Handlers struct {
	Auth    *auth.Handler
	Users   *user.Handler
	Roles   *role.Handler
	Sites   *site.Handler
	Studies *study.Handler
	Survey  *survey.Handler
	Issuer  *auth.TokenIssuer
}

// RegisterRoutes mounts the HTTP surface on the standard library's
// http.ServeMux and wraps it with the security and logging middleware.
func RegisterRoutes(h Handlers, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()
	guard := auth.RequireAuth(h.Issuer)

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// authentication, public
	mux.HandleFunc("POST /api/auth/send-otp", h.Auth.SendOTP)
	mux.HandleFunc("POST /api/auth/verify-otp", h.Auth.VerifyOTP)
	mux.HandleFunc("POST /api/auth/resend-otp", h.Auth.ResendOTP)
	mux.HandleFunc("POST /api/auth/check-email", h.Auth.CheckEmail)

	// session, protected
	mux.Handle("GET /api/auth/profile", guard(http.HandlerFunc(h.Auth.Profile)))
	mux.Handle("PUT /api/auth/profile", guard(http.HandlerFunc(h.Auth.UpdateProfile)))
	mux.Handle("POST /api/auth/logout", guard(http.HandlerFunc(h.Auth.Logout)))
	mux.Handle("GET /api/auth/login-history", guard(http.HandlerFunc(h.Auth.LoginHistory)))

	// survey lifecycle
	mux.Handle("GET /api/survey/study/{userId}/{studyId}", guard(http.HandlerFunc(h.Survey.FetchStudy)))
	mux.Handle("POST /api/survey/submit-survey", guard(http.HandlerFunc(h.Survey.SubmitSurvey)))
	mux.Handle("POST /api/survey/save-draft", guard(http.HandlerFunc(h.Survey.SaveDraft)))
	mux.Handle("GET /api/survey/user-responses/{userId}/{studyId}", guard(http.HandlerFunc(h.Survey.UserResponses)))

	// user administration
	mux.Handle("POST /api/users/list", guard(http.HandlerFunc(h.Users.List)))
	mux.Handle("POST /api/users", guard(http.HandlerFunc(h.Users.Create)))
	mux.Handle("POST /api/users/bulk-import", guard(http.HandlerFunc(h.Users.BulkImport)))
	mux.Handle("GET /api/users/by-role/{roleId}", guard(http.HandlerFunc(h.Users.ByRole)))
	mux.Handle("GET /api/users/{userId}", guard(http.HandlerFunc(h.Users.Get)))
	mux.Handle("PUT /api/users/{userId}", guard(http.HandlerFunc(h.Users.Update)))
	mux.Handle("DELETE /api/users/{userId}", guard(http.HandlerFunc(h.Users.Delete)))
	mux.Handle("GET /api/users/{userId}/history", guard(http.HandlerFunc(h.Users.History)))

	// role administration
	mux.Handle("POST /api/roles/list", guard(http.HandlerFunc(h.Roles.List)))
	mux.Handle("POST /api/roles", guard(http.HandlerFunc(h.Roles.Create)))
	mux.Handle("GET /api/roles/dropdown", guard(http.HandlerFunc(h.Roles.Dropdown)))
	mux.Handle("GET /api/roles/{roleId}", guard(http.HandlerFunc(h.Roles.Get)))
	mux.Handle("PUT /api/roles/{roleId}", guard(http.HandlerFunc(h.Roles.Update)))
	mux.Handle("DELETE /api/roles/{roleId}", guard(http.HandlerFunc(h.Roles.Delete)))
	mux.Handle("GET /api/roles/{roleId}/history", guard(http.HandlerFunc(h.Roles.History)))

	// reference dropdowns
	mux.Handle("GET /api/sites/dropdown", guard(http.HandlerFunc(h.Sites.Dropdown)))
	mux.Handle("GET /api/studies/dropdown", guard(http.HandlerFunc(h.Studies.Dropdown)))

	return LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
}
