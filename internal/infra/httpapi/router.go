// Package httpapi exposes the operational endpoints and the signed-in user API.
package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"perm_tracker/internal/app"
	"perm_tracker/internal/infra/identity"
)

// UserIDHeader carries the caller's user ID, set by the upstream auth gateway.
const UserIDHeader = "X-User-ID"

// JobRunner runs a batch job on demand.
type JobRunner interface {
	RunJob(ctx context.Context, name app.JobName) (app.JobReport, error)
}

// Deps are the collaborators mounted on the router. Nil services leave their
// routes unmounted.
type Deps struct {
	Jobs        JobRunner
	Accounts    *app.AccountService
	Cases       *app.CaseService
	Inbox       *app.InboxService
	Preferences *app.PreferencesService
	Gatherer    prometheus.Gatherer
	JobsToken   string
	Logger      *logrus.Entry
}

type handler struct {
	Deps
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	h := &handler{Deps: d}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/internal", func(r chi.Router) {
		r.Use(h.requireJobsToken)
		if d.Jobs != nil {
			r.Post("/jobs/{job}", h.runJob)
		}
		if d.Accounts != nil {
			r.Post("/accounts/{userID}/purge", h.purgeAccount)
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate)
		h.mountAPI(r)
	})
	return r
}

func (h *handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.Logger.WithFields(logrus.Fields{
			"request_id":  middleware.GetReqID(r.Context()),
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("HTTP request")
	})
}

// requireJobsToken guards the internal endpoints with a static bearer token.
// An empty token disables them.
func (h *handler) requireJobsToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.JobsToken == "" {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "internal endpoints are disabled"})
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.JobsToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate places the gateway-supplied user on the context. Requests
// without one proceed unauthenticated.
func authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
			r = r.WithContext(identity.WithUser(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

type jobResponse struct {
	Report app.JobReport `json:"report"`
	Error  string        `json:"error,omitempty"`
}

func (h *handler) runJob(w http.ResponseWriter, r *http.Request) {
	name := app.JobName(chi.URLParam(r, "job"))
	log := h.Logger.WithField("job", name)

	report, err := h.Jobs.RunJob(r.Context(), name)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.WithError(err).Error("Triggered job failed")
		}
		writeJSON(w, status, jobResponse{Report: report, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{Report: report})
}

func (h *handler) purgeAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	res, err := h.Accounts.PermanentlyDeleteAccount(r.Context(), userID)
	if err != nil {
		writeError(w, h.Logger.WithField("user_id", userID), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
