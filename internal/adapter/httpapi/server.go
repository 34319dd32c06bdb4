package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/simaogato/pricesnap/internal/logging"
	"github.com/simaogato/pricesnap/internal/usecase/query"
)

const requestTimeout = 10 * time.Second

// Server exposes the read-only report and snapshot queries as JSON
type Server struct {
	Router  *chi.Mux
	Queries *query.QueryService
	Token   string // empty disables authentication
	Logger  logrus.FieldLogger
}

// NewServer creates the API server and registers its routes
func NewServer(queries *query.QueryService, token string, logger logrus.FieldLogger) *Server {
	server := &Server{
		Router:  chi.NewRouter(),
		Queries: queries,
		Token:   token,
		Logger:  logger,
	}
	server.InitRoutes()
	return server
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// InitRoutes registers the middleware and the read-only routes
func (s *Server) InitRoutes() {
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(s.requestLogger)

	s.Router.Get("/healthz", Healthcheck)

	s.Router.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/reports/{date}", s.GetReport)
		r.Get("/snapshots/{provider_id}", s.ListSnapshots)
		r.Get("/series", s.GetSeries)
	})
}

// NewHTTPServer wraps server in an http.Server listening on addr
func NewHTTPServer(addr string, server *Server) *http.Server {
	return &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		Handler:           server,
	}
}

// Healthcheck serves GET /healthz
func Healthcheck(w http.ResponseWriter, r *http.Request) {
	respond(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// GetReport serves GET /v1/reports/{date}?account=
func (s *Server) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, err := s.Queries.GetReport(ctx, chi.URLParam(r, "date"), r.URL.Query().Get("account"))
	if err != nil {
		WriteError(w, err)
		return
	}
	respond(w, query.ReportDocument(view), http.StatusOK)
}

// ListSnapshots serves GET /v1/snapshots/{provider_id}?from=&to=
func (s *Server) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	providerID := chi.URLParam(r, "provider_id")
	snapshots, err := s.Queries.ListSnapshots(ctx, providerID, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		WriteError(w, err)
		return
	}
	respond(w, query.SnapshotsDocument(providerID, snapshots), http.StatusOK)
}

// GetSeries serves GET /v1/series?from=&to=&account=
func (s *Server) GetSeries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	params := r.URL.Query()
	series, err := s.Queries.GetSeries(ctx, params.Get("from"), params.Get("to"), params.Get("account"))
	if err != nil {
		WriteError(w, err)
		return
	}
	respond(w, query.SeriesDocument(series), http.StatusOK)
}

// authenticate accepts "Authorization: Bearer <token>" or the bare token
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			WriteError(w, NewHTTPError(http.StatusUnauthorized, "missing authorization header"))
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
			WriteError(w, NewHTTPError(http.StatusUnauthorized, "invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		entry := s.Logger.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path})

		next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), entry)))

		entry.WithFields(logrus.Fields{
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("http request served")
	})
}
