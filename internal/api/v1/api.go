// Package v1 implements the native REST API.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vmunix/mediarelay/internal/apperr"
	"github.com/vmunix/mediarelay/internal/job"
	"github.com/vmunix/mediarelay/internal/media"
	"github.com/vmunix/mediarelay/internal/scrape"
	"github.com/vmunix/mediarelay/internal/upload"
)

const maxBodySize = 1 << 20

// Config holds API server configuration.
type Config struct {
	// APIKeys enables key authentication when non-empty.
	APIKeys []string
	// RateLimit is the number of requests a client may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
	Version    string
}

// Server is the v1 API server.
type Server struct {
	deps     ServerDeps
	cfg      Config
	validate *validator.Validate
	limiter  *clientLimiter
	started  time.Time
	log      *slog.Logger
}

// New creates a new v1 API server.
func New(deps ServerDeps, cfg Config, logger *slog.Logger) (*Server, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingDependency, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:     deps,
		cfg:      cfg,
		validate: newValidator(),
		started:  time.Now(),
		log:      logger.With("component", "api"),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newClientLimiter(cfg.RateLimit, cfg.RateWindow)
	}
	return s, nil
}

// ErrMissingDependency is returned when a required dependency is nil.
var ErrMissingDependency = errors.New("missing required dependency")

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Upload modes are matched the same way the job runner parses them.
	if err := v.RegisterValidation("upload_mode", func(fl validator.FieldLevel) bool {
		_, err := upload.ParseMode(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	return v
}

// RegisterRoutes registers API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Extraction
	mux.HandleFunc("POST /api/v1/scrape", s.scrape)
	mux.HandleFunc("POST /api/v1/scrape/quick", s.quick)
	mux.HandleFunc("GET /api/v1/formats", s.formats)

	// Jobs
	mux.HandleFunc("POST /api/v1/extract", s.extract)
	mux.HandleFunc("GET /api/v1/jobs/stats", s.jobStats)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.getJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/cancel", s.cancelJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}/events", s.listJobEvents)

	// Events
	mux.HandleFunc("GET /api/v1/events", s.listEvents)

	// System
	mux.HandleFunc("GET /api/v1/providers", s.providers)
	mux.HandleFunc("GET /health", s.health)
}

// Handler returns the routes wrapped in logging, rate limiting and
// authentication.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	var h http.Handler = mux
	h = s.requireAPIKey(h)
	h = s.rateLimit(h)
	return logRequests(h, s.log)
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{Error: &errorBody{Code: errCode, Message: message}})
}

// writeAppError maps a classified error to its status. Unclassified errors
// are logged and reported without detail.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	body := &errorBody{Code: string(kind), Message: err.Error(), Details: apperr.DetailsOf(err)}
	if kind == apperr.KindInternal {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Message = "internal server error"
	} else if len(body.Details) > 0 {
		body.Message, _, _ = strings.Cut(body.Message, "\n")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: body})
}

// decode reads and validates a JSON request body into v.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return s.check(v)
}

func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	details := make([]apperr.Detail, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		details = append(details, apperr.Detail{Source: fe.Field(), Message: "failed on " + msg})
	}
	return apperr.Aggregate(apperr.KindValidation, "invalid request:", details)
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	strategy, err := media.ParseStrategy(req.Extractor)
	if err != nil {
		s.writeAppError(w, r, apperr.Validation("%v", err))
		return
	}

	res, err := s.deps.Scraper.Scrape(r.Context(), req.URL, media.Options{Strategy: strategy, AudioOnly: req.AudioOnly})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) quick(w http.ResponseWriter, r *http.Request) {
	var req quickRequest
	if err := s.decode(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if req.Provider != "" && len(s.deps.Backends.Select([]string{req.Provider})) == 0 {
		s.writeAppError(w, r, apperr.Validation("unknown provider %q", req.Provider))
		return
	}

	start := time.Now()
	res, err := s.deps.Quick.Quick(r.Context(), job.QuickRequest{
		URL:       req.URL,
		Strategy:  req.Extractor,
		AudioOnly: req.AudioOnly,
		Backend:   req.Provider,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quickResponse{Result: res, Elapsed: fmt.Sprintf("%.2fs", time.Since(start).Seconds())})
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := s.decode(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.checkBackends(req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	id, err := s.deps.Queue.Submit(r.Context(), job.Type, req.JobID, job.Params{
		URL:        req.URL,
		Strategy:   req.Extractor,
		AudioOnly:  req.AudioOnly,
		Backends:   req.Providers,
		UploadMode: req.UploadMode,
		Backend:    req.Provider,
		Format:     req.Format,
		Quality:    req.Quality,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, extractResponse{
		JobID:     id,
		Status:    job.StatusQueued,
		StatusURL: "/api/v1/jobs/" + id,
	})
}

// checkBackends rejects an explicit backend selection that names no
// registered backend. A missing selection means every backend.
func (s *Server) checkBackends(req extractRequest) error {
	mode, err := upload.ParseMode(req.UploadMode)
	if err != nil {
		return apperr.Validation("%v", err)
	}
	if mode == upload.ModeSpecific {
		if req.Provider == "" {
			return apperr.Validation("provider is required for specific upload mode")
		}
		if len(s.deps.Backends.Select([]string{req.Provider})) == 0 {
			return apperr.Validation("unknown provider %q", req.Provider)
		}
		return nil
	}
	if req.Providers != nil && len(s.deps.Backends.Select(req.Providers)) == 0 {
		return apperr.Validation("none of the requested providers are available: %s", strings.Join(req.Providers, ", "))
	}
	return nil
}

func (s *Server) formats(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if err := scrape.ValidateURL(url); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	formats, err := s.deps.Scraper.Formats(r.Context(), url)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if formats == nil {
		formats = []media.Descriptor{}
	}
	writeJSON(w, http.StatusOK, formatsResponse{URL: url, Formats: formats, Count: len(formats)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.deps.Queue.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	outcome, err := s.deps.Queue.Cancel(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{JobID: id, Outcome: outcome})
}

func (s *Server) jobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Queue.Stats(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	writeJSON(w, http.StatusOK, statsResponse{Counts: stats, Total: total})
}

func (s *Server) providers(w http.ResponseWriter, r *http.Request) {
	up := make(map[string]bool)
	for _, name := range s.deps.Backends.Available(r.Context()) {
		up[name] = true
	}
	names := s.deps.Backends.Names()
	resp := providersResponse{Providers: make([]providerStatus, 0, len(names)), Count: len(names)}
	for _, name := range names {
		resp.Providers = append(resp.Providers, providerStatus{Name: name, Available: up[name]})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: s.cfg.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Time:    time.Now().UTC(),
	})
}
