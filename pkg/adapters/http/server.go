// Package http serves playthroughs over a JSON API described by an embedded
// OpenAPI document. Requests are validated against the document before they
// reach a handler.
package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/novella"
	"github.com/aretw0/novella/internal/logging"
	mermaid "github.com/aretw0/novella/internal/presentation/graph"
	"github.com/aretw0/novella/pkg/domain"
	"github.com/aretw0/novella/pkg/ports"
	"github.com/aretw0/novella/pkg/runner"
	"github.com/aretw0/novella/pkg/session"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed openapi.yaml
var rawSpec []byte

// Engine is the engine surface the server drives.
type Engine interface {
	ports.NarrativeEngine
	Versions(storyID string) []string
	Watch(ctx context.Context) (<-chan string, error)
}

// Server is an http.Handler over an Engine and a session manager.
type Server struct {
	Engine   Engine
	Sessions *session.Manager
	Streams  *StreamManager

	logger   *slog.Logger
	gatherer prometheus.Gatherer
	spec     *openapi3.T
	router   routers.Router
	mux      chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewServer loads the embedded API document and mounts every route.
func NewServer(engine Engine, sessions *session.Manager, opts ...Option) (*Server, error) {
	s := &Server{
		Engine:   engine,
		Sessions: sessions,
		logger:   logging.NewNop(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)

	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load api document: %w", err)
	}
	if err := spec.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid api document: %w", err)
	}
	router, err := legacy.NewRouter(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build api router: %w", err)
	}
	s.spec, s.router = spec, router

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(enableCORS)
	r.Use(s.validate)

	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Get("/stories", s.listStories)
	r.Get("/stories/{storyID}", s.getStory)
	r.Get("/stories/{storyID}/graph", s.getStoryGraph)

	r.Get("/playthroughs", s.listPlaythroughs)
	r.Post("/playthroughs", s.startPlaythrough)
	r.Get("/playthroughs/{playthroughID}", s.getPlaythrough)
	r.Delete("/playthroughs/{playthroughID}", s.deletePlaythrough)
	r.Post("/playthroughs/{playthroughID}/resume", s.resumePlaythrough)
	r.Get("/playthroughs/{playthroughID}/choices", s.describeChoices)

	r.Get("/events", s.subscribeEvents)

	s.mux = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// validate checks requests for documented routes against the API document.
// Undocumented routes such as /metrics pass through.
func (s *Server) validate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, params, err := s.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: params,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Novella API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// writeError maps engine and session errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	var invalid *domain.InvalidSelectionError
	switch {
	case errors.Is(err, domain.ErrPlaythroughNotFound),
		errors.Is(err, domain.ErrStoryNotFound),
		errors.Is(err, domain.ErrVersionNotFound),
		errors.Is(err, domain.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalid),
		errors.Is(err, domain.ErrSelectionRequired),
		errors.Is(err, domain.ErrNotAChoice):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPlaythroughEnded),
		errors.Is(err, session.ErrPlaythroughExists):
		return http.StatusConflict
	case errors.Is(err, runner.ErrInputTooLarge),
		errors.Is(err, runner.ErrInvalidUTF8):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "novella-http",
		"version":     novella.Version,
		"api_version": s.spec.Info.Version,
	})
}

type storySummary struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Latest   string   `json:"latest"`
	Versions []string `json:"versions"`
}

func (s *Server) listStories(w http.ResponseWriter, r *http.Request) {
	stories := []storySummary{}
	for _, id := range s.Engine.Stories() {
		store, err := s.Engine.Inspect(id, "")
		if err != nil {
			continue
		}
		stories = append(stories, storySummary{
			ID:       id,
			Title:    store.Title(),
			Latest:   store.Version(),
			Versions: s.Engine.Versions(id),
		})
	}
	s.writeJSON(w, http.StatusOK, stories)
}

type storyDetail struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Version     string              `json:"version"`
	StartNodeID string              `json:"start_node_id"`
	Nodes       int                 `json:"nodes"`
	Edges       int                 `json:"edges"`
	Diagnostics []domain.Diagnostic `json:"diagnostics"`
}

func (s *Server) getStory(w http.ResponseWriter, r *http.Request) {
	store, err := s.Engine.Inspect(chi.URLParam(r, "storyID"), r.URL.Query().Get("version"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	diags := store.Diagnostics()
	if diags == nil {
		diags = []domain.Diagnostic{}
	}
	s.writeJSON(w, http.StatusOK, storyDetail{
		ID:          store.ID(),
		Title:       store.Title(),
		Version:     store.Version(),
		StartNodeID: store.StartNodeID(),
		Nodes:       len(store.Nodes()),
		Edges:       len(store.AllEdges()),
		Diagnostics: diags,
	})
}

func (s *Server) getStoryGraph(w http.ResponseWriter, r *http.Request) {
	version := r.URL.Query().Get("version")
	var overlay *mermaid.GraphOverlay
	if id := r.URL.Query().Get("playthrough"); id != "" {
		state, err := s.Sessions.Load(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		overlay = mermaid.OverlayFromState(state)
		if version == "" {
			version = state.GraphVersion
		}
	}
	store, err := s.Engine.Inspect(chi.URLParam(r, "storyID"), version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(mermaid.GenerateMermaid(store.Document(), overlay)))
}

func (s *Server) listPlaythroughs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"playthroughs": ids})
}

type startRequest struct {
	StoryID       string `json:"story_id"`
	Version       string `json:"version,omitempty"`
	PlaythroughID string `json:"playthrough_id,omitempty"`
	Seed          *int64 `json:"seed,omitempty"`
}

func (s *Server) startPlaythrough(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	step, err := runner.Start(r.Context(), s.Engine, body.StoryID, ports.StartOptions{
		PlaythroughID: body.PlaythroughID,
		Version:       body.Version,
		Seed:          body.Seed,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Sessions.Create(r.Context(), step.State); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("playthrough started", "playthrough", step.State.PlaythroughID, "story", body.StoryID)
	s.writeJSON(w, http.StatusCreated, step)
}

func (s *Server) getPlaythrough(w http.ResponseWriter, r *http.Request) {
	state, err := s.Sessions.Load(r.Context(), chi.URLParam(r, "playthroughID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	step, err := runner.Current(s.Engine, state)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, step)
}

func (s *Server) deletePlaythrough(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "playthroughID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resumeRequest struct {
	OptionID string `json:"option_id"`
}

func (s *Server) resumePlaythrough(w http.ResponseWriter, r *http.Request) {
	var body resumeRequest
	// The body is optional: continuing past a scene needs no option.
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	optionID, err := runner.SanitizeInput(body.OptionID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var step *runner.Step
	_, err = s.Sessions.Update(r.Context(), chi.URLParam(r, "playthroughID"),
		func(ctx context.Context, state *domain.GameState) (*domain.GameState, error) {
			next, err := runner.Advance(ctx, s.Engine, state, optionID)
			if err != nil {
				return nil, err
			}
			step = next
			return next.State, nil
		})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Streams.Broadcast(step.Diff)
	s.writeJSON(w, http.StatusOK, step)
}

type choicesResponse struct {
	NodeID  string                 `json:"node_id"`
	Options []domain.VisibleOption `json:"options"`
}

func (s *Server) describeChoices(w http.ResponseWriter, r *http.Request) {
	state, err := s.Sessions.Load(r.Context(), chi.URLParam(r, "playthroughID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	nodeID := r.URL.Query().Get("node")
	if nodeID == "" {
		nodeID = state.CurrentNodeID
	}
	options, err := s.Engine.DescribeChoices(state, nodeID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if options == nil {
		options = []domain.VisibleOption{}
	}
	s.writeJSON(w, http.StatusOK, choicesResponse{NodeID: nodeID, Options: options})
}

// subscribeEvents streams story reloads, or the diffs of one playthrough when
// the playthrough query parameter is set.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming not supported"})
		return
	}

	playthroughID := r.URL.Query().Get("playthrough")
	var reloads <-chan string
	var diffs <-chan []byte
	if playthroughID == "" {
		events, err := s.Engine.Watch(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		reloads = events
	} else {
		ch, cancel := s.Streams.Subscribe(playthroughID)
		defer cancel()
		diffs = ch
	}
	watch := parseWatch(r.URL.Query().Get("watch"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected", "playthrough", playthroughID)
			return
		case storyID, ok := <-reloads:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: reload\ndata: %s\n\n", storyID)
			flusher.Flush()
		case msg, ok := <-diffs:
			if !ok {
				return
			}
			if watch != nil {
				var diff domain.StateDiff
				if err := json.Unmarshal(msg, &diff); err == nil && !matchesWatch(&diff, watch) {
					continue
				}
			}
			fmt.Fprintf(w, "event: diff\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
