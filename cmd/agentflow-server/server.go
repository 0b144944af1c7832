package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/agentflow/agentflow/internal/app/dto"
	"github.com/agentflow/agentflow/internal/app/usecases"
	"github.com/agentflow/agentflow/internal/core/channel"
	"github.com/agentflow/agentflow/internal/core/checkpoint"
	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/pkg/agentflow"
	"github.com/agentflow/agentflow/pkg/prebuilt"
	"github.com/agentflow/agentflow/pkg/validation"
)

// RuntimeFactory builds the runtime animating p under name
type RuntimeFactory func(name string, p *prebuilt.Pipeline) (*agentflow.Runtime, error)

// server keeps one runtime per pipeline name, created on first use.
type server struct {
	repo        usecases.PipelineRepository
	defaultName string
	canvas      dto.CanvasQuery
	newRuntime  RuntimeFactory
	logger      *zap.Logger

	mu       sync.Mutex
	runtimes map[string]*agentflow.Runtime
	closed   bool
}

var errServerClosed = errors.New("server is shutting down")

func newServer(repo usecases.PipelineRepository, defaultName string, canvas dto.CanvasQuery, factory RuntimeFactory, logger *zap.Logger) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &server{
		repo:        repo,
		defaultName: defaultName,
		canvas:      canvas,
		newRuntime:  factory,
		logger:      logger,
		runtimes:    make(map[string]*agentflow.Runtime),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	v := validation.NewMiddleware(nil)
	canvasRules := map[string]string{"width": "omitempty,numeric", "height": "omitempty,numeric"}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintln(w, "agentflow server is running. See /healthz, /metrics, /api/frame, /api/events")
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/metrics", promMetricsHandler)
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/api/runs", methods(map[string]http.Handler{
		http.MethodPost: v.ValidateJSON(dto.StartRunRequest{})(http.HandlerFunc(s.handleStart)),
		http.MethodGet: v.ValidateQueryParams(map[string]string{
			"limit":  "omitempty,numeric",
			"offset": "omitempty,numeric",
		})(http.HandlerFunc(s.handleJournal)),
	}))
	mux.Handle("/api/frame", methods(map[string]http.Handler{
		http.MethodGet: v.ValidateQueryParams(canvasRules)(http.HandlerFunc(s.handleFrame)),
	}))
	mux.Handle("/api/layout", methods(map[string]http.Handler{
		http.MethodGet: v.ValidateQueryParams(canvasRules)(http.HandlerFunc(s.handleLayout)),
	}))
	mux.Handle("/api/state", methods(map[string]http.Handler{http.MethodGet: http.HandlerFunc(s.handleState)}))
	mux.Handle("/api/result", methods(map[string]http.Handler{http.MethodGet: http.HandlerFunc(s.handleResult)}))
	mux.Handle("/api/pipelines", methods(map[string]http.Handler{http.MethodGet: http.HandlerFunc(s.handlePipelines)}))
	mux.Handle("/api/events", methods(map[string]http.Handler{http.MethodGet: http.HandlerFunc(s.handleEvents)}))
	return mux
}

func methods(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.Method]
		if !ok {
			allowed := make([]string, 0, len(handlers))
			for m := range handlers {
				allowed = append(allowed, m)
			}
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
			return
		}
		h.ServeHTTP(w, r)
	})
}

// runtime returns the runtime for name, creating it on first use. An empty
// name selects the default pipeline.
func (s *server) runtime(ctx context.Context, name string) (*agentflow.Runtime, error) {
	if name == "" {
		name = s.defaultName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errServerClosed
	}
	if rt, ok := s.runtimes[name]; ok {
		return rt, nil
	}
	p, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	rt, err := s.newRuntime(name, p)
	if err != nil {
		return nil, err
	}
	s.runtimes[name] = rt
	s.logger.Info("runtime created", zap.String("pipeline", name))
	return rt, nil
}

// Close stops every runtime
func (s *server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	var errs []error
	for name, rt := range s.runtimes {
		errs = append(errs, rt.Close())
		delete(s.runtimes, name)
	}
	return errors.Join(errs...)
}

func (s *server) handleStart(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.FromContext[dto.StartRunRequest](r.Context())
	if req == nil {
		req = &dto.StartRunRequest{}
	}
	q := r.URL.Query()
	if v := q.Get("file_selected"); v != "" {
		selected, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("file_selected: %w", err))
			return
		}
		req.FileSelected = req.FileSelected || selected
	}
	if req.Pipeline == "" {
		req.Pipeline = q.Get("pipeline")
	}
	if req.Pipeline == "" {
		req.Pipeline = s.defaultName
	}

	rt, err := s.runtime(r.Context(), req.Pipeline)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	resp, err := rt.Start(*req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.logger.Info("run requested",
		zap.String("pipeline", req.Pipeline),
		zap.String("run_id", resp.RunID),
		zap.Uint64("generation", resp.Generation),
	)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *server) handleFrame(w http.ResponseWriter, r *http.Request) {
	rt, canvas, ok := s.canvasRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rt.Frame(canvas.Width, canvas.Height))
}

func (s *server) handleLayout(w http.ResponseWriter, r *http.Request) {
	rt, canvas, ok := s.canvasRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rt.Layout(canvas.Width, canvas.Height))
}

// canvasRequest resolves the runtime and canvas size of a frame or layout
// request. Missing dimensions fall back to the configured canvas.
func (s *server) canvasRequest(w http.ResponseWriter, r *http.Request) (*agentflow.Runtime, dto.CanvasQuery, bool) {
	q := r.URL.Query()
	canvas := s.canvas
	for key, dst := range map[string]*float64{"width": &canvas.Width, "height": &canvas.Height} {
		if v := q.Get(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("%s: %w", key, err))
				return nil, canvas, false
			}
			*dst = f
		}
	}
	if err := validation.ValidateStruct(&canvas); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", dto.ErrInvalidCanvas, err))
		return nil, canvas, false
	}
	rt, err := s.runtime(r.Context(), q.Get("pipeline"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, canvas, false
	}
	return rt, canvas, true
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	rt, err := s.runtime(r.Context(), r.URL.Query().Get("pipeline"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rt.Snapshot())
}

func (s *server) handleResult(w http.ResponseWriter, r *http.Request) {
	rt, err := s.runtime(r.Context(), r.URL.Query().Get("pipeline"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if rt.Snapshot().Generation == 0 {
		writeError(w, http.StatusNotFound, dto.ErrNoRun)
		return
	}
	result, ok := rt.Result()
	if !ok {
		writeError(w, http.StatusConflict, dto.ErrResultNotReady)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rt, err := s.runtime(r.Context(), q.Get("pipeline"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	filter := checkpoint.Filter{
		PipelineID: rt.Graph().ID,
		RunID:      q.Get("run_id"),
		Phase:      q.Get("phase"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if tags := q.Get("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}
	views, err := rt.Journal(r.Context(), filter)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *server) handlePipelines(w http.ResponseWriter, r *http.Request) {
	names, err := s.repo.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"default":   s.defaultName,
		"pipelines": names,
	})
}

// handleEvents streams sequencer events as Server-Sent Events until the
// client goes away or the runtime closes.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	rt, err := s.runtime(r.Context(), r.URL.Query().Get("pipeline"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	sub, err := rt.Subscribe()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("encode event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "id: %d-%d\nevent: %s\ndata: %s\n\n", ev.Generation, ev.At.UnixNano(), ev.Type, data)
			flusher.Flush()
		}
	}
}

func statusFor(err error) int {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, agentflow.ErrPipelineMismatch),
		errors.Is(err, checkpoint.ErrInvalidLimit),
		errors.Is(err, checkpoint.ErrInvalidOffset):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrGraphNotFound):
		return http.StatusNotFound
	case errors.Is(err, dto.ErrFileNotSelected):
		return http.StatusConflict
	case errors.Is(err, errServerClosed),
		errors.Is(err, channel.ErrHubClosed),
		errors.Is(err, channel.ErrTooManyClients):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error()})
}
