package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/DeafMist/news-credibility/internal/config"
	"github.com/DeafMist/news-credibility/internal/elasticsearch"
	"github.com/DeafMist/news-credibility/internal/extract"
	"github.com/DeafMist/news-credibility/internal/logger"
	"github.com/DeafMist/news-credibility/internal/models"
	"github.com/DeafMist/news-credibility/internal/pipeline"
	"github.com/DeafMist/news-credibility/internal/retry"
)

const maxRequestBytes = 1 << 20

type predictor interface {
	Predict(ctx context.Context, in models.Input) (*pipeline.Result, error)
	Ready() bool
	ModelVersion() string
}

type verdictStore interface {
	SearchVerdicts(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Stats(ctx context.Context) ([]elasticsearch.LabelStats, error)
	Health(ctx context.Context) error
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	extractor := extract.New(extract.Options{
		Timeout:       cfg.ExtractTimeout,
		MaxBytes:      cfg.ExtractMaxBytes,
		UserAgent:     cfg.UserAgent,
		RespectRobots: cfg.RespectRobots,
	}, log)
	pipe := pipeline.New(extractor, cfg.MinWords, log)

	// Serve /health and /ready while the artifacts are still missing.
	go func() {
		policy := retry.Policy{Initial: time.Second, Max: cfg.ArtifactRetryMax}
		if err := pipe.LoadFile(ctx, cfg.ManifestPath, cfg.ExpectedFeatures, policy); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("load artifacts", slog.String("manifest", cfg.ManifestPath), slog.Any("err", err))
		}
	}()

	var store verdictStore
	if cfg.ElasticsearchAddr != "" {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		store = esClient
	} else {
		log.Info("ELASTICSEARCH_ADDR not set, verdict search disabled")
	}

	srv := newServer(log, cfg, pipe, store)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.PredictTimeout + 5*time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log   *slog.Logger
	cfg   *config.API
	pipe  predictor
	store verdictStore
}

func newServer(log *slog.Logger, cfg *config.API, pipe predictor, store verdictStore) *server {
	return &server{log: log, cfg: cfg, pipe: pipe, store: store}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Post("/predict", s.handlePredict)
	if s.store != nil {
		r.Get("/verdicts", s.handleSearch)
		r.Get("/verdicts/stats", s.handleStats)
	}
	return r
}

type predictRequest struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type predictResponse struct {
	Status       string  `json:"status"`
	Prediction   string  `json:"prediction"`
	Confidence   float64 `json:"confidence_score"`
	InputSource  string  `json:"input_source"`
	TextLength   int     `json:"text_length"`
	Message      string  `json:"message"`
	Title        string  `json:"title,omitempty"`
	WordCount    int     `json:"word_count"`
	ModelVersion string  `json:"model_version"`
}

type errorResponse struct {
	Status    string `json:"status"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

var kindStatus = map[pipeline.Kind]int{
	pipeline.KindInvalidInput: http.StatusBadRequest,
	pipeline.KindFetchFailed:  http.StatusBadGateway,
	pipeline.KindParseFailed:  http.StatusUnprocessableEntity,
	pipeline.KindTooShort:     http.StatusUnprocessableEntity,
	pipeline.KindArtifactLoad: http.StatusServiceUnavailable,
	pipeline.KindInternal:     http.StatusInternalServerError,
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.pipe.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Status:    "error",
			ErrorType: pipeline.KindArtifactLoad.String(),
			Message:   "The model is not loaded yet; try again later.",
		})
		return
	}
	payload := map[string]string{
		"status":        "ready",
		"model_version": s.pipe.ModelVersion(),
	}
	// Predictions do not depend on Elasticsearch, so a sick cluster only
	// degrades verdict search.
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		payload["verdict_search"] = "ok"
		if err := s.store.Health(ctx); err != nil {
			s.log.Warn("elasticsearch health", slog.Any("err", err))
			payload["verdict_search"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, &pipeline.Error{
			Kind:    pipeline.KindInvalidInput,
			Message: "Request body must be a JSON object with a text or url field.",
			Err:     err,
		})
		return
	}

	in, err := pipeline.NewInput(req.Text, req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PredictTimeout)
	defer cancel()

	res, err := s.pipe.Predict(ctx, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, predictResponse{
		Status:       "success",
		Prediction:   res.Prediction,
		Confidence:   res.Confidence,
		InputSource:  string(res.Source),
		TextLength:   res.TextLength,
		Message:      res.Message,
		Title:        res.Title,
		WordCount:    res.WordCount,
		ModelVersion: res.ModelVersion,
	})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:       strings.TrimSpace(q.Get("q")),
		Label:       strings.ToLower(strings.TrimSpace(q.Get("label"))),
		Source:      strings.TrimSpace(q.Get("source")),
		InputSource: strings.TrimSpace(q.Get("input_source")),
		From:        clampInt(q.Get("from"), 0, 10_000),
		Size:        clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:        strings.TrimSpace(q.Get("sort")),
		Start:       parseTime(q.Get("start")),
		End:         parseTime(q.Get("end")),
	}

	result, err := s.store.SearchVerdicts(ctx, params)
	if err != nil {
		s.log.Error("search verdicts", slog.String("request_id", middleware.GetReqID(r.Context())), slog.Any("err", err))
		s.writeError(w, r, &pipeline.Error{Kind: pipeline.KindInternal, Message: "Verdict search is unavailable."})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.log.Error("verdict stats", slog.String("request_id", middleware.GetReqID(r.Context())), slog.Any("err", err))
		s.writeError(w, r, &pipeline.Error{Kind: pipeline.KindInternal, Message: "Verdict statistics are unavailable."})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"labels": stats})
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := pipeline.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	msg := "Internal error."
	var pe *pipeline.Error
	if errors.As(err, &pe) && pe.Message != "" {
		msg = pe.Message
	}

	attrs := []any{
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("error_type", kind.String()),
		slog.Int("status", status),
		slog.Any("err", err),
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", attrs...)
	} else {
		s.log.Info("request rejected", attrs...)
	}

	writeJSON(w, status, errorResponse{Status: "error", ErrorType: kind.String(), Message: msg})
}

// requestID propagates X-Request-ID, minting a UUID when the caller sent none.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(middleware.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	if ts, err := dateparse.ParseIn(raw, time.UTC); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
