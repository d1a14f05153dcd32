// Package api exposes duplicate detection, fingerprinting, and product
// matching over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/affiliate"
	"github.com/hubizz/hubizz/internal/jobs"
	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/monitoring"
)

// Deduper is the duplicate detector as seen by the API.
type Deduper interface {
	CheckDuplicate(ctx context.Context, title, body string) (*model.Verdict, error)
	RecordFingerprint(ctx context.Context, contentID int64, title, body string) error
	FindSimilarTitles(ctx context.Context, title string, limit int) ([]model.SimilarTitle, error)
}

// StatsSource reports fingerprint statistics.
type StatsSource interface {
	Statistics(ctx context.Context) (*model.DedupStats, error)
}

// StatsFunc adapts a function to StatsSource.
type StatsFunc func(ctx context.Context) (*model.DedupStats, error)

// Statistics calls f.
func (f StatsFunc) Statistics(ctx context.Context) (*model.DedupStats, error) { return f(ctx) }

// ProductFinder matches products in free text.
type ProductFinder interface {
	FindProducts(ctx context.Context, text string, opts ...affiliate.FindOption) ([]model.ProductMatch, error)
}

// ContentProducts returns the cached product matches of a stored content item.
type ContentProducts interface {
	ProductsForContent(ctx context.Context, id int64, opts ...affiliate.FindOption) ([]model.ProductMatch, error)
}

// FeedGetter looks up feeds.
type FeedGetter interface {
	GetFeed(ctx context.Context, id int64) (*model.Feed, error)
}

// MetricsCollector produces pipeline health snapshots.
type MetricsCollector interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// Server holds the handlers' dependencies. Nil dependencies disable their routes.
type Server struct {
	Dedup       Deduper
	Stats       StatsSource
	Matcher     ProductFinder
	Products    ContentProducts
	Feeds       FeedGetter
	Jobs        jobs.Submitter
	Metrics     MetricsCollector
	CORSOrigins []string

	// MetricsLookbackHours is used when a metrics request gives no hours.
	MetricsLookbackHours int
}

// Router builds the chi router for s.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		if s.Dedup != nil {
			r.Post("/duplicates/check", s.checkDuplicate)
			r.Get("/duplicates/similar", s.similarTitles)
			r.Post("/fingerprints", s.recordFingerprint)
		}
		if s.Stats != nil {
			r.Get("/duplicates/stats", s.dedupStats)
		}
		if s.Matcher != nil {
			r.Post("/products/find", s.findProducts)
		}
		if s.Products != nil {
			r.Get("/contents/{id}/products", s.contentProducts)
		}
		if s.Jobs != nil {
			r.Post("/feeds/{id}/import", s.importFeed)
		}
		if s.Metrics != nil {
			r.Get("/metrics", s.metrics)
		}
	})
	return r
}

type checkRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (s *Server) checkDuplicate(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	v, err := s.Dedup.CheckDuplicate(r.Context(), req.Title, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type fingerprintRequest struct {
	ContentID int64  `json:"content_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

func (s *Server) recordFingerprint(w http.ResponseWriter, r *http.Request) {
	var req fingerprintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ContentID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "content_id is required"})
		return
	}
	if err := s.Dedup.RecordFingerprint(r.Context(), req.ContentID, req.Title, req.Body); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) similarTitles(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "title is required"})
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	hits, err := s.Dedup.FindSimilarTitles(r.Context(), title, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if hits == nil {
		hits = []model.SimilarTitle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"titles": hits})
}

func (s *Server) dedupStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Stats.Statistics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type findRequest struct {
	Text          string   `json:"text"`
	Category      string   `json:"category"`
	MinConfidence *float64 `json:"min_confidence"`
	MaxResults    *int     `json:"max_results"`
}

func (s *Server) findProducts(w http.ResponseWriter, r *http.Request) {
	var req findRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var opts []affiliate.FindOption
	if req.Category != "" {
		opts = append(opts, affiliate.WithCategory(req.Category))
	}
	if req.MinConfidence != nil {
		opts = append(opts, affiliate.WithMinConfidence(*req.MinConfidence))
	}
	if req.MaxResults != nil {
		opts = append(opts, affiliate.WithMaxResults(*req.MaxResults))
	}
	matches, err := s.Matcher.FindProducts(r.Context(), req.Text, opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchesBody{Matches: nonNil(matches)})
}

type matchesBody struct {
	ContentID int64                `json:"content_id,omitempty"`
	Matches   []model.ProductMatch `json:"matches"`
}

func (s *Server) contentProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var opts []affiliate.FindOption
	if c := q.Get("category"); c != "" {
		opts = append(opts, affiliate.WithCategory(c))
	}
	if q.Has("min_confidence") {
		v, err := strconv.ParseFloat(q.Get("min_confidence"), 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "min_confidence must be a number"})
			return
		}
		opts = append(opts, affiliate.WithMinConfidence(v))
	}
	maxResults, ok := queryInt(w, r, "max_results")
	if !ok {
		return
	}
	if maxResults > 0 {
		opts = append(opts, affiliate.WithMaxResults(maxResults))
	}

	matches, err := s.Products.ProductsForContent(r.Context(), id, opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchesBody{ContentID: id, Matches: nonNil(matches)})
}

func (s *Server) importFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if s.Feeds != nil {
		f, err := s.Feeds.GetFeed(r.Context(), id)
		if err != nil {
			writeError(w, model.Wrap(model.ErrStoreUnavailable, err))
			return
		}
		if f == nil {
			writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("feed %d not found", id)})
			return
		}
	}
	if err := s.Jobs.Submit(r.Context(), jobs.ImportFeedJob(id)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "feed_id": id})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	hours, ok := queryInt(w, r, "hours")
	if !ok {
		return
	}
	if hours <= 0 {
		hours = s.MetricsLookbackHours
	}
	if hours <= 0 {
		hours = 24
	}
	snap, err := s.Metrics.Collect(r.Context(), hours)
	if err != nil {
		writeError(w, model.Wrap(model.ErrStoreUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Serve runs h on port until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "api: listen")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "api: shutdown")
	}
	return <-errCh
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
