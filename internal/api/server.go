// Package api serves the read-only analytics query surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"solana-holder-ledger/internal/domain"
	"solana-holder-ledger/internal/storage"
)

// Analytics is the query collaborator. *analytics.Aggregator satisfies it.
type Analytics interface {
	CostBasis(ctx context.Context, address, wallet string, price float64) (*domain.CostBasisBreakdown, error)
	ProfitLossZones(ctx context.Context, address string, price, tolerance float64) (*domain.ProfitLossZones, error)
	PriceLevels(ctx context.Context, address string, band float64) ([]domain.PriceLevel, error)
	Summary(ctx context.Context, address string, price float64) (*domain.AnalyticsSummary, error)
}

// Server provides the HTTP query API.
type Server struct {
	analytics Analytics
	snapshots storage.ZoneSnapshotStore
	queue     func() (string, int)
	logger    *zap.Logger
	now       func() time.Time
}

// ServerOption configures optional dependencies for the server.
type ServerOption func(*Server)

// WithSnapshots enables GET /tokens/{address}/snapshots.
func WithSnapshots(store storage.ZoneSnapshotStore) ServerOption {
	return func(s *Server) { s.snapshots = store }
}

// WithQueueStatus reports the ingestion queue on /health.
func WithQueueStatus(status func() (state string, depth int)) ServerOption {
	return func(s *Server) { s.queue = status }
}

// NewServer creates a new API server.
func NewServer(analytics Analytics, logger *zap.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		analytics: analytics,
		logger:    logger.Named("api"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tokens/{address}/holders/{wallet}/cost-basis", s.handleCostBasis)
	mux.HandleFunc("GET /tokens/{address}/zones", s.handleZones)
	mux.HandleFunc("GET /tokens/{address}/price-levels", s.handlePriceLevels)
	mux.HandleFunc("GET /tokens/{address}/summary", s.handleSummary)
	mux.HandleFunc("GET /tokens/{address}/snapshots", s.handleSnapshots)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "route not found")
	})
	return requestLogger(s.logger, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.queue != nil {
		resp.QueueState, resp.QueueDepth = s.queue()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCostBasis(w http.ResponseWriter, r *http.Request) {
	price, ok := floatParam(w, r, "price")
	if !ok {
		return
	}
	b, err := s.analytics.CostBasis(r.Context(), r.PathValue("address"), r.PathValue("wallet"), price)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCostBasisResponse(b))
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	price, ok := floatParam(w, r, "price")
	if !ok {
		return
	}
	tolerance, ok := floatParam(w, r, "tolerance")
	if !ok {
		return
	}
	z, err := s.analytics.ProfitLossZones(r.Context(), r.PathValue("address"), price, tolerance)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newZonesResponse(z))
}

func (s *Server) handlePriceLevels(w http.ResponseWriter, r *http.Request) {
	band, ok := floatParam(w, r, "band")
	if !ok {
		return
	}
	levels, err := s.analytics.PriceLevels(r.Context(), r.PathValue("address"), band)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPriceLevels(levels))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	price, ok := floatParam(w, r, "price")
	if !ok {
		return
	}
	sum, err := s.analytics.Summary(r.Context(), r.PathValue("address"), price)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(sum))
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, r, http.StatusNotFound, "snapshots are not enabled")
		return
	}
	now := s.now().UnixMilli()
	from, ok := intParam(w, r, "from", now-24*time.Hour.Milliseconds())
	if !ok {
		return
	}
	to, ok := intParam(w, r, "to", now)
	if !ok {
		return
	}
	if from > to {
		writeError(w, r, http.StatusBadRequest, "from must not be after to")
		return
	}
	snaps, err := s.snapshots.GetByTimeRange(r.Context(), r.PathValue("address"), from, to)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshots(snaps))
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("query failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// floatParam reads an optional non-negative float query parameter. Absent is 0.
func floatParam(w http.ResponseWriter, r *http.Request, name string) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, raw))
		return 0, false
	}
	return v, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int64) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", name, raw))
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: RequestID(r.Context())})
}
