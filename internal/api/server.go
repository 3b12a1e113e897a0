// Package api exposes batch simulation over HTTP and streams run progress
// over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"mmsim/internal/batch"
	"mmsim/internal/brownian"
	"mmsim/internal/config"
	"mmsim/internal/engine"
	"mmsim/internal/logging"
	"mmsim/internal/metrics"
	"mmsim/internal/pathstore"
	"mmsim/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxBatches bounds how many finished batches stay in memory
const maxBatches = 64

// PathStore is the persistence the server needs
type PathStore interface {
	batch.PathWriter
	batch.PathReader
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	DeleteBatch(ctx context.Context, batch string) (int64, error)
}

var _ PathStore = (*pathstore.Store)(nil)

type Server struct {
	cfg         *config.Config
	store       PathStore
	hub         *Hub
	rateLimiter *RateLimiter
	log         *zap.Logger
	registry    *prometheus.Registry
	metrics     *metrics.Collectors
	validate    *validator.Validate
	upgrader    websocket.Upgrader
	corsOrigins []string // Allowed CORS origins (empty = allow all)

	mu      sync.RWMutex
	batches map[string]*batchEntry
	order   []string // batch IDs, oldest first
}

type batchEntry struct {
	ID        string
	CreatedAt time.Time
	Model     config.ModelConfig
	Summary   report.Summary
	Result    *batch.Result
}

// NewServer builds a server over st. Metrics register on reg; a nil reg
// gets a private registry.
func NewServer(cfg *config.Config, st PathStore, log *zap.Logger, reg *prometheus.Registry) *Server {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{
		cfg:         cfg,
		store:       st,
		hub:         NewHub(),
		rateLimiter: NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst),
		log:         logging.OrNop(log),
		registry:    reg,
		metrics:     metrics.New(reg),
		validate:    validator.New(),
		corsOrigins: cfg.HTTP.CORSOrigins,
		batches:     make(map[string]*batchEntry),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.checkCORSOrigin(r.Header.Get("Origin"))
		},
	}
	return s
}

// checkCORSOrigin checks if an origin is allowed
func (s *Server) checkCORSOrigin(origin string) bool {
	// Empty list = allow all
	if len(s.corsOrigins) == 0 {
		return true
	}
	// Empty origin header = same-origin request
	if origin == "" {
		return true
	}
	for _, allowed := range s.corsOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	allowedOrigins := s.corsOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.With(s.rateLimiter.Middleware).Post("/batches", s.createBatch)
		r.Get("/batches", s.listBatches)
		r.Get("/batches/{id}", s.getBatch)
		r.Get("/batches/{id}/runs/{index}", s.getRun)
		r.Get("/batches/{id}/pnl.csv", s.getPnLMatrix)

		r.Get("/paths/count", s.countPaths)
		r.Delete("/paths", s.clearPaths)
	})

	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

// ModelOverrides replaces individual model settings for one batch
type ModelOverrides struct {
	S0    *float64 `json:"s0"`
	N     *int     `json:"n"     validate:"omitempty,min=1"`
	Dt    *float64 `json:"dt"    validate:"omitempty,gt=0"`
	Mu    *float64 `json:"mu"`
	Sigma *float64 `json:"sigma" validate:"omitempty,gte=0"`
	Gamma *float64 `json:"gamma" validate:"omitempty,gt=0"`
	K     *float64 `json:"k"     validate:"omitempty,gt=0"`
}

// BatchRequest starts a batch. Zero values fall back to configuration.
type BatchRequest struct {
	NSim      int             `json:"n_sim" validate:"gte=0"`
	Seed      *uint64         `json:"seed"`
	KeepPaths *bool           `json:"keep_paths"`
	Model     *ModelOverrides `json:"model"`
}

type BatchResponse struct {
	BatchID   string             `json:"batch_id"`
	CreatedAt time.Time          `json:"created_at"`
	Model     config.ModelConfig `json:"model"`
	Summary   report.Summary     `json:"summary"`
}

type BatchInfo struct {
	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
	Runs      int       `json:"runs"`
}

func (o *ModelOverrides) apply(m config.ModelConfig) config.ModelConfig {
	if o == nil {
		return m
	}
	if o.S0 != nil {
		m.S0 = *o.S0
	}
	if o.N != nil {
		m.N = *o.N
	}
	if o.Dt != nil {
		m.Dt = *o.Dt
	}
	if o.Mu != nil {
		m.Mu = *o.Mu
	}
	if o.Sigma != nil {
		m.Sigma = *o.Sigma
	}
	if o.Gamma != nil {
		m.Gamma = *o.Gamma
	}
	if o.K != nil {
		m.K = *o.K
	}
	return m
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	nSim := req.NSim
	if nSim == 0 {
		nSim = s.cfg.Batch.NSim
	}
	if nSim > s.cfg.HTTP.MaxNSim {
		http.Error(w, "n_sim exceeds "+strconv.Itoa(s.cfg.HTTP.MaxNSim), http.StatusBadRequest)
		return
	}
	seed := s.cfg.Batch.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	keep := s.cfg.Batch.KeepPaths
	if req.KeepPaths != nil {
		keep = *req.KeepPaths
	}

	model := req.Model.apply(s.cfg.Model)
	if err := config.ValidateModel(model); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	params := model.Engine()
	if err := params.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	ctx := r.Context()
	log := s.log.With(zap.String("batch_id", id))

	if _, err := batch.GenerateAndStore(ctx, s.store, id, model.Process(), nSim, seed); err != nil {
		s.writeRunError(w, log, err)
		return
	}
	discard := func() {
		if keep {
			return
		}
		// request ctx may be gone; paths must still be removed
		if _, err := s.store.DeleteBatch(context.Background(), id); err != nil {
			log.Error("failed to delete batch paths", zap.Error(err))
		}
	}

	runner := &batch.Runner{
		Workers: s.cfg.Batch.Workers,
		Seed:    seed,
		Logger:  log,
		Metrics: s.metrics,
		OnRunComplete: func(index int, series *engine.Series) {
			last := series.Last()
			ask, bid := series.Fills()
			s.hub.Broadcast(RunComplete{
				Type:     "run_complete",
				BatchID:  id,
				Index:    index,
				PnL:      last.PnL,
				Q:        last.Q,
				AskFills: ask,
				BidFills: bid,
			})
		},
	}
	res, err := runner.RunStored(ctx, s.store, id, params)
	discard()
	if err != nil {
		s.writeRunError(w, log, err)
		return
	}

	entry := &batchEntry{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Model:     model,
		Summary:   report.Build(res),
		Result:    res,
	}
	s.remember(entry)
	s.hub.Broadcast(BatchComplete{Type: "batch_complete", BatchID: id, Runs: res.Len()})

	writeJSON(w, http.StatusCreated, entry.response())
}

func (e *batchEntry) response() BatchResponse {
	return BatchResponse{
		BatchID:   e.ID,
		CreatedAt: e.CreatedAt,
		Model:     e.Model,
		Summary:   e.Summary,
	}
}

// writeRunError maps batch failures onto status codes
func (s *Server) writeRunError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, engine.ErrConfiguration), errors.Is(err, engine.ErrShapeMismatch),
		errors.Is(err, brownian.ErrInvalidParams), errors.Is(err, batch.ErrNoPaths):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrNumericDomain):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Warn("batch cancelled", zap.Error(err))
		http.Error(w, "batch cancelled", http.StatusServiceUnavailable)
	default:
		log.Error("batch failed", zap.Error(err))
		http.Error(w, "batch failed", http.StatusInternalServerError)
	}
}

// remember stores e, evicting the oldest batch past maxBatches
func (s *Server) remember(e *batchEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[e.ID] = e
	s.order = append(s.order, e.ID)
	for len(s.order) > maxBatches {
		delete(s.batches, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Server) lookup(id string) (*batchEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.batches[id]
	return e, ok
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]BatchInfo, 0, len(s.order))
	for _, id := range s.order {
		e := s.batches[id]
		out = append(out, BatchInfo{BatchID: e.ID, CreatedAt: e.CreatedAt, Runs: e.Result.Len()})
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "batch not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e.response())
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "batch not found", http.StatusNotFound)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "run index must be an integer", http.StatusBadRequest)
		return
	}
	if index < 0 || index >= e.Result.Len() {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e.Result.Runs[index])
}

func (s *Server) getPnLMatrix(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "batch not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+e.ID+`-pnl.csv"`)
	if err := report.WritePnLMatrixCSV(w, e.Result); err != nil {
		s.log.Error("failed to write pnl matrix", zap.String("batch_id", e.ID), zap.Error(err))
	}
}

func (s *Server) countPaths(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Count(r.Context())
	if err != nil {
		s.log.Error("failed to count paths", zap.Error(err))
		http.Error(w, "failed to count paths", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) clearPaths(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.log.Error("failed to clear paths", zap.Error(err))
		http.Error(w, "failed to clear paths", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	// Greeting is queued before registration so a concurrent Hub.Stop
	// never closes send under it
	s.mu.RLock()
	n := len(s.order)
	s.mu.RUnlock()
	data, _ := json.Marshal(map[string]interface{}{
		"type":    "hello",
		"batches": n,
	})
	client.send <- data

	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Shutdown stops internal goroutines (rate limiter, hub)
func (s *Server) Shutdown() {
	s.rateLimiter.Stop()
	s.hub.Stop()
}
