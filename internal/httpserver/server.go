package httpserver

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/revlift/revlift/internal/analysis"
	"github.com/revlift/revlift/internal/config"
	"github.com/revlift/revlift/internal/metrics"
	"github.com/revlift/revlift/internal/models"
	"github.com/revlift/revlift/internal/storage"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Store   storage.DatasetStore
	Cache   *storage.ResultCache
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server wraps HTTP handlers around the analysis pipeline. Uploaded
// datasets become resident sessions; a dataset known to the store but
// not in memory is restored on first access.
type Server struct {
	store   storage.DatasetStore
	cache   *storage.ResultCache
	logger  *zap.Logger
	config  *config.Config
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*analysis.Session
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	store := deps.Store
	if store == nil {
		store = storage.NewInMemoryDatasetStore()
	}

	s := &Server{
		store:    store,
		cache:    deps.Cache,
		logger:   deps.Logger,
		config:   deps.Config,
		metrics:  deps.Metrics,
		sessions: make(map[string]*analysis.Session),
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Datasets and per-dataset analyses
	mux.HandleFunc("/datasets", s.handleDatasets)
	mux.HandleFunc("/datasets/", s.handleDatasetByID)

	// Warehouse extraction templates
	mux.HandleFunc("/templates/", s.handleTemplate)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"})
}

// ---- Datasets ----

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.store.ListDatasets(r.Context())
		if err != nil {
			s.logger.Error("failed to list datasets", zap.Error(err))
			s.errorResponse(w, "failed to list", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []*storage.DatasetMeta{}
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		s.handleUpload(w, r)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.config.Server.MaxUploadBytes); err != nil {
		s.errorResponse(w, "failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, "file field missing: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	rows, schema, err := readCSV(file)
	if err != nil {
		s.recordMalformed("csv")
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	sess, err := analysis.NewSession(uuid.New().String(), name, rows, schema.ActivationColumn, s.config.Analysis.Horizons)
	if err != nil {
		s.rejectUpload(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordStage("normalize", time.Since(start))
	}

	meta := &storage.DatasetMeta{
		ID:            sess.ID,
		Name:          sess.Name,
		CreatedAt:     sess.CreatedAt,
		Convention:    sess.Convention,
		RowCount:      sess.RowCount,
		ExcludedUsers: sess.ExcludedUsers,
		Warnings:      sess.Warnings,
	}
	meta.UserCount = sess.UserCount()

	if err := s.store.SaveDataset(r.Context(), meta, sess.Events); err != nil {
		s.logger.Error("failed to persist dataset", zap.Error(err), zap.String("dataset_id", sess.ID))
		s.errorResponse(w, "failed to persist dataset", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	resident := len(s.sessions)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordUpload(sess.RowCount, sess.ExcludedUsers)
		s.metrics.ActiveSessions.Set(float64(resident))
	}

	s.logger.Info("dataset uploaded",
		zap.String("dataset_id", sess.ID),
		zap.String("name", sess.Name),
		zap.Int("rows", sess.RowCount),
		zap.Int("users", meta.UserCount),
		zap.Int("excluded_users", sess.ExcludedUsers),
		zap.String("convention", string(sess.Convention)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(meta)
}

// rejectUpload maps a normalization or anchoring failure to a status
// code: structural problems are 400, row-level data problems 422.
func (s *Server) rejectUpload(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrMissingRequiredColumn),
		errors.Is(err, analysis.ErrEmptyDataset):
		s.recordMalformed("schema")
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, analysis.ErrMalformedTimestamp),
		errors.Is(err, analysis.ErrMalformedValue),
		errors.Is(err, analysis.ErrInconsistentAnchor):
		s.recordMalformed("rows")
		s.errorResponse(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		s.logger.Error("upload failed", zap.Error(err))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) recordMalformed(reason string) {
	if s.metrics != nil {
		s.metrics.RecordMalformedDataset(reason)
	}
}

// readCSV parses an uploaded file into raw rows plus the detected
// column schema.
func readCSV(file io.Reader) ([]models.RawRow, analysis.Schema, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, analysis.Schema{}, errors.New("failed to read csv header")
	}

	schema, err := analysis.DetectSchema(header)
	if err != nil {
		return nil, schema, err
	}

	var rows []models.RawRow
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, schema, errors.New("malformed csv at data row " + strconv.Itoa(line))
		}
		rows = append(rows, models.RawRow{
			UserID:     record[schema.UserID],
			Timestamp:  record[schema.Timestamp],
			Activation: record[schema.Activation],
			Value:      record[schema.Value],
			Line:       line,
		})
	}

	return rows, schema, nil
}

// ---- Per-dataset analyses ----

func (s *Server) handleDatasetByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/datasets/")
	id, view, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	sess, err := s.session(r, id)
	if err != nil {
		s.logger.Error("failed to load dataset", zap.Error(err), zap.String("dataset_id", id))
		s.errorResponse(w, "failed to load dataset", http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.NotFound(w, r)
		return
	}

	switch view {
	case "":
		s.handleMeta(w, sess)
	case "aggregates":
		s.jsonResponse(w, s.aggregates(r, sess))
	case "curve":
		s.handleCurve(w, r, sess)
	case "correlation":
		s.handleCorrelation(w, r, sess)
	case "uplift":
		s.handleUplift(w, r, sess)
	case "reranking":
		s.handleReranking(w, r, sess)
	default:
		http.NotFound(w, r)
	}
}

// session returns the resident session for a dataset, restoring it
// from the store on a cold hit.
func (s *Server) session(r *http.Request, id string) (*analysis.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	meta, events, err := s.store.GetDataset(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	sess = analysis.RestoreSession(meta.ID, meta.Name, meta.CreatedAt, meta.Convention,
		events, s.config.Analysis.Horizons, meta.RowCount, meta.ExcludedUsers)
	sess.Warnings = meta.Warnings

	if s.cache != nil {
		table, hit, err := s.cache.GetAggregates(r.Context(), id)
		if err != nil {
			s.logger.Warn("aggregate cache read failed", zap.Error(err), zap.String("dataset_id", id))
		} else {
			if s.metrics != nil {
				s.metrics.RecordCacheHit(hit)
			}
			if hit {
				sess.SetAggregates(table)
			}
		}
	}

	s.mu.Lock()
	s.sessions[id] = sess
	resident := len(s.sessions)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(resident))
	}

	return sess, nil
}

// aggregates returns the session's horizon table, timing the compute
// and writing a freshly built table through to the cache.
func (s *Server) aggregates(r *http.Request, sess *analysis.Session) *models.AggregateTable {
	start := time.Now()
	table := sess.Aggregates()
	if s.metrics != nil {
		s.metrics.RecordStage("aggregate", time.Since(start))
	}

	if s.cache != nil {
		if err := s.cache.SetAggregates(r.Context(), sess.ID, table); err != nil {
			s.logger.Warn("aggregate cache write failed", zap.Error(err), zap.String("dataset_id", sess.ID))
		}
	}

	return table
}

func (s *Server) handleMeta(w http.ResponseWriter, sess *analysis.Session) {
	s.jsonResponse(w, &storage.DatasetMeta{
		ID:            sess.ID,
		Name:          sess.Name,
		CreatedAt:     sess.CreatedAt,
		Convention:    sess.Convention,
		RowCount:      sess.RowCount,
		UserCount:     sess.UserCount(),
		ExcludedUsers: sess.ExcludedUsers,
		Warnings:      sess.Warnings,
	})
}

func (s *Server) handleCurve(w http.ResponseWriter, r *http.Request, sess *analysis.Session) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = analysis.CurveRevenue
	}

	points, err := analysis.Curve(s.aggregates(r, sess), metric)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.jsonResponse(w, map[string]any{
		"metric": metric,
		"points": points,
	})
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request, sess *analysis.Session) {
	s.aggregates(r, sess)

	threshold, err := s.threshold(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	matrix := sess.Correlation()
	if s.metrics != nil {
		s.metrics.RecordStage("correlate", time.Since(start))
	}

	s.jsonResponse(w, map[string]any{
		"matrix":    matrix,
		"threshold": threshold,
		"selection": analysis.SelectHorizon(matrix, threshold),
	})
}

func (s *Server) handleUplift(w http.ResponseWriter, r *http.Request, sess *analysis.Session) {
	q := r.URL.Query()

	params := models.BusinessParameters{
		SpendBracket: q.Get("spend_bracket"),
		ROASWindow:   q.Get("roas_window"),
	}
	regular, err := strconv.ParseFloat(q.Get("regular_roas"), 64)
	if err != nil {
		s.errorResponse(w, "regular_roas must be a decimal, e.g. 0.95", http.StatusBadRequest)
		return
	}
	params.RegularROAS = regular

	threshold, err := s.threshold(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	table := s.aggregates(r, sess)
	est, err := analysis.EstimateUplift(sess.Select(threshold), params, table.MaxHorizon(), s.config.Analysis.BaselineFactor)
	switch {
	case err == nil:
	case errors.Is(err, analysis.ErrUnknownSpendBracket),
		errors.Is(err, analysis.ErrUnknownROASWindow):
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, analysis.ErrUnsupportedHorizonSet):
		s.errorResponse(w, err.Error(), http.StatusUnprocessableEntity)
		return
	default:
		s.logger.Error("uplift estimate failed", zap.Error(err), zap.String("dataset_id", sess.ID))
		s.errorResponse(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, est)
}

func (s *Server) handleReranking(w http.ResponseWriter, r *http.Request, sess *analysis.Session) {
	table := s.aggregates(r, sess)

	threshold, err := s.threshold(r)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Default pair: the chosen predictive horizon (first horizon when
	// none qualifies) against the longest.
	reference := table.Horizons[0]
	if sel := sess.Select(threshold); sel.Found {
		reference = sel.Horizon
	}
	lookahead := table.MaxHorizon()

	q := r.URL.Query()
	if v := q.Get("reference"); v != "" {
		if reference, err = strconv.Atoi(v); err != nil {
			s.errorResponse(w, "reference must be a horizon in days", http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("lookahead"); v != "" {
		if lookahead, err = strconv.Atoi(v); err != nil {
			s.errorResponse(w, "lookahead must be a horizon in days", http.StatusBadRequest)
			return
		}
	}

	start := time.Now()
	m, err := analysis.Rerank(table, reference, lookahead)
	if err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordStage("rerank", time.Since(start))
	}

	s.jsonResponse(w, m)
}

// threshold returns the correlation threshold, honoring a per-request
// override.
func (s *Server) threshold(r *http.Request) (float64, error) {
	v := r.URL.Query().Get("threshold")
	if v == "" {
		return s.config.Analysis.CorrelationThreshold, nil
	}
	t, err := strconv.ParseFloat(v, 64)
	if err != nil || t <= 0 || t >= 1 {
		return 0, errors.New("threshold must be between 0 and 1")
	}
	return t, nil
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
