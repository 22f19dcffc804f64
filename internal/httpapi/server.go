// =============================================================================
// PRF Budget Import - HTTP Surface
// =============================================================================
//
// A thin multipart-upload front end over the pipeline.
//
// ROUTES:
//   GET  /healthz          store connectivity
//   POST /api/v1/sheets    list the sheets of an upload
//   POST /api/v1/validate  validate-only run
//   POST /api/v1/import    full import
//   GET  /metrics          Prometheus
//
// REQUEST FORMAT:
//   multipart/form-data with the workbook in the "file" field. Optional
//   fields (form or query): requestSheet, budgetSheet, skipDuplicates,
//   updateExisting, autoCreateCoa.
//
// STATUS CODES:
//   200 report (even when every record failed)
//   400 malformed request
//   413 upload over http.max_upload_mb
//   422 parse-fatal upload; the body is the rejected report
//   500 infrastructure fault
//
// =============================================================================

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ginjaninja78/prf-budget-import/internal/pipeline"
	"github.com/ginjaninja78/prf-budget-import/internal/types"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// Pinger reports store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the HTTP API.
type Server struct {
	pipeline  *pipeline.Pipeline
	pinger    Pinger
	defaults  types.ImportOptions
	maxUpload int64
	logger    *zap.Logger
}

// New creates a Server.
//
// PARAMETERS:
//   - p: The pipeline every upload is handed to.
//   - pinger: Checked by /healthz.
//   - defaults: Import options used when a request does not override them.
//   - maxUploadMB: Upload size cap in megabytes.
func New(p *pipeline.Pipeline, pinger Pinger, defaults types.ImportOptions, maxUploadMB int64, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		pipeline:  p,
		pinger:    pinger,
		defaults:  defaults,
		maxUpload: maxUploadMB << 20,
		logger:    logger,
	}
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sheets", s.handleSheets).Methods(http.MethodPost)
	api.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)

	router.Use(s.logRequests)
	return router
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSheets(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	names, err := s.pipeline.ListSheets(up.name, up.data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "sheets": names})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	in, err := s.input(r, up)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rep, err := s.pipeline.Validate(r.Context(), in)
	s.respond(w, rep, err)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	in, err := s.input(r, up)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rep, err := s.pipeline.Import(r.Context(), in)
	s.respond(w, rep, err)
}

// respond maps a pipeline result onto a status code. rep is a typed report
// pointer and may be nil.
func (s *Server) respond(w http.ResponseWriter, rep any, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rep)
	case pipeline.IsParseError(err):
		writeJSON(w, http.StatusUnprocessableEntity, rep)
	default:
		s.logger.Error("Batch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

type upload struct {
	name string
	data []byte
}

// readUpload reads the "file" part. On failure it writes the response and
// returns false.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit))
			return upload{}, false
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return upload{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("missing \"file\" field"))
		return upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err))
		return upload{}, false
	}
	return upload{name: header.Filename, data: data}, true
}

// input builds the pipeline input from the upload and the optional fields.
func (s *Server) input(r *http.Request, up upload) (pipeline.Input, error) {
	opts := s.defaults

	for field, dst := range map[string]*bool{
		"skipDuplicates": &opts.SkipDuplicates,
		"updateExisting": &opts.UpdateExisting,
		"autoCreateCoa":  &opts.AutoCreateCOA,
	} {
		v := r.FormValue(field)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return pipeline.Input{}, fmt.Errorf("invalid %s %q", field, v)
		}
		*dst = b
	}

	return pipeline.Input{
		FileName:     up.name,
		Data:         up.data,
		RequestSheet: r.FormValue("requestSheet"),
		BudgetSheet:  r.FormValue("budgetSheet"),
		Options:      &opts,
	}, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
