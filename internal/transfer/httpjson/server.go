package httpjson

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mediavault/mediavault-core/internal/metrics"
	"github.com/mediavault/mediavault-core/internal/middleware"
	"github.com/mediavault/mediavault-core/internal/odb"
	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/refstore"
	"github.com/mediavault/mediavault-core/internal/storage"
	"github.com/mediavault/mediavault-core/internal/transfer"
)

// Server exposes one repository (odb + refstore) as an HTTP peer other
// nodes' httpjson.Client instances can Push to and Pull from.
type Server struct {
	db      *odb.DB
	refs    *refstore.Store
	backend storage.Backend
	health  *HealthChecker

	rateLimiter       *middleware.RateLimiter
	bandwidthLimiter  *middleware.BandwidthLimiter
	tracing           *middleware.Tracing
	metricsMiddleware *middleware.MetricsMiddleware

	logger zerolog.Logger
}

// ServerConfig wires a Server's dependencies, mirroring the shape of the
// teacher's handler.RouterConfig.
type ServerConfig struct {
	DB                *odb.DB
	Refs              *refstore.Store
	Backend           storage.Backend
	Health            *HealthChecker
	RateLimiter       *middleware.RateLimiter
	BandwidthLimiter  *middleware.BandwidthLimiter
	Metrics           *metrics.Metrics
	Logger            zerolog.Logger
}

// NewServer builds a Server and its metrics/tracing middleware from cfg.
func NewServer(cfg ServerConfig) *Server {
	var metricsMiddleware *middleware.MetricsMiddleware
	if cfg.Metrics != nil {
		metricsMiddleware = middleware.NewMetricsMiddleware(cfg.Metrics)
	}
	return &Server{
		db:                cfg.DB,
		refs:              cfg.Refs,
		backend:           cfg.Backend,
		health:            cfg.Health,
		rateLimiter:       cfg.RateLimiter,
		bandwidthLimiter:  cfg.BandwidthLimiter,
		tracing:           middleware.NewTracing(cfg.Metrics, cfg.Logger),
		metricsMiddleware: metricsMiddleware,
		logger:            cfg.Logger.With().Str("component", "transfer.httpjson").Logger(),
	}
}

// Handler returns the full middleware-wrapped HTTP handler, the chain
// ordered innermost-to-outermost exactly as the teacher's Router.Handler
// does: rate limit, then in-flight metrics, then tracing as the outermost
// layer so every request (including ones the rate limiter rejects) gets a
// request ID and a logged/measured outcome.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.health != nil {
		mux.HandleFunc("/healthz", s.health.HandleLiveness)
		mux.HandleFunc("/readyz", s.health.HandleReadiness)
	}

	mux.HandleFunc("/refs/", s.handleRef)
	mux.HandleFunc("/objects/have", s.handleHave)
	mux.HandleFunc("/objects/want", s.handleWant)
	mux.HandleFunc("/objects/", s.handleObject)

	var h http.Handler = mux
	if s.rateLimiter != nil {
		h = s.rateLimiter.Middleware(h)
	}
	if s.metricsMiddleware != nil {
		h = s.metricsMiddleware.Middleware(h)
	}
	if s.tracing != nil {
		h = s.tracing.Middleware(h)
	}
	return h
}

func (s *Server) handleRef(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/refs/")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing ref name")
		return
	}

	switch r.Method {
	case http.MethodGet:
		id, err := s.refs.Resolve(r.Context(), name)
		if err != nil {
			if storage.IsNotFound(err) {
				writeError(w, http.StatusNotFound, transfer.ErrRefNotFound.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resolveRefResponse{Oid: id.String()})

	case http.MethodPost:
		var req casRefRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
		expectedOld := oid.Zero
		if req.ExpectedOld != "" {
			var err error
			expectedOld, err = oid.Parse(req.ExpectedOld)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid expected_old: "+err.Error())
				return
			}
		}
		newOid, err := oid.Parse(req.New)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid new: "+err.Error())
			return
		}
		if err := s.refs.CAS(r.Context(), name, expectedOld, newOid); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleHave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req haveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	tip, err := oid.Parse(req.Tip)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tip: "+err.Error())
		return
	}
	reachable, err := transfer.ReachableOids(r.Context(), s.db, tip)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, haveResponse{Oids: encodeOids(reachable)})
}

func (s *Server) handleWant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req wantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	candidates, err := decodeOidSlice(req.Candidates)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid candidate: "+err.Error())
		return
	}
	var want []oid.Oid
	for _, id := range candidates {
		exists, err := s.db.Exists(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !exists {
			want = append(want, id)
		}
	}
	writeJSON(w, http.StatusOK, wantResponse{Oids: encodeOidSlice(want)})
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/objects/")
	id, err := oid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid oid: "+err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		data, err := s.db.Get(r.Context(), id)
		if err != nil {
			if storage.IsNotFound(err) {
				writeError(w, http.StatusNotFound, "object not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.bandwidthLimiter != nil && !s.bandwidthLimiter.AllowBytes(clientID(r), int64(len(data))) {
			writeError(w, http.StatusTooManyRequests, "bandwidth limit exceeded")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write(data)

	case http.MethodPut:
		if s.bandwidthLimiter != nil && r.ContentLength > 0 && !s.bandwidthLimiter.AllowBytes(clientID(r), r.ContentLength) {
			writeError(w, http.StatusTooManyRequests, "bandwidth limit exceeded")
			return
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		res, err := s.db.Put(r.Context(), bytes.NewReader(data), odb.PutOptions{})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if res.Oid != id {
			writeError(w, http.StatusBadRequest, "content hashes to a different oid than the request path")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func clientID(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
