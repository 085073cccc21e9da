package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/starledger/pkg/chain"
	"github.com/uhyunpark/starledger/pkg/ownership"
)

// Server is the HTTP presentation layer. It only ever calls into the
// chain service; all ledger semantics live below it.
type Server struct {
	svc     *chain.Service
	router  *mux.Router
	hub     *Hub
	log     *zap.SugaredLogger
	origins []string
}

func NewServer(svc *chain.Service, logger *zap.SugaredLogger, corsOrigins []string) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		svc:     svc,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		log:     logger,
		origins: corsOrigins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Block lookups
	api.HandleFunc("/blocks/height/{height}", s.handleGetBlockByHeight).Methods("GET")
	api.HandleFunc("/blocks/hash/{hash}", s.handleGetBlockByHash).Methods("GET")

	// Ownership challenge + star registration
	api.HandleFunc("/challenges", s.handleRequestChallenge).Methods("POST")
	api.HandleFunc("/stars", s.handleSubmitStar).Methods("POST")
	api.HandleFunc("/stars/{address}", s.handleGetStars).Methods("GET")

	// Chain introspection
	api.HandleFunc("/chain/status", s.handleChainStatus).Methods("GET")
	api.HandleFunc("/chain/validate", s.handleValidateChain).Methods("GET")

	// WebSocket block feed
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// ServeHTTP lets the server be mounted directly (and drives httptest).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start runs the server until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// BroadcastBlock pushes a committed block to all "blocks" subscribers.
// Wired to the chain service's OnCommit hook at bootstrap.
func (s *Server) BroadcastBlock(b chain.Block) {
	s.hub.BroadcastToChannel("blocks", BlockUpdate{Type: "block", Block: b})
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetBlockByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseInt(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid height", err.Error())
		return
	}

	block, err := s.svc.BlockByHeight(r.Context(), height)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup failed", err.Error())
		return
	}
	if block == nil {
		respondError(w, http.StatusNotFound, "block not found", "")
		return
	}
	respondJSON(w, block)
}

func (s *Server) handleGetBlockByHash(w http.ResponseWriter, r *http.Request) {
	hash, err := chain.ParseHash(mux.Vars(r)["hash"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid hash", err.Error())
		return
	}

	block, err := s.svc.BlockByHash(r.Context(), hash)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup failed", err.Error())
		return
	}
	if block == nil {
		respondError(w, http.StatusNotFound, "block not found", "")
		return
	}
	respondJSON(w, block)
}

func (s *Server) handleRequestChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	message, err := s.svc.RequestChallenge(r.Context(), req.Address)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}
	respondJSON(w, ChallengeResponse{Message: message})
}

func (s *Server) handleSubmitStar(w http.ResponseWriter, r *http.Request) {
	var req SubmitStarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	block, err := s.svc.SubmitStar(r.Context(), req.Address, req.Message, req.Signature, req.Star)
	if err != nil {
		s.respondSubmitError(w, err)
		return
	}
	respondJSON(w, block)
}

// respondSubmitError maps the core failure taxonomy onto status codes.
func (s *Server) respondSubmitError(w http.ResponseWriter, err error) {
	var valErr *chain.ValidationError
	switch {
	case errors.Is(err, ownership.ErrChallengeExpired):
		respondError(w, http.StatusRequestTimeout, "challenge expired", err.Error())
	case errors.Is(err, ownership.ErrChallengeMalformed):
		respondError(w, http.StatusBadRequest, "malformed challenge", err.Error())
	case errors.Is(err, ownership.ErrSignatureInvalid):
		respondError(w, http.StatusUnauthorized, "signature invalid", err.Error())
	case errors.As(err, &valErr):
		respondError(w, http.StatusConflict, "chain validation failed", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "submit failed", err.Error())
	}
}

func (s *Server) handleGetStars(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	stars, err := s.svc.StarsByWallet(r.Context(), address)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup failed", err.Error())
		return
	}
	if stars == nil {
		stars = []chain.StarRecord{}
	}
	respondJSON(w, stars)
}

func (s *Server) handleChainStatus(w http.ResponseWriter, r *http.Request) {
	violations := s.svc.ValidateChain(r.Context())
	respondJSON(w, ChainStatus{
		Height:     s.svc.Height(r.Context()),
		Valid:      len(violations) == 0,
		Violations: len(violations),
	})
}

func (s *Server) handleValidateChain(w http.ResponseWriter, r *http.Request) {
	violations := s.svc.ValidateChain(r.Context())
	if violations == nil {
		violations = []string{}
	}
	respondJSON(w, ValidateResponse{
		Valid:      len(violations) == 0,
		Violations: violations,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Middleware & Helpers
// ==============================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps the websocket upgrade working through the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Infow("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
