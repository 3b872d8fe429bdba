// Package api exposes conversations, prompting and audit search over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pario-ai/parley/pkg/audit"
	"github.com/pario-ai/parley/pkg/conversation"
	"github.com/pario-ai/parley/pkg/exchange"
	"github.com/pario-ai/parley/pkg/metrics"
	"github.com/pario-ai/parley/pkg/models"
)

const maxAuditLimit = 1000

type Server struct {
	conversations conversation.Store
	exchange      *exchange.Service
	audits        audit.Store
	gatherer      prometheus.Gatherer
	logger        *slog.Logger
}

func New(conversations conversation.Store, svc *exchange.Service, audits audit.Store, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{
		conversations: conversations,
		exchange:      svc,
		audits:        audits,
		gatherer:      gatherer,
		logger:        logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(s.gatherer))
	}

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", s.handleCreateConversation)
		r.Get("/", s.handleListConversations)
		r.Get("/{id}", s.handleGetConversation)
		r.Put("/{id}", s.handleUpdateConversation)
		r.Delete("/{id}", s.handleDeleteConversation)
		r.Post("/{id}/prompt", s.handlePrompt)
	})
	r.Get("/audits", s.handleListAudits)
	return r
}

type titleRequest struct {
	Title string `json:"title"`
}

type promptRequest struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondError(w, http.StatusBadRequest, "invalid_title", "title is required")
		return
	}

	conv, err := s.conversations.Create(r.Context(), req.Title)
	if err != nil {
		s.internalError(w, r, "create conversation", err)
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.conversations.List(r.Context())
	if err != nil {
		s.internalError(w, r, "list conversations", err)
		return
	}
	respondJSON(w, http.StatusOK, convs)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, r, "get conversation", err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondError(w, http.StatusBadRequest, "invalid_title", "title is required")
		return
	}

	conv, err := s.conversations.UpdateTitle(r.Context(), chi.URLParam(r, "id"), req.Title)
	if err != nil {
		s.storeError(w, r, "update conversation", err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.conversations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.storeError(w, r, "delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role != models.RoleUser {
		respondError(w, http.StatusBadRequest, "invalid_role", "role must be \"user\"")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "invalid_content", "content is required")
		return
	}

	conv, err := s.exchange.SendPrompt(r.Context(), chi.URLParam(r, "id"), req.Content)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, conv)
	case errors.Is(err, exchange.ErrUpstreamUnavailable):
		respondError(w, http.StatusBadGateway, "upstream_error", "LLM service error.")
	default:
		s.storeError(w, r, "send prompt", err)
	}
}

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := models.AuditQueryOpts{
		ID:             q.Get("id"),
		ConversationID: q.Get("conversation_id"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxAuditLimit {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 1000")
			return
		}
		opts.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_since", "since must be an RFC 3339 timestamp")
			return
		}
		opts.Since = t
	}

	records, err := s.audits.Query(r.Context(), opts)
	if err != nil {
		s.internalError(w, r, "query audits", err)
		return
	}
	if records == nil {
		records = []models.AuditRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "Conversation not found.")
		return
	}
	s.internalError(w, r, op, err)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op+" failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, detail string) {
	respondJSON(w, status, errorResponse{Error: code, Detail: detail})
}
