package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/askbase/askbase/internal/log"
	"github.com/askbase/askbase/internal/partition"
	"github.com/askbase/askbase/internal/resolver"
	"github.com/askbase/askbase/internal/router"
)

// maxQueryLength bounds inbound queries; anything longer is a client error.
const maxQueryLength = 4096

// defaultRetrievalLimit is the number of documents returned on a cache miss.
const defaultRetrievalLimit = 5

// queryResolver is the cache resolution surface consumed by the handler.
type queryResolver interface {
	Resolve(ctx context.Context, query, userID string) resolver.Result
}

// retrievalRouter is the domain routing surface consumed by the handler.
type retrievalRouter interface {
	Search(ctx context.Context, query string, userTier, limit int) (router.Plan, []partition.Result)
}

// queryLogger appends resolved queries to the historical log mined
// offline. Append failures are logged and swallowed: losing a record
// only delays cluster growth.
type queryLogger interface {
	Append(ctx context.Context, query, response, modelUsed string) error
}

// ResolveRequest is the inbound payload from the chat-handling layer.
type ResolveRequest struct {
	Query    string `json:"query"`
	UserID   string `json:"userId,omitempty"`
	UserTier int    `json:"userTier"`
}

// ResolveResponse is the resolution outcome. Source is "cache" for hits
// and "retrieval" for misses that went through the domain router.
type ResolveResponse struct {
	Source             string             `json:"source"`
	Answer             string             `json:"answer,omitempty"`
	Sources            []string           `json:"sources,omitempty"`
	Confidence         float64            `json:"confidence,omitempty"`
	MatchType          string             `json:"matchType,omitempty"`
	Similarity         float64            `json:"similarity,omitempty"`
	Partition          string             `json:"partition,omitempty"`
	RetrievedDocuments []partition.Result `json:"retrievedDocuments,omitempty"`
}

// ResolveHandler handles the query resolution endpoint.
type ResolveHandler struct {
	resolver queryResolver
	router   retrievalRouter
	logs     queryLogger
	logger   log.Logger
}

// NewResolveHandler creates a resolve handler. logs may be nil to
// disable query logging.
func NewResolveHandler(r queryResolver, rt retrievalRouter, logs queryLogger, logger log.Logger) *ResolveHandler {
	return &ResolveHandler{resolver: r, router: rt, logs: logs, logger: logger}
}

// RegisterRoutes registers resolution routes on the given mux.
func (h *ResolveHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/resolve", h.handleResolve)
}

// handleResolve runs the full pipeline: cache resolution first, then
// domain-routed retrieval on a miss. Resolver and router failures are
// internal degradations, never surfaced as HTTP errors.
func (h *ResolveHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if len(req.Query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long")
		return
	}

	if res := h.resolver.Resolve(r.Context(), req.Query, req.UserID); res.Hit {
		writeJSON(w, http.StatusOK, ResolveResponse{
			Source:     "cache",
			Answer:     res.Answer,
			Sources:    res.Sources,
			Confidence: res.Confidence,
			MatchType:  string(res.MatchType),
			Similarity: res.Similarity,
		})
		return
	}

	plan, docs := h.router.Search(r.Context(), req.Query, req.UserTier, defaultRetrievalLimit)

	// Record the miss for the offline miner. Best-effort.
	if h.logs != nil {
		if err := h.logs.Append(r.Context(), req.Query, "", ""); err != nil {
			h.logger.Warn("query log append failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, ResolveResponse{
		Source:             "retrieval",
		Partition:          plan.Partition,
		RetrievedDocuments: docs,
	})
}
