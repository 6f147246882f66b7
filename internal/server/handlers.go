package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/entityscan/entityscan/internal/extract"
	"github.com/entityscan/entityscan/internal/websocket"
	"go.uber.org/zap"
)

// ExtractRequest is the body of POST /v1/extract. Text is a pointer so an
// absent or null value can be told apart from an empty string: the core has
// no invalid-input case, so the null check lives here in the caller.
type ExtractRequest struct {
	Text *string `json:"text"`
}

// ExtractResponse carries the result mapping back to the client. Entities
// serializes with its keys in declaration order.
type ExtractResponse struct {
	Entities     extract.Result `json:"entities"`
	TotalMatches int            `json:"total_matches"`
	Cached       bool           `json:"cached"`
}

// handleExtract runs the extractor over the posted text
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.Server.MaxTextBytes+1))
	if err != nil {
		log.Error("Failed to read request body", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read request")
		return
	}
	r.Body.Close()

	if int64(len(body)) > s.config.Server.MaxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "text too large")
		return
	}

	var req ExtractRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == nil {
		writeError(w, http.StatusBadRequest, "missing text field")
		return
	}

	start := time.Now()
	text := *req.Text

	var result extract.Result
	cacheHit := false
	if s.cache != nil {
		if cached, err := s.cache.Get(r.Context(), text); err != nil {
			log.Warn("Cache lookup failed", zap.Error(err))
		} else if cached != nil {
			result = cached.Entities
			cacheHit = true
		}
	}

	if result == nil {
		result = s.getExtractor().Extract(text)
		if s.cache != nil {
			if err := s.cache.Set(r.Context(), text, result); err != nil {
				log.Warn("Cache store failed", zap.Error(err))
			}
		}
	}

	if s.store != nil && !cacheHit {
		// Persist asynchronously; a slow database must not delay the reply.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.store.RecordResult(ctx, text, result); err != nil {
				log.Warn("Failed to persist matches", zap.Error(err))
			}
		}()
	}

	duration := time.Since(start)

	if total := result.Total(); total > 0 {
		atomic.AddInt64(&s.totalExtractions, 1)

		counts := make(map[string]int, len(result))
		for entityType, n := range result.Counts() {
			counts[string(entityType)] = n
		}

		log.Info("Entities extracted",
			zap.Int("total_matches", total),
			zap.Bool("cache_hit", cacheHit),
			zap.Duration("duration", duration),
		)

		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeExtraction,
			Timestamp: time.Now(),
			RequestID: requestID,
			Data: websocket.ExtractionEvent{
				RequestID:    requestID,
				ClientIP:     getClientIP(r),
				TextBytes:    len(text),
				Counts:       counts,
				TotalMatches: total,
				CacheHit:     cacheHit,
				ProcessingMS: float64(duration.Nanoseconds()) / 1e6,
			},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(ExtractResponse{
		Entities:     result,
		TotalMatches: result.Total(),
		Cached:       cacheHit,
	}); err != nil {
		log.Error("Failed to write response", zap.Error(err))
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"entityscan",
		"version":"0.1.0",
		"extractor_enabled":%t,
		"entity_types":%d,
		"cache_enabled":%t,
		"store_enabled":%t
	}`, s.extractorEnabled(), len(extract.EntityTypes), s.cache != nil, s.store != nil)
}

// handleWebSocket handles WebSocket connections for the dashboard
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
