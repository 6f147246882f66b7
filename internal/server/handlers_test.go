package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/entityscan/entityscan/internal/config"
	"github.com/entityscan/entityscan/internal/extract"
	"github.com/entityscan/entityscan/internal/logger"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.GetDefaults()
	cfg.Cache.Enabled = false
	cfg.Store.Enabled = false
	cfg.WebSocket.Enabled = false

	srv, err := New(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func postExtract(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleExtract(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(map[string]string{
		"text": "Email sarah.johnson@techcorp.com or call (555) 123-4567. SSN: 123-45-6789.",
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := postExtract(t, srv, string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp ExtractResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.TotalMatches != 3 {
		t.Errorf("total_matches = %d, want 3", resp.TotalMatches)
	}
	if resp.Cached {
		t.Error("cached = true for a server with no cache")
	}
	if got := resp.Entities[extract.Emails]; len(got) != 1 || got[0] != "sarah.johnson@techcorp.com" {
		t.Errorf("emails = %v", got)
	}
	if got := resp.Entities[extract.Phones]; len(got) != 1 || got[0] != "(555) 123-4567" {
		t.Errorf("phones = %v", got)
	}
	if len(resp.Entities) != len(extract.EntityTypes) {
		t.Errorf("entities has %d keys, want %d", len(resp.Entities), len(extract.EntityTypes))
	}
}

func TestHandleExtractKeyOrder(t *testing.T) {
	srv := newTestServer(t)

	rec := postExtract(t, srv, `{"text":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	// The entities object must list every category even for empty input,
	// with keys in their canonical order.
	raw := rec.Body.String()
	last := -1
	for _, entityType := range extract.EntityTypes {
		idx := strings.Index(raw, `"`+string(entityType)+`"`)
		if idx < 0 {
			t.Fatalf("response missing key %q: %s", entityType, raw)
		}
		if idx < last {
			t.Errorf("key %q out of order", entityType)
		}
		last = idx
	}
}

func TestHandleExtractMissingText(t *testing.T) {
	srv := newTestServer(t)

	for name, body := range map[string]string{
		"empty object": `{}`,
		"null text":    `{"text":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := postExtract(t, srv, body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandleExtractInvalidJSON(t *testing.T) {
	srv := newTestServer(t)

	rec := postExtract(t, srv, `{"text": "unterminated`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleExtractTooLarge(t *testing.T) {
	srv := newTestServer(t)
	srv.config.Server.MaxTextBytes = 64

	big := bytes.Repeat([]byte("a"), 256)
	body, _ := json.Marshal(map[string]string{"text": string(big)})

	rec := postExtract(t, srv, string(body))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var health map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", health["status"])
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	srv := newTestServer(t)
	srv.config.Server.RateLimit.Enabled = true
	srv.config.Server.RateLimit.RequestsPerSec = 1
	srv.config.Server.RateLimit.Burst = 2

	// The bucket map lives on the server, so back-to-back requests from the
	// same client drain one bucket instead of each seeing a fresh one.
	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		rec := postExtract(t, srv, `{"text":""}`)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("requests within the burst were rejected: %v", codes)
	}
	limited := 0
	for _, code := range codes {
		if code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited == 0 {
		t.Fatalf("no request was rate limited: %v", codes)
	}

	// A different client IP gets its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader(`{"text":""}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("fresh client was limited: %d", rec.Code)
	}
}
