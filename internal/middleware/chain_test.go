package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/skillstack/internal/model"
)

// newChainRouter はサーバーと同じ順序でミドルウェアを組んだルーターを返す。
func newChainRouter(t *testing.T, logBuf *bytes.Buffer) (*chi.Mux, *RateLimiter) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(logBuf, nil))
	authn := &mockAuthenticator{
		authenticateFn: func(ctx context.Context, token string) (*model.User, error) {
			if token == "good" {
				return &model.User{ID: 1, Email: "alice@example.com"}, nil
			}
			return nil, model.NewAuthenticationError("Could not validate credentials")
		},
	}
	rl := NewRateLimiter(testRateLimiterConfig(3, 1))
	t.Cleanup(rl.Stop)

	r := chi.NewRouter()
	r.Use(NewRequestIDMiddleware())
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewRecoveryMiddleware(logger))
	r.Use(NewSecurityHeadersMiddleware())
	r.Use(NewCORSMiddleware("http://localhost:5173"))

	r.Group(func(r chi.Router) {
		r.Use(NewAuthMiddleware(authn))
		r.Use(rl.GeneralMiddleware())
		r.Get("/api/resources", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/api/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
		r.With(rl.AIMiddleware()).Post("/api/ai/categorize", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	return r, rl
}

func authed(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer good")
	return req
}

func TestMiddlewareChain_AuthenticatedRequest(t *testing.T) {
	var buf bytes.Buffer
	r, _ := newChainRouter(t, &buf)

	req := authed(http.MethodGet, "/api/resources")
	req.Header.Set("Origin", "http://localhost:5173")
	w := serve(r, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("セキュリティヘッダーが付与されていない")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Error("CORSヘッダーが付与されていない")
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("X-Request-ID が付与されていない")
	}
}

func TestMiddlewareChain_PreflightSkipsAuth(t *testing.T) {
	var buf bytes.Buffer
	r, _ := newChainRouter(t, &buf)

	req := httptest.NewRequest(http.MethodOptions, "/api/resources", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := serve(r, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

// TestMiddlewareChain_BareOptionsIsNotPreflight はプリフライトでない OPTIONS が
// 認証を通さずに成功しないことを検証する。
func TestMiddlewareChain_BareOptionsIsNotPreflight(t *testing.T) {
	var buf bytes.Buffer
	r, _ := newChainRouter(t, &buf)

	w := serve(r, httptest.NewRequest(http.MethodOptions, "/api/resources", nil))
	if w.Code >= 200 && w.Code < 300 {
		t.Errorf("status = %d, want non-2xx", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Origin なしのリクエストに CORS ヘッダーが付与された")
	}
}

func TestMiddlewareChain_Unauthenticated(t *testing.T) {
	var buf bytes.Buffer
	r, _ := newChainRouter(t, &buf)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/resources", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestMiddlewareChain_PanicReturns500(t *testing.T) {
	var buf bytes.Buffer
	r, _ := newChainRouter(t, &buf)

	w := serve(r, authed(http.MethodGet, "/api/panic"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var envelope ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if envelope.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q", envelope.Error.Code)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"status":500`)) {
		t.Errorf("アクセスログに500が記録されていない: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"panic recovered"`)) || !bytes.Contains(buf.Bytes(), []byte(`"user_id":1`)) {
		t.Errorf("panic ログに user_id が含まれていない: %s", buf.String())
	}
}

// TestMiddlewareChain_AILimitPerUser はAIエンドポイントに個別の制限がかかることを検証する。
func TestMiddlewareChain_AILimitPerUser(t *testing.T) {
	var buf bytes.Buffer
	r, _ := newChainRouter(t, &buf)

	if w := serve(r, authed(http.MethodPost, "/api/ai/categorize")); w.Code != http.StatusOK {
		t.Fatalf("first: status = %d", w.Code)
	}
	if w := serve(r, authed(http.MethodPost, "/api/ai/categorize")); w.Code != http.StatusTooManyRequests {
		t.Errorf("second: status = %d, want 429", w.Code)
	}
	if w := serve(r, authed(http.MethodGet, "/api/resources")); w.Code != http.StatusOK {
		t.Errorf("general route: status = %d, want 200", w.Code)
	}
}
