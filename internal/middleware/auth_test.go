package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/skillstack/internal/model"
)

type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, token string) (*model.User, error)
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, token)
	}
	return nil, model.NewAuthenticationError("Could not validate credentials")
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) DetailResponseBody {
	t.Helper()
	var body DetailResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	return body
}

func TestAuthMiddleware_ValidToken_InjectsUser(t *testing.T) {
	var gotToken string
	authn := &mockAuthenticator{
		authenticateFn: func(ctx context.Context, token string) (*model.User, error) {
			gotToken = token
			return &model.User{ID: 5, Email: "alice@example.com", Name: "Alice"}, nil
		},
	}

	var captured *model.User
	handler := NewAuthMiddleware(authn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/get_session", nil)
	req.Header.Set("Authorization", "bearer  abc.def.ghi")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotToken != "abc.def.ghi" {
		t.Errorf("token = %q", gotToken)
	}
	if captured == nil || captured.ID != 5 {
		t.Errorf("user = %+v", captured)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		authn      *mockAuthenticator
		wantDetail string
	}{
		{"ヘッダーなし", "", &mockAuthenticator{}, "Not authenticated"},
		{"Basic スキーム", "Basic dXNlcjpwYXNz", &mockAuthenticator{}, "Not authenticated"},
		{"トークンが空", "Bearer ", &mockAuthenticator{}, "Not authenticated"},
		{"無効なトークン", "Bearer bad", &mockAuthenticator{}, "Could not validate credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthMiddleware(tt.authn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if got := w.Header().Get("WWW-Authenticate"); got != "Bearer" {
				t.Errorf("WWW-Authenticate = %q, want Bearer", got)
			}
			body := decodeDetail(t, w)
			if body.Detail != tt.wantDetail || body.Code != model.ErrCodeAuthentication {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestUserFromContext_Missing(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Error("ユーザー未設定のコンテキストで ok を返してはならない")
	}
	if _, ok := UserFromContext(ContextWithUser(context.Background(), nil)); ok {
		t.Error("nil ユーザーで ok を返してはならない")
	}
}

// TestAuthMiddleware_InternalErrorReturns500 はユーザー取得の失敗を 401 ではなく 500 として返すことを検証する。
func TestAuthMiddleware_InternalErrorReturns500(t *testing.T) {
	authn := &mockAuthenticator{authenticateFn: func(context.Context, string) (*model.User, error) {
		return nil, errors.New("db down")
	}}
	handler := NewAuthMiddleware(authn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
	req.Header.Set("Authorization", "Bearer x")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != "" {
		t.Errorf("WWW-Authenticate = %q, want empty", got)
	}
	var envelope ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if envelope.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", envelope.Error.Code)
	}
	if strings.Contains(w.Body.String(), "db down") {
		t.Errorf("内部エラーの詳細が漏れている: %s", w.Body.String())
	}
}
