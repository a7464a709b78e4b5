package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/skillstack/internal/ai"
	"github.com/hitoshi/skillstack/internal/auth"
	"github.com/hitoshi/skillstack/internal/middleware"
	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/resource"
	"github.com/hitoshi/skillstack/internal/source"
	"github.com/hitoshi/skillstack/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	signUpFn  func(ctx context.Context, email, password, name string) (*model.User, error)
	signInFn  func(ctx context.Context, email, password string) (*auth.TokenPair, error)
	refreshFn func(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
}

func (m *mockAuthService) SignUp(ctx context.Context, email, password, name string) (*model.User, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, name)
	}
	return &model.User{ID: 1, Email: email, Name: name}, nil
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, nil
}

type mockUserService struct {
	updateProfileFn func(ctx context.Context, current *model.User, in user.ProfileUpdate) (*model.User, error)
	withdrawFn      func(ctx context.Context, userID int64) error
}

func (m *mockUserService) UpdateProfile(ctx context.Context, current *model.User, in user.ProfileUpdate) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, current, in)
	}
	return current, nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID int64) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

type mockResourceService struct {
	listFn   func(ctx context.Context, userID int64) ([]model.Resource, error)
	getFn    func(ctx context.Context, userID, id int64) (*model.Resource, error)
	createFn func(ctx context.Context, userID int64, in resource.CreateInput) (*model.Resource, error)
	updateFn func(ctx context.Context, userID, id int64, in resource.UpdateInput) (*model.Resource, error)
	deleteFn func(ctx context.Context, userID, id int64) error
	statsFn  func(ctx context.Context, userID int64) (*model.ResourceStats, error)
}

func (m *mockResourceService) List(ctx context.Context, userID int64) ([]model.Resource, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []model.Resource{}, nil
}

func (m *mockResourceService) Get(ctx context.Context, userID, id int64) (*model.Resource, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, id)
	}
	return nil, model.NewNotFoundError("Resource not found or not authorized")
}

func (m *mockResourceService) Create(ctx context.Context, userID int64, in resource.CreateInput) (*model.Resource, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return &model.Resource{ID: 1, UserID: userID, Name: in.Name}, nil
}

func (m *mockResourceService) Update(ctx context.Context, userID, id int64, in resource.UpdateInput) (*model.Resource, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, id, in)
	}
	return &model.Resource{ID: id, UserID: userID}, nil
}

func (m *mockResourceService) Delete(ctx context.Context, userID, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

func (m *mockResourceService) Stats(ctx context.Context, userID int64) (*model.ResourceStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, userID)
	}
	return &model.ResourceStats{}, nil
}

type mockTaxonomyService[T any] struct {
	listFn   func(ctx context.Context, userID int64) ([]T, error)
	createFn func(ctx context.Context, userID int64, name string) (*T, error)
	renameFn func(ctx context.Context, userID, id int64, name string) (*T, error)
	deleteFn func(ctx context.Context, userID, id int64) error
}

func (m *mockTaxonomyService[T]) List(ctx context.Context, userID int64) ([]T, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []T{}, nil
}

func (m *mockTaxonomyService[T]) Create(ctx context.Context, userID int64, name string) (*T, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, name)
	}
	return new(T), nil
}

func (m *mockTaxonomyService[T]) Rename(ctx context.Context, userID, id int64, name string) (*T, error) {
	if m.renameFn != nil {
		return m.renameFn(ctx, userID, id, name)
	}
	return new(T), nil
}

func (m *mockTaxonomyService[T]) Delete(ctx context.Context, userID, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

type mockSourceService struct {
	listFn     func(ctx context.Context, userID int64) ([]model.Source, error)
	registerFn func(ctx context.Context, userID int64, in source.RegisterInput) (*model.Source, error)
	deleteFn   func(ctx context.Context, userID, id int64) error
}

func (m *mockSourceService) List(ctx context.Context, userID int64) ([]model.Source, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []model.Source{}, nil
}

func (m *mockSourceService) Register(ctx context.Context, userID int64, in source.RegisterInput) (*model.Source, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, userID, in)
	}
	return &model.Source{ID: 1, UserID: userID, FeedURL: in.URL}, nil
}

func (m *mockSourceService) Delete(ctx context.Context, userID, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

type mockAIService struct {
	summarizeFn       func(ctx context.Context, userID, resourceID int64, save bool) (*ai.SummaryResponse, error)
	categorizeFn      func(ctx context.Context, userID, resourceID int64, save bool) (*ai.CategorizeResponse, error)
	predictMasteryFn  func(ctx context.Context, userID, resourceID int64, save bool) (*ai.MasteryResponse, error)
	recommendationsFn func(ctx context.Context, userID int64, limit int) ([]ai.Recommendation, error)
	insightsFn        func(ctx context.Context, userID, resourceID int64) (*ai.Insights, error)
}

func (m *mockAIService) SummarizeNotes(ctx context.Context, userID, resourceID int64, save bool) (*ai.SummaryResponse, error) {
	if m.summarizeFn != nil {
		return m.summarizeFn(ctx, userID, resourceID, save)
	}
	return &ai.SummaryResponse{ResourceID: resourceID}, nil
}

func (m *mockAIService) Categorize(ctx context.Context, userID, resourceID int64, save bool) (*ai.CategorizeResponse, error) {
	if m.categorizeFn != nil {
		return m.categorizeFn(ctx, userID, resourceID, save)
	}
	return &ai.CategorizeResponse{ResourceID: resourceID}, nil
}

func (m *mockAIService) PredictMastery(ctx context.Context, userID, resourceID int64, save bool) (*ai.MasteryResponse, error) {
	if m.predictMasteryFn != nil {
		return m.predictMasteryFn(ctx, userID, resourceID, save)
	}
	return &ai.MasteryResponse{ResourceID: resourceID}, nil
}

func (m *mockAIService) Recommendations(ctx context.Context, userID int64, limit int) ([]ai.Recommendation, error) {
	if m.recommendationsFn != nil {
		return m.recommendationsFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockAIService) Insights(ctx context.Context, userID, resourceID int64) (*ai.Insights, error) {
	if m.insightsFn != nil {
		return m.insightsFn(ctx, userID, resourceID)
	}
	return &ai.Insights{ResourceID: resourceID}, nil
}

// --- ヘルパー ---

var testUser = &model.User{ID: 10, Email: "alice@example.com", Name: "Alice"}

// withUser は認証済みユーザーをコンテキストに注入したリクエストを返す。
func withUser(req *http.Request, u *model.User) *http.Request {
	return req.WithContext(middleware.ContextWithUser(req.Context(), u))
}

// jsonRequest はJSONボディ付きの認証済みリクエストを生成する。
func jsonRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return withUser(req, testUser)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
	return v
}

// assertDetail はステータスコードとエラーコードを検証する。
func assertDetail(t *testing.T, w *httptest.ResponseRecorder, status int, code string) middleware.DetailResponseBody {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d\nbody: %s", w.Code, status, w.Body.String())
	}
	body := decodeBody[middleware.DetailResponseBody](t, w)
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
	return body
}

// withID はchiのURLパラメータ {id} を設定したリクエストを返す。
func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
