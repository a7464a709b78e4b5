package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/skillstack/internal/middleware"
	"github.com/hitoshi/skillstack/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// /metrics で公開するハンドラー。nil の場合はルートを登録しない。
	MetricsHandler http.Handler

	AuthService     AuthServiceInterface
	UserService     UserServiceInterface
	ResourceService ResourceServiceInterface
	TypeService     TaxonomyServiceInterface[model.ResourceType]
	PlatformService TaxonomyServiceInterface[model.ResourcePlatform]
	SourceService   SourceServiceInterface
	AIService       AIServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → (Auth) → RateLimit(General) → (RateLimit(AI))
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteDetailResponse(w, http.StatusNotFound, model.NewNotFoundError("Not Found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteDetailResponse(w, http.StatusMethodNotAllowed, &model.APIError{
			Code:    "METHOD_NOT_ALLOWED",
			Message: "Method Not Allowed",
		})
	})

	r.Get("/health", Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService)
	resourceHandler := NewResourceHandler(deps.ResourceService)
	typeHandler := NewTaxonomyHandler(deps.TypeService)
	platformHandler := NewTaxonomyHandler(deps.PlatformService)
	sourceHandler := NewSourceHandler(deps.SourceService)
	aiHandler := NewAIHandler(deps.AIService)

	authn := middleware.NewAuthMiddleware(deps.Authenticator)
	general := deps.RateLimiter.GeneralMiddleware()

	// --- 認証不要のルート（IP単位のレート制限） ---
	r.Group(func(r chi.Router) {
		r.Use(general)
		r.Post("/auth/signup", authHandler.SignUp)
		r.Post("/auth/signin", authHandler.SignIn)
		r.Post("/auth/refresh", authHandler.Refresh)
	})

	// --- 認証が必要なルート（ユーザー単位のレート制限） ---
	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Use(general)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/get_session", authHandler.GetSession)
			r.Put("/users/me", userHandler.UpdateMe)
			r.Post("/logout", authHandler.Logout)
		})

		r.Delete("/api/users/me", userHandler.Withdraw)

		r.Route("/api/resources", func(r chi.Router) {
			r.Get("/", resourceHandler.List)
			r.Post("/", resourceHandler.Create)
			r.Get("/stats/overview", resourceHandler.Stats)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", resourceHandler.Get)
				r.Put("/", resourceHandler.Update)
				r.Delete("/", resourceHandler.Delete)
			})
		})

		r.Route("/api/resource-types", func(r chi.Router) {
			r.Get("/", typeHandler.List)
			r.Post("/", typeHandler.Create)
			r.Put("/{id}", typeHandler.Rename)
			r.Delete("/{id}", typeHandler.Delete)
		})

		r.Route("/api/resource-platforms", func(r chi.Router) {
			r.Get("/", platformHandler.List)
			r.Post("/", platformHandler.Create)
			r.Put("/{id}", platformHandler.Rename)
			r.Delete("/{id}", platformHandler.Delete)
		})

		r.Route("/api/sources", func(r chi.Router) {
			r.Get("/", sourceHandler.List)
			r.Post("/", sourceHandler.Register)
			r.Delete("/{id}", sourceHandler.Delete)
		})

		// AI機能（AI専用レート制限を追加）
		r.Route("/api/ai", func(r chi.Router) {
			r.Use(deps.RateLimiter.AIMiddleware())
			r.Get("/recommendations", aiHandler.Recommendations)
			r.Post("/summarize-notes", aiHandler.SummarizeNotes)
			r.Post("/predict-mastery", aiHandler.PredictMastery)
			r.Post("/categorize", aiHandler.Categorize)
			r.Get("/insights/{id}", aiHandler.Insights)
		})
	})

	return r
}

// Health はプロセスの生存確認に応答する。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
