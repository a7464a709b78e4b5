package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/skillstack/internal/ai"
	"github.com/hitoshi/skillstack/internal/middleware"
	"github.com/hitoshi/skillstack/internal/model"
)

// defaultRecommendationLimit は limit 未指定時のおすすめ件数。
const defaultRecommendationLimit = 5

// AIServiceInterface はAIハンドラーが必要とするサービスインターフェース。
// モデル呼び出しの失敗はエラーではなく、応答の error フィールドで返る。
type AIServiceInterface interface {
	SummarizeNotes(ctx context.Context, userID, resourceID int64, save bool) (*ai.SummaryResponse, error)
	Categorize(ctx context.Context, userID, resourceID int64, save bool) (*ai.CategorizeResponse, error)
	PredictMastery(ctx context.Context, userID, resourceID int64, save bool) (*ai.MasteryResponse, error)
	Recommendations(ctx context.Context, userID int64, limit int) ([]ai.Recommendation, error)
	Insights(ctx context.Context, userID, resourceID int64) (*ai.Insights, error)
}

// AIHandler はAI機能のHTTPハンドラー。
type AIHandler struct {
	service AIServiceInterface
}

// NewAIHandler はAIHandlerを生成する。
func NewAIHandler(service AIServiceInterface) *AIHandler {
	return &AIHandler{service: service}
}

// aiResourceRequest はリソースを対象とするAI機能のリクエスト。save_to_resource の既定値は true。
type aiResourceRequest struct {
	ResourceID     int64 `json:"resource_id"`
	SaveToResource *bool `json:"save_to_resource"`
}

func (req aiResourceRequest) save() bool {
	return req.SaveToResource == nil || *req.SaveToResource
}

type recommendationsResponse struct {
	Recommendations []ai.Recommendation `json:"recommendations"`
}

// decodeAIRequest はリクエストを読み、resource_id を検証する。
func decodeAIRequest(w http.ResponseWriter, r *http.Request) (aiResourceRequest, bool) {
	var req aiResourceRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	if req.ResourceID <= 0 {
		middleware.WriteDetailResponse(w, http.StatusBadRequest, model.NewValidationError("resource_id is required"))
		return req, false
	}
	return req, true
}

// SummarizeNotes はノートの要約と重要概念の抽出を行う。
// POST /api/ai/summarize-notes
func (h *AIHandler) SummarizeNotes(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeAIRequest(w, r)
	if !ok {
		return
	}

	res, err := h.service.SummarizeNotes(r.Context(), user.ID, req.ResourceID, req.save())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Categorize はリソースを自動分類する。
// POST /api/ai/categorize
func (h *AIHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeAIRequest(w, r)
	if !ok {
		return
	}

	res, err := h.service.Categorize(r.Context(), user.ID, req.ResourceID, req.save())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PredictMastery は完了予定日を予測する。
// POST /api/ai/predict-mastery
func (h *AIHandler) PredictMastery(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeAIRequest(w, r)
	if !ok {
		return
	}

	res, err := h.service.PredictMastery(r.Context(), user.ID, req.ResourceID, req.save())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Recommendations は次に取り組むリソースのおすすめを返す。
// GET /api/ai/recommendations?limit=5
func (h *AIHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	limit := defaultRecommendationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteDetailResponse(w, http.StatusBadRequest, model.NewValidationError("limit must be an integer"))
			return
		}
		limit = n
	}

	recs, err := h.service.Recommendations(r.Context(), user.ID, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if recs == nil {
		recs = []ai.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{Recommendations: recs})
}

// Insights は保存済みのAI分析結果を返す。
// GET /api/ai/insights/{id}
func (h *AIHandler) Insights(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := h.service.Insights(r.Context(), user.ID, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
