package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/skillstack/internal/ai"
	"github.com/hitoshi/skillstack/internal/model"
)

func TestAIHandler_SummarizeNotes_DefaultSave(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantSave bool
	}{
		{"省略時は保存する", `{"resource_id":3}`, true},
		{"false を指定", `{"resource_id":3,"save_to_resource":false}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSave bool
			svc := &mockAIService{
				summarizeFn: func(ctx context.Context, userID, resourceID int64, save bool) (*ai.SummaryResponse, error) {
					gotSave = save
					return &ai.SummaryResponse{
						ResourceID:   resourceID,
						ResourceName: "Go",
						NoteSummary:  ai.NoteSummary{Summary: "short", KeyConcepts: []string{"goroutines"}},
					}, nil
				},
			}

			w := httptest.NewRecorder()
			NewAIHandler(svc).SummarizeNotes(w, jsonRequest(http.MethodPost, "/api/ai/summarize-notes", tt.body))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if gotSave != tt.wantSave {
				t.Errorf("save = %v, want %v", gotSave, tt.wantSave)
			}
			body := decodeBody[map[string]any](t, w)
			if body["summary"] != "short" || body["resource_id"] != float64(3) {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestAIHandler_RequiresResourceID(t *testing.T) {
	w := httptest.NewRecorder()
	NewAIHandler(&mockAIService{}).Categorize(w, jsonRequest(http.MethodPost, "/api/ai/categorize", `{}`))

	assertDetail(t, w, http.StatusBadRequest, model.ErrCodeValidation)
}

// TestAIHandler_Categorize_FallbackIs200 はモデル失敗時も200でフォールバックと error を返すことを検証する。
func TestAIHandler_Categorize_FallbackIs200(t *testing.T) {
	svc := &mockAIService{
		categorizeFn: func(ctx context.Context, userID, resourceID int64, save bool) (*ai.CategorizeResponse, error) {
			return &ai.CategorizeResponse{
				ResourceID:     resourceID,
				Categorization: ai.Categorization{Category: "Uncategorized", Error: "model unavailable"},
			}, nil
		},
	}

	w := httptest.NewRecorder()
	NewAIHandler(svc).Categorize(w, jsonRequest(http.MethodPost, "/api/ai/categorize", `{"resource_id":1}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody[map[string]any](t, w)
	if body["category"] != "Uncategorized" || body["error"] != "model unavailable" {
		t.Errorf("body = %v", body)
	}
}

func TestAIHandler_PredictMastery_NotOwned(t *testing.T) {
	svc := &mockAIService{
		predictMasteryFn: func(context.Context, int64, int64, bool) (*ai.MasteryResponse, error) {
			return nil, model.NewNotFoundError("Resource not found or not authorized")
		},
	}
	w := httptest.NewRecorder()
	NewAIHandler(svc).PredictMastery(w, jsonRequest(http.MethodPost, "/api/ai/predict-mastery", `{"resource_id":77}`))

	assertDetail(t, w, http.StatusNotFound, model.ErrCodeNotFound)
}

func TestAIHandler_Recommendations(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantCode  int
	}{
		{"既定は5件", "", 5, http.StatusOK},
		{"limit 指定", "?limit=12", 12, http.StatusOK},
		{"数値以外", "?limit=many", 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLimit := 0
			svc := &mockAIService{
				recommendationsFn: func(ctx context.Context, userID int64, limit int) ([]ai.Recommendation, error) {
					gotLimit = limit
					return nil, nil
				},
			}
			w := httptest.NewRecorder()
			NewAIHandler(svc).Recommendations(w, jsonRequest(http.MethodGet, "/api/ai/recommendations"+tt.query, ""))

			if w.Code != tt.wantCode || gotLimit != tt.wantLimit {
				t.Fatalf("status = %d, limit = %d", w.Code, gotLimit)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			// 空でも null ではなく [] を返す
			if got := w.Body.String(); got != "{\"recommendations\":[]}\n" {
				t.Errorf("body = %q", got)
			}
		})
	}
}

func TestAIHandler_Insights(t *testing.T) {
	summary := "Concurrency patterns"
	svc := &mockAIService{
		insightsFn: func(ctx context.Context, userID, resourceID int64) (*ai.Insights, error) {
			return &ai.Insights{ResourceID: resourceID, AISummary: &summary, AITags: []string{"go", "channels"}}, nil
		},
	}
	w := httptest.NewRecorder()
	NewAIHandler(svc).Insights(w, withID(jsonRequest(http.MethodGet, "/api/ai/insights/4", ""), "4"))

	body := decodeBody[ai.Insights](t, w)
	if body.ResourceID != 4 || body.AISummary == nil || len(body.AITags) != 2 {
		t.Errorf("body = %+v", body)
	}
}
