package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/repository"
)

const (
	// DefaultTimeout はモデル呼び出し1回あたりの既定のタイムアウト。
	DefaultTimeout = 30 * time.Second

	// MaxRecommendations はおすすめ件数の上限。
	MaxRecommendations = 20

	tagSeparator = ", "
)

// ResourceStore はAI機能が利用するリソース操作。
type ResourceStore interface {
	Get(ctx context.Context, userID, id int64) (*model.Resource, error)
	List(ctx context.Context, userID int64) ([]model.Resource, error)
	SaveAIFields(ctx context.Context, userID, id int64, changes datastore.Values) (*model.Resource, error)
}

// CallRecorder はAI呼び出しの結果を記録する。
type CallRecorder interface {
	RecordAICall(feature, outcome string, duration time.Duration)
}

// Service はAI機能のサービス層。
type Service struct {
	gen       Generator
	resources ResourceStore
	types     repository.TaxonomyRepository[model.ResourceType]
	platforms repository.TaxonomyRepository[model.ResourcePlatform]
	recorder  CallRecorder
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	gen Generator,
	resources ResourceStore,
	types repository.TaxonomyRepository[model.ResourceType],
	platforms repository.TaxonomyRepository[model.ResourcePlatform],
	recorder CallRecorder,
	timeout time.Duration,
	logger *slog.Logger,
) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		gen:       gen,
		resources: resources,
		types:     types,
		platforms: platforms,
		recorder:  recorder,
		timeout:   timeout,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock はテスト用に現在時刻の取得関数を差し替える。
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SummaryResponse はノート要約の応答。
type SummaryResponse struct {
	ResourceID   int64  `json:"resource_id"`
	ResourceName string `json:"resource_name"`
	NoteSummary
}

// SummarizeNotes はリソースのノートを要約し、必要に応じて ai_summary / ai_tags に保存する。
func (s *Service) SummarizeNotes(ctx context.Context, userID, resourceID int64, save bool) (*SummaryResponse, error) {
	r, err := s.resources.Get(ctx, userID, resourceID)
	if err != nil {
		return nil, err
	}
	if r.Notes == nil || *r.Notes == "" {
		return nil, model.NewValidationError("Resource has no notes to summarize")
	}

	typeName, err := s.typeName(ctx, userID, r.ResourceTypeID)
	if err != nil {
		return nil, err
	}

	res := call(ctx, s, "summarize", func(ctx context.Context) Result[NoteSummary] {
		return Summarize(ctx, s.gen, SummaryInput{Notes: *r.Notes, ResourceName: r.Name, ResourceType: typeName})
	})

	if save && res.Value.Summary != "" {
		_, err := s.resources.SaveAIFields(ctx, userID, resourceID, datastore.Values{
			"ai_summary": res.Value.Summary,
			"ai_tags":    strings.Join(res.Value.KeyConcepts, tagSeparator),
		})
		if err != nil {
			return nil, err
		}
	}

	return &SummaryResponse{ResourceID: r.ID, ResourceName: r.Name, NoteSummary: res.Value}, nil
}

// CategorizeResponse は自動分類の応答。
type CategorizeResponse struct {
	ResourceID   int64  `json:"resource_id"`
	ResourceName string `json:"resource_name"`
	Categorization
}

// Categorize はリソースを分類し、成功時のみ ai_category / ai_tags に保存する。
func (s *Service) Categorize(ctx context.Context, userID, resourceID int64, save bool) (*CategorizeResponse, error) {
	r, err := s.resources.Get(ctx, userID, resourceID)
	if err != nil {
		return nil, err
	}
	typeName, err := s.typeName(ctx, userID, r.ResourceTypeID)
	if err != nil {
		return nil, err
	}
	platformName, err := s.platformName(ctx, userID, r.ResourcePlatformID)
	if err != nil {
		return nil, err
	}

	in := CategorizeInput{ResourceName: r.Name, ResourceType: typeName, Platform: platformName}
	if r.Description != nil {
		in.Description = *r.Description
	}
	res := call(ctx, s, "categorize", func(ctx context.Context) Result[Categorization] {
		return Categorize(ctx, s.gen, in)
	})

	if save && res.OK() {
		_, err := s.resources.SaveAIFields(ctx, userID, resourceID, datastore.Values{
			"ai_category": res.Value.Category,
			"ai_tags":     strings.Join(res.Value.SkillTags, tagSeparator),
		})
		if err != nil {
			return nil, err
		}
	}

	return &CategorizeResponse{ResourceID: r.ID, ResourceName: r.Name, Categorization: res.Value}, nil
}

// MasteryResponse は習得日予測の応答。
type MasteryResponse struct {
	ResourceID int64 `json:"resource_id"`
	MasteryPrediction
}

// PredictMastery は完了日を予測し、日付を解釈できた場合のみ ai_mastery_date に保存する。
func (s *Service) PredictMastery(ctx context.Context, userID, resourceID int64, save bool) (*MasteryResponse, error) {
	r, err := s.resources.Get(ctx, userID, resourceID)
	if err != nil {
		return nil, err
	}
	all, err := s.resources.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	in := NewMasteryInput(*r, all, s.now())
	res := call(ctx, s, "predict_mastery", func(ctx context.Context) Result[MasteryPrediction] {
		return PredictMastery(ctx, s.gen, in)
	})

	if date, ok := res.Value.ParsedDate(); save && ok {
		if _, err := s.resources.SaveAIFields(ctx, userID, resourceID, datastore.Values{"ai_mastery_date": date}); err != nil {
			return nil, err
		}
	}

	return &MasteryResponse{ResourceID: r.ID, MasteryPrediction: res.Value}, nil
}

// Recommendations は未着手のリソースから最大 limit 件のおすすめを返す。失敗時は空のリスト。
func (s *Service) Recommendations(ctx context.Context, userID int64, limit int) ([]Recommendation, error) {
	if limit < 1 || limit > MaxRecommendations {
		return nil, model.NewValidationError(fmt.Sprintf("limit must be between 1 and %d", MaxRecommendations))
	}
	all, err := s.resources.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	types, err := s.types.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource types: %w", err)
	}
	platforms, err := s.platforms.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource platforms: %w", err)
	}

	in := RecommendInput{
		Resources:     all,
		TypeNames:     make(map[int64]string, len(types)),
		PlatformNames: make(map[int64]string, len(platforms)),
		Limit:         limit,
	}
	for _, t := range types {
		in.TypeNames[t.ID] = t.Name
	}
	for _, p := range platforms {
		in.PlatformNames[p.ID] = p.Name
	}

	res := call(ctx, s, "recommend", func(ctx context.Context) Result[[]Recommendation] {
		return Recommend(ctx, s.gen, in)
	})
	return res.Value, nil
}

// Insights はリソースに保存済みのAI分析結果。
type Insights struct {
	ResourceID    int64    `json:"resource_id"`
	ResourceName  string   `json:"resource_name"`
	AISummary     *string  `json:"ai_summary"`
	AITags        []string `json:"ai_tags"`
	AICategory    *string  `json:"ai_category"`
	AIMasteryDate *string  `json:"ai_mastery_date"`
}

// Insights は保存済みのAI分析結果を返す。モデルは呼ばない。
func (s *Service) Insights(ctx context.Context, userID, resourceID int64) (*Insights, error) {
	r, err := s.resources.Get(ctx, userID, resourceID)
	if err != nil {
		return nil, err
	}
	out := &Insights{
		ResourceID:   r.ID,
		ResourceName: r.Name,
		AISummary:    r.AISummary,
		AITags:       []string{},
		AICategory:   r.AICategory,
	}
	if r.AITags != nil && *r.AITags != "" {
		out.AITags = strings.Split(*r.AITags, tagSeparator)
	}
	if r.AIMasteryDate != nil {
		d := r.AIMasteryDate.UTC().Format(time.RFC3339)
		out.AIMasteryDate = &d
	}
	return out, nil
}

// call は呼び出し元のキャンセルから切り離したコンテキストで fn を実行し、結果を記録する。
// クライアントが切断してもモデル呼び出しは timeout まで継続する。
func call[T any](ctx context.Context, s *Service, feature string, fn func(context.Context) Result[T]) Result[T] {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	res := fn(callCtx)
	elapsed := time.Since(start)

	outcome := "success"
	if !res.OK() {
		outcome = "fallback"
		s.logger.Warn("AI機能がフォールバックしました",
			slog.String("feature", feature),
			slog.String("error", res.Err.Error()),
		)
	}
	if s.recorder != nil {
		s.recorder.RecordAICall(feature, outcome, elapsed)
	}
	return res
}

func (s *Service) typeName(ctx context.Context, userID int64, id *int64) (string, error) {
	if id == nil {
		return "", nil
	}
	t, err := s.types.FindByID(ctx, userID, *id)
	if err != nil {
		return "", fmt.Errorf("failed to get resource type: %w", err)
	}
	if t == nil {
		return "", nil
	}
	return t.Name, nil
}

func (s *Service) platformName(ctx context.Context, userID int64, id *int64) (string, error) {
	if id == nil {
		return "", nil
	}
	p, err := s.platforms.FindByID(ctx, userID, *id)
	if err != nil {
		return "", fmt.Errorf("failed to get resource platform: %w", err)
	}
	if p == nil {
		return "", nil
	}
	return p.Name, nil
}
