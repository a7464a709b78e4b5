// Package resource は学習リソースとその分類（種別・プラットフォーム）のドメインロジックを提供する。
package resource

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

const msgResourceNotFound = "Resource not found or not authorized"

// CreateInput はリソース作成の入力。
type CreateInput struct {
	ResourceTypeID     *int64               `json:"resource_type_id"`
	ResourcePlatformID *int64               `json:"resource_platform_id"`
	Name               string               `json:"name"`
	Description        *string              `json:"description"`
	Notes              *string              `json:"notes"`
	Rating             *int64               `json:"rating"`
	ProgressStatus     model.ProgressStatus `json:"progress_status"`
	EstimatedHours     *int64               `json:"estimated_hours"`
	HoursSpent         *int64               `json:"hours_spent"`
}

// UpdateInput はリソース更新の入力。nil のフィールドは変更しない。
type UpdateInput struct {
	ResourceTypeID     *int64                `json:"resource_type_id"`
	ResourcePlatformID *int64                `json:"resource_platform_id"`
	Name               *string               `json:"name"`
	Description        *string               `json:"description"`
	Notes              *string               `json:"notes"`
	Rating             *int64                `json:"rating"`
	ProgressStatus     *model.ProgressStatus `json:"progress_status"`
	EstimatedHours     *int64                `json:"estimated_hours"`
	HoursSpent         *int64                `json:"hours_spent"`
}

// Service は学習リソースのサービス層。
type Service struct {
	resources repository.ResourceRepository
	types     repository.TaxonomyRepository[model.ResourceType]
	platforms repository.TaxonomyRepository[model.ResourcePlatform]
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	resources repository.ResourceRepository,
	types repository.TaxonomyRepository[model.ResourceType],
	platforms repository.TaxonomyRepository[model.ResourcePlatform],
) *Service {
	return &Service{
		resources: resources,
		types:     types,
		platforms: platforms,
		now:       time.Now,
	}
}

// SetClock はテスト用に現在時刻の取得関数を差し替える。
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// List はユーザーのリソースをID昇順で返す。
func (s *Service) List(ctx context.Context, userID int64) ([]model.Resource, error) {
	resources, err := s.resources.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return resources, nil
}

// Get はユーザーが所有するリソースを返す。
func (s *Service) Get(ctx context.Context, userID, id int64) (*model.Resource, error) {
	r, err := s.resources.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	if r == nil {
		return nil, model.NewNotFoundError(msgResourceNotFound)
	}
	return r, nil
}

// Create はリソースを作成する。
// 他ユーザーの種別・プラットフォームIDは黙って破棄する。
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*model.Resource, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, model.NewValidationError("Name is required")
	}
	status := in.ProgressStatus
	if status == "" {
		status = model.StatusNotStarted
	}
	if err := validateFields(in.Rating, &status, in.EstimatedHours, in.HoursSpent); err != nil {
		return nil, err
	}

	values := datastore.Values{
		"user_id":         userID,
		"name":            name,
		"progress_status": string(status),
		"description":     in.Description,
		"notes":           in.Notes,
		"rating":          in.Rating,
		"estimated_hours": in.EstimatedHours,
	}
	if in.HoursSpent != nil {
		values["hours_spent"] = *in.HoursSpent
	}

	typeID, err := s.ownedTypeID(ctx, userID, in.ResourceTypeID)
	if err != nil {
		return nil, err
	}
	values["resource_type_id"] = typeID

	platformID, err := s.ownedPlatformID(ctx, userID, in.ResourcePlatformID)
	if err != nil {
		return nil, err
	}
	values["resource_platform_id"] = platformID

	now := s.now()
	switch status {
	case model.StatusInProgress:
		values["started_date"] = now
	case model.StatusCompleted:
		values["started_date"] = now
		values["completion_date"] = now
	}

	r, err := s.resources.Create(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	slog.Info("リソースを作成しました", slog.Int64("user_id", userID), slog.Int64("resource_id", r.ID))
	return r, nil
}

// Update は指定されたフィールドのみ更新する。
// in_progress への遷移で開始日、completed への遷移で完了日を記録する。
func (s *Service) Update(ctx context.Context, userID, id int64, in UpdateInput) (*model.Resource, error) {
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validateFields(in.Rating, in.ProgressStatus, in.EstimatedHours, in.HoursSpent); err != nil {
		return nil, err
	}

	changes := datastore.Values{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, model.NewValidationError("Name must not be empty")
		}
		changes["name"] = name
	}
	if in.Description != nil {
		changes["description"] = *in.Description
	}
	if in.Notes != nil {
		changes["notes"] = *in.Notes
	}
	if in.Rating != nil {
		changes["rating"] = *in.Rating
	}
	if in.EstimatedHours != nil {
		changes["estimated_hours"] = *in.EstimatedHours
	}
	if in.HoursSpent != nil {
		changes["hours_spent"] = *in.HoursSpent
	}
	if in.ResourceTypeID != nil {
		typeID, err := s.ownedTypeID(ctx, userID, in.ResourceTypeID)
		if err != nil {
			return nil, err
		}
		if typeID != nil {
			changes["resource_type_id"] = *typeID
		}
	}
	if in.ResourcePlatformID != nil {
		platformID, err := s.ownedPlatformID(ctx, userID, in.ResourcePlatformID)
		if err != nil {
			return nil, err
		}
		if platformID != nil {
			changes["resource_platform_id"] = *platformID
		}
	}

	if in.ProgressStatus != nil {
		next := *in.ProgressStatus
		changes["progress_status"] = string(next)
		now := s.now()
		switch next {
		case model.StatusInProgress:
			if current.StartedDate == nil {
				changes["started_date"] = now
			}
		case model.StatusCompleted:
			if current.ProgressStatus != model.StatusCompleted {
				changes["completion_date"] = now
			}
			if current.StartedDate == nil {
				changes["started_date"] = now
			}
		}
	}

	if len(changes) == 0 {
		return current, nil
	}

	updated, err := s.resources.Update(ctx, userID, id, changes)
	if err != nil {
		return nil, fmt.Errorf("failed to update resource: %w", err)
	}
	if updated == nil {
		return nil, model.NewNotFoundError(msgResourceNotFound)
	}
	return updated, nil
}

// Delete はユーザーが所有するリソースを削除する。
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	deleted, err := s.resources.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	if deleted == nil {
		return model.NewNotFoundError(msgResourceNotFound)
	}
	slog.Info("リソースを削除しました", slog.Int64("user_id", userID), slog.Int64("resource_id", id))
	return nil
}

// SaveAIFields はAI機能の結果をリソースに保存する。
func (s *Service) SaveAIFields(ctx context.Context, userID, id int64, changes datastore.Values) (*model.Resource, error) {
	updated, err := s.resources.Update(ctx, userID, id, changes)
	if err != nil {
		return nil, fmt.Errorf("failed to save AI fields: %w", err)
	}
	if updated == nil {
		return nil, model.NewNotFoundError(msgResourceNotFound)
	}
	return updated, nil
}

// Stats はユーザーのリソースの集計を返す。
func (s *Service) Stats(ctx context.Context, userID int64) (*model.ResourceStats, error) {
	resources, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ComputeStats(resources), nil
}

// ComputeStats はリソース一覧から集計値を計算する。完了率はパーセント表記で、0件のときは0。
func ComputeStats(resources []model.Resource) *model.ResourceStats {
	stats := &model.ResourceStats{TotalResources: len(resources)}
	for _, r := range resources {
		switch r.ProgressStatus {
		case model.StatusCompleted:
			stats.CompletedResources++
		case model.StatusInProgress:
			stats.InProgressResources++
		default:
			stats.NotStartedResources++
		}
		if r.EstimatedHours != nil {
			stats.TotalEstimatedHours += *r.EstimatedHours
		}
		stats.TotalHoursSpent += r.HoursSpent
	}
	if stats.TotalResources > 0 {
		stats.CompletionRate = float64(stats.CompletedResources) / float64(stats.TotalResources) * 100
	}
	return stats
}

func (s *Service) ownedTypeID(ctx context.Context, userID int64, id *int64) (*int64, error) {
	if id == nil {
		return nil, nil
	}
	t, err := s.types.FindByID(ctx, userID, *id)
	if err != nil {
		return nil, fmt.Errorf("failed to get resource type: %w", err)
	}
	if t == nil {
		return nil, nil
	}
	return &t.ID, nil
}

func (s *Service) ownedPlatformID(ctx context.Context, userID int64, id *int64) (*int64, error) {
	if id == nil {
		return nil, nil
	}
	p, err := s.platforms.FindByID(ctx, userID, *id)
	if err != nil {
		return nil, fmt.Errorf("failed to get resource platform: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	return &p.ID, nil
}

func validateFields(rating *int64, status *model.ProgressStatus, estimated, spent *int64) error {
	if rating != nil && (*rating < 1 || *rating > 5) {
		return model.NewValidationError("Rating must be between 1 and 5")
	}
	if status != nil && !status.Valid() {
		return model.NewValidationError("progress_status must be one of not_started, in_progress, completed")
	}
	if estimated != nil && *estimated < 0 {
		return model.NewValidationError("estimated_hours must not be negative")
	}
	if spent != nil && *spent < 0 {
		return model.NewValidationError("hours_spent must not be negative")
	}
	return nil
}
