package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/repository"
)

// InUseFunc は分類がリソースから参照されているかを返す。
type InUseFunc func(ctx context.Context, userID, id int64) (bool, error)

// TaxonomyService はリソース種別・プラットフォームのCRUDを提供する。
type TaxonomyService[T any] struct {
	repo  repository.TaxonomyRepository[T]
	inUse InUseFunc
	idOf  func(*T) int64
	label string
	noun  string
}

// NewTypeService はリソース種別用のサービスを生成する。
func NewTypeService(repo repository.TaxonomyRepository[model.ResourceType], resources repository.ResourceRepository) *TaxonomyService[model.ResourceType] {
	return &TaxonomyService[model.ResourceType]{
		repo:  repo,
		inUse: resources.IsTypeInUse,
		idOf:  func(t *model.ResourceType) int64 { return t.ID },
		label: "Resource type",
		noun:  "type",
	}
}

// NewPlatformService はプラットフォーム用のサービスを生成する。
func NewPlatformService(repo repository.TaxonomyRepository[model.ResourcePlatform], resources repository.ResourceRepository) *TaxonomyService[model.ResourcePlatform] {
	return &TaxonomyService[model.ResourcePlatform]{
		repo:  repo,
		inUse: resources.IsPlatformInUse,
		idOf:  func(p *model.ResourcePlatform) int64 { return p.ID },
		label: "Resource platform",
		noun:  "platform",
	}
}

func (s *TaxonomyService[T]) List(ctx context.Context, userID int64) ([]T, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss: %w", s.noun, err)
	}
	return items, nil
}

// Create は名前がユーザー内で一意であることを確認して作成する。
func (s *TaxonomyService[T]) Create(ctx context.Context, userID int64, name string) (*T, error) {
	name, err := s.normalize(ctx, userID, 0, name)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.Create(ctx, userID, name)
	if err != nil {
		if errors.Is(err, datastore.ErrConflict) {
			return nil, model.NewConflictError(s.label + " already exists")
		}
		return nil, fmt.Errorf("failed to create %s: %w", s.noun, err)
	}
	return item, nil
}

// Rename は名前を変更する。他ユーザーのものは NotFound。
func (s *TaxonomyService[T]) Rename(ctx context.Context, userID, id int64, name string) (*T, error) {
	current, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", s.noun, err)
	}
	if current == nil {
		return nil, s.notFound()
	}
	name, err = s.normalize(ctx, userID, id, name)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.Rename(ctx, userID, id, name)
	if err != nil {
		if errors.Is(err, datastore.ErrConflict) {
			return nil, model.NewConflictError(s.label + " already exists")
		}
		return nil, fmt.Errorf("failed to rename %s: %w", s.noun, err)
	}
	if item == nil {
		return nil, s.notFound()
	}
	return item, nil
}

// Delete はリソースから参照されていない場合のみ削除する。
func (s *TaxonomyService[T]) Delete(ctx context.Context, userID, id int64) error {
	current, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", s.noun, err)
	}
	if current == nil {
		return s.notFound()
	}
	used, err := s.inUse(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to check %s usage: %w", s.noun, err)
	}
	if used {
		return model.NewResourceInUseError("Cannot delete " + s.noun + " that is in use")
	}
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		if errors.Is(err, datastore.ErrReferenced) {
			return model.NewResourceInUseError("Cannot delete " + s.noun + " that is in use")
		}
		return fmt.Errorf("failed to delete %s: %w", s.noun, err)
	}
	if deleted == nil {
		return s.notFound()
	}
	return nil
}

// normalize は名前を整形し、selfID 以外に同名のものがあれば Conflict を返す。
func (s *TaxonomyService[T]) normalize(ctx context.Context, userID, selfID int64, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", model.NewValidationError("Name is required")
	}
	existing, err := s.repo.FindByName(ctx, userID, name)
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", s.noun, err)
	}
	if existing != nil && s.idOf(existing) != selfID {
		return "", model.NewConflictError(s.label + " already exists")
	}
	return name, nil
}

func (s *TaxonomyService[T]) notFound() error {
	return model.NewNotFoundError(s.label + " not found")
}
