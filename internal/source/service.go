package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/repository"
)

// maxSourcesPerUser はユーザーあたりのソース登録上限。
const maxSourcesPerUser = 50

const msgSourceNotFound = "Source not found or not authorized"

// FeedDiscoverer はURLからフィードを検出するインターフェース。
type FeedDiscoverer interface {
	Discover(ctx context.Context, rawURL string) (*Feed, error)
}

// RegisterInput はソース登録の入力。
type RegisterInput struct {
	URL            string `json:"url"`
	ResourceTypeID *int64 `json:"resource_type_id"`
}

// Service はソース管理のサービス層。
type Service struct {
	sources    repository.SourceRepository
	types      repository.TaxonomyRepository[model.ResourceType]
	discoverer FeedDiscoverer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	sources repository.SourceRepository,
	types repository.TaxonomyRepository[model.ResourceType],
	discoverer FeedDiscoverer,
) *Service {
	return &Service{sources: sources, types: types, discoverer: discoverer}
}

func (s *Service) List(ctx context.Context, userID int64) ([]model.Source, error) {
	sources, err := s.sources.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// Register はフィードを検出してソースとして登録する。
// 取り込み時の既定の種別は呼び出し元が所有するもののみ受け付け、それ以外は無視する。
func (s *Service) Register(ctx context.Context, userID int64, in RegisterInput) (*model.Source, error) {
	existing, err := s.sources.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}
	if len(existing) >= maxSourcesPerUser {
		return nil, model.NewValidationError(fmt.Sprintf("You can register up to %d sources", maxSourcesPerUser))
	}

	feed, err := s.discoverer.Discover(ctx, in.URL)
	if err != nil {
		return nil, err
	}

	dup, err := s.sources.FindByFeedURL(ctx, userID, feed.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicate source: %w", err)
	}
	if dup != nil {
		return nil, model.NewConflictError("Source already registered")
	}

	var typeID *int64
	if in.ResourceTypeID != nil {
		t, err := s.types.FindByID(ctx, userID, *in.ResourceTypeID)
		if err != nil {
			return nil, fmt.Errorf("failed to get resource type: %w", err)
		}
		if t != nil {
			typeID = &t.ID
		}
	}

	created, err := s.sources.Create(ctx, &model.Source{
		UserID:         userID,
		FeedURL:        feed.URL,
		SiteURL:        feed.SiteURL,
		Title:          feed.Title,
		ResourceTypeID: typeID,
	})
	if err != nil {
		if errors.Is(err, datastore.ErrConflict) {
			return nil, model.NewConflictError("Source already registered")
		}
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	slog.Info("ソースを登録しました",
		slog.Int64("user_id", userID),
		slog.Int64("source_id", created.ID),
		slog.String("feed_url", created.FeedURL),
	)
	return created, nil
}

// Delete はソースを削除する。取り込み済みのリソースは残る。
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	deleted, err := s.sources.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if deleted == nil {
		return model.NewNotFoundError(msgSourceNotFound)
	}
	return nil
}
