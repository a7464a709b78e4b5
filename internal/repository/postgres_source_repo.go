package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/model"
)

// PostgresSourceRepo はSourceRepositoryのPostgreSQL実装。
type PostgresSourceRepo struct {
	store   *datastore.Store
	sources *datastore.Table[model.Source]
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(store *datastore.Store) *PostgresSourceRepo {
	return &PostgresSourceRepo{
		store:   store,
		sources: datastore.MustOpen[model.Source](store, "source"),
	}
}

func (r *PostgresSourceRepo) ListByUser(ctx context.Context, userID int64) ([]model.Source, error) {
	return r.sources.FindMany(ctx, datastore.Where{"user_id": userID})
}

func (r *PostgresSourceRepo) FindByID(ctx context.Context, userID, id int64) (*model.Source, error) {
	return r.sources.FindFirst(ctx, datastore.Where{"id": id, "user_id": userID})
}

func (r *PostgresSourceRepo) FindByFeedURL(ctx context.Context, userID int64, feedURL string) (*model.Source, error) {
	return r.sources.FindFirst(ctx, datastore.Where{"user_id": userID, "feed_url": feedURL})
}

func (r *PostgresSourceRepo) Create(ctx context.Context, source *model.Source) (*model.Source, error) {
	return r.sources.Create(ctx, datastore.Values{
		"user_id":          source.UserID,
		"feed_url":         source.FeedURL,
		"site_url":         source.SiteURL,
		"title":            source.Title,
		"resource_type_id": source.ResourceTypeID,
	})
}

func (r *PostgresSourceRepo) Delete(ctx context.Context, userID, id int64) (*model.Source, error) {
	return r.sources.Delete(ctx, datastore.Where{"id": id, "user_id": userID})
}

// ClaimDue はフェッチ対象のソースを排他的に取得する。
func (r *PostgresSourceRepo) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]model.Source, error) {
	query := fmt.Sprintf(`UPDATE sources SET next_fetch_at = now() + make_interval(secs => $2)
		WHERE id IN (
			SELECT id FROM sources
			WHERE fetch_status = 'active' AND next_fetch_at <= now()
			ORDER BY next_fetch_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, r.sources.Entity().SelectList())

	sources := []model.Source{}
	if err := sqlx.SelectContext(ctx, r.store.Ext(), &sources, query, limit, lease.Seconds()); err != nil {
		return nil, fmt.Errorf("failed to claim due sources: %w", err)
	}
	return sources, nil
}

// UpdateFetchState はフェッチ状態を更新する。
func (r *PostgresSourceRepo) UpdateFetchState(ctx context.Context, source *model.Source) error {
	updated, err := r.sources.Update(ctx, datastore.Where{"id": source.ID}, datastore.Values{
		"fetch_status":       string(source.FetchStatus),
		"consecutive_errors": source.ConsecutiveErrors,
		"error_message":      source.ErrorMessage,
		"next_fetch_at":      source.NextFetchAt,
		"etag":               source.ETag,
		"last_modified":      source.LastModified,
		"last_fetched_at":    source.LastFetchedAt,
		"title":              source.Title,
	})
	if err != nil {
		return fmt.Errorf("failed to update fetch state: %w", err)
	}
	if updated == nil {
		return fmt.Errorf("source %d not found", source.ID)
	}
	return nil
}

var _ SourceRepository = (*PostgresSourceRepo)(nil)
