package repository

import (
	"context"

	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/model"
)

// PostgresTaxonomyRepo はTaxonomyRepositoryのPostgreSQL実装。
// 種別とプラットフォームは同じ列構成のため、エンティティ名だけを変えて共有する。
type PostgresTaxonomyRepo[T any] struct {
	table *datastore.Table[T]
}

// NewPostgresResourceTypeRepo はリソース種別用のリポジトリを生成する。
func NewPostgresResourceTypeRepo(store *datastore.Store) *PostgresTaxonomyRepo[model.ResourceType] {
	return &PostgresTaxonomyRepo[model.ResourceType]{table: datastore.MustOpen[model.ResourceType](store, "resourcetype")}
}

// NewPostgresResourcePlatformRepo はプラットフォーム用のリポジトリを生成する。
func NewPostgresResourcePlatformRepo(store *datastore.Store) *PostgresTaxonomyRepo[model.ResourcePlatform] {
	return &PostgresTaxonomyRepo[model.ResourcePlatform]{table: datastore.MustOpen[model.ResourcePlatform](store, "resourceplatform")}
}

func (r *PostgresTaxonomyRepo[T]) ListByUser(ctx context.Context, userID int64) ([]T, error) {
	return r.table.FindMany(ctx, datastore.Where{"user_id": userID})
}

func (r *PostgresTaxonomyRepo[T]) FindByID(ctx context.Context, userID, id int64) (*T, error) {
	return r.table.FindFirst(ctx, datastore.Where{"id": id, "user_id": userID})
}

func (r *PostgresTaxonomyRepo[T]) FindByName(ctx context.Context, userID int64, name string) (*T, error) {
	return r.table.FindFirst(ctx, datastore.Where{"user_id": userID, "name": name})
}

func (r *PostgresTaxonomyRepo[T]) Create(ctx context.Context, userID int64, name string) (*T, error) {
	return r.table.Create(ctx, datastore.Values{"user_id": userID, "name": name})
}

func (r *PostgresTaxonomyRepo[T]) Rename(ctx context.Context, userID, id int64, name string) (*T, error) {
	return r.table.Update(ctx, datastore.Where{"id": id, "user_id": userID}, datastore.Values{"name": name})
}

func (r *PostgresTaxonomyRepo[T]) Delete(ctx context.Context, userID, id int64) (*T, error) {
	return r.table.Delete(ctx, datastore.Where{"id": id, "user_id": userID})
}

var (
	_ TaxonomyRepository[model.ResourceType]     = (*PostgresTaxonomyRepo[model.ResourceType])(nil)
	_ TaxonomyRepository[model.ResourcePlatform] = (*PostgresTaxonomyRepo[model.ResourcePlatform])(nil)
)
