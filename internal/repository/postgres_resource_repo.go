package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/model"
)

// PostgresResourceRepo はResourceRepositoryのPostgreSQL実装。
type PostgresResourceRepo struct {
	store     *datastore.Store
	resources *datastore.Table[model.Resource]
}

// NewPostgresResourceRepo はPostgresResourceRepoを生成する。
func NewPostgresResourceRepo(store *datastore.Store) *PostgresResourceRepo {
	return &PostgresResourceRepo{
		store:     store,
		resources: datastore.MustOpen[model.Resource](store, "resources"),
	}
}

func (r *PostgresResourceRepo) ListByUser(ctx context.Context, userID int64) ([]model.Resource, error) {
	return r.resources.FindMany(ctx, datastore.Where{"user_id": userID})
}

func (r *PostgresResourceRepo) FindByID(ctx context.Context, userID, id int64) (*model.Resource, error) {
	return r.resources.FindFirst(ctx, datastore.Where{"id": id, "user_id": userID})
}

func (r *PostgresResourceRepo) Create(ctx context.Context, values datastore.Values) (*model.Resource, error) {
	return r.resources.Create(ctx, values)
}

func (r *PostgresResourceRepo) Update(ctx context.Context, userID, id int64, changes datastore.Values) (*model.Resource, error) {
	return r.resources.Update(ctx, datastore.Where{"id": id, "user_id": userID}, changes)
}

func (r *PostgresResourceRepo) Delete(ctx context.Context, userID, id int64) (*model.Resource, error) {
	return r.resources.Delete(ctx, datastore.Where{"id": id, "user_id": userID})
}

func (r *PostgresResourceRepo) IsTypeInUse(ctx context.Context, userID, typeID int64) (bool, error) {
	found, err := r.resources.FindFirst(ctx, datastore.Where{"user_id": userID, "resource_type_id": typeID})
	return found != nil, err
}

func (r *PostgresResourceRepo) IsPlatformInUse(ctx context.Context, userID, platformID int64) (bool, error) {
	found, err := r.resources.FindFirst(ctx, datastore.Where{"user_id": userID, "resource_platform_id": platformID})
	return found != nil, err
}

const insertFromSourceSQL = `INSERT INTO resources
	(user_id, resource_type_id, name, description, notes, progress_status, source_id, source_guid)
	VALUES ($1, $2, $3, $4, $5, 'not_started', $6, $7)
	ON CONFLICT (source_id, source_guid) DO NOTHING`

// InsertFromSource はエントリを1トランザクションで取り込む。
func (r *PostgresResourceRepo) InsertFromSource(ctx context.Context, source *model.Source, entries []model.SourceEntry) (int, error) {
	inserted := 0
	err := r.store.InTx(ctx, func(tx *datastore.Store) error {
		for _, e := range entries {
			res, err := tx.Ext().ExecContext(ctx, insertFromSourceSQL,
				source.UserID, source.ResourceTypeID, e.Title, nullIfEmpty(e.Description), nullIfEmpty(e.Link),
				source.ID, e.GUID)
			if err != nil {
				return fmt.Errorf("failed to insert entry %q: %w", e.GUID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ ResourceRepository = (*PostgresResourceRepo)(nil)
