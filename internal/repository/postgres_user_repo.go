package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/model"
)

// PostgresUserRepo はUserRepositoryのPostgreSQL実装。
type PostgresUserRepo struct {
	store *datastore.Store
	users *datastore.Table[model.User]
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(store *datastore.Store) *PostgresUserRepo {
	return &PostgresUserRepo{
		store: store,
		users: datastore.MustOpen[model.User](store, "user"),
	}
}

// FindByID は指定IDのユーザーを取得する。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return r.users.FindFirst(ctx, datastore.Where{"id": id})
}

// FindByEmail はメールアドレスでユーザーを取得する。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.users.FindFirst(ctx, datastore.Where{"email": datastore.Equals(email)})
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, email, passwordHash, name string) (*model.User, error) {
	return r.users.Create(ctx, datastore.Values{
		"email":         email,
		"password_hash": passwordHash,
		"name":          name,
	})
}

// UpdateProfile はプロフィールを更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id int64, changes datastore.Values) (*model.User, error) {
	return r.users.Update(ctx, datastore.Where{"id": id}, changes)
}

// accountTables はアカウント削除時に所有データを消す順序。参照する側から先に削除する。
var accountTables = []string{"resources", "sources", "resource_types", "resource_platforms"}

// DeleteAccount はユーザーと所有データを同一トランザクションで削除する。
func (r *PostgresUserRepo) DeleteAccount(ctx context.Context, id int64) error {
	return r.store.InTx(ctx, func(tx *datastore.Store) error {
		for _, table := range accountTables {
			if _, err := tx.Ext().ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = $1", id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}
		deleted, err := datastore.MustOpen[model.User](tx, "user").Delete(ctx, datastore.Where{"id": id})
		if err != nil {
			return err
		}
		if deleted == nil {
			return model.NewUserNotFoundError()
		}
		return nil
	})
}

var _ UserRepository = (*PostgresUserRepo)(nil)
