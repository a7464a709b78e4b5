// Package repository はデータ永続化のインターフェースを定義する。
// 実装はすべて datastore の汎用アクセサ経由で行い、汎用CRUDで表現できない問い合わせのみ専用SQLを持つ。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/skillstack/internal/datastore"
	"github.com/hitoshi/skillstack/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時は datastore.ErrConflict を返す。
	Create(ctx context.Context, email, passwordHash, name string) (*model.User, error)

	// UpdateProfile は name / email を更新する。見つからない場合はnilを返す。
	UpdateProfile(ctx context.Context, id int64, changes datastore.Values) (*model.User, error)

	// DeleteAccount はユーザーと所有データを同一トランザクションで削除する。
	DeleteAccount(ctx context.Context, id int64) error
}

// ResourceRepository は学習リソースの永続化インターフェース。
// userID を取る操作はすべて所有者で絞り込む。
type ResourceRepository interface {
	ListByUser(ctx context.Context, userID int64) ([]model.Resource, error)

	// FindByID は所有者が一致するリソースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id int64) (*model.Resource, error)

	Create(ctx context.Context, values datastore.Values) (*model.Resource, error)

	// Update は変更列のみ更新する。見つからない場合はnilを返す。
	Update(ctx context.Context, userID, id int64, changes datastore.Values) (*model.Resource, error)

	// Delete は削除したリソースを返す。見つからない場合はnilを返す。
	Delete(ctx context.Context, userID, id int64) (*model.Resource, error)

	// IsTypeInUse は種別を参照するリソースが存在するかを返す。
	IsTypeInUse(ctx context.Context, userID, typeID int64) (bool, error)

	// IsPlatformInUse はプラットフォームを参照するリソースが存在するかを返す。
	IsPlatformInUse(ctx context.Context, userID, platformID int64) (bool, error)

	// InsertFromSource はフィードのエントリを未着手リソースとして取り込む。
	// (source_id, source_guid) が既存のエントリはスキップし、新規に挿入した件数を返す。
	InsertFromSource(ctx context.Context, source *model.Source, entries []model.SourceEntry) (int, error)
}

// TaxonomyRepository はリソース種別・プラットフォームのようなユーザー定義の分類の永続化インターフェース。
type TaxonomyRepository[T any] interface {
	ListByUser(ctx context.Context, userID int64) ([]T, error)
	FindByID(ctx context.Context, userID, id int64) (*T, error)
	FindByName(ctx context.Context, userID int64, name string) (*T, error)
	Create(ctx context.Context, userID int64, name string) (*T, error)
	Rename(ctx context.Context, userID, id int64, name string) (*T, error)
	Delete(ctx context.Context, userID, id int64) (*T, error)
}

// SourceRepository はフィード取り込み元の永続化インターフェース。
type SourceRepository interface {
	ListByUser(ctx context.Context, userID int64) ([]model.Source, error)

	// FindByID は所有者が一致するソースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id int64) (*model.Source, error)

	// FindByFeedURL は同一ユーザーが同じフィードを登録済みかを調べる。見つからない場合はnilを返す。
	FindByFeedURL(ctx context.Context, userID int64, feedURL string) (*model.Source, error)

	Create(ctx context.Context, source *model.Source) (*model.Source, error)

	Delete(ctx context.Context, userID, id int64) (*model.Source, error)

	// ClaimDue はフェッチ対象（active かつ next_fetch_at <= now()）のソースを最大 limit 件取得し、
	// 他のワーカーが同じソースを取らないよう next_fetch_at を lease だけ先送りする。
	// FOR UPDATE SKIP LOCKED で複数ワーカー間の競合を避ける。
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]model.Source, error)

	// UpdateFetchState はフェッチ状態（fetch_status, consecutive_errors, error_message,
	// next_fetch_at, etag, last_modified, last_fetched_at）を更新する。
	UpdateFetchState(ctx context.Context, source *model.Source) error
}
