package datastore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store はデータベース接続（またはトランザクション）とレジストリを束ねる。
// ステートレスで、リクエストごとに生成しても使い回してもよい。
type Store struct {
	db       *sqlx.DB
	ext      sqlx.ExtContext
	registry Registry
}

// New は接続プールとレジストリから Store を生成する。
func New(db *sqlx.DB, registry Registry) *Store {
	return &Store{db: db, ext: db, registry: registry}
}

// Registry はこの Store が参照するレジストリを返す。
func (s *Store) Registry() Registry {
	return s.registry
}

// InTx は fn を1つのトランザクション内で実行する。
// fn がエラーを返すかパニックした場合はロールバックし、それ以外はコミットする。
// 既にトランザクション内の Store から呼ばれた場合はそのまま fn を実行する。
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) (err error) {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&Store{ext: tx, registry: s.registry}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ext は専用SQLを発行するための実行器を返す。InTx 内ではトランザクションを返す。
// 汎用CRUDで表現できない問い合わせ（一括削除、SKIP LOCKED など）にのみ使う。
func (s *Store) Ext() sqlx.ExtContext {
	return s.ext
}
