package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Table は1エンティティに対する汎用CRUDアクセサ。
// T は Entity の各列に対応する db タグを持つ構造体でなければならない。
type Table[T any] struct {
	ext    sqlx.ExtContext
	entity *Entity
}

// Open は Store のレジストリから name のアクセサを取得する。
func Open[T any](s *Store, name string) (*Table[T], error) {
	e, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &Table[T]{ext: s.ext, entity: e}, nil
}

// MustOpen は Open と同じだが、未登録の名前でパニックする。
// 起動時の配線など、名前がコード上の定数である箇所でのみ使う。
func MustOpen[T any](s *Store, name string) *Table[T] {
	t, err := Open[T](s, name)
	if err != nil {
		panic(err)
	}
	return t
}

// Entity はアクセサが対象とするエンティティ定義を返す。
func (t *Table[T]) Entity() *Entity {
	return t.entity
}

// Create は1行を挿入し、採番されたIDと既定値を含む行を返す。
func (t *Table[T]) Create(ctx context.Context, data Values) (*T, error) {
	names, args, err := t.entity.writableColumns(data)
	if err != nil {
		return nil, err
	}

	var query string
	if len(names) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", t.entity.Table, t.entity.SelectList())
	} else {
		placeholders := make([]string, len(names))
		for i := range names {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			t.entity.Table, strings.Join(names, ", "), strings.Join(placeholders, ", "), t.entity.SelectList())
	}

	var row T
	if err := sqlx.GetContext(ctx, t.ext, &row, query, args...); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", t.entity.Name, translate(err))
	}
	return &row, nil
}

// FindFirst は条件に一致する最初の行（id昇順）を返す。一致しなければ nil, nil を返す。
func (t *Table[T]) FindFirst(ctx context.Context, where Where) (*T, error) {
	clause, args, err := t.entity.compileWhere(where, 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id ASC LIMIT 1",
		t.entity.SelectList(), t.entity.Table, whereSQL(clause))

	var row T
	if err := sqlx.GetContext(ctx, t.ext, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find %s: %w", t.entity.Name, err)
	}
	return &row, nil
}

// FindMany は条件に一致するすべての行を id 昇順で返す。
func (t *Table[T]) FindMany(ctx context.Context, where Where) ([]T, error) {
	clause, args, err := t.entity.compileWhere(where, 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id ASC",
		t.entity.SelectList(), t.entity.Table, whereSQL(clause))

	rows := []T{}
	if err := sqlx.SelectContext(ctx, t.ext, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", t.entity.Name, err)
	}
	return rows, nil
}

// Update は where で特定した1行に data を適用し、更新後の行を返す。
// where に id があれば主キーで直接特定し、なければ FindFirst と同じく id 昇順の先頭行を対象にする。
// 対象がなければ nil, nil を返す。
func (t *Table[T]) Update(ctx context.Context, where Where, data Values) (*T, error) {
	names, setArgs, err := t.entity.writableColumns(data)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, &SchemaError{Entity: t.entity.Name, Reason: "no columns to update"}
	}

	sets := make([]string, 0, len(names)+1)
	for i, name := range names {
		sets = append(sets, fmt.Sprintf("%s = $%d", name, i+1))
	}
	if t.entity.TouchColumn != "" {
		sets = append(sets, t.entity.TouchColumn+" = now()")
	}

	target, whereArgs, err := t.target(where, len(names)+1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		t.entity.Table, strings.Join(sets, ", "), target, t.entity.SelectList())

	var row T
	if err := sqlx.GetContext(ctx, t.ext, &row, query, append(setArgs, whereArgs...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update %s: %w", t.entity.Name, translate(err))
	}
	return &row, nil
}

// Delete は Update と同じ方法で特定した1行を削除し、削除した行を返す。
// 対象がなければ nil, nil を返す。
func (t *Table[T]) Delete(ctx context.Context, where Where) (*T, error) {
	target, args, err := t.target(where, 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING %s",
		t.entity.Table, target, t.entity.SelectList())

	var row T
	if err := sqlx.GetContext(ctx, t.ext, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to delete %s: %w", t.entity.Name, translate(err))
	}
	return &row, nil
}

// target は update/delete の対象行を特定する条件式を返す。
// 空の where は全行を対象にしうるため受け付けない。
func (t *Table[T]) target(where Where, start int) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, &SchemaError{Entity: t.entity.Name, Reason: "where must not be empty"}
	}
	clause, args, err := t.entity.compileWhere(where, start)
	if err != nil {
		return "", nil, err
	}
	if _, ok := where["id"]; ok {
		return clause, args, nil
	}
	return fmt.Sprintf("id = (SELECT id FROM %s WHERE %s ORDER BY id ASC LIMIT 1)", t.entity.Table, clause), args, nil
}

func whereSQL(clause string) string {
	if clause == "" {
		return ""
	}
	return " WHERE " + clause
}
