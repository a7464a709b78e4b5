package datastore

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrConflict は一意制約違反を表す。
var ErrConflict = errors.New("datastore: unique constraint violated")

// ErrReferenced は外部キー制約違反（参照中の行の削除など）を表す。
var ErrReferenced = errors.New("datastore: row is referenced")

// SchemaError はレジストリに存在しないエンティティ・列、
// または列の種類に合わない演算子が指定された場合のエラー。
// 入力検証エラーとして扱う。
type SchemaError struct {
	Entity string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("datastore: %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("datastore: %s.%s: %s", e.Entity, e.Column, e.Reason)
}

// PostgreSQL のエラーコード
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrReferenced, pqErr.Constraint)
		}
	}
	return err
}
