// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザー（認証情報レコード）を表す。
// PasswordHash はJSONに出力しない。
type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
