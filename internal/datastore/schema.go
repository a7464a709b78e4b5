// Package datastore は全エンティティ共通の汎用データアクセス層を提供する。
//
// エンティティ名からテーブル定義への対応は Registry に明示的に列挙し、
// 実行時のリフレクションによる列挙は行わない。列名はすべてレジストリ由来で、
// 入力値はすべてプレースホルダでバインドする。
package datastore

import (
	"strings"
)

// Kind は列の値の種類を表す。contains 演算子はテキスト列にのみ許可する。
type Kind int

const (
	KindInt Kind = iota
	KindText
	KindTime
)

// Column はテーブルの1列を表す。
// Writable が false の列（id, created_at, updated_at など）は create/update で指定できない。
type Column struct {
	Name     string
	Kind     Kind
	Writable bool
}

// Entity は論理エンティティ名と物理テーブルの対応を表す。
// Columns の順序は SELECT / RETURNING 句の列順になる。
type Entity struct {
	Name    string
	Table   string
	Columns []Column
	// TouchColumn は update 時に now() を設定する列名。空なら何もしない。
	TouchColumn string
}

func (e *Entity) column(name string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// SelectList は列名をカンマ区切りで返す。SELECT / RETURNING 句に使う。
func (e *Entity) SelectList() string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// Registry は小文字のエンティティ名からエンティティ定義への対応表。
// 構築後は読み取り専用として共有する。
type Registry map[string]*Entity

// Lookup は名前（大文字小文字を区別しない）に対応するエンティティを返す。
func (r Registry) Lookup(name string) (*Entity, error) {
	e, ok := r[strings.ToLower(name)]
	if !ok {
		return nil, &SchemaError{Entity: name, Reason: "unknown entity"}
	}
	return e, nil
}

func col(name string, kind Kind) Column { return Column{Name: name, Kind: kind, Writable: true} }

func readOnly(name string, kind Kind) Column { return Column{Name: name, Kind: kind} }

// DefaultRegistry はアプリケーションが永続化する全エンティティの定義。
var DefaultRegistry = Registry{
	"user": {
		Name:  "user",
		Table: "users",
		Columns: []Column{
			readOnly("id", KindInt),
			col("email", KindText),
			col("password_hash", KindText),
			col("name", KindText),
			readOnly("created_at", KindTime),
		},
	},
	"resources": {
		Name:  "resources",
		Table: "resources",
		Columns: []Column{
			readOnly("id", KindInt),
			col("user_id", KindInt),
			col("resource_type_id", KindInt),
			col("resource_platform_id", KindInt),
			col("name", KindText),
			col("description", KindText),
			col("notes", KindText),
			col("rating", KindInt),
			col("progress_status", KindText),
			col("estimated_hours", KindInt),
			col("hours_spent", KindInt),
			col("completion_date", KindTime),
			col("started_date", KindTime),
			col("ai_summary", KindText),
			col("ai_tags", KindText),
			col("ai_category", KindText),
			col("ai_mastery_date", KindTime),
			col("source_id", KindInt),
			col("source_guid", KindText),
			readOnly("created_at", KindTime),
			readOnly("updated_at", KindTime),
		},
		TouchColumn: "updated_at",
	},
	"resourcetype": {
		Name:  "resourcetype",
		Table: "resource_types",
		Columns: []Column{
			readOnly("id", KindInt),
			col("user_id", KindInt),
			col("name", KindText),
			readOnly("created_at", KindTime),
		},
	},
	"resourceplatform": {
		Name:  "resourceplatform",
		Table: "resource_platforms",
		Columns: []Column{
			readOnly("id", KindInt),
			col("user_id", KindInt),
			col("name", KindText),
			readOnly("created_at", KindTime),
		},
	},
	"source": {
		Name:  "source",
		Table: "sources",
		Columns: []Column{
			readOnly("id", KindInt),
			col("user_id", KindInt),
			col("feed_url", KindText),
			col("site_url", KindText),
			col("title", KindText),
			col("resource_type_id", KindInt),
			col("etag", KindText),
			col("last_modified", KindText),
			col("fetch_status", KindText),
			col("consecutive_errors", KindInt),
			col("error_message", KindText),
			col("next_fetch_at", KindTime),
			col("last_fetched_at", KindTime),
			readOnly("created_at", KindTime),
			readOnly("updated_at", KindTime),
		},
		TouchColumn: "updated_at",
	},
}
