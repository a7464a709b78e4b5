package model

import "time"

// FetchStatus はソースのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive は正常にフェッチ中の状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped はフェッチが停止された状態（404/410、パース失敗の継続など）。
	FetchStatusStopped FetchStatus = "stopped"
)

// Source はユーザーが購読するフィードを表す。
// 新しいエントリは未着手（not_started）のリソースとして取り込まれる。
type Source struct {
	ID                int64       `db:"id" json:"id"`
	UserID            int64       `db:"user_id" json:"user_id"`
	FeedURL           string      `db:"feed_url" json:"feed_url"`
	SiteURL           string      `db:"site_url" json:"site_url"`
	Title             string      `db:"title" json:"title"`
	ResourceTypeID    *int64      `db:"resource_type_id" json:"resource_type_id"`
	ETag              string      `db:"etag" json:"-"`
	LastModified      string      `db:"last_modified" json:"-"`
	FetchStatus       FetchStatus `db:"fetch_status" json:"fetch_status"`
	ConsecutiveErrors int         `db:"consecutive_errors" json:"consecutive_errors"`
	ErrorMessage      string      `db:"error_message" json:"error_message"`
	NextFetchAt       time.Time   `db:"next_fetch_at" json:"next_fetch_at"`
	LastFetchedAt     *time.Time  `db:"last_fetched_at" json:"last_fetched_at"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// SourceEntry はフィードから取り込む1エントリを表す。
type SourceEntry struct {
	GUID        string
	Title       string
	Link        string
	Description string
}
