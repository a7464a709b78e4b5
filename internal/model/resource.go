package model

import "time"

// ProgressStatus は学習リソースの進捗状態を表す。
type ProgressStatus string

const (
	StatusNotStarted ProgressStatus = "not_started"
	StatusInProgress ProgressStatus = "in_progress"
	StatusCompleted  ProgressStatus = "completed"
)

// Valid は定義済みの進捗状態かどうかを返す。
func (s ProgressStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Resource はユーザーが記録する学習リソース（コース・記事・動画など）を表す。
// ai_* 列はAI機能の保存結果、source_* 列はフィード取り込み元を保持する。
type Resource struct {
	ID                 int64          `db:"id" json:"id"`
	UserID             int64          `db:"user_id" json:"user_id"`
	ResourceTypeID     *int64         `db:"resource_type_id" json:"resource_type_id"`
	ResourcePlatformID *int64         `db:"resource_platform_id" json:"resource_platform_id"`
	Name               string         `db:"name" json:"name"`
	Description        *string        `db:"description" json:"description"`
	Notes              *string        `db:"notes" json:"notes"`
	Rating             *int64         `db:"rating" json:"rating"`
	ProgressStatus     ProgressStatus `db:"progress_status" json:"progress_status"`
	EstimatedHours     *int64         `db:"estimated_hours" json:"estimated_hours"`
	HoursSpent         int64          `db:"hours_spent" json:"hours_spent"`
	CompletionDate     *time.Time     `db:"completion_date" json:"completion_date"`
	StartedDate        *time.Time     `db:"started_date" json:"started_date"`
	AISummary          *string        `db:"ai_summary" json:"ai_summary"`
	AITags             *string        `db:"ai_tags" json:"ai_tags"`
	AICategory         *string        `db:"ai_category" json:"ai_category"`
	AIMasteryDate      *time.Time     `db:"ai_mastery_date" json:"ai_mastery_date"`
	SourceID           *int64         `db:"source_id" json:"source_id"`
	SourceGUID         *string        `db:"source_guid" json:"-"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// ResourceType はユーザー定義のリソース種別（Course, Article など）を表す。
type ResourceType struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ResourcePlatform はユーザー定義の提供プラットフォーム（Udemy, YouTube など）を表す。
type ResourcePlatform struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ResourceStats はリソース一覧の集計結果を表す。
type ResourceStats struct {
	TotalResources      int     `json:"total_resources"`
	CompletedResources  int     `json:"completed_resources"`
	InProgressResources int     `json:"in_progress_resources"`
	NotStartedResources int     `json:"not_started_resources"`
	CompletionRate      float64 `json:"completion_rate"`
	TotalEstimatedHours int64   `json:"total_estimated_hours"`
	TotalHoursSpent     int64   `json:"total_hours_spent"`
}
