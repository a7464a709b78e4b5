package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/repository"
	"github.com/hitoshi/skillstack/internal/security"
)

const (
	userAgent         = "SkillStack/1.0 (+feed importer)"
	maxTitleLength    = 500
	maxSummaryLength  = 2000
	defaultBodyLimit  = 5 << 20
	defaultHTTPWindow = 30 * time.Second
)

// Recorder はフェッチ結果のメトリクスを記録する。
type Recorder interface {
	RecordFetch(outcome string, status int, duration time.Duration)
	RecordEntriesImported(count int)
}

// Fetcher は1つのソースを取得し、新しいエントリを未着手のリソースとして取り込む。
type Fetcher struct {
	sources   repository.SourceRepository
	resources repository.ResourceRepository
	client    *http.Client
	guard     security.URLGuard
	sanitizer *security.TextSanitizer
	recorder  Recorder
	policy    Policy
	logger    *slog.Logger
	bodyLimit int64
}

// NewFetcher はFetcherを生成する。recorder は nil でもよい。
func NewFetcher(
	sources repository.SourceRepository,
	resources repository.ResourceRepository,
	guard security.URLGuard,
	recorder Recorder,
	policy Policy,
	logger *slog.Logger,
) *Fetcher {
	return &Fetcher{
		sources:   sources,
		resources: resources,
		client:    guard.NewSafeClient(defaultHTTPWindow),
		guard:     guard,
		sanitizer: security.NewTextSanitizer(maxSummaryLength),
		recorder:  recorder,
		policy:    policy,
		logger:    logger,
		bodyLimit: defaultBodyLimit,
	}
}

// Fetch は条件付きGETでフィードを取得し、結果に応じてソースの状態を更新する。
// 返すエラーは状態の保存に失敗した場合など、スケジューラがログに残すべきもののみ。
func (f *Fetcher) Fetch(ctx context.Context, src *model.Source) error {
	start := time.Now()
	log := f.logger.With(slog.Int64("source_id", src.ID), slog.String("feed_url", src.FeedURL))

	if err := f.guard.ValidateURL(src.FeedURL); err != nil {
		log.Warn("ソースURLが拒否されたため停止します", slog.String("error", err.Error()))
		f.policy.Stop(src, "URL blocked by security policy")
		f.record("blocked", 0, start)
		return f.save(ctx, src)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		f.policy.Stop(src, fmt.Sprintf("invalid feed URL: %v", err))
		return f.save(ctx, src)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*;q=0.1")
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}
	if src.LastModified != "" {
		req.Header.Set("If-Modified-Since", src.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		log.Warn("フィードの取得に失敗しました", slog.String("error", err.Error()))
		f.policy.Backoff(src, fmt.Sprintf("request failed: %v", err))
		f.record("network_error", 0, start)
		return f.save(ctx, src)
	}
	defer resp.Body.Close()

	switch Classify(resp.StatusCode) {
	case OutcomeNotModified:
		f.policy.Success(src)
		f.record("not_modified", resp.StatusCode, start)
		return f.save(ctx, src)
	case OutcomeStop:
		log.Warn("ソースのフェッチを停止します", slog.Int("http_status", resp.StatusCode))
		f.policy.Stop(src, "feed returned HTTP "+strconv.Itoa(resp.StatusCode))
		f.record("stopped", resp.StatusCode, start)
		return f.save(ctx, src)
	case OutcomeBackoff:
		log.Warn("バックオフを適用します",
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", src.ConsecutiveErrors+1),
		)
		f.policy.Backoff(src, "feed returned HTTP "+strconv.Itoa(resp.StatusCode))
		f.record("backoff", resp.StatusCode, start)
		return f.save(ctx, src)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.bodyLimit))
	if err != nil {
		f.policy.Backoff(src, fmt.Sprintf("read failed: %v", err))
		f.record("network_error", resp.StatusCode, start)
		return f.save(ctx, src)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		log.Warn("フィードのパースに失敗しました", slog.String("error", err.Error()))
		f.policy.ParseFailure(src, err.Error())
		f.record("parse_error", resp.StatusCode, start)
		return f.save(ctx, src)
	}

	entries := f.toEntries(parsed.Items)
	inserted, err := f.resources.InsertFromSource(ctx, src, entries)
	if err != nil {
		// 状態は更新せず、リースが切れた後に再試行させる
		return fmt.Errorf("failed to import entries for source %d: %w", src.ID, err)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		src.ETag = etag
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		src.LastModified = lm
	}
	if title := strings.TrimSpace(parsed.Title); title != "" {
		src.Title = title
	}
	f.policy.Success(src)
	f.record("success", resp.StatusCode, start)
	if f.recorder != nil {
		f.recorder.RecordEntriesImported(inserted)
	}

	log.Info("ソースの取り込みが完了しました",
		slog.Int("entries", len(entries)),
		slog.Int("imported", inserted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return f.save(ctx, src)
}

// toEntries はフィードの項目を取り込み用のエントリに変換する。
// GUID がない項目はリンクで識別し、どちらもない項目は捨てる。
func (f *Fetcher) toEntries(items []*gofeed.Item) []model.SourceEntry {
	entries := make([]model.SourceEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		guid := strings.TrimSpace(item.GUID)
		link := strings.TrimSpace(item.Link)
		if guid == "" {
			guid = link
		}
		if guid == "" {
			continue
		}
		if link == "" && (strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://")) {
			link = guid
		}

		title := f.sanitizer.PlainText(item.Title)
		if title == "" {
			title = link
		}
		if title == "" {
			title = guid
		}
		if r := []rune(title); len(r) > maxTitleLength {
			title = string(r[:maxTitleLength])
		}

		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		entries = append(entries, model.SourceEntry{
			GUID:        guid,
			Title:       title,
			Link:        link,
			Description: f.sanitizer.PlainText(summary),
		})
	}
	return entries
}

func (f *Fetcher) save(ctx context.Context, src *model.Source) error {
	if err := f.sources.UpdateFetchState(ctx, src); err != nil {
		return fmt.Errorf("failed to save state of source %d: %w", src.ID, err)
	}
	return nil
}

func (f *Fetcher) record(outcome string, status int, start time.Time) {
	if f.recorder != nil {
		f.recorder.RecordFetch(outcome, status, time.Since(start))
	}
}
