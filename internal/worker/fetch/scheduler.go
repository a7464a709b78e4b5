// Package fetch はソース（フィード）の定期取り込みを行うワーカーを提供する。
// スケジューラ、フェッチャー、バックオフ方針を含む。
package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/skillstack/internal/model"
	"github.com/hitoshi/skillstack/internal/repository"
)

// SourceFetcher は1つのソースを取り込む。
type SourceFetcher interface {
	Fetch(ctx context.Context, src *model.Source) error
}

const (
	defaultConcurrency = 5
	defaultBatchSize   = 100
	// claimLease はフェッチ中のソースを他のワーカーが取らないよう先送りする時間。
	claimLease = 15 * time.Minute
)

// Scheduler は一定間隔で期限の来たソースを確保し、並列数を制限して取り込む。
type Scheduler struct {
	sources     repository.SourceRepository
	fetcher     SourceFetcher
	logger      *slog.Logger
	concurrency int
	batchSize   int
}

// NewScheduler はSchedulerを生成する。concurrency が0以下の場合は5を使う。
func NewScheduler(sources repository.SourceRepository, fetcher SourceFetcher, logger *slog.Logger, concurrency int) *Scheduler {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Scheduler{
		sources:     sources,
		fetcher:     fetcher,
		logger:      logger,
		concurrency: concurrency,
		batchSize:   defaultBatchSize,
	}
}

// Start は ctx がキャンセルされるまで interval ごとに RunOnce を実行する。起動直後にも1回実行する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("concurrency", s.concurrency),
	)

	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("取り込みサイクルに失敗しました", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce は期限の来たソースを確保し、すべての取り込みが終わるまで待つ。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	due, err := s.sources.ClaimDue(ctx, s.batchSize, claimLease)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		s.logger.Debug("取り込み対象のソースはありません")
		return nil
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i := range due {
		src := &due[i]
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.fetcher.Fetch(ctx, src); err != nil {
				s.logger.Error("ソースの取り込みに失敗しました",
					slog.Int64("source_id", src.ID),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
	wg.Wait()

	s.logger.Info("取り込みサイクルが完了しました",
		slog.Int("source_count", len(due)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
