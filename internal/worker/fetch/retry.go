package fetch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/skillstack/internal/model"
)

// Outcome はHTTPステータスコードから判断したフェッチ結果の分類。
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotModified
	// OutcomeStop はソースを停止すべき応答（404/410/401/403）。
	OutcomeStop
	// OutcomeBackoff は時間をおいて再試行すべき応答（429/5xx/その他）。
	OutcomeBackoff
)

const (
	initialBackoff        = 30 * time.Minute
	maxBackoff            = 12 * time.Hour
	parseFailureThreshold = 10
)

// Classify はHTTPステータスコードを分類する。
func Classify(status int) Outcome {
	switch {
	case status == http.StatusOK:
		return OutcomeOK
	case status == http.StatusNotModified:
		return OutcomeNotModified
	case status == http.StatusNotFound, status == http.StatusGone,
		status == http.StatusUnauthorized, status == http.StatusForbidden:
		return OutcomeStop
	default:
		return OutcomeBackoff
	}
}

// BackoffDelay は n 回目の連続エラー（1始まり）の待ち時間を返す。30分から倍々で増え、12時間で頭打ちになる。
func BackoffDelay(n int) time.Duration {
	delay := initialBackoff
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// Policy はフェッチ結果をソースの状態に反映する。
type Policy struct {
	// Interval は成功時から次回フェッチまでの間隔。
	Interval time.Duration
	Now      func() time.Time
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Stop はソースを停止する。停止したソースは再登録されるまでフェッチされない。
func (p Policy) Stop(src *model.Source, reason string) {
	src.FetchStatus = model.FetchStatusStopped
	src.ErrorMessage = reason
}

// Backoff は連続エラー数を増やし、指数バックオフで次回フェッチ時刻を設定する。
func (p Policy) Backoff(src *model.Source, reason string) {
	src.ConsecutiveErrors++
	src.ErrorMessage = reason
	src.NextFetchAt = p.now().Add(BackoffDelay(src.ConsecutiveErrors))
}

// Success はエラー状態をリセットし、通常間隔で次回フェッチ時刻を設定する。
func (p Policy) Success(src *model.Source) {
	now := p.now()
	src.ConsecutiveErrors = 0
	src.ErrorMessage = ""
	src.NextFetchAt = now.Add(p.Interval)
	src.LastFetchedAt = &now
}

// ParseFailure は連続エラー数を増やし、閾値に達したらソースを停止する。
func (p Policy) ParseFailure(src *model.Source, reason string) {
	src.ConsecutiveErrors++
	if src.ConsecutiveErrors >= parseFailureThreshold {
		p.Stop(src, fmt.Sprintf("stopped after %d consecutive failures: %s", src.ConsecutiveErrors, reason))
		return
	}
	src.ErrorMessage = fmt.Sprintf("parse failed (%d in a row): %s", src.ConsecutiveErrors, reason)
	src.NextFetchAt = p.now().Add(p.Interval)
}
