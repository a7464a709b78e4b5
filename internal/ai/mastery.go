package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/skillstack/internal/model"
)

const (
	// DateLayout は予測日付の形式。
	DateLayout = "2006-01-02"

	recentWindow = 30 * 24 * time.Hour
)

// MasteryInput は習得日予測の入力。学習履歴の集計値を含む。
type MasteryInput struct {
	Resource             model.Resource
	CompletedCount       int
	AvgHoursPerCompleted float64
	RecentCompletions    int
	TotalHoursLogged     int64
	Now                  time.Time
}

// NewMasteryInput は対象リソースとユーザーの全リソースから予測入力を組み立てる。
func NewMasteryInput(target model.Resource, all []model.Resource, now time.Time) MasteryInput {
	in := MasteryInput{Resource: target, Now: now}
	since := now.Add(-recentWindow)
	for _, r := range all {
		if r.ProgressStatus != model.StatusCompleted {
			continue
		}
		in.CompletedCount++
		in.TotalHoursLogged += r.HoursSpent
		if r.CompletionDate != nil && !r.CompletionDate.Before(since) {
			in.RecentCompletions++
		}
	}
	if in.CompletedCount > 0 {
		in.AvgHoursPerCompleted = float64(in.TotalHoursLogged) / float64(in.CompletedCount)
	}
	return in
}

// MasteryPrediction はリソース完了日の予測。
type MasteryPrediction struct {
	PredictedDate  *string `json:"predicted_date"`
	Confidence     float64 `json:"confidence"`
	DaysRemaining  *int    `json:"days_remaining"`
	HoursRemaining *int    `json:"hours_remaining,omitempty"`
	Recommendation string  `json:"recommendation"`
	Error          string  `json:"error,omitempty"`
}

// ParsedDate は予測日付を解釈する。形式が不正な場合は false を返す。
func (p MasteryPrediction) ParsedDate() (time.Time, bool) {
	if p.PredictedDate == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, *p.PredictedDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// PredictMastery は学習ペースからリソースの完了日を予測する。
func PredictMastery(ctx context.Context, gen Generator, in MasteryInput) Result[MasteryPrediction] {
	var out MasteryPrediction
	if err := generateInto(ctx, gen, masteryPrompt(in), &out); err != nil {
		return Result[MasteryPrediction]{
			Value: MasteryPrediction{
				Recommendation: "Unable to generate prediction at this time.",
				Error:          errorText(err),
			},
			Err: err,
		}
	}
	return Result[MasteryPrediction]{Value: out}
}

func masteryPrompt(in MasteryInput) string {
	r := in.Resource
	estimated := "Not specified"
	if r.EstimatedHours != nil {
		estimated = fmt.Sprintf("%d", *r.EstimatedHours)
	}
	started := "Not started"
	if r.StartedDate != nil {
		started = r.StartedDate.UTC().Format(time.RFC3339)
	}

	return fmt.Sprintf(`You are a learning analytics assistant predicting when a learner will finish a resource.

Resource:
- Name: %s
- Progress status: %s
- Estimated total hours: %s
- Hours spent so far: %d
- Started: %s

Learner history:
- Completed resources: %d
- Average hours per completed resource: %.1f
- Completions in the last 30 days: %d
- Total hours logged on completed resources: %d

Today is %s.

Using the learner's pace, recent activity and remaining hours, produce:
1. "predicted_date": the likely completion date as YYYY-MM-DD
2. "confidence": a number from 0.0 to 1.0
3. "days_remaining": whole days until completion
4. "hours_remaining": estimated hours of work left
5. "recommendation": one short motivational or pacing suggestion

Respond with a single JSON object with exactly these keys.
`, r.Name, r.ProgressStatus, estimated, r.HoursSpent, started,
		in.CompletedCount, in.AvgHoursPerCompleted, in.RecentCompletions, in.TotalHoursLogged,
		in.Now.UTC().Format(DateLayout))
}
