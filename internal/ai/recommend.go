package ai

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hitoshi/skillstack/internal/model"
)

const maxPromptCandidates = 20

// RecommendInput はおすすめ生成の入力。
// TypeNames / PlatformNames はユーザーの種別・プラットフォームのID→名前の対応。
type RecommendInput struct {
	Resources     []model.Resource
	TypeNames     map[int64]string
	PlatformNames map[int64]string
	Limit         int
}

// Recommendation は次に着手すべきリソースの提案。
type Recommendation struct {
	ResourceID   int64   `json:"resource_id"`
	ResourceName string  `json:"resource_name"`
	ResourceType *string `json:"resource_type"`
	Platform     *string `json:"platform"`
	Reason       string  `json:"reason"`
	Priority     int     `json:"priority"`
}

// LearningProfile は完了・進行中のリソースから得られる学習傾向。
type LearningProfile struct {
	Total              int
	CompletedCount     int
	InProgressCount    int
	PreferredTypes     map[string]int
	PreferredPlatforms map[string]int
	AverageRating      float64
	CompletedNames     []string
	InProgressNames    []string
}

// BuildProfile は学習傾向を集計する。好みの種別・プラットフォームと平均評価は完了済みのリソースから求める。
func BuildProfile(in RecommendInput) LearningProfile {
	p := LearningProfile{
		Total:              len(in.Resources),
		PreferredTypes:     map[string]int{},
		PreferredPlatforms: map[string]int{},
	}
	var ratingSum, ratingCount int64
	for _, r := range in.Resources {
		switch r.ProgressStatus {
		case model.StatusCompleted:
			p.CompletedCount++
			p.CompletedNames = append(p.CompletedNames, r.Name)
			if name, ok := lookupName(in.TypeNames, r.ResourceTypeID); ok {
				p.PreferredTypes[name]++
			}
			if name, ok := lookupName(in.PlatformNames, r.ResourcePlatformID); ok {
				p.PreferredPlatforms[name]++
			}
			if r.Rating != nil {
				ratingSum += *r.Rating
				ratingCount++
			}
		case model.StatusInProgress:
			p.InProgressCount++
			p.InProgressNames = append(p.InProgressNames, r.Name)
		}
	}
	if ratingCount > 0 {
		p.AverageRating = float64(ratingSum) / float64(ratingCount)
	}
	return p
}

type rawRecommendation struct {
	ResourceName string `json:"resource_name"`
	Reason       string `json:"reason"`
	Priority     *int   `json:"priority"`
}

// Recommend は未着手のリソースから次に取り組むべきものを提案する。
// 候補がない場合はモデルを呼ばずに空のリストを返す。
// モデルの出力はリソース名の完全一致で候補に対応付け、一致しないものは捨てる。
func Recommend(ctx context.Context, gen Generator, in RecommendInput) Result[[]Recommendation] {
	var candidates []model.Resource
	for _, r := range in.Resources {
		if r.ProgressStatus == model.StatusNotStarted {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return Result[[]Recommendation]{Value: []Recommendation{}}
	}

	var raw []rawRecommendation
	if err := generateInto(ctx, gen, recommendPrompt(in, BuildProfile(in), candidates), &raw); err != nil {
		return Result[[]Recommendation]{Value: []Recommendation{}, Err: err}
	}

	out := []Recommendation{}
	for _, rec := range raw {
		if len(out) >= in.Limit {
			break
		}
		idx := slices.IndexFunc(candidates, func(r model.Resource) bool { return r.Name == rec.ResourceName })
		if idx < 0 {
			continue
		}
		match := candidates[idx]
		priority := len(out) + 1
		if rec.Priority != nil {
			priority = *rec.Priority
		}
		out = append(out, Recommendation{
			ResourceID:   match.ID,
			ResourceName: match.Name,
			ResourceType: namePtr(in.TypeNames, match.ResourceTypeID),
			Platform:     namePtr(in.PlatformNames, match.ResourcePlatformID),
			Reason:       rec.Reason,
			Priority:     priority,
		})
	}
	return Result[[]Recommendation]{Value: out}
}

func recommendPrompt(in RecommendInput, p LearningProfile, candidates []model.Resource) string {
	var list strings.Builder
	for _, r := range candidates[:min(len(candidates), maxPromptCandidates)] {
		fmt.Fprintf(&list, "- %s (Type: %s, Platform: %s)\n", r.Name,
			orDefault(nameOf(in.TypeNames, r.ResourceTypeID), "N/A"),
			orDefault(nameOf(in.PlatformNames, r.ResourcePlatformID), "N/A"))
	}

	return fmt.Sprintf(`You are a personal learning advisor.

Learner profile:
- Total resources: %d
- Completed: %d
- In progress: %d
- Average rating given: %.1f/5
- Preferred resource types: %s
- Preferred platforms: %s
- Completed resources: %s
- Currently learning: %s

Resources not yet started:
%s
Pick the top %d resources from the list above to start next. Favour the learner's preferred types and platforms, a sensible progression from what they completed, some variety, and items that complement what they are learning now.

Respond with a JSON array only, each element shaped as:
{"resource_name": "exact name from the list", "reason": "2-3 sentences", "priority": 1}
`, p.Total, p.CompletedCount, p.InProgressCount, p.AverageRating,
		formatCounts(p.PreferredTypes, "None yet"),
		formatCounts(p.PreferredPlatforms, "None yet"),
		joinOr(p.CompletedNames, "None yet"),
		joinOr(p.InProgressNames, "None"),
		list.String(), in.Limit)
}

func lookupName(names map[int64]string, id *int64) (string, bool) {
	if id == nil {
		return "", false
	}
	name, ok := names[*id]
	return name, ok
}

func nameOf(names map[int64]string, id *int64) string {
	name, _ := lookupName(names, id)
	return name
}

func namePtr(names map[int64]string, id *int64) *string {
	name, ok := lookupName(names, id)
	if !ok {
		return nil
	}
	return &name
}

// formatCounts は "Course (3x), Video (1x)" の形式で名前順に並べる。
func formatCounts(counts map[string]int, empty string) string {
	if len(counts) == 0 {
		return empty
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s (%dx)", name, counts[name])
	}
	return strings.Join(parts, ", ")
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
