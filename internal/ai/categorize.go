package ai

import (
	"context"
	"fmt"
)

// CategorizeInput は自動分類の入力。
type CategorizeInput struct {
	ResourceName string
	Description  string
	ResourceType string
	Platform     string
}

// Categorization はリソースの分類結果とスキルタグ。
type Categorization struct {
	Category        string   `json:"category"`
	Subcategory     string   `json:"subcategory"`
	SkillTags       []string `json:"skill_tags"`
	DifficultyLevel string   `json:"difficulty_level"`
	RelatedSkills   []string `json:"related_skills"`
	Error           string   `json:"error,omitempty"`
}

func fallbackCategorization(err error) Categorization {
	return Categorization{
		Category:        "Uncategorized",
		SkillTags:       []string{},
		DifficultyLevel: "Unknown",
		RelatedSkills:   []string{},
		Error:           errorText(err),
	}
}

// Categorize はリソースの分野、難易度、スキルタグを推定する。
func Categorize(ctx context.Context, gen Generator, in CategorizeInput) Result[Categorization] {
	var out Categorization
	if err := generateInto(ctx, gen, categorizePrompt(in), &out); err != nil {
		return Result[Categorization]{Value: fallbackCategorization(err), Err: err}
	}
	if out.SkillTags == nil {
		out.SkillTags = []string{}
	}
	if out.RelatedSkills == nil {
		out.RelatedSkills = []string{}
	}
	return Result[Categorization]{Value: out}
}

func categorizePrompt(in CategorizeInput) string {
	return fmt.Sprintf(`You classify educational resources.

Resource:
- Name: %s
- Description: %s
- Type: %s
- Platform: %s

Produce:
1. "category": the primary field, e.g. "Frontend Development", "Data Science", "DevOps", "Machine Learning", "Soft Skills"
2. "subcategory": a specific technology or topic, e.g. "React", "SQL", "Docker"
3. "skill_tags": 5-8 specific skills taught
4. "difficulty_level": one of Beginner, Intermediate, Advanced, Expert
5. "related_skills": 3-5 prerequisite or adjacent skills

Respond with a single JSON object with exactly these keys:
{"category": "...", "subcategory": "...", "skill_tags": ["..."], "difficulty_level": "...", "related_skills": ["..."]}
`, in.ResourceName,
		orDefault(in.Description, "Not provided"),
		orDefault(in.ResourceType, "Not specified"),
		orDefault(in.Platform, "Not specified"))
}
