package ai

import (
	"context"
	"fmt"
	"strings"
)

const minNotesLength = 20

// SummaryInput はノート要約の入力。
type SummaryInput struct {
	Notes        string
	ResourceName string
	ResourceType string
}

// NoteSummary はノートの要約と抽出された重要概念。
type NoteSummary struct {
	Summary        string            `json:"summary"`
	KeyConcepts    []string          `json:"key_concepts"`
	TechnicalTerms map[string]string `json:"technical_terms"`
	MainTopics     []string          `json:"main_topics"`
	Error          string            `json:"error,omitempty"`
}

func emptySummary() NoteSummary {
	return NoteSummary{
		KeyConcepts:    []string{},
		TechnicalTerms: map[string]string{},
		MainTopics:     []string{},
	}
}

// Summarize はノートを要約する。ノートが短すぎる場合はモデルを呼ばずに空の結果を返す。
func Summarize(ctx context.Context, gen Generator, in SummaryInput) Result[NoteSummary] {
	if len(strings.TrimSpace(in.Notes)) < minNotesLength {
		return Result[NoteSummary]{Value: emptySummary()}
	}

	out := emptySummary()
	if err := generateInto(ctx, gen, summaryPrompt(in), &out); err != nil {
		fallback := emptySummary()
		fallback.Error = errorText(err)
		return Result[NoteSummary]{Value: fallback, Err: err}
	}
	normalizeSummary(&out)
	return Result[NoteSummary]{Value: out}
}

func normalizeSummary(s *NoteSummary) {
	if s.KeyConcepts == nil {
		s.KeyConcepts = []string{}
	}
	if s.TechnicalTerms == nil {
		s.TechnicalTerms = map[string]string{}
	}
	if s.MainTopics == nil {
		s.MainTopics = []string{}
	}
}

func summaryPrompt(in SummaryInput) string {
	return fmt.Sprintf(`You are a technical learning assistant reviewing a learner's notes.

Resource: %s
Type: %s

Notes:
%s

Produce:
1. "summary": a 2-3 sentence summary of the main learning points
2. "key_concepts": 5-10 key technical concepts from the notes
3. "technical_terms": an object mapping important terms to short definitions
4. "main_topics": 3-5 broad topics covered

Respond with a single JSON object with exactly these keys:
{"summary": "...", "key_concepts": ["..."], "technical_terms": {"term": "definition"}, "main_topics": ["..."]}
`, in.ResourceName, orDefault(in.ResourceType, "Unknown"), in.Notes)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
