package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Result はAI機能の結果。Err が nil でない場合、Value はフォールバック値を保持する。
type Result[T any] struct {
	Value T
	Err   error
}

// OK はモデルの応答から値を得られたかを返す。
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// UnavailableMessage はフォールバック時に応答の error に入れる固定文言。詳細はログにのみ記録する。
const UnavailableMessage = "AI service unavailable"

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return UnavailableMessage
}

// generateInto はプロンプトを送信し、応答JSONを v にデコードする。
func generateInto(ctx context.Context, gen Generator, prompt string, v any) error {
	text, err := gen.GenerateJSON(ctx, prompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), v); err != nil {
		return fmt.Errorf("failed to decode model output: %w", err)
	}
	return nil
}

// stripCodeFence はモデルが ```json ... ``` で囲んで返した場合に中身だけを取り出す。
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
