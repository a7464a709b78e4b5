package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はフィードのHTMLをリソースの説明として保存できるプレーンテキストに変換する。
// bluemonday.Policy は並行利用できるため、インスタンスは共有してよい。
type TextSanitizer struct {
	policy *bluemonday.Policy
	maxLen int
}

// NewTextSanitizer はTextSanitizerを生成する。maxLen は結果の最大文字数（0以下で無制限）。
func NewTextSanitizer(maxLen int) *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
		maxLen: maxLen,
	}
}

// PlainText はタグを除去し、実体参照を戻し、空白を1つにまとめる。
// maxLen を超える場合は末尾を「…」に置き換えて切り詰める。
func (s *TextSanitizer) PlainText(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	// ブロック要素の境界で単語が連結しないよう、タグの前に空白を入れておく
	text := s.policy.Sanitize(strings.ReplaceAll(rawHTML, "<", " <"))
	text = strings.Join(strings.Fields(html.UnescapeString(text)), " ")

	if s.maxLen > 0 && utf8.RuneCountInString(text) > s.maxLen {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:s.maxLen-1])) + "…"
	}
	return text
}
