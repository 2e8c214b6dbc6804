package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizePasses は除去後に新たなタグが現れる入力に対する再適用の上限。
// 上限までに収束しない入力は空文字列として扱う。
const maxSanitizePasses = 4

// TextSanitizer はIdPから受け取る表示名などのプレーンテキストからHTMLを取り除く。
type TextSanitizer interface {
	// Sanitize はすべてのHTMLタグを除去し、前後の空白を取り除いたテキストを返す。
	// script, styleなど内容ごと除去される要素もある。
	// 入力に含まれる文字参照はデコードせず、文字どおり残す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有して使う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はStrictPolicyによるTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLを除去したテキストを返す。結果に対して再度適用しても変化しない。
func (s *textSanitizer) Sanitize(raw string) string {
	text := raw
	for range maxSanitizePasses {
		next := s.sanitizeOnce(text)
		if next == text {
			return text
		}
		text = next
	}
	return ""
}

func (s *textSanitizer) sanitizeOnce(raw string) string {
	if raw == "" {
		return ""
	}
	// 入力中の文字参照がタグに戻らないよう、&を先にエスケープしておく
	escaped := strings.ReplaceAll(raw, "&", "&amp;")
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(escaped)))
}
