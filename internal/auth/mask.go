package auth

import (
	"strings"
	"unicode/utf8"
)

// MaskEmail はログ出力用にメールアドレスのローカル部を伏せる。
// 例: "test@example.com" -> "t***@example.com"
// ローカル部が1文字以下の場合は全体を伏せる。
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 {
		return "***"
	}
	first, size := utf8.DecodeRuneInString(email)
	if at <= size {
		return "***" + email[at:]
	}
	return string(first) + "***" + email[at:]
}
