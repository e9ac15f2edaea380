// Package security は外部入力に対する防護機能を提供する。
//
// FieldSanitizerService はAPIから取得した自由記述の文字列値から
// HTMLタグを除去し、書き込み先テーブルへプレーンテキストのみを
// 格納することを保証する。bluemondayの全タグ除去ポリシーを使用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// FieldSanitizerService は文字列フィールドのサニタイズ機能のインターフェースを定義する。
// 正規化処理がSTRINGフィールドの格納前に使用する。
type FieldSanitizerService interface {
	// Sanitize は文字列値からHTMLタグを全て除去し、実体参照を復元した
	// プレーンテキストを返す。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(value string) string
}

// fieldSanitizer はFieldSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type fieldSanitizer struct {
	policy *bluemonday.Policy
}

// NewFieldSanitizer はFieldSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicy（許可タグなし）により全てのHTMLタグが除去される。
func NewFieldSanitizer() *fieldSanitizer {
	return &fieldSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は文字列値からHTMLタグを全て除去する。
// bluemondayはエスケープ済みテキストを返すため、実体参照を
// 復元してから前後の空白を取り除く。
func (s *fieldSanitizer) Sanitize(value string) string {
	if value == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(value)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
