// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はスクレイピングで得た自由形式テキストのスクラブ機能を
// 定義する。プレイヤー名や統計テーブルの値は外部サイト由来の信頼できない
// 文字列であり、保存・描画前にマークアップを一切含まない形へ正規化する。
type TextSanitizerService interface {
	// Scrub は入力からすべてのHTMLタグを除去し、実体参照を復元して
	// 前後の空白を取り除いたプレーンテキストを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Scrub(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Scrub は入力をプレーンテキストへスクラブする。
// StrictPolicyがタグを除去した後、表示用に実体参照を復元する
// （出力はHTMLとしてではなく画像描画とJSONにのみ使われる）。
func (s *textSanitizer) Scrub(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
