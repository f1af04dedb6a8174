// Package security はクライアントデータ層のセキュリティ機能を提供する。
//
// ContentSanitizer はバックエンドから受け取った記事HTMLを許可リスト方式でサニタイズする。
// OutboundGuard はバックエンドAPIへの外向き通信を検証する。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer は記事HTMLのサニタイズ機能のインターフェース。
type ContentSanitizer interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。空文字列には空文字列を返す。
	Sanitize(rawHTML string) string
}

// postSanitizer はContentSanitizerの実装。bluemondayのポリシーはスレッドセーフ。
type postSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer は記事本文用のサニタイザを生成する。
// ポリシーの内容:
//   - 許可タグ: 見出し(h2〜h6)、段落、リスト、引用、コード、強調、表、figure、img、a
//   - script, iframe, style および on* 属性は除去
//   - img の src は https または相対パスのみ
//   - 外部リンクには target="_blank" と rel="noopener noreferrer" を付与
func NewContentSanitizer() ContentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr", "ul", "ol", "li",
		"h2", "h3", "h4", "h5", "h6",
		"blockquote", "pre", "code",
		"strong", "em", "b", "i", "u", "s", "sub", "sup",
		"figure", "figcaption",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre")

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowAttrs("width", "height").Matching(bluemonday.Integer).OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})
	p.AllowURLSchemes("mailto")

	return &postSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズする。
func (s *postSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}
