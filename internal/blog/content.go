package blog

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hitoshi/taita/internal/model"
	"github.com/hitoshi/taita/internal/security"
)

const (
	// WordsPerMinute は読了時間の算出に使う読書速度。
	WordsPerMinute = 200
	// ExcerptLength は本文から抜粋を作るときの最大文字数。
	ExcerptLength = 160
)

// ContentProcessor は取得した記事の本文をサニタイズし、抜粋と読了時間を補完する。
type ContentProcessor struct {
	sanitizer security.ContentSanitizer
}

// NewContentProcessor はContentProcessorを生成する。sanitizerがnilなら既定のポリシーを使う。
func NewContentProcessor(sanitizer security.ContentSanitizer) *ContentProcessor {
	if sanitizer == nil {
		sanitizer = security.NewContentSanitizer()
	}
	return &ContentProcessor{sanitizer: sanitizer}
}

// Process は記事1件を処理したコピーを返す。
func (p *ContentProcessor) Process(post model.Post) model.Post {
	post.Content = p.sanitizer.Sanitize(post.Content)

	text := PlainText(post.Content)
	if strings.TrimSpace(post.Excerpt) == "" {
		post.Excerpt = Excerpt(text, ExcerptLength)
	} else {
		post.Excerpt = PlainText(post.Excerpt)
	}
	if post.ReadingTime <= 0 {
		post.ReadingTime = ReadingTime(text)
	}
	if post.Tags == nil {
		post.Tags = []model.Tag{}
	}
	return post
}

// ProcessAll は記事一覧を処理する。
func (p *ContentProcessor) ProcessAll(posts []model.Post) []model.Post {
	out := make([]model.Post, len(posts))
	for i, post := range posts {
		out[i] = p.Process(post)
	}
	return out
}

// PlainText はHTMLからテキストだけを取り出し、空白を1つにまとめる。
func PlainText(fragment string) string {
	if fragment == "" {
		return ""
	}

	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF も不正な入力もそこまでのテキストを返す
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken, html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "script" || string(name) == "style" {
				if tt == html.StartTagToken {
					skip++
				} else if skip > 0 {
					skip--
				}
			}
			// ブロック要素の境界で単語がつながらないよう空白を入れる
			sb.WriteByte(' ')
		case html.SelfClosingTagToken:
			sb.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

// Excerpt はテキストをmaxRunes文字以内に切り詰める。単語の途中では切らない。
func Excerpt(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:maxRunes])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

// ReadingTime は単語数から読了時間（分）を返す。最小1分。
func ReadingTime(text string) int {
	words := len(strings.Fields(text))
	minutes := (words + WordsPerMinute - 1) / WordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}
