package fixture

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"

	"github.com/hitoshi/taita/internal/model"
)

// ParseFeed はRSS/Atom/JSON Feedを読み込み、記事・カテゴリ・タグに変換する。
// フィードの最初のカテゴリを記事のカテゴリ、全カテゴリをタグとして扱う。
func ParseFeed(r io.Reader) (*Dataset, error) {
	parsed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fixture feed: %w", err)
	}

	ds := &Dataset{
		Posts:      []model.Post{},
		Categories: []model.Category{},
		Tags:       []model.Tag{},
		Menu:       []model.MenuItem{{ID: 1, Label: "Inicio", URL: "/", Order: 1}},
	}
	categories := make(map[string]*model.Category)
	tags := make(map[string]*model.Tag)

	var author *model.Author
	if len(parsed.Authors) > 0 && parsed.Authors[0] != nil {
		author = &model.Author{ID: 1, Name: parsed.Authors[0].Name, Email: parsed.Authors[0].Email}
	}

	var id int64
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		id++
		post := convertItem(item, id)
		if post.Author == nil && author != nil {
			a := *author
			post.Author = &a
			post.AuthorID = a.ID
		}

		for i, name := range item.Categories {
			slug := Slugify(name)
			if slug == "" {
				continue
			}
			if i == 0 {
				c, ok := categories[slug]
				if !ok {
					c = &model.Category{ID: int64(len(categories) + 1), Name: name, Slug: slug}
					categories[slug] = c
					ds.Categories = append(ds.Categories, *c)
				}
				cc := *c
				post.Category = &cc
				post.CategoryID = c.ID
			}
			t, ok := tags[slug]
			if !ok {
				t = &model.Tag{ID: int64(len(tags) + 1), Name: name, Slug: slug}
				tags[slug] = t
				ds.Tags = append(ds.Tags, *t)
			}
			post.Tags = append(post.Tags, *t)
		}
		ds.Posts = append(ds.Posts, post)
	}

	ds.countPosts()
	return ds, nil
}

func convertItem(item *gofeed.Item, id int64) model.Post {
	post := model.Post{
		ID:      id,
		Title:   item.Title,
		Content: item.Content,
		Excerpt: item.Description,
		Tags:    []model.Tag{},
	}
	if post.Content == "" {
		post.Content = item.Description
	}
	if post.Excerpt == post.Content {
		post.Excerpt = ""
	}

	post.Slug = Slugify(item.Title)
	if post.Slug == "" {
		post.Slug = slugFromLink(item.Link)
	}
	if post.Slug == "" {
		post.Slug = fmt.Sprintf("post-%d", id)
	}

	switch {
	case item.PublishedParsed != nil:
		post.PublishedAt = item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		post.PublishedAt = item.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	if item.UpdatedParsed != nil {
		post.UpdatedAt = item.UpdatedParsed.UTC().Format(time.RFC3339)
	}

	if item.Image != nil {
		post.FeaturedImage = item.Image.URL
	}
	if item.Author != nil && item.Author.Name != "" {
		post.Author = &model.Author{ID: 1, Name: item.Author.Name, Email: item.Author.Email}
		post.AuthorID = 1
	}
	return post
}

func slugFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Path == "" {
		return ""
	}
	return Slugify(path.Base(strings.TrimRight(u.Path, "/")))
}

// Slugify は見出しをURLスラッグに変換する。アクセント記号は取り除く（"Cómo" → "como"）。
func Slugify(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
			dash = false
		default:
			if sb.Len() > 0 && !dash {
				sb.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(sb.String(), "-")
}
