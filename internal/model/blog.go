package model

// Author は記事の著者を表す。
type Author struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email,omitempty"`
	Avatar      string            `json:"avatar,omitempty"`
	Bio         string            `json:"bio,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`
}

// Category は記事カテゴリを表す。
type Category struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Description   string `json:"description,omitempty"`
	PostsCount    int    `json:"posts_count"`
	FeaturedImage string `json:"featured_image,omitempty"`
}

// Tag は記事タグを表す。
type Tag struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	PostsCount  int    `json:"posts_count"`
}

// Post はブログ記事を表す。
// PublishedAt / UpdatedAt はバックエンドが返すRFC3339文字列のまま保持する。
type Post struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	Excerpt         string    `json:"excerpt"`
	Content         string    `json:"content"`
	FeaturedImage   string    `json:"featured_image,omitempty"`
	Featured        bool      `json:"featured"`
	PublishedAt     string    `json:"published_at"`
	UpdatedAt       string    `json:"updated_at,omitempty"`
	ReadingTime     int       `json:"reading_time"`
	AuthorID        int64     `json:"author_id,omitempty"`
	CategoryID      int64     `json:"category_id,omitempty"`
	Author          *Author   `json:"author,omitempty"`
	Category        *Category `json:"category,omitempty"`
	Tags            []Tag     `json:"tags"`
	MetaTitle       string    `json:"meta_title,omitempty"`
	MetaDescription string    `json:"meta_description,omitempty"`
}

// HasTag は指定スラッグのタグを持つかを返す。
func (p Post) HasTag(slug string) bool {
	for _, t := range p.Tags {
		if t.Slug == slug {
			return true
		}
	}
	return false
}

// MenuItem は公開メニューの1項目を表す。
type MenuItem struct {
	ID       int64      `json:"id"`
	Label    string     `json:"label"`
	URL      string     `json:"url"`
	Order    int        `json:"order"`
	Children []MenuItem `json:"children,omitempty"`
}

// DefaultPerPage は一覧取得時の既定件数。
const DefaultPerPage = 10

// Page はバックエンドのページネーション応答。
type Page[T any] struct {
	Data        []T `json:"data"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// EmptyPage は失敗時・結果なし時に返す既定のページを生成する。
// perPageが0以下の場合はDefaultPerPageを使う。
func EmptyPage[T any](perPage int) Page[T] {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return Page[T]{
		Data:        []T{},
		CurrentPage: 1,
		LastPage:    1,
		PerPage:     perPage,
		Total:       0,
	}
}

// Normalize はnilのDataや0のページ番号を既定値で補正したコピーを返す。
func (p Page[T]) Normalize() Page[T] {
	if p.Data == nil {
		p.Data = []T{}
	}
	if p.CurrentPage < 1 {
		p.CurrentPage = 1
	}
	if p.LastPage < p.CurrentPage {
		p.LastPage = p.CurrentPage
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	return p
}

// Envelope は単一エンティティ・コレクション応答の {"data": T} ラッパー。
type Envelope[T any] struct {
	Data T `json:"data"`
}
