package fixture

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/hitoshi/taita/internal/blog"
	"github.com/hitoshi/taita/internal/model"
)

// Backend はDatasetをメモリ上で絞り込み・並べ替え・ページ分割して返す。
type Backend struct {
	mu     sync.RWMutex
	ds     *Dataset
	tenant string
}

var _ blog.Backend = (*Backend)(nil)

// NewBackend はBackendを生成する。dsがnilなら埋め込みサンプルを使う。
func NewBackend(ds *Dataset) (*Backend, error) {
	if ds == nil {
		sample, err := Sample()
		if err != nil {
			return nil, err
		}
		ds = sample
	}
	return &Backend{ds: ds}, nil
}

// SetTenant はテナントを記録する。固定データはテナントで変わらない。
func (b *Backend) SetTenant(tenant string) {
	b.mu.Lock()
	b.tenant = tenant
	b.mu.Unlock()
}

func notFound() error {
	return model.NewHTTPError(http.StatusNotFound, "", nil)
}

// ListPosts は条件に合う記事をページ分割して返す。
func (b *Backend) ListPosts(_ context.Context, q model.PostQuery) (model.Page[model.Post], error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return paginate(sortPosts(filterPosts(b.ds.Posts, q), q), q.Page, q.PerPage), nil
}

// GetPost はスラッグで記事を返す。
func (b *Backend) GetPost(_ context.Context, slug string) (*model.Post, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.ds.Posts {
		if p.Slug == slug {
			out := p
			return &out, nil
		}
	}
	return nil, notFound()
}

// ListCategories はカテゴリ一覧を返す。
func (b *Backend) ListCategories(_ context.Context, q model.ListQuery) ([]model.Category, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return window(b.ds.Categories, q), nil
}

// GetCategory はスラッグでカテゴリを返す。
func (b *Backend) GetCategory(_ context.Context, slug string) (*model.Category, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.ds.Categories {
		if c.Slug == slug {
			out := c
			return &out, nil
		}
	}
	return nil, notFound()
}

// ListTags はタグ一覧を返す。
func (b *Backend) ListTags(_ context.Context, q model.ListQuery) ([]model.Tag, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return window(b.ds.Tags, q), nil
}

// GetTag はスラッグでタグを返す。
func (b *Backend) GetTag(_ context.Context, slug string) (*model.Tag, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.ds.Tags {
		if t.Slug == slug {
			out := t
			return &out, nil
		}
	}
	return nil, notFound()
}

// ListPostsByCategory はカテゴリ別の記事を返す。存在しないカテゴリは404。
func (b *Backend) ListPostsByCategory(ctx context.Context, slug string, q model.PostQuery) (model.Page[model.Post], error) {
	if _, err := b.GetCategory(ctx, slug); err != nil {
		return model.Page[model.Post]{}, err
	}
	q.Category = slug
	return b.ListPosts(ctx, q)
}

// ListPostsByTag はタグ別の記事を返す。存在しないタグは404。
func (b *Backend) ListPostsByTag(ctx context.Context, slug string, q model.PostQuery) (model.Page[model.Post], error) {
	if _, err := b.GetTag(ctx, slug); err != nil {
		return model.Page[model.Post]{}, err
	}
	q.Tag = slug
	return b.ListPosts(ctx, q)
}

// Search はタイトル・抜粋・本文の部分一致で検索する。
func (b *Backend) Search(ctx context.Context, query string, q model.PostQuery) (model.Page[model.Post], error) {
	q.Search = query
	return b.ListPosts(ctx, q)
}

// Menu はメニューを返す。
func (b *Backend) Menu(_ context.Context) ([]model.MenuItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyMenu(b.ds.Menu), nil
}

// copyMenu は子要素まで複製する。呼び出し側が並べ替えても共有データは変わらない。
func copyMenu(items []model.MenuItem) []model.MenuItem {
	out := make([]model.MenuItem, len(items))
	for i, item := range items {
		out[i] = item
		if item.Children != nil {
			out[i].Children = copyMenu(item.Children)
		}
	}
	return out
}

func filterPosts(posts []model.Post, q model.PostQuery) []model.Post {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := []model.Post{}
	for _, p := range posts {
		if q.Category != "" && (p.Category == nil || p.Category.Slug != q.Category) {
			continue
		}
		if q.Tag != "" && !p.HasTag(q.Tag) {
			continue
		}
		if q.Featured && !p.Featured {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Excerpt), search) &&
			!strings.Contains(strings.ToLower(p.Content), search) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// sortPosts は sort_by (published_at, title) と sort_order で並べ替える。既定は公開日の新しい順。
func sortPosts(posts []model.Post, q model.PostQuery) []model.Post {
	asc := strings.EqualFold(q.SortOrder, "asc")
	less := func(i, j int) bool {
		if q.SortBy == "title" {
			return posts[i].Title < posts[j].Title
		}
		ti, _ := blog.ParseDate(posts[i].PublishedAt)
		tj, _ := blog.ParseDate(posts[j].PublishedAt)
		return ti.Before(tj)
	}
	if q.SortBy == "title" && q.SortOrder == "" {
		asc = true
	}
	sort.SliceStable(posts, func(i, j int) bool {
		if asc {
			return less(i, j)
		}
		return less(j, i)
	})
	return posts
}

func paginate(posts []model.Post, page, perPage int) model.Page[model.Post] {
	if perPage <= 0 {
		perPage = model.DefaultPerPage
	}
	if page < 1 {
		page = 1
	}
	total := len(posts)
	lastPage := (total + perPage - 1) / perPage
	if lastPage < 1 {
		lastPage = 1
	}

	start := (page - 1) * perPage
	data := []model.Post{}
	if start < total {
		end := min(start+perPage, total)
		data = append(data, posts[start:end]...)
	}
	return model.Page[model.Post]{
		Data:        data,
		CurrentPage: page,
		LastPage:    lastPage,
		PerPage:     perPage,
		Total:       total,
	}
}

func window[T any](items []T, q model.ListQuery) []T {
	out := append([]T{}, items...)
	if q.PerPage <= 0 {
		return out
	}
	page := max(q.Page, 1)
	start := (page - 1) * q.PerPage
	if start >= len(out) {
		return []T{}
	}
	return out[start:min(start+q.PerPage, len(out))]
}
