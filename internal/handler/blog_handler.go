package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taita/internal/model"
)

// BlogHandler は公開ブログデータのHTTPハンドラー。
// ストアの契約どおり、取得失敗時も200で既定値とエラーメッセージを返す。
type BlogHandler struct{}

// NewBlogHandler はBlogHandlerを生成する。
func NewBlogHandler() *BlogHandler {
	return &BlogHandler{}
}

// ListPosts は記事一覧を返す。
// GET /api/posts?page=&per_page=&category=&tag=&featured=&search=&sort_by=&sort_order=
func (h *BlogHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	page := set.Blog.FetchPosts(r.Context(), model.PostQueryFromValues(r.URL.Query()))
	writeData(w, set, page, set.Blog.Error())
}

// GetPost は記事1件と関連記事を返す。見つからない場合dataはnull。
// GET /api/posts/{slug}
func (h *BlogHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	post := set.Blog.FetchPost(r.Context(), chi.URLParam(r, "slug"))
	if post == nil {
		writeData(w, set, nil, set.Blog.Error())
		return
	}
	storeErr := set.Blog.Error()

	related := []model.Post{}
	if limit := queryInt(r, "related", 0); limit > 0 {
		// 関連記事は取得済みの一覧から選ぶ
		set.Blog.FetchPosts(r.Context(), model.PostQuery{PerPage: model.DefaultPerPage})
		related = set.Blog.RelatedPosts(*post, limit)
	}

	writeData(w, set, map[string]any{
		"post":           post,
		"related":        related,
		"image_url":      set.Blog.ImageURL(post.FeaturedImage),
		"published_date": set.Blog.FormatDate(post.PublishedAt),
	}, storeErr)
}

// ListCategories はカテゴリ一覧を返す。
// GET /api/categories
func (h *BlogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	cats := set.Blog.FetchCategories(r.Context(), listQuery(r))
	writeData(w, set, cats, set.Blog.Error())
}

// GetCategory はカテゴリ1件を返す。
// GET /api/categories/{slug}
func (h *BlogHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	cat := set.Blog.FetchCategory(r.Context(), chi.URLParam(r, "slug"))
	writeData(w, set, cat, set.Blog.Error())
}

// ListPostsByCategory はカテゴリの記事一覧を返す。
// GET /api/categories/{slug}/posts
func (h *BlogHandler) ListPostsByCategory(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	page := set.Blog.FetchPostsByCategory(r.Context(), chi.URLParam(r, "slug"), model.PostQueryFromValues(r.URL.Query()))
	writeData(w, set, page, set.Blog.Error())
}

// ListTags はタグ一覧を返す。
// GET /api/tags
func (h *BlogHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	tags := set.Blog.FetchTags(r.Context(), listQuery(r))
	writeData(w, set, tags, set.Blog.Error())
}

// GetTag はタグ1件を返す。
// GET /api/tags/{slug}
func (h *BlogHandler) GetTag(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	tag := set.Blog.FetchTag(r.Context(), chi.URLParam(r, "slug"))
	writeData(w, set, tag, set.Blog.Error())
}

// ListPostsByTag はタグの記事一覧を返す。
// GET /api/tags/{slug}/posts
func (h *BlogHandler) ListPostsByTag(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	page := set.Blog.FetchPostsByTag(r.Context(), chi.URLParam(r, "slug"), model.PostQueryFromValues(r.URL.Query()))
	writeData(w, set, page, set.Blog.Error())
}

// Search は記事を全文検索する。
// GET /api/search?q=
func (h *BlogHandler) Search(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	page := set.Blog.SearchPosts(r.Context(), r.URL.Query().Get("q"), model.PostQueryFromValues(r.URL.Query()))
	writeData(w, set, page, set.Blog.Error())
}

// Menu は公開メニューを返す。
// GET /api/menu
func (h *BlogHandler) Menu(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	menu := set.Blog.FetchMenu(r.Context())
	writeData(w, set, menu, set.Blog.Error())
}

// Bootstrap は初回表示に必要なカテゴリ、タグ、メニュー、記事の1ページ目をまとめて返す。
// 一部の取得に失敗しても取得できたものは返す。
// GET /api/bootstrap?per_page=
func (h *BlogHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	_ = set.Blog.Preload(r.Context(), queryInt(r, "per_page", model.DefaultPerPage))
	writeData(w, set, map[string]any{
		"posts":      set.Blog.Posts(),
		"featured":   set.Blog.FeaturedPosts(),
		"pagination": set.Blog.Pagination(),
		"categories": set.Blog.Categories(),
		"tags":       set.Blog.Tags(),
		"menu":       set.Blog.Menu(),
	}, set.Blog.Error())
}

func listQuery(r *http.Request) model.ListQuery {
	return model.ListQuery{
		Page:    queryInt(r, "page", 0),
		PerPage: queryInt(r, "per_page", 0),
	}
}

// queryInt は正の整数クエリパラメータを返す。不正な値はdef。
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
