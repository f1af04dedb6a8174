package blog

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/taita/internal/apiclient"
	"github.com/hitoshi/taita/internal/model"
)

const (
	// recentPostsLimit はRecentPostsが返す件数。
	recentPostsLimit = 5
	// relatedPostsLimit はRelatedPostsの既定件数。
	relatedPostsLimit = 3
)

// ErrorRecorder はストアの取得失敗を記録する。metrics.Collector が満たす。
type ErrorRecorder interface {
	RecordStoreError(operation string)
}

// Options はStoreの設定。
type Options struct {
	Tenant       string
	ImageBaseURL string
	Locale       string
	Processor    *ContentProcessor
	Logger       *slog.Logger
	Metrics      ErrorRecorder
}

// Pagination は直近の記事一覧のページ情報。
type Pagination struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// Store は取得したブログデータを保持する。
// 取得に失敗しても呼び出し元にエラーを返さず、メッセージをError()に記録して既定値を返す。
type Store struct {
	backend   Backend
	processor *ContentProcessor
	logger    *slog.Logger
	metrics   ErrorRecorder
	imageBase string
	locale    string

	mu              sync.RWMutex
	tenant          string
	posts           []model.Post
	categories      []model.Category
	tags            []model.Tag
	menu            []model.MenuItem
	currentPost     *model.Post
	currentCategory *model.Category
	currentTag      *model.Tag
	searchResults   model.Page[model.Post]
	pagination      Pagination
	loading         int
	lastErr         string
}

// NewStore はStoreを生成する。
func NewStore(backend Backend, opts Options) *Store {
	if opts.Processor == nil {
		opts.Processor = NewContentProcessor(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Locale == "" {
		opts.Locale = "es"
	}
	return &Store{
		backend:       backend,
		processor:     opts.Processor,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		imageBase:     opts.ImageBaseURL,
		locale:        opts.Locale,
		tenant:        opts.Tenant,
		posts:         []model.Post{},
		categories:    []model.Category{},
		tags:          []model.Tag{},
		menu:          []model.MenuItem{},
		searchResults: model.EmptyPage[model.Post](0),
		pagination:    Pagination{CurrentPage: 1, LastPage: 1, PerPage: model.DefaultPerPage},
	}
}

// FetchPosts は記事一覧を取得してPosts()とPagination()を更新する。
func (s *Store) FetchPosts(ctx context.Context, q model.PostQuery) model.Page[model.Post] {
	s.begin()
	defer s.end()

	page, err := s.backend.ListPosts(ctx, q)
	if err != nil {
		s.fail("fetch_posts", err, "Failed to fetch posts")
		return model.EmptyPage[model.Post](q.PerPage)
	}
	page = s.processPage(page)
	s.setPostPage(page)
	return page
}

// FetchPost はスラッグで記事を取得してCurrentPost()を更新する。失敗時はnil。
func (s *Store) FetchPost(ctx context.Context, slug string) *model.Post {
	s.begin()
	defer s.end()

	post, err := s.backend.GetPost(ctx, slug)
	if err != nil {
		s.fail("fetch_post", err, "Failed to fetch post")
		s.mu.Lock()
		s.currentPost = nil
		s.mu.Unlock()
		return nil
	}
	processed := s.processor.Process(*post)

	s.mu.Lock()
	s.currentPost = &processed
	s.mu.Unlock()

	out := processed
	return &out
}

// FetchCategories はカテゴリ一覧を取得する。失敗時は空スライス。
func (s *Store) FetchCategories(ctx context.Context, q model.ListQuery) []model.Category {
	s.begin()
	defer s.end()

	categories, err := s.backend.ListCategories(ctx, q)
	if err != nil {
		s.fail("fetch_categories", err, "Failed to fetch categories")
		return []model.Category{}
	}
	if categories == nil {
		categories = []model.Category{}
	}

	s.mu.Lock()
	s.categories = categories
	s.mu.Unlock()
	return append([]model.Category(nil), categories...)
}

// FetchCategory はスラッグでカテゴリを取得してCurrentCategory()を更新する。
func (s *Store) FetchCategory(ctx context.Context, slug string) *model.Category {
	s.begin()
	defer s.end()

	category, err := s.backend.GetCategory(ctx, slug)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.currentCategory = nil
		s.failLocked("fetch_category", err, "Failed to fetch category")
		return nil
	}
	s.currentCategory = category
	out := *category
	return &out
}

// FetchTags はタグ一覧を取得する。失敗時は空スライス。
func (s *Store) FetchTags(ctx context.Context, q model.ListQuery) []model.Tag {
	s.begin()
	defer s.end()

	tags, err := s.backend.ListTags(ctx, q)
	if err != nil {
		s.fail("fetch_tags", err, "Failed to fetch tags")
		return []model.Tag{}
	}
	if tags == nil {
		tags = []model.Tag{}
	}

	s.mu.Lock()
	s.tags = tags
	s.mu.Unlock()
	return append([]model.Tag(nil), tags...)
}

// FetchTag はスラッグでタグを取得してCurrentTag()を更新する。
func (s *Store) FetchTag(ctx context.Context, slug string) *model.Tag {
	s.begin()
	defer s.end()

	tag, err := s.backend.GetTag(ctx, slug)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.currentTag = nil
		s.failLocked("fetch_tag", err, "Failed to fetch tag")
		return nil
	}
	s.currentTag = tag
	out := *tag
	return &out
}

// FetchPostsByCategory はカテゴリ別の記事一覧を取得してPosts()を更新する。
func (s *Store) FetchPostsByCategory(ctx context.Context, slug string, q model.PostQuery) model.Page[model.Post] {
	s.begin()
	defer s.end()

	page, err := s.backend.ListPostsByCategory(ctx, slug, q)
	if err != nil {
		s.fail("fetch_posts_by_category", err, "Failed to fetch category posts")
		return model.EmptyPage[model.Post](q.PerPage)
	}
	page = s.processPage(page)
	s.setPostPage(page)
	return page
}

// FetchPostsByTag はタグ別の記事一覧を取得してPosts()を更新する。
func (s *Store) FetchPostsByTag(ctx context.Context, slug string, q model.PostQuery) model.Page[model.Post] {
	s.begin()
	defer s.end()

	page, err := s.backend.ListPostsByTag(ctx, slug, q)
	if err != nil {
		s.fail("fetch_posts_by_tag", err, "Failed to fetch tag posts")
		return model.EmptyPage[model.Post](q.PerPage)
	}
	page = s.processPage(page)
	s.setPostPage(page)
	return page
}

// SearchPosts は全文検索してSearchResults()を更新する。空のクエリは通信せず空ページを返す。
func (s *Store) SearchPosts(ctx context.Context, query string, q model.PostQuery) model.Page[model.Post] {
	query = strings.TrimSpace(query)
	if query == "" {
		empty := model.EmptyPage[model.Post](q.PerPage)
		s.mu.Lock()
		s.searchResults = empty
		s.lastErr = ""
		s.mu.Unlock()
		return empty
	}

	s.begin()
	defer s.end()

	page, err := s.backend.Search(ctx, query, q)
	if err != nil {
		s.fail("search_posts", err, "Failed to search posts")
		return model.EmptyPage[model.Post](q.PerPage)
	}
	page = s.processPage(page)

	s.mu.Lock()
	s.searchResults = page
	s.mu.Unlock()
	return page
}

// FetchMenu は公開メニューを取得する。失敗時は空スライス。
func (s *Store) FetchMenu(ctx context.Context) []model.MenuItem {
	s.begin()
	defer s.end()

	menu, err := s.backend.Menu(ctx)
	if err != nil {
		s.fail("fetch_menu", err, "Failed to fetch menu")
		return []model.MenuItem{}
	}
	if menu == nil {
		menu = []model.MenuItem{}
	}
	menu = cloneMenu(menu)
	sortMenu(menu)

	s.mu.Lock()
	s.menu = menu
	s.mu.Unlock()
	return append([]model.MenuItem(nil), menu...)
}

// Preload はカテゴリ、タグ、メニュー、記事の1ページ目を並行に取得する。
// 成功したものだけ状態に反映し、最初のエラーを返す。
func (s *Store) Preload(ctx context.Context, perPage int) error {
	s.begin()
	defer s.end()

	var (
		g          errgroup.Group
		categories []model.Category
		tags       []model.Tag
		menu       []model.MenuItem
		page       model.Page[model.Post]
		postsOK    bool
	)

	g.Go(func() error {
		res, err := s.backend.ListCategories(ctx, model.ListQuery{})
		if err != nil {
			return err
		}
		categories = res
		return nil
	})
	g.Go(func() error {
		res, err := s.backend.ListTags(ctx, model.ListQuery{})
		if err != nil {
			return err
		}
		tags = res
		return nil
	})
	g.Go(func() error {
		res, err := s.backend.Menu(ctx)
		if err != nil {
			return err
		}
		menu = res
		return nil
	})
	g.Go(func() error {
		res, err := s.backend.ListPosts(ctx, model.PostQuery{Page: 1, PerPage: perPage})
		if err != nil {
			return err
		}
		page, postsOK = s.processPage(res), true
		return nil
	})
	err := g.Wait()

	if postsOK {
		s.setPostPage(page)
	}
	s.mu.Lock()
	if categories != nil {
		s.categories = categories
	}
	if tags != nil {
		s.tags = tags
	}
	if menu != nil {
		menu = cloneMenu(menu)
		sortMenu(menu)
		s.menu = menu
	}
	s.mu.Unlock()

	if err != nil {
		s.fail("preload", err, "Failed to load blog data")
		return err
	}
	return nil
}

// SetTenant は以降の取得で使うテナントを切り替える。
func (s *Store) SetTenant(tenant string) {
	s.mu.Lock()
	s.tenant = tenant
	s.mu.Unlock()
	if ts, ok := s.backend.(TenantSetter); ok {
		ts.SetTenant(tenant)
	}
}

// Tenant は現在のテナントを返す。
func (s *Store) Tenant() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenant
}

// Posts は直近に取得した記事一覧を返す。
func (s *Store) Posts() []model.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Post{}, s.posts...)
}

// FeaturedPosts はPosts()のうち注目記事だけを返す。
func (s *Store) FeaturedPosts() []model.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Post{}
	for _, p := range s.posts {
		if p.Featured {
			out = append(out, p)
		}
	}
	return out
}

// RecentPosts は公開日時の新しい順に最大5件を返す。
func (s *Store) RecentPosts() []model.Post {
	posts := s.Posts()
	sort.SliceStable(posts, func(i, j int) bool {
		ti, _ := ParseDate(posts[i].PublishedAt)
		tj, _ := ParseDate(posts[j].PublishedAt)
		return ti.After(tj)
	})
	if len(posts) > recentPostsLimit {
		posts = posts[:recentPostsLimit]
	}
	return posts
}

// RelatedPosts はpostとタグを共有する記事をPosts()から最大limit件返す。
// limitが0以下なら3件。
func (s *Store) RelatedPosts(post model.Post, limit int) []model.Post {
	if limit <= 0 {
		limit = relatedPostsLimit
	}
	tagSet := make(map[string]struct{}, len(post.Tags))
	for _, t := range post.Tags {
		if slug := strings.ToLower(strings.TrimSpace(t.Slug)); slug != "" {
			tagSet[slug] = struct{}{}
		}
	}

	related := []model.Post{}
	for _, p := range s.Posts() {
		if p.Slug == post.Slug {
			continue
		}
		for _, t := range p.Tags {
			if _, ok := tagSet[strings.ToLower(strings.TrimSpace(t.Slug))]; ok {
				related = append(related, p)
				break
			}
		}
		if len(related) == limit {
			break
		}
	}
	return related
}

// Categories は直近に取得したカテゴリ一覧を返す。
func (s *Store) Categories() []model.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Category{}, s.categories...)
}

// Tags は直近に取得したタグ一覧を返す。
func (s *Store) Tags() []model.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Tag{}, s.tags...)
}

// Menu は直近に取得したメニューを返す。
func (s *Store) Menu() []model.MenuItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.MenuItem{}, s.menu...)
}

// CurrentPost は直近にFetchPostで取得した記事を返す。
func (s *Store) CurrentPost() *model.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentPost == nil {
		return nil
	}
	p := *s.currentPost
	return &p
}

// CurrentCategory は直近にFetchCategoryで取得したカテゴリを返す。
func (s *Store) CurrentCategory() *model.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentCategory == nil {
		return nil
	}
	c := *s.currentCategory
	return &c
}

// CurrentTag は直近にFetchTagで取得したタグを返す。
func (s *Store) CurrentTag() *model.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentTag == nil {
		return nil
	}
	t := *s.currentTag
	return &t
}

// SearchResults は直近の検索結果を返す。
func (s *Store) SearchResults() model.Page[model.Post] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page := s.searchResults
	page.Data = append([]model.Post{}, page.Data...)
	return page
}

// Pagination は直近の記事一覧のページ情報を返す。
func (s *Store) Pagination() Pagination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pagination
}

// Loading は取得中の処理があるかを返す。
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// Error は直近の取得失敗のメッセージを返す。成功した取得で空に戻る。
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ImageURL は画像パスを設定された画像ベースURLで絶対URLにする。
func (s *Store) ImageURL(path string) string {
	return ImageURL(s.imageBase, path)
}

// FormatDate は日付をストアのロケールで表示する。
func (s *Store) FormatDate(date string) string {
	return FormatDate(date, s.locale)
}

func (s *Store) processPage(page model.Page[model.Post]) model.Page[model.Post] {
	page = page.Normalize()
	page.Data = s.processor.ProcessAll(page.Data)
	return page
}

func (s *Store) setPostPage(page model.Page[model.Post]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = page.Data
	s.pagination = Pagination{
		CurrentPage: page.CurrentPage,
		LastPage:    page.LastPage,
		PerPage:     page.PerPage,
		Total:       page.Total,
	}
}

func (s *Store) begin() {
	s.mu.Lock()
	s.loading++
	s.lastErr = ""
	s.mu.Unlock()
}

func (s *Store) end() {
	s.mu.Lock()
	s.loading--
	s.mu.Unlock()
}

func (s *Store) fail(operation string, err error, fallback string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLocked(operation, err, fallback)
}

func (s *Store) failLocked(operation string, err error, fallback string) {
	s.lastErr = apiclient.MessageFor(err, fallback)
	attrs := []any{
		slog.String("operation", operation),
		slog.String("tenant", s.tenant),
		slog.String("error", err.Error()),
	}
	// 存在しないスラッグは障害ではない
	if apiclient.IsNotFound(err) {
		s.logger.Warn("blog resource not found", attrs...)
		return
	}
	s.logger.Error("blog fetch failed", attrs...)
	if s.metrics != nil {
		s.metrics.RecordStoreError(operation)
	}
}

// cloneMenu は子要素まで複製する。並べ替えがバックエンドの保持するデータに及ばないようにする。
func cloneMenu(items []model.MenuItem) []model.MenuItem {
	out := make([]model.MenuItem, len(items))
	for i, item := range items {
		out[i] = item
		if item.Children != nil {
			out[i].Children = cloneMenu(item.Children)
		}
	}
	return out
}

func sortMenu(items []model.MenuItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	for i := range items {
		if len(items[i].Children) > 0 {
			sortMenu(items[i].Children)
		}
	}
}
