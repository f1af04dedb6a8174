package blog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hitoshi/taita/internal/apiclient"
	"github.com/hitoshi/taita/internal/model"
)

// API はRemoteBackendが使うバックエンド呼び出し。*apiclient.Client が満たす。
type API interface {
	Do(ctx context.Context, method, path string, opts apiclient.RequestOptions, out any) error
}

// RemoteBackend はバックエンドAPIからブログデータを取得する。
type RemoteBackend struct {
	api API
}

var _ Backend = (*RemoteBackend)(nil)

// NewRemoteBackend はRemoteBackendを生成する。
func NewRemoteBackend(api API) *RemoteBackend {
	return &RemoteBackend{api: api}
}

// SetTenant はAPIクライアントがテナント切り替えに対応していれば委譲する。
func (b *RemoteBackend) SetTenant(tenant string) {
	if ts, ok := b.api.(TenantSetter); ok {
		ts.SetTenant(tenant)
	}
}

// listOpts は一覧・検索系のリクエスト指定。既定以外のテナントをクエリにも載せる。
func listOpts(query url.Values) apiclient.RequestOptions {
	return apiclient.RequestOptions{Query: query, TenantQuery: true}
}

func (b *RemoteBackend) get(ctx context.Context, path string, opts apiclient.RequestOptions, out any) error {
	return b.api.Do(ctx, http.MethodGet, path, opts, out)
}

// ListPosts は /posts を取得する。
func (b *RemoteBackend) ListPosts(ctx context.Context, q model.PostQuery) (model.Page[model.Post], error) {
	return b.postPage(ctx, "/posts", q.Values())
}

// GetPost は /posts/{slug} を取得する。
func (b *RemoteBackend) GetPost(ctx context.Context, slug string) (*model.Post, error) {
	var env model.Envelope[*model.Post]
	if err := b.get(ctx, "/posts/"+url.PathEscape(slug), apiclient.RequestOptions{}, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, model.NewInvalidResponseError("post payload is empty")
	}
	return env.Data, nil
}

// ListCategories は /categories/public を取得する。
func (b *RemoteBackend) ListCategories(ctx context.Context, q model.ListQuery) ([]model.Category, error) {
	var env model.Envelope[[]model.Category]
	if err := b.get(ctx, "/categories/public", listOpts(q.Values()), &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []model.Category{}, nil
	}
	return env.Data, nil
}

// GetCategory は /categories/public/{slug} を取得する。
func (b *RemoteBackend) GetCategory(ctx context.Context, slug string) (*model.Category, error) {
	var env model.Envelope[*model.Category]
	if err := b.get(ctx, "/categories/public/"+url.PathEscape(slug), apiclient.RequestOptions{}, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, model.NewInvalidResponseError("category payload is empty")
	}
	return env.Data, nil
}

// ListTags は /tags/public を取得する。
func (b *RemoteBackend) ListTags(ctx context.Context, q model.ListQuery) ([]model.Tag, error) {
	var env model.Envelope[[]model.Tag]
	if err := b.get(ctx, "/tags/public", listOpts(q.Values()), &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []model.Tag{}, nil
	}
	return env.Data, nil
}

// GetTag は /tags/public/{slug} を取得する。
func (b *RemoteBackend) GetTag(ctx context.Context, slug string) (*model.Tag, error) {
	var env model.Envelope[*model.Tag]
	if err := b.get(ctx, "/tags/public/"+url.PathEscape(slug), apiclient.RequestOptions{}, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, model.NewInvalidResponseError("tag payload is empty")
	}
	return env.Data, nil
}

// ListPostsByCategory は /categories/public/{slug}/posts を取得する。
func (b *RemoteBackend) ListPostsByCategory(ctx context.Context, slug string, q model.PostQuery) (model.Page[model.Post], error) {
	q.Category = ""
	return b.postPage(ctx, "/categories/public/"+url.PathEscape(slug)+"/posts", q.Values())
}

// ListPostsByTag は /tags/public/{slug}/posts を取得する。
func (b *RemoteBackend) ListPostsByTag(ctx context.Context, slug string, q model.PostQuery) (model.Page[model.Post], error) {
	q.Tag = ""
	return b.postPage(ctx, "/tags/public/"+url.PathEscape(slug)+"/posts", q.Values())
}

// Search は /search?q= を取得する。
func (b *RemoteBackend) Search(ctx context.Context, query string, q model.PostQuery) (model.Page[model.Post], error) {
	q.Search = ""
	v := q.Values()
	v.Set("q", query)
	return b.postPage(ctx, "/search", v)
}

// Menu は /menu/public を取得する。
func (b *RemoteBackend) Menu(ctx context.Context) ([]model.MenuItem, error) {
	var env model.Envelope[[]model.MenuItem]
	if err := b.get(ctx, "/menu/public", listOpts(nil), &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []model.MenuItem{}, nil
	}
	return env.Data, nil
}

func (b *RemoteBackend) postPage(ctx context.Context, path string, query url.Values) (model.Page[model.Post], error) {
	var raw json.RawMessage
	if err := b.get(ctx, path, listOpts(query), &raw); err != nil {
		return model.Page[model.Post]{}, err
	}
	page, err := decodePostPage(raw)
	if err != nil {
		return model.Page[model.Post]{}, model.NewInvalidResponseError(err.Error())
	}
	return page, nil
}

// nestedPostPage はタグ別記事などが返す {data:{posts, pagination}} 形式。
type nestedPostPage struct {
	Data struct {
		Posts      []model.Post `json:"posts"`
		Pagination struct {
			CurrentPage int `json:"current_page"`
			LastPage    int `json:"last_page"`
			PerPage     int `json:"per_page"`
			Total       int `json:"total"`
		} `json:"pagination"`
	} `json:"data"`
}

// decodePostPage はページネーション応答を Page[Post] に正規化する。
// data が配列ならページネータ形式、オブジェクトなら {posts, pagination} 形式として扱う。
func decodePostPage(raw []byte) (model.Page[model.Post], error) {
	var shape struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return model.Page[model.Post]{}, fmt.Errorf("failed to decode post page: %w", err)
	}

	data := bytes.TrimSpace(shape.Data)
	if len(data) > 0 && data[0] == '{' {
		var nested nestedPostPage
		if err := json.Unmarshal(raw, &nested); err != nil {
			return model.Page[model.Post]{}, fmt.Errorf("failed to decode nested post page: %w", err)
		}
		p := nested.Data.Pagination
		return model.Page[model.Post]{
			Data:        nested.Data.Posts,
			CurrentPage: p.CurrentPage,
			LastPage:    p.LastPage,
			PerPage:     p.PerPage,
			Total:       p.Total,
		}.Normalize(), nil
	}

	var page model.Page[model.Post]
	if err := json.Unmarshal(raw, &page); err != nil {
		return model.Page[model.Post]{}, fmt.Errorf("failed to decode post page: %w", err)
	}
	return page.Normalize(), nil
}
