// Package blog はブログの記事・カテゴリ・タグの取得と、取得結果を保持するストアを提供する。
package blog

import (
	"context"

	"github.com/hitoshi/taita/internal/model"
)

// Backend はブログデータの取得元。
// RemoteBackend がバックエンドAPIを、fixture.Backend が埋め込みサンプルデータを実装する。
type Backend interface {
	ListPosts(ctx context.Context, q model.PostQuery) (model.Page[model.Post], error)
	GetPost(ctx context.Context, slug string) (*model.Post, error)
	ListCategories(ctx context.Context, q model.ListQuery) ([]model.Category, error)
	GetCategory(ctx context.Context, slug string) (*model.Category, error)
	ListTags(ctx context.Context, q model.ListQuery) ([]model.Tag, error)
	GetTag(ctx context.Context, slug string) (*model.Tag, error)
	ListPostsByCategory(ctx context.Context, slug string, q model.PostQuery) (model.Page[model.Post], error)
	ListPostsByTag(ctx context.Context, slug string, q model.PostQuery) (model.Page[model.Post], error)
	Search(ctx context.Context, query string, q model.PostQuery) (model.Page[model.Post], error)
	Menu(ctx context.Context) ([]model.MenuItem, error)
}

// TenantSetter はテナント切り替えに追従する取得元が実装する。
type TenantSetter interface {
	SetTenant(tenant string)
}
