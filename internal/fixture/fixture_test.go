package fixture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hitoshi/taita/internal/model"
)

func newSampleBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackend(nil)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	return b
}

func TestSample(t *testing.T) {
	ds, err := Sample()
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if len(ds.Posts) != 2 || len(ds.Categories) != 2 || len(ds.Tags) != 3 {
		t.Errorf("dataset sizes = %d/%d/%d", len(ds.Posts), len(ds.Categories), len(ds.Tags))
	}
	if ds.Posts[0].Slug != "bienvenido-al-blog" || !ds.Posts[0].Featured {
		t.Errorf("first post = %+v", ds.Posts[0])
	}
	if ds.Posts[0].Author == nil || ds.Posts[0].Author.Name != "Admin" {
		t.Errorf("author = %+v", ds.Posts[0].Author)
	}
	if ds.Tags[2].PostsCount != 0 || ds.Tags[0].PostsCount != 1 {
		t.Errorf("tag counts = %d, %d", ds.Tags[0].PostsCount, ds.Tags[2].PostsCount)
	}
}

func TestSample_ReturnsIndependentCopies(t *testing.T) {
	a, _ := Sample()
	b, _ := Sample()
	a.Posts[0].Title = "changed"
	if b.Posts[0].Title == "changed" {
		t.Error("Sample() should not share state between calls")
	}
}

func TestBackend_ListPosts(t *testing.T) {
	b := newSampleBackend(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		q         model.PostQuery
		wantSlugs []string
	}{
		{"default newest first", model.PostQuery{}, []string{"bienvenido-al-blog", "como-utilizar-nuxt-3"}},
		{"ascending", model.PostQuery{SortOrder: "asc"}, []string{"como-utilizar-nuxt-3", "bienvenido-al-blog"}},
		{"by title", model.PostQuery{SortBy: "title"}, []string{"bienvenido-al-blog", "como-utilizar-nuxt-3"}},
		{"featured", model.PostQuery{Featured: true}, []string{"bienvenido-al-blog"}},
		{"category", model.PostQuery{Category: "tecnologia"}, []string{"como-utilizar-nuxt-3"}},
		{"tag", model.PostQuery{Tag: "blog"}, []string{"bienvenido-al-blog"}},
		{"search", model.PostQuery{Search: "NUXT"}, []string{"como-utilizar-nuxt-3"}},
		{"no match", model.PostQuery{Search: "rust"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := b.ListPosts(ctx, tt.q)
			if err != nil {
				t.Fatalf("ListPosts() error = %v", err)
			}
			if len(page.Data) != len(tt.wantSlugs) {
				t.Fatalf("len(Data) = %d, want %d", len(page.Data), len(tt.wantSlugs))
			}
			for i, slug := range tt.wantSlugs {
				if page.Data[i].Slug != slug {
					t.Errorf("Data[%d] = %q, want %q", i, page.Data[i].Slug, slug)
				}
			}
		})
	}
}

func TestBackend_Pagination(t *testing.T) {
	b := newSampleBackend(t)

	page, _ := b.ListPosts(context.Background(), model.PostQuery{Page: 2, PerPage: 1})
	if page.CurrentPage != 2 || page.LastPage != 2 || page.Total != 2 || page.PerPage != 1 {
		t.Errorf("page = %+v", page)
	}
	if len(page.Data) != 1 || page.Data[0].Slug != "como-utilizar-nuxt-3" {
		t.Errorf("Data = %+v", page.Data)
	}

	beyond, _ := b.ListPosts(context.Background(), model.PostQuery{Page: 5, PerPage: 1})
	if beyond.Data == nil || len(beyond.Data) != 0 {
		t.Errorf("Data beyond last page = %v, want empty slice", beyond.Data)
	}
}

func TestBackend_SingleEntities(t *testing.T) {
	b := newSampleBackend(t)
	ctx := context.Background()

	if p, err := b.GetPost(ctx, "bienvenido-al-blog"); err != nil || p.ID != 1 {
		t.Errorf("GetPost() = %+v, %v", p, err)
	}
	if _, err := b.GetPost(ctx, "nope"); model.AsAPIError(err).StatusCode != 404 {
		t.Errorf("GetPost(nope) error = %v, want 404", err)
	}
	if c, err := b.GetCategory(ctx, "general"); err != nil || c.Name != "General" {
		t.Errorf("GetCategory() = %+v, %v", c, err)
	}
	if tg, err := b.GetTag(ctx, "javascript"); err != nil || tg.ID != 3 {
		t.Errorf("GetTag() = %+v, %v", tg, err)
	}
	if _, err := b.ListPostsByTag(ctx, "missing", model.PostQuery{}); err == nil {
		t.Error("ListPostsByTag(missing) should fail")
	}
	page, err := b.ListPostsByCategory(ctx, "general", model.PostQuery{})
	if err != nil || len(page.Data) != 1 {
		t.Errorf("ListPostsByCategory() = %+v, %v", page, err)
	}
}

func TestBackend_ListWindow(t *testing.T) {
	b := newSampleBackend(t)
	tags, _ := b.ListTags(context.Background(), model.ListQuery{Page: 2, PerPage: 2})
	if len(tags) != 1 || tags[0].Slug != "javascript" {
		t.Errorf("ListTags(page 2) = %+v", tags)
	}
	all, _ := b.ListCategories(context.Background(), model.ListQuery{})
	if len(all) != 2 {
		t.Errorf("len(ListCategories()) = %d, want 2", len(all))
	}
}

func TestParseFeed(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "feed.xml"))
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	defer f.Close()

	ds, err := ParseFeed(f)
	if err != nil {
		t.Fatalf("ParseFeed() error = %v", err)
	}
	if len(ds.Posts) != 2 {
		t.Fatalf("len(Posts) = %d, want 2", len(ds.Posts))
	}

	first := ds.Posts[0]
	if first.Slug != "como-empezar-con-go" {
		t.Errorf("Slug = %q", first.Slug)
	}
	if first.Category == nil || first.Category.Slug != "programacion" {
		t.Errorf("Category = %+v", first.Category)
	}
	if len(first.Tags) != 2 {
		t.Errorf("Tags = %+v", first.Tags)
	}
	if first.PublishedAt != "2024-05-06T10:00:00Z" {
		t.Errorf("PublishedAt = %q", first.PublishedAt)
	}
	if first.Author == nil || first.Author.Name != "Ana" {
		t.Errorf("Author = %+v", first.Author)
	}

	second := ds.Posts[1]
	if second.Slug != "notas-sueltas" {
		t.Errorf("Slug from link = %q", second.Slug)
	}
	if !strings.Contains(second.Content, "<strong>") {
		t.Errorf("Content = %q", second.Content)
	}

	var goTag model.Tag
	for _, tg := range ds.Tags {
		if tg.Slug == "go" {
			goTag = tg
		}
	}
	if goTag.PostsCount != 2 {
		t.Errorf("go tag PostsCount = %d, want 2", goTag.PostsCount)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	if err := os.WriteFile(path, []byte(`{"posts":[{"id":9,"slug":"x","title":"X"}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	ds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile(json) error = %v", err)
	}
	if len(ds.Posts) != 1 || ds.Posts[0].ID != 9 {
		t.Errorf("Posts = %+v", ds.Posts)
	}

	if _, err := LoadFile(filepath.Join("testdata", "feed.xml")); err != nil {
		t.Errorf("LoadFile(feed) error = %v", err)
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("LoadFile(missing) should fail")
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Cómo utilizar Nuxt 3": "como-utilizar-nuxt-3",
		"  Hola, Mundo!  ":     "hola-mundo",
		"Tecnología":           "tecnologia",
		"":                     "",
		"¿¡!?":                 "",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBackend_MenuReturnsDeepCopy(t *testing.T) {
	ds := &Dataset{Menu: []model.MenuItem{
		{ID: 1, Label: "Blog", Children: []model.MenuItem{{ID: 3, Order: 2}, {ID: 2, Order: 1}}},
	}}
	b, err := NewBackend(ds)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	menu, err := b.Menu(context.Background())
	if err != nil {
		t.Fatalf("Menu() error = %v", err)
	}
	menu[0].Children[0], menu[0].Children[1] = menu[0].Children[1], menu[0].Children[0]
	menu[0].Label = "changed"

	if ds.Menu[0].Children[0].ID != 3 || ds.Menu[0].Label != "Blog" {
		t.Errorf("dataset menu mutated through Menu(): %+v", ds.Menu[0])
	}
}
