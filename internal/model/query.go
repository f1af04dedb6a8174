package model

import (
	"net/url"
	"strconv"
)

// PostQuery は記事一覧の絞り込み条件。ここに定義された項目だけがクエリ文字列に載る。
type PostQuery struct {
	Page      int
	PerPage   int
	Category  string
	Tag       string
	Search    string
	Featured  bool
	SortBy    string
	SortOrder string
}

// Values はPostQueryをバックエンドのクエリパラメータに変換する。
// ゼロ値の項目は含めない。
func (q PostQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Tag != "" {
		v.Set("tag", q.Tag)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Featured {
		v.Set("featured", "true")
	}
	if q.SortBy != "" {
		v.Set("sort_by", q.SortBy)
	}
	if q.SortOrder != "" {
		v.Set("sort_order", q.SortOrder)
	}
	return v
}

// PostQueryFromValues は受信したクエリ文字列からホワイトリスト項目だけを取り出す。
// ゲートウェイが使う。不正な数値は無視する。
func PostQueryFromValues(v url.Values) PostQuery {
	q := PostQuery{
		Category:  v.Get("category"),
		Tag:       v.Get("tag"),
		Search:    v.Get("search"),
		SortBy:    v.Get("sort_by"),
		SortOrder: v.Get("sort_order"),
	}
	if n, err := strconv.Atoi(v.Get("page")); err == nil && n > 0 {
		q.Page = n
	}
	if n, err := strconv.Atoi(v.Get("per_page")); err == nil && n > 0 {
		q.PerPage = n
	}
	if b, err := strconv.ParseBool(v.Get("featured")); err == nil {
		q.Featured = b
	}
	return q
}

// ListQuery はカテゴリ・タグ一覧のページ指定。
type ListQuery struct {
	Page    int
	PerPage int
}

// Values はListQueryをクエリパラメータに変換する。
func (q ListQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	return v
}
