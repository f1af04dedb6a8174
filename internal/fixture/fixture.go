// Package fixture は静的生成モードで使う固定のブログデータを提供する。
// Backend はネットワークに一切触れずに blog.Backend を満たす。
package fixture

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hitoshi/taita/internal/model"
)

//go:embed sample.json
var sampleJSON []byte

// Dataset は固定データ一式。
type Dataset struct {
	Posts      []model.Post     `json:"posts"`
	Categories []model.Category `json:"categories"`
	Tags       []model.Tag      `json:"tags"`
	Menu       []model.MenuItem `json:"menu"`
}

// Sample は埋め込みのサンプルデータを返す。呼び出しごとに新しいコピーを返す。
func Sample() (*Dataset, error) {
	return Decode(sampleJSON)
}

// Decode はJSONからDatasetを読み込む。
func Decode(raw []byte) (*Dataset, error) {
	var ds Dataset
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("failed to decode fixture dataset: %w", err)
	}
	ds.countPosts()
	return &ds, nil
}

// LoadFile はJSONファイルまたはRSS/Atomフィードのファイルを読み込む。
// 拡張子が .json ならDatasetとして、それ以外はフィードとして解析する。
func LoadFile(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return Decode(raw)
	}
	return ParseFeed(bytes.NewReader(raw))
}

// countPosts はカテゴリ・タグの記事数を記事一覧から数え直す。
func (ds *Dataset) countPosts() {
	catCount := make(map[string]int)
	tagCount := make(map[string]int)
	for _, p := range ds.Posts {
		if p.Category != nil {
			catCount[p.Category.Slug]++
		}
		for _, t := range p.Tags {
			tagCount[t.Slug]++
		}
	}
	for i := range ds.Categories {
		ds.Categories[i].PostsCount = catCount[ds.Categories[i].Slug]
	}
	for i := range ds.Tags {
		ds.Tags[i].PostsCount = tagCount[ds.Tags[i].Slug]
	}
}
