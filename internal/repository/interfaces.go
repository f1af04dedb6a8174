// Package repository はクライアント状態（ブラウザのlocalStorage相当）の永続化を定義する。
package repository

import (
	"context"
	"strings"
	"time"
)

// 永続化キー
const (
	KeyAuthToken = "auth_token"
	KeyAuthUser  = "auth_user"
)

// LocalStorage は文字列キー・文字列値のクライアント状態ストア。
type LocalStorage interface {
	// Get はkeyの値を返す。存在しない場合はfalseを返す。
	Get(ctx context.Context, key string) (string, bool, error)
	// Set はkeyに値を保存する。既存値は上書きする。
	Set(ctx context.Context, key, value string) error
	// Remove はkeyを削除する。存在しない場合もエラーにしない。
	Remove(ctx context.Context, key string) error
}

// Purger は更新日時の古いキーをまとめて削除できるストア。
// ゲートウェイのブラウザセッション領域の期限切れ削除に使う。
type Purger interface {
	// PurgeBefore はprefixで始まり、cutoffより前に更新されたキーを削除して件数を返す。
	PurgeBefore(ctx context.Context, prefix string, cutoff time.Time) (int64, error)
}

// likePrefix はprefixをLIKEの前方一致パターンにする。ワイルドカード文字は \ でエスケープする。
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
