// Package navigation はクライアント側の画面遷移を記録する。
// 401時のログイン画面への遷移やルートガードのリダイレクト先をここに通知する。
package navigation

import (
	"context"
	"sync"
)

// Navigator は画面遷移を要求する。
type Navigator interface {
	// Navigate はpathへの遷移を要求する。
	Navigate(ctx context.Context, path string)
	// Current は現在の画面パスを返す。
	Current() string
}

// History はNavigatorの標準実装。遷移履歴をメモリに保持する。
type History struct {
	mu        sync.RWMutex
	current   string
	redirects []string
}

// NewHistory は現在位置をcurrentとしてHistoryを生成する。
func NewHistory(current string) *History {
	return &History{current: current}
}

// Navigate は現在位置をpathに移し、遷移履歴に追加する。
func (h *History) Navigate(_ context.Context, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = path
	h.redirects = append(h.redirects, path)
}

// Current は現在の画面パスを返す。
func (h *History) Current() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// LastRedirect は直近のNavigate先を返す。遷移がなければ空文字列とfalse。
func (h *History) LastRedirect() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.redirects) == 0 {
		return "", false
	}
	return h.redirects[len(h.redirects)-1], true
}

// Redirects はNavigateされたパスを古い順に返す。
func (h *History) Redirects() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.redirects))
	copy(out, h.redirects)
	return out
}

var _ Navigator = (*History)(nil)
