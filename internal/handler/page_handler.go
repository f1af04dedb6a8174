package handler

import (
	"net/http"
)

// PageHandler はルートガード配下の画面をJSONで表現するハンドラー。
type PageHandler struct {
	siteName string
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(siteName string) *PageHandler {
	return &PageHandler{siteName: siteName}
}

// Page はnameの画面を返す。ガードを通過したリクエストだけが到達する。
func (h *PageHandler) Page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, ok := mustSet(w, r)
		if !ok {
			return
		}
		writeData(w, set, map[string]any{
			"page":   name,
			"site":   h.siteName,
			"tenant": set.Tenant,
			"user":   set.Auth.User(),
		}, "")
	}
}
