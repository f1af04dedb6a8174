package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/taita/internal/clientset"
	"github.com/hitoshi/taita/internal/middleware"
	"github.com/hitoshi/taita/internal/model"
)

// dataResponse は成功・既定値応答の統一フォーマット。
// Errorはストアが記録した失敗メッセージ、Redirectは処理中に要求された画面遷移。
type dataResponse struct {
	Data     any    `json:"data"`
	Error    string `json:"error,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeData は200でdataを返す。ストアのエラーメッセージと遷移要求があれば含める。
func writeData(w http.ResponseWriter, set *clientset.Set, data any, storeErr string) {
	resp := dataResponse{Data: data, Error: storeErr}
	if redirect, ok := set.History.LastRedirect(); ok {
		resp.Redirect = redirect
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeError はerrをAPIErrorとして書き込む。
func writeError(w http.ResponseWriter, err error) {
	middleware.WriteAPIError(w, model.AsAPIError(err))
}

// decodeBody はJSONリクエスト本文をvに読み込む。失敗時は422を書き込みfalseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("Request body must be valid JSON.", nil))
		return false
	}
	return true
}

func mustSet(w http.ResponseWriter, r *http.Request) (*clientset.Set, bool) {
	set, ok := SetFromContext(r.Context())
	if !ok {
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return set, true
}
