package apiclient

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hitoshi/taita/internal/model"
)

// errorBody はバックエンドのエラー応答本文。
// error は文字列または {"message": "..."} のどちらでも届く。
type errorBody struct {
	Message string                     `json:"message"`
	Error   json.RawMessage            `json:"error"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

// parseError は非2xx応答からAPIErrorを組み立てる。本文がJSONでなくても失敗しない。
func parseError(status int, raw []byte) *model.APIError {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	fields := parseFieldErrors(body.Errors)

	msg := strings.TrimSpace(body.Message)
	if msg == "" {
		msg = nestedMessage(body.Error)
	}
	if msg == "" && len(fields) > 0 {
		msg = (&model.APIError{Fields: fields}).FlattenFields()
	}
	return model.NewHTTPError(status, msg, fields)
}

func nestedMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}
	return ""
}

// parseFieldErrors は {"field": ["msg", ...]} と {"field": "msg"} の両形式を受け付ける。
func parseFieldErrors(in map[string]json.RawMessage) map[string][]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string][]string, len(in))
	for field, raw := range in {
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			out[field] = list
			continue
		}
		var single string
		if err := json.Unmarshal(raw, &single); err == nil {
			out[field] = []string{single}
		}
	}
	return out
}

// MessageFor はエラーから利用者向けのメッセージを取り出す。
// サーバーのメッセージ、検証エラーの連結、ステータス別の既定文言の順に採用し、
// いずれもなければfallbackを返す。errがnilなら空文字列。
func MessageFor(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return fallback
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	if flat := apiErr.FlattenFields(); flat != "" {
		return flat
	}
	if msg := model.DefaultMessageForStatus(apiErr.StatusCode); msg != "" {
		return msg
	}
	return fallback
}

// ContextMessage は操作名を含む汎用メッセージを返す（例: "An error occurred while fetching posts"）。
func ContextMessage(operation string) string {
	return "An error occurred while " + operation
}
