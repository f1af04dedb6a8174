package model

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// HTTPステータスとサーバーが返したメッセージ、フィールド単位の検証エラーを含む。
type APIError struct {
	Code       string              // エラーコード
	Message    string              // エラーメッセージ
	Category   string              // カテゴリ: auth, validation, network, system
	Action     string              // ユーザー向け対処方法
	StatusCode int                 // HTTPステータス。通信失敗時は0
	Fields     map[string][]string // フィールド単位の検証エラー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// FieldErrors はフィールドごとの最初のメッセージを返す。
func (e *APIError) FieldErrors() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for field, msgs := range e.Fields {
		if len(msgs) > 0 {
			out[field] = msgs[0]
		}
	}
	return out
}

// FlattenFields は全フィールドのメッセージをフィールド名順に連結する。
func (e *APIError) FlattenFields() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msgs []string
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k]...)
	}
	return strings.Join(msgs, " ")
}

// 定義済みエラーコード
const (
	ErrCodeNetwork         = "NETWORK_ERROR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeValidation      = "VALIDATION_FAILED"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeServer          = "SERVER_ERROR"
	ErrCodeMalformedState  = "MALFORMED_STATE"
	ErrCodeInvalidResponse = "INVALID_RESPONSE"
	ErrCodeRequestBuild    = "REQUEST_BUILD_FAILED"
)

// ステータス別の既定メッセージ
const (
	MsgUnauthorized = "You need to be logged in to perform this action"
	MsgForbidden    = "You do not have permission to perform this action"
	MsgNotFound     = "The requested resource was not found"
	MsgServerError  = "A server error occurred. Please try again later."
	MsgNetwork      = "Unable to reach the server. Check your connection and try again."
)

// DefaultMessageForStatus はサーバーがメッセージを返さなかった場合の既定文言を返す。
// 該当しないステータスは空文字列。
func DefaultMessageForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return MsgUnauthorized
	case status == http.StatusForbidden:
		return MsgForbidden
	case status == http.StatusNotFound:
		return MsgNotFound
	case status >= 500:
		return MsgServerError
	default:
		return ""
	}
}

// NewHTTPError はHTTPステータスとサーバー提供のメッセージからエラーを生成する。
// messageが空の場合はステータス別の既定文言、それもなければステータス文字列を使う。
func NewHTTPError(status int, message string, fields map[string][]string) *APIError {
	if message == "" {
		message = DefaultMessageForStatus(status)
	}
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "API Error"
	}

	e := &APIError{
		Message:    message,
		StatusCode: status,
		Fields:     fields,
	}
	switch {
	case status == http.StatusUnauthorized:
		e.Code, e.Category, e.Action = ErrCodeUnauthorized, "auth", "ログインし直してください。"
	case status == http.StatusForbidden:
		e.Code, e.Category, e.Action = ErrCodeForbidden, "auth", "権限のあるアカウントでログインしてください。"
	case status == http.StatusNotFound:
		e.Code, e.Category, e.Action = ErrCodeNotFound, "validation", "URLを確認してください。"
	case status == http.StatusTooManyRequests:
		e.Code, e.Category, e.Action = ErrCodeRateLimited, "network", "しばらく待ってから再度お試しください。"
	case status >= 500:
		e.Code, e.Category, e.Action = ErrCodeServer, "system", "しばらく待ってから再度お試しください。"
	default:
		e.Code, e.Category, e.Action = ErrCodeValidation, "validation", "入力内容を確認してください。"
	}
	return e
}

// NewNetworkError は通信失敗（接続不可・タイムアウト等）のエラーを生成する。
func NewNetworkError(err error) *APIError {
	msg := MsgNetwork
	if err != nil {
		msg = fmt.Sprintf("%s (%v)", MsgNetwork, err)
	}
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  msg,
		Category: "network",
		Action:   "ネットワーク接続を確認してください。",
	}
}

// NewValidationError はクライアント側の入力検証エラーを生成する。
func NewValidationError(message string, fields map[string][]string) *APIError {
	return &APIError{
		Code:       ErrCodeValidation,
		Message:    message,
		Category:   "validation",
		Action:     "入力内容を確認してください。",
		StatusCode: http.StatusUnprocessableEntity,
		Fields:     fields,
	}
}

// NewMalformedStateError は永続化されたクライアント状態が解析できない場合のエラーを生成する。
func NewMalformedStateError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedState,
		Message:  fmt.Sprintf("保存されたデータを読み込めません: %s", key),
		Category: "system",
		Action:   "再度ログインしてください。",
	}
}

// NewInvalidResponseError は2xx応答の本文が期待した形式でない場合のエラーを生成する。
func NewInvalidResponseError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidResponse,
		Message:  "Invalid response from server",
		Category: "system",
		Action:   reason,
	}
}

// NewRequestBuildError は送信前（本文の組み立て・読み込み）に失敗した場合のエラーを生成する。
// サーバーには何も送っていないのでStatusCodeは0。
func NewRequestBuildError(err error) *APIError {
	msg := "Failed to prepare the request"
	if err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, err)
	}
	return &APIError{
		Code:     ErrCodeRequestBuild,
		Message:  msg,
		Category: "system",
		Action:   "送信内容を確認してください。",
	}
}

// AsAPIError はerrをAPIErrorとして取り出す。APIErrorでない場合はネットワークエラーとして包む。
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewNetworkError(err)
}

// IsUnauthorized はerrが401由来かを返す。
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
