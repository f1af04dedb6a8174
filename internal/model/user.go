// Package model はドメインモデルを定義する。
package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexID は文字列・数値どちらの形式でも受け付けるJSON上の識別子。
// 内部では常に文字列として保持する。
type FlexID string

// UnmarshalJSON は文字列または数値のIDを受け付ける。
func (id *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = FlexID(n.String())
	return nil
}

// User は認証済みユーザーを表す。
type User struct {
	ID               FlexID         `json:"id"`
	Name             string         `json:"name"`
	Email            string         `json:"email"`
	Avatar           string         `json:"avatar,omitempty"`
	EmailVerifiedAt  *string        `json:"email_verified_at"`
	TwoFactorEnabled bool           `json:"two_factor_enabled"`
	CreatedAt        string         `json:"created_at,omitempty"`
	UpdatedAt        string         `json:"updated_at,omitempty"`
	Roles            []string       `json:"roles"`
	Permissions      []string       `json:"permissions"`
	Meta             map[string]any `json:"meta,omitempty"`
}

// WithDefaults はロール・権限が未設定の場合に空スライスで補完したコピーを返す。
func (u User) WithDefaults() User {
	if u.Roles == nil {
		u.Roles = []string{}
	}
	if u.Permissions == nil {
		u.Permissions = []string{}
	}
	return u
}

// IsEmailVerified はメールアドレスが確認済みかを返す。
func (u *User) IsEmailVerified() bool {
	return u != nil && u.EmailVerifiedAt != nil && strings.TrimSpace(*u.EmailVerifiedAt) != ""
}

// Session はクライアント側で保持するログイン状態を表す。
type Session struct {
	User  *User
	Token string
}

// AuthPayload はログイン・登録APIの data 部分。
type AuthPayload struct {
	User      *User  `json:"user"`
	Token     string `json:"token"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// Credentials はログイン要求。
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember,omitempty"`
}

// RegisterData はユーザー登録要求。
type RegisterData struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// ResetPasswordData はパスワード再設定要求。
type ResetPasswordData struct {
	Token                string `json:"token"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// ActionResult はメッセージのみを返すAPI（パスワード再設定メール送信等）の結果。
type ActionResult struct {
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}
