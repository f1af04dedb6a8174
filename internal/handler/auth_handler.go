package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/taita/internal/model"
)

// AuthHandler は認証ストアをHTTPに公開するハンドラー。
// トークンはブラウザセッションごとの保存領域に保持され、ブラウザには渡さない。
type AuthHandler struct {
	logger *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(logger *slog.Logger) *AuthHandler {
	return &AuthHandler{logger: logger}
}

// userResponse はセッションのユーザーと派生状態。
type userResponse struct {
	User          *model.User `json:"user"`
	Authenticated bool        `json:"authenticated"`
	Status        string      `json:"status"`
}

// Login はメールアドレスとパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	var creds model.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}

	payload, err := set.Auth.Login(r.Context(), creds)
	if err != nil {
		h.logger.Warn("login failed",
			slog.String("tenant", set.Tenant),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.logger.Info("user logged in",
		slog.String("tenant", set.Tenant),
		slog.String("user_id", string(payload.User.ID)),
	)
	writeJSON(w, http.StatusOK, dataResponse{Data: h.session(set.Auth.User(), set.Auth.IsAuthenticated(), set.Auth.Status().String())})
}

// Register はユーザーを登録してログインする。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	var data model.RegisterData
	if !decodeBody(w, r, &data) {
		return
	}

	if _, err := set.Auth.Register(r.Context(), data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Data: h.session(set.Auth.User(), set.Auth.IsAuthenticated(), set.Auth.Status().String())})
}

// Logout はセッションを破棄する。サーバー側の失敗に関わらず成功を返す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	set.Auth.Logout(r.Context())
	writeData(w, set, h.session(nil, false, set.Auth.Status().String()), "")
}

// ForgotPassword はパスワード再設定メールの送信を要求する。
// POST /auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	var body struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	res, err := set.Auth.ForgotPassword(r.Context(), body.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: res})
}

// ResetPassword はトークンを使ってパスワードを再設定する。
// POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	var data model.ResetPasswordData
	if !decodeBody(w, r, &data) {
		return
	}

	res, err := set.Auth.ResetPassword(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: res})
}

// Me は現在のログインユーザーをバックエンドから取り直して返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}
	if !set.Auth.IsAuthenticated() {
		writeError(w, model.NewHTTPError(http.StatusUnauthorized, "", nil))
		return
	}

	user, err := set.Auth.FetchCurrentUser(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, set, h.session(user, set.Auth.IsAuthenticated(), set.Auth.Status().String()), "")
}

func (h *AuthHandler) session(user *model.User, authenticated bool, status string) userResponse {
	return userResponse{User: user, Authenticated: authenticated, Status: status}
}
