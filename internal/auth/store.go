// Package auth はクライアント側の認証状態（ユーザーとトークン）を管理する。
// 状態はLocalStorageに永続化し、ロール・権限の判定を提供する。
package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/taita/internal/apiclient"
	"github.com/hitoshi/taita/internal/model"
	"github.com/hitoshi/taita/internal/navigation"
	"github.com/hitoshi/taita/internal/repository"
)

// Status は認証状態。
type Status int

const (
	// StatusAnonymous は未ログイン。
	StatusAnonymous Status = iota
	// StatusAuthenticated はトークンを保持している状態。
	StatusAuthenticated
)

// String はStatusの表示名を返す。
func (s Status) String() string {
	if s == StatusAuthenticated {
		return "authenticated"
	}
	return "anonymous"
}

// API は認証ストアが使うバックエンド呼び出し。*apiclient.Client が満たす。
type API interface {
	Do(ctx context.Context, method, path string, opts apiclient.RequestOptions, out any) error
}

// Endpoints は認証APIのパス。
type Endpoints struct {
	Login          string
	Logout         string
	Register       string
	User           string
	ForgotPassword string
	ResetPassword  string
}

// Config は認証ストアの設定。
type Config struct {
	Endpoints      Endpoints
	LoginRoute     string
	TokenKey       string
	UserKey        string
	PasswordPolicy PasswordPolicy
}

// DefaultConfig は既定の認証設定を返す。
func DefaultConfig() Config {
	return Config{
		Endpoints: Endpoints{
			Login:          "/auth/login",
			Logout:         "/auth/logout",
			Register:       "/auth/register",
			User:           "/auth/me",
			ForgotPassword: "/auth/forgot-password",
			ResetPassword:  "/auth/reset-password",
		},
		LoginRoute:     "/auth/login",
		TokenKey:       repository.KeyAuthToken,
		UserKey:        repository.KeyAuthUser,
		PasswordPolicy: DefaultPasswordPolicy(),
	}
}

// Store は認証状態を保持する。並行に呼び出しても安全。
type Store struct {
	api     API
	storage repository.LocalStorage
	nav     navigation.Navigator
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.RWMutex
	user        *model.User
	token       string
	initialized bool
	loading     int
	lastErr     string
}

// NewStore はStoreを生成する。navがnilの場合は画面遷移を行わない。
func NewStore(api API, storage repository.LocalStorage, nav navigation.Navigator, cfg Config, logger *slog.Logger) *Store {
	def := DefaultConfig()
	if cfg.Endpoints == (Endpoints{}) {
		cfg.Endpoints = def.Endpoints
	}
	if cfg.LoginRoute == "" {
		cfg.LoginRoute = def.LoginRoute
	}
	if cfg.TokenKey == "" {
		cfg.TokenKey = def.TokenKey
	}
	if cfg.UserKey == "" {
		cfg.UserKey = def.UserKey
	}
	if cfg.PasswordPolicy == (PasswordPolicy{}) {
		cfg.PasswordPolicy = def.PasswordPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		api:     api,
		storage: storage,
		nav:     nav,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// --- 状態の参照 ---

// Token は保持中のトークンを返す。apiclient.TokenSource を満たす。
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User は現在のユーザーのコピーを返す。未取得ならnil。
func (s *Store) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticated はトークンを保持しているかを返す。
func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// Status は現在の認証状態を返す。
func (s *Store) Status() Status {
	if s.IsAuthenticated() {
		return StatusAuthenticated
	}
	return StatusAnonymous
}

// IsInitialized はInitが完了したかを返す。
func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// IsLoading は認証APIの呼び出し中かを返す。
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// Error は直近の失敗メッセージを返す。成功した操作の開始時に消える。
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// --- 状態の変更 ---

// Init は永続化された状態を復元する。2回目以降の呼び出しは何もしない。
// ユーザー情報が解析できない場合や、トークンが期限切れのJWTの場合は状態を破棄する。
func (s *Store) Init(ctx context.Context) {
	s.mu.RLock()
	done := s.initialized
	s.mu.RUnlock()
	if done {
		return
	}
	defer func() {
		s.mu.Lock()
		s.initialized = true
		s.mu.Unlock()
	}()

	token, hasToken, err := s.storage.Get(ctx, s.cfg.TokenKey)
	if err != nil {
		s.logger.Error("failed to read persisted token", slog.String("error", err.Error()))
		return
	}
	rawUser, hasUser, err := s.storage.Get(ctx, s.cfg.UserKey)
	if err != nil {
		s.logger.Error("failed to read persisted user", slog.String("error", err.Error()))
		return
	}

	if !hasToken || token == "" {
		if hasUser {
			s.clearState(ctx)
		}
		return
	}
	if tokenExpired(token, s.now()) {
		s.logger.Info("persisted token has expired")
		s.clearState(ctx)
		return
	}

	var user *model.User
	if hasUser && rawUser != "" {
		var u model.User
		if err := json.Unmarshal([]byte(rawUser), &u); err != nil {
			s.logger.Warn("persisted user is malformed",
				slog.String("error", model.NewMalformedStateError(s.cfg.UserKey).Error()),
			)
			s.clearState(ctx)
			return
		}
		u = u.WithDefaults()
		user = &u
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
}

// SetAuth はユーザーとトークンを保持し、永続化する。
// ロール・権限が欠けている場合は空で補完する。
func (s *Store) SetAuth(ctx context.Context, user model.User, token string) error {
	user = user.WithDefaults()

	s.mu.Lock()
	s.user = &user
	s.token = token
	s.mu.Unlock()

	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.storage.Set(ctx, s.cfg.TokenKey, token); err != nil {
		s.logger.Error("failed to persist token", slog.String("error", err.Error()))
		return err
	}
	if err := s.storage.Set(ctx, s.cfg.UserKey, string(raw)); err != nil {
		s.logger.Error("failed to persist user", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// ClearAuth は状態と永続化データを破棄し、ログイン画面以外にいる場合はログイン画面へ遷移する。
// 何度呼んでも安全。
func (s *Store) ClearAuth(ctx context.Context) {
	s.clearState(ctx)
	if s.nav == nil {
		return
	}
	current, _, _ := strings.Cut(s.nav.Current(), "?")
	if current != s.cfg.LoginRoute {
		s.nav.Navigate(ctx, s.cfg.LoginRoute)
	}
}

// HandleUnauthorized は401応答時のフック。apiclient.UnauthorizedHandler を満たす。
func (s *Store) HandleUnauthorized(ctx context.Context) {
	s.logger.Info("session rejected by server, clearing local session")
	s.ClearAuth(ctx)
}

func (s *Store) clearState(ctx context.Context) {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.mu.Unlock()

	for _, key := range []string{s.cfg.TokenKey, s.cfg.UserKey} {
		if err := s.storage.Remove(ctx, key); err != nil {
			s.logger.Error("failed to remove persisted auth state",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

// --- ネットワーク操作 ---

// publicOpts はログイン前の認証APIに使う指定。401でもセッション破棄フックを呼ばない。
var publicOpts = apiclient.RequestOptions{SkipAuth: true, SkipUnauthorizedHook: true}

// Login は認証情報でログインし、成功時にセッションを保持する。
func (s *Store) Login(ctx context.Context, creds model.Credentials) (*model.AuthPayload, error) {
	s.begin()
	defer s.end()

	opts := publicOpts
	opts.Body = creds
	var resp model.Envelope[model.AuthPayload]
	if err := s.api.Do(ctx, http.MethodPost, s.cfg.Endpoints.Login, opts, &resp); err != nil {
		return nil, s.fail(err, "Login failed")
	}
	return s.acceptAuth(ctx, resp.Data, "Login failed")
}

// Register はユーザーを登録し、成功時にセッションを保持する。
// 送信前にパスワードポリシーと確認入力を検証する。
func (s *Store) Register(ctx context.Context, data model.RegisterData) (*model.AuthPayload, error) {
	s.begin()
	defer s.end()

	if fields := validateRegistration(s.cfg.PasswordPolicy, data.Name, data.Email, data.Password, data.PasswordConfirmation); fields != nil {
		return nil, s.fail(model.NewValidationError("The given data was invalid.", fields), "Registration failed")
	}

	opts := publicOpts
	opts.Body = data
	var resp model.Envelope[model.AuthPayload]
	if err := s.api.Do(ctx, http.MethodPost, s.cfg.Endpoints.Register, opts, &resp); err != nil {
		return nil, s.fail(err, "Registration failed")
	}
	return s.acceptAuth(ctx, resp.Data, "Registration failed")
}

func (s *Store) acceptAuth(ctx context.Context, payload model.AuthPayload, fallback string) (*model.AuthPayload, error) {
	if payload.User == nil || payload.Token == "" {
		return nil, s.fail(model.NewInvalidResponseError("missing user or token"), fallback)
	}
	// 永続化に失敗してもメモリ上のセッションは有効なので続行する
	_ = s.SetAuth(ctx, *payload.User, payload.Token)
	user := s.User()
	payload.User = user
	return &payload, nil
}

// Logout はサーバーにログアウトを通知してからセッションを破棄する。
// サーバー側の失敗はログに残すのみで、ローカルのセッションは必ず破棄する。
func (s *Store) Logout(ctx context.Context) {
	s.begin()
	defer s.end()

	if s.IsAuthenticated() {
		opts := apiclient.RequestOptions{SkipUnauthorizedHook: true}
		if err := s.api.Do(ctx, http.MethodPost, s.cfg.Endpoints.Logout, opts, nil); err != nil {
			s.logger.Warn("logout request failed", slog.String("error", err.Error()))
		}
	}
	s.ClearAuth(ctx)
}

// ForgotPassword はパスワード再設定メールの送信を要求する。
func (s *Store) ForgotPassword(ctx context.Context, email string) (*model.ActionResult, error) {
	s.begin()
	defer s.end()

	if !strings.Contains(email, "@") {
		return nil, s.fail(model.NewValidationError("The email must be a valid email address.",
			map[string][]string{"email": {"The email must be a valid email address."}}), "Failed to send reset link")
	}

	opts := publicOpts
	opts.Body = map[string]string{"email": email}
	var res model.ActionResult
	if err := s.api.Do(ctx, http.MethodPost, s.cfg.Endpoints.ForgotPassword, opts, &res); err != nil {
		return nil, s.fail(err, "Failed to send reset link")
	}
	return &res, nil
}

// ResetPassword はトークンを使ってパスワードを再設定する。
func (s *Store) ResetPassword(ctx context.Context, data model.ResetPasswordData) (*model.ActionResult, error) {
	s.begin()
	defer s.end()

	if fields := validateReset(s.cfg.PasswordPolicy, data.Token, data.Email, data.Password, data.PasswordConfirmation); fields != nil {
		return nil, s.fail(model.NewValidationError("The given data was invalid.", fields), "Failed to reset password")
	}

	opts := publicOpts
	opts.Body = data
	var res model.ActionResult
	if err := s.api.Do(ctx, http.MethodPost, s.cfg.Endpoints.ResetPassword, opts, &res); err != nil {
		return nil, s.fail(err, "Failed to reset password")
	}
	return &res, nil
}

// FetchCurrentUser はトークンに対応するユーザーを取得して保持する。
// トークンがなければ(nil, nil)。失敗した場合はセッションを破棄する。
func (s *Store) FetchCurrentUser(ctx context.Context) (*model.User, error) {
	token := s.Token()
	if token == "" {
		return nil, nil
	}

	s.begin()
	defer s.end()

	var resp model.Envelope[*model.User]
	err := s.api.Do(ctx, http.MethodGet, s.cfg.Endpoints.User, apiclient.RequestOptions{}, &resp)
	if err == nil && resp.Data == nil {
		err = model.NewInvalidResponseError("missing user")
	}
	if err != nil {
		apiErr := s.fail(err, "Failed to fetch user")
		// 401ではクライアントのフックが既に破棄している
		if !model.IsUnauthorized(err) || s.Token() != "" {
			s.ClearAuth(ctx)
		}
		return nil, apiErr
	}

	// 取得中にログアウトされた場合は書き戻さない
	if s.Token() != token {
		return nil, model.NewHTTPError(http.StatusUnauthorized, "", nil)
	}
	if err := s.SetAuth(ctx, *resp.Data, token); err != nil {
		s.logger.Warn("fetched user could not be persisted", slog.String("error", err.Error()))
	}
	return s.User(), nil
}

func (s *Store) begin() {
	s.mu.Lock()
	s.loading++
	s.lastErr = ""
	s.mu.Unlock()
}

func (s *Store) end() {
	s.mu.Lock()
	s.loading--
	s.mu.Unlock()
}

// fail はエラーメッセージを記録し、呼び出し元に返すAPIErrorを得る。
func (s *Store) fail(err error, fallback string) *model.APIError {
	msg := apiclient.MessageFor(err, fallback)
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
	return model.AsAPIError(err)
}

// --- ロール・権限 ---

// HasRole はroleを持つかを返す。未ログインは常にfalse。
func (s *Store) HasRole(role string) bool {
	return s.HasAnyRole(role)
}

// HasAnyRole はrolesのいずれかを持つかを返す。
func (s *Store) HasAnyRole(roles ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && containsAny(s.user.Roles, roles)
}

// HasAllRoles はrolesをすべて持つかを返す。未ログインは常にfalse。
func (s *Store) HasAllRoles(roles ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && containsAll(s.user.Roles, roles)
}

// HasPermission はpermissionを持つかを返す。
func (s *Store) HasPermission(permission string) bool {
	return s.HasAnyPermission(permission)
}

// HasAnyPermission はpermissionsのいずれかを持つかを返す。
func (s *Store) HasAnyPermission(permissions ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && containsAny(s.user.Permissions, permissions)
}

// HasAllPermissions はpermissionsをすべて持つかを返す。
func (s *Store) HasAllPermissions(permissions ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && containsAll(s.user.Permissions, permissions)
}

func containsAny(held, want []string) bool {
	for _, w := range want {
		for _, h := range held {
			if h == w {
				return true
			}
		}
	}
	return false
}

func containsAll(held, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range held {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

var (
	_ apiclient.TokenSource         = (*Store)(nil)
	_ apiclient.UnauthorizedHandler = (*Store)(nil)
)
