package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/taita/internal/apiclient"
	"github.com/hitoshi/taita/internal/model"
	"github.com/hitoshi/taita/internal/navigation"
	"github.com/hitoshi/taita/internal/repository"
)

// --- モック定義 ---

type mockAPI struct {
	doFn  func(ctx context.Context, method, path string, opts apiclient.RequestOptions, out any) error
	calls []string
}

func (m *mockAPI) Do(ctx context.Context, method, path string, opts apiclient.RequestOptions, out any) error {
	m.calls = append(m.calls, method+" "+path)
	if m.doFn != nil {
		return m.doFn(ctx, method, path, opts, out)
	}
	return nil
}

// respondJSON はoutにJSONをデコードする応答を作る。
func respondJSON(t *testing.T, body string) func(context.Context, string, string, apiclient.RequestOptions, any) error {
	t.Helper()
	return func(_ context.Context, _, _ string, _ apiclient.RequestOptions, out any) error {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal([]byte(body), out); err != nil {
			t.Fatalf("test response is not valid JSON for %T: %v", out, err)
		}
		return nil
	}
}

type failingStorage struct{ repository.LocalStorage }

func (failingStorage) Set(context.Context, string, string) error { return errors.New("disk full") }

// countingStorage はRemoveの呼び出し回数を数える。
type countingStorage struct {
	repository.LocalStorage
	removes int
}

func (c *countingStorage) Remove(ctx context.Context, key string) error {
	c.removes++
	return c.LocalStorage.Remove(ctx, key)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newTestStore(api API, storage repository.LocalStorage, nav navigation.Navigator) *Store {
	var buf bytes.Buffer
	return NewStore(api, storage, nav, Config{}, newTestLogger(&buf))
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

const userJSON = `{"id":1,"name":"Ana","email":"ana@example.com","roles":["editor"],"permissions":["posts.edit"]}`

// --- Init ---

func TestInit_RestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryStorage()
	storage.Set(ctx, repository.KeyAuthToken, "opaque-token")
	storage.Set(ctx, repository.KeyAuthUser, userJSON)

	s := newTestStore(&mockAPI{}, storage, nil)
	s.Init(ctx)

	if !s.IsInitialized() {
		t.Error("IsInitialized() = false after Init")
	}
	if s.Status() != StatusAuthenticated {
		t.Fatalf("Status() = %v, want authenticated", s.Status())
	}
	u := s.User()
	if u == nil || u.ID != "1" || u.Name != "Ana" {
		t.Errorf("User() = %+v, want restored Ana with id 1", u)
	}
}

func TestInit_MalformedUser_ClearsSession(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryStorage()
	storage.Set(ctx, repository.KeyAuthToken, "opaque-token")
	storage.Set(ctx, repository.KeyAuthUser, "{not json")

	s := newTestStore(&mockAPI{}, storage, nil)
	s.Init(ctx)

	if s.IsAuthenticated() {
		t.Error("session should be anonymous after malformed user")
	}
	if storage.Len() != 0 {
		t.Errorf("storage has %d keys, want 0", storage.Len())
	}
}

func TestInit_ExpiredJWT_ClearsSession(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryStorage()
	storage.Set(ctx, repository.KeyAuthToken, signedToken(t, time.Now().Add(-time.Hour)))
	storage.Set(ctx, repository.KeyAuthUser, userJSON)

	s := newTestStore(&mockAPI{}, storage, nil)
	s.Init(ctx)

	if s.IsAuthenticated() {
		t.Error("expired JWT should restore as anonymous")
	}
}

func TestInit_ValidJWT_Restores(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryStorage()
	storage.Set(ctx, repository.KeyAuthToken, signedToken(t, time.Now().Add(time.Hour)))

	s := newTestStore(&mockAPI{}, storage, nil)
	s.Init(ctx)

	if !s.IsAuthenticated() {
		t.Error("unexpired JWT should restore as authenticated")
	}
	if s.User() != nil {
		t.Error("user should be nil until fetched")
	}
}

func TestInit_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryStorage()
	s := newTestStore(&mockAPI{}, storage, nil)
	s.Init(ctx)

	storage.Set(ctx, repository.KeyAuthToken, "late-token")
	s.Init(ctx)

	if s.IsAuthenticated() {
		t.Error("second Init should not re-read storage")
	}
}

// --- SetAuth / ClearAuth ---

func TestSetAuth_PersistsWithDefaults(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemoryStorage()
	s := newTestStore(&mockAPI{}, storage, nil)

	if err := s.SetAuth(ctx, model.User{ID: "9", Name: "Bo"}, "tok"); err != nil {
		t.Fatalf("SetAuth returned error: %v", err)
	}

	u := s.User()
	if u.Roles == nil || u.Permissions == nil {
		t.Error("roles and permissions should default to empty slices")
	}
	if tok, _, _ := storage.Get(ctx, repository.KeyAuthToken); tok != "tok" {
		t.Errorf("persisted token = %q, want %q", tok, "tok")
	}
	raw, _, _ := storage.Get(ctx, repository.KeyAuthUser)
	var persisted model.User
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil || persisted.Name != "Bo" {
		t.Errorf("persisted user = %q (err %v)", raw, err)
	}
}

func TestSetAuth_StorageFailure_KeepsMemoryState(t *testing.T) {
	s := newTestStore(&mockAPI{}, failingStorage{repository.NewMemoryStorage()}, nil)

	if err := s.SetAuth(context.Background(), model.User{ID: "1"}, "tok"); err == nil {
		t.Error("SetAuth should report the storage failure")
	}
	if !s.IsAuthenticated() {
		t.Error("in-memory session should survive a storage failure")
	}
}

func TestClearAuth_NavigatesToLoginOnce(t *testing.T) {
	ctx := context.Background()
	nav := navigation.NewHistory("/dashboard")
	s := newTestStore(&mockAPI{}, repository.NewMemoryStorage(), nav)
	s.SetAuth(ctx, model.User{ID: "1"}, "tok")

	s.ClearAuth(ctx)
	s.ClearAuth(ctx)

	if s.IsAuthenticated() {
		t.Error("session should be cleared")
	}
	if want := []string{"/auth/login"}; !reflect.DeepEqual(nav.Redirects(), want) {
		t.Errorf("redirects = %v, want %v", nav.Redirects(), want)
	}
}

func TestClearAuth_OnLoginRouteDoesNotNavigate(t *testing.T) {
	nav := navigation.NewHistory("/auth/login?redirect=/admin")
	s := newTestStore(&mockAPI{}, repository.NewMemoryStorage(), nav)

	s.ClearAuth(context.Background())

	if len(nav.Redirects()) != 0 {
		t.Errorf("redirects = %v, want none", nav.Redirects())
	}
}

// --- Login / Register ---

func TestLogin_Success(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.doFn = func(ctx context.Context, method, path string, opts apiclient.RequestOptions, out any) error {
		if method != http.MethodPost || path != "/auth/login" {
			t.Errorf("request = %s %s, want POST /auth/login", method, path)
		}
		if !opts.SkipAuth || !opts.SkipUnauthorizedHook {
			t.Error("login should skip auth and the unauthorized hook")
		}
		creds, ok := opts.Body.(model.Credentials)
		if !ok || creds.Email != "ana@example.com" {
			t.Errorf("body = %#v, want credentials", opts.Body)
		}
		return respondJSON(t, `{"data":{"user":`+userJSON+`,"token":"new-token","token_type":"Bearer"}}`)(ctx, method, path, opts, out)
	}
	storage := repository.NewMemoryStorage()
	s := newTestStore(api, storage, nil)

	payload, err := s.Login(ctx, model.Credentials{Email: "ana@example.com", Password: "Secret1!"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if payload.Token != "new-token" || payload.User.Name != "Ana" {
		t.Errorf("payload = %+v", payload)
	}
	if s.Token() != "new-token" {
		t.Errorf("Token() = %q, want %q", s.Token(), "new-token")
	}
	if tok, _, _ := storage.Get(ctx, repository.KeyAuthToken); tok != "new-token" {
		t.Errorf("persisted token = %q", tok)
	}
	if s.Error() != "" || s.IsLoading() {
		t.Errorf("Error() = %q, IsLoading() = %v after success", s.Error(), s.IsLoading())
	}
}

func TestLogin_ServerRejects(t *testing.T) {
	api := &mockAPI{doFn: func(context.Context, string, string, apiclient.RequestOptions, any) error {
		return model.NewHTTPError(422, "These credentials do not match our records.", nil)
	}}
	s := newTestStore(api, repository.NewMemoryStorage(), nil)

	payload, err := s.Login(context.Background(), model.Credentials{Email: "a@b.c", Password: "x"})
	if payload != nil || err == nil {
		t.Fatalf("Login = (%v, %v), want (nil, error)", payload, err)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 422 {
		t.Errorf("err = %v, want 422 APIError", err)
	}
	if s.Error() != "These credentials do not match our records." {
		t.Errorf("Error() = %q", s.Error())
	}
	if s.IsAuthenticated() {
		t.Error("failed login must not authenticate")
	}
}

func TestLogin_MissingTokenIsInvalidResponse(t *testing.T) {
	api := &mockAPI{}
	api.doFn = respondJSON(t, `{"data":{"user":`+userJSON+`}}`)
	s := newTestStore(api, repository.NewMemoryStorage(), nil)

	_, err := s.Login(context.Background(), model.Credentials{Email: "a@b.c"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidResponse {
		t.Fatalf("err = %v, want INVALID_RESPONSE", err)
	}
	if s.Error() != "Invalid response from server" {
		t.Errorf("Error() = %q, want %q", s.Error(), "Invalid response from server")
	}
}

func TestRegister_ValidatesBeforeRequest(t *testing.T) {
	api := &mockAPI{}
	s := newTestStore(api, repository.NewMemoryStorage(), nil)

	_, err := s.Register(context.Background(), model.RegisterData{
		Name:                 "",
		Email:                "ana@example.com",
		Password:             "short",
		PasswordConfirmation: "different",
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
	for _, field := range []string{"name", "password", "password_confirmation"} {
		if _, ok := apiErr.Fields[field]; !ok {
			t.Errorf("missing field error for %q", field)
		}
	}
	if len(api.calls) != 0 {
		t.Errorf("no request should be sent, got %v", api.calls)
	}
}

func TestRegister_Success(t *testing.T) {
	api := &mockAPI{}
	api.doFn = respondJSON(t, `{"data":{"user":{"id":"u-2","name":"Bo","email":"bo@example.com"},"token":"reg-token"}}`)
	s := newTestStore(api, repository.NewMemoryStorage(), nil)

	payload, err := s.Register(context.Background(), model.RegisterData{
		Name: "Bo", Email: "bo@example.com", Password: "Str0ng!pass", PasswordConfirmation: "Str0ng!pass",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if payload.User.ID != "u-2" || !s.IsAuthenticated() {
		t.Errorf("payload = %+v, authenticated = %v", payload, s.IsAuthenticated())
	}
	if !reflect.DeepEqual(api.calls, []string{"POST /auth/register"}) {
		t.Errorf("calls = %v", api.calls)
	}
}

// --- Logout ---

func TestLogout_IgnoresServerFailure(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{doFn: func(context.Context, string, string, apiclient.RequestOptions, any) error {
		return model.NewHTTPError(500, "", nil)
	}}
	nav := navigation.NewHistory("/dashboard")
	s := newTestStore(api, repository.NewMemoryStorage(), nav)
	s.SetAuth(ctx, model.User{ID: "1"}, "tok")

	s.Logout(ctx)

	if s.IsAuthenticated() {
		t.Error("Logout must clear the session even when the server fails")
	}
	if !reflect.DeepEqual(api.calls, []string{"POST /auth/logout"}) {
		t.Errorf("calls = %v", api.calls)
	}
	if got, _ := nav.LastRedirect(); got != "/auth/login" {
		t.Errorf("LastRedirect() = %q, want /auth/login", got)
	}
}

func TestLogout_AnonymousSkipsRequest(t *testing.T) {
	api := &mockAPI{}
	s := newTestStore(api, repository.NewMemoryStorage(), nil)

	s.Logout(context.Background())

	if len(api.calls) != 0 {
		t.Errorf("calls = %v, want none", api.calls)
	}
}

// --- Forgot / Reset ---

func TestForgotPassword(t *testing.T) {
	api := &mockAPI{}
	api.doFn = respondJSON(t, `{"message":"We have emailed your password reset link."}`)
	s := newTestStore(api, repository.NewMemoryStorage(), nil)

	res, err := s.ForgotPassword(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	if res.Message != "We have emailed your password reset link." {
		t.Errorf("Message = %q", res.Message)
	}

	if _, err := s.ForgotPassword(context.Background(), "not-an-email"); err == nil {
		t.Error("invalid email should fail validation")
	}
}

func TestResetPassword_PolicyViolations(t *testing.T) {
	s := newTestStore(&mockAPI{}, repository.NewMemoryStorage(), nil)

	_, err := s.ResetPassword(context.Background(), model.ResetPasswordData{
		Token: "t", Email: "ana@example.com", Password: "alllowercase1!", PasswordConfirmation: "alllowercase1!",
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if got := apiErr.FieldErrors()["password"]; got != "The password must contain at least one uppercase letter." {
		t.Errorf("password error = %q", got)
	}
}

// --- FetchCurrentUser ---

func TestFetchCurrentUser_NoToken(t *testing.T) {
	api := &mockAPI{}
	s := newTestStore(api, repository.NewMemoryStorage(), nil)

	u, err := s.FetchCurrentUser(context.Background())
	if u != nil || err != nil {
		t.Errorf("FetchCurrentUser() = (%v, %v), want (nil, nil)", u, err)
	}
	if len(api.calls) != 0 {
		t.Errorf("calls = %v, want none", api.calls)
	}
}

func TestFetchCurrentUser_Success(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.doFn = respondJSON(t, `{"data":`+userJSON+`}`)
	s := newTestStore(api, repository.NewMemoryStorage(), nil)
	s.SetAuth(ctx, model.User{ID: "1"}, "tok")

	u, err := s.FetchCurrentUser(ctx)
	if err != nil {
		t.Fatalf("FetchCurrentUser returned error: %v", err)
	}
	if u.Email != "ana@example.com" || !s.HasRole("editor") {
		t.Errorf("user = %+v", u)
	}
	if s.Token() != "tok" {
		t.Errorf("token should be kept, got %q", s.Token())
	}
}

func TestFetchCurrentUser_FailureClearsSession(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{doFn: func(context.Context, string, string, apiclient.RequestOptions, any) error {
		return model.NewNetworkError(errors.New("connection refused"))
	}}
	nav := navigation.NewHistory("/dashboard")
	s := newTestStore(api, repository.NewMemoryStorage(), nav)
	s.SetAuth(ctx, model.User{ID: "1"}, "tok")

	u, err := s.FetchCurrentUser(ctx)
	if u != nil || err == nil {
		t.Fatalf("FetchCurrentUser() = (%v, %v), want (nil, error)", u, err)
	}
	if s.IsAuthenticated() {
		t.Error("session should be cleared after failure")
	}
	if s.Error() == "" {
		t.Error("Error() should record the failure")
	}
}

// 実際のapiclient.Clientと組み合わせ、401で一度だけセッションが破棄されることを確認する。
func TestFetchCurrentUser_UnauthorizedWithRealClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stale" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	ctx := context.Background()
	var buf bytes.Buffer
	client := apiclient.New(apiclient.Config{BaseURL: server.URL}, apiclient.WithLogger(newTestLogger(&buf)))
	nav := navigation.NewHistory("/dashboard")
	s := newTestStore(client, repository.NewMemoryStorage(), nav)
	client.SetTokenSource(s)
	client.SetUnauthorizedHandler(s)
	s.SetAuth(ctx, model.User{ID: "1"}, "stale")

	if _, err := s.FetchCurrentUser(ctx); !model.IsUnauthorized(err) {
		t.Fatalf("err = %v, want 401", err)
	}
	if s.IsAuthenticated() {
		t.Error("401 should clear the session")
	}
	if got := len(nav.Redirects()); got != 1 {
		t.Errorf("redirect count = %d, want 1", got)
	}
}

func TestFetchCurrentUser_UnauthorizedTearsDownOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	ctx := context.Background()
	var buf bytes.Buffer
	hookCalls := 0
	client := apiclient.New(apiclient.Config{BaseURL: server.URL}, apiclient.WithLogger(newTestLogger(&buf)))
	storage := &countingStorage{LocalStorage: repository.NewMemoryStorage()}
	s := newTestStore(client, storage, navigation.NewHistory("/dashboard"))
	client.SetTokenSource(s)
	client.SetUnauthorizedHandler(apiclient.UnauthorizedFunc(func(ctx context.Context) {
		hookCalls++
		s.HandleUnauthorized(ctx)
	}))
	s.SetAuth(ctx, model.User{ID: "1"}, "stale")

	if _, err := s.FetchCurrentUser(ctx); !model.IsUnauthorized(err) {
		t.Fatalf("err = %v, want 401", err)
	}
	if hookCalls != 1 {
		t.Errorf("hook calls = %d, want 1", hookCalls)
	}
	// auth_token と auth_user を1回ずつ
	if storage.removes != 2 {
		t.Errorf("storage removes = %d, want 2 (single teardown)", storage.removes)
	}
}

// --- ロール・権限 ---

func TestRoleAndPermissionPredicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(&mockAPI{}, repository.NewMemoryStorage(), nil)

	if s.HasRole("admin") || s.HasAllRoles() || s.HasAnyPermission("posts.edit") {
		t.Error("anonymous session must hold no roles or permissions")
	}

	s.SetAuth(ctx, model.User{
		ID:          "1",
		Roles:       []string{"editor", "author"},
		Permissions: []string{"posts.edit", "posts.create"},
	}, "tok")

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"HasRole editor", s.HasRole("editor"), true},
		{"HasRole admin", s.HasRole("admin"), false},
		{"HasAnyRole", s.HasAnyRole("admin", "author"), true},
		{"HasAnyRole none", s.HasAnyRole("admin", "owner"), false},
		{"HasAnyRole empty", s.HasAnyRole(), false},
		{"HasAllRoles", s.HasAllRoles("editor", "author"), true},
		{"HasAllRoles missing", s.HasAllRoles("editor", "admin"), false},
		{"HasAllRoles empty", s.HasAllRoles(), true},
		{"HasPermission", s.HasPermission("posts.edit"), true},
		{"HasAnyPermission", s.HasAnyPermission("posts.delete", "posts.create"), true},
		{"HasAllPermissions missing", s.HasAllPermissions("posts.edit", "posts.delete"), false},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestStatusString(t *testing.T) {
	if StatusAnonymous.String() != "anonymous" || StatusAuthenticated.String() != "authenticated" {
		t.Error("unexpected Status strings")
	}
}
