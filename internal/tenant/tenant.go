// Package tenant はホスト名からテナント識別子を導出する。
package tenant

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// FallbackTenant は既定テナントが未設定のときに使う識別子。
const FallbackTenant = "taita"

// テナントを伝えるためのヘッダーとクエリパラメータ名
const (
	HeaderTenant    = "X-Tenant"
	HeaderSubdomain = "X-Taita-Subdomain"
	QueryParam      = "tenant"
)

// DefaultIgnore はテナントとして扱わない先頭ラベルの既定集合。空ラベルは常に無視される。
var DefaultIgnore = []string{"localhost", "127.0.0.1", "www"}

// Resolver はホスト名をテナント識別子に変換する純粋関数の集まり。
type Resolver struct {
	def    string
	ignore map[string]struct{}

	// TrustForwardedHost がtrueの場合のみFromRequestはX-Forwarded-Hostを使う。
	// 信頼できるリバースプロキシの背後でだけ有効にする。
	TrustForwardedHost bool
}

// NewResolver はResolverを生成する。
// ignoreはDefaultIgnoreに追加される。DefaultIgnoreのラベルは常に既定テナントになる。
func NewResolver(defaultTenant string, ignore ...string) *Resolver {
	def := strings.ToLower(strings.TrimSpace(defaultTenant))
	if def == "" {
		def = FallbackTenant
	}
	set := make(map[string]struct{}, len(DefaultIgnore)+len(ignore)+1)
	set[""] = struct{}{}
	for _, label := range append(append([]string{}, DefaultIgnore...), ignore...) {
		set[strings.ToLower(strings.TrimSpace(label))] = struct{}{}
	}
	return &Resolver{def: def, ignore: set}
}

// Default は既定テナントを返す。
func (r *Resolver) Default() string {
	return r.def
}

// IsDefault はtenantが既定テナントかを返す。
func (r *Resolver) IsDefault(tenant string) bool {
	return strings.EqualFold(tenant, r.def)
}

// Resolve はホスト名からテナントを導出する。結果は空にならない。
//
// ポートと末尾のドットを除去し、IPリテラルなら既定テナント。
// それ以外は最初の "." より前のラベルを取り、無視集合に含まれれば既定テナント。
func (r *Resolver) Resolve(hostname string) string {
	host := strings.ToLower(strings.TrimSpace(hostname))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	host = strings.TrimSuffix(host, ".")

	// ゾーン付きIPv6（fe80::1%eth0）もIPリテラルとして扱う
	if _, err := netip.ParseAddr(host); err == nil {
		return r.def
	}

	label, _, _ := strings.Cut(host, ".")
	if _, ok := r.ignore[label]; ok {
		return r.def
	}
	return label
}

// FromRequest はリクエストのホストからテナントを導出する。
// TrustForwardedHostが有効な場合はX-Forwarded-Hostを優先する。
func (r *Resolver) FromRequest(req *http.Request) string {
	if fwd := req.Header.Get("X-Forwarded-Host"); r.TrustForwardedHost && fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return r.Resolve(first)
	}
	return r.Resolve(req.Host)
}

type contextKey string

var tenantContextKey = contextKey("tenant")

// WithTenant はコンテキストにテナントを注入する。
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenant)
}

// FromContext はコンテキストからテナントを取得する。未設定の場合は空文字列とfalse。
func FromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tenantContextKey).(string)
	return t, ok && t != ""
}
