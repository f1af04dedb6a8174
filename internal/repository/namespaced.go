package repository

import "context"

// Namespaced は全キーに接頭辞を付けて下位のLocalStorageを区画化する。
// ゲートウェイではブラウザセッションごと、CLIではプロファイルごとに使う。
type Namespaced struct {
	inner  LocalStorage
	prefix string
}

// NewNamespaced はnamespaceで区画化したLocalStorageを返す。
// namespaceが空の場合はinnerをそのまま使う。
func NewNamespaced(inner LocalStorage, namespace string) *Namespaced {
	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}
	return &Namespaced{inner: inner, prefix: prefix}
}

func (n *Namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *Namespaced) Remove(ctx context.Context, key string) error {
	return n.inner.Remove(ctx, n.prefix+key)
}

var _ LocalStorage = (*Namespaced)(nil)
