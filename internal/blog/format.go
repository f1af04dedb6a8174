package blog

import (
	"fmt"
	"strings"
	"time"
)

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// dateLayouts はバックエンドが返す日時の形式。
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ImageURL は画像パスを絶対URLにする。http(s)で始まるものはそのまま返す。
func ImageURL(base, path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// ParseDate はバックエンドの日時文字列を解析する。
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate は日付を長い形式で表示する。
// localeが es で始まる場合は "2 de enero de 2006"、それ以外は "January 2, 2006"。
// 解析できない入力には空文字列を返す。
func FormatDate(s, locale string) string {
	t, ok := ParseDate(s)
	if !ok {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(locale), "es") {
		return fmt.Sprintf("%d de %s de %d", t.Day(), spanishMonths[t.Month()-1], t.Year())
	}
	return t.Format("January 2, 2006")
}
