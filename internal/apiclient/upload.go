package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"

	"github.com/hitoshi/taita/internal/model"
)

// UploadFile はマルチパート送信するファイル。
type UploadFile struct {
	// FieldName はフォームのフィールド名。空の場合は "file"。
	FieldName string
	Filename  string
	Content   io.Reader
}

// Upload はファイルと追加フィールドをmultipart/form-dataでPOSTする。
// 認証・テナントヘッダーの付与と401処理は通常のリクエストと同じ。
// 本文の組み立てに失敗した場合もエラーは*model.APIError。
func (c *Client) Upload(ctx context.Context, path string, file UploadFile, fields map[string]string, opts RequestOptions, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	field := file.FieldName
	if field == "" {
		field = "file"
	}
	part, err := w.CreateFormFile(field, file.Filename)
	if err != nil {
		return model.NewRequestBuildError(fmt.Errorf("failed to create form file: %w", err))
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return model.NewRequestBuildError(fmt.Errorf("failed to copy upload content: %w", err))
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return model.NewRequestBuildError(fmt.Errorf("failed to write form field %s: %w", k, err))
		}
	}
	if err := w.Close(); err != nil {
		return model.NewRequestBuildError(fmt.Errorf("failed to finalize multipart body: %w", err))
	}

	if opts.Headers == nil {
		opts.Headers = http.Header{}
	} else {
		opts.Headers = opts.Headers.Clone()
	}
	opts.Headers.Set("Content-Type", w.FormDataContentType())
	opts.Body = buf.Bytes()

	return c.Do(ctx, http.MethodPost, path, opts, out)
}
