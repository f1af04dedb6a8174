package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taita/internal/apiclient"
	"github.com/hitoshi/taita/internal/middleware"
	"github.com/hitoshi/taita/internal/model"
)

// DefaultUploadMaxBytes はアップロード本文の既定の上限。
const DefaultUploadMaxBytes int64 = 10 << 20

// UploadHandler はログイン中ユーザーのファイルをセッションのトークンでバックエンドへ中継する。
type UploadHandler struct {
	logger      *slog.Logger
	backendPath string
	maxBytes    int64
}

// NewUploadHandler はUploadHandlerを生成する。maxBytesが0以下の場合は既定値を使う。
func NewUploadHandler(logger *slog.Logger, backendPath string, maxBytes int64) *UploadHandler {
	if backendPath == "" {
		backendPath = "/media"
	}
	if maxBytes <= 0 {
		maxBytes = DefaultUploadMaxBytes
	}
	return &UploadHandler{logger: logger, backendPath: backendPath, maxBytes: maxBytes}
}

// Upload はmultipartの "file" と他のフォーム値をバックエンドへ送り、応答をそのまま返す。
// POST /api/uploads
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	set, ok := mustSet(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteAPIError(w, model.NewValidationError(
				fmt.Sprintf("Upload must not exceed %d bytes.", h.maxBytes),
				map[string][]string{"file": {"The file is too large."}},
			))
			return
		}
		middleware.WriteAPIError(w, model.NewValidationError("Request body must be multipart/form-data.", nil))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("A file is required.",
			map[string][]string{"file": {"The file field is required."}},
		))
		return
	}
	defer file.Close()

	fields := make(map[string]string, len(r.MultipartForm.Value))
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	var out json.RawMessage
	err = set.API.Upload(r.Context(), h.backendPath, apiclient.UploadFile{
		Filename: header.Filename,
		Content:  file,
	}, fields, apiclient.RequestOptions{}, &out)
	if err != nil {
		h.logger.Warn("upload failed",
			slog.String("tenant", set.Tenant),
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.logger.Info("file uploaded",
		slog.String("tenant", set.Tenant),
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
	)
	if len(out) == 0 {
		out = json.RawMessage("null")
	}
	writeJSON(w, http.StatusCreated, dataResponse{Data: out})
}
