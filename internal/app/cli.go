package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hitoshi/taita/internal/apiclient"
	"github.com/hitoshi/taita/internal/clientset"
	"github.com/hitoshi/taita/internal/config"
	"github.com/hitoshi/taita/internal/model"
	"github.com/hitoshi/taita/internal/tenant"
)

// cliPath はCLIのクライアント一式に渡す現在の画面パス。
const cliPath = "/cli"

// result はCLIの出力フォーマット。ゲートウェイの応答と同じ形。
type result struct {
	Data     any    `json:"data"`
	Error    string `json:"error,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// ErrCommandFailed は結果を出力した上で失敗終了させるためのエラー。
type ErrCommandFailed struct {
	Command Command
	Message string
}

func (e *ErrCommandFailed) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
}

// runTenant はホスト名から解決されるテナントを出力する。ネットワークには接続しない。
func runTenant(stdout io.Writer, cfg *config.Config, opts Options) error {
	resolver := tenant.NewResolver(cfg.DefaultTenant, cfg.TenantIgnore...)
	t := resolver.Resolve(opts.Args[0])
	return writeResult(stdout, result{Data: map[string]any{
		"host":       opts.Args[0],
		"tenant":     t,
		"is_default": resolver.IsDefault(t),
	}})
}

// runCLI はプロファイルごとの保存領域でクライアント一式を作り、サブコマンドを実行する。
func runCLI(ctx context.Context, stdout io.Writer, cfg *config.Config, log *slog.Logger, cmd Command, opts Options) error {
	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	tenantID := rt.factory.Resolver().Default()
	if opts.Host != "" {
		tenantID = rt.factory.Resolver().Resolve(opts.Host)
	}
	set, err := rt.factory.New(ctx, tenantID, "cli:"+opts.Profile, cliPath)
	if err != nil {
		return fmt.Errorf("failed to build client: %w", err)
	}

	res, err := execute(ctx, set, cfg, cmd, opts)
	if err != nil {
		return err
	}
	if redirect, ok := set.History.LastRedirect(); ok {
		res.Redirect = redirect
	}
	if werr := writeResult(stdout, res); werr != nil {
		return werr
	}
	if res.Error != "" {
		return &ErrCommandFailed{Command: cmd, Message: res.Error}
	}
	return nil
}

// execute はサブコマンドを実行して出力内容を返す。
func execute(ctx context.Context, set *clientset.Set, cfg *config.Config, cmd Command, opts Options) (result, error) {
	postQuery := model.PostQuery{
		Page:     opts.Page,
		PerPage:  opts.PerPage,
		Category: opts.Category,
		Tag:      opts.Tag,
		Featured: opts.Featured,
	}
	listQuery := model.ListQuery{Page: opts.Page, PerPage: opts.PerPage}

	switch cmd {
	case CommandPosts:
		page := set.Blog.FetchPosts(ctx, postQuery)
		return result{Data: page, Error: set.Blog.Error()}, nil

	case CommandPost:
		post := set.Blog.FetchPost(ctx, opts.Args[0])
		if post == nil {
			return result{Error: set.Blog.Error()}, nil
		}
		storeErr := set.Blog.Error()
		data := map[string]any{
			"post":           post,
			"image_url":      set.Blog.ImageURL(post.FeaturedImage),
			"published_date": set.Blog.FormatDate(post.PublishedAt),
		}
		if opts.Related > 0 {
			set.Blog.FetchPosts(ctx, model.PostQuery{PerPage: model.DefaultPerPage})
			data["related"] = set.Blog.RelatedPosts(*post, opts.Related)
		}
		return result{Data: data, Error: storeErr}, nil

	case CommandCategories:
		return result{Data: set.Blog.FetchCategories(ctx, listQuery), Error: set.Blog.Error()}, nil

	case CommandTags:
		return result{Data: set.Blog.FetchTags(ctx, listQuery), Error: set.Blog.Error()}, nil

	case CommandSearch:
		page := set.Blog.SearchPosts(ctx, opts.Args[0], postQuery)
		return result{Data: page, Error: set.Blog.Error()}, nil

	case CommandMenu:
		return result{Data: set.Blog.FetchMenu(ctx), Error: set.Blog.Error()}, nil

	case CommandLogin:
		if opts.Email == "" || opts.Password == "" {
			return result{}, fmt.Errorf("login requires --email and --password")
		}
		if _, err := set.Auth.Login(ctx, model.Credentials{Email: opts.Email, Password: opts.Password}); err != nil {
			return result{Error: apiclient.MessageFor(err, apiclient.ContextMessage("logging in"))}, nil
		}
		return result{Data: sessionView(set)}, nil

	case CommandLogout:
		set.Auth.Logout(ctx)
		return result{Data: sessionView(set)}, nil

	case CommandWhoami:
		if !set.Auth.IsAuthenticated() {
			return result{Data: sessionView(set)}, nil
		}
		if _, err := set.Auth.FetchCurrentUser(ctx); err != nil {
			return result{Data: sessionView(set), Error: apiclient.MessageFor(err, apiclient.ContextMessage("fetching the current user"))}, nil
		}
		return result{Data: sessionView(set)}, nil

	case CommandUpload:
		if !set.Auth.IsAuthenticated() {
			return result{Data: sessionView(set), Error: model.MsgUnauthorized}, nil
		}
		return upload(ctx, set, cfg.UploadPath, opts)

	default:
		return result{}, fmt.Errorf("unsupported command: %s", cmd)
	}
}

// upload はローカルファイルをプロファイルのトークンでバックエンドへ送る。
func upload(ctx context.Context, set *clientset.Set, path string, opts Options) (result, error) {
	f, err := os.Open(opts.Args[0])
	if err != nil {
		return result{}, fmt.Errorf("failed to open upload file: %w", err)
	}
	defer f.Close()

	var out json.RawMessage
	err = set.API.Upload(ctx, path, apiclient.UploadFile{
		Filename: filepath.Base(opts.Args[0]),
		Content:  f,
	}, opts.Fields, apiclient.RequestOptions{}, &out)
	if err != nil {
		return result{Error: apiclient.MessageFor(err, apiclient.ContextMessage("uploading the file"))}, nil
	}
	return result{Data: out}, nil
}

func sessionView(set *clientset.Set) map[string]any {
	return map[string]any{
		"tenant":        set.Tenant,
		"authenticated": set.Auth.IsAuthenticated(),
		"status":        set.Auth.Status().String(),
		"user":          set.Auth.User(),
	}
}

func writeResult(w io.Writer, res result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
