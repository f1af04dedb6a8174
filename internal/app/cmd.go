package app

import (
	"fmt"
	"io"

	flag "github.com/spf13/pflag"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はゲートウェイサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はクライアント状態ストアのマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"

	CommandPosts      Command = "posts"
	CommandPost       Command = "post"
	CommandCategories Command = "categories"
	CommandTags       Command = "tags"
	CommandSearch     Command = "search"
	CommandMenu       Command = "menu"
	CommandLogin      Command = "login"
	CommandLogout     Command = "logout"
	CommandWhoami     Command = "whoami"
	CommandTenant     Command = "tenant"
	CommandUpload     Command = "upload"
)

// commands はサポートするサブコマンドと必要な位置引数の数。
var commands = map[Command]int{
	CommandServe:       0,
	CommandMigrate:     0,
	CommandHealthcheck: 0,
	CommandPosts:       0,
	CommandPost:        1,
	CommandCategories:  0,
	CommandTags:        0,
	CommandSearch:      1,
	CommandMenu:        0,
	CommandLogin:       0,
	CommandLogout:      0,
	CommandWhoami:      0,
	CommandTenant:      1,
	CommandUpload:      1,
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはフラグから始まる場合はCommandServeを返す。未知のコマンドはfalse。
func ParseCommand(args []string) (Command, bool) {
	if len(args) == 0 || (len(args[0]) > 0 && args[0][0] == '-') {
		return CommandServe, true
	}
	cmd := Command(args[0])
	if _, ok := commands[cmd]; !ok {
		return cmd, false
	}
	return cmd, true
}

// Options はCLIサブコマンドのフラグ。
type Options struct {
	Host     string
	Page     int
	PerPage  int
	Category string
	Tag      string
	Featured bool
	Email    string
	Password string
	Profile  string
	Related  int
	// Fields はuploadでファイルと一緒に送るフォーム値。
	Fields map[string]string

	// Args はサブコマンド名を除いた位置引数。
	Args []string
}

// ParseOptions はサブコマンド以降の引数をフラグと位置引数に分解する。
// 位置引数の数が足りない場合はエラーを返す。
func ParseOptions(cmd Command, args []string, usage io.Writer) (Options, error) {
	var opts Options
	fs := flag.NewFlagSet(string(cmd), flag.ContinueOnError)
	if usage == nil {
		usage = io.Discard
	}
	fs.SetOutput(usage)

	fs.StringVar(&opts.Host, "host", "", "Host name used to resolve the tenant (e.g. acme.taita.blog)")
	fs.IntVar(&opts.Page, "page", 0, "Page number")
	fs.IntVar(&opts.PerPage, "per-page", 0, "Items per page")
	fs.StringVar(&opts.Category, "category", "", "Filter posts by category slug")
	fs.StringVar(&opts.Tag, "tag", "", "Filter posts by tag slug")
	fs.BoolVar(&opts.Featured, "featured", false, "Only featured posts")
	fs.StringVar(&opts.Email, "email", "", "Email address for login")
	fs.StringVar(&opts.Password, "password", "", "Password for login")
	fs.StringVarP(&opts.Profile, "profile", "p", "default", "Profile name that isolates the stored session")
	fs.IntVar(&opts.Related, "related", 0, "Number of related posts to include with a post")
	fs.StringToStringVar(&opts.Fields, "field", nil, "Form field sent with an upload (key=value, repeatable)")

	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("invalid flags for %s: %w", cmd, err)
	}
	opts.Args = fs.Args()

	if want := commands[cmd]; len(opts.Args) < want {
		return Options{}, fmt.Errorf("%s requires %d argument(s)", cmd, want)
	}
	return opts, nil
}
