// Command taita はマルチテナントブログのゲートウェイとCLIを起動する。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hitoshi/taita/internal/app"
)

func main() {
	if err := app.Run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var failed *app.ErrCommandFailed
		if !errors.As(err, &failed) {
			fmt.Fprintf(os.Stderr, "taita: %v\n", err)
		}
		os.Exit(1)
	}
}
