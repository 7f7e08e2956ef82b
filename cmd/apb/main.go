// Package main is the entry point for the apb CLI.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/repoforge/apb/cmd/apb/commands"
	"github.com/repoforge/apb/internal/application"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.New().Execute(ctx); err != nil {
		var queryErr *application.QueryError
		if errors.As(err, &queryErr) {
			slog.Error("query failed", "query", queryErr.Query, "error", queryErr.Err)
		} else {
			slog.Error("fatal error", "error", err)
		}
		os.Exit(1)
	}
}
