package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"hwbot/internal/app"
	"hwbot/internal/config"
	logx "hwbot/pkg/logx"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	boot := logx.NewConsole("DEBUG").With(logx.String("comp", "main"))

	cfg, err := config.Load(os.Args[1:], ".env")
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return
		}
		var missing *config.MissingError
		if errors.As(err, &missing) {
			boot.Critical("required environment variable is missing; bot stopped", logx.Strs("missing", missing.Names))
		} else {
			boot.Critical("invalid configuration; bot stopped", logx.Err(err))
		}
		os.Exit(1)
	}

	a, err := app.New(cfg)
	if err != nil {
		boot.Critical("startup failed; bot stopped", logx.Err(err))
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		boot.Error("bot exited with error", logx.Err(err))
	}
}
