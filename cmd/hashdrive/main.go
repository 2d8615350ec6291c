package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashdriveorg/hashdrive-go/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app := &cli.App{Stdout: os.Stdout, Stderr: os.Stderr, Environ: os.Environ()}
	code := app.Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
