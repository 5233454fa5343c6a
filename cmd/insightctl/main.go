// Command insightctl runs the transcription, indexing and question answering steps from a terminal.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
)

type globals struct {
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"warn" env:"LOG_LEVEL"`
}

type cli struct {
	globals

	Transcribe      transcribeCmd      `cmd:"" help:"Transcribe local audio files into utterance CSVs."`
	ReindexComments reindexCommentsCmd `cmd:"" help:"Rebuild the vector collection from the comments table."`
	Ask             askCmd             `cmd:"" help:"Answer a question from the indexed comments."`
}

func main() {
	var c cli

	kctx := kong.Parse(&c,
		kong.Name("insightctl"),
		kong.Description("Podcast insights command line tools."),
		kong.UsageOnError(),
	)

	setupLogging(c.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.FatalIfErrorf(kctx.Run(&c.globals))
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelWarn
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
