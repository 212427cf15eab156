// Command sloq exercises a rate-limited queue.
//
//	sloq demo -n 10 -t 500ms -w 3 -d 200ms
//	sloq measure -n 50 -t 20ms -w 4
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
)

var verbose = flag.Bool("v", false, "log at debug level")

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&demoCmd{}, "")
	subcommands.Register(&measureCmd{}, "")

	flag.Parse()
	slog.SetDefault(newLogger(*verbose))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(int(subcommands.Execute(ctx)))
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
