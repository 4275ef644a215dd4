package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"growth_quest/internal/app"
	"growth_quest/internal/config"
)

const usage = `Usage: growthquest [flags] <command> [args]

Commands:
  status            show providers, masked keys and the active selection
  models            list models of the active provider
  check             test the connection to the active provider
  generate <prompt> generate text (reads stdin when no prompt is given)
  repl              interactive session

Flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("growthquest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	provider := fs.String("provider", "", "provider to use (gemini, openrouter, nvidia)")
	model := fs.String("model", "", "model to use; defaults to the provider's default model")
	envFile := fs.String("env", ".env", "path of the .env file")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.LoadFile(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: Failed to load configuration: %v\n", err)
		return 1
	}
	cfg.ApplyLogLevel()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: Failed to start: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := deps.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "WARNING: shutdown: %v\n", err)
		}
	}()

	cli := &CLI{Gateway: deps.Gateway, AppName: cfg.App.Name, Out: stdout, Err: stderr}

	if *provider != "" || *model != "" {
		name := *provider
		if name == "" {
			name = string(deps.Gateway.Selection().Provider)
		}
		if err := cli.Use(name, *model); err != nil && !cli.usable(err) {
			return 2
		}
	}

	return cli.Dispatch(ctx, fs.Arg(0), fs.Args()[1:], stdin)
}
