package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"growth_quest/internal/providers"
)

// CLI runs commands against one gateway
type CLI struct {
	Gateway *providers.Gateway
	AppName string
	Out     io.Writer
	Err     io.Writer
}

// Dispatch runs a single command and returns the process exit code
func (c *CLI) Dispatch(ctx context.Context, command string, args []string, stdin io.Reader) int {
	switch command {
	case "status":
		c.Status()
		return 0
	case "models":
		c.Models(ctx)
		return 0
	case "check":
		if !c.Check(ctx) {
			return 1
		}
		return 0
	case "generate":
		return c.Generate(ctx, args, stdin)
	case "repl":
		c.REPL(ctx, stdin)
		return 0
	}
	fmt.Fprintf(c.Err, "unknown command %q\n", command)
	return 2
}

// Use switches the active provider and model. A provider without credentials
// is still selected; the returned error explains why it cannot generate.
func (c *CLI) Use(provider, model string) error {
	err := c.Gateway.ConfigureByName(provider, model)
	switch {
	case err == nil:
		fmt.Fprintf(c.Out, "Using %s\n", c.Gateway.Selection())
	case errors.Is(err, providers.ErrNotConfigured):
		fmt.Fprintf(c.Err, "WARNING: %v\n", err)
	default:
		fmt.Fprintf(c.Err, "ERROR: %v\n", err)
	}
	return err
}

// usable reports whether a Use error still left a valid selection
func (c *CLI) usable(err error) bool {
	return errors.Is(err, providers.ErrNotConfigured)
}

// Status prints one row per provider
func (c *CLI) Status() {
	if c.AppName != "" {
		fmt.Fprintf(c.Out, "%s\n\n", c.AppName)
	}
	tw := tabwriter.NewWriter(c.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTIVE\tPROVIDER\tCONFIGURED\tAPI KEY\tDEFAULT MODEL\tBASE URL")
	for _, st := range c.Gateway.Status() {
		active := ""
		if st.Active {
			active = "*"
		}
		key := st.MaskedKey
		if key == "" {
			key = "-"
		}
		base := st.BaseURL
		if base == "" {
			base = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\n", active, st.DisplayName, st.Configured, key, st.DefaultModel, base)
	}
	tw.Flush()

	sel := c.Gateway.Selection()
	fmt.Fprintf(c.Out, "\nActive selection: %s\n", sel)
	for _, st := range c.Gateway.Status() {
		if st.InitError != "" {
			fmt.Fprintf(c.Out, "  %s: %s\n", st.Provider, st.InitError)
		}
	}
}

// Models prints the active provider's generation models
func (c *CLI) Models(ctx context.Context) {
	models := c.Gateway.ListAvailableModels(ctx)
	current := c.Gateway.Selection().Model

	tw := tabwriter.NewWriter(c.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tMODEL\tNAME")
	for _, m := range models {
		marker := ""
		if m.ID == current {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", marker, m.ID, m.DisplayName)
	}
	tw.Flush()
}

// Check runs the connection test and prints the verdict with the raw reply
func (c *CLI) Check(ctx context.Context) bool {
	report := c.Gateway.CheckConnectionDetail(ctx)
	target := providers.Selection{Provider: report.Provider, Model: report.Model}

	if report.OK {
		fmt.Fprintf(c.Out, "Connection to %s OK (%s)\n", target, report.Latency.Round(time.Millisecond))
	} else {
		fmt.Fprintf(c.Out, "Connection to %s FAILED (%s)\n", target, report.Latency.Round(time.Millisecond))
	}
	if report.Err != nil {
		fmt.Fprintf(c.Out, "Error: %v\n", report.Err)
	}
	if report.Response != "" {
		fmt.Fprintf(c.Out, "Response: %s\n", strings.TrimSpace(report.Response))
	}
	return report.OK
}

// Generate prints the gateway's text for the prompt in args, or stdin when
// args is empty. The exit code is 1 when generation failed.
func (c *CLI) Generate(ctx context.Context, args []string, stdin io.Reader) int {
	prompt := strings.Join(args, " ")
	if prompt == "" && stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(c.Err, "ERROR: failed to read prompt: %v\n", err)
			return 1
		}
		prompt = strings.TrimSpace(string(data))
	}

	result := c.Gateway.Generate(ctx, prompt)
	fmt.Fprintln(c.Out, result.Render())
	if !result.OK() {
		return 1
	}
	return 0
}

const replHelp = `Commands:
  :use <provider> [model]  switch provider and model
  :models                  list models of the active provider
  :check                   test the connection
  :status                  show providers
  :help                    show this help
  :quit                    leave
Anything else is sent as a prompt.`

// REPL reads prompts and commands until EOF, :quit or ctx is done
func (c *CLI) REPL(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintf(c.Out, "Connected to %s. Type :help for commands.\n", c.Gateway.Selection())
	for {
		fmt.Fprint(c.Out, "> ")
		if ctx.Err() != nil || !scanner.Scan() {
			fmt.Fprintln(c.Out)
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, ":") {
			fmt.Fprintln(c.Out, c.Gateway.GenerateContent(ctx, line))
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case ":quit", ":q", ":exit":
			return
		case ":help":
			fmt.Fprintln(c.Out, replHelp)
		case ":use":
			if len(fields) < 2 {
				fmt.Fprintln(c.Err, "usage: :use <provider> [model]")
				continue
			}
			model := ""
			if len(fields) > 2 {
				model = fields[2]
			}
			c.Use(fields[1], model)
		case ":models":
			c.Models(ctx)
		case ":check":
			c.Check(ctx)
		case ":status":
			c.Status()
		default:
			fmt.Fprintf(c.Err, "unknown command %s, try :help\n", fields[0])
		}
	}
}
