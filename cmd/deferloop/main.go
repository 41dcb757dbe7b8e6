// Command deferloop runs the canned ordering scenarios on the deterministic
// scheduler and prints their console output.
//
// Run with: go run ./cmd/deferloop run --scenario engine-event-loop --verify
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli"

	deferloop "github.com/joeycumines/go-deferloop"
	"github.com/joeycumines/go-deferloop/internal/scenario"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(ctx, os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "deferloop"
	app.Usage = "replay deferred-callback ordering scenarios deterministically"
	app.UsageText = "deferloop [global options] <command> [arguments...]"
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "log-level",
			Usage:  "scheduler log level (trace, debug, info, notice, warning, err, disabled)",
			Value:  "warning",
			EnvVar: "DEFERLOOP_LOG_LEVEL",
		},
		cli.IntFlag{
			Name:   "max-passes",
			Usage:  "stop a scenario after this many drain passes (0 for unlimited)",
			Value:  64,
			EnvVar: "DEFERLOOP_MAX_PASSES",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:    "list",
			Aliases: []string{"l"},
			Usage:   "list the available scenarios",
			Action: func(c *cli.Context) error {
				for _, name := range scenario.Names() {
					x, _ := scenario.Lookup(name)
					fmt.Fprintf(stdout, "%-20s %s\n", name, x.Description)
				}
				return nil
			},
		},
		{
			Name:    "run",
			Aliases: []string{"r"},
			Usage:   "run scenarios, printing their console output",
			Flags: []cli.Flag{
				cli.StringSliceFlag{
					Name:  "scenario, s",
					Usage: "scenario to run, repeatable (default: all)",
				},
				cli.BoolFlag{
					Name:  "verify",
					Usage: "fail if the output differs from the expected order",
				},
			},
			Action: func(c *cli.Context) error {
				return runScenarios(ctx, c, stdout, stderr)
			},
		},
	}
	return app
}

func runScenarios(ctx context.Context, c *cli.Context, stdout, stderr io.Writer) error {
	level, err := deferloop.ParseLevel(c.GlobalString("log-level"))
	if err != nil {
		return err
	}
	opts := []deferloop.Option{
		deferloop.WithLogger(deferloop.NewLogger(stderr, level)),
		deferloop.WithMaxPasses(c.GlobalInt("max-passes")),
	}

	names := c.StringSlice("scenario")
	if len(names) == 0 {
		names = scenario.Names()
	}

	var failed int
	for i, name := range names {
		x, ok := scenario.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown scenario %q", name)
		}
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		fmt.Fprintf(stdout, "# %s\n", x.Name)

		lines, err := x.Run(ctx, stdout, opts...)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", x.Name, err)
		}
		if c.Bool("verify") {
			if err := x.Verify(lines); err != nil {
				fmt.Fprintln(stderr, err)
				failed++
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d scenario(s) produced unexpected output", failed)
	}
	return nil
}
