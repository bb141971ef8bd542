// cmd/choreo/main.go
//
// Entry point for the choreo CLI. Every command works on the project in the
// current directory (or --project) and its .choreo/ folder:
//
//	choreo init                  create .choreo/ with a default config
//	choreo scenes                list the scenes found in the scene dirs
//	choreo plan <scene>          schedule a scene on the recorder and print it
//	choreo play <scene>          play a scene in real time with a live monitor
//	choreo serve <scene>         schedule a scene for an external renderer
//	choreo journal               show the tail of the commit journal

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"
)

const version = "0.3.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp(ctx).Run(os.Args); err != nil {
		die("%v", err)
	}
}

func newApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = "choreo"
	app.HelpName = "choreo"
	app.Usage = "compose timed effects into timelines"
	app.UsageText = "choreo [--project DIR] <command> [arguments...]"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "project, p",
			Usage: "project directory (defaults to the working directory)",
		},
	}
	app.Before = func(c *cli.Context) error {
		// A missing .env is fine; the environment may already be set.
		_ = godotenv.Load(filepath.Join(projectDir(c), ".env"))
		return nil
	}
	sceneFlags := []cli.Flag{
		cli.StringSliceFlag{
			Name:  "bind, b",
			Usage: "bind a scene input to a subject (input=subject, repeatable)",
		},
		cli.StringSliceFlag{
			Name:  "set, s",
			Usage: "override an effect param (key=value, repeatable)",
		},
		cli.DurationFlag{
			Name:  "duration, d",
			Usage: "block default duration (overrides timeline.default_duration)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "init",
			Usage:  "create the .choreo directory and default config",
			Action: withContext(ctx, runInit),
		},
		{
			Name:    "scenes",
			Aliases: []string{"ls"},
			Usage:   "list available scenes",
			Action:  withContext(ctx, runScenes),
		},
		{
			Name:      "plan",
			Usage:     "schedule a scene without playing it",
			ArgsUsage: "<scene>",
			Flags: append([]cli.Flag{
				cli.StringFlag{Name: "manifest, m", Usage: "write applied effects as JSON lines to `FILE`"},
				cli.DurationFlag{Name: "min-duration", Usage: "widen shorter effects to this duration"},
			}, sceneFlags...),
			Action: withContext(ctx, runPlan),
		},
		{
			Name:      "play",
			Usage:     "play a scene in real time",
			ArgsUsage: "<scene>",
			Flags: append([]cli.Flag{
				cli.BoolFlag{Name: "no-tui", Usage: "wait for playback without the monitor"},
			}, sceneFlags...),
			Action: withContext(ctx, runPlay),
		},
		{
			Name:      "serve",
			Usage:     "schedule a scene and wait for an external renderer to report completions",
			ArgsUsage: "<scene>",
			Flags: append([]cli.Flag{
				cli.StringFlag{Name: "manifest, m", Usage: "write applied effects to `FILE` instead of stdout"},
			}, sceneFlags...),
			Action: withContext(ctx, runServe),
		},
		{
			Name:  "journal",
			Usage: "show recent commit journal entries",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "lines, n", Value: 20, Usage: "number of lines to show"},
			},
			Action: withContext(ctx, runJournal),
		},
	}
	return app
}

func withContext(ctx context.Context, fn func(context.Context, *cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		return fn(ctx, c)
	}
}

func projectDir(c *cli.Context) string {
	if dir := c.GlobalString("project"); dir != "" {
		return dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		die("determine working directory: %v", err)
	}
	return cwd
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
