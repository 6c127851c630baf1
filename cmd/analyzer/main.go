// cmd/analyzer runs the range-bar market analyzer and its trading loops.
//
//	analyzer run       live loops against the feed server
//	analyzer backtest  replay one day on a virtual clock and a paper broker
//	analyzer strategies list the strategy names accepted by strategy.use
//
// Settings come from the YAML file given by --config (or ANALYZER_CONFIG),
// overridden by the environment; see config.Settings.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-analyzer/internal/strategy"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "analyzer",
		Usage: "Range-bar market analyzer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML settings `FILE`",
				Sources: cli.EnvVars("ANALYZER_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the live loops",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := newApp(cmd.String("config"), false, "")
					if err != nil {
						return err
					}
					defer a.close()
					return a.runLive(ctx)
				},
			},
			{
				Name:  "backtest",
				Usage: "Replay one trading day against the paper broker",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "date",
						Aliases: []string{"d"},
						Usage:   "Trading day in `YYYY-MM-DD` format (overrides backtest.date)",
					},
					&cli.BoolFlag{
						Name:  "sim",
						Usage: "Generate the day's ticks in-process instead of asking the feed server",
					},
					&cli.Int64Flag{
						Name:  "seed",
						Usage: "Random seed of the in-process market",
						Value: 1,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := newApp(cmd.String("config"), true, cmd.String("date"))
					if err != nil {
						return err
					}
					defer a.close()
					return a.runBacktest(ctx, cmd.Bool("sim"), cmd.Int64("seed"))
				},
			},
			{
				Name:  "strategies",
				Usage: "List the built-in strategies",
				Action: func(_ context.Context, _ *cli.Command) error {
					for _, name := range strategy.NewRegistry().Names() {
						fmt.Println(name)
					}
					fmt.Println("wrappers: fade:<name> follow:<name> martingale:<name>")
					return nil
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "analyzer:", err)
		os.Exit(1)
	}
}
