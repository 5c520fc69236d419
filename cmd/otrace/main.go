package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"github.com/xyths/otrace/cmd/utils"
)

var app *cli.App

func init() {
	app = &cli.App{
		Name:    filepath.Base(os.Args[0]),
		Action:  run,
		Usage:   "order tracer, reprice or cancel stale transfer orders",
		Version: "0.2.0",
	}

	app.Commands = []*cli.Command{
		{
			Action: run,
			Name:   "run",
			Usage:  "Run the reconcile loop and the venue stream ingestion",
		},
		{
			Action: once,
			Name:   "once",
			Usage:  "Run one reconcile tick and exit",
		},
		{
			Action: print,
			Name:   "print",
			Usage:  "Print a ledger order",
			Flags: []cli.Flag{
				utils.OuterIdFlag,
				utils.SiteFlag,
			},
		},
		{
			Action: ingest,
			Name:   "ingest",
			Usage:  "Feed venue messages from a JSON file to the ingestor",
			Flags: []cli.Flag{
				utils.FileFlag,
			},
		},
	}
	app.Flags = []cli.Flag{
		utils.ConfigFlag,
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if err := app.RunContext(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
