package main

import (
	"time"

	"github.com/urfave/cli/v2"
	"github.com/xyths/hs"
	"github.com/xyths/otrace/cmd/utils"
	"github.com/xyths/otrace/tracer"
)

const shutdownTimeout = 10 * time.Second

func newTracer(ctx *cli.Context) (*tracer.Tracer, error) {
	configFile := ctx.String(utils.ConfigFlag.Name)
	cfg := tracer.Config{}
	if err := hs.ParseJsonConfig(configFile, &cfg); err != nil {
		return nil, err
	}
	t := tracer.New(cfg)
	if err := t.Init(ctx.Context); err != nil {
		return nil, err
	}
	return t, nil
}

func run(ctx *cli.Context) error {
	t, err := newTracer(ctx)
	if err != nil {
		return err
	}
	defer t.Shutdown(shutdownTimeout)
	if err := t.Start(ctx.Context); err != nil {
		return err
	}

	<-ctx.Done()

	return nil
}

func once(ctx *cli.Context) error {
	t, err := newTracer(ctx)
	if err != nil {
		return err
	}
	defer t.Shutdown(shutdownTimeout)
	return t.Once(ctx.Context)
}

func print(ctx *cli.Context) error {
	t, err := newTracer(ctx)
	if err != nil {
		return err
	}
	defer t.Shutdown(shutdownTimeout)
	return t.Print(ctx.Context, ctx.String(utils.OuterIdFlag.Name), ctx.String(utils.SiteFlag.Name))
}

func ingest(ctx *cli.Context) error {
	t, err := newTracer(ctx)
	if err != nil {
		return err
	}
	defer t.Shutdown(shutdownTimeout)
	return t.Ingest(ctx.Context, ctx.String(utils.FileFlag.Name))
}
