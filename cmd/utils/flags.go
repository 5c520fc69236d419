package utils

import "github.com/urfave/cli/v2"

var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "config.json",
		Usage:   "load configuration from `file`",
	}

	OuterIdFlag = &cli.StringFlag{
		Name:     "outer",
		Aliases:  []string{"o"},
		Required: true,
		Usage:    "venue order `id`",
	}
	SiteFlag = &cli.StringFlag{
		Name:    "site",
		Aliases: []string{"s"},
		Value:   "huobi",
		Usage:   "venue `name`",
	}
	FileFlag = &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Required: true,
		Usage:    "venue messages `file`, one message or an array",
	}
)
