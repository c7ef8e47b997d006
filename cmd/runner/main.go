package main

import (
	"fmt"
	"log"
	"os"

	"github.com/toolbridge/toolbridge/runner"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	app := &cli.App{
		Name:  "runner",
		Usage: "a development stand-in for a backend execution service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "service",
				Usage: "The service name reported by the health route.",
				Value: "python",
			},
			&cli.StringFlag{
				Name:  "listen-addr",
				Usage: "The address for the HTTP server to listen on.",
				Value: "0.0.0.0:8001",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level. One of [debug,info,warn,error].",
				Value: "info",
			},
		},
		Action: func(ctx *cli.Context) error {
			lvl, err := zapcore.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return fmt.Errorf("parsing log level: %w", err)
			}
			cfg := zap.NewDevelopmentConfig()
			cfg.Level = zap.NewAtomicLevelAt(lvl)
			logger, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			defer logger.Sync()

			r := runner.New(
				ctx.String("service"),
				runner.WithListenAddr(ctx.String("listen-addr")),
				runner.WithLogger(logger),
			)
			return r.Run()
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
