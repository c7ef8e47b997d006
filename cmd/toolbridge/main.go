package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/toolbridge/toolbridge/bridge"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	app := &cli.App{
		Name:  "toolbridge",
		Usage: "dispatch commands to execution backend services",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level. One of [debug,info,warn,error].",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Print the status of every configured backend connection.",
				Action: func(ctx *cli.Context) error {
					logger, err := buildLogger(ctx.String("log-level"))
					if err != nil {
						return err
					}
					reg := bridge.NewRegistryFromEnv(logger)
					return printJSON(reg.StatusAll())
				},
			},
			{
				Name:      "probe",
				Usage:     "Connect to a backend service, probing its health endpoint.",
				ArgsUsage: "<service>",
				Action: func(ctx *cli.Context) error {
					conn, logger, err := lookupConn(ctx)
					if err != nil {
						return err
					}
					defer logger.Sync()
					ack := conn.Connect(ctx.Context)
					return printJSON(ack)
				},
			},
			{
				Name:      "exec",
				Usage:     "Execute a command against a backend service.",
				ArgsUsage: "<service> <command>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "param",
						Usage: "Command parameter as key=value. Repeatable.",
					},
					&cli.StringFlag{
						Name:  "json",
						Usage: "Command parameters as a raw JSON object. Overrides --param.",
					},
				},
				Action: func(ctx *cli.Context) error {
					conn, logger, err := lookupConn(ctx)
					if err != nil {
						return err
					}
					defer logger.Sync()

					command := ctx.Args().Get(1)
					if command == "" {
						return fmt.Errorf("a command name is required")
					}

					params, err := buildParams(ctx)
					if err != nil {
						return err
					}

					result := conn.Execute(ctx.Context, command, params)
					if err := printJSON(result); err != nil {
						return err
					}
					if success, ok := result["success"].(bool); ok && !success {
						return cli.Exit("", 1)
					}
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func lookupConn(ctx *cli.Context) (*bridge.Connection, *zap.Logger, error) {
	logger, err := buildLogger(ctx.String("log-level"))
	if err != nil {
		return nil, nil, err
	}
	service := ctx.Args().Get(0)
	if service == "" {
		return nil, nil, fmt.Errorf("a service name is required")
	}
	reg := bridge.NewRegistryFromEnv(logger)
	conn, ok := reg.Get(service)
	if !ok {
		return nil, nil, fmt.Errorf("unknown service %q, known services: %s", service, strings.Join(reg.Names(), ", "))
	}
	return conn, logger, nil
}

func buildParams(ctx *cli.Context) (map[string]any, error) {
	if raw := ctx.String("json"); raw != "" {
		var params map[string]any
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, fmt.Errorf("parsing --json params: %w", err)
		}
		return params, nil
	}
	params := make(map[string]any)
	for _, kv := range ctx.StringSlice("param") {
		key, value, found := strings.Cut(kv, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", kv)
		}
		params[key] = value
	}
	return params, nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	fmt.Println(string(b))
	return nil
}
