package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP server streaming research events",
		Flags: append(commonFlags(),
			&cli.StringFlag{
				Name:    "addr",
				Value:   defaultAddr,
				Sources: cli.EnvVars("QUIZAI_ADDR"),
				Usage:   "Server listen address",
			},
			&cli.StringFlag{
				Name:    "allowed-origins",
				Value:   defaultAllowedOrigins,
				Sources: cli.EnvVars("ALLOWED_ORIGINS"),
				Usage:   "Comma separated list of CORS origins",
			},
			&cli.BoolFlag{
				Name:    "enable-mcp-server-configuration",
				Sources: cli.EnvVars("ENABLE_MCP_SERVER_CONFIGURATION"),
				Usage:   "Accept mcp_settings in chat requests",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(context.Background()); err != nil {
					a.logger.Warn("failed to close resources", "error", err)
				}
			}()

			limit, err := recursionLimitFromEnv(os.Getenv("AGENT_RECURSION_LIMIT"))
			if err != nil {
				return err
			}

			opts := []serverOption{
				withAddr(cmd.String("addr")),
				withAllowedOrigins(splitOrigins(cmd.String("allowed-origins"))),
				withMCPConfiguration(cmd.Bool("enable-mcp-server-configuration")),
				withGatherer(a.registry),
				withRecursionLimit(limit),
				withLogger(a.logger),
			}
			if dir := cmd.String("trace-dir"); dir != "" {
				opts = append(opts, withSource(newLocalSource(dir)))
			}

			return newServer(a.workflow, opts...).start(ctx)
		},
	}
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// recursionLimitFromEnv returns 0, meaning the default, for an empty value.
func recursionLimitFromEnv(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, goerr.New("AGENT_RECURSION_LIMIT must be a positive integer", goerr.V("value", v))
	}
	return n, nil
}
