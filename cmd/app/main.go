package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/K9kd22r8/logseq/internal"
	pkgconfig "github.com/K9kd22r8/logseq/pkg/config"
)

// appOptions loads the configuration named by --config and applies the
// graph and database flags on top of it.
func appOptions(cmd *cli.Command) ([]internal.Option, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if p := cmd.String("graph"); p != "" {
		cfg.Graph.Path = p
	}
	if p := cmd.String("db"); p != "" {
		cfg.SQLite.Path = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return []internal.Option{internal.WithConfig(cfg)}, nil
}

func action(run func(context.Context, ...internal.Option) error, name string) func(context.Context, *cli.Command) error {
	return func(ctx context.Context, cmd *cli.Command) error {
		opts, err := appOptions(cmd)
		if err != nil {
			return err
		}
		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("%s error: %w", name, err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "graphimport",
		Usage: "Import a Markdown outline graph into a typed graph database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "graph",
				Aliases: []string{"g"},
				Usage:   "Graph directory (overrides graph.path)",
				Sources: cli.EnvVars("APP_GRAPH_PATH"),
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database file (overrides sqlite.path)",
				Sources: cli.EnvVars("APP_SQLITE_PATH"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "import",
				Usage:  "Import every changed file once and print a JSON report",
				Action: action(internal.RunImport, "import"),
			},
			{
				Name:   "serve",
				Usage:  "Import, watch the graph directory and serve the HTTP API",
				Action: action(internal.Run, "app run"),
			},
			{
				Name:   "mcp",
				Usage:  "Serve the import session over MCP on stdio",
				Action: action(internal.RunMCP, "mcp"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
