package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/mchmarny/riskctl/pkg/config"
	"github.com/mchmarny/riskctl/pkg/data"
	"github.com/mchmarny/riskctl/pkg/logging"
)

const (
	appName      = "riskctl"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	configFlag = &urfave.StringFlag{
		Name:  "config",
		Usage: "Path to the config file (default: ~/.riskctl/config.yaml)",
	}

	dbFlag = &urfave.StringFlag{
		Name:  "db",
		Usage: "Path to the SQLite database file, or the PostgreSQL DSN when store.driver is postgres",
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Dir      string
	Config   *config.Config
	DB       *data.DB
	Format   string
	LogLevel string
}

func getConfig(cmd *urfave.Command) *appConfig {
	return cmd.Root().Metadata[appConfigKey].(*appConfig)
}

func newApp() *urfave.Command {
	return &urfave.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Assess the cybersecurity risk of network entities",
		Metadata:              map[string]any{},
		Flags: []urfave.Flag{
			debugFlag,
			configFlag,
			dbFlag,
			formatFlag,
		},
		Commands: []*urfave.Command{
			trainCmd,
			assessCmd,
			bulkCmd,
			modelsCmd,
			historyCmd,
			resetCmd,
			serverCmd,
		},
		Before: func(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
			cfg, err := loadConfig(cmd.String(configFlag.Name))
			if err != nil {
				return ctx, err
			}

			level := cfg.Config.Log.Level
			if cmd.Bool(debugFlag.Name) {
				level = "debug"
			}
			logging.SetDefaultCLILogger(level)
			cfg.LogLevel = level

			cfg.Format = formatJSON
			if f := cmd.String(formatFlag.Name); f == formatYAML || f == "yml" {
				cfg.Format = formatYAML
			}

			if v := cmd.String(dbFlag.Name); v != "" {
				cfg.Config.Store.DSN = v
			}

			driver, dsn := cfg.Config.DataSource(cfg.Dir)
			db, err := data.Open(ctx, driver, dsn)
			if err != nil {
				return ctx, fmt.Errorf("opening database: %w", err)
			}
			cfg.DB = db

			cmd.Root().Metadata[appConfigKey] = cfg
			return ctx, nil
		},
		After: func(_ context.Context, cmd *urfave.Command) error {
			if cfg, ok := cmd.Root().Metadata[appConfigKey].(*appConfig); ok && cfg.DB != nil {
				cfg.DB.Close()
			}
			return nil
		},
	}
}

// loadConfig reads the config file at path, or the default config in the
// user's home directory when path is empty.
func loadConfig(path string) (*appConfig, error) {
	if path != "" {
		c, err := config.Read(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		return &appConfig{Dir: filepath.Dir(path), Config: c}, nil
	}

	dir, _, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		return nil, fmt.Errorf("resolving home dir: %w", err)
	}
	c, err := config.ReadOrCreate(dir)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return &appConfig{Dir: dir, Config: c}, nil
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		return yaml.NewEncoder(w).Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

// output writes v to the command's writer in the selected format.
func output(cmd *urfave.Command, v any) error {
	return encode(cmd.Root().Writer, getConfig(cmd).Format, v)
}
