package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/fetchdeck/internal/config"
	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/ops"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	ConfigPath string
	Headless   bool
	LogFile    string
	HistoryDB  string
	NoHistory  bool

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
	Config *config.FetchdeckConfig
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("config", "Config file merged over the defaults instead of the global and project files.").StringVar(&c.ConfigPath)
	app.Flag("headless", "Run without the terminal UI, logging task events instead.").BoolVar(&c.Headless)
	app.Flag("log-file", "Write logs to this file (defaults to ~/.fetchdeck/fetchdeck.log with the terminal UI).").StringVar(&c.LogFile)
	app.Flag("history-db", "Path to the task history database.").Envar("FETCHDECK_HISTORY_DB").StringVar(&c.HistoryDB)
	app.Flag("no-history", "Do not record tasks in the history database.").BoolVar(&c.NoHistory)

	return c
}

// LoadConfig loads the configuration the flags point at.
func (c *RootCommand) LoadConfig() (*config.FetchdeckConfig, error) {
	if c.ConfigPath != "" {
		return config.Load("", c.ConfigPath)
	}
	return config.LoadDefault()
}

// DefaultLogFile is where the terminal UI logs when no log file is given.
func DefaultLogFile() string {
	return filepath.Join(fetchdeckHome(), "fetchdeck.log")
}

// historyPath resolves the history database location: flag, then config,
// then ~/.fetchdeck/history.db.
func (c *RootCommand) historyPath() string {
	switch {
	case c.HistoryDB != "":
		return c.HistoryDB
	case c.Config != nil && c.Config.HistoryDB != "":
		return c.Config.HistoryDB
	default:
		return filepath.Join(fetchdeckHome(), "history.db")
	}
}

func fetchdeckHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fetchdeck"
	}
	return filepath.Join(home, ".fetchdeck")
}

// newEnv builds the operation environment from the loaded configuration.
func (c *RootCommand) newEnv() *ops.Env {
	env := ops.NewEnv(c.Logger)
	cfg := c.Config
	if cfg == nil {
		return env
	}

	env.Tools = ops.Tools{
		FFmpeg:  cfg.Tools.FFmpeg,
		FFprobe: cfg.Tools.FFprobe,
		Wget:    cfg.Tools.Wget,
		YtDlp:   cfg.Tools.YtDlp,
	}
	env.Retry = ops.RetryConfig{
		InitialInterval:     cfg.Retry.InitialInterval.Std(),
		MaxInterval:         cfg.Retry.MaxInterval.Std(),
		MaxElapsedTime:      cfg.Retry.MaxElapsedTime.Std(),
		Multiplier:          cfg.Retry.Multiplier,
		RandomizationFactor: ops.DefaultRetryConfig().RandomizationFactor,
		MaxRetries:          cfg.Retry.MaxRetries,
	}
	env.Breakers = ops.NewBreakerRegistry(ops.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout.Std(),
	}, c.Logger)

	return env
}

// outputDir returns dir, or the configured output directory when dir is empty.
func (c *RootCommand) outputDir(dir string) string {
	if dir != "" || c.Config == nil {
		return dir
	}
	return c.Config.OutputDir
}

// describeParams renders key/value pairs for the task history, skipping
// empty values.
func describeParams(kv map[string]string) string {
	keys := make([]string, 0, len(kv))
	for k, v := range kv {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, kv[k]))
	}
	return strings.Join(parts, " ")
}
