package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/aristath/fetchdeck/cmd/fetchdeck/commands"
	"github.com/aristath/fetchdeck/internal/log"
	loglogrus "github.com/aristath/fetchdeck/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("fetchdeck", "Run downloads, transcodes, mirrors, archives and uploads from the terminal.")
	app.Version(Version)
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	downloadCmd := commands.NewDownloadCommand(rootCmd, app)
	videoCmd := commands.NewVideoCommand(rootCmd, app)
	transcodeCmd := commands.NewTranscodeCommand(rootCmd, app)
	mirrorCmd := commands.NewMirrorCommand(rootCmd, app)
	archiveCmd := commands.NewArchiveCommand(rootCmd, app)
	uploadCmd := commands.NewUploadCommand(rootCmd, app)
	sleepCmd := commands.NewSleepCommand(rootCmd, app)
	historyCmd := commands.NewHistoryCommand(rootCmd, app)
	configCmd := commands.NewConfigCommand(rootCmd, app)

	cmds := map[string]commands.Command{
		downloadCmd.Name():  downloadCmd,
		videoCmd.Name():     videoCmd,
		transcodeCmd.Name(): transcodeCmd,
		mirrorCmd.Name():    mirrorCmd,
		archiveCmd.Name():   archiveCmd,
		uploadCmd.Name():    uploadCmd,
		sleepCmd.Name():     sleepCmd,
		historyCmd.Name():   historyCmd,
		configCmd.Name():    configCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// History and config output is for reading; keep logs out of it unless
	// debugging. Task commands driving the terminal UI log to a file instead
	// of the screen.
	switch {
	case cmdName == historyCmd.Name(), cmdName == configCmd.Name():
		if !rootCmd.Debug {
			rootCmd.NoLog = true
		}
	case !rootCmd.Headless && rootCmd.LogFile == "":
		rootCmd.LogFile = commands.DefaultLogFile()
	}

	// Set logger.
	logger, closeLog := getLogger(*rootCmd)
	defer closeLog()
	rootCmd.Logger = logger

	cfg, err := rootCmd.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	rootCmd.Config = cfg

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger and a function releasing its output.
func getLogger(config commands.RootCommand) (log.Logger, func()) {
	if config.NoLog {
		return log.Noop, func() {}
	}

	// If logger not disabled use logrus logger.
	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // By default logger goes to stderr (so it can split stdout prints).
	closeFn := func() {}
	noColor := config.NoColor

	if config.LogFile != "" {
		f, err := openLogFile(config.LogFile)
		if err != nil {
			fmt.Fprintf(config.Stderr, "Logging disabled: %v\n", err)
			return log.Noop, func() {}
		}
		logrusLog.Out = f
		closeFn = func() { f.Close() }
		noColor = true
	}

	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	// Log format.
	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !noColor,
			DisableColors: noColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled") // Will log only when debug enabled.

	return logger, closeFn
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
