// Package cmd provides the hydrate command-line interface.
//
// Configuration System:
//
//	Settings come from several sources with clear precedence:
//	1. Command-line flags (--input, --port, etc.) - highest priority
//	2. Individual environment variables (HYDRATE_BUILD_INPUT_DIR, etc.)
//	3. The configuration file: --config, then HYDRATE_CONFIG_FILE, then
//	   .hydrate.yml in the working directory
//	4. Built-in defaults - lowest priority
//
// Environment Variables:
//
//	HYDRATE_CONFIG_FILE: Path to custom configuration file
//	HYDRATE_BUILD_INPUT_DIR: Override the directory holding the built site
//	HYDRATE_SERVER_PORT: Override server port
//	And every other key following the HYDRATE_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/hydrate/internal/config"
	"github.com/conneroisu/hydrate/internal/logging"
)

// app holds the state shared by one command tree.
type app struct {
	v  *viper.Viper
	fs afero.Fs

	cfgFile   string
	logLevel  string
	logFormat string
	logFile   string

	// bindings maps each command's flag names to configuration keys. Only
	// the running command's flags are bound, since commands share keys.
	bindings map[*cobra.Command]map[string]string

	logger   logging.Logger
	closeLog func()
}

// Execute runs the hydrate command line until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the full command tree backed by the OS filesystem
// and a fresh viper instance.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApp(afero.NewOsFs()))
}

func newApp(fs afero.Fs) *app {
	return &app{v: viper.New(), fs: fs, bindings: make(map[*cobra.Command]map[string]string)}
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hydrate",
		Short: "Pre-render shadow DOM for the custom elements of a static site",
		Long: `Hydrate rewrites the pages of a built static site so that every custom
element with a backing component file carries a declarative shadow root,
and checks that pages hydrate and lazily activate their components.

A custom element <my-widget> is backed by my-widget.html and my-widget.css
in the components directory. The style is run through the style pipeline
configured by .stylepipeline.yml before it is inlined.

Quick Start:
  hydrate build                   Inject shadow roots into _site
  hydrate watch --serve           Rebuild on change and live reload a preview
  hydrate components              List the backed components
  hydrate verify _site/index.html Check hydration and lazy activation

Documentation: https://github.com/conneroisu/hydrate`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.closeLog != nil {
				a.closeLog()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is .hydrate.yml, can also use HYDRATE_CONFIG_FILE env var)")
	flags.StringVarP(&a.logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "text", "log format (text, json)")
	flags.StringVar(&a.logFile, "log-file", "", "also write JSON logs to this file")
	AddFlagValidation(rootCmd, "log-level", func(level string) error {
		_, err := logging.ParseLevel(level)
		return err
	})
	AddFlagValidation(rootCmd, "log-format", func(format string) error {
		return ValidateFormat(format, []string{"text", "json"})
	})

	rootCmd.AddCommand(
		newBuildCommand(a),
		newWatchCommand(a),
		newServeCommand(a),
		newComponentsCommand(a),
		newVerifyCommand(a),
		newVersionCommand(a),
	)
	return rootCmd
}

// init reads the configuration file and sets up logging. It runs before
// every command.
func (a *app) init(cmd *cobra.Command) error {
	config.Setup(a.v)
	for flagName, configKey := range a.bindings[cmd] {
		if flag := cmd.Flags().Lookup(flagName); flag != nil {
			if err := a.v.BindPFlag(configKey, flag); err != nil {
				return err
			}
		}
	}

	// Priority 1: --config flag, priority 2: HYDRATE_CONFIG_FILE,
	// priority 3: .hydrate.yml in the working directory.
	explicit := true
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else if envConfigFile := os.Getenv("HYDRATE_CONFIG_FILE"); envConfigFile != "" {
		a.v.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(strings.TrimSuffix(config.FileName, ".yml"))
	}
	a.v.SetFs(a.fs)

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	logger, closeLog, err := a.newLogger()
	if err != nil {
		return err
	}
	a.logger, a.closeLog = logger, closeLog

	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug(context.Background(), "Using config file", "path", used)
	}
	return nil
}

func (a *app) newLogger() (logging.Logger, func(), error) {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return nil, nil, err
	}
	stderr := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: a.logFormat,
		Output: os.Stderr,
	})
	if a.logFile == "" {
		return stderr, func() {}, nil
	}

	f, err := a.fs.OpenFile(a.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	file := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: "json",
		Output: f,
	})
	return logging.NewMultiLogger(stderr, file), func() { _ = f.Close() }, nil
}

// loadConfig returns the validated configuration.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(a.v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	for _, w := range config.Check(a.fs, cfg).Warnings {
		a.logger.Warn(context.Background(), nil, w.Message, "field", w.Field, "value", w.Value)
	}
	return cfg, nil
}

// bind maps flags of cmd onto configuration keys when cmd runs.
func (a *app) bind(cmd *cobra.Command, bindings map[string]string) {
	if a.bindings[cmd] == nil {
		a.bindings[cmd] = make(map[string]string, len(bindings))
	}
	for flagName, configKey := range bindings {
		a.bindings[cmd][flagName] = configKey
	}
}

func printf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
