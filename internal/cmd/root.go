// Package cmd implements the gobulk command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/gobulk/internal/config"
	"github.com/3leaps/gobulk/internal/observability"
)

// AppIdentity names the binary and where it looks for configuration.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

var (
	cfgFile string
	verbose bool

	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{"dev", "unknown", "unknown"}

	appIdentity *AppIdentity
)

var rootCmd = &cobra.Command{
	Use:   "gobulk",
	Short: "Extract and reconcile store resources through bulk exports",
	Long: `gobulk submits asynchronous bulk export jobs for store resources
(products, orders, customers), waits for them to finish, streams the JSONL
result, reassembles parent/child records, and emits one canonical,
embedding-ready record per entity.

Records are written as JSONL to stdout unless an output destination is given.
Logs go to stderr.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: console or json")

	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// SetVersionInfo records build metadata reported by the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity set during config initialization.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

// setDefaults registers built-in defaults on the global viper instance.
func setDefaults() {
	config.SetDefaults(viper.GetViper())
}

func initConfig() error {
	appIdentity = &AppIdentity{
		BinaryName: "gobulk",
		EnvPrefix:  config.EnvPrefix,
		ConfigName: "gobulk",
	}

	setDefaults()
	if err := config.BindEnv(viper.GetViper()); err != nil {
		return err
	}

	path := cfgFile
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "_CONFIG")
	}
	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	observability.ConfigureCLILogger(appIdentity.BinaryName,
		viper.GetString("logging.level"), viper.GetString("logging.format"), verbose)
	if path != "" {
		observability.CLILogger.Debug("Loaded config file", zap.String("path", path))
	}
	return nil
}

// runtimeConfig decodes the global viper state.
func runtimeConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
	if strings.Contains(err.Error(), "unknown command") || strings.Contains(err.Error(), "flag") {
		_, _ = fmt.Fprintln(os.Stderr, "Run 'gobulk --help' for usage.")
	}
	return ExitCode(err)
}

// exitCodeError carries the process exit code for a failed command.
type exitCodeError struct {
	code    int
	message string
	err     error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.err)
}

func (e *exitCodeError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError[C ~int](code C, message string, err error) error {
	return &exitCodeError{code: int(code), message: message, err: err}
}

// ExitCode returns the code carried by err, 1 for other errors and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return 1
}
