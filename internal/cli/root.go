package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/metrics"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"github.com/dl-alexandre/ecmdocs/pkg/version"
	"github.com/spf13/cobra"
)

var (
	globalFlags    types.GlobalFlags
	logger         logging.Logger
	debugTransport *logging.DebugTransport
)

var rootCmd = &cobra.Command{
	Use:   "ecmdocs",
	Short: "Browse and open documents stored in a content repository",
	Long: `ecmdocs browses content repositories the way a document picker does.
Accounts connect either directly to a content server with a username and
password, or to the cloud service through OAuth.

Listings load in the background; by default commands wait until the
listing has settled. All commands support JSON output for automation.`,
	Version:       version.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}

		logConfig := logging.LogConfig{
			Level:           logging.INFO,
			OutputFile:      globalFlags.LogFile,
			EnableConsole:   !globalFlags.Quiet,
			EnableDebug:     globalFlags.Debug,
			RedactSensitive: true,
			EnableColor:     true,
			EnableTimestamp: true,
		}
		if globalFlags.Verbose || globalFlags.Debug {
			logConfig.Level = logging.DEBUG
		}
		if globalFlags.OutputFormat != types.OutputFormatTable && !globalFlags.Verbose && !globalFlags.Debug {
			logConfig.EnableConsole = false
		}

		var err error
		logger, debugTransport, err = logging.NewDebugLoggerWithTransport(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "Print the version, commit and build information of ecmdocs",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := GetGlobalFlags()
		info := version.Get()
		if flags.OutputFormat == types.OutputFormatTable {
			fmt.Println(info.String())
			return nil
		}
		return NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose).WriteSuccess("version", info)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Account, "account", "a", "", "Account to browse (defaults to the configured default account)")
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "json", "Output format (json, table, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Log every HTTP request")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags() error {
	// Handle --json flag as alias for --output json
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}

	switch globalFlags.OutputFormat {
	case types.OutputFormatJSON, types.OutputFormatTable, types.OutputFormatYAML:
		return nil
	}
	return fmt.Errorf("invalid output format: %s", globalFlags.OutputFormat)
}

// Execute runs the root command and exits with the code of its error
func Execute() error {
	err := rootCmd.Execute()

	if globalFlags.MetricsFile != "" {
		if werr := metrics.WriteTextfile(globalFlags.MetricsFile); werr != nil {
			fmt.Fprintf(os.Stderr, "failed to write metrics: %v\n", werr)
		}
	}
	if logger != nil {
		_ = logger.Close()
	}

	if err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) {
			os.Exit(utils.GetExitCode(cmdErr.cliErr.Code))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(utils.ExitUnknown)
	}
	return nil
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	if logger == nil {
		return logging.NewNoOpLogger()
	}
	return logger
}
