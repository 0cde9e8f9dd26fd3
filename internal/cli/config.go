package cli

import (
	"fmt"

	"github.com/dl-alexandre/ecmdocs/internal/config"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing ecmdocs configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current configuration settings",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value by its JSON name, for example
'defaultAccount', 'recentDays' or 'oauth.clientId'. Use 'config show' to
see available keys.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	Long:  "Reset all configuration settings to their default values",
	RunE:  runConfigReset,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
}

func saveConfig(cfg *config.Config) error {
	if globalFlags.Config != "" {
		return cfg.SaveTo(globalFlags.Config)
	}
	return cfg.Save()
}

// redacted hides the OAuth client secret
func redacted(cfg *config.Config) config.Config {
	shown := *cfg
	if shown.OAuth.ClientSecret != "" {
		shown.OAuth.ClientSecret = "***"
	}
	return shown
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	cfg, err := loadConfig()
	if err != nil {
		return out.WriteError("config.show", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}

	return out.WriteSuccess("config.show", redacted(cfg))
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	key := args[0]
	value := args[1]

	cfg, err := loadConfig()
	if err != nil {
		return out.WriteError("config.set", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}

	if err := cfg.Set(key, value); err != nil {
		return out.WriteError("config.set", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}

	if err := saveConfig(cfg); err != nil {
		return out.WriteError("config.set", utils.NewCLIError(utils.ErrCodeInternalError,
			fmt.Sprintf("Failed to save configuration: %v", err)).Build())
	}

	out.Log("Configuration updated: %s", key)
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   key,
		"value": value,
	})
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	cfg := config.DefaultConfig()
	if err := saveConfig(cfg); err != nil {
		return out.WriteError("config.reset", utils.NewCLIError(utils.ErrCodeInternalError,
			fmt.Sprintf("Failed to reset configuration: %v", err)).Build())
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", cfg)
}
