package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"clipharvest/pkg/config"
	"clipharvest/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage clipharvest configuration files.

Configuration is loaded from, in order of priority:
  - Command line flags
  - Environment variables (CLIPHARVEST_*)
  - .env file
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = ".clipharvest.yaml"
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		ui.PrintSuccess("Configuration file created: " + path)
		fmt.Println("\nNext steps:")
		fmt.Println("1. Store Helix credentials with 'clipharvest auth login'")
		fmt.Println("2. Check the file with 'clipharvest config validate'")
		fmt.Println("3. Start with 'clipharvest run --logins <streamer>'")
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after merging every source. Credentials are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		display := *cfg
		display.Twitch.ClientID = mask(display.Twitch.ClientID)
		display.Twitch.AccessToken = mask(display.Twitch.AccessToken)

		data, err := yaml.Marshal(&display)
		if err != nil {
			return fmt.Errorf("failed to format configuration: %w", err)
		}
		ui.PrintHighlight("Current Configuration")
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, string(data))
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}
		if err := cfg.Layout().Ensure(); err != nil {
			return fmt.Errorf("data root is not writable: %w", err)
		}
		if cfg.Twitch.ClientID == "" || cfg.Twitch.AccessToken == "" {
			ui.PrintWarning("Twitch credentials are not set in the configuration; stored credentials will be used")
		}

		ui.PrintSuccess("Configuration is valid")
		window, err := windowFromConfig(cfg)
		if err != nil {
			return err
		}
		ui.PrintInfo("Data root", cfg.Output.DataRoot)
		ui.PrintInfo("Window", window.Start.Format("2006-01-02")+" → "+window.End.Format("2006-01-02"))
		ui.PrintInfo("Fetch concurrency", fmt.Sprint(cfg.Fetch.Concurrency))
		ui.PrintInfo("Entity/item concurrency", fmt.Sprintf("%d/%d", cfg.Download.EntityConcurrency, cfg.Download.ItemConcurrency))
		ui.PrintInfo("Log level", cfg.Logging.Level)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "..." + s[len(s)-4:]
	default:
		return "***"
	}
}
