package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"invoicescraper/pkg/config"
	"invoicescraper/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage Invoice Scraper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (INVOICESCRAPER_*, also read from .env)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	Long: `Write the default configuration, with every option, to a YAML file.

The file is created as '.invoicescraper.yaml' in the current directory
unless a different path is given with --config.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from every source and check it.

Errors fail the command; missing optional settings are reported as warnings.`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".invoicescraper.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		return fmt.Errorf("refusing to overwrite %s", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set portal.list_url to the invoice list of your billing portal")
	fmt.Println("2. Run 'invoicescraper config validate' to check the configuration")
	fmt.Println("3. Start a browser with --remote-debugging-port=9222 and log in")
	fmt.Println("4. Run 'invoicescraper run <amounts...>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		return err
	}
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, globalFlags(cmd))
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		return err
	}

	var warnings []string
	if cfg.Portal.ListURL == "" {
		warnings = append(warnings, "portal.list_url is not set; pass --list-url to run")
	}
	if cfg.Export.OutputDir != "" {
		if err := os.MkdirAll(cfg.Export.OutputDir, 0755); err != nil {
			ui.PrintError("Cannot create output directory", err.Error())
			return err
		}
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Browser: %s (%s)\n", cfg.Browser.Driver, cfg.Browser.ControlURL)
	fmt.Printf("  Output directory: %s\n", cfg.Export.OutputDir)
	fmt.Printf("  Pacing: %s-%s, %d navigations/minute\n", cfg.Timing.MinDelay, cfg.Timing.MaxDelay, cfg.Timing.NavigationsPerMinute)
	fmt.Printf("  Run journal: %t\n", cfg.Checkpoint.Enabled)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
