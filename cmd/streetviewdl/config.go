package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"streetviewdl/pkg/config"
	"streetviewdl/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage streetviewdl configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (STREETVIEWDL_*)
  - .env files in the working directory or ~/.streetviewdl.env
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default values",
	Long: `Create a configuration file holding every option at its default value.

The file is created in the current directory as 'streetviewdl.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging all sources. The API key and
signing secret are masked.`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from all sources and report every invalid value.

This command checks:
  - YAML syntax
  - Value ranges
  - That an area of interest and an extract are set
  - That the extract and AOI files exist`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = "streetviewdl.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store an API key with 'streetviewdl auth login'")
	fmt.Println("2. Set extract.path and extract.aoi or extract.bbox in the file")
	fmt.Println("3. Run 'streetviewdl config validate' to check the configuration")
	fmt.Println("4. Start downloading with 'streetviewdl download'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, baseFlags())
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	display := *cfg
	display.Imagery.APIKey = mask(display.Imagery.APIKey)
	display.Imagery.SigningSecret = mask(display.Imagery.SigningSecret)

	data, err := yaml.Marshal(&display)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	fmt.Println(ui.Magenta("Current Configuration"))
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (" + config.EnvPrefix + "*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in default locations)")
	}
	fmt.Println("4. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := config.Load(configFile, baseFlags())
	if err != nil {
		ui.PrintError("Configuration is invalid", err.Error())
		os.Exit(1)
	}

	var problems []string
	if cfg.Extract.Path == "" {
		problems = append(problems, "extract.path is not set")
	} else if _, err := os.Stat(cfg.Extract.Path); err != nil {
		problems = append(problems, fmt.Sprintf("extract %s is not readable", cfg.Extract.Path))
	}
	switch {
	case cfg.Extract.AOI != "":
		if _, err := os.Stat(cfg.Extract.AOI); err != nil {
			problems = append(problems, fmt.Sprintf("area of interest %s is not readable", cfg.Extract.AOI))
		}
	case cfg.Extract.BBox == "":
		problems = append(problems, "neither extract.aoi nor extract.bbox is set")
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration is incomplete")
		for _, p := range problems {
			fmt.Println("  - " + p)
		}
		os.Exit(1)
	}

	if err := cfg.ValidateCredentials(); err != nil {
		ui.PrintWarning("No API key in the configuration", "it will be read from the credential store")
	}
	ui.PrintSuccess("Configuration is valid")
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
