package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"streetviewdl/pkg/logger"
	"streetviewdl/pkg/ui"
)

var (
	// Version information
	version   = "0.3.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	notifications bool
	quiet         bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "streetviewdl",
	Short: "Download Street View imagery along the roads of an area",
	Long: `streetviewdl samples points along the road network of an OpenStreetMap
extract, finds the nearest Street View panorama for each point and downloads
the panorama imagery together with its metadata.

Features:
  - Clips PBF or GeoJSON road extracts to a polygon or bounding box
  - Fixed or even spacing of sample points along every road
  - Deduplicates panoramas shared by neighbouring points
  - Concurrent lookups and downloads under a shared rate limit
  - Retries with exponential backoff and a resumable lookup cache
  - SQLite metadata database with GeoJSON export
  - API keys stored in the system keychain`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Version = version

		if cmd.Name() != "version" && cmd.Name() != "help" && !quiet {
			ui.PrintLogo()
		}
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./streetviewdl.yaml or $HOME/.config/streetviewdl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", false, "send a desktop notification when a run ends")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print progress as log lines instead of a status line")

	rootCmd.SetVersionTemplate(`streetviewdl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// baseFlags collects the persistent flags that override configuration
func baseFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	switch {
	case logLevel != "":
		flags["log-level"] = logLevel
	case verbose:
		flags["log-level"] = "debug"
	case quiet:
		flags["log-level"] = "error"
	}
	return flags
}
