package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"streetviewdl/pkg/auth"
	"streetviewdl/pkg/config"
	"streetviewdl/pkg/streetview"
	"streetviewdl/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Street View API credentials",
	Long: `Manage stored Street View API keys and URL signing secrets.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (STREETVIEWDL_API_KEY, STREETVIEWDL_SIGNING_SECRET)

Several keys can be kept side by side as named profiles.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store an API key securely",
	Long: `Store a Street View Static API key, and optionally its URL signing
secret, in the system keychain or the encrypted credentials file.

You will be prompted for:
  - API key
  - URL signing secret (optional, press Enter to skip)

Type 'help' at the key prompt for instructions on creating a key.`,
	Example: `  # Store the default profile
  streetviewdl auth login

  # Store a second key under its own name
  streetviewdl auth login work`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove a stored profile",
	Long: `Remove a stored credential profile.

If no profile is named and more than one is stored, you will be shown a
list to choose from.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	Long:  `List all stored profiles with masked keys.`,
	Run:   runList,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credentials a download would use",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&profileName, "profile", "p", "", "profile to check")
}

func newManager() *auth.Manager {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}
	return manager
}

func runLogin(cmd *cobra.Command, args []string) {
	manager := newManager()

	name := auth.DefaultProfile
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	var key string
	for {
		fmt.Print("🔑 API key (input hidden, 'help' for instructions): ")
		input, err := readPassword()
		if err != nil {
			ui.PrintError("Failed to read API key", err.Error())
			os.Exit(1)
		}
		input = strings.TrimSpace(input)
		if strings.EqualFold(input, "help") {
			auth.ShowKeySetupGuide()
			continue
		}
		if len(input) < 20 {
			ui.PrintWarning("That does not look like an API key", "keys are about 39 characters long")
			continue
		}
		key = input
		break
	}

	fmt.Print("✍️  URL signing secret (press Enter to skip): ")
	secret, err := readPassword()
	if err != nil {
		ui.PrintError("Failed to read signing secret", err.Error())
		os.Exit(1)
	}
	secret = strings.TrimSpace(secret)
	if secret != "" {
		if _, err := streetview.NewSigner(secret); err != nil {
			ui.PrintError("Invalid signing secret", err.Error())
			os.Exit(1)
		}
	}

	profile := &auth.Profile{Name: name, APIKey: key, SigningSecret: secret}
	if err := manager.Store(profile); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	sanitized := auth.SanitizeProfile(profile)
	ui.PrintSuccess("Profile saved: " + name)
	ui.PrintInfo("API key", sanitized.APIKey)
	if secret != "" {
		ui.PrintInfo("Signing secret", sanitized.SigningSecret)
	} else {
		ui.PrintWarning("No signing secret stored, requests will be unsigned")
	}

	if name != auth.DefaultProfile {
		fmt.Println("\nUse this profile with:")
		fmt.Printf("  streetviewdl download --profile %s ...\n", name)
	}
}

func runLogout(cmd *cobra.Command, args []string) {
	manager := newManager()

	if len(args) > 0 {
		deleteProfile(manager, args[0])
		return
	}

	profiles, err := manager.List()
	if err != nil || len(profiles) == 0 {
		ui.PrintError("No stored profiles found")
		return
	}

	reader := bufio.NewReader(os.Stdin)
	if len(profiles) == 1 {
		fmt.Printf("Remove profile '%s'? (y/N): ", profiles[0].Name)
		input, _ := reader.ReadString('\n')
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			deleteProfile(manager, profiles[0].Name)
		}
		return
	}

	fmt.Println("Select profile to remove:")
	for i, p := range profiles {
		fmt.Printf("  %d. %s\n", i+1, p.Name)
	}
	fmt.Printf("  0. Cancel\n\n")
	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)
	switch {
	case choice == 0:
		return
	case choice > 0 && choice <= len(profiles):
		deleteProfile(manager, profiles[choice-1].Name)
	default:
		ui.PrintError("Invalid choice")
		os.Exit(1)
	}
}

func deleteProfile(manager *auth.Manager, name string) {
	if err := manager.Delete(name); err != nil {
		ui.PrintError("Failed to remove profile", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Profile removed: " + name)
}

func runList(cmd *cobra.Command, args []string) {
	manager := newManager()

	profiles, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list profiles", err.Error())
		os.Exit(1)
	}

	if len(profiles) == 0 {
		ui.PrintInfo("No stored profiles", "Use 'streetviewdl auth login' to add one")
		return
	}

	fmt.Println(ui.Magenta("Stored Profiles"))
	fmt.Println()
	for i, p := range profiles {
		sanitized := auth.SanitizeProfile(p)
		fmt.Printf("%d. Profile: %s\n", i+1, sanitized.Name)
		fmt.Printf("   API key: %s\n", sanitized.APIKey)
		if sanitized.SigningSecret != "" {
			fmt.Printf("   Signing secret: %s\n", sanitized.SigningSecret)
		}
		if !sanitized.LastModified.IsZero() {
			fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, commandFlags(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	source := "configuration"
	if cfg.Imagery.APIKey == "" {
		source = "profile " + cfg.Imagery.Profile
		if cfg.Imagery.Profile == "" {
			source = "default profile"
		}
		if err := newManager().Apply(&cfg.Imagery); err != nil {
			if errors.Is(err, auth.ErrCredentialsNotFound) {
				ui.PrintError("No API key found", err.Error())
				auth.ShowQuickGuide()
			} else {
				ui.PrintError("Failed to read stored credentials", err.Error())
			}
			os.Exit(1)
		}
	}

	sanitized := auth.SanitizeProfile(&auth.Profile{
		APIKey:        cfg.Imagery.APIKey,
		SigningSecret: cfg.Imagery.SigningSecret,
	})
	ui.PrintInfo("Source", source)
	ui.PrintInfo("API key", sanitized.APIKey)
	if sanitized.SigningSecret != "" {
		ui.PrintInfo("Signing secret", sanitized.SigningSecret)
	} else {
		ui.PrintInfo("Signing secret", "none, requests are unsigned")
	}
}

// readPassword reads a secret from stdin without echoing
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
