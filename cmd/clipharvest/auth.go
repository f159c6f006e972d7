package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"clipharvest/pkg/auth"
	"clipharvest/pkg/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Twitch API credentials",
	Long: `Manage stored Helix credentials (client id and app access token).

Credentials are stored using, in order of preference:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (CLIPHARVEST_CLIENT_ID, CLIPHARVEST_ACCESS_TOKEN)`,
}

var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store Twitch credentials",
	Example: `  # Store the default profile
  clipharvest auth login

  # Store a named profile
  clipharvest auth login research`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove stored credentials",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd)
}

func profileArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return profile
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	name := profileArg(args)
	reader := bufio.NewReader(os.Stdin)

	auth.ShowTokenGuide(os.Stdout)
	fmt.Println()

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Profile '%s' already exists. Replace it? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Client ID: ")
	clientID, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read client id: %w", err)
	}
	clientID = strings.TrimSpace(clientID)

	fmt.Print("Access token (hidden): ")
	token, err := readSecret(reader)
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}

	account := &auth.Account{
		Profile:      name,
		ClientID:     clientID,
		AccessToken:  strings.TrimPrefix(token, "Bearer "),
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		return err
	}

	sanitized := auth.SanitizeAccount(account)
	ui.PrintSuccess("Credentials stored for profile " + name)
	ui.PrintInfo("Client ID", sanitized.ClientID)
	ui.PrintInfo("Access token", sanitized.AccessToken)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	name := profileArg(args)
	if err := manager.Delete(name); err != nil {
		return err
	}
	ui.PrintSuccess("Profile removed: " + name)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored profiles", "use 'clipharvest auth login' to add one")
		return nil
	}

	rows := make([][]string, len(accounts))
	for i, a := range accounts {
		s := auth.SanitizeAccount(a)
		rows[i] = []string{s.Profile, s.ClientID, s.AccessToken, s.LastModified.Format("2006-01-02 15:04:05")}
	}
	fmt.Fprintln(ui.Out, ui.Table([]string{"profile", "client id", "token", "modified"}, rows))
	return nil
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
