package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igreels/pkg/auth"
	"igreels/pkg/config"
	"igreels/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Instagram credentials",
	Long: `Manage stored Instagram credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation

INSTAGRAM_USERNAME and INSTAGRAM_PASSWORD are read as well but never
written. Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store Instagram credentials securely",
	Long: `Store an Instagram username and password in the system keychain or an
encrypted file. The password is typed into the login form of the browser
session at the start of each harvest.`,
	Example: `  # Interactive login
  igreels auth login

  # Login with username
  igreels auth login myusername`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove stored credentials",
	Long: `Remove stored Instagram credentials.

If no username is provided, you will be shown a list of stored accounts
to choose from. You can also remove all accounts at once.`,
	Example: `  # Interactive logout
  igreels auth logout

  # Logout specific account
  igreels auth logout myusername`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored Instagram accounts with masked passwords.`,
	RunE:  runList,
}

// switchCmd represents the auth switch command
var switchCmd = &cobra.Command{
	Use:   "switch [username]",
	Short: "Make a stored account the configured one",
	Long: `Write the chosen account's username into the configuration file so that
harvests use it without --account. The password stays in the credential
store.

If no username is provided, you will be shown a list of accounts to choose from.`,
	Example: `  # Interactive switch
  igreels auth switch

  # Switch to specific account
  igreels auth switch myusername`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSwitch,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(switchCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	}

	reader := bufio.NewReader(os.Stdin)
	if username == "" {
		fmt.Print("Instagram username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			ui.PrintError("Failed to read username", err.Error())
			return err
		}
		username = strings.TrimSpace(input)
	}
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		ui.PrintError("Username is required")
		return errors.New("username is required")
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		fmt.Printf("\nAccount '%s' already exists. Update password? (y/N): ", username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Password (hidden): ")
	password, err := readPassword(reader)
	if err != nil {
		ui.PrintError("Failed to read password", err.Error())
		return err
	}
	if password == "" {
		ui.PrintError("Password is required")
		return errors.New("password is required")
	}

	account := &auth.Account{
		Username:     username,
		Password:     password,
		LastModified: time.Now(),
	}

	fmt.Println("\nStoring credentials securely...")
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Account saved: %s", username))

	fmt.Println("\nYour credentials are stored in:")
	if auth.IsKeyringAvailable() {
		fmt.Println("  • System keychain (primary)")
	}
	fmt.Println("  • Encrypted file (backup)")

	fmt.Println("\nHarvest the reels a contact shared with you:")
	fmt.Println("  $ igreels harvest <contact_username>")
	fmt.Println("\nUse this account explicitly:")
	fmt.Printf("  $ igreels harvest <contact_username> --account %s\n", username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	if len(args) > 0 {
		return removeAccount(manager, args[0])
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		ui.PrintError("No stored accounts found")
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	if len(accounts) == 1 {
		account := accounts[0]
		fmt.Printf("Remove account '%s'? (y/N): ", account.Username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
		return removeAccount(manager, account.Username)
	}

	fmt.Println("Select account to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Username)
	}
	fmt.Printf("  %d. Remove all accounts\n", len(accounts)+1)
	fmt.Printf("  0. Cancel\n\n")

	fmt.Print("Choice: ")
	choice := readChoice(reader)

	switch {
	case choice == 0:
		return nil
	case choice == len(accounts)+1:
		fmt.Print("Remove ALL accounts? This cannot be undone! (yes/N): ")
		confirm, _ := reader.ReadString('\n')
		if strings.TrimSpace(confirm) != "yes" {
			return nil
		}
		if err := manager.DeleteAll(); err != nil {
			ui.PrintError("Failed to remove all accounts", err.Error())
			return err
		}
		ui.PrintSuccess("All accounts removed")
		return nil
	case choice > 0 && choice <= len(accounts):
		return removeAccount(manager, accounts[choice-1].Username)
	default:
		ui.PrintError("Invalid choice")
		return errors.New("invalid choice")
	}
}

func removeAccount(manager *auth.Manager, username string) error {
	if err := manager.Delete(username); err != nil {
		ui.PrintError("Failed to remove account", err.Error())
		return err
	}
	ui.PrintSuccess("Account removed: " + username)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	accounts, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list accounts", err.Error())
		return err
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'igreels auth login' to add an account")
		return nil
	}

	ui.PrintHighlight("Stored Accounts")
	fmt.Println()

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Username: %s\n", i+1, sanitized.Username)
		fmt.Printf("   Password: %s\n", sanitized.Password)
		if !sanitized.LastModified.IsZero() {
			fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	return nil
}

func runSwitch(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		return err
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		ui.PrintError("No stored accounts found")
		return nil
	}

	var username string
	switch {
	case len(args) > 0:
		username = args[0]
	case len(accounts) == 1:
		username = accounts[0].Username
	default:
		fmt.Println("Select account:")
		for i, account := range accounts {
			fmt.Printf("  %d. %s\n", i+1, account.Username)
		}
		fmt.Println()

		fmt.Print("Choice: ")
		choice := readChoice(bufio.NewReader(os.Stdin))
		if choice < 1 || choice > len(accounts) {
			ui.PrintError("Invalid choice")
			return errors.New("invalid choice")
		}
		username = accounts[choice-1].Username
	}

	if _, err := manager.Retrieve(username); err != nil {
		ui.PrintError("Account not found", username)
		return err
	}

	path, err := switchAccount(configFile, username)
	if err != nil {
		ui.PrintError("Failed to update configuration", err.Error())
		return err
	}
	ui.PrintSuccess("Account selected: " + username)
	ui.PrintInfo("Configuration", path)
	return nil
}

// switchAccount records username in the configuration file at path, or in
// the user config file when path is empty. Only the file's own values are
// rewritten; the password is never persisted.
func switchAccount(path, username string) (string, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, ".config", "igreels", "config.yaml")
	}

	cfg := config.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if err := cfg.LoadFromFile(path); err != nil {
			return "", err
		}
	}
	cfg.Instagram.Username = username
	cfg.Instagram.Password = ""

	if err := cfg.Save(path); err != nil {
		return "", err
	}
	return path, nil
}

func readChoice(reader *bufio.Reader) int {
	input, _ := reader.ReadString('\n')
	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)
	return choice
}

// readPassword reads a password from stdin without echoing
func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
