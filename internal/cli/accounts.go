package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/auth"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Account management",
	Long:  "Register, list and remove content server and cloud accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts",
	RunE:  runAccountsList,
}

var accountsAddDirectCmd = &cobra.Command{
	Use:   "add-direct <name>",
	Short: "Add an account on a content server",
	Long: `Add an account that connects to a content server with a username and
password. The password is read from the terminal (or from stdin when it is
not a terminal) and verified by connecting before the account is saved.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountsAddDirect,
}

var accountsAddCloudCmd = &cobra.Command{
	Use:   "add-cloud <name>",
	Short: "Add a cloud account",
	Long:  "Authorize a cloud account through OAuth in the browser and store its tokens",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsAddCloud,
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an account and its stored secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsRemove,
}

var (
	accountServerURL string
	accountUsername  string
	accountNoBrowser bool
)

// AccountList renders accounts as a table
type AccountList []*types.Account

func (l AccountList) Headers() []string {
	return []string{"Name", "Kind", "Server", "User", "Created"}
}

func (l AccountList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, a := range l {
		rows[i] = []string{
			a.Name,
			a.Kind.String(),
			a.ServerURL,
			a.Username,
			a.CreatedAt.Format(time.RFC3339),
		}
	}
	return rows
}

func (l AccountList) EmptyMessage() string {
	return "No accounts configured"
}

func init() {
	accountsAddDirectCmd.Flags().StringVar(&accountServerURL, "url", "", "Content server URL (required)")
	accountsAddDirectCmd.Flags().StringVar(&accountUsername, "user", "", "Username (required)")
	_ = accountsAddDirectCmd.MarkFlagRequired("url")
	_ = accountsAddDirectCmd.MarkFlagRequired("user")
	accountsAddCloudCmd.Flags().BoolVar(&accountNoBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsAddDirectCmd)
	accountsCmd.AddCommand(accountsAddCloudCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)
	rootCmd.AddCommand(accountsCmd)
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("accounts.list", err)
	}
	defer a.Close()

	accounts, err := a.accounts.ListAccounts()
	if err != nil {
		return out.WriteErr("accounts.list", err)
	}
	return out.WriteSuccess("accounts.list", AccountList(accounts))
}

func runAccountsAddDirect(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("accounts.add-direct", err)
	}
	defer a.Close()

	if warning := a.accounts.GetStorageWarning(); warning != "" {
		out.Log("%s", warning)
	}

	account := &types.Account{
		Name:      args[0],
		Kind:      types.AccountKindDirect,
		ServerURL: strings.TrimRight(accountServerURL, "/"),
		Username:  accountUsername,
	}

	password, err := readPassword(fmt.Sprintf("Password for %s@%s: ", account.Username, account.ServerURL))
	if err != nil {
		return out.WriteError("accounts.add-direct", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("failed to read password: %v", err)).Build())
	}

	ctx, cancel := a.requestContext(cmd)
	defer cancel()
	repo, err := a.connector.ConnectDirect(ctx, account.ServerURL, account.Username, password)
	if err != nil {
		return out.WriteErr("accounts.add-direct", err)
	}

	if err := a.accounts.AddAccount(account); err != nil {
		return out.WriteErr("accounts.add-direct", err)
	}
	if err := a.accounts.SavePassword(account.Name, password); err != nil {
		_ = a.accounts.RemoveAccount(account.Name)
		return out.WriteErr("accounts.add-direct", err)
	}

	out.Log("Account %s added", account.Name)
	return out.WriteSuccess("accounts.add-direct", map[string]interface{}{
		"account":        account,
		"rootId":         repo.RootFolder().ID,
		"storageBackend": a.accounts.GetStorageBackend(),
	})
}

func runAccountsAddCloud(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("accounts.add-cloud", err)
	}
	defer a.Close()

	if a.accounts.GetOAuthConfig() == nil {
		return out.WriteError("accounts.add-cloud", utils.NewCLIError(utils.ErrCodeAuthRequired,
			"OAuth client is not configured. Set oauth.clientId with 'ecmdocs config set'.").Build())
	}
	if warning := a.accounts.GetStorageWarning(); warning != "" {
		out.Log("%s", warning)
	}

	account := &types.Account{Name: args[0], Kind: types.AccountKindCloud}
	if _, err := a.accounts.Account(account.Name); err == nil {
		return out.WriteError("accounts.add-cloud", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Account '%s' already exists", account.Name)).Build())
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()
	creds, err := a.accounts.Authenticate(ctx, account.Name, openBrowser, auth.OAuthAuthOptions{
		NoBrowser: accountNoBrowser,
		Out:       os.Stderr,
		In:        os.Stdin,
	})
	if err != nil {
		return out.WriteError("accounts.add-cloud", utils.NewCLIError(utils.ErrCodeAuthRequired, err.Error()).Build())
	}
	if err := a.accounts.AddAccount(account); err != nil {
		_ = a.accounts.DeleteSecret(account.Name)
		return out.WriteErr("accounts.add-cloud", err)
	}

	out.Log("Successfully authenticated!")
	return out.WriteSuccess("accounts.add-cloud", map[string]interface{}{
		"account":        account,
		"scopes":         creds.Scopes,
		"expiry":         creds.ExpiryDate.Format(time.RFC3339),
		"storageBackend": a.accounts.GetStorageBackend(),
	})
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("accounts.remove", err)
	}
	defer a.Close()

	name := args[0]
	if err := a.accounts.RemoveAccount(name); err != nil {
		return out.WriteErr("accounts.remove", err)
	}
	a.provider.ForgetAccount(name)

	removed, err := a.store.Clear(cmd.Context(), name)
	if err != nil {
		out.AddWarning("CACHE_NOT_CLEARED", fmt.Sprintf("Local cache was not cleared: %v", err), "warning")
	}
	return out.WriteSuccess("accounts.remove", map[string]interface{}{
		"account":      name,
		"removed":      true,
		"cacheEntries": removed,
	})
}

// readPassword reads without echo from a terminal, or one line from stdin
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}
