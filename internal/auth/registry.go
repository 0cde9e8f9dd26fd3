package auth

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
)

const registryFileName = "accounts.json"

type registryFile struct {
	SchemaVersion string           `json:"schemaVersion"`
	Accounts      []*types.Account `json:"accounts"`
}

func (m *Manager) registryPath() string {
	return filepath.Join(m.configDir, registryFileName)
}

func (m *Manager) loadRegistry() ([]*types.Account, error) {
	data, err := os.ReadFile(m.registryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.Account{}, nil
		}
		return nil, err
	}

	var reg registryFile
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse account registry: %w", err)
	}
	return reg.Accounts, nil
}

func (m *Manager) saveRegistry(accounts []*types.Account) error {
	data, err := json.MarshalIndent(registryFile{
		SchemaVersion: utils.SchemaVersion,
		Accounts:      accounts,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return err
	}

	tmp := m.registryPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, m.registryPath())
}

// ListAccounts returns registered accounts sorted by name, optionally
// filtered to the given kinds
func (m *Manager) ListAccounts(kinds ...types.AccountKind) ([]*types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, err := m.loadRegistry()
	if err != nil {
		return nil, err
	}

	out := make([]*types.Account, 0, len(accounts))
	for _, a := range accounts {
		if len(kinds) == 0 || hasKind(kinds, a.Kind) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Account returns the registered account called name
func (m *Manager) Account(name string) (*types.Account, error) {
	accounts, err := m.ListAccounts()
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeNotFound,
		fmt.Sprintf("Account '%s' is not registered", name)).
		WithContext("account", name).
		WithContext("suggestedAction", "run 'ecmdocs accounts list' to see registered accounts").
		Build())
}

// AddAccount registers account
func (m *Manager) AddAccount(account *types.Account) error {
	if err := validateAccount(account); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, err := m.loadRegistry()
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if a.Name == account.Name {
			return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
				fmt.Sprintf("Account '%s' already exists", account.Name)).Build())
		}
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	if err := m.saveRegistry(append(accounts, account)); err != nil {
		return err
	}
	m.logger.Info("Account registered",
		logging.F("account", account.Name),
		logging.F("kind", account.Kind.String()),
	)
	return nil
}

// RemoveAccount unregisters the account and deletes its stored secret
func (m *Manager) RemoveAccount(name string) error {
	m.mu.Lock()
	accounts, err := m.loadRegistry()
	if err != nil {
		m.mu.Unlock()
		return err
	}

	kept := make([]*types.Account, 0, len(accounts))
	found := false
	for _, a := range accounts {
		if a.Name == name {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		m.mu.Unlock()
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeNotFound,
			fmt.Sprintf("Account '%s' is not registered", name)).Build())
	}
	err = m.saveRegistry(kept)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := m.DeleteSecret(name); err != nil {
		m.logger.Warn("Failed to delete account secret",
			logging.F("account", name),
			logging.F("error", err.Error()),
		)
	}
	m.logger.Info("Account removed", logging.F("account", name))
	return nil
}

func validateAccount(account *types.Account) error {
	invalid := func(msg string) error {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, msg).Build())
	}
	if strings.TrimSpace(account.Name) == "" {
		return invalid("account name is required")
	}
	if strings.ContainsAny(account.Name, `/\`) {
		return invalid("account name must not contain path separators")
	}
	switch account.Kind {
	case types.AccountKindDirect:
		u, err := url.Parse(account.ServerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid(fmt.Sprintf("invalid server URL %q", account.ServerURL))
		}
		if account.Username == "" {
			return invalid("username is required for direct accounts")
		}
	case types.AccountKindCloud:
	default:
		return invalid(fmt.Sprintf("unknown account kind %d", account.Kind))
	}
	return nil
}

func hasKind(kinds []types.AccountKind, k types.AccountKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}
