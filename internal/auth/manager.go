package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

const (
	serviceName        = "ecmdocs"
	tokenRefreshBuffer = 5 * time.Minute
)

// Manager is the account registry and secret store
type Manager struct {
	configDir      string
	useKeyring     bool
	useEncryption  bool
	storage        StorageBackend
	oauthConfig    *oauth2.Config
	storageWarning string
	logger         logging.Logger
	mu             sync.Mutex
}

// NewManager creates a new auth manager
func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

// ManagerOptions configures the auth manager
type ManagerOptions struct {
	ForceEncryptedFile bool // Force use of encrypted file storage
	ForcePlainFile     bool // Force use of plain file storage (insecure, dev only)
	// Passphrase, when set, derives the file encryption key instead of using a key file
	Passphrase []byte
	Logger     logging.Logger
}

// NewManagerWithOptions creates a new auth manager with specific options
func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	mgr := &Manager{
		configDir: configDir,
		logger:    opts.Logger,
	}
	if mgr.logger == nil {
		mgr.logger = logging.NewNoOpLogger()
	}

	switch {
	case opts.ForcePlainFile:
		mgr.storage = NewPlainFileStorage(configDir)
		mgr.storageWarning = "WARNING: Using unencrypted file storage. Secrets are stored in plain text."
	case len(opts.Passphrase) > 0:
		storage, err := NewPassphraseFileStorage(configDir, opts.Passphrase)
		if err != nil {
			mgr.storage = NewPlainFileStorage(configDir)
			mgr.storageWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
		} else {
			mgr.storage = storage
			mgr.useEncryption = true
		}
	case opts.ForceEncryptedFile || !checkKeyringAvailable():
		storage, err := NewEncryptedFileStorage(configDir)
		if err != nil {
			mgr.storage = NewPlainFileStorage(configDir)
			mgr.storageWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
		} else {
			mgr.storage = storage
			mgr.useEncryption = true
			if !opts.ForceEncryptedFile {
				mgr.storageWarning = "INFO: System keyring not available. Using encrypted file storage."
			}
		}
	default:
		mgr.storage = NewKeyringStorage(serviceName)
		mgr.useKeyring = true
	}

	return mgr
}

// checkKeyringAvailable tests if system keyring is available
func checkKeyringAvailable() bool {
	testKey := "ecmdocs-test"
	if err := keyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, testKey)
	return true
}

// SetOAuthConfig sets the OAuth2 client used for cloud accounts
func (m *Manager) SetOAuthConfig(config *oauth2.Config) {
	m.oauthConfig = config
}

// GetOAuthConfig returns the current OAuth2 configuration
func (m *Manager) GetOAuthConfig() *oauth2.Config {
	return m.oauthConfig
}

// Password returns the stored password of a direct account
func (m *Manager) Password(account *types.Account) (string, error) {
	secret, err := m.loadSecret(account.Name)
	if err != nil {
		return "", err
	}
	if secret.Password == "" {
		return "", authRequired(account.Name)
	}
	return secret.Password, nil
}

// SavePassword stores the password of a direct account
func (m *Manager) SavePassword(account, password string) error {
	return m.saveSecret(&types.StoredSecret{Account: account, Password: password})
}

// LoadCredentials loads the stored OAuth tokens of a cloud account
func (m *Manager) LoadCredentials(account string) (*types.Credentials, error) {
	secret, err := m.loadSecret(account)
	if err != nil {
		return nil, err
	}
	if secret.AccessToken == "" && secret.RefreshToken == "" {
		return nil, authRequired(account)
	}

	creds := &types.Credentials{
		AccessToken:  secret.AccessToken,
		RefreshToken: secret.RefreshToken,
		Scopes:       secret.Scopes,
	}
	if secret.ExpiryDate != "" {
		expiry, err := time.Parse(time.RFC3339, secret.ExpiryDate)
		if err != nil {
			return nil, fmt.Errorf("invalid expiry date: %w", err)
		}
		creds.ExpiryDate = expiry
	}
	return creds, nil
}

// SaveCredentials stores OAuth tokens for a cloud account
func (m *Manager) SaveCredentials(account string, creds *types.Credentials) error {
	secret := &types.StoredSecret{
		Account:      account,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Scopes:       creds.Scopes,
	}
	if !creds.ExpiryDate.IsZero() {
		secret.ExpiryDate = creds.ExpiryDate.Format(time.RFC3339)
	}
	return m.saveSecret(secret)
}

// DeleteSecret removes whatever secret is stored for the account
func (m *Manager) DeleteSecret(account string) error {
	return m.storage.Delete(account)
}

// NeedsRefresh checks if credentials need refreshing
func (m *Manager) NeedsRefresh(creds *types.Credentials) bool {
	return time.Now().Add(tokenRefreshBuffer).After(creds.ExpiryDate)
}

// RefreshCredentials refreshes OAuth2 tokens
func (m *Manager) RefreshCredentials(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
	if m.oauthConfig == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.ExpiryDate,
	}

	newToken, err := m.oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	refreshed := &types.Credentials{
		AccessToken:  newToken.AccessToken,
		RefreshToken: newToken.RefreshToken,
		ExpiryDate:   newToken.Expiry,
		Scopes:       creds.Scopes,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}
	return refreshed, nil
}

// GetValidCredentials returns the account's tokens, refreshing and
// persisting them when they are about to expire
func (m *Manager) GetValidCredentials(ctx context.Context, account string) (*types.Credentials, error) {
	creds, err := m.LoadCredentials(account)
	if err != nil {
		return nil, err
	}

	if m.NeedsRefresh(creds) {
		newCreds, err := m.RefreshCredentials(ctx, creds)
		if err != nil {
			return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
				"Token refresh failed. Run 'ecmdocs accounts add-cloud' to re-authenticate.").
				WithContext("account", account).Build(), err)
		}
		if err := m.SaveCredentials(account, newCreds); err != nil {
			return nil, fmt.Errorf("failed to save refreshed credentials: %w", err)
		}
		m.logger.Info("OAuth tokens refreshed", logging.F("account", account))
		return newCreds, nil
	}

	return creds, nil
}

// RequestOAuthBundle loads (refreshing if needed) the account's tokens on a
// new goroutine and hands the bundle to onResult
func (m *Manager) RequestOAuthBundle(ctx context.Context, account *types.Account, onResult func(*types.OAuthBundle, error)) {
	go func() {
		if m.oauthConfig == nil {
			onResult(nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
				"OAuth client is not configured. Set oauth.clientId in the config.").Build()))
			return
		}
		creds, err := m.GetValidCredentials(ctx, account.Name)
		if err != nil {
			onResult(nil, err)
			return
		}
		onResult(&types.OAuthBundle{
			APIKey:       m.oauthConfig.ClientID,
			APISecret:    m.oauthConfig.ClientSecret,
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			Expiry:       creds.ExpiryDate,
		}, nil)
	}()
}

func (m *Manager) loadSecret(account string) (*types.StoredSecret, error) {
	data, err := m.storage.Load(account)
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			return nil, authRequired(account)
		}
		return nil, err
	}

	var secret types.StoredSecret
	if err := json.Unmarshal(data, &secret); err != nil {
		return nil, fmt.Errorf("failed to parse stored secret: %w", err)
	}
	return &secret, nil
}

func (m *Manager) saveSecret(secret *types.StoredSecret) error {
	data, err := json.Marshal(secret)
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}
	return m.storage.Save(secret.Account, data)
}

func authRequired(account string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
		fmt.Sprintf("No stored credentials for account '%s'", account)).
		WithContext("account", account).Build())
}

// UseKeyring returns whether the manager is using the system keyring
func (m *Manager) UseKeyring() bool {
	return m.useKeyring
}

// ConfigDir returns the configuration directory
func (m *Manager) ConfigDir() string {
	return m.configDir
}

// GetStorageBackend returns the name of the storage backend being used
func (m *Manager) GetStorageBackend() string {
	return m.storage.Name()
}

// GetStorageWarning returns any warning message about the storage backend
func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}
