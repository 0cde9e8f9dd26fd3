package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dl-alexandre/ecmdocs/internal/api"
	"github.com/dl-alexandre/ecmdocs/internal/auth"
	"github.com/dl-alexandre/ecmdocs/internal/config"
	"github.com/dl-alexandre/ecmdocs/internal/localstore"
	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/provider"
	"github.com/dl-alexandre/ecmdocs/internal/session"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
)

// passphraseEnv, when set, encrypts the credential file with a key derived
// from its value
const passphraseEnv = config.EnvPrefix + "CREDENTIAL_PASSPHRASE"

// app wires the browsing engine for one command invocation
type app struct {
	cfg       *config.Config
	configDir string
	accounts  *auth.Manager
	connector *api.Connector
	sessions  *session.Orchestrator
	store     *localstore.Store
	provider  *provider.Provider
	logger    logging.Logger
}

func loadConfig() (*config.Config, error) {
	if globalFlags.Config != "" {
		return config.LoadFrom(globalFlags.Config)
	}
	return config.Load()
}

func getConfigDir() string {
	if globalFlags.Config != "" {
		return filepath.Dir(globalFlags.Config)
	}
	dir, err := config.GetConfigDir()
	if err == nil {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ecmdocs")
}

// newAccountManager builds the credential store with the configured OAuth client
func newAccountManager(cfg *config.Config, configDir string, logger logging.Logger) *auth.Manager {
	opts := auth.ManagerOptions{Logger: logger}
	if passphrase := os.Getenv(passphraseEnv); passphrase != "" {
		opts.Passphrase = []byte(passphrase)
	}
	mgr := auth.NewManagerWithOptions(configDir, opts)
	if id, secret, ok := auth.CloudClient(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret); ok {
		mgr.SetOAuthConfig(api.OAuthConfig(id, secret, cloudEndpoints(cfg)))
	}
	return mgr
}

func cloudEndpoints(cfg *config.Config) api.CloudEndpoints {
	endpoints := api.DefaultCloudEndpoints()
	if cfg.OAuth.APIBaseURL != "" {
		endpoints.APIBaseURL = cfg.OAuth.APIBaseURL
	}
	if cfg.OAuth.AuthURL != "" {
		endpoints.AuthURL = cfg.OAuth.AuthURL
	}
	if cfg.OAuth.TokenURL != "" {
		endpoints.TokenURL = cfg.OAuth.TokenURL
	}
	if len(cfg.OAuth.Scopes) > 0 {
		endpoints.Scopes = cfg.OAuth.Scopes
	}
	return endpoints
}

func newConnector(cfg *config.Config, logger logging.Logger) *api.Connector {
	opts := api.ConnectorOptions{
		Cloud:        cloudEndpoints(cfg),
		MaxRetries:   cfg.MaxRetries,
		RetryDelayMs: cfg.RetryBaseDelay,
		Logger:       logger,
	}
	if debugTransport != nil {
		opts.Transport = debugTransport
	}
	return api.NewConnector(opts)
}

// newApp loads the configuration and builds the provider, selecting the
// --account account or the configured default
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build())
	}
	logger := GetLogger()
	configDir := getConfigDir()

	accounts := newAccountManager(cfg, configDir, logger)
	connector := newConnector(cfg, logger)
	sessions := session.NewOrchestrator(accounts, connector, logger)

	store, err := localstore.Open(cfg.ResolveCacheDir(configDir), logger)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInternalError,
			fmt.Sprintf("failed to open local cache: %v", err)).Build())
	}

	p := provider.New(accounts, sessions, store, provider.Options{
		CloudHost:    cfg.OAuth.APIBaseURL,
		RecentWindow: cfg.GetRecentWindow(),
		TaskTimeout:  cfg.GetRequestTimeout(),
		Logger:       logger,
	})

	account := globalFlags.Account
	if account == "" {
		account = cfg.DefaultAccount
	}
	if account != "" {
		p.SelectAccount(account)
	}

	return &app{
		cfg:       cfg,
		configDir: configDir,
		accounts:  accounts,
		connector: connector,
		sessions:  sessions,
		store:     store,
		provider:  p,
		logger:    logger,
	}, nil
}

// Close waits for background fetches and closes the download index
func (a *app) Close() {
	a.provider.Wait()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close local cache", logging.F("error", err.Error()))
	}
}
