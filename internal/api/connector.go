package api

import (
	"context"
	"net/http"

	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/remote"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"golang.org/x/oauth2"
)

// rootAlias addresses the repository root folder
const rootAlias = "-root-"

// CloudEndpoints locates the OAuth-protected cloud service
type CloudEndpoints struct {
	APIBaseURL string
	AuthURL    string
	TokenURL   string
	Scopes     []string
}

// DefaultCloudEndpoints returns the public cloud endpoints
func DefaultCloudEndpoints() CloudEndpoints {
	return CloudEndpoints{
		APIBaseURL: utils.DefaultCloudAPIBase,
		AuthURL:    utils.DefaultCloudAuthURL,
		TokenURL:   utils.DefaultCloudTokenURL,
		Scopes:     utils.DefaultCloudScopes,
	}
}

// ConnectorOptions configures a Connector
type ConnectorOptions struct {
	// Transport is the base round tripper, for example a logging.DebugTransport
	Transport    http.RoundTripper
	Cloud        CloudEndpoints
	MaxRetries   int
	RetryDelayMs int
	Logger       logging.Logger
}

// Connector opens REST sessions. A session is verified by resolving the
// repository root before it is handed out.
type Connector struct {
	opts ConnectorOptions
}

// NewConnector creates a connector
func NewConnector(opts ConnectorOptions) *Connector {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Cloud.APIBaseURL == "" {
		opts.Cloud = DefaultCloudEndpoints()
	}
	return &Connector{opts: opts}
}

func (c *Connector) transport() http.RoundTripper {
	if c.opts.Transport != nil {
		return c.opts.Transport
	}
	return http.DefaultTransport
}

// ConnectDirect authenticates every request with HTTP basic auth
func (c *Connector) ConnectDirect(ctx context.Context, serverURL, username, password string) (remote.Repository, error) {
	httpClient := &http.Client{
		Transport: &basicAuthTransport{username: username, password: password, base: c.transport()},
	}
	client, err := c.open(ctx, httpClient, serverURL, username)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ConnectOAuth authenticates with the bundle's bearer token, refreshing it
// through the token endpoint when it expires
func (c *Connector) ConnectOAuth(ctx context.Context, bundle *types.OAuthBundle) (remote.Repository, error) {
	config := OAuthConfig(bundle.APIKey, bundle.APISecret, c.opts.Cloud)
	token := &oauth2.Token{
		AccessToken:  bundle.AccessToken,
		RefreshToken: bundle.RefreshToken,
		Expiry:       bundle.Expiry,
		TokenType:    "Bearer",
	}

	// token refreshes must outlive the connect call's context
	refreshCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: c.transport()})
	httpClient := config.Client(refreshCtx, token)
	client, err := c.open(ctx, httpClient, c.opts.Cloud.APIBaseURL, "")
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Connector) open(ctx context.Context, httpClient *http.Client, serverURL, account string) (*Client, error) {
	client := NewClient(httpClient, serverURL, ClientOptions{
		Account:      account,
		MaxRetries:   c.opts.MaxRetries,
		RetryDelayMs: c.opts.RetryDelayMs,
		Logger:       c.opts.Logger,
	})
	root, err := client.GetNode(ctx, rootAlias)
	if err != nil {
		return nil, err
	}
	root.IsRootFolder = true
	client.root = root
	c.opts.Logger.Debug("Repository root resolved",
		logging.F("server", serverURL),
		logging.F("rootId", root.ID),
	)
	return client, nil
}

// OAuthConfig builds the oauth2 configuration for a cloud API key pair
func OAuthConfig(clientID, clientSecret string, endpoints CloudEndpoints) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  endpoints.AuthURL,
			TokenURL: endpoints.TokenURL,
		},
		Scopes: endpoints.Scopes,
	}
}

type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(clone)
}
