// Package provider is the picker-facing surface: it turns identifiers into
// listings, documents and thumbnails, answering every listing call from the
// cache at once and loading missing data in the background.
package provider

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/cache"
	"github.com/dl-alexandre/ecmdocs/internal/ids"
	"github.com/dl-alexandre/ecmdocs/internal/localstore"
	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/metrics"
	"github.com/dl-alexandre/ecmdocs/internal/notify"
	"github.com/dl-alexandre/ecmdocs/internal/pending"
	"github.com/dl-alexandre/ecmdocs/internal/session"
	"github.com/dl-alexandre/ecmdocs/internal/tasks"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
)

// DefaultAuthority is the authority of every request URI
const DefaultAuthority = "ecmdocs"

// Accounts lists the configured accounts
type Accounts interface {
	ListAccounts(kinds ...types.AccountKind) ([]*types.Account, error)
	Account(name string) (*types.Account, error)
}

// Options configures a Provider
type Options struct {
	Authority string
	// CloudHost names the local cache folder of cloud accounts
	CloudHost string
	// RecentWindow is how far back the recent documents query looks
	RecentWindow time.Duration
	// TaskTimeout bounds one background fetch
	TaskTimeout time.Duration
	// PermissionWorkers bounds parallel permission lookups in one fetch
	PermissionWorkers int
	Logger            logging.Logger
	Now               func() time.Time
}

// Provider serves listings, documents and thumbnails for the configured accounts
type Provider struct {
	accounts Accounts
	sessions *session.Orchestrator
	store    *localstore.Store

	cache    *cache.Cache
	tracker  *pending.Tracker
	notifier *notify.Broadcaster
	runner   *tasks.Runner

	opts   Options
	logger logging.Logger

	mu       sync.Mutex
	selected string
}

// New creates a provider. store may be nil, in which case content and
// thumbnails cannot be opened.
func New(accounts Accounts, sessions *session.Orchestrator, store *localstore.Store, opts Options) *Provider {
	if opts.Authority == "" {
		opts.Authority = DefaultAuthority
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = time.Duration(utils.DefaultRecentDays) * 24 * time.Hour
	}
	if opts.PermissionWorkers <= 0 {
		opts.PermissionWorkers = 4
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	tracker := pending.NewTracker()
	notifier := notify.NewBroadcaster()
	return &Provider{
		accounts: accounts,
		sessions: sessions,
		store:    store,
		cache:    cache.New(),
		tracker:  tracker,
		notifier: notifier,
		runner: tasks.NewRunner(tracker, notifier, tasks.Options{
			Timeout: opts.TaskTimeout,
			Logger:  opts.Logger,
		}),
		opts:   opts,
		logger: opts.Logger,
	}
}

// SelectAccount makes name the account that bare node, site and menu
// identifiers resolve against
func (p *Provider) SelectAccount(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selected != name {
		p.logger.Debug("Account selected", logging.F("account", name))
	}
	p.selected = name
}

// Selected returns the selected account name
func (p *Provider) Selected() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

func (p *Provider) selectedAccount() (string, error) {
	name := p.Selected()
	if name == "" {
		return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"no account selected").
			WithContext("suggestedAction", "list an account root first or pass --account").
			Build())
	}
	return name, nil
}

// accountFor resolves a root or account identifier to an account name,
// falling back to the selected account
func (p *Provider) accountFor(rootID string) (string, error) {
	key := ids.Decode(rootID)
	if key.Kind == ids.KindSelector && key.Prefix == ids.PrefixAccount && key.Value != "" {
		p.SelectAccount(key.Value)
		return key.Value, nil
	}
	return p.selectedAccount()
}

// ListRoots returns one root per configured account
func (p *Provider) ListRoots() ([]types.Root, error) {
	accounts, err := p.accounts.ListAccounts()
	if err != nil {
		return nil, err
	}
	roots := make([]types.Root, 0, len(accounts))
	for _, a := range accounts {
		id := ids.Account(a.Name)
		title := "Content Server"
		if a.Kind == types.AccountKindCloud {
			title = "Cloud"
		}
		roots = append(roots, types.Root{
			RootID:     id,
			DocumentID: id,
			Title:      title,
			Summary:    a.Name,
			Flags:      types.RootSupportsCreate | types.RootSupportsSearch | types.RootSupportsRecents,
		})
	}
	return roots, nil
}

// Subscribe calls onChange whenever the listing at uri changes
func (p *Provider) Subscribe(uri string, onChange func(uri string)) func() {
	return p.notifier.Subscribe(uri, onChange)
}

// SubscribeChan delivers change signals for uri on a channel
func (p *Provider) SubscribeChan(uri string) (<-chan string, func()) {
	return p.notifier.SubscribeChan(uri)
}

// ChildrenURI is the request URI of ListChildren(resourceID)
func (p *Provider) ChildrenURI(resourceID string) string {
	return ids.ChildrenURI(p.opts.Authority, resourceID)
}

// SearchURI is the request URI of Search(rootID, query)
func (p *Provider) SearchURI(rootID, query string) string {
	return ids.SearchURI(p.opts.Authority, rootID, query)
}

// RecentURI is the request URI of RecentDocuments(rootID)
func (p *Provider) RecentURI(rootID string) string {
	return ids.RecentURI(p.opts.Authority, rootID)
}

// ForgetAccount drops the account's session and every cached entity
func (p *Provider) ForgetAccount(name string) {
	p.sessions.Invalidate(name)
	p.cache.Reset()
	p.mu.Lock()
	if p.selected == name {
		p.selected = ""
	}
	p.mu.Unlock()
	p.recordCacheSize()
}

// CacheStats reports the entity cache size
func (p *Provider) CacheStats() cache.Stats {
	return p.cache.Stats()
}

// Wait blocks until every background fetch has returned
func (p *Provider) Wait() {
	p.runner.Wait()
}

func (p *Provider) recordCacheSize() {
	s := p.cache.Stats()
	metrics.SetCacheEntries(s.Nodes, s.Paths, s.Sites, s.Listings)
}

// scopeKey qualifies a request URI with its account: the same menu or
// node URI under two accounts names two scopes
func scopeKey(account, uri string) string {
	return url.PathEscape(account) + "|" + uri
}

func uriOfScope(scope string) string {
	if i := strings.IndexByte(scope, '|'); i >= 0 {
		return scope[i+1:]
	}
	return scope
}

// rootPathKey names the repository root in an account's path index
const rootPathKey = "root"

func libraryPathKey(siteID string) string {
	return "library:" + siteID
}
