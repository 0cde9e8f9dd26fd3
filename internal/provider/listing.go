package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/ids"
	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/pending"
	"github.com/dl-alexandre/ecmdocs/internal/remote"
	"github.com/dl-alexandre/ecmdocs/internal/session"
	"github.com/dl-alexandre/ecmdocs/internal/tasks"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Routine names, used for task metrics and logs
const (
	routineAccountRoot = "account-root"
	routineSites       = "sites"
	routineFavorites   = "favorites"
	routineSite        = "site-library"
	routineFolder      = "folder"
	routineSearch      = "search"
	routineRecent      = "recent"
)

// ListResult is one read of a listing. Loading means a fetch is in flight
// and the caller should read again after a change on URI.
type ListResult struct {
	URI          string      `json:"uri" yaml:"uri"`
	Rows         []types.Row `json:"rows" yaml:"rows"`
	Loading      bool        `json:"loading" yaml:"loading"`
	Err          error       `json:"-" yaml:"-"`
	ErrorMessage string      `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
}

func (r ListResult) AsTableRenderer() types.TableRenderer {
	return types.RowList(r.Rows)
}

// routine fetches one scope of account into the cache
type routine func(ctx context.Context, account string, repo remote.Repository, scope string) error

// listing describes how to fill and read one scope
type listing struct {
	account    string
	resourceID string
	uri        string
	name       string
	fetch      routine
	rows       func(account, scope string) ([]types.Row, bool)
}

// ListChildren lists the children of resourceID: an account root, a menu
// entry, a site or a folder
func (p *Provider) ListChildren(resourceID string) ListResult {
	uri := p.ChildrenURI(resourceID)
	key := ids.Decode(resourceID)

	var (
		account string
		err     error
	)
	if key.Kind == ids.KindSelector && key.Prefix == ids.PrefixAccount {
		account, err = p.accountFor(resourceID)
	} else {
		account, err = p.selectedAccount()
	}
	if err != nil {
		return failed(uri, err)
	}

	l := listing{account: account, resourceID: resourceID, uri: uri}
	switch {
	case key.Kind == ids.KindSelector && key.Prefix == ids.PrefixAccount:
		l.name = routineAccountRoot
		l.fetch = p.fetchAccountRoot
		l.rows = p.accountRootRows
	case key.Kind == ids.KindMenu && key.Prefix == ids.MenuSites:
		l.name = routineSites
		l.fetch = p.fetchSites
		l.rows = p.siteRows
	case key.Kind == ids.KindMenu && key.Prefix == ids.MenuFavorites:
		l.name = routineFavorites
		l.fetch = p.fetchFavorites
		l.rows = p.nodeRows
	case key.Kind == ids.KindSelector && key.Prefix == ids.PrefixSite:
		l.name = routineSite
		l.fetch = p.fetchSiteLibrary(key.Value)
		l.rows = p.nodeRows
	case key.Kind == ids.KindMenu, key.Kind == ids.KindSelector:
		return failed(uri, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("%s cannot be listed", resourceID)).Build()))
	default:
		l.name = routineFolder
		l.fetch = p.fetchFolder(ids.NodeID(key.Value))
		l.rows = p.nodeRows
	}
	return p.list(l)
}

// Search runs a keyword search in the account of rootID
func (p *Provider) Search(rootID, query string) ListResult {
	uri := p.SearchURI(rootID, query)
	account, err := p.accountFor(rootID)
	if err != nil {
		return failed(uri, err)
	}
	if strings.TrimSpace(query) == "" {
		return failed(uri, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "empty search query").Build()))
	}
	return p.list(listing{
		account:    account,
		resourceID: rootID,
		uri:        uri,
		name:       routineSearch,
		fetch:      p.fetchQuery(keywordQuery(query), remote.LanguageKeyword),
		rows:       p.nodeRows,
	})
}

// RecentDocuments lists documents modified within the recent window
func (p *Provider) RecentDocuments(rootID string) ListResult {
	uri := p.RecentURI(rootID)
	account, err := p.accountFor(rootID)
	if err != nil {
		return failed(uri, err)
	}
	since := p.opts.Now().Add(-p.opts.RecentWindow)
	return p.list(listing{
		account:    account,
		resourceID: rootID,
		uri:        uri,
		name:       routineRecent,
		fetch:      p.fetchQuery(recentQuery(since), remote.LanguageCMIS),
		rows:       p.nodeRows,
	})
}

// list answers from the tracker and the cache, starting a fetch when the
// scope has never been requested or its last result was already read
func (p *Provider) list(l listing) ListResult {
	scope := scopeKey(l.account, l.uri)
	result := ListResult{URI: l.uri}

	switch p.tracker.Status(scope) {
	case pending.Pending:
		result.Rows, _ = l.rows(l.account, scope)
		result.Loading = true
		return result

	case pending.Settled:
		outcome, ok := p.tracker.Drain(scope)
		if !ok {
			// another reader drained it first
			result.Rows, _ = l.rows(l.account, scope)
			return result
		}
		if outcome.Err != nil {
			result.Err = outcome.Err
			result.ErrorMessage = utils.UserMessage(outcome.Err)
			return result
		}
		result.Rows, _ = l.rows(l.account, scope)
		return result
	}

	result.Rows, _ = l.rows(l.account, scope)
	result.Loading = true
	p.start(scope, l)
	return result
}

// start runs l.fetch in the background once a session exists. A cloud
// account still waiting for its OAuth bundle parks the fetch; the bundle's
// arrival resumes it and a failed credential request settles it.
func (p *Provider) start(scope string, l listing) {
	task := tasks.Task{URI: l.uri, Key: scope, Routine: l.name}

	var fetch tasks.FetchFunc
	fetch = func(ctx context.Context) error {
		repo, err := p.sessions.Connect(ctx, l.account, session.PendingListing{
			URI:        l.uri,
			ResourceID: l.resourceID,
			Sink: func(err error) {
				if err != nil {
					p.runner.Settle(task, err)
					return
				}
				p.runner.Resume(task, fetch)
			},
		})
		if errors.Is(err, session.ErrAwaitingCredential) {
			return tasks.ErrDeferred
		}
		if err != nil {
			return sessionError(l.account, err)
		}

		if err := l.fetch(ctx, l.account, repo, scope); err != nil {
			p.checkExpired(l.account, err)
			return err
		}
		p.recordCacheSize()
		return nil
	}

	if p.runner.Start(task, fetch) {
		p.logger.Debug("Listing requested",
			logging.F("account", l.account),
			logging.F("resourceId", l.resourceID),
			logging.F("requestUri", l.uri),
		)
	}
}

// checkExpired drops a session the server no longer accepts
func (p *Provider) checkExpired(account string, err error) {
	if utils.IsCode(err, utils.ErrCodeAuthExpired) {
		p.logger.Warn("Session expired", logging.F("account", account))
		p.sessions.Invalidate(account)
	}
}

// sessionError reports a failed credential lookup as a session the user
// has to refresh, and passes remote failures through
func sessionError(account string, err error) error {
	if utils.IsCode(err, utils.ErrCodeAuthRequired) || utils.IsCode(err, utils.ErrCodeAuthExpired) {
		return utils.WrapAppError(utils.AsCLIError(utils.SessionUnavailable(account)), err)
	}
	return err
}

func failed(uri string, err error) ListResult {
	return ListResult{URI: uri, Err: err, ErrorMessage: utils.UserMessage(err)}
}

func (p *Provider) fetchAccountRoot(ctx context.Context, account string, repo remote.Repository, scope string) error {
	root := repo.RootFolder()
	if root == nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeRemoteService, "repository root is unknown").Build())
	}
	children, err := repo.ListChildren(ctx, root.ID)
	if err != nil {
		return err
	}
	if children, err = p.withPermissions(ctx, repo, children); err != nil {
		return err
	}
	p.cache.PutNode(account, root)
	p.cache.PutPath(account, rootPathKey, root)
	p.cache.SetListing(account, scope, root.ID, children)
	return nil
}

func (p *Provider) fetchSites(ctx context.Context, account string, repo remote.Repository, scope string) error {
	sites, err := repo.GetSites(ctx)
	if err != nil {
		return err
	}
	p.cache.SetSiteListing(account, scope, sites)
	return nil
}

func (p *Provider) fetchFavorites(ctx context.Context, account string, repo remote.Repository, scope string) error {
	folders, err := repo.GetFavoriteFolders(ctx)
	if err != nil {
		return err
	}
	if folders, err = p.withPermissions(ctx, repo, folders); err != nil {
		return err
	}
	p.cache.SetListing(account, scope, "", folders)
	return nil
}

func (p *Provider) fetchSiteLibrary(siteID string) routine {
	return func(ctx context.Context, account string, repo remote.Repository, scope string) error {
		if !p.cache.ContainsSite(account, siteID) {
			site, err := repo.GetSite(ctx, siteID)
			if err != nil {
				return err
			}
			p.cache.PutSite(account, site)
		}

		library, ok := p.cache.PathNode(account, libraryPathKey(siteID))
		if !ok {
			var err error
			if library, err = repo.GetDocumentLibrary(ctx, siteID); err != nil {
				return err
			}
			p.cache.PutNode(account, library)
			p.cache.PutPath(account, libraryPathKey(siteID), library)
		}

		children, err := repo.ListChildren(ctx, library.ID)
		if err != nil {
			return err
		}
		if children, err = p.withPermissions(ctx, repo, children); err != nil {
			return err
		}
		p.cache.SetListing(account, scope, library.ID, children)
		return nil
	}
}

func (p *Provider) fetchFolder(folderID string) routine {
	return func(ctx context.Context, account string, repo remote.Repository, scope string) error {
		children, err := repo.ListChildren(ctx, folderID)
		if err != nil {
			return err
		}
		if children, err = p.withPermissions(ctx, repo, children); err != nil {
			return err
		}
		p.cache.SetListing(account, scope, folderID, children)
		return nil
	}
}

func (p *Provider) fetchQuery(query string, lang remote.Language) routine {
	return func(ctx context.Context, account string, repo remote.Repository, scope string) error {
		nodes, err := repo.Search(ctx, query, lang)
		if err != nil {
			return err
		}
		if nodes, err = p.withPermissions(ctx, repo, nodes); err != nil {
			return err
		}
		p.cache.SetListing(account, scope, "", nodes)
		return nil
	}
}

// withPermissions looks up, in parallel, the permissions the listing call
// did not return
func (p *Provider) withPermissions(ctx context.Context, repo remote.Repository, nodes []*types.Node) ([]*types.Node, error) {
	out := make([]*types.Node, len(nodes))
	copy(out, nodes)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.PermissionWorkers)
	for i, n := range out {
		if n.Permissions != nil {
			continue
		}
		i, n := i, n
		g.Go(func() error {
			perms, err := repo.GetPermissions(gctx, n.ID)
			if err != nil {
				return err
			}
			out[i] = n.WithPermissions(perms)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// keywordQuery matches query against content and names
func keywordQuery(query string) string {
	q := strings.ReplaceAll(strings.TrimSpace(query), `"`, `\"`)
	return fmt.Sprintf(`TEXT:"%s" OR cm:name:"%s"`, q, q)
}

// recentQuery selects documents modified after since, newest first
func recentQuery(since time.Time) string {
	return fmt.Sprintf("SELECT * FROM cmis:document WHERE cmis:lastModificationDate > TIMESTAMP '%s' ORDER BY cmis:lastModificationDate DESC",
		since.UTC().Format(cmisTimestamp))
}

const cmisTimestamp = "2006-01-02T15:04:05.000Z"
