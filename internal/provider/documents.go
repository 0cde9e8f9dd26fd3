package provider

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dl-alexandre/ecmdocs/internal/ids"
	"github.com/dl-alexandre/ecmdocs/internal/localstore"
	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/remote"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
)

// Open modes accepted by OpenContent
const (
	ModeRead           = "r"
	ModeWrite          = "w"
	ModeWriteTruncate  = "wt"
	ModeWriteAppend    = "wa"
	ModeReadWrite      = "rw"
	ModeReadWriteTrunc = "rwt"
)

var openFlags = map[string]int{
	ModeRead:           os.O_RDONLY,
	ModeWrite:          os.O_RDWR,
	ModeWriteTruncate:  os.O_RDWR | os.O_TRUNC,
	ModeWriteAppend:    os.O_RDWR | os.O_APPEND,
	ModeReadWrite:      os.O_RDWR,
	ModeReadWriteTrunc: os.O_RDWR | os.O_TRUNC,
}

// GetNode describes resourceID from the selected account's cache without
// any remote call. Unknown identifiers come back as a directory row named
// after themselves.
func (p *Provider) GetNode(resourceID string) types.Row {
	key := ids.Decode(resourceID)
	account := p.Selected()
	switch key.Kind {
	case ids.KindMenu:
		if _, ok := menuTitles[key.Prefix]; ok {
			return menuRow(key.Prefix)
		}
	case ids.KindSelector:
		switch key.Prefix {
		case ids.PrefixAccount:
			return types.Row{
				DocumentID:  resourceID,
				DisplayName: key.Value,
				MimeType:    types.MimeTypeDirectory,
				Flags:       types.FlagDirSupportsCreate,
			}
		case ids.PrefixSite:
			if site, ok := p.cache.Site(account, key.Value); ok {
				return siteRow(site)
			}
		}
	default:
		if n, ok := p.cache.Node(account, ids.NodeID(key.Value)); ok {
			return nodeRow(n)
		}
	}
	return types.Row{
		DocumentID:  resourceID,
		DisplayName: resourceID,
		MimeType:    types.MimeTypeDirectory,
	}
}

// FetchNode loads one node from the repository, waiting for the session,
// and caches it
func (p *Provider) FetchNode(ctx context.Context, resourceID string) (types.Row, error) {
	account, repo, err := p.repository(ctx)
	if err != nil {
		return types.Row{}, err
	}
	node, err := p.remoteNode(ctx, account, repo, resourceID)
	if err != nil {
		return types.Row{}, err
	}
	return nodeRow(node), nil
}

// OpenContent materializes a document in the local cache and opens it.
// Write modes open the cached file read-write.
func (p *Provider) OpenContent(ctx context.Context, resourceID, mode string) (*os.File, error) {
	flags, ok := openFlags[mode]
	if !ok {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("unsupported open mode %q", mode)).Build())
	}
	if ids.Decode(resourceID).Kind != ids.KindNode {
		return nil, utils.NotFound(resourceID, "not a document")
	}

	path, err := p.download(ctx, resourceID, localstore.KindContent)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, flags, 0)
}

// OpenThumbnail materializes a document's thumbnail rendition and opens it
// read-only
func (p *Provider) OpenThumbnail(ctx context.Context, resourceID string) (*os.File, error) {
	if ids.Decode(resourceID).Kind != ids.KindNode {
		return nil, utils.NotFound(resourceID, "no thumbnail")
	}
	path, err := p.download(ctx, resourceID, localstore.KindThumbnail)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (p *Provider) download(ctx context.Context, resourceID string, kind localstore.Kind) (string, error) {
	if p.store == nil {
		return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInternalError, "local cache is not configured").Build())
	}
	name, repo, err := p.repository(ctx)
	if err != nil {
		return "", err
	}
	account, err := p.accounts.Account(name)
	if err != nil {
		return "", err
	}

	id := ids.NodeID(resourceID)
	node, ok := p.cache.Node(name, id)
	if !ok {
		if node, err = p.remoteNode(ctx, name, repo, resourceID); err != nil {
			return "", err
		}
	}
	if node.IsFolder() {
		return "", utils.NotFound(resourceID, "not a document")
	}

	serverURL, user := account.ServerURL, account.Username
	if account.Kind == types.AccountKindCloud {
		serverURL = p.opts.CloudHost
		if serverURL == "" {
			serverURL = utils.DefaultCloudAPIBase
		}
		user = account.Name
	}

	logical := localName(id, node.Name)
	open := func(ctx context.Context) (int64, io.ReadCloser, error) {
		return repo.GetContentStream(ctx, id)
	}
	if kind == localstore.KindThumbnail {
		logical = id + ".png"
		open = func(ctx context.Context) (int64, io.ReadCloser, error) {
			return repo.GetRenditionStream(ctx, id, remote.RenditionThumbnail)
		}
	}

	path, err := p.store.ResolveLocalPath(kind, serverURL, user, logical)
	if err != nil {
		return "", err
	}
	path, err = p.store.Fetch(ctx, localstore.Download{
		Kind:           kind,
		Account:        name,
		NodeID:         id,
		LocalPath:      path,
		RemoteModified: node.ModifiedAt,
	}, open)
	if err != nil {
		p.checkExpired(name, err)
		return "", err
	}
	return path, nil
}

// DeleteNode deletes a node remotely, then drops it from every cached
// listing and from the local cache
func (p *Provider) DeleteNode(ctx context.Context, resourceID string) error {
	if ids.Decode(resourceID).Kind != ids.KindNode {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("%s cannot be deleted", resourceID)).Build())
	}
	account, repo, err := p.repository(ctx)
	if err != nil {
		return err
	}

	id := ids.NodeID(resourceID)
	if err := repo.DeleteNode(ctx, id); err != nil {
		p.checkExpired(account, err)
		return err
	}

	scopes := p.cache.RemoveNode(account, id)
	if p.store != nil {
		if err := p.store.Forget(ctx, account, id); err != nil {
			p.logger.Warn("Failed to remove local copy",
				logging.F("nodeId", id),
				logging.F("error", err.Error()),
			)
		}
	}
	p.logger.Info("Node deleted", logging.F("account", account), logging.F("nodeId", id))
	p.publishScopes(scopes)
	p.notifier.Publish(ids.DocumentURI(p.opts.Authority, resourceID))
	p.recordCacheSize()
	return nil
}

// CreateDocument creates an empty document under parentID, which may be a
// folder, an account root or a site, and returns its identifier
func (p *Provider) CreateDocument(ctx context.Context, parentID, name string) (string, error) {
	if name == "" {
		return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "document name is required").Build())
	}
	key := ids.Decode(parentID)
	if key.Kind == ids.KindSelector && key.Prefix == ids.PrefixAccount {
		if _, err := p.accountFor(parentID); err != nil {
			return "", err
		}
	}
	account, repo, err := p.repository(ctx)
	if err != nil {
		return "", err
	}

	folderID, err := p.targetFolder(ctx, account, repo, key)
	if err != nil {
		p.checkExpired(account, err)
		return "", err
	}

	node, err := repo.CreateDocument(ctx, folderID, name)
	if err != nil {
		p.checkExpired(account, err)
		return "", err
	}
	if node.Permissions == nil {
		if perms, err := repo.GetPermissions(ctx, node.ID); err == nil {
			node = node.WithPermissions(perms)
		} else {
			p.logger.Warn("Permissions lookup failed",
				logging.F("nodeId", node.ID),
				logging.F("error", err.Error()),
			)
		}
	}

	scopes := p.cache.AppendToFolder(account, node)
	p.logger.Info("Document created",
		logging.F("account", account),
		logging.F("nodeId", node.ID),
		logging.F("parentId", folderID),
	)
	p.publishScopes(scopes)
	p.recordCacheSize()
	return node.ID, nil
}

// targetFolder resolves a create target to a repository folder id
func (p *Provider) targetFolder(ctx context.Context, account string, repo remote.Repository, key ids.Key) (string, error) {
	switch {
	case key.Kind == ids.KindSelector && key.Prefix == ids.PrefixAccount:
		root := repo.RootFolder()
		if root == nil {
			return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeRemoteService, "repository root is unknown").Build())
		}
		return root.ID, nil
	case key.Kind == ids.KindSelector && key.Prefix == ids.PrefixSite:
		if library, ok := p.cache.PathNode(account, libraryPathKey(key.Value)); ok {
			return library.ID, nil
		}
		library, err := repo.GetDocumentLibrary(ctx, key.Value)
		if err != nil {
			return "", err
		}
		p.cache.PutNode(account, library)
		p.cache.PutPath(account, libraryPathKey(key.Value), library)
		return library.ID, nil
	case key.Kind == ids.KindNode:
		return ids.NodeID(key.Value), nil
	}
	return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
		"documents cannot be created here").Build())
}

// repository waits for the selected account's session
func (p *Provider) repository(ctx context.Context) (string, remote.Repository, error) {
	account, err := p.selectedAccount()
	if err != nil {
		return "", nil, err
	}
	repo, err := p.sessions.Await(ctx, account)
	if err != nil {
		return "", nil, sessionError(account, err)
	}
	return account, repo, nil
}

func (p *Provider) remoteNode(ctx context.Context, account string, repo remote.Repository, resourceID string) (*types.Node, error) {
	id := ids.NodeID(resourceID)
	node, err := repo.GetNode(ctx, id)
	if err != nil {
		p.checkExpired(account, err)
		return nil, err
	}
	if node.Permissions == nil {
		perms, err := repo.GetPermissions(ctx, id)
		if err != nil {
			p.checkExpired(account, err)
			return nil, err
		}
		node = node.WithPermissions(perms)
	}
	p.cache.PutNode(account, node)
	return node, nil
}

// localName keeps same-named documents of different folders apart
func localName(id, name string) string {
	return id + "-" + name
}

func (p *Provider) publishScopes(scopes []string) {
	for _, scope := range scopes {
		p.notifier.Publish(uriOfScope(scope))
	}
}
