// Package remote defines the boundary with the content repository client.
package remote

import (
	"context"
	"io"

	"github.com/dl-alexandre/ecmdocs/internal/types"
)

// Language selects the query language for Search
type Language string

const (
	// LanguageKeyword is a full-text search over names and content
	LanguageKeyword Language = "afts"
	// LanguageCMIS is a CMIS SQL query
	LanguageCMIS Language = "cmis"
)

// RenditionThumbnail names the thumbnail rendition
const RenditionThumbnail = "doclib"

// Repository is an authenticated session against one content repository.
// Every call may block on network I/O.
type Repository interface {
	// RootFolder returns the repository root resolved at connect time
	RootFolder() *types.Node

	ListChildren(ctx context.Context, folderID string) ([]*types.Node, error)
	GetNode(ctx context.Context, id string) (*types.Node, error)
	GetPermissions(ctx context.Context, id string) (types.Permissions, error)

	// GetContentStream returns the content length and a reader the caller must close
	GetContentStream(ctx context.Context, id string) (int64, io.ReadCloser, error)
	GetRenditionStream(ctx context.Context, id, rendition string) (int64, io.ReadCloser, error)

	Search(ctx context.Context, query string, lang Language) ([]*types.Node, error)
	CreateDocument(ctx context.Context, folderID, name string) (*types.Node, error)
	DeleteNode(ctx context.Context, id string) error

	GetSites(ctx context.Context) ([]*types.Site, error)
	GetSite(ctx context.Context, id string) (*types.Site, error)
	GetDocumentLibrary(ctx context.Context, siteID string) (*types.Node, error)
	GetFavoriteFolders(ctx context.Context) ([]*types.Node, error)
}

// Connector opens repository sessions
type Connector interface {
	ConnectDirect(ctx context.Context, serverURL, username, password string) (Repository, error)
	ConnectOAuth(ctx context.Context, bundle *types.OAuthBundle) (Repository, error)
}
