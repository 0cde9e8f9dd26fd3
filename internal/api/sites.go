package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
)

// GetSites returns the sites the user is a member of or can see
func (c *Client) GetSites(ctx context.Context) ([]*types.Site, error) {
	reqCtx := c.requestContext(ctx, types.RequestTypeList)
	var sites []*types.Site
	skip := 0
	for {
		q := url.Values{}
		q.Set("skipCount", strconv.Itoa(skip))
		q.Set("maxItems", strconv.Itoa(utils.DefaultPageSize))

		var page siteList
		if err := c.doJSON(ctx, reqCtx, http.MethodGet, c.coreURL("/sites", q), nil, &page); err != nil {
			return nil, err
		}
		for i := range page.List.Entries {
			sites = append(sites, page.List.Entries[i].Entry.toSite())
		}
		if !page.List.Pagination.HasMoreItems || len(page.List.Entries) == 0 {
			return sites, nil
		}
		skip += len(page.List.Entries)
	}
}

// GetSite fetches one site
func (c *Client) GetSite(ctx context.Context, id string) (*types.Site, error) {
	reqCtx := c.requestContext(ctx, types.RequestTypeGet, id)
	var entry siteEntry
	if err := c.doJSON(ctx, reqCtx, http.MethodGet, c.coreURL("/sites/"+url.PathEscape(id), nil), nil, &entry); err != nil {
		return nil, err
	}
	return entry.Entry.toSite(), nil
}

// GetDocumentLibrary resolves the site's document library folder
func (c *Client) GetDocumentLibrary(ctx context.Context, siteID string) (*types.Node, error) {
	reqCtx := c.requestContext(ctx, types.RequestTypeGet, siteID)
	var container containerEntry
	path := "/sites/" + url.PathEscape(siteID) + "/containers/documentLibrary"
	if err := c.doJSON(ctx, reqCtx, http.MethodGet, c.coreURL(path, nil), nil, &container); err != nil {
		return nil, err
	}
	return c.GetNode(ctx, container.Entry.ID)
}

// GetFavoriteFolders returns the user's favorite folders
func (c *Client) GetFavoriteFolders(ctx context.Context) ([]*types.Node, error) {
	reqCtx := c.requestContext(ctx, types.RequestTypeList)
	var folders []*types.Node
	skip := 0
	for {
		q := url.Values{}
		q.Set("where", "(EXISTS(target/folder))")
		q.Set("skipCount", strconv.Itoa(skip))
		q.Set("maxItems", strconv.Itoa(utils.DefaultPageSize))

		var page favoriteList
		if err := c.doJSON(ctx, reqCtx, http.MethodGet, c.coreURL("/people/-me-/favorites", q), nil, &page); err != nil {
			return nil, err
		}
		for _, e := range page.List.Entries {
			if e.Entry.Target.Folder == nil {
				continue
			}
			folder := e.Entry.Target.Folder.toNode()
			folder.Kind = types.NodeKindFolder
			if folder.ID == "" {
				folder.ID = e.Entry.TargetGUID
			}
			folders = append(folders, folder)
		}
		if !page.List.Pagination.HasMoreItems || len(page.List.Entries) == 0 {
			return folders, nil
		}
		skip += len(page.List.Entries)
	}
}
