package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dl-alexandre/ecmdocs/internal/remote"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
)

const includePermissions = "allowableOperations"

// ListChildren returns every child of folderID, walking all pages
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]*types.Node, error) {
	reqCtx := c.requestContext(ctx, types.RequestTypeList, folderID)
	var nodes []*types.Node
	skip := 0
	for {
		q := url.Values{}
		q.Set("skipCount", strconv.Itoa(skip))
		q.Set("maxItems", strconv.Itoa(utils.DefaultPageSize))
		q.Set("include", includePermissions)

		var page nodeList
		if err := c.doJSON(ctx, reqCtx, http.MethodGet, c.coreURL("/nodes/"+url.PathEscape(folderID)+"/children", q), nil, &page); err != nil {
			return nil, err
		}
		for i := range page.List.Entries {
			node := page.List.Entries[i].Entry.toNode()
			if node.ParentID == "" {
				node.ParentID = folderID
			}
			nodes = append(nodes, node)
		}
		if !page.List.Pagination.HasMoreItems || len(page.List.Entries) == 0 {
			return nodes, nil
		}
		skip += len(page.List.Entries)
	}
}

// GetNode fetches one node with its permissions
func (c *Client) GetNode(ctx context.Context, id string) (*types.Node, error) {
	reqCtx := c.requestContext(ctx, types.RequestTypeGet, id)
	q := url.Values{}
	q.Set("include", includePermissions)

	var entry nodeEntry
	if err := c.doJSON(ctx, reqCtx, http.MethodGet, c.coreURL("/nodes/"+url.PathEscape(id), q), nil, &entry); err != nil {
		return nil, err
	}
	return entry.Entry.toNode(), nil
}

// GetPermissions derives the permission summary from the node's allowable operations
func (c *Client) GetPermissions(ctx context.Context, id string) (types.Permissions, error) {
	node, err := c.GetNode(ctx, id)
	if err != nil {
		return types.Permissions{}, err
	}
	if node.Permissions == nil {
		return types.Permissions{}, nil
	}
	return *node.Permissions, nil
}

// GetContentStream opens the document's content
func (c *Client) GetContentStream(ctx context.Context, id string) (int64, io.ReadCloser, error) {
	reqCtx := c.requestContext(ctx, types.RequestTypeContent, id)
	q := url.Values{}
	q.Set("attachment", "false")
	return c.stream(ctx, reqCtx, c.coreURL("/nodes/"+url.PathEscape(id)+"/content", q))
}

// GetRenditionStream opens a rendition. A rendition that has not been
// generated yet is reported as not found.
func (c *Client) GetRenditionStream(ctx context.Context, id, rendition string) (int64, io.ReadCloser, error) {
	reqCtx := c.requestContext(ctx, types.RequestTypeContent, id)
	q := url.Values{}
	q.Set("attachment", "false")
	q.Set("placeholder", "false")
	path := "/nodes/" + url.PathEscape(id) + "/renditions/" + url.PathEscape(rendition) + "/content"
	return c.stream(ctx, reqCtx, c.coreURL(path, q))
}

// Search runs a query through the search API
func (c *Client) Search(ctx context.Context, query string, lang remote.Language) ([]*types.Node, error) {
	reqCtx := c.requestContext(ctx, types.RequestTypeSearch)

	var body searchRequest
	body.Query.Query = query
	body.Query.Language = string(lang)
	body.Paging.MaxItems = utils.DefaultPageSize
	body.Include = []string{includePermissions}

	var page nodeList
	if err := c.doJSON(ctx, reqCtx, http.MethodPost, c.searchBase+"/search", body, &page); err != nil {
		return nil, err
	}
	nodes := make([]*types.Node, 0, len(page.List.Entries))
	for i := range page.List.Entries {
		nodes = append(nodes, page.List.Entries[i].Entry.toNode())
	}
	return nodes, nil
}

// CreateDocument creates an empty document in folderID. Name clashes are
// resolved by the server.
func (c *Client) CreateDocument(ctx context.Context, folderID, name string) (*types.Node, error) {
	reqCtx := c.requestContext(ctx, types.RequestTypeMutation, folderID)
	q := url.Values{}
	q.Set("autoRename", "true")
	q.Set("include", includePermissions)

	var entry nodeEntry
	body := createNodeRequest{Name: name, NodeType: utils.NodeTypeContent}
	if err := c.doJSON(ctx, reqCtx, http.MethodPost, c.coreURL("/nodes/"+url.PathEscape(folderID)+"/children", q), body, &entry); err != nil {
		return nil, err
	}
	node := entry.Entry.toNode()
	if node.ParentID == "" {
		node.ParentID = folderID
	}
	return node, nil
}

// DeleteNode moves the node to the trashcan
func (c *Client) DeleteNode(ctx context.Context, id string) error {
	reqCtx := c.requestContext(ctx, types.RequestTypeMutation, id)
	return c.doJSON(ctx, reqCtx, http.MethodDelete, c.coreURL("/nodes/"+url.PathEscape(id), nil), nil, nil)
}
