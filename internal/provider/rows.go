package provider

import (
	"github.com/dl-alexandre/ecmdocs/internal/ids"
	"github.com/dl-alexandre/ecmdocs/internal/types"
)

const defaultMimeType = "application/octet-stream"

var menuTitles = map[int]string{
	ids.MenuSites:     "Sites",
	ids.MenuFavorites: "Favorite folders",
}

// menuRow is a fixed entry under every account root
func menuRow(item int) types.Row {
	return types.Row{
		DocumentID:  ids.Menu(item),
		DisplayName: menuTitles[item],
		MimeType:    types.MimeTypeDirectory,
	}
}

func siteRow(site *types.Site) types.Row {
	return types.Row{
		DocumentID:  ids.Site(site.ID),
		DisplayName: site.Title,
		MimeType:    types.MimeTypeDirectory,
		Summary:     site.Description,
	}
}

func nodeRow(n *types.Node) types.Row {
	if n.IsFolder() {
		return folderRow(n)
	}
	return documentRow(n)
}

func folderRow(n *types.Node) types.Row {
	row := types.Row{
		DocumentID:  n.ID,
		DisplayName: n.Name,
		MimeType:    types.MimeTypeDirectory,
	}
	if !n.IsRootFolder && !n.ModifiedAt.IsZero() {
		modified := n.ModifiedAt
		row.LastModified = &modified
	}
	if n.Permissions != nil && n.Permissions.CanAddChildren {
		row.Flags |= types.FlagDirSupportsCreate
	}
	return row
}

func documentRow(n *types.Node) types.Row {
	mime := n.MimeType
	if mime == "" {
		mime = defaultMimeType
	}
	size := n.Size
	row := types.Row{
		DocumentID:  n.ID,
		DisplayName: n.Name,
		MimeType:    mime,
		Size:        &size,
		Flags:       types.FlagSupportsThumbnail,
	}
	if !n.ModifiedAt.IsZero() {
		modified := n.ModifiedAt
		row.LastModified = &modified
	}
	if n.Permissions != nil {
		if n.Permissions.CanEdit {
			row.Flags |= types.FlagSupportsWrite
		}
		if n.Permissions.CanDelete {
			row.Flags |= types.FlagSupportsDelete
		}
	}
	return row
}

func (p *Provider) nodeRows(account, scope string) ([]types.Row, bool) {
	nodes, ok := p.cache.Listing(account, scope)
	if !ok {
		return nil, false
	}
	rows := make([]types.Row, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, nodeRow(n))
	}
	return rows, true
}

func (p *Provider) siteRows(account, scope string) ([]types.Row, bool) {
	sites, ok := p.cache.SiteListing(account, scope)
	if !ok {
		return nil, false
	}
	rows := make([]types.Row, 0, len(sites))
	for _, s := range sites {
		rows = append(rows, siteRow(s))
	}
	return rows, true
}

// accountRootRows puts the menu entries ahead of the repository root's
// children once the root has been listed
func (p *Provider) accountRootRows(account, scope string) ([]types.Row, bool) {
	children, ok := p.nodeRows(account, scope)
	if !ok {
		return nil, false
	}
	rows := make([]types.Row, 0, len(children)+2)
	rows = append(rows, menuRow(ids.MenuSites), menuRow(ids.MenuFavorites))
	return append(rows, children...), true
}
