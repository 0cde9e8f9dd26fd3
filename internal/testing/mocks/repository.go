package mocks

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/dl-alexandre/ecmdocs/internal/remote"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
)

// FakeRepository is an in-memory remote.Repository. Each operation serves
// from the exported maps unless the matching Func field is set.
type FakeRepository struct {
	mu sync.Mutex

	Root        *types.Node
	Nodes       map[string]*types.Node
	Children    map[string][]*types.Node
	Content     map[string][]byte
	Renditions  map[string][]byte
	Sites       []*types.Site
	Libraries   map[string]*types.Node
	Favorites   []*types.Node
	Permissions map[string]types.Permissions
	Results     map[string][]*types.Node

	ListChildrenFunc     func(ctx context.Context, folderID string) ([]*types.Node, error)
	GetNodeFunc          func(ctx context.Context, id string) (*types.Node, error)
	GetContentStreamFunc func(ctx context.Context, id string) (int64, io.ReadCloser, error)
	SearchFunc           func(ctx context.Context, query string, lang remote.Language) ([]*types.Node, error)
	CreateDocumentFunc   func(ctx context.Context, folderID, name string) (*types.Node, error)
	DeleteNodeFunc       func(ctx context.Context, id string) error
	GetSitesFunc         func(ctx context.Context) ([]*types.Site, error)
	GetPermissionsFunc   func(ctx context.Context, id string) (types.Permissions, error)

	calls map[string]int
}

// NewFakeRepository creates a repository whose root folder is "root"
func NewFakeRepository() *FakeRepository {
	root := &types.Node{
		ID:           "root",
		Name:         "Company Home",
		Kind:         types.NodeKindFolder,
		Permissions:  &types.Permissions{CanAddChildren: true},
		IsRootFolder: true,
	}
	return &FakeRepository{
		Root:        root,
		Nodes:       map[string]*types.Node{root.ID: root},
		Children:    make(map[string][]*types.Node),
		Content:     make(map[string][]byte),
		Renditions:  make(map[string][]byte),
		Libraries:   make(map[string]*types.Node),
		Permissions: make(map[string]types.Permissions),
		Results:     make(map[string][]*types.Node),
		calls:       make(map[string]int),
	}
}

// AddChild registers node under its parent folder
func (r *FakeRepository) AddChild(node *types.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Nodes[node.ID] = node
	r.Children[node.ParentID] = append(r.Children[node.ParentID], node)
}

// Calls returns how many times op was invoked
func (r *FakeRepository) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *FakeRepository) record(op string) {
	r.mu.Lock()
	r.calls[op]++
	r.mu.Unlock()
}

func (r *FakeRepository) RootFolder() *types.Node {
	return r.Root
}

func (r *FakeRepository) ListChildren(ctx context.Context, folderID string) ([]*types.Node, error) {
	r.record("ListChildren")
	if r.ListChildrenFunc != nil {
		return r.ListChildrenFunc(ctx, folderID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Node, len(r.Children[folderID]))
	copy(out, r.Children[folderID])
	return out, nil
}

func (r *FakeRepository) GetNode(ctx context.Context, id string) (*types.Node, error) {
	r.record("GetNode")
	if r.GetNodeFunc != nil {
		return r.GetNodeFunc(ctx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.Nodes[id]; ok {
		return n, nil
	}
	return nil, utils.NotFound(id, "node not found")
}

func (r *FakeRepository) GetPermissions(ctx context.Context, id string) (types.Permissions, error) {
	r.record("GetPermissions")
	if r.GetPermissionsFunc != nil {
		return r.GetPermissionsFunc(ctx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Permissions[id], nil
}

func (r *FakeRepository) GetContentStream(ctx context.Context, id string) (int64, io.ReadCloser, error) {
	r.record("GetContentStream")
	if r.GetContentStreamFunc != nil {
		return r.GetContentStreamFunc(ctx, id)
	}
	r.mu.Lock()
	data, ok := r.Content[id]
	r.mu.Unlock()
	if !ok {
		return 0, nil, utils.NotFound(id, "no content")
	}
	return int64(len(data)), io.NopCloser(bytes.NewReader(data)), nil
}

func (r *FakeRepository) GetRenditionStream(ctx context.Context, id, rendition string) (int64, io.ReadCloser, error) {
	r.record("GetRenditionStream")
	r.mu.Lock()
	data, ok := r.Renditions[id]
	r.mu.Unlock()
	if !ok {
		return 0, nil, utils.NotFound(id, "no rendition")
	}
	return int64(len(data)), io.NopCloser(bytes.NewReader(data)), nil
}

func (r *FakeRepository) Search(ctx context.Context, query string, lang remote.Language) ([]*types.Node, error) {
	r.record("Search")
	if r.SearchFunc != nil {
		return r.SearchFunc(ctx, query, lang)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Results[query], nil
}

func (r *FakeRepository) CreateDocument(ctx context.Context, folderID, name string) (*types.Node, error) {
	r.record("CreateDocument")
	if r.CreateDocumentFunc != nil {
		return r.CreateDocumentFunc(ctx, folderID, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Nodes[folderID]; !ok {
		return nil, utils.NotFound(folderID, "folder not found")
	}
	node := &types.Node{
		ID:          "created-" + name,
		Name:        name,
		ParentID:    folderID,
		Kind:        types.NodeKindDocument,
		MimeType:    "application/octet-stream",
		Permissions: &types.Permissions{CanEdit: true, CanDelete: true},
	}
	r.Nodes[node.ID] = node
	r.Children[folderID] = append(r.Children[folderID], node)
	return node, nil
}

func (r *FakeRepository) DeleteNode(ctx context.Context, id string) error {
	r.record("DeleteNode")
	if r.DeleteNodeFunc != nil {
		return r.DeleteNodeFunc(ctx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.Nodes[id]
	if !ok {
		return utils.NotFound(id, "node not found")
	}
	delete(r.Nodes, id)
	siblings := r.Children[node.ParentID]
	for i, n := range siblings {
		if n.ID == id {
			r.Children[node.ParentID] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	return nil
}

func (r *FakeRepository) GetSites(ctx context.Context) ([]*types.Site, error) {
	r.record("GetSites")
	if r.GetSitesFunc != nil {
		return r.GetSitesFunc(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Sites, nil
}

func (r *FakeRepository) GetSite(ctx context.Context, id string) (*types.Site, error) {
	r.record("GetSite")
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.Sites {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, utils.NotFound(id, "site not found")
}

func (r *FakeRepository) GetDocumentLibrary(ctx context.Context, siteID string) (*types.Node, error) {
	r.record("GetDocumentLibrary")
	r.mu.Lock()
	defer r.mu.Unlock()
	if lib, ok := r.Libraries[siteID]; ok {
		return lib, nil
	}
	return nil, utils.NotFound(siteID, "document library not found")
}

func (r *FakeRepository) GetFavoriteFolders(ctx context.Context) ([]*types.Node, error) {
	r.record("GetFavoriteFolders")
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Favorites, nil
}
