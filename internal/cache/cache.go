package cache

import (
	"sync"

	"github.com/dl-alexandre/ecmdocs/internal/types"
)

// Cache holds nodes and sites fetched by background routines, plus the
// membership of every listing scope. Entries are partitioned by account:
// two accounts reaching the same repository node keep separate copies.
// Entries are replaced whole, never modified in place, so readers never see
// a partially built value.
type Cache struct {
	mu       sync.RWMutex
	accounts map[string]*partition
}

type partition struct {
	nodes    map[string]*types.Node
	paths    map[string]*types.Node
	sites    map[string]*types.Site
	listings map[string]listing
}

type listing struct {
	parentID string
	nodeIDs  []string
	siteIDs  []string
}

// Stats reports entry counts
type Stats struct {
	Nodes    int `json:"nodes"`
	Paths    int `json:"paths"`
	Sites    int `json:"sites"`
	Listings int `json:"listings"`
}

// New creates an empty cache
func New() *Cache {
	return &Cache{accounts: make(map[string]*partition)}
}

func newPartition() *partition {
	return &partition{
		nodes:    make(map[string]*types.Node),
		paths:    make(map[string]*types.Node),
		sites:    make(map[string]*types.Site),
		listings: make(map[string]listing),
	}
}

// writable returns the partition of account, creating it. Callers hold mu.
func (c *Cache) writable(account string) *partition {
	part, ok := c.accounts[account]
	if !ok {
		part = newPartition()
		c.accounts[account] = part
	}
	return part
}

// readable returns the partition of account or nil. Callers hold mu.
func (c *Cache) readable(account string) *partition {
	return c.accounts[account]
}

// PutNode inserts or replaces a node of account by id
func (c *Cache) PutNode(account string, node *types.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writable(account).nodes[node.ID] = node
}

// Node returns the node of account cached under id
func (c *Cache) Node(account, id string) (*types.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	part := c.readable(account)
	if part == nil {
		return nil, false
	}
	n, ok := part.nodes[id]
	return n, ok
}

// ContainsNode reports whether id is cached for account
func (c *Cache) ContainsNode(account, id string) bool {
	_, ok := c.Node(account, id)
	return ok
}

// RemoveNode drops a node of account and removes it from every listing of
// that account
func (c *Cache) RemoveNode(account, id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	part := c.readable(account)
	if part == nil {
		return nil
	}
	delete(part.nodes, id)
	for key, n := range part.paths {
		if n.ID == id {
			delete(part.paths, key)
		}
	}

	var scopes []string
	for scope, l := range part.listings {
		idx := indexOf(l.nodeIDs, id)
		if idx < 0 {
			continue
		}
		ids := make([]string, 0, len(l.nodeIDs)-1)
		ids = append(ids, l.nodeIDs[:idx]...)
		ids = append(ids, l.nodeIDs[idx+1:]...)
		l.nodeIDs = ids
		part.listings[scope] = l
		scopes = append(scopes, scope)
	}
	return scopes
}

// PutPath caches a folder of account reached by traversal under key
func (c *Cache) PutPath(account, key string, node *types.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writable(account).paths[key] = node
}

// PathNode returns the folder of account cached under key
func (c *Cache) PathNode(account, key string) (*types.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	part := c.readable(account)
	if part == nil {
		return nil, false
	}
	n, ok := part.paths[key]
	return n, ok
}

// PutSite inserts or replaces a site of account by id
func (c *Cache) PutSite(account string, site *types.Site) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writable(account).sites[site.ID] = site
}

// Site returns the site of account cached under id
func (c *Cache) Site(account, id string) (*types.Site, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	part := c.readable(account)
	if part == nil {
		return nil, false
	}
	s, ok := part.sites[id]
	return s, ok
}

// ContainsSite reports whether id is cached for account
func (c *Cache) ContainsSite(account, id string) bool {
	_, ok := c.Site(account, id)
	return ok
}

// SetListing replaces the node membership of scope. parentID names the
// folder whose children the scope lists, empty for queries.
func (c *Cache) SetListing(account, scope, parentID string, nodes []*types.Node) {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	part := c.writable(account)
	for _, n := range nodes {
		part.nodes[n.ID] = n
	}
	part.listings[scope] = listing{parentID: parentID, nodeIDs: ids}
}

// SetSiteListing replaces the site membership of scope
func (c *Cache) SetSiteListing(account, scope string, sites []*types.Site) {
	ids := make([]string, len(sites))
	for i, s := range sites {
		ids[i] = s.ID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	part := c.writable(account)
	for _, s := range sites {
		part.sites[s.ID] = s
	}
	part.listings[scope] = listing{siteIDs: ids}
}

// Listing returns the nodes of scope in listing order
func (c *Cache) Listing(account, scope string) ([]*types.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	part := c.readable(account)
	if part == nil {
		return nil, false
	}
	l, ok := part.listings[scope]
	if !ok {
		return nil, false
	}
	nodes := make([]*types.Node, 0, len(l.nodeIDs))
	for _, id := range l.nodeIDs {
		if n, ok := part.nodes[id]; ok {
			nodes = append(nodes, n)
		}
	}
	return nodes, true
}

// SiteListing returns the sites of scope in listing order
func (c *Cache) SiteListing(account, scope string) ([]*types.Site, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	part := c.readable(account)
	if part == nil {
		return nil, false
	}
	l, ok := part.listings[scope]
	if !ok {
		return nil, false
	}
	sites := make([]*types.Site, 0, len(l.siteIDs))
	for _, id := range l.siteIDs {
		if s, ok := part.sites[id]; ok {
			sites = append(sites, s)
		}
	}
	return sites, true
}

// AppendToFolder adds node to every listing of its parent folder in
// account and returns the affected scopes
func (c *Cache) AppendToFolder(account string, node *types.Node) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	part := c.writable(account)
	part.nodes[node.ID] = node
	var scopes []string
	for scope, l := range part.listings {
		if l.parentID == "" || l.parentID != node.ParentID || indexOf(l.nodeIDs, node.ID) >= 0 {
			continue
		}
		ids := make([]string, len(l.nodeIDs), len(l.nodeIDs)+1)
		copy(ids, l.nodeIDs)
		l.nodeIDs = append(ids, node.ID)
		part.listings[scope] = l
		scopes = append(scopes, scope)
	}
	return scopes
}

// Reset empties the cache
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = make(map[string]*partition)
}

// Stats returns entry counts over every account
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var s Stats
	for _, part := range c.accounts {
		s.Nodes += len(part.nodes)
		s.Paths += len(part.paths)
		s.Sites += len(part.sites)
		s.Listings += len(part.listings)
	}
	return s
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
