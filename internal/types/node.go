package types

import "time"

// NodeKind distinguishes documents from folders
type NodeKind string

const (
	NodeKindDocument NodeKind = "document"
	NodeKindFolder   NodeKind = "folder"
)

// Permissions summarizes what the current user may do with a node
type Permissions struct {
	CanEdit        bool `json:"canEdit"`
	CanDelete      bool `json:"canDelete"`
	CanAddChildren bool `json:"canAddChildren"`
}

// Node is a document or folder in the remote repository.
// Cached nodes are shared between goroutines and must not be mutated.
type Node struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	ParentID     string       `json:"parentId,omitempty"`
	Kind         NodeKind     `json:"kind"`
	Size         int64        `json:"size,omitempty"`
	MimeType     string       `json:"mimeType,omitempty"`
	ModifiedAt   time.Time    `json:"modifiedAt"`
	Permissions  *Permissions `json:"permissions,omitempty"`
	IsRootFolder bool         `json:"isRootFolder,omitempty"`
}

// IsFolder reports whether the node is a folder
func (n *Node) IsFolder() bool {
	return n.Kind == NodeKindFolder
}

// WithPermissions returns a copy of the node carrying perms
func (n *Node) WithPermissions(perms Permissions) *Node {
	cp := *n
	cp.Permissions = &perms
	return &cp
}

// Site is a collaboration site with its own document library
type Site struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
}

// AccountKind selects how a session is established
type AccountKind int

const (
	AccountKindDirect AccountKind = 1
	AccountKindCloud  AccountKind = 2
)

func (k AccountKind) String() string {
	switch k {
	case AccountKindDirect:
		return "direct"
	case AccountKindCloud:
		return "cloud"
	default:
		return "unknown"
	}
}

// ParseAccountKind parses the string form produced by String
func ParseAccountKind(s string) (AccountKind, bool) {
	switch s {
	case "direct":
		return AccountKindDirect, true
	case "cloud":
		return AccountKindCloud, true
	}
	return 0, false
}

// Account is a configured connection to one repository
type Account struct {
	Name      string      `json:"name"`
	Kind      AccountKind `json:"kind"`
	ServerURL string      `json:"serverUrl,omitempty"`
	Username  string      `json:"username,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// OAuthBundle is delivered by the credential store for cloud accounts
type OAuthBundle struct {
	APIKey       string    `json:"apiKey"`
	APISecret    string    `json:"apiSecret"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiry       time.Time `json:"expiry"`
}
