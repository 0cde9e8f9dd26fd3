// Package ids converts between the flat identifiers handed to the picker and
// the selectors they stand for.
//
// Three shapes exist:
//
//	"1001"            bare integer, a fixed menu entry
//	"1::alice"        prefix, separator, value
//	"<node id>"       anything else, passed through as a repository node id
package ids

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Separator joins a prefix and its value
const Separator = "::"

// Selector prefixes
const (
	PrefixAccount = 1
	PrefixSite    = 2
)

// Fixed menu entries shown under every account root
const (
	MenuSites     = 1001
	MenuFavorites = 1002
)

// Kind classifies a decoded identifier
type Kind int

const (
	KindNode Kind = iota
	KindMenu
	KindSelector
)

func (k Kind) String() string {
	switch k {
	case KindMenu:
		return "menu"
	case KindSelector:
		return "selector"
	default:
		return "node"
	}
}

// Key is a decoded identifier. Prefix is the menu id for KindMenu and the
// selector prefix for KindSelector; Value is empty for menus.
type Key struct {
	Kind   Kind
	Prefix int
	Value  string
}

// Encode builds prefix + Separator + value
func Encode(prefix int, value string) string {
	return strconv.Itoa(prefix) + Separator + value
}

// Account returns the identifier of an account root
func Account(name string) string {
	return Encode(PrefixAccount, name)
}

// Site returns the identifier of a site's document library listing
func Site(siteID string) string {
	return Encode(PrefixSite, siteID)
}

// Menu returns the identifier of a fixed menu entry
func Menu(item int) string {
	return strconv.Itoa(item)
}

// Decode classifies id. It never fails: anything that is neither a bare
// integer nor a well-formed selector is returned as a node id.
func Decode(id string) Key {
	if isDigits(id) {
		if n, err := strconv.Atoi(id); err == nil {
			return Key{Kind: KindMenu, Prefix: n}
		}
		return Key{Kind: KindNode, Value: id}
	}

	if i := strings.Index(id, Separator); i > 0 && isInteger(id[:i]) {
		if n, err := strconv.Atoi(id[:i]); err == nil {
			return Key{Kind: KindSelector, Prefix: n, Value: id[i+len(Separator):]}
		}
	}

	return Key{Kind: KindNode, Value: id}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isInteger accepts an optional minus sign followed by digits, the
// output of strconv.Itoa
func isInteger(s string) bool {
	return isDigits(strings.TrimPrefix(s, "-"))
}

var nodeRefPattern = regexp.MustCompile(`^[a-z]+://[A-Za-z0-9_-]+/[A-Za-z0-9_.;-]+$`)

// IsNodeRef reports whether id uses the store reference syntax
// (workspace://SpacesStore/<uuid>)
func IsNodeRef(id string) bool {
	return nodeRefPattern.MatchString(id)
}

// IsIdentifier reports whether id is a bare node identifier, optionally
// carrying a version label (<uuid>;1.0)
func IsIdentifier(id string) bool {
	if i := strings.IndexByte(id, ';'); i >= 0 {
		id = id[:i]
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// IsNativeID reports whether id can be sent to the repository as-is
func IsNativeID(id string) bool {
	return IsNodeRef(id) || IsIdentifier(id)
}

// NodeID strips the store prefix and version label from a native id
func NodeID(id string) string {
	if IsNodeRef(id) {
		id = id[strings.LastIndexByte(id, '/')+1:]
	}
	if i := strings.IndexByte(id, ';'); i >= 0 {
		id = id[:i]
	}
	return id
}

// Request URIs name listing scopes for the tracker and for change notifications.

// ChildrenURI is the scope of "children of id"
func ChildrenURI(authority, id string) string {
	return "content://" + authority + "/document/" + url.PathEscape(id) + "/children"
}

// DocumentURI is the scope of the single node id
func DocumentURI(authority, id string) string {
	return "content://" + authority + "/document/" + url.PathEscape(id)
}

// SearchURI is the scope of a keyword search under rootID
func SearchURI(authority, rootID, query string) string {
	return "content://" + authority + "/root/" + url.PathEscape(rootID) + "/search?query=" + url.QueryEscape(query)
}

// RecentURI is the scope of the recent documents of rootID
func RecentURI(authority, rootID string) string {
	return "content://" + authority + "/root/" + url.PathEscape(rootID) + "/recent"
}
