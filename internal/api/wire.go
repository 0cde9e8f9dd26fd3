package api

import (
	"strings"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/types"
)

// Response shapes of the public REST API

type errorResponse struct {
	Error struct {
		ErrorKey     string `json:"errorKey"`
		StatusCode   int    `json:"statusCode"`
		BriefSummary string `json:"briefSummary"`
	} `json:"error"`
}

type pagination struct {
	Count        int  `json:"count"`
	HasMoreItems bool `json:"hasMoreItems"`
	TotalItems   int  `json:"totalItems"`
	SkipCount    int  `json:"skipCount"`
	MaxItems     int  `json:"maxItems"`
}

type nodeEntry struct {
	Entry apiNode `json:"entry"`
}

type nodeList struct {
	List struct {
		Pagination pagination  `json:"pagination"`
		Entries    []nodeEntry `json:"entries"`
	} `json:"list"`
}

type apiNode struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	NodeType            string      `json:"nodeType"`
	IsFolder            bool        `json:"isFolder"`
	IsFile              bool        `json:"isFile"`
	ParentID            string      `json:"parentId"`
	ModifiedAt          apiTime     `json:"modifiedAt"`
	Content             *apiContent `json:"content,omitempty"`
	AllowableOperations []string    `json:"allowableOperations,omitempty"`
}

type apiContent struct {
	MimeType    string `json:"mimeType"`
	SizeInBytes int64  `json:"sizeInBytes"`
}

type siteEntry struct {
	Entry apiSite `json:"entry"`
}

type siteList struct {
	List struct {
		Pagination pagination  `json:"pagination"`
		Entries    []siteEntry `json:"entries"`
	} `json:"list"`
}

type apiSite struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

type containerEntry struct {
	Entry struct {
		ID       string `json:"id"`
		FolderID string `json:"folderId"`
	} `json:"entry"`
}

type favoriteList struct {
	List struct {
		Pagination pagination `json:"pagination"`
		Entries    []struct {
			Entry struct {
				TargetGUID string `json:"targetGuid"`
				Target     struct {
					Folder *apiNode `json:"folder,omitempty"`
				} `json:"target"`
			} `json:"entry"`
		} `json:"entries"`
	} `json:"list"`
}

type createNodeRequest struct {
	Name     string `json:"name"`
	NodeType string `json:"nodeType"`
}

type searchRequest struct {
	Query struct {
		Query    string `json:"query"`
		Language string `json:"language"`
	} `json:"query"`
	Paging struct {
		MaxItems  int `json:"maxItems"`
		SkipCount int `json:"skipCount"`
	} `json:"paging"`
	Include []string `json:"include,omitempty"`
}

// apiTime accepts both RFC 3339 and the server's "+0000" offset form
type apiTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// toNode converts a wire node. Permissions are only set when the response
// included allowableOperations.
func (n *apiNode) toNode() *types.Node {
	node := &types.Node{
		ID:         n.ID,
		Name:       n.Name,
		ParentID:   n.ParentID,
		Kind:       types.NodeKindDocument,
		ModifiedAt: n.ModifiedAt.Time,
	}
	if n.IsFolder {
		node.Kind = types.NodeKindFolder
	}
	if n.Content != nil {
		node.Size = n.Content.SizeInBytes
		node.MimeType = n.Content.MimeType
	}
	if n.AllowableOperations != nil {
		perms := permissionsFrom(n.AllowableOperations)
		node.Permissions = &perms
	}
	return node
}

func permissionsFrom(ops []string) types.Permissions {
	var perms types.Permissions
	for _, op := range ops {
		switch op {
		case "update":
			perms.CanEdit = true
		case "delete":
			perms.CanDelete = true
		case "create":
			perms.CanAddChildren = true
		}
	}
	return perms
}

func (s *apiSite) toSite() *types.Site {
	return &types.Site{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Visibility:  s.Visibility,
	}
}
