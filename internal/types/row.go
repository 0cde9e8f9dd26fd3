package types

import (
	"fmt"
	"strings"
	"time"
)

// MimeTypeDirectory marks folder-like rows
const MimeTypeDirectory = "vnd.android.document/directory"

// RowFlags describe what the picker may do with a row
type RowFlags int

const (
	FlagSupportsThumbnail RowFlags = 1 << iota
	FlagSupportsWrite
	FlagSupportsDelete
	FlagDirSupportsCreate
)

// RootFlags describe the capabilities of a root
type RootFlags int

const (
	RootSupportsCreate RootFlags = 1 << iota
	RootSupportsSearch
	RootSupportsRecents
)

// Row is one entry of a listing result
type Row struct {
	DocumentID   string     `json:"documentId" yaml:"documentId"`
	DisplayName  string     `json:"displayName" yaml:"displayName"`
	MimeType     string     `json:"mimeType" yaml:"mimeType"`
	Size         *int64     `json:"size,omitempty" yaml:"size,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty" yaml:"lastModified,omitempty"`
	Flags        RowFlags   `json:"flags" yaml:"flags"`
	Summary      string     `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// IsDirectory reports whether the row can be listed
func (r Row) IsDirectory() bool {
	return r.MimeType == MimeTypeDirectory
}

// Root is one browsable account
type Root struct {
	RootID     string    `json:"rootId" yaml:"rootId"`
	DocumentID string    `json:"documentId" yaml:"documentId"`
	Title      string    `json:"title" yaml:"title"`
	Summary    string    `json:"summary" yaml:"summary"`
	Flags      RootFlags `json:"flags" yaml:"flags"`
}

// RowList renders listing rows as a table
type RowList []Row

func (l RowList) Headers() []string {
	return []string{"ID", "Name", "Type", "Size", "Modified", "Flags"}
}

func (l RowList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		size := "-"
		if r.Size != nil {
			size = fmt.Sprintf("%d", *r.Size)
		}
		modified := "-"
		if r.LastModified != nil {
			modified = r.LastModified.UTC().Format(time.RFC3339)
		}
		kind := r.MimeType
		if r.IsDirectory() {
			kind = "folder"
		}
		rows = append(rows, []string{r.DocumentID, r.DisplayName, kind, size, modified, r.Flags.String()})
	}
	return rows
}

func (l RowList) EmptyMessage() string {
	return "No entries"
}

// RootList renders roots as a table
type RootList []Root

func (l RootList) Headers() []string {
	return []string{"Root", "Title", "Account"}
}

func (l RootList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{r.RootID, r.Title, r.Summary})
	}
	return rows
}

func (l RootList) EmptyMessage() string {
	return "No accounts configured"
}

func (f RowFlags) String() string {
	var parts []string
	if f&FlagSupportsThumbnail != 0 {
		parts = append(parts, "thumb")
	}
	if f&FlagSupportsWrite != 0 {
		parts = append(parts, "write")
	}
	if f&FlagSupportsDelete != 0 {
		parts = append(parts, "delete")
	}
	if f&FlagDirSupportsCreate != 0 {
		parts = append(parts, "create")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
