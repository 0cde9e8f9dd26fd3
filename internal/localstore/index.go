package localstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one downloaded file tracked by the index
type Entry struct {
	Kind           Kind      `json:"kind" yaml:"kind"`
	Account        string    `json:"account" yaml:"account"`
	NodeID         string    `json:"nodeId" yaml:"nodeId"`
	LocalPath      string    `json:"localPath" yaml:"localPath"`
	RemoteModified time.Time `json:"remoteModified" yaml:"remoteModified"`
	Size           int64     `json:"size" yaml:"size"`
	DownloadedAt   time.Time `json:"downloadedAt" yaml:"downloadedAt"`
}

// Index records downloads in a sqlite database
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if needed) the index at path
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &Index{db: db}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (x *Index) Close() error {
	if x == nil || x.db == nil {
		return nil
	}
	return x.db.Close()
}

func (x *Index) Migrate(ctx context.Context) error {
	_, err := x.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS downloads (
	local_path TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	account TEXT NOT NULL,
	node_id TEXT NOT NULL,
	remote_modified INTEGER NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	downloaded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_downloads_account ON downloads(account);
CREATE INDEX IF NOT EXISTS idx_downloads_node ON downloads(account, node_id);
`

// Record inserts or replaces the entry for e.LocalPath
func (x *Index) Record(ctx context.Context, e Entry) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO downloads (local_path, kind, account, node_id, remote_modified, size, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_path) DO UPDATE SET
			kind = excluded.kind,
			account = excluded.account,
			node_id = excluded.node_id,
			remote_modified = excluded.remote_modified,
			size = excluded.size,
			downloaded_at = excluded.downloaded_at
	`, e.LocalPath, string(e.Kind), e.Account, e.NodeID, e.RemoteModified.UnixMilli(), e.Size, e.DownloadedAt.UnixMilli())
	return err
}

// List returns entries for account, or for every account when account is empty
func (x *Index) List(ctx context.Context, account string) (entries []Entry, err error) {
	query := `SELECT local_path, kind, account, node_id, remote_modified, size, downloaded_at FROM downloads`
	args := []interface{}{}
	if account != "" {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY downloaded_at DESC, local_path`

	rows, err := x.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Remove deletes the entry for localPath
func (x *Index) Remove(ctx context.Context, localPath string) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM downloads WHERE local_path = ?`, localPath)
	return err
}

// RemoveNode deletes every entry for a node of account
func (x *Index) RemoveNode(ctx context.Context, account, nodeID string) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM downloads WHERE account = ? AND node_id = ?`, account, nodeID)
	return err
}

func scanEntry(scanner interface {
	Scan(dest ...interface{}) error
}) (Entry, error) {
	var (
		entry        Entry
		kind         string
		remoteMillis int64
		downMillis   int64
	)
	err := scanner.Scan(&entry.LocalPath, &kind, &entry.Account, &entry.NodeID, &remoteMillis, &entry.Size, &downMillis)
	if err != nil {
		return Entry{}, err
	}
	entry.Kind = Kind(kind)
	entry.RemoteModified = time.UnixMilli(remoteMillis).UTC()
	entry.DownloadedAt = time.UnixMilli(downMillis).UTC()
	return entry, nil
}
