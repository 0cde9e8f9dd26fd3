// Package localstore keeps downloaded content and thumbnails on disk and
// decides when a local copy can be reused.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/metrics"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
)

// Kind separates content downloads from thumbnails
type Kind string

const (
	KindContent   Kind = "content"
	KindThumbnail Kind = "thumbnail"
)

func (k Kind) dirName() string {
	if k == KindThumbnail {
		return utils.ThumbnailsDirName
	}
	return utils.DownloadsDirName
}

// OpenFunc opens the remote byte source of a download
type OpenFunc func(ctx context.Context) (int64, io.ReadCloser, error)

// Download describes one file to materialize locally
type Download struct {
	Kind           Kind
	Account        string
	NodeID         string
	LocalPath      string
	RemoteModified time.Time
}

// Store is the on-disk cache rooted at one directory
type Store struct {
	dir    string
	index  *Index
	logger logging.Logger
}

// Open creates the cache directory and its download index
func Open(dir string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	index, err := OpenIndex(filepath.Join(dir, utils.IndexFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open download index: %w", err)
	}
	return &Store{dir: dir, index: index, logger: logger}, nil
}

// Close closes the download index
func (s *Store) Close() error {
	return s.index.Close()
}

// Dir returns the cache root
func (s *Store) Dir() string {
	return s.dir
}

// ResolveLocalPath maps an account and a logical file name to
// <dir>/<downloads|thumbnails>/<host>-<user>/<name>
func (s *Store) ResolveLocalPath(kind Kind, serverURL, user, name string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("cannot derive cache folder from %q", serverURL)).Build())
	}
	if user == "" {
		user = "anonymous"
	}
	folder := sanitize(u.Hostname() + "-" + user)
	return filepath.Join(s.dir, kind.dirName(), folder, sanitize(name)), nil
}

// sanitize keeps a path element inside its parent directory
func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// IsFresh reports whether the file at path exists and was modified strictly
// after remoteModified
func IsFresh(path string, remoteModified time.Time) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.ModTime().After(remoteModified)
}

// Fetch returns d.LocalPath, downloading it through open unless the local
// copy is fresh. The copy observes ctx between chunks; a cancelled download
// leaves no file behind.
func (s *Store) Fetch(ctx context.Context, d Download, open OpenFunc) (string, error) {
	kind := string(d.Kind)
	if IsFresh(d.LocalPath, d.RemoteModified) {
		metrics.RecordContentRequest(kind, "hit")
		s.logger.Debug("Local copy reused", logging.F("path", d.LocalPath), logging.F("nodeId", d.NodeID))
		return d.LocalPath, nil
	}

	size, src, err := open(ctx)
	if err != nil {
		metrics.RecordContentRequest(kind, "error")
		return "", err
	}
	if size == 0 {
		_ = src.Close()
		metrics.RecordContentRequest(kind, "error")
		return "", noContent(d.NodeID)
	}

	written, err := s.copyTo(ctx, d.LocalPath, src)
	if err != nil {
		if utils.IsCode(err, utils.ErrCodeCancelled) {
			metrics.RecordContentRequest(kind, "cancelled")
		} else {
			metrics.RecordContentRequest(kind, "error")
		}
		return "", err
	}
	if written == 0 {
		_ = os.Remove(d.LocalPath)
		metrics.RecordContentRequest(kind, "error")
		return "", noContent(d.NodeID)
	}

	// the local copy must compare newer than the remote on the next open
	now := time.Now()
	if !now.After(d.RemoteModified) {
		stamp := d.RemoteModified.Add(time.Second)
		if err := os.Chtimes(d.LocalPath, stamp, stamp); err != nil {
			return "", err
		}
	}

	metrics.RecordContentRequest(kind, "download")
	metrics.AddBytesDownloaded(written)
	if err := s.index.Record(ctx, Entry{
		Kind:           d.Kind,
		Account:        d.Account,
		NodeID:         d.NodeID,
		LocalPath:      d.LocalPath,
		RemoteModified: d.RemoteModified,
		Size:           written,
		DownloadedAt:   now,
	}); err != nil {
		s.logger.Warn("Failed to record download", logging.F("path", d.LocalPath), logging.F("error", err.Error()))
	}
	s.logger.Debug("Downloaded",
		logging.F("path", d.LocalPath),
		logging.F("nodeId", d.NodeID),
		logging.F("bytes", written),
	)
	return d.LocalPath, nil
}

func (s *Store) copyTo(ctx context.Context, path string, src io.ReadCloser) (int64, error) {
	// closing the source unblocks a Read stuck on the network
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer func() {
		stop()
		_ = src.Close()
	}()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".part-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	fail := func(err error) (int64, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return 0, err
	}

	var written int64
	buf := make([]byte, utils.CopyBufferSize)
	for {
		if ctx.Err() != nil {
			return fail(cancelled(ctx.Err()))
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := tmp.Write(buf[:n]); err != nil {
				return fail(err)
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return fail(cancelled(ctx.Err()))
			}
			return fail(utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError,
				"download interrupted").WithRetryable(true).Build(), readErr))
		}
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return 0, err
	}
	return written, nil
}

// Entries lists recorded downloads for account, or all when account is empty
func (s *Store) Entries(ctx context.Context, account string) ([]Entry, error) {
	return s.index.List(ctx, account)
}

// Forget removes the local copies of a node, used after it is deleted remotely
func (s *Store) Forget(ctx context.Context, account, nodeID string) error {
	entries, err := s.index.List(ctx, account)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.NodeID != nodeID {
			continue
		}
		if err := os.Remove(e.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return s.index.RemoveNode(ctx, account, nodeID)
}

// Clear deletes the recorded files of account (all accounts when empty) and
// their index rows. It returns the number of entries removed.
func (s *Store) Clear(ctx context.Context, account string) (int, error) {
	entries, err := s.index.List(ctx, account)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := os.Remove(e.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
		if err := s.index.Remove(ctx, e.LocalPath); err != nil {
			return 0, err
		}
	}
	s.logger.Info("Local cache cleared", logging.F("account", account), logging.F("entries", len(entries)))
	return len(entries), nil
}

func noContent(nodeID string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeNotFound, "no content").
		WithContext("nodeId", nodeID).Build())
}

func cancelled(cause error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled, "download cancelled").Build(), cause)
}
