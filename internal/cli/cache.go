package cli

import (
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/localstore"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Local cache management",
	Long:  "Inspect and clear downloaded documents and thumbnails",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached downloads",
	RunE:  runCacheList,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached downloads",
	Long:  "Delete cached downloads of the --account account, or of every account",
	RunE:  runCacheClear,
}

// CacheEntryList renders download index entries as a table
type CacheEntryList []localstore.Entry

func (l CacheEntryList) Headers() []string {
	return []string{"Account", "Kind", "Node ID", "Size", "Downloaded", "Path"}
}

func (l CacheEntryList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, e := range l {
		rows[i] = []string{
			e.Account,
			string(e.Kind),
			truncate(e.NodeID, 40),
			formatSize(e.Size),
			e.DownloadedAt.Format(time.RFC3339),
			e.LocalPath,
		}
	}
	return rows
}

func (l CacheEntryList) EmptyMessage() string {
	return "Cache is empty"
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("cache.list", err)
	}
	defer a.Close()

	entries, err := a.store.Entries(cmd.Context(), globalFlags.Account)
	if err != nil {
		return out.WriteErr("cache.list", err)
	}
	return out.WriteSuccess("cache.list", CacheEntryList(entries))
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("cache.clear", err)
	}
	defer a.Close()

	removed, err := a.store.Clear(cmd.Context(), globalFlags.Account)
	if err != nil {
		return out.WriteErr("cache.clear", err)
	}
	out.Log("Removed %d cached files", removed)
	return out.WriteSuccess("cache.clear", map[string]interface{}{
		"account": globalFlags.Account,
		"removed": removed,
		"dir":     a.store.Dir(),
	})
}
