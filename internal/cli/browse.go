package cli

import (
	"context"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/ids"
	"github.com/dl-alexandre/ecmdocs/internal/provider"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"github.com/spf13/cobra"
)

var rootsCmd = &cobra.Command{
	Use:   "roots",
	Short: "List the roots of every configured account",
	RunE:  runRoots,
}

var lsCmd = &cobra.Command{
	Use:   "ls [resource-id]",
	Short: "List the children of a folder, site, menu or account root",
	Long: `List the children of a resource. Without an argument the root of the
selected account is listed.

The first listing of a resource is loaded in the background. With --wait
(the default) the command waits until it has settled; with --wait=false it
prints whatever is cached and reports loading=true.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var statCmd = &cobra.Command{
	Use:   "stat <resource-id>",
	Short: "Describe a single resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search documents by name and content",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently modified documents",
	Args:  cobra.NoArgs,
	RunE:  runRecent,
}

var (
	listWait    bool
	listTimeout time.Duration
	statRefresh bool
	searchRoot  string
)

func init() {
	for _, cmd := range []*cobra.Command{lsCmd, searchCmd, recentCmd} {
		cmd.Flags().BoolVar(&listWait, "wait", true, "Wait for the listing to finish loading")
		cmd.Flags().DurationVar(&listTimeout, "timeout", 2*time.Minute, "Maximum time to wait for the listing")
	}
	for _, cmd := range []*cobra.Command{searchCmd, recentCmd} {
		cmd.Flags().StringVar(&searchRoot, "root", "", "Root to query (defaults to the selected account's root)")
	}
	statCmd.Flags().BoolVar(&statRefresh, "refresh", false, "Fetch the node from the repository instead of the cache")

	rootCmd.AddCommand(rootsCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(recentCmd)
}

// setup builds the app and an output writer honouring the configured
// default output format
func setup(cmd *cobra.Command) (*app, *OutputWriter, error) {
	flags := GetGlobalFlags()
	a, err := newApp()
	if err != nil {
		return nil, NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose), err
	}
	format := flags.OutputFormat
	if !cmd.Flags().Changed("output") && !flags.JSON && a.cfg.DefaultOutputFormat != "" {
		format = a.cfg.DefaultOutputFormat
	}
	return a, NewOutputWriter(format, flags.Quiet, flags.Verbose), nil
}

func runRoots(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("roots", err)
	}
	defer a.Close()

	roots, err := a.provider.ListRoots()
	if err != nil {
		return out.WriteErr("roots", err)
	}
	return out.WriteSuccess("roots", types.RootList(roots))
}

func runLs(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("ls", err)
	}
	defer a.Close()

	var resourceID string
	if len(args) == 1 {
		resourceID = args[0]
	} else {
		account := a.provider.Selected()
		if account == "" {
			return out.WriteErr("ls", utils.SessionUnavailable(""))
		}
		resourceID = ids.Account(account)
	}

	result := a.list(cmd.Context(), a.provider.ChildrenURI(resourceID), func() provider.ListResult {
		return a.provider.ListChildren(resourceID)
	})
	return writeListing(out, "ls", result)
}

func runStat(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("stat", err)
	}
	defer a.Close()

	if !statRefresh || ids.Decode(args[0]).Kind != ids.KindNode {
		return out.WriteSuccess("stat", a.provider.GetNode(args[0]))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.GetRequestTimeout())
	defer cancel()
	row, err := a.provider.FetchNode(ctx, args[0])
	if err != nil {
		return out.WriteErr("stat", err)
	}
	return out.WriteSuccess("stat", row)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("search", err)
	}
	defer a.Close()

	rootID, err := a.queryRoot()
	if err != nil {
		return out.WriteErr("search", err)
	}
	query := args[0]
	result := a.list(cmd.Context(), a.provider.SearchURI(rootID, query), func() provider.ListResult {
		return a.provider.Search(rootID, query)
	})
	return writeListing(out, "search", result)
}

func runRecent(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("recent", err)
	}
	defer a.Close()

	rootID, err := a.queryRoot()
	if err != nil {
		return out.WriteErr("recent", err)
	}
	result := a.list(cmd.Context(), a.provider.RecentURI(rootID), func() provider.ListResult {
		return a.provider.RecentDocuments(rootID)
	})
	return writeListing(out, "recent", result)
}

// queryRoot resolves --root, defaulting to the selected account's root
func (a *app) queryRoot() (string, error) {
	if searchRoot != "" {
		return searchRoot, nil
	}
	account := a.provider.Selected()
	if account == "" {
		return "", utils.SessionUnavailable("")
	}
	return ids.Account(account), nil
}

// list runs one listing call, re-polling until it settles when --wait is set
func (a *app) list(ctx context.Context, uri string, call func() provider.ListResult) provider.ListResult {
	if !listWait {
		return call()
	}
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()
	return awaitListing(ctx, a.provider, uri, a.cfg.GetPollInterval(), call)
}

// awaitListing calls list until it stops loading. It wakes on change
// notifications for uri and on every poll tick; when ctx ends the last
// (still loading) result is returned.
func awaitListing(ctx context.Context, p *provider.Provider, uri string, poll time.Duration, list func() provider.ListResult) provider.ListResult {
	changes, unsubscribe := p.SubscribeChan(uri)
	defer unsubscribe()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		result := list()
		if !result.Loading {
			return result
		}
		select {
		case <-ctx.Done():
			return result
		case <-changes:
		case <-ticker.C:
		}
	}
}

func writeListing(out *OutputWriter, command string, result provider.ListResult) error {
	if result.Err != nil {
		return out.WriteErr(command, result.Err)
	}
	if result.Loading {
		out.AddWarning("LOADING", "Listing is still loading; results may be incomplete", "info")
	}
	return out.WriteSuccess(command, result)
}
