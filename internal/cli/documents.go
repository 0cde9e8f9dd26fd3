package cli

import (
	"context"
	"io"
	"os"

	"github.com/dl-alexandre/ecmdocs/internal/provider"
	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open <document-id>",
	Short: "Download a document into the local cache and print its path",
	Long: `Download a document into the local cache. A cached copy newer than the
remote modification time is reused. Modes: r, w, wt, wa, rw, rwt.`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

var thumbnailCmd = &cobra.Command{
	Use:   "thumbnail <document-id>",
	Short: "Download a document's thumbnail and print its path",
	Args:  cobra.ExactArgs(1),
	RunE:  runThumbnail,
}

var rmCmd = &cobra.Command{
	Use:   "rm <document-id>",
	Short: "Delete a document or folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var createCmd = &cobra.Command{
	Use:   "create <parent-id> <name>",
	Short: "Create an empty document in a folder, site or account root",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreate,
}

var (
	openMode  string
	openPrint bool
)

// OpenResult describes a materialized local file
type OpenResult struct {
	DocumentID string `json:"documentId" yaml:"documentId"`
	Path       string `json:"path" yaml:"path"`
	Mode       string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Size       int64  `json:"size" yaml:"size"`
}

func init() {
	openCmd.Flags().StringVar(&openMode, "mode", provider.ModeRead, "Open mode")
	openCmd.Flags().BoolVar(&openPrint, "print", false, "Write the content to stdout instead of printing a result")

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(thumbnailCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(createCmd)
}

func (a *app) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.cfg.GetRequestTimeout())
}

func runOpen(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("open", err)
	}
	defer a.Close()

	ctx, cancel := a.requestContext(cmd)
	defer cancel()
	f, err := a.provider.OpenContent(ctx, args[0], openMode)
	if err != nil {
		return out.WriteErr("open", err)
	}
	defer f.Close()

	if openPrint {
		if _, err := io.Copy(os.Stdout, f); err != nil {
			return out.WriteErr("open", err)
		}
		return nil
	}
	return out.WriteSuccess("open", fileResult(args[0], openMode, f))
}

func runThumbnail(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("thumbnail", err)
	}
	defer a.Close()

	ctx, cancel := a.requestContext(cmd)
	defer cancel()
	f, err := a.provider.OpenThumbnail(ctx, args[0])
	if err != nil {
		return out.WriteErr("thumbnail", err)
	}
	defer f.Close()
	return out.WriteSuccess("thumbnail", fileResult(args[0], "", f))
}

func fileResult(id, mode string, f *os.File) OpenResult {
	result := OpenResult{DocumentID: id, Path: f.Name(), Mode: mode}
	if info, err := f.Stat(); err == nil {
		result.Size = info.Size()
	}
	return result
}

func runRm(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("rm", err)
	}
	defer a.Close()

	ctx, cancel := a.requestContext(cmd)
	defer cancel()
	if err := a.provider.DeleteNode(ctx, args[0]); err != nil {
		return out.WriteErr("rm", err)
	}
	out.Log("Deleted %s", args[0])
	return out.WriteSuccess("rm", map[string]interface{}{
		"documentId": args[0],
		"deleted":    true,
	})
}

func runCreate(cmd *cobra.Command, args []string) error {
	a, out, err := setup(cmd)
	if err != nil {
		return out.WriteErr("create", err)
	}
	defer a.Close()

	ctx, cancel := a.requestContext(cmd)
	defer cancel()
	id, err := a.provider.CreateDocument(ctx, args[0], args[1])
	if err != nil {
		return out.WriteErr("create", err)
	}
	return out.WriteSuccess("create", a.provider.GetNode(id))
}
