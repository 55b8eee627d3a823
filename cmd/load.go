package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/simon020286/go-datahub/models"
	"github.com/simon020286/go-datahub/store"
)

const (
	collectionFlag = "collection"
	uriPrefixFlag  = "uri-prefix"
)

func NewLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <dir>",
		Short: "Load the files of a directory into the staging store",
		Long: `The load command writes every file of a directory tree into the staging
store. The URI of a document is its path relative to the directory and its
format is guessed from the file extension.`,
		RunE: runLoad,
		Args: cobra.ExactArgs(1),
	}

	flags := cmd.Flags()
	flags.String(collectionFlag, "", "(required) the collection of the loaded documents, usually the entity type")
	flags.String(uriPrefixFlag, "/", "the prefix of the document URIs")
	_ = cmd.MarkFlagRequired(collectionFlag)

	return cmd
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	collection, _ := cmd.Flags().GetString(collectionFlag)
	prefix, _ := cmd.Flags().GetString(uriPrefixFlag)

	h, err := openHub(ctx, false)
	if err != nil {
		return err
	}
	defer h.close()

	n, err := loadFS(ctx, h.stores.Staging, os.DirFS(args[0]), prefix, collection)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d documents into %s\n", n, store.StagingName)
	return nil
}

// loadDirectory stages the files of dir under their relative path
func loadDirectory(ctx context.Context, staging store.DocumentStore, dir, collection string) (int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, fmt.Errorf("input directory: %w", err)
	}
	return loadFS(ctx, staging, os.DirFS(filepath.Clean(dir)), "/", collection)
}

func loadFS(ctx context.Context, staging store.DocumentStore, fsys fs.FS, prefix, collection string) (int, error) {
	loaded := 0
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		uri := path.Join(prefix, p)
		if prefix == "" || prefix[0] != '/' {
			uri = "/" + uri
		}
		doc := models.NewDocument(uri, models.FormatFromURI(uri), content, collection)
		if err := staging.Write(ctx, doc); err != nil {
			return fmt.Errorf("failed to stage %s: %w", uri, err)
		}
		loaded++
		return nil
	})
	return loaded, err
}
