package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kenneth/identity-helper/internal/api"
	"github.com/kenneth/identity-helper/internal/config"
	"github.com/kenneth/identity-helper/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// storeFlags select the store to inspect. Credentials come from the same
// environment variables the server reads.
type storeFlags struct {
	cfg  config.ObjectStorageConfig
	root string
	json bool
	keys bool
}

func (f *storeFlags) register(cmd *cobra.Command) {
	defaults := config.Default()
	f.cfg = defaults.ObjectStorage

	cmd.Flags().StringVar(&f.cfg.Type, "type", f.cfg.Type, "Storage type (filesystem or aws)")
	cmd.Flags().StringVar(&f.cfg.Bucket, "bucket", f.cfg.Bucket, "Bucket name, or directory for the filesystem store")
	cmd.Flags().StringVar(&f.cfg.Host, "host", f.cfg.Host, "S3 endpoint URL")
	cmd.Flags().StringVar(&f.cfg.Region, "region", f.cfg.Region, "S3 region")
	cmd.Flags().BoolVar(&f.cfg.UsePathStyle, "path-style", f.cfg.UsePathStyle, "Use path-style S3 addressing")
	cmd.Flags().StringVar(&f.root, "root", defaults.Identity.RootDataFolder, "Root data folder")
	cmd.Flags().BoolVar(&f.json, "json", false, "Output in JSON format")
	cmd.Flags().BoolVar(&f.keys, "keys", false, "Print full object keys instead of tokens")
}

func (f *storeFlags) open(logger *logrus.Logger) (*storage.Versioned, error) {
	if f.cfg.Key == "" {
		f.cfg.Key = os.Getenv("OBJECT_STORAGE_KEY")
	}
	if f.cfg.Secret == "" {
		f.cfg.Secret = os.Getenv("OBJECT_STORAGE_SECRET")
	}
	return api.BuildStore(&f.cfg, logger)
}

func (f *storeFlags) rootFolder() string {
	return strings.Trim(f.root, "/")
}

func (f *storeFlags) print(w io.Writer, folder string, keys []string) error {
	items := make([]string, len(keys))
	for i, key := range keys {
		if f.keys {
			items[i] = key
		} else {
			items[i] = storage.VersionToken(folder, key)
		}
	}

	if f.json {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(items)
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(w, item); err != nil {
			return err
		}
	}
	return nil
}

func newVersionsCmd(logger *logrus.Logger) *cobra.Command {
	flags := &storeFlags{}
	cmd := &cobra.Command{
		Use:   "versions <identity> <docid>",
		Short: "List the stored versions of a document, current first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.open(logger)
			if err != nil {
				return err
			}
			root := flags.rootFolder()
			key := storage.ObjectKey(root, args[0], args[1])
			keys, err := store.ListVersions(context.Background(), key)
			if err != nil {
				return fmt.Errorf("failed to list versions: %w", err)
			}
			return flags.print(cmd.OutOrStdout(), storage.FolderKey(root, args[0]), keys)
		},
	}
	flags.register(cmd)
	return cmd
}

func newDocumentsCmd(logger *logrus.Logger) *cobra.Command {
	flags := &storeFlags{}
	cmd := &cobra.Command{
		Use:   "documents <identity>",
		Short: "List the documents stored for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.open(logger)
			if err != nil {
				return err
			}
			folder := storage.FolderKey(flags.rootFolder(), args[0])
			keys, err := store.ListDocumentsInFolder(context.Background(), folder, storage.ShareSuffix)
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}
			return flags.print(cmd.OutOrStdout(), folder, keys)
		},
	}
	flags.register(cmd)
	return cmd
}
