package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/wagate/internal/boot"
	"github.com/memohai/wagate/internal/config"
	"github.com/memohai/wagate/internal/logger"
	"github.com/memohai/wagate/internal/storage"
	"github.com/memohai/wagate/internal/version"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "wagatectl",
		Short:         "Inspect and maintain the wagate media cache",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config.toml")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log store activity to stderr")

	root.AddCommand(cacheCmd(opts))
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wagatectl %s\n", info.Version)
			if err == nil && info.Commit != "" {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "commit %s\n", info.Commit)
			}
			return err
		},
	}
}

// openStore opens the file store the server is configured with.
func openStore(opts *rootOptions) (*storage.FSStore, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	rc, err := boot.ProvideRuntimeConfig(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.Discard()
	if opts.verbose {
		log = logger.New(os.Stderr, "debug", cfg.Log.Format)
	}
	store := storage.NewFSStore(log.With(slog.String("cmd", "wagatectl")), map[storage.Namespace]string{
		storage.NamespaceMessages: rc.MessageDir,
		storage.NamespacePhotos:   rc.PhotoDir,
	})
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("init media store: %w", err)
	}
	return store, nil
}
