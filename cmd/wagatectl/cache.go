package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/wagate/internal/media"
	"github.com/memohai/wagate/internal/storage"
)

func cacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Media cache maintenance",
	}
	cmd.AddCommand(cacheStatsCmd(opts))
	cmd.AddCommand(cachePruneCmd(opts))
	cmd.AddCommand(cacheShowCmd(opts))
	cmd.AddCommand(cacheDeleteCmd(opts))
	return cmd
}

func parseNamespace(raw string) (storage.Namespace, error) {
	for _, ns := range storage.Namespaces {
		if string(ns) == raw {
			return ns, nil
		}
	}
	return "", fmt.Errorf("unknown namespace %q (want messages or photos)", raw)
}

// cacheKey maps a user supplied id to its cache key. Photo keys are stored
// under the sanitized chat id.
func cacheKey(ns storage.Namespace, id string) string {
	if ns == storage.NamespacePhotos {
		return media.Sanitize(id)
	}
	return id
}

func cacheStatsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record counts and sizes per namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			all := make([]storage.Stats, 0, len(storage.Namespaces))
			for _, ns := range storage.Namespaces {
				st, err := store.Stats(cmd.Context(), ns)
				if err != nil {
					return fmt.Errorf("stats %s: %w", ns, err)
				}
				all = append(all, st)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(all)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAMESPACE\tRECORDS\tBYTES\tORPHANS")
			for _, st := range all {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", st.Namespace, st.Records, st.Bytes, st.Orphans)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func cachePruneCmd(opts *rootOptions) *cobra.Command {
	var (
		olderThan time.Duration
		namespace string
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete cached media last written before --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			namespaces := storage.Namespaces
			if namespace != "" {
				ns, err := parseNamespace(namespace)
				if err != nil {
					return err
				}
				namespaces = []storage.Namespace{ns}
			}
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			cutoff := time.Now().Add(-olderThan)
			for _, ns := range namespaces {
				res, err := store.Prune(cmd.Context(), ns, cutoff)
				if err != nil {
					return fmt.Errorf("prune %s: %w", ns, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d records, %d orphans\n", ns, res.Records, res.Orphans)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "minimum age of removed entries, e.g. 168h")
	cmd.Flags().StringVar(&namespace, "namespace", "", "limit to one namespace (messages or photos)")
	_ = cmd.MarkFlagRequired("older-than")
	return cmd
}

func cacheShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <namespace> <id>",
		Short: "Print the metadata of one cached record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			rec, ok, err := store.Find(cmd.Context(), ns, cacheKey(ns, args[1]))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s/%s is not cached", ns, args[1])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}

func cacheDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <namespace> <id>",
		Short: "Remove one cached record so the next request refetches it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(opts)
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), ns, cacheKey(ns, args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s\n", ns, args[1])
			return nil
		},
	}
}
