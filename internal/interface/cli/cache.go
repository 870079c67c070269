package cli

import (
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clean the lesson content cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Remove cached lessons older than the cache max age",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed := o.app.Content.CleanOldCache(cmd.Context())
			out := struct {
				Removed   int `json:"removed"`
				Remaining int `json:"remaining"`
			}{removed, o.app.Content.CacheSize()}
			return o.emit(cmd.OutOrStdout(), out, func(w io.Writer) error {
				printf(w, "Removed %d stale lesson(s), %d remaining\n", out.Removed, out.Remaining)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached lesson",
		RunE: func(cmd *cobra.Command, args []string) error {
			o.app.Content.ClearCache(cmd.Context())
			printf(cmd.OutOrStdout(), "Content cache cleared\n")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "size",
		Short: "Print the number of cached lessons",
		RunE: func(cmd *cobra.Command, args []string) error {
			size := o.app.Content.CacheSize()
			return o.emit(cmd.OutOrStdout(), map[string]int{"size": size}, func(w io.Writer) error {
				printf(w, "%d\n", size)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached lessons with their age",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := o.app.Content.CachedEntries()
			type row struct {
				Path      string    `json:"path"`
				FetchedAt time.Time `json:"fetchedAt"`
				Bytes     int       `json:"bytes"`
			}
			rows := make([]row, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, row{Path: e.Path, FetchedAt: e.FetchedAt, Bytes: len(e.Content)})
			}
			return o.emit(cmd.OutOrStdout(), rows, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				printf(tw, "PATH\tFETCHED\tBYTES\n")
				for _, r := range rows {
					printf(tw, "%s\t%s\t%d\n", r.Path, r.FetchedAt.Format(time.RFC3339), r.Bytes)
				}
				return tw.Flush()
			})
		},
	})

	return cmd
}
