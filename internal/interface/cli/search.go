package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/web3-hub/learning-hub/internal/application/command"
	"github.com/web3-hub/learning-hub/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH
// ══════════════════════════════════════════════════════════════════════════════

func newSearchCmd(o *options) *cobra.Command {
	var (
		limit    int
		noRecord bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy-search lesson titles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			profile, err := o.profileID()
			if err != nil {
				return err
			}
			q := strings.Join(args, " ")

			res, err := o.app.SearchLessons.Handle(ctx, query.SearchLessonsQuery{
				Profile:  profile,
				Query:    q,
				Language: o.lang,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			if !noRecord && res.Query != "" {
				if _, err := o.app.SearchHistory.Handle(ctx, command.SearchHistoryCommand{
					Profile: profile,
					Action:  command.SearchHistoryRecord,
					Query:   q,
				}); err != nil {
					return err
				}
			}

			return o.emit(cmd.OutOrStdout(), res, func(w io.Writer) error {
				if res.Total == 0 {
					printf(w, "No lessons match %q\n", q)
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				printf(tw, "LESSON\tTITLE\n")
				for _, hit := range res.Hits {
					printf(tw, "%s\t%s\n", hit.Lesson.Key(), hit.Title)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", query.DefaultSearchLimit, "maximum number of results")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not add the query to the search history")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY
// ══════════════════════════════════════════════════════════════════════════════

func newHistoryCmd(o *options) *cobra.Command {
	var (
		remove   string
		clearAll bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or edit recent searches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			profile, err := o.profileID()
			if err != nil {
				return err
			}

			var queries []string
			switch {
			case clearAll || remove != "":
				c := command.SearchHistoryCommand{Profile: profile, Action: command.SearchHistoryClear}
				if remove != "" {
					c.Action = command.SearchHistoryRemove
					c.Query = remove
				}
				res, err := o.app.SearchHistory.Handle(ctx, c)
				if err != nil {
					return err
				}
				queries = res.Queries
			default:
				history, err := o.app.Preferences.LoadHistory(ctx, profile)
				if err != nil {
					return err
				}
				queries = history.Queries
			}

			return o.emit(cmd.OutOrStdout(), queries, func(w io.Writer) error {
				for i, q := range queries {
					printf(w, "%d. %s\n", i+1, q)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&remove, "remove", "", "remove one query")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "remove every query")
	cmd.MarkFlagsMutuallyExclusive("remove", "clear")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCES
// ══════════════════════════════════════════════════════════════════════════════

func newPrefsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := o.profileID()
			if err != nil {
				return err
			}
			dto, err := o.app.GetPreferences.Handle(cmd.Context(), query.GetPreferencesQuery{Profile: profile})
			if err != nil {
				return err
			}
			return o.emit(cmd.OutOrStdout(), dto, func(w io.Writer) error {
				printf(w, "Language:  %s\n", dto.Language)
				key := "not set"
				if dto.APIKeySet {
					key = dto.MaskedAPIKey
				}
				printf(w, "Tutor key: %s\n", key)
				if len(dto.SearchHistory) > 0 {
					printf(w, "Recent:    %s\n", strings.Join(dto.SearchHistory, ", "))
				}
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <language|tutor-key> <value>",
		Short: "Change one preference; an empty tutor-key removes the key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := o.profileID()
			if err != nil {
				return err
			}

			var updates command.PreferenceUpdates
			value := args[1]
			switch args[0] {
			case "language", "lang":
				updates.Language = &value
			case "tutor-key":
				updates.TutorAPIKey = &value
			default:
				return fmt.Errorf("unknown preference %q: expected language or tutor-key", args[0])
			}

			res, err := o.app.UpdatePreferences.Handle(cmd.Context(), command.UpdatePreferencesCommand{
				Profile: profile,
				Updates: updates,
			})
			if err != nil {
				return err
			}
			return o.emit(cmd.OutOrStdout(), res.Preferences, func(w io.Writer) error {
				if len(res.ChangedFields) == 0 {
					printf(w, "Nothing changed\n")
					return nil
				}
				printf(w, "Updated: %s\n", strings.Join(res.ChangedFields, ", "))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Restore default preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := o.profileID()
			if err != nil {
				return err
			}
			if _, err := o.app.ResetPreferences.Handle(cmd.Context(), command.ResetPreferencesCommand{Profile: profile}); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Preferences reset\n")
			return nil
		},
	})
	return cmd
}
