package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/web3-hub/learning-hub/internal/application/query"
	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/progress"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULE
// ══════════════════════════════════════════════════════════════════════════════

func newModuleCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "module",
		Short: "Inspect module progress",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "progress [module-id]",
		Short: "Show completed lessons per module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			profile, err := o.profileID()
			if err != nil {
				return err
			}
			lang := o.language(ctx, profile)

			modules := o.app.Catalog.Modules()
			if len(args) == 1 {
				m, ok := o.app.Catalog.Module(args[0])
				if !ok {
					return shared.NewDomainError("course", "Module", shared.ErrNotFound, fmt.Sprintf("unknown module %q", args[0]))
				}
				modules = []course.Module{m}
			}

			type row struct {
				ModuleID string `json:"moduleId"`
				Title    string `json:"title"`
				progress.ModuleProgress
			}
			rows := make([]row, 0, len(modules))
			for _, m := range modules {
				mp, err := o.app.Progress.GetModuleProgress(ctx, profile, m.LessonKeys())
				if err != nil {
					return err
				}
				rows = append(rows, row{ModuleID: m.ID, Title: m.Title.In(lang), ModuleProgress: mp})
			}

			return o.emit(cmd.OutOrStdout(), rows, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				printf(tw, "MODULE\tTITLE\tDONE\tPERCENT\n")
				for _, r := range rows {
					printf(tw, "%s\t%s\t%d/%d\t%.0f%%\n", r.ModuleID, r.Title, r.Completed, r.Total, r.Percentage)
				}
				return tw.Flush()
			})
		},
	})
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE
// ══════════════════════════════════════════════════════════════════════════════

func newBadgeCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "badge",
		Short: "List and earn badges",
	}
	cmd.AddCommand(newBadgeListCmd(o))
	cmd.AddCommand(newBadgeEarnCmd(o))
	return cmd
}

func newBadgeListCmd(o *options) *cobra.Command {
	var earnedOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every badge and whether it is earned",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			profile, err := o.profileID()
			if err != nil {
				return err
			}
			lang := o.language(ctx, profile)

			st, err := o.app.Progress.Snapshot(ctx, profile)
			if err != nil {
				return err
			}

			type row struct {
				ID     string        `json:"id"`
				Title  string        `json:"title"`
				Rarity course.Rarity `json:"rarity"`
				Earned bool          `json:"earned"`
			}
			var rows []row
			for _, b := range o.app.Catalog.Badges() {
				earned := st.HasBadge(b.ID)
				if earnedOnly && !earned {
					continue
				}
				rows = append(rows, row{ID: b.ID, Title: b.Title.In(lang), Rarity: b.Rarity, Earned: earned})
			}

			return o.emit(cmd.OutOrStdout(), rows, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				printf(tw, "BADGE\tTITLE\tRARITY\tEARNED\n")
				for _, r := range rows {
					mark := "-"
					if r.Earned {
						mark = "yes"
					}
					printf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Title, r.Rarity, mark)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&earnedOnly, "earned", false, "show earned badges only")
	return cmd
}

func newBadgeEarnCmd(o *options) *cobra.Command {
	var moduleID string

	cmd := &cobra.Command{
		Use:   "earn <badge-id>",
		Short: "Grant a badge manually",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := o.profileID()
			if err != nil {
				return err
			}
			if moduleID == "" {
				if def, ok := o.app.Catalog.Badge(args[0]); ok {
					moduleID = def.ModuleID
				}
			}

			award, err := o.app.Progress.EarnBadge(cmd.Context(), profile, args[0], moduleID, nil)
			if err != nil {
				return err
			}
			return o.emit(cmd.OutOrStdout(), award, func(w io.Writer) error {
				if !award.Newly {
					printf(w, "%s was already earned\n", award.BadgeID)
					return nil
				}
				printf(w, "Earned %s: +%d XP (total %d)\n", award.BadgeID, progress.BadgeXP, award.TotalExperience)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&moduleID, "module", "", "module the badge belongs to (default from the catalog)")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ
// ══════════════════════════════════════════════════════════════════════════════

func newQuizCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Record quiz results",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "record <lesson-id> <score> <total>",
		Short: "Record the score of a lesson quiz",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			profile, err := o.profileID()
			if err != nil {
				return err
			}
			score, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("score: %w", err)
			}
			total, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("total: %w", err)
			}

			qs, badges, err := o.app.Progress.RecordQuizScore(ctx, profile, args[0], score, total)
			if err != nil {
				return err
			}

			out := struct {
				LessonID string `json:"lessonId"`
				progress.QuizScore
				BadgesEarned []course.BadgeDefinition `json:"badgesEarned"`
			}{args[0], qs, badges}
			lang := o.language(ctx, profile)
			return o.emit(cmd.OutOrStdout(), out, func(w io.Writer) error {
				printf(w, "Quiz %s: %d/%d", args[0], qs.Score, qs.Total)
				if qs.IsPerfect {
					printf(w, " (perfect)")
				}
				printf(w, "\n")
				for _, b := range badges {
					printf(w, "Badge unlocked: %s (%s)\n", b.Title.In(lang), b.Rarity)
				}
				return nil
			})
		},
	})
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS & RESET
// ══════════════════════════════════════════════════════════════════════════════

func newStatsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show experience, title, streak and badges",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			profile, err := o.profileID()
			if err != nil {
				return err
			}
			stats, err := o.app.LearnerStats.Handle(ctx, query.GetLearnerStatsQuery{
				Profile:  profile,
				Language: o.language(ctx, profile),
			})
			if err != nil {
				return err
			}

			return o.emit(cmd.OutOrStdout(), stats, func(w io.Writer) error {
				printf(w, "Learner Statistics (%s)\n", profile)
				printf(w, "==================\n\n")
				printf(w, "Experience:    %d XP\n", stats.TotalExperience)
				printf(w, "Title:         %s\n", stats.TitleName)
				if stats.NextTitleXP > 0 {
					printf(w, "Next title at: %d XP\n", stats.NextTitleXP)
				}
				printf(w, "Study streak:  %d day(s)\n", stats.StudyStreak)
				printf(w, "Lessons:       %d/%d (%.0f%%)\n", stats.CompletedLessons, stats.TotalLessons, stats.Percentage)
				printf(w, "Badges:        %d\n", len(stats.Badges))
				printf(w, "Quizzes:       %d taken, %d perfect\n", stats.QuizzesTaken, stats.PerfectQuizzes)
				if stats.Connected {
					printf(w, "Wallet:        %s\n", stats.WalletAddress)
				}
				return nil
			})
		},
	}
}

func newResetCmd(o *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase lesson progress, badges, experience and quiz scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset erases all progress; pass --yes to confirm")
			}
			profile, err := o.profileID()
			if err != nil {
				return err
			}
			if err := o.app.Progress.ResetProgress(cmd.Context(), profile); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Progress of %s reset\n", profile)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
