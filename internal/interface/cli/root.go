// Package cli implements academyctl, the local learner's command line: read
// lessons, record progress and quiz scores, inspect badges and manage the
// content cache. State lives in the configured key-value backend, so a
// learner keeps progress between runs.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/web3-hub/learning-hub/internal/app"
	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// Factory builds the application for one command run.
type Factory func(ctx context.Context) (*app.App, error)

// options are the persistent flags plus the application of the running
// command.
type options struct {
	factory Factory

	profile string
	lang    string
	asJSON  bool

	app *app.App
}

// Execute runs academyctl with args. The application is closed and the
// content cache saved even when the command fails.
func Execute(ctx context.Context, factory Factory, args []string, stdout, stderr io.Writer) (err error) {
	o := &options{factory: factory}
	root := newRootCmd(o)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	defer func() {
		if closeErr := o.close(); err == nil {
			err = closeErr
		}
	}()
	return root.ExecuteContext(ctx)
}

// newRootCmd creates the academyctl command tree.
func newRootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "academyctl",
		Short: "Learn Web3 and Bitcoin from the terminal",
		Long: `Read lessons and track your progress through the Web3 course.

academyctl provides tools to:
- Read lesson content (cached, with a local mirror and the remote origin)
- Mark lessons complete and follow module progress
- Record quiz scores and earn badges
- Search lessons and manage preferences
- Inspect and clean the content cache`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.factory(cmd.Context())
			if err != nil {
				return err
			}
			o.app = a
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&o.profile, "profile", "p", "", "learner profile (default from APP_DEFAULT_PROFILE)")
	root.PersistentFlags().StringVar(&o.lang, "lang", "", "display language: zh or en (default from preferences)")
	root.PersistentFlags().BoolVar(&o.asJSON, "json", false, "print JSON instead of text")

	root.AddCommand(newLessonCmd(o))
	root.AddCommand(newModuleCmd(o))
	root.AddCommand(newBadgeCmd(o))
	root.AddCommand(newQuizCmd(o))
	root.AddCommand(newStatsCmd(o))
	root.AddCommand(newResetCmd(o))
	root.AddCommand(newCacheCmd(o))
	root.AddCommand(newSearchCmd(o))
	root.AddCommand(newHistoryCmd(o))
	root.AddCommand(newPrefsCmd(o))

	return root
}

// close persists the content cache and releases the application.
func (o *options) close() error {
	if o.app == nil {
		return nil
	}
	a := o.app
	o.app = nil

	ctx, cancel := a.ShutdownContext()
	defer cancel()
	saveErr := a.Content.Save(ctx)
	if err := a.Close(); err != nil {
		return err
	}
	return saveErr
}

// profileID resolves --profile, falling back to the configured default.
func (o *options) profileID() (shared.ProfileID, error) {
	if o.profile == "" {
		return o.app.DefaultProfile()
	}
	return shared.NewProfileID(o.profile)
}

// language resolves --lang, then the stored preference.
func (o *options) language(ctx context.Context, profile shared.ProfileID) course.Language {
	if lang, ok := course.ParseLanguage(o.lang); ok {
		return lang
	}
	prefs, err := o.app.Preferences.LoadPreferences(ctx, profile)
	if err == nil && prefs.Language.IsValid() {
		return prefs.Language
	}
	return course.DefaultLanguage
}

// emit prints v as JSON when --json is set, otherwise runs text.
func (o *options) emit(w io.Writer, v any, text func(w io.Writer) error) error {
	if o.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
