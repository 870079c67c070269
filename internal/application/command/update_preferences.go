// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/preferences"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PREFERENCES COMMAND
// Updates the learner's interface language, tutor API key and the pending
// badge notification.
// ══════════════════════════════════════════════════════════════════════════════

// maxAPIKeyLength bounds a stored tutor API key.
const maxAPIKeyLength = 256

// UpdatePreferencesCommand contains the data to update preferences.
type UpdatePreferencesCommand struct {
	// Profile owns the preferences record.
	Profile shared.ProfileID

	// Updates contains the new values. Only non-nil values are applied.
	Updates PreferenceUpdates

	// CorrelationID for tracing.
	CorrelationID string
}

// PreferenceUpdates contains optional preference updates.
// nil values mean "don't change".
type PreferenceUpdates struct {
	// Language - "zh" or "en"; regional tags like "en-US" are accepted.
	Language *string

	// TutorAPIKey - an empty string removes the key.
	TutorAPIKey *string

	// DismissPendingBadge clears the badge notification once it was shown.
	DismissPendingBadge bool
}

// Validate validates the command.
func (c UpdatePreferencesCommand) Validate() error {
	if c.Profile == "" {
		return errors.New("update_preferences: profile is required")
	}
	if c.Updates.Language != nil {
		if _, ok := course.ParseLanguage(*c.Updates.Language); !ok {
			return shared.ErrUnsupportedLanguage
		}
	}
	if c.Updates.TutorAPIKey != nil && len(*c.Updates.TutorAPIKey) > maxAPIKeyLength {
		return shared.NewDomainError("preferences", "SetTutorAPIKey", shared.ErrValueOutOfRange, "api key is too long")
	}
	return nil
}

// UpdatePreferencesResult contains the result of updating preferences.
type UpdatePreferencesResult struct {
	// Profile is the updated profile.
	Profile shared.ProfileID

	// Preferences contains the final values. The API key is masked.
	Preferences preferences.View

	// ChangedFields lists which fields were changed.
	ChangedFields []string
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpdatePreferencesHandler handles the UpdatePreferencesCommand.
type UpdatePreferencesHandler struct {
	repo *preferences.Repository
}

// NewUpdatePreferencesHandler creates a new UpdatePreferencesHandler.
func NewUpdatePreferencesHandler(repo *preferences.Repository) *UpdatePreferencesHandler {
	return &UpdatePreferencesHandler{repo: repo}
}

// Handle executes the update preferences command.
func (h *UpdatePreferencesHandler) Handle(
	ctx context.Context,
	cmd UpdatePreferencesCommand,
) (*UpdatePreferencesResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_preferences: validation failed: %w", err)
	}

	var changedFields []string
	prefs, err := h.repo.UpdatePreferences(ctx, cmd.Profile, func(prefs *preferences.Preferences) (bool, error) {
		changedFields = make([]string, 0)

		if cmd.Updates.Language != nil {
			lang, _ := course.ParseLanguage(*cmd.Updates.Language)
			if lang != prefs.Language {
				if err := prefs.SetLanguage(lang); err != nil {
					return false, err
				}
				changedFields = append(changedFields, "language")
			}
		}

		if cmd.Updates.TutorAPIKey != nil {
			prev := prefs.TutorAPIKey
			prefs.SetTutorAPIKey(*cmd.Updates.TutorAPIKey)
			if prefs.TutorAPIKey != prev {
				changedFields = append(changedFields, "tutor_api_key")
			}
		}

		if cmd.Updates.DismissPendingBadge && prefs.PendingBadgeUnlock != nil {
			prefs.SetPendingBadge(nil)
			changedFields = append(changedFields, "pending_badge")
		}

		// Save changes only if something changed
		return len(changedFields) > 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update_preferences: %w", err)
	}

	return &UpdatePreferencesResult{
		Profile:       cmd.Profile,
		Preferences:   prefs.View(),
		ChangedFields: changedFields,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESET PREFERENCES COMMAND
// Resets preferences to defaults.
// ══════════════════════════════════════════════════════════════════════════════

// ResetPreferencesCommand resets all preferences to defaults.
type ResetPreferencesCommand struct {
	Profile       shared.ProfileID
	CorrelationID string
}

// ResetPreferencesHandler handles the ResetPreferencesCommand.
type ResetPreferencesHandler struct {
	repo *preferences.Repository
}

// NewResetPreferencesHandler creates a new handler.
func NewResetPreferencesHandler(repo *preferences.Repository) *ResetPreferencesHandler {
	return &ResetPreferencesHandler{repo: repo}
}

// Handle executes the reset preferences command.
func (h *ResetPreferencesHandler) Handle(
	ctx context.Context,
	cmd ResetPreferencesCommand,
) (*UpdatePreferencesResult, error) {
	if cmd.Profile == "" {
		return nil, errors.New("reset_preferences: profile is required")
	}

	prefs, err := h.repo.UpdatePreferences(ctx, cmd.Profile, func(p *preferences.Preferences) (bool, error) {
		*p = *preferences.Default()
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reset_preferences: failed to save: %w", err)
	}

	return &UpdatePreferencesResult{
		Profile:       cmd.Profile,
		Preferences:   prefs.View(),
		ChangedFields: []string{"all_reset_to_defaults"},
	}, nil
}
