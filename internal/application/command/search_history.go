package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/web3-hub/learning-hub/internal/domain/preferences"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH HISTORY COMMANDS
// Maintain the learner's recent search queries: newest first, no
// duplicates, at most preferences.MaxHistory entries.
// ══════════════════════════════════════════════════════════════════════════════

// SearchHistoryAction selects what a SearchHistoryCommand does.
type SearchHistoryAction string

const (
	SearchHistoryRecord SearchHistoryAction = "record"
	SearchHistoryRemove SearchHistoryAction = "remove"
	SearchHistoryClear  SearchHistoryAction = "clear"
)

// SearchHistoryCommand changes the search history of one profile.
type SearchHistoryCommand struct {
	Profile shared.ProfileID
	Action  SearchHistoryAction

	// Query is required for record and remove.
	Query string
}

// Validate validates the command.
func (c SearchHistoryCommand) Validate() error {
	if c.Profile == "" {
		return errors.New("search_history: profile is required")
	}
	switch c.Action {
	case SearchHistoryRecord, SearchHistoryRemove:
		if strings.TrimSpace(c.Query) == "" {
			return shared.NewDomainError("preferences", "SearchHistory", shared.ErrEmptyValue, "query is required")
		}
	case SearchHistoryClear:
	default:
		return shared.NewDomainError("preferences", "SearchHistory", shared.ErrInvalidInput, fmt.Sprintf("unknown action %q", c.Action))
	}
	return nil
}

// SearchHistoryResult contains the history after the change.
type SearchHistoryResult struct {
	Queries []string `json:"searchHistory"`
	Changed bool     `json:"changed"`
}

// SearchHistoryHandler handles SearchHistoryCommand.
type SearchHistoryHandler struct {
	repo *preferences.Repository
}

// NewSearchHistoryHandler creates a new handler.
func NewSearchHistoryHandler(repo *preferences.Repository) *SearchHistoryHandler {
	return &SearchHistoryHandler{repo: repo}
}

// Handle executes the command.
func (h *SearchHistoryHandler) Handle(ctx context.Context, cmd SearchHistoryCommand) (*SearchHistoryResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("search_history: validation failed: %w", err)
	}

	var changed bool
	history, err := h.repo.UpdateHistory(ctx, cmd.Profile, func(history *preferences.SearchHistory) (bool, error) {
		switch cmd.Action {
		case SearchHistoryRecord:
			before := strings.Join(history.Queries, "\x00")
			history.Add(cmd.Query)
			changed = strings.Join(history.Queries, "\x00") != before
		case SearchHistoryRemove:
			changed = history.Remove(strings.TrimSpace(cmd.Query))
		case SearchHistoryClear:
			changed = len(history.Queries) > 0
			history.Clear()
		}
		return changed, nil
	})
	if err != nil {
		return nil, fmt.Errorf("search_history: %w", err)
	}

	queries := history.Queries
	if queries == nil {
		queries = []string{}
	}
	return &SearchHistoryResult{Queries: queries, Changed: changed}, nil
}
