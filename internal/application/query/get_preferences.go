package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/web3-hub/learning-hub/internal/domain/preferences"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PREFERENCES QUERY
// Настройки и история поиска ученика. Ключ ИИ-помощника не покидает сервер:
// отдаётся только маска.
// ══════════════════════════════════════════════════════════════════════════════

// GetPreferencesQuery содержит параметры запроса.
type GetPreferencesQuery struct {
	Profile shared.ProfileID
}

// PreferencesDTO - настройки и история поиска.
type PreferencesDTO struct {
	preferences.View
	SearchHistory []string `json:"searchHistory"`
}

// GetPreferencesHandler обрабатывает GetPreferencesQuery.
type GetPreferencesHandler struct {
	repo *preferences.Repository
}

// NewGetPreferencesHandler создаёт обработчик.
func NewGetPreferencesHandler(repo *preferences.Repository) *GetPreferencesHandler {
	return &GetPreferencesHandler{repo: repo}
}

// Handle загружает обе записи профиля.
func (h *GetPreferencesHandler) Handle(ctx context.Context, q GetPreferencesQuery) (*PreferencesDTO, error) {
	if q.Profile == "" {
		return nil, errors.New("get_preferences: profile must be provided")
	}

	prefs, err := h.repo.LoadPreferences(ctx, q.Profile)
	if err != nil {
		return nil, fmt.Errorf("get_preferences: load preferences: %w", err)
	}
	history, err := h.repo.LoadHistory(ctx, q.Profile)
	if err != nil {
		return nil, fmt.Errorf("get_preferences: load history: %w", err)
	}

	queries := history.Queries
	if queries == nil {
		queries = []string{}
	}
	return &PreferencesDTO{View: prefs.View(), SearchHistory: queries}, nil
}
