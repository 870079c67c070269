// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/preferences"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH LESSONS QUERY
// Нечёткий поиск по названиям уроков на языке ученика.
// Запись в историю поиска делает команда SearchHistoryCommand.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultSearchLimit - сколько уроков возвращается по умолчанию.
	DefaultSearchLimit = 20

	// MaxSearchLimit - верхняя граница limit.
	MaxSearchLimit = 100
)

// SearchLessonsQuery содержит параметры поиска.
type SearchLessonsQuery struct {
	// Profile - чей язык использовать, если Language пуст.
	Profile shared.ProfileID

	// Query - строка поиска.
	Query string

	// Language - "zh" или "en". Пустая строка - язык из настроек.
	Language string

	// Limit - максимум результатов (по умолчанию 20).
	Limit int

	// Grouped - сгруппировать результаты по модулям.
	Grouped bool
}

// Validate нормализует параметры.
func (q *SearchLessonsQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
	if q.Language != "" {
		if _, ok := course.ParseLanguage(q.Language); !ok {
			return shared.ErrUnsupportedLanguage
		}
	}
	return nil
}

// SearchLessonsResult - результат поиска.
type SearchLessonsResult struct {
	Query    string               `json:"query"`
	Language course.Language      `json:"language"`
	Hits     []course.SearchHit   `json:"hits,omitempty"`
	Groups   []course.SearchGroup `json:"groups,omitempty"`
	Total    int                  `json:"total"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SearchLessonsHandler обрабатывает SearchLessonsQuery.
type SearchLessonsHandler struct {
	index *course.SearchIndex
	prefs *preferences.Repository
}

// NewSearchLessonsHandler создаёт обработчик. prefs может быть nil, тогда
// язык по умолчанию - course.DefaultLanguage.
func NewSearchLessonsHandler(index *course.SearchIndex, prefs *preferences.Repository) *SearchLessonsHandler {
	return &SearchLessonsHandler{index: index, prefs: prefs}
}

// Handle выполняет поиск. Пустой запрос даёт пустой результат, не ошибку.
func (h *SearchLessonsHandler) Handle(ctx context.Context, q SearchLessonsQuery) (*SearchLessonsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("search_lessons: %w", err)
	}

	lang, err := h.language(ctx, q)
	if err != nil {
		return nil, err
	}

	res := &SearchLessonsResult{Query: q.Query, Language: lang}
	if q.Query == "" {
		return res, nil
	}

	if q.Grouped {
		res.Groups = h.index.SearchGrouped(q.Query, lang, q.Limit)
		for _, g := range res.Groups {
			res.Total += len(g.Hits)
		}
		return res, nil
	}

	res.Hits = h.index.Search(q.Query, lang, q.Limit)
	res.Total = len(res.Hits)
	return res, nil
}

func (h *SearchLessonsHandler) language(ctx context.Context, q SearchLessonsQuery) (course.Language, error) {
	if q.Language != "" {
		lang, _ := course.ParseLanguage(q.Language)
		return lang, nil
	}
	if h.prefs == nil || q.Profile == "" {
		return course.DefaultLanguage, nil
	}
	p, err := h.prefs.LoadPreferences(ctx, q.Profile)
	if err != nil {
		return "", fmt.Errorf("search_lessons: load preferences: %w", err)
	}
	return p.Language, nil
}
