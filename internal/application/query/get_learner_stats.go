package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/progress"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEARNER STATS QUERY
// Сводка прогресса ученика для страницы профиля: опыт и звание, серия,
// прогресс по модулям, бейджи и тесты.
// ══════════════════════════════════════════════════════════════════════════════

// GetLearnerStatsQuery содержит параметры запроса.
type GetLearnerStatsQuery struct {
	// Profile - чей прогресс показать.
	Profile shared.ProfileID

	// Language - язык названий (по умолчанию course.DefaultLanguage).
	Language course.Language
}

// Validate проверяет корректность параметров.
func (q *GetLearnerStatsQuery) Validate() error {
	if q.Profile == "" {
		return errors.New("profile must be provided")
	}
	if !q.Language.IsValid() {
		q.Language = course.DefaultLanguage
	}
	return nil
}

// LearnerStatsDTO - DTO сводки.
type LearnerStatsDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Опыт и звание
	// ─────────────────────────────────────────────────────────────────────────

	TotalExperience int            `json:"totalExperience"`
	Title           progress.Title `json:"userTitle"`
	TitleName       string         `json:"userTitleName"`

	// NextTitleXP - опыт следующего звания, 0 для высшего.
	NextTitleXP int `json:"nextTitleXp,omitempty"`

	// ─────────────────────────────────────────────────────────────────────────
	// Активность
	// ─────────────────────────────────────────────────────────────────────────

	StudyStreak   int        `json:"studyStreak"`
	LastStudyDate string     `json:"lastStudyDate,omitempty"`
	FirstActivity *time.Time `json:"firstActivity,omitempty"`

	// ─────────────────────────────────────────────────────────────────────────
	// Уроки
	// ─────────────────────────────────────────────────────────────────────────

	CompletedLessons int                 `json:"completedLessons"`
	TotalLessons     int                 `json:"totalLessons"`
	Percentage       float64             `json:"percentage"`
	Modules          []ModuleProgressDTO `json:"modules"`

	// ─────────────────────────────────────────────────────────────────────────
	// Бейджи и тесты
	// ─────────────────────────────────────────────────────────────────────────

	Badges         []EarnedBadgeDTO `json:"badges"`
	QuizzesTaken   int              `json:"quizzesTaken"`
	PerfectQuizzes int              `json:"perfectQuizzes"`

	// ─────────────────────────────────────────────────────────────────────────
	// Кошелёк
	// ─────────────────────────────────────────────────────────────────────────

	WalletAddress string `json:"address,omitempty"`
	Connected     bool   `json:"connected"`
}

// ModuleProgressDTO - прогресс одного модуля.
type ModuleProgressDTO struct {
	ModuleID   string  `json:"moduleId"`
	Title      string  `json:"title"`
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`

	// BadgeID пуст у модулей без бейджа.
	BadgeID     string `json:"badgeId,omitempty"`
	BadgeEarned bool   `json:"badgeEarned"`
}

// EarnedBadgeDTO - полученный бейдж с данными из каталога.
type EarnedBadgeDTO struct {
	BadgeID  string                `json:"badgeId"`
	Name     string                `json:"name"`
	Title    string                `json:"title"`
	Rarity   course.Rarity         `json:"rarity,omitempty"`
	ModuleID string                `json:"moduleId"`
	Kind     progress.MetadataKind `json:"kind"`
	EarnedAt time.Time             `json:"earnedAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetLearnerStatsHandler обрабатывает GetLearnerStatsQuery.
type GetLearnerStatsHandler struct {
	repo    progress.Repository
	catalog *course.Catalog
}

// NewGetLearnerStatsHandler создаёт обработчик.
func NewGetLearnerStatsHandler(repo progress.Repository, catalog *course.Catalog) *GetLearnerStatsHandler {
	return &GetLearnerStatsHandler{repo: repo, catalog: catalog}
}

// Handle собирает сводку.
func (h *GetLearnerStatsHandler) Handle(ctx context.Context, q GetLearnerStatsQuery) (*LearnerStatsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_learner_stats: %w", err)
	}

	st, err := h.repo.Load(ctx, q.Profile)
	if err != nil {
		return nil, fmt.Errorf("get_learner_stats: load progress: %w", err)
	}

	dto := &LearnerStatsDTO{
		TotalExperience: st.TotalExperience,
		Title:           st.UserTitle,
		TitleName:       st.UserTitle.Name(q.Language),
		StudyStreak:     st.StudyStreak,
		LastStudyDate:   st.LastStudyDate,
		FirstActivity:   st.FirstActivityTimestamp,
		TotalLessons:    h.catalog.LessonCount(),
		WalletAddress:   st.WalletAddress,
		Connected:       st.Connected,
	}
	if next, ok := progress.NextThreshold(st.TotalExperience); ok {
		dto.NextTitleXP = next
	}

	dto.Modules = h.modules(st, q.Language)
	for _, m := range dto.Modules {
		dto.CompletedLessons += m.Completed
	}
	if dto.TotalLessons > 0 {
		dto.Percentage = float64(dto.CompletedLessons) * 100 / float64(dto.TotalLessons)
	}

	dto.Badges = h.badges(st, q.Language)

	for _, qs := range st.QuizScores {
		dto.QuizzesTaken++
		if qs.IsPerfect {
			dto.PerfectQuizzes++
		}
	}

	return dto, nil
}

// modules считает только уроки каталога; ключи вне каталога в процент не
// входят.
func (h *GetLearnerStatsHandler) modules(st *progress.State, lang course.Language) []ModuleProgressDTO {
	out := make([]ModuleProgressDTO, 0, len(h.catalog.Modules()))
	for _, m := range h.catalog.Modules() {
		mp := st.GetModuleProgress(m.LessonKeys())
		dto := ModuleProgressDTO{
			ModuleID:   m.ID,
			Title:      m.Title.In(lang),
			Completed:  mp.Completed,
			Total:      mp.Total,
			Percentage: mp.Percentage,
		}
		if b, ok := h.catalog.ModuleBadge(m.ID); ok {
			dto.BadgeID = b.ID
			dto.BadgeEarned = st.HasBadge(b.ID)
		}
		out = append(out, dto)
	}
	return out
}

// badges сортирует по времени получения; бейджи вне каталога показываются
// по ID.
func (h *GetLearnerStatsHandler) badges(st *progress.State, lang course.Language) []EarnedBadgeDTO {
	out := make([]EarnedBadgeDTO, 0, len(st.EarnedBadges))
	for id, eb := range st.EarnedBadges {
		dto := EarnedBadgeDTO{
			BadgeID:  id,
			Name:     id,
			Title:    id,
			ModuleID: eb.ModuleID,
			EarnedAt: eb.Timestamp,
		}
		if eb.Metadata != nil {
			dto.Kind = eb.Metadata.Kind()
		}
		if def, ok := h.catalog.Badge(id); ok {
			dto.Name = def.Name
			dto.Title = def.Title.In(lang)
			dto.Rarity = def.Rarity
		}
		out = append(out, dto)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.Before(out[j].EarnedAt)
		}
		return out[i].BadgeID < out[j].BadgeID
	})
	return out
}
