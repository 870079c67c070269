// Package progress содержит чистые переходы состояния прогресса ученика:
// завершение уроков, опыт, звания, серию дней и бейджи.
//
// Пакет ничего не знает о хранилище. Контейнер состояния в application слое
// вызывает переходы под мьютексом и затем явно сохраняет State.
package progress

import (
	"time"

	"github.com/web3-hub/learning-hub/internal/domain/shared"
	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// LessonXP начисляется за первое завершение урока.
	LessonXP = 100

	// BadgeXP начисляется за первое получение бейджа.
	BadgeXP = 200
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// QuizScore - результат теста по уроку.
type QuizScore struct {
	Score     int  `json:"score"`
	Total     int  `json:"total"`
	IsPerfect bool `json:"isPerfect"`
}

// ModuleProgress - доля завершённых уроков из переданного списка.
type ModuleProgress struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// State - полная запись прогресса одного ученика. Сериализуется целиком
// под ключом web3-user-store.
type State struct {
	// WalletAddress - подключённый кошелёк, пустая строка если не подключён.
	WalletAddress string `json:"address"`
	Connected     bool   `json:"connected"`

	// Progress - завершённые уроки по составному ключу. Значение никогда не
	// возвращается в false.
	Progress map[string]bool `json:"progress"`

	// EarnedBadges - полученные бейджи. Запись неизменна после создания.
	EarnedBadges map[string]EarnedBadge `json:"earnedBadges"`

	TotalExperience int    `json:"totalExperience"`
	UserTitle       Title  `json:"userTitle"`
	StudyStreak     int    `json:"studyStreak"`
	LastStudyDate   string `json:"lastStudyDate,omitempty"`

	// QuizScores - результаты тестов по ID урока (без префикса модуля).
	QuizScores map[string]QuizScore `json:"quizScores"`

	// FirstActivityTimestamp - момент первого завершённого урока.
	FirstActivityTimestamp *time.Time `json:"firstActivityTimestamp,omitempty"`
}

// New возвращает пустое состояние нового ученика.
func New() *State {
	return &State{
		Progress:     make(map[string]bool),
		EarnedBadges: make(map[string]EarnedBadge),
		QuizScores:   make(map[string]QuizScore),
		UserTitle:    TitleNovice,
	}
}

// Normalize восстанавливает пустые карты после декодирования старой записи
// и пересчитывает звание.
func (s *State) Normalize() {
	if s.Progress == nil {
		s.Progress = make(map[string]bool)
	}
	if s.EarnedBadges == nil {
		s.EarnedBadges = make(map[string]EarnedBadge)
	}
	if s.QuizScores == nil {
		s.QuizScores = make(map[string]QuizScore)
	}
	if s.TotalExperience < 0 {
		s.TotalExperience = 0
	}
	if s.StudyStreak < 0 {
		s.StudyStreak = 0
	}
	s.UserTitle = TitleFor(s.TotalExperience)
}

// Clone возвращает глубокую копию состояния.
func (s *State) Clone() *State {
	c := *s
	c.Progress = make(map[string]bool, len(s.Progress))
	for k, v := range s.Progress {
		c.Progress[k] = v
	}
	c.EarnedBadges = make(map[string]EarnedBadge, len(s.EarnedBadges))
	for k, v := range s.EarnedBadges {
		c.EarnedBadges[k] = v
	}
	c.QuizScores = make(map[string]QuizScore, len(s.QuizScores))
	for k, v := range s.QuizScores {
		c.QuizScores[k] = v
	}
	if s.FirstActivityTimestamp != nil {
		t := *s.FirstActivityTimestamp
		c.FirstActivityTimestamp = &t
	}
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSONS
// ══════════════════════════════════════════════════════════════════════════════

// MarkLessonComplete отмечает урок завершённым. Повторный вызов ничего не
// меняет. Возвращает true, если состояние изменилось.
func (s *State) MarkLessonComplete(lessonKey string, now time.Time, cal timeutil.Calendar) bool {
	if !s.CompleteLesson(lessonKey, now) {
		return false
	}
	s.UpdateStudyStreak(now, cal)
	return true
}

// CompleteLesson - MarkLessonComplete без обновления серии дней. Используется,
// когда серии отключены.
func (s *State) CompleteLesson(lessonKey string, now time.Time) bool {
	if lessonKey == "" || s.Progress[lessonKey] {
		return false
	}

	s.Progress[lessonKey] = true
	s.TotalExperience += LessonXP
	if s.FirstActivityTimestamp == nil {
		t := now
		s.FirstActivityTimestamp = &t
	}
	s.UserTitle = TitleFor(s.TotalExperience)
	return true
}

// GetLessonProgress сообщает, завершён ли урок.
func (s *State) GetLessonProgress(lessonKey string) bool {
	return s.Progress[lessonKey]
}

// GetModuleProgress считает завершённые уроки из списка. Для пустого списка
// процент равен 0.
func (s *State) GetModuleProgress(lessonKeys []string) ModuleProgress {
	mp := ModuleProgress{Total: len(lessonKeys)}
	for _, k := range lessonKeys {
		if s.Progress[k] {
			mp.Completed++
		}
	}
	if mp.Total > 0 {
		mp.Percentage = float64(mp.Completed) / float64(mp.Total) * 100
	}
	return mp
}

// CompletedCount - число завершённых уроков.
func (s *State) CompletedCount() int {
	n := 0
	for _, done := range s.Progress {
		if done {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPERIENCE & STREAK
// ══════════════════════════════════════════════════════════════════════════════

// AddExperience начисляет опыт напрямую и пересчитывает звание.
// Отрицательная сумма отклоняется: опыт только растёт.
func (s *State) AddExperience(amount int) error {
	if amount < 0 {
		return shared.ErrNegativeXP
	}
	s.TotalExperience += amount
	s.UserTitle = TitleFor(s.TotalExperience)
	return nil
}

// UpdateStudyStreak обновляет серию по календарным дням cal:
// сегодня уже учились - без изменений, вчера - +1, иначе серия = 1.
// Возвращает true, если серия или дата изменились.
func (s *State) UpdateStudyStreak(now time.Time, cal timeutil.Calendar) bool {
	last, err := cal.ParseDate(s.LastStudyDate)
	switch {
	case err != nil:
		// Пустая или испорченная дата начинает серию заново.
		s.StudyStreak = 1
	case cal.IsSameDay(last, now):
		return false
	case cal.IsConsecutiveDay(last, now):
		s.StudyStreak++
	default:
		s.StudyStreak = 1
	}
	s.LastStudyDate = cal.DateString(now)
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// EarnBadge выдаёт бейдж и начисляет BadgeXP. Уже полученный бейдж не
// перезаписывается. Возвращает true, если бейдж выдан сейчас.
func (s *State) EarnBadge(badgeID, moduleID string, meta BadgeMetadata, now time.Time) bool {
	if badgeID == "" {
		return false
	}
	if _, ok := s.EarnedBadges[badgeID]; ok {
		return false
	}
	if meta == nil {
		meta = ManualBadgeMetadata{}
	}
	s.EarnedBadges[badgeID] = EarnedBadge{
		ModuleID:  moduleID,
		Timestamp: now,
		Metadata:  meta,
	}
	s.TotalExperience += BadgeXP
	s.UserTitle = TitleFor(s.TotalExperience)
	return true
}

// HasBadge сообщает, получен ли бейдж.
func (s *State) HasBadge(badgeID string) bool {
	_, ok := s.EarnedBadges[badgeID]
	return ok
}

// GetBadgeCount - число полученных бейджей.
func (s *State) GetBadgeCount() int {
	return len(s.EarnedBadges)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ
// ══════════════════════════════════════════════════════════════════════════════

// RecordQuizScore сохраняет результат теста, перезаписывая прежний.
func (s *State) RecordQuizScore(lessonID string, score, total int) (QuizScore, error) {
	if lessonID == "" || total < 0 || score < 0 || score > total {
		return QuizScore{}, shared.ErrInvalidQuizScore
	}
	qs := QuizScore{
		Score:     score,
		Total:     total,
		IsPerfect: total > 0 && score == total,
	}
	s.QuizScores[lessonID] = qs
	return qs, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WALLET & RESET
// ══════════════════════════════════════════════════════════════════════════════

// ConnectWallet запоминает адрес подключённого кошелька.
func (s *State) ConnectWallet(address string) {
	s.WalletAddress = address
	s.Connected = address != ""
}

// DisconnectWallet забывает кошелёк.
func (s *State) DisconnectWallet() {
	s.WalletAddress = ""
	s.Connected = false
}

// Reset стирает учебный прогресс. Подключённый кошелёк сохраняется.
func (s *State) Reset() {
	wallet, connected := s.WalletAddress, s.Connected
	*s = *New()
	s.WalletAddress, s.Connected = wallet, connected
}

// ══════════════════════════════════════════════════════════════════════════════
// READ ACCESSORS
// ══════════════════════════════════════════════════════════════════════════════

// QuizScore возвращает результат теста урока.
func (s *State) QuizScore(lessonID string) (QuizScore, bool) {
	qs, ok := s.QuizScores[lessonID]
	return qs, ok
}

// FirstActivity возвращает момент первой активности.
func (s *State) FirstActivity() (time.Time, bool) {
	if s.FirstActivityTimestamp == nil {
		return time.Time{}, false
	}
	return *s.FirstActivityTimestamp, true
}
