// Package achievement решает, когда открываются бейджи модулей и особые
// бейджи. Движок только читает прогресс и просит выдать бейдж через
// BadgeAwarder; сам он состояние не меняет.
package achievement

import (
	"time"

	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/progress"
	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// LaunchEpoch - момент запуска платформы для бейджа early-adopter.
	LaunchEpoch = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
)

const (
	// SpeedRunWindow - за сколько нужно пройти весь курс от первой активности.
	SpeedRunWindow = 24 * time.Hour

	// EarlyAdopterWindow - длина окна после запуска.
	EarlyAdopterWindow = 7 * timeutil.Day

	// SpecialModuleID записывается в EarnedBadge.ModuleID для особых бейджей.
	SpecialModuleID = "special"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// ProgressView - то, что движку нужно знать о прогрессе.
// *progress.State реализует его.
type ProgressView interface {
	GetLessonProgress(lessonKey string) bool
	HasBadge(badgeID string) bool
	QuizScore(lessonID string) (progress.QuizScore, bool)
	FirstActivity() (time.Time, bool)
}

// BadgeAwarder выдаёт бейдж. Возвращает true, если бейдж выдан сейчас.
type BadgeAwarder interface {
	EarnBadge(badgeID, moduleID string, meta progress.BadgeMetadata) bool
}

// AwarderFunc адаптирует функцию к BadgeAwarder.
type AwarderFunc func(badgeID, moduleID string, meta progress.BadgeMetadata) bool

// EarnBadge реализует BadgeAwarder.
func (f AwarderFunc) EarnBadge(badgeID, moduleID string, meta progress.BadgeMetadata) bool {
	return f(badgeID, moduleID, meta)
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine проверяет условия бейджей по каталогу.
type Engine struct {
	catalog *course.Catalog
	clock   timeutil.Clock
	launch  time.Time
}

// Option настраивает Engine.
type Option func(*Engine)

// WithClock задаёт часы для условия speed-runner.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLaunchEpoch переопределяет момент запуска платформы.
func WithLaunchEpoch(t time.Time) Option {
	return func(e *Engine) { e.launch = t }
}

// NewEngine создаёт движок для каталога.
func NewEngine(catalog *course.Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		clock:   timeutil.SystemClock{},
		launch:  LaunchEpoch,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckModuleBadges выдаёт бейдж модуля, если все его уроки завершены.
// Неизвестный модуль и модуль без бейджа - no-op.
func (e *Engine) CheckModuleBadges(view ProgressView, awarder BadgeAwarder, moduleID string) []course.BadgeDefinition {
	module, ok := e.catalog.Module(moduleID)
	if !ok || len(module.Lessons) == 0 {
		return nil
	}
	badge, ok := e.catalog.ModuleBadge(moduleID)
	if !ok || view.HasBadge(badge.ID) {
		return nil
	}
	for _, key := range module.LessonKeys() {
		if !view.GetLessonProgress(key) {
			return nil
		}
	}
	if awarder.EarnBadge(badge.ID, moduleID, progress.ModuleBadgeMetadata{LessonCount: len(module.Lessons)}) {
		return []course.BadgeDefinition{badge}
	}
	return nil
}

// CheckSpecialBadges проверяет три независимых условия: speed-runner,
// perfectionist и early-adopter.
func (e *Engine) CheckSpecialBadges(view ProgressView, awarder BadgeAwarder) []course.BadgeDefinition {
	var awarded []course.BadgeDefinition

	try := func(kind course.BadgeKind, meta progress.BadgeMetadata, ok bool) {
		if !ok {
			return
		}
		badge, found := e.catalog.SpecialBadge(kind)
		if !found || view.HasBadge(badge.ID) {
			return
		}
		if awarder.EarnBadge(badge.ID, SpecialModuleID, meta) {
			awarded = append(awarded, badge)
		}
	}

	elapsed, speedOK := e.speedRun(view)
	try(course.BadgeKindSpeedRunner, progress.SpeedRunnerMetadata{Elapsed: elapsed}, speedOK)

	quizCount, perfectOK := e.perfectScores(view)
	try(course.BadgeKindPerfectionist, progress.PerfectionistMetadata{QuizCount: quizCount}, perfectOK)

	first, earlyOK := e.earlyAdopter(view)
	try(course.BadgeKindEarlyAdopter, progress.EarlyAdopterMetadata{FirstActivity: first}, earlyOK)

	return awarded
}

// CheckAll проверяет все модули по порядку курса, затем особые бейджи.
func (e *Engine) CheckAll(view ProgressView, awarder BadgeAwarder) []course.BadgeDefinition {
	var awarded []course.BadgeDefinition
	for _, m := range e.catalog.Modules() {
		awarded = append(awarded, e.CheckModuleBadges(view, awarder, m.ID)...)
	}
	return append(awarded, e.CheckSpecialBadges(view, awarder)...)
}

// ══════════════════════════════════════════════════════════════════════════════
// PREDICATES
// ══════════════════════════════════════════════════════════════════════════════

// speedRun: все уроки курса завершены и с первой активности прошло < 24ч.
func (e *Engine) speedRun(view ProgressView) (time.Duration, bool) {
	first, ok := view.FirstActivity()
	if !ok {
		return 0, false
	}
	keys := e.catalog.AllLessonKeys()
	if len(keys) == 0 {
		return 0, false
	}
	for _, k := range keys {
		if !view.GetLessonProgress(k) {
			return 0, false
		}
	}
	elapsed := e.clock.Now().Sub(first)
	return elapsed, elapsed < SpeedRunWindow
}

// perfectScores требует идеальный результат для каждого ID урока курса.
// Урок без записанного результата проваливает условие.
func (e *Engine) perfectScores(view ProgressView) (int, bool) {
	ids := e.catalog.AllLessonIDs()
	if len(ids) == 0 {
		return 0, false
	}
	for _, id := range ids {
		qs, ok := view.QuizScore(id)
		if !ok || !qs.IsPerfect {
			return 0, false
		}
	}
	return len(ids), true
}

// earlyAdopter: первая активность в течение недели после запуска.
func (e *Engine) earlyAdopter(view ProgressView) (time.Time, bool) {
	first, ok := view.FirstActivity()
	if !ok {
		return time.Time{}, false
	}
	since := first.Sub(e.launch)
	return first, since >= 0 && since < EarlyAdopterWindow
}
