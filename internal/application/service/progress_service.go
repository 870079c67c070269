// Package service holds the application state containers: learner progress
// and the lesson content loader. Each container serialises its mutations and
// saves explicitly after every change.
package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/web3-hub/learning-hub/internal/application/saga"
	"github.com/web3-hub/learning-hub/internal/domain/achievement"
	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/progress"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
	"github.com/web3-hub/learning-hub/pkg/logger"
	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FEATURES
// ══════════════════════════════════════════════════════════════════════════════

// Feature is an optional part of the progress flow.
type Feature int

const (
	FeatureStudyStreaks Feature = iota
	FeatureModuleBadges
	FeatureSpecialBadges
)

// FeatureGate reports whether f is on for profile.
type FeatureGate func(f Feature, profile shared.ProfileID) bool

// AllFeatures enables everything.
func AllFeatures(Feature, shared.ProfileID) bool { return true }

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// LessonCompletion is the outcome of MarkLessonComplete.
type LessonCompletion struct {
	LessonKey string `json:"lessonKey"`
	// Newly is false when the lesson was already complete.
	Newly           bool                     `json:"newly"`
	XPAwarded       int                      `json:"xpAwarded"`
	TotalExperience int                      `json:"totalExperience"`
	UserTitle       progress.Title           `json:"userTitle"`
	StudyStreak     int                      `json:"studyStreak"`
	BadgesEarned    []course.BadgeDefinition `json:"badgesEarned"`
}

// BadgeAward is the outcome of EarnBadge.
type BadgeAward struct {
	BadgeID         string `json:"badgeId"`
	Newly           bool   `json:"newly"`
	TotalExperience int    `json:"totalExperience"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// errUnchanged aborts an update without saving.
var errUnchanged = shared.ErrUnchanged

// lockStripes is the number of in-process mutexes profiles hash onto.
const lockStripes = 64

// ProgressServiceConfig wires a ProgressService.
type ProgressServiceConfig struct {
	Repository progress.Repository
	Catalog    *course.Catalog

	// Engine defaults to one built from Catalog and Clock.
	Engine *achievement.Engine

	// Publisher is optional.
	Publisher shared.EventPublisher

	Clock    timeutil.Clock
	Calendar timeutil.Calendar
	Features FeatureGate
	Logger   *logger.Logger
}

// ProgressService is the progress state container. Every mutation is one
// atomic repository update, so instances sharing a backend never overwrite
// each other's progress. Within a process, profiles hashing to the same
// stripe also queue on a mutex to keep optimistic backends from retrying.
type ProgressService struct {
	repo      progress.Repository
	catalog   *course.Catalog
	flow      *saga.AchievementFlowSaga
	publisher shared.EventPublisher
	clock     timeutil.Clock
	calendar  timeutil.Calendar
	features  FeatureGate
	log       *logger.Logger

	locks [lockStripes]sync.Mutex
}

// NewProgressService creates the container.
func NewProgressService(cfg ProgressServiceConfig) *ProgressService {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.SystemClock{}
	}
	if cfg.Catalog == nil {
		cfg.Catalog = course.Default()
	}
	if cfg.Engine == nil {
		cfg.Engine = achievement.NewEngine(cfg.Catalog, achievement.WithClock(cfg.Clock))
	}
	if cfg.Features == nil {
		cfg.Features = AllFeatures
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &ProgressService{
		repo:      cfg.Repository,
		catalog:   cfg.Catalog,
		flow:      saga.NewAchievementFlowSaga(cfg.Engine, cfg.Catalog),
		publisher: cfg.Publisher,
		clock:     cfg.Clock,
		calendar:  cfg.Calendar,
		features:  cfg.Features,
		log:       cfg.Logger.With(logger.Component("progress")),
	}
}

func (s *ProgressService) lock(profile shared.ProfileID) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(profile))
	mu := &s.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// changeSet collects events produced inside one update.
type changeSet struct {
	profile shared.ProfileID
	now     timeutil.Clock
	events  []shared.Event
}

func (c *changeSet) add(events ...shared.Event) {
	c.events = append(c.events, events...)
}

func (c *changeSet) base(t shared.EventType) shared.BaseEvent {
	return shared.NewBaseEvent(t, c.profile.String(), c.now.Now())
}

// update runs fn on the stored state and saves it atomically. fn may run
// again on fresher state when another writer got in first, so it must
// reset whatever it reports. fn returning errUnchanged skips the save.
// Events of the attempt that was saved are published.
func (s *ProgressService) update(ctx context.Context, profile shared.ProfileID, op string, fn func(st *progress.State, cs *changeSet) error) (*progress.State, error) {
	unlock := s.lock(profile)
	defer unlock()

	var (
		cs    *changeSet
		fnErr error
	)
	st, err := s.repo.Update(ctx, profile, func(st *progress.State) error {
		cs = &changeSet{profile: profile, now: s.clock}
		fnErr = fn(st, cs)
		return fnErr
	})
	if err != nil {
		if fnErr != nil {
			return nil, fnErr
		}
		s.log.Error("failed to save progress", logger.Profile(profile.String()), logger.Operation(op), logger.Err(err))
		return nil, shared.WrapError("progress", op, shared.ErrStorage, "update progress", err)
	}
	if errors.Is(fnErr, errUnchanged) {
		return st, nil
	}

	s.publish(cs.events)
	return st, nil
}

func (s *ProgressService) publish(events []shared.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range events {
		if err := s.publisher.Publish(e); err != nil {
			s.log.Warn("failed to publish event", logger.F("event_type", string(e.EventType())), logger.Err(err))
		}
	}
}

func (s *ProgressService) read(ctx context.Context, profile shared.ProfileID) (*progress.State, error) {
	st, err := s.repo.Load(ctx, profile)
	if err != nil {
		return nil, shared.WrapError("progress", "Read", shared.ErrStorage, "load progress", err)
	}
	return st, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSONS
// ══════════════════════════════════════════════════════════════════════════════

// MarkLessonComplete completes lessonKey once: +100 XP, first-activity
// stamp, title, streak, then module and special badge checks. Repeated
// calls leave the stored state untouched.
func (s *ProgressService) MarkLessonComplete(ctx context.Context, profile shared.ProfileID, lessonKey string) (*LessonCompletion, error) {
	res := &LessonCompletion{LessonKey: lessonKey}

	st, err := s.update(ctx, profile, "MarkLessonComplete", func(st *progress.State, cs *changeSet) error {
		*res = LessonCompletion{LessonKey: lessonKey}
		now := s.clock.Now()
		prevTitle := st.UserTitle
		prevStreak, prevDate := st.StudyStreak, st.LastStudyDate

		var changed bool
		if s.features(FeatureStudyStreaks, profile) {
			changed = st.MarkLessonComplete(lessonKey, now, s.calendar)
		} else {
			changed = st.CompleteLesson(lessonKey, now)
		}
		if !changed {
			return errUnchanged
		}

		res.Newly = true
		res.XPAwarded = progress.LessonXP
		cs.add(
			shared.LessonCompletedEvent{BaseEvent: cs.base(shared.EventLessonCompleted), LessonKey: lessonKey, XPAwarded: progress.LessonXP},
			shared.XPGainedEvent{BaseEvent: cs.base(shared.EventXPGained), Amount: progress.LessonXP, Total: st.TotalExperience, Reason: "lesson:" + lessonKey},
		)
		if st.StudyStreak != prevStreak || st.LastStudyDate != prevDate {
			cs.add(shared.StreakUpdatedEvent{
				BaseEvent: cs.base(shared.EventStreakUpdated),
				Streak:    st.StudyStreak,
				Date:      st.LastStudyDate,
				Reset:     st.StudyStreak == 1 && prevStreak > 0,
			})
		}

		var moduleID string
		if lesson, ok := s.catalog.LessonByKey(lessonKey); ok {
			moduleID = lesson.ModuleID
		}
		flow := s.flow.Execute(st, saga.AchievementCheckInput{
			Profile:      profile,
			ModuleID:     moduleID,
			CheckModule:  s.features(FeatureModuleBadges, profile),
			CheckSpecial: s.features(FeatureSpecialBadges, profile),
			Timestamp:    now,
		})
		res.BadgesEarned = flow.NewBadges
		res.XPAwarded += flow.TotalXPBonus
		cs.add(flow.Events...)

		s.titleEvent(st, prevTitle, cs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.TotalExperience = st.TotalExperience
	res.UserTitle = st.UserTitle
	res.StudyStreak = st.StudyStreak

	if res.Newly {
		s.log.Info("lesson completed",
			logger.Profile(profile.String()),
			logger.LessonKey(lessonKey),
			logger.XPAmount(res.XPAwarded),
			logger.F("badges", len(res.BadgesEarned)),
		)
	}
	return res, nil
}

// GetLessonProgress reports whether lessonKey is complete.
func (s *ProgressService) GetLessonProgress(ctx context.Context, profile shared.ProfileID, lessonKey string) (bool, error) {
	st, err := s.read(ctx, profile)
	if err != nil {
		return false, err
	}
	return st.GetLessonProgress(lessonKey), nil
}

// GetModuleProgress counts completed keys. An empty list gives 0%.
func (s *ProgressService) GetModuleProgress(ctx context.Context, profile shared.ProfileID, lessonKeys []string) (progress.ModuleProgress, error) {
	st, err := s.read(ctx, profile)
	if err != nil {
		return progress.ModuleProgress{}, err
	}
	return st.GetModuleProgress(lessonKeys), nil
}

// GetModuleProgressByID resolves the module's lesson keys from the
// catalog. An unknown module has no lessons.
func (s *ProgressService) GetModuleProgressByID(ctx context.Context, profile shared.ProfileID, moduleID string) (progress.ModuleProgress, error) {
	var keys []string
	if m, ok := s.catalog.Module(moduleID); ok {
		keys = m.LessonKeys()
	}
	return s.GetModuleProgress(ctx, profile, keys)
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES & EXPERIENCE
// ══════════════════════════════════════════════════════════════════════════════

// EarnBadge grants badgeID once with +200 XP. A nil meta is recorded as a
// manual grant.
func (s *ProgressService) EarnBadge(ctx context.Context, profile shared.ProfileID, badgeID, moduleID string, meta progress.BadgeMetadata) (*BadgeAward, error) {
	award := &BadgeAward{BadgeID: badgeID}

	st, err := s.update(ctx, profile, "EarnBadge", func(st *progress.State, cs *changeSet) error {
		award.Newly = false
		prevTitle := st.UserTitle
		if !st.EarnBadge(badgeID, moduleID, meta, s.clock.Now()) {
			return errUnchanged
		}
		award.Newly = true

		kind := progress.MetadataManual
		if meta != nil {
			kind = meta.Kind()
		}
		cs.add(
			shared.BadgeEarnedEvent{BaseEvent: cs.base(shared.EventBadgeEarned), BadgeID: badgeID, ModuleID: moduleID, Kind: string(kind), XPAwarded: progress.BadgeXP},
			shared.XPGainedEvent{BaseEvent: cs.base(shared.EventXPGained), Amount: progress.BadgeXP, Total: st.TotalExperience, Reason: "badge:" + badgeID},
		)
		s.titleEvent(st, prevTitle, cs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	award.TotalExperience = st.TotalExperience
	if award.Newly {
		s.log.Info("badge earned", logger.Profile(profile.String()), logger.BadgeID(badgeID))
	}
	return award, nil
}

// HasBadge reports whether badgeID was earned.
func (s *ProgressService) HasBadge(ctx context.Context, profile shared.ProfileID, badgeID string) (bool, error) {
	st, err := s.read(ctx, profile)
	if err != nil {
		return false, err
	}
	return st.HasBadge(badgeID), nil
}

// GetBadgeCount returns the number of earned badges.
func (s *ProgressService) GetBadgeCount(ctx context.Context, profile shared.ProfileID) (int, error) {
	st, err := s.read(ctx, profile)
	if err != nil {
		return 0, err
	}
	return st.GetBadgeCount(), nil
}

// AddExperience adds amount XP directly. Zero is a no-op; negative amounts
// are rejected.
func (s *ProgressService) AddExperience(ctx context.Context, profile shared.ProfileID, amount int, reason string) (int, error) {
	st, err := s.update(ctx, profile, "AddExperience", func(st *progress.State, cs *changeSet) error {
		if amount == 0 {
			return errUnchanged
		}
		prevTitle := st.UserTitle
		if err := st.AddExperience(amount); err != nil {
			return err
		}
		cs.add(shared.XPGainedEvent{BaseEvent: cs.base(shared.EventXPGained), Amount: amount, Total: st.TotalExperience, Reason: reason})
		s.titleEvent(st, prevTitle, cs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return st.TotalExperience, nil
}

// CheckAchievements re-evaluates every badge condition, for instance after
// enabling a feature flag.
func (s *ProgressService) CheckAchievements(ctx context.Context, profile shared.ProfileID) ([]course.BadgeDefinition, error) {
	var awarded []course.BadgeDefinition
	_, err := s.update(ctx, profile, "CheckAchievements", func(st *progress.State, cs *changeSet) error {
		awarded = nil
		prevTitle := st.UserTitle
		flow := s.flow.Execute(st, saga.AchievementCheckInput{
			Profile:      profile,
			AllModules:   true,
			CheckModule:  s.features(FeatureModuleBadges, profile),
			CheckSpecial: s.features(FeatureSpecialBadges, profile),
			Timestamp:    s.clock.Now(),
		})
		if !flow.HasNewBadges() {
			return errUnchanged
		}
		awarded = flow.NewBadges
		cs.add(flow.Events...)
		s.titleEvent(st, prevTitle, cs)
		return nil
	})
	return awarded, err
}

func (s *ProgressService) titleEvent(st *progress.State, prev progress.Title, cs *changeSet) {
	if st.UserTitle == prev {
		return
	}
	cs.add(shared.TitleChangedEvent{BaseEvent: cs.base(shared.EventTitleChanged), OldTitle: string(prev), NewTitle: string(st.UserTitle)})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZ, WALLET, RESET
// ══════════════════════════════════════════════════════════════════════════════

// RecordQuizScore stores the latest attempt for lessonID and re-checks the
// special badges, since a perfect score can complete the perfectionist set.
func (s *ProgressService) RecordQuizScore(ctx context.Context, profile shared.ProfileID, lessonID string, score, total int) (progress.QuizScore, []course.BadgeDefinition, error) {
	var (
		qs      progress.QuizScore
		awarded []course.BadgeDefinition
	)
	_, err := s.update(ctx, profile, "RecordQuizScore", func(st *progress.State, cs *changeSet) error {
		var err error
		qs, err = st.RecordQuizScore(lessonID, score, total)
		if err != nil {
			return err
		}
		cs.add(shared.QuizScoreRecordedEvent{
			BaseEvent: cs.base(shared.EventQuizScoreRecorded),
			LessonID:  lessonID,
			Score:     qs.Score,
			Total:     qs.Total,
			IsPerfect: qs.IsPerfect,
		})

		prevTitle := st.UserTitle
		flow := s.flow.Execute(st, saga.AchievementCheckInput{
			Profile:      profile,
			CheckSpecial: s.features(FeatureSpecialBadges, profile),
			Timestamp:    s.clock.Now(),
		})
		awarded = flow.NewBadges
		cs.add(flow.Events...)
		s.titleEvent(st, prevTitle, cs)
		return nil
	})
	if err != nil {
		return progress.QuizScore{}, nil, err
	}
	return qs, awarded, nil
}

// ConnectWallet records the learner's wallet address. An empty address
// disconnects.
func (s *ProgressService) ConnectWallet(ctx context.Context, profile shared.ProfileID, address string) error {
	_, err := s.update(ctx, profile, "ConnectWallet", func(st *progress.State, _ *changeSet) error {
		if address == "" {
			st.DisconnectWallet()
		} else {
			st.ConnectWallet(address)
		}
		return nil
	})
	return err
}

// ResetProgress wipes learning progress and keeps the wallet.
func (s *ProgressService) ResetProgress(ctx context.Context, profile shared.ProfileID) error {
	_, err := s.update(ctx, profile, "ResetProgress", func(st *progress.State, cs *changeSet) error {
		st.Reset()
		cs.add(shared.ProgressResetEvent{BaseEvent: cs.base(shared.EventProgressReset)})
		return nil
	})
	if err == nil {
		s.log.Info("progress reset", logger.Profile(profile.String()))
	}
	return err
}

// Snapshot returns a copy of the stored state.
func (s *ProgressService) Snapshot(ctx context.Context, profile shared.ProfileID) (*progress.State, error) {
	return s.read(ctx, profile)
}

// Catalog returns the course catalog the service evaluates against.
func (s *ProgressService) Catalog() *course.Catalog {
	return s.catalog
}
