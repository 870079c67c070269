// Package saga contains business processes that orchestrate several domain
// operations in one step.
package saga

import (
	"time"

	"github.com/web3-hub/learning-hub/internal/domain/achievement"
	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/progress"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW SAGA
// Flow: Check Module Badge → Check Special Badges → Grant Badge →
//
//	Award XP Bonus → Collect Events
//
// The flow runs inside the caller's read-modify-write of one learner's
// state; it mutates the state it is given and never touches storage.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementCheckInput describes what triggered the check.
type AchievementCheckInput struct {
	// Profile is the learner whose state is passed to Execute.
	Profile shared.ProfileID

	// ModuleID is the module of the completed lesson. Empty skips the
	// module step.
	ModuleID string

	// CheckModule and CheckSpecial gate the two steps.
	CheckModule  bool
	CheckSpecial bool

	// AllModules checks every module instead of ModuleID.
	AllModules bool

	Timestamp time.Time
}

// AchievementFlowResult lists what the flow granted.
type AchievementFlowResult struct {
	NewBadges    []course.BadgeDefinition
	TotalXPBonus int
	Events       []shared.Event
}

// HasNewBadges returns true if any badge was granted.
func (r *AchievementFlowResult) HasNewBadges() bool {
	return len(r.NewBadges) > 0
}

// AchievementFlowSaga evaluates badge conditions and grants badges.
type AchievementFlowSaga struct {
	engine  *achievement.Engine
	catalog *course.Catalog
}

// NewAchievementFlowSaga creates the saga.
func NewAchievementFlowSaga(engine *achievement.Engine, catalog *course.Catalog) *AchievementFlowSaga {
	return &AchievementFlowSaga{engine: engine, catalog: catalog}
}

// Execute runs the enabled steps against st.
func (s *AchievementFlowSaga) Execute(st *progress.State, input AchievementCheckInput) *AchievementFlowResult {
	result := &AchievementFlowResult{}
	awarder := s.awarder(st, input, result)

	if input.CheckModule {
		switch {
		case input.AllModules:
			for _, m := range s.catalog.Modules() {
				result.NewBadges = append(result.NewBadges, s.engine.CheckModuleBadges(st, awarder, m.ID)...)
			}
		case input.ModuleID != "":
			result.NewBadges = append(result.NewBadges, s.engine.CheckModuleBadges(st, awarder, input.ModuleID)...)
		}
	}

	if input.CheckSpecial {
		result.NewBadges = append(result.NewBadges, s.engine.CheckSpecialBadges(st, awarder)...)
	}

	return result
}

// awarder grants through progress.State and records one BadgeEarned and one
// XPGained event per grant.
func (s *AchievementFlowSaga) awarder(st *progress.State, input AchievementCheckInput, result *AchievementFlowResult) achievement.BadgeAwarder {
	return achievement.AwarderFunc(func(badgeID, moduleID string, meta progress.BadgeMetadata) bool {
		if !st.EarnBadge(badgeID, moduleID, meta, input.Timestamp) {
			return false
		}
		result.TotalXPBonus += progress.BadgeXP

		kind := string(progress.MetadataManual)
		if meta != nil {
			kind = string(meta.Kind())
		}
		result.Events = append(result.Events,
			shared.BadgeEarnedEvent{
				BaseEvent: shared.NewBaseEvent(shared.EventBadgeEarned, input.Profile.String(), input.Timestamp),
				BadgeID:   badgeID,
				ModuleID:  moduleID,
				Kind:      kind,
				XPAwarded: progress.BadgeXP,
			},
			shared.XPGainedEvent{
				BaseEvent: shared.NewBaseEvent(shared.EventXPGained, input.Profile.String(), input.Timestamp),
				Amount:    progress.BadgeXP,
				Total:     st.TotalExperience,
				Reason:    "badge:" + badgeID,
			},
		)
		return true
	})
}
