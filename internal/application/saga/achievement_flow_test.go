package saga

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-hub/learning-hub/internal/domain/achievement"
	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/progress"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

var start = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newFlow(clock timeutil.Clock) *AchievementFlowSaga {
	catalog := course.Default()
	return NewAchievementFlowSaga(achievement.NewEngine(catalog, achievement.WithClock(clock)), catalog)
}

func completeAll(st *progress.State, at time.Time) {
	for _, key := range course.Default().AllLessonKeys() {
		st.CompleteLesson(key, at)
	}
}

func TestAchievementFlow_AllModulesAndSpeedRun(t *testing.T) {
	clock := timeutil.NewFakeClock(start)
	st := progress.New()
	completeAll(st, start)
	clock.Advance(23 * time.Hour)

	res := newFlow(clock).Execute(st, AchievementCheckInput{
		Profile:      shared.DefaultProfile,
		AllModules:   true,
		CheckModule:  true,
		CheckSpecial: true,
		Timestamp:    clock.Now(),
	})

	require.True(t, res.HasNewBadges())
	ids := make([]string, 0, len(res.NewBadges))
	for _, b := range res.NewBadges {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"web3-pioneer", "bitcoin-scholar", "web3-philosopher", "speed-runner"}, ids)
	assert.Equal(t, 4*progress.BadgeXP, res.TotalXPBonus)
	assert.Len(t, res.Events, 8)

	first, ok := res.Events[0].(shared.BadgeEarnedEvent)
	require.True(t, ok)
	assert.Equal(t, "module", first.Kind)
	assert.Equal(t, "default", first.AggregateID())
}

func TestAchievementFlow_SpeedRunWindowIsStrict(t *testing.T) {
	clock := timeutil.NewFakeClock(start)
	st := progress.New()
	completeAll(st, start)
	clock.Advance(24 * time.Hour)

	res := newFlow(clock).Execute(st, AchievementCheckInput{CheckSpecial: true, Timestamp: clock.Now()})
	assert.False(t, res.HasNewBadges())
}

func TestAchievementFlow_StepsAreGated(t *testing.T) {
	clock := timeutil.NewFakeClock(start)
	st := progress.New()
	completeAll(st, start)

	res := newFlow(clock).Execute(st, AchievementCheckInput{ModuleID: "module-1", Timestamp: start})
	assert.False(t, res.HasNewBadges())
	assert.Zero(t, st.GetBadgeCount())

	res = newFlow(clock).Execute(st, AchievementCheckInput{ModuleID: "module-1", CheckModule: true, Timestamp: start})
	require.Len(t, res.NewBadges, 1)
	assert.Equal(t, "web3-pioneer", res.NewBadges[0].ID)

	// Already earned badges are not granted twice.
	res = newFlow(clock).Execute(st, AchievementCheckInput{ModuleID: "module-1", CheckModule: true, Timestamp: start})
	assert.False(t, res.HasNewBadges())
}
