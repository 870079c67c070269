package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/progress"
	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

var utc = timeutil.NewCalendar(time.UTC)

type fixture struct {
	catalog *course.Catalog
	clock   *timeutil.FakeClock
	engine  *Engine
	state   *progress.State
	calls   []string
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	f := &fixture{
		catalog: course.Default(),
		clock:   timeutil.NewFakeClock(start),
		state:   progress.New(),
	}
	f.engine = NewEngine(f.catalog, WithClock(f.clock))
	return f
}

func (f *fixture) awarder() BadgeAwarder {
	return AwarderFunc(func(badgeID, moduleID string, meta progress.BadgeMetadata) bool {
		f.calls = append(f.calls, badgeID)
		return f.state.EarnBadge(badgeID, moduleID, meta, f.clock.Now())
	})
}

func (f *fixture) complete(keys ...string) {
	for _, k := range keys {
		f.state.MarkLessonComplete(k, f.clock.Now(), utc)
	}
}

func (f *fixture) moduleKeys(t *testing.T, id string) []string {
	t.Helper()
	m, ok := f.catalog.Module(id)
	require.True(t, ok)
	return m.LessonKeys()
}

// Launch+30d keeps the early-adopter predicate out of the way.
var afterLaunch = LaunchEpoch.Add(30 * timeutil.Day)

func TestCheckModuleBadges_AwardsOnceWhenModuleComplete(t *testing.T) {
	f := newFixture(t, afterLaunch)
	keys := f.moduleKeys(t, "module-1")

	f.complete(keys[:len(keys)-1]...)
	assert.Empty(t, f.engine.CheckModuleBadges(f.state, f.awarder(), "module-1"))
	assert.Empty(t, f.calls)

	f.complete(keys[len(keys)-1])
	awarded := f.engine.CheckModuleBadges(f.state, f.awarder(), "module-1")
	require.Len(t, awarded, 1)
	assert.Equal(t, "web3-pioneer", awarded[0].ID)

	assert.Empty(t, f.engine.CheckModuleBadges(f.state, f.awarder(), "module-1"))
	assert.Equal(t, []string{"web3-pioneer"}, f.calls, "held badge is not requested again")

	assert.Equal(t, 100*len(keys)+200, f.state.TotalExperience)
	badge := f.state.EarnedBadges["web3-pioneer"]
	assert.Equal(t, "module-1", badge.ModuleID)
	assert.Equal(t, progress.ModuleBadgeMetadata{LessonCount: len(keys)}, badge.Metadata)
}

func TestCheckModuleBadges_NoOps(t *testing.T) {
	f := newFixture(t, afterLaunch)

	f.complete(f.moduleKeys(t, "module-4")...)
	assert.Empty(t, f.engine.CheckModuleBadges(f.state, f.awarder(), "module-4"), "module without badge")
	assert.Empty(t, f.engine.CheckModuleBadges(f.state, f.awarder(), "module-99"), "unknown module")
	assert.Empty(t, f.calls)
}

func TestCheckModuleBadges_Module5IsPhilosopher(t *testing.T) {
	f := newFixture(t, afterLaunch)
	f.complete("module-5-5-1", "module-5-5-2", "module-5-5-3")

	awarded := f.engine.CheckModuleBadges(f.state, f.awarder(), "module-5")
	require.Len(t, awarded, 1)
	assert.Equal(t, "web3-philosopher", awarded[0].ID)
}

func TestSpeedRunner(t *testing.T) {
	t.Run("whole course within a day", func(t *testing.T) {
		f := newFixture(t, afterLaunch)
		f.complete(f.catalog.AllLessonKeys()...)
		f.clock.Advance(23 * time.Hour)

		awarded := f.engine.CheckSpecialBadges(f.state, f.awarder())
		require.Len(t, awarded, 1)
		assert.Equal(t, "speed-runner", awarded[0].ID)
		assert.Equal(t, progress.SpeedRunnerMetadata{Elapsed: 23 * time.Hour}, f.state.EarnedBadges["speed-runner"].Metadata)
	})

	t.Run("exactly 24h is too slow", func(t *testing.T) {
		f := newFixture(t, afterLaunch)
		f.complete(f.catalog.AllLessonKeys()...)
		f.clock.Advance(SpeedRunWindow)

		assert.Empty(t, f.engine.CheckSpecialBadges(f.state, f.awarder()))
	})

	t.Run("one lesson missing", func(t *testing.T) {
		f := newFixture(t, afterLaunch)
		keys := f.catalog.AllLessonKeys()
		f.complete(keys[1:]...)

		assert.Empty(t, f.engine.CheckSpecialBadges(f.state, f.awarder()))
	})
}

func TestPerfectionist(t *testing.T) {
	t.Run("no scores is not perfect", func(t *testing.T) {
		f := newFixture(t, afterLaunch)
		assert.Empty(t, f.engine.CheckSpecialBadges(f.state, f.awarder()))
	})

	t.Run("perfect on scored lessons only is not enough", func(t *testing.T) {
		f := newFixture(t, afterLaunch)
		_, err := f.state.RecordQuizScore("1-1", 5, 5)
		require.NoError(t, err)
		assert.Empty(t, f.engine.CheckSpecialBadges(f.state, f.awarder()))
	})

	t.Run("every lesson perfect", func(t *testing.T) {
		f := newFixture(t, afterLaunch)
		for _, id := range f.catalog.AllLessonIDs() {
			_, err := f.state.RecordQuizScore(id, 3, 3)
			require.NoError(t, err)
		}

		awarded := f.engine.CheckSpecialBadges(f.state, f.awarder())
		require.Len(t, awarded, 1)
		assert.Equal(t, "perfectionist", awarded[0].ID)
	})

	t.Run("one imperfect score fails", func(t *testing.T) {
		f := newFixture(t, afterLaunch)
		for _, id := range f.catalog.AllLessonIDs() {
			_, err := f.state.RecordQuizScore(id, 3, 3)
			require.NoError(t, err)
		}
		_, err := f.state.RecordQuizScore("6-6", 2, 3)
		require.NoError(t, err)

		assert.Empty(t, f.engine.CheckSpecialBadges(f.state, f.awarder()))
	})
}

func TestEarlyAdopter(t *testing.T) {
	tests := []struct {
		name  string
		first time.Time
		want  bool
	}{
		{"launch instant", LaunchEpoch, true},
		{"sixth day", LaunchEpoch.Add(6 * timeutil.Day), true},
		{"seventh day boundary", LaunchEpoch.Add(EarlyAdopterWindow), false},
		{"before launch", LaunchEpoch.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.first)
			f.complete("module-1-1-1")

			awarded := f.engine.CheckSpecialBadges(f.state, f.awarder())
			assert.Equal(t, tt.want, f.state.HasBadge("early-adopter"))
			if tt.want {
				require.Len(t, awarded, 1)
				assert.Equal(t, course.RarityRare, awarded[0].Rarity)
			}
		})
	}

	t.Run("no activity yet", func(t *testing.T) {
		f := newFixture(t, LaunchEpoch)
		assert.Empty(t, f.engine.CheckSpecialBadges(f.state, f.awarder()))
	})
}

func TestCheckAll_CompleteCourseFast(t *testing.T) {
	f := newFixture(t, afterLaunch)
	f.engine = NewEngine(f.catalog, WithClock(f.clock), WithLaunchEpoch(afterLaunch.Add(-time.Hour)))

	f.complete(f.catalog.AllLessonKeys()...)
	awarded := f.engine.CheckAll(f.state, f.awarder())

	ids := make([]string, 0, len(awarded))
	for _, b := range awarded {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"web3-pioneer", "bitcoin-scholar", "web3-philosopher", "speed-runner", "early-adopter"}, ids)
	assert.Equal(t, 100*f.catalog.LessonCount()+200*len(ids), f.state.TotalExperience)

	assert.Empty(t, f.engine.CheckAll(f.state, f.awarder()), "second pass awards nothing")
}
