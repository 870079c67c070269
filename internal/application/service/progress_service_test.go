package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/progress"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
	"github.com/web3-hub/learning-hub/internal/infrastructure/persistence/memory"
	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// March 2025 is well past the early-adopter window.
var march = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type progressFixture struct {
	svc   *ProgressService
	clock *timeutil.FakeClock
	store *memory.Store
	bus   *recorder
}

func newProgressFixture(t *testing.T, start time.Time, gate FeatureGate) progressFixture {
	t.Helper()
	store := memory.NewStore()
	clock := timeutil.NewFakeClock(start)
	bus := &recorder{}
	svc := NewProgressService(ProgressServiceConfig{
		Repository: progress.NewKVRepository(store),
		Catalog:    course.Default(),
		Publisher:  bus,
		Clock:      clock,
		Calendar:   timeutil.NewCalendar(time.UTC),
		Features:   gate,
	})
	return progressFixture{svc: svc, clock: clock, store: store, bus: bus}
}

func moduleKeys(t *testing.T, id string) []string {
	t.Helper()
	m, ok := course.Default().Module(id)
	require.True(t, ok)
	return m.LessonKeys()
}

func TestProgressService_MarkLessonComplete(t *testing.T) {
	f := newProgressFixture(t, march, nil)
	ctx := context.Background()

	res, err := f.svc.MarkLessonComplete(ctx, shared.DefaultProfile, "module-1-1-1")
	require.NoError(t, err)
	assert.True(t, res.Newly)
	assert.Equal(t, progress.LessonXP, res.XPAwarded)
	assert.Equal(t, 100, res.TotalExperience)
	assert.Equal(t, progress.TitleNovice, res.UserTitle)
	assert.Equal(t, 1, res.StudyStreak)
	assert.Empty(t, res.BadgesEarned)
	assert.Equal(t, []shared.EventType{
		shared.EventLessonCompleted,
		shared.EventXPGained,
		shared.EventStreakUpdated,
	}, f.bus.types())

	done, err := f.svc.GetLessonProgress(ctx, shared.DefaultProfile, "module-1-1-1")
	require.NoError(t, err)
	assert.True(t, done)

	f.bus.reset()
	again, err := f.svc.MarkLessonComplete(ctx, shared.DefaultProfile, "module-1-1-1")
	require.NoError(t, err)
	assert.False(t, again.Newly)
	assert.Zero(t, again.XPAwarded)
	assert.Equal(t, 100, again.TotalExperience)
	assert.Empty(t, f.bus.types())
}

func TestProgressService_ModuleBadgeOnLastLesson(t *testing.T) {
	f := newProgressFixture(t, march, nil)
	ctx := context.Background()
	keys := moduleKeys(t, "module-1")

	var last *LessonCompletion
	for _, key := range keys {
		res, err := f.svc.MarkLessonComplete(ctx, shared.DefaultProfile, key)
		require.NoError(t, err)
		last = res
	}

	require.Len(t, last.BadgesEarned, 1)
	assert.Equal(t, "web3-pioneer", last.BadgesEarned[0].ID)
	assert.Equal(t, progress.LessonXP+progress.BadgeXP, last.XPAwarded)
	assert.Equal(t, len(keys)*progress.LessonXP+progress.BadgeXP, last.TotalExperience)
	assert.Equal(t, progress.TitleApprentice, last.UserTitle)
	assert.Contains(t, f.bus.types(), shared.EventBadgeEarned)
	assert.Contains(t, f.bus.types(), shared.EventTitleChanged)

	mp, err := f.svc.GetModuleProgressByID(ctx, shared.DefaultProfile, "module-1")
	require.NoError(t, err)
	assert.Equal(t, len(keys), mp.Completed)
	assert.Equal(t, float64(100), mp.Percentage)

	has, err := f.svc.HasBadge(ctx, shared.DefaultProfile, "web3-pioneer")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestProgressService_FeatureGateDisablesModuleBadges(t *testing.T) {
	gate := func(f Feature, _ shared.ProfileID) bool { return f != FeatureModuleBadges }
	f := newProgressFixture(t, march, gate)
	ctx := context.Background()

	for _, key := range moduleKeys(t, "module-1") {
		_, err := f.svc.MarkLessonComplete(ctx, shared.DefaultProfile, key)
		require.NoError(t, err)
	}

	count, err := f.svc.GetBadgeCount(ctx, shared.DefaultProfile)
	require.NoError(t, err)
	assert.Zero(t, count)

	// Turning the flag back on and re-checking catches up.
	f.svc.features = AllFeatures
	awarded, err := f.svc.CheckAchievements(ctx, shared.DefaultProfile)
	require.NoError(t, err)
	require.Len(t, awarded, 1)
	assert.Equal(t, "web3-pioneer", awarded[0].ID)
}

func TestProgressService_StreakFlagOff(t *testing.T) {
	gate := func(f Feature, _ shared.ProfileID) bool { return f != FeatureStudyStreaks }
	f := newProgressFixture(t, march, gate)

	res, err := f.svc.MarkLessonComplete(context.Background(), shared.DefaultProfile, "module-1-1-1")
	require.NoError(t, err)
	assert.Zero(t, res.StudyStreak)
	assert.NotContains(t, f.bus.types(), shared.EventStreakUpdated)
}

func TestProgressService_StreakAcrossDays(t *testing.T) {
	f := newProgressFixture(t, march, nil)
	ctx := context.Background()

	_, err := f.svc.MarkLessonComplete(ctx, shared.DefaultProfile, "module-1-1-1")
	require.NoError(t, err)

	f.clock.Advance(timeutil.Day)
	res, err := f.svc.MarkLessonComplete(ctx, shared.DefaultProfile, "module-1-1-2")
	require.NoError(t, err)
	assert.Equal(t, 2, res.StudyStreak)

	f.clock.Advance(3 * timeutil.Day)
	res, err = f.svc.MarkLessonComplete(ctx, shared.DefaultProfile, "module-1-1-3")
	require.NoError(t, err)
	assert.Equal(t, 1, res.StudyStreak)
}

func TestProgressService_EarlyAdopter(t *testing.T) {
	f := newProgressFixture(t, time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC), nil)

	res, err := f.svc.MarkLessonComplete(context.Background(), shared.DefaultProfile, "module-1-1-1")
	require.NoError(t, err)
	require.Len(t, res.BadgesEarned, 1)
	assert.Equal(t, "early-adopter", res.BadgesEarned[0].ID)
	assert.Equal(t, 300, res.TotalExperience)
}

func TestProgressService_EarnBadgeOnce(t *testing.T) {
	f := newProgressFixture(t, march, nil)
	ctx := context.Background()

	award, err := f.svc.EarnBadge(ctx, shared.DefaultProfile, "custom", "module-9", nil)
	require.NoError(t, err)
	assert.True(t, award.Newly)
	assert.Equal(t, progress.BadgeXP, award.TotalExperience)

	award, err = f.svc.EarnBadge(ctx, shared.DefaultProfile, "custom", "module-9", nil)
	require.NoError(t, err)
	assert.False(t, award.Newly)
	assert.Equal(t, progress.BadgeXP, award.TotalExperience)

	st, err := f.svc.Snapshot(ctx, shared.DefaultProfile)
	require.NoError(t, err)
	assert.Equal(t, progress.MetadataManual, st.EarnedBadges["custom"].Metadata.Kind())
}

func TestProgressService_AddExperience(t *testing.T) {
	f := newProgressFixture(t, march, nil)
	ctx := context.Background()

	total, err := f.svc.AddExperience(ctx, shared.DefaultProfile, 600, "bonus")
	require.NoError(t, err)
	assert.Equal(t, 600, total)
	assert.Equal(t, []shared.EventType{shared.EventXPGained, shared.EventTitleChanged}, f.bus.types())

	total, err = f.svc.AddExperience(ctx, shared.DefaultProfile, 0, "noop")
	require.NoError(t, err)
	assert.Equal(t, 600, total)

	_, err = f.svc.AddExperience(ctx, shared.DefaultProfile, -1, "bad")
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
}

func TestProgressService_RecordQuizScore(t *testing.T) {
	f := newProgressFixture(t, march, nil)
	ctx := context.Background()

	qs, awarded, err := f.svc.RecordQuizScore(ctx, shared.DefaultProfile, "1-1", 5, 5)
	require.NoError(t, err)
	assert.True(t, qs.IsPerfect)
	assert.Empty(t, awarded)

	_, _, err = f.svc.RecordQuizScore(ctx, shared.DefaultProfile, "1-1", 6, 5)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	st, err := f.svc.Snapshot(ctx, shared.DefaultProfile)
	require.NoError(t, err)
	assert.Equal(t, progress.QuizScore{Score: 5, Total: 5, IsPerfect: true}, st.QuizScores["1-1"])
}

func TestProgressService_PerfectionistAfterLastQuiz(t *testing.T) {
	f := newProgressFixture(t, march, nil)
	ctx := context.Background()

	ids := course.Default().AllLessonIDs()
	var awarded []course.BadgeDefinition
	for _, id := range ids {
		var err error
		_, awarded, err = f.svc.RecordQuizScore(ctx, shared.DefaultProfile, id, 3, 3)
		require.NoError(t, err)
	}

	require.Len(t, awarded, 1)
	assert.Equal(t, "perfectionist", awarded[0].ID)
}

func TestProgressService_ResetKeepsWallet(t *testing.T) {
	f := newProgressFixture(t, march, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.ConnectWallet(ctx, shared.DefaultProfile, "bc1qexample"))
	_, err := f.svc.MarkLessonComplete(ctx, shared.DefaultProfile, "module-1-1-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetProgress(ctx, shared.DefaultProfile))

	st, err := f.svc.Snapshot(ctx, shared.DefaultProfile)
	require.NoError(t, err)
	assert.Zero(t, st.TotalExperience)
	assert.Empty(t, st.Progress)
	assert.Equal(t, "bc1qexample", st.WalletAddress)
	assert.True(t, st.Connected)

	require.NoError(t, f.svc.ConnectWallet(ctx, shared.DefaultProfile, ""))
	st, err = f.svc.Snapshot(ctx, shared.DefaultProfile)
	require.NoError(t, err)
	assert.False(t, st.Connected)
}

func TestProgressService_ProfilesAreIsolated(t *testing.T) {
	f := newProgressFixture(t, march, nil)
	ctx := context.Background()

	alice, err := shared.NewProfileID("alice")
	require.NoError(t, err)

	_, err = f.svc.MarkLessonComplete(ctx, alice, "module-1-1-1")
	require.NoError(t, err)

	done, err := f.svc.GetLessonProgress(ctx, shared.DefaultProfile, "module-1-1-1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestProgressService_ConcurrentCompletionsAwardOnce(t *testing.T) {
	f := newProgressFixture(t, march, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.MarkLessonComplete(ctx, shared.DefaultProfile, "module-1-1-1")
		}()
	}
	wg.Wait()

	st, err := f.svc.Snapshot(ctx, shared.DefaultProfile)
	require.NoError(t, err)
	assert.Equal(t, progress.LessonXP, st.TotalExperience)
}

// slowStore widens the window between reading and writing a record.
type slowStore struct {
	*memory.Store
	delay time.Duration
}

func (s slowStore) Get(ctx context.Context, key string) ([]byte, error) {
	time.Sleep(s.delay)
	return s.Store.Get(ctx, key)
}

func (s slowStore) Update(ctx context.Context, key string, fn shared.UpdateFunc) error {
	return s.Store.Update(ctx, key, func(current []byte, found bool) ([]byte, error) {
		time.Sleep(s.delay)
		return fn(current, found)
	})
}

func TestProgressService_InstancesSharingStoreKeepBothLessons(t *testing.T) {
	store := slowStore{Store: memory.NewStore(), delay: 20 * time.Millisecond}
	clock := timeutil.NewFakeClock(march)
	newSvc := func() *ProgressService {
		return NewProgressService(ProgressServiceConfig{
			Repository: progress.NewKVRepository(store),
			Catalog:    course.Default(),
			Publisher:  &recorder{},
			Clock:      clock,
			Calendar:   timeutil.NewCalendar(time.UTC),
		})
	}
	a, b := newSvc(), newSvc()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]LessonCompletion, 2)
	errs := make([]error, 2)
	for i, job := range []struct {
		svc    *ProgressService
		lesson string
	}{{a, "module-1-1-1"}, {b, "module-1-1-2"}} {
		i, job := i, job
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := job.svc.MarkLessonComplete(ctx, shared.DefaultProfile, job.lesson)
			if res != nil {
				results[i] = *res
			}
			errs[i] = err
		}()
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Newly)
	}

	st, err := a.Snapshot(ctx, shared.DefaultProfile)
	require.NoError(t, err)
	assert.True(t, st.GetLessonProgress("module-1-1-1"))
	assert.True(t, st.GetLessonProgress("module-1-1-2"))
	assert.Equal(t, 2*progress.LessonXP, st.TotalExperience)
}

func TestProgressService_ManyProfilesShareLockStripes(t *testing.T) {
	f := newProgressFixture(t, march, nil)
	ctx := context.Background()

	const profiles = 3 * lockStripes
	var wg sync.WaitGroup
	for i := 0; i < profiles; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.MarkLessonComplete(ctx, shared.ProfileID(fmt.Sprintf("learner-%d", i)), "module-1-1-1")
		}()
	}
	wg.Wait()

	for i := 0; i < profiles; i++ {
		st, err := f.svc.Snapshot(ctx, shared.ProfileID(fmt.Sprintf("learner-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, progress.LessonXP, st.TotalExperience)
	}
}
