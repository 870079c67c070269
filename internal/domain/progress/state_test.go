package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

var (
	utc = timeutil.NewCalendar(time.UTC)
	day = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
)

func TestMarkLessonComplete_FreshState(t *testing.T) {
	s := New()

	changed := s.MarkLessonComplete("1-1", day, utc)

	assert.True(t, changed)
	assert.Equal(t, 100, s.TotalExperience)
	assert.True(t, s.Progress["1-1"])
	assert.Equal(t, 1, s.StudyStreak)
	assert.Equal(t, "2025-03-10", s.LastStudyDate)
	require.NotNil(t, s.FirstActivityTimestamp)
	assert.Equal(t, day, *s.FirstActivityTimestamp)
	assert.Equal(t, TitleNovice, s.UserTitle)
}

func TestMarkLessonComplete_Idempotent(t *testing.T) {
	s := New()
	s.MarkLessonComplete("module-1-1-1", day, utc)
	after := s.Clone()

	for i := 0; i < 5; i++ {
		assert.False(t, s.MarkLessonComplete("module-1-1-1", day.Add(time.Duration(i)*timeutil.Day), utc))
	}

	assert.Equal(t, after, s)
}

func TestMarkLessonComplete_DistinctKeysAccumulate(t *testing.T) {
	s := New()
	for k := 1; k <= 7; k++ {
		s.MarkLessonComplete(fmt.Sprintf("lesson-%d", k), day, utc)
	}
	assert.Equal(t, 700, s.TotalExperience)
	assert.Equal(t, TitleApprentice, s.UserTitle)
	assert.Equal(t, 7, s.CompletedCount())
}

func TestCompleteLesson_LeavesStreakAlone(t *testing.T) {
	s := New()
	assert.True(t, s.CompleteLesson("1-1", day))
	assert.Equal(t, 100, s.TotalExperience)
	assert.Zero(t, s.StudyStreak)
	assert.Empty(t, s.LastStudyDate)
	assert.False(t, s.CompleteLesson("1-1", day))
}

func TestMarkLessonComplete_IgnoresEmptyKey(t *testing.T) {
	s := New()
	assert.False(t, s.MarkLessonComplete("", day, utc))
	assert.Zero(t, s.TotalExperience)
}

func TestGetModuleProgress(t *testing.T) {
	s := New()

	assert.Equal(t, ModuleProgress{}, s.GetModuleProgress(nil))
	assert.Equal(t, ModuleProgress{}, s.GetModuleProgress([]string{}))

	keys := []string{"m-1", "m-2", "m-3", "m-4"}
	s.MarkLessonComplete("m-1", day, utc)
	s.MarkLessonComplete("m-3", day, utc)

	mp := s.GetModuleProgress(keys)
	assert.Equal(t, 2, mp.Completed)
	assert.Equal(t, 4, mp.Total)
	assert.Equal(t, 50.0, mp.Percentage)

	assert.True(t, s.GetLessonProgress("m-1"))
	assert.False(t, s.GetLessonProgress("m-2"))
}

func TestEarnBadge_Idempotent(t *testing.T) {
	s := New()

	assert.True(t, s.EarnBadge("b1", "m1", nil, day))
	assert.False(t, s.EarnBadge("b1", "m1", ModuleBadgeMetadata{LessonCount: 3}, day.Add(time.Hour)))

	assert.Equal(t, 200, s.TotalExperience)
	assert.Equal(t, 1, s.GetBadgeCount())
	assert.True(t, s.HasBadge("b1"))
	assert.False(t, s.HasBadge("b2"))

	b := s.EarnedBadges["b1"]
	assert.Equal(t, day, b.Timestamp)
	assert.Equal(t, ManualBadgeMetadata{}, b.Metadata)
}

func TestTitleThresholds(t *testing.T) {
	tests := []struct {
		xp   int
		want Title
	}{
		{0, TitleNovice},
		{499, TitleNovice},
		{500, TitleApprentice},
		{1999, TitleApprentice},
		{2000, TitleAdvanced},
		{4999, TitleAdvanced},
		{5000, TitleExpert},
		{9999, TitleExpert},
		{10000, TitleMaster},
		{250000, TitleMaster},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.xp), func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFor(tt.xp))
		})
	}

	assert.Equal(t, "Web3 学徒", TitleApprentice.Name(course.LangZH))
	assert.Equal(t, "Novice Explorer", TitleNovice.Name(course.LangEN))

	next, ok := NextThreshold(499)
	assert.True(t, ok)
	assert.Equal(t, 500, next)
	_, ok = NextThreshold(10000)
	assert.False(t, ok)
}

func TestAddExperience(t *testing.T) {
	s := New()

	require.NoError(t, s.AddExperience(499))
	assert.Equal(t, TitleNovice, s.UserTitle)

	require.NoError(t, s.AddExperience(1))
	assert.Equal(t, TitleApprentice, s.UserTitle)

	err := s.AddExperience(-10)
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
	assert.Equal(t, 500, s.TotalExperience)
}

func TestStudyStreak(t *testing.T) {
	t.Run("consecutive days", func(t *testing.T) {
		s := New()
		s.MarkLessonComplete("a", day, utc)
		s.MarkLessonComplete("b", day.Add(timeutil.Day), utc)
		assert.Equal(t, 2, s.StudyStreak)
	})

	t.Run("gap resets", func(t *testing.T) {
		s := New()
		s.MarkLessonComplete("a", day, utc)
		s.MarkLessonComplete("b", day.Add(2*timeutil.Day), utc)
		assert.Equal(t, 1, s.StudyStreak)
	})

	t.Run("same day counted once", func(t *testing.T) {
		s := New()
		s.MarkLessonComplete("a", day, utc)
		s.MarkLessonComplete("b", day.Add(time.Hour), utc)
		assert.Equal(t, 1, s.StudyStreak)
	})

	t.Run("calendar days not elapsed hours", func(t *testing.T) {
		s := New()
		late := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
		s.MarkLessonComplete("a", late, utc)
		s.MarkLessonComplete("b", late.Add(2*time.Minute), utc)
		assert.Equal(t, 2, s.StudyStreak)
	})

	t.Run("location decides the day", func(t *testing.T) {
		shanghai := timeutil.NewCalendar(time.FixedZone("CST", 8*3600))
		s := New()
		// 15:30 UTC and 16:30 UTC are the 10th and the 11th in UTC+8.
		s.MarkLessonComplete("a", time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC), shanghai)
		s.MarkLessonComplete("b", time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC), shanghai)
		assert.Equal(t, 2, s.StudyStreak)
	})

	t.Run("corrupt date restarts", func(t *testing.T) {
		s := New()
		s.StudyStreak = 7
		s.LastStudyDate = "10/03/2025"
		assert.True(t, s.UpdateStudyStreak(day, utc))
		assert.Equal(t, 1, s.StudyStreak)
		assert.Equal(t, "2025-03-10", s.LastStudyDate)
	})
}

func TestRecordQuizScore(t *testing.T) {
	s := New()

	qs, err := s.RecordQuizScore("1-1", 5, 5)
	require.NoError(t, err)
	assert.True(t, qs.IsPerfect)

	qs, err = s.RecordQuizScore("1-1", 3, 5)
	require.NoError(t, err)
	assert.False(t, qs.IsPerfect)
	assert.Equal(t, qs, s.QuizScores["1-1"])

	qs, err = s.RecordQuizScore("1-2", 0, 0)
	require.NoError(t, err)
	assert.False(t, qs.IsPerfect)

	_, err = s.RecordQuizScore("1-3", 6, 5)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
	_, err = s.RecordQuizScore("1-3", -1, 5)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestReset_KeepsWallet(t *testing.T) {
	s := New()
	s.ConnectWallet("0xabc")
	s.MarkLessonComplete("a", day, utc)
	s.EarnBadge("b", "m", nil, day)

	s.Reset()

	assert.Zero(t, s.TotalExperience)
	assert.Empty(t, s.Progress)
	assert.Empty(t, s.EarnedBadges)
	assert.Nil(t, s.FirstActivityTimestamp)
	assert.Equal(t, "0xabc", s.WalletAddress)
	assert.True(t, s.Connected)

	s.DisconnectWallet()
	assert.False(t, s.Connected)
}

func TestStateJSON_RoundTripsBadgeVariants(t *testing.T) {
	s := New()
	first := day.Add(-time.Hour)
	s.EarnBadge("web3-pioneer", "module-1", ModuleBadgeMetadata{LessonCount: 7}, day)
	s.EarnBadge("speed-runner", "special", SpeedRunnerMetadata{Elapsed: 3 * time.Hour}, day)
	s.EarnBadge("perfectionist", "special", PerfectionistMetadata{QuizCount: 37}, day)
	s.EarnBadge("early-adopter", "special", EarlyAdopterMetadata{FirstActivity: first}, day)
	s.EarnBadge("manual", "m9", nil, day)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"speed_runner"`)

	var got State
	require.NoError(t, json.Unmarshal(data, &got))
	for id, want := range s.EarnedBadges {
		assert.Equal(t, want.Metadata, got.EarnedBadges[id].Metadata, id)
		assert.True(t, want.Timestamp.Equal(got.EarnedBadges[id].Timestamp), id)
	}
}

func TestStateJSON_RejectsUnknownMetadataKind(t *testing.T) {
	var b EarnedBadge
	err := json.Unmarshal([]byte(`{"moduleId":"m","metadata":{"kind":"wizard"}}`), &b)
	assert.Error(t, err)
}

func TestStateJSON_AcceptsLegacyTitle(t *testing.T) {
	var s State
	require.NoError(t, json.Unmarshal([]byte(`{"userTitle":"Web3 专家","totalExperience":5200}`), &s))
	assert.Equal(t, TitleExpert, s.UserTitle)

	s.Normalize()
	assert.NotNil(t, s.Progress)
	assert.NotNil(t, s.QuizScores)
}

// mapStore is a minimal shared.KVStore for repository tests.
type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, shared.ErrRecordNotFound
	}
	return v, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapStore) Update(_ context.Context, key string, fn shared.UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, found := m.data[key]
	next, err := fn(current, found)
	if err != nil || next == nil {
		return err
	}
	m.data[key] = next
	return nil
}

func (m *mapStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestKVRepository(t *testing.T) {
	ctx := context.Background()
	store := &mapStore{data: make(map[string][]byte)}
	repo := NewKVRepository(store)
	alice := shared.ProfileID("alice")

	s, err := repo.Load(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, New(), s)

	s.MarkLessonComplete("module-1-1-1", day, utc)
	require.NoError(t, repo.Save(ctx, alice, s))
	assert.Contains(t, store.data, "alice:web3-user-store")

	loaded, err := repo.Load(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 100, loaded.TotalExperience)
	assert.True(t, loaded.Progress["module-1-1-1"])

	require.NoError(t, repo.Delete(ctx, alice))
	loaded, err = repo.Load(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, loaded.TotalExperience)

	store.data["bob:web3-user-store"] = []byte("{not json")
	_, err = repo.Load(ctx, "bob")
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}
