package app

import (
	"fmt"

	"github.com/web3-hub/learning-hub/internal/infrastructure/scheduler"
	"github.com/web3-hub/learning-hub/internal/infrastructure/scheduler/jobs"
)

type registration struct {
	job      scheduler.Job
	schedule scheduler.Schedule
}

// NewScheduler registers the content-cache maintenance jobs. The scheduler
// is returned stopped.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	cfg := a.Config.Jobs

	s := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   a.Log,
		Timezone: a.Config.Location(),
	})
	s.OnJobError(func(name string, err error) {
		a.Log.Warn("maintenance job failed", "job", name, "error", err)
	})

	cleanAt, err := scheduler.ParseDaily(cfg.CleanAt)
	if err != nil {
		return nil, err
	}

	registrations := []registration{
		{jobs.NewCleanContentCacheJob(a.Content, a.Log), cleanAt},
		{jobs.NewPersistContentCacheJob(a.Content), scheduler.Every(cfg.PersistInterval)},
	}
	if cfg.WarmInterval > 0 {
		registrations = append(registrations, registration{
			jobs.NewWarmContentCacheJob(a.Content, a.LessonPaths(), cfg.WarmConcurrency, a.Log),
			scheduler.Every(cfg.WarmInterval),
		})
	}

	for _, r := range registrations {
		if err := s.Register(r.job, r.schedule); err != nil {
			return nil, fmt.Errorf("register %s: %w", r.job.Name(), err)
		}
	}
	return s, nil
}

// LessonPaths lists every lesson path of the catalog in course order.
func (a *App) LessonPaths() []string {
	var paths []string
	for _, m := range a.Catalog.Modules() {
		for _, l := range m.Lessons {
			paths = append(paths, l.Path)
		}
	}
	return paths
}
