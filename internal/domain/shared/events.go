package shared

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

const (
	// Progress events
	EventLessonCompleted   EventType = "progress.lesson_completed"
	EventXPGained          EventType = "progress.xp_gained"
	EventTitleChanged      EventType = "progress.title_changed"
	EventStreakUpdated     EventType = "progress.streak_updated"
	EventQuizScoreRecorded EventType = "progress.quiz_score_recorded"
	EventProgressReset     EventType = "progress.reset"

	// Achievement events
	EventBadgeEarned EventType = "achievement.badge_earned"

	// Content events
	EventContentFetched     EventType = "content.fetched"
	EventContentFetchFailed EventType = "content.fetch_failed"
	EventCacheCleaned       EventType = "content.cache_cleaned"
)

// Event is the base interface for all domain events.
type Event interface {
	EventID() string
	EventType() EventType
	OccurredAt() time.Time
	// AggregateID is the learner profile that produced the event.
	AggregateID() string
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

func (e BaseEvent) EventID() string       { return e.ID }
func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent creates a new base event stamped with at.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// LessonCompletedEvent is emitted the first time a lesson key is completed.
type LessonCompletedEvent struct {
	BaseEvent
	LessonKey string `json:"lesson_key"`
	XPAwarded int    `json:"xp_awarded"`
}

func (e LessonCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"lesson_key": e.LessonKey,
		"xp_awarded": e.XPAwarded,
	}
}

// XPGainedEvent is emitted whenever experience increases.
type XPGainedEvent struct {
	BaseEvent
	Amount int    `json:"amount"`
	Total  int    `json:"total"`
	Reason string `json:"reason"`
}

func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount": e.Amount,
		"total":  e.Total,
		"reason": e.Reason,
	}
}

// TitleChangedEvent is emitted when the derived title moves up a tier.
type TitleChangedEvent struct {
	BaseEvent
	OldTitle string `json:"old_title"`
	NewTitle string `json:"new_title"`
}

func (e TitleChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_title": e.OldTitle,
		"new_title": e.NewTitle,
	}
}

// StreakUpdatedEvent is emitted when the study streak counter changes.
type StreakUpdatedEvent struct {
	BaseEvent
	Streak int    `json:"streak"`
	Date   string `json:"date"`
	Reset  bool   `json:"reset"`
}

func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"streak": e.Streak,
		"date":   e.Date,
		"reset":  e.Reset,
	}
}

// QuizScoreRecordedEvent is emitted for every recorded quiz attempt.
type QuizScoreRecordedEvent struct {
	BaseEvent
	LessonID  string `json:"lesson_id"`
	Score     int    `json:"score"`
	Total     int    `json:"total"`
	IsPerfect bool   `json:"is_perfect"`
}

func (e QuizScoreRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"lesson_id":  e.LessonID,
		"score":      e.Score,
		"total":      e.Total,
		"is_perfect": e.IsPerfect,
	}
}

// ProgressResetEvent is emitted when a learner wipes their progress.
type ProgressResetEvent struct {
	BaseEvent
}

func (e ProgressResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// BadgeEarnedEvent is emitted once per badge.
type BadgeEarnedEvent struct {
	BaseEvent
	BadgeID   string `json:"badge_id"`
	ModuleID  string `json:"module_id"`
	Kind      string `json:"kind"`
	XPAwarded int    `json:"xp_awarded"`
}

func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"badge_id":   e.BadgeID,
		"module_id":  e.ModuleID,
		"kind":       e.Kind,
		"xp_awarded": e.XPAwarded,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Content Events
// ═══════════════════════════════════════════════════════════════════════════

// ContentFetchedEvent is emitted when a lesson is resolved from a source tier.
type ContentFetchedEvent struct {
	BaseEvent
	Path string `json:"path"`
	Tier string `json:"tier"`
}

func (e ContentFetchedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"path": e.Path,
		"tier": e.Tier,
	}
}

// ContentFetchFailedEvent is emitted when every tier failed and the
// placeholder was served.
type ContentFetchFailedEvent struct {
	BaseEvent
	Path  string `json:"path"`
	Error string `json:"error"`
}

func (e ContentFetchFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"path":  e.Path,
		"error": e.Error,
	}
}

// CacheCleanedEvent is emitted after a stale-entry sweep.
type CacheCleanedEvent struct {
	BaseEvent
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

func (e CacheCleanedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"removed":   e.Removed,
		"remaining": e.Remaining,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
