// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/preferences"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON BADGE EARNED HANDLER
// Запоминает последний полученный бейдж в настройках ученика, чтобы
// интерфейс показал уведомление при следующем открытии.
//
// Событие читается через Payload(): так обработчик работает и с локальными
// событиями, и с событиями, пришедшими от других экземпляров через Redis.
// Запись идемпотентна, повторная доставка ничего не меняет.
// ═══════════════════════════════════════════════════════════════════════════

// OnBadgeEarnedHandler обрабатывает BadgeEarnedEvent.
type OnBadgeEarnedHandler struct {
	prefs   *preferences.Repository
	catalog *course.Catalog
	logger  *slog.Logger
	timeout time.Duration
}

// NewOnBadgeEarnedHandler создаёт обработчик.
func NewOnBadgeEarnedHandler(prefs *preferences.Repository, catalog *course.Catalog, logger *slog.Logger) *OnBadgeEarnedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnBadgeEarnedHandler{
		prefs:   prefs,
		catalog: catalog,
		logger:  logger.With("handler", "on_badge_earned"),
		timeout: 5 * time.Second,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnBadgeEarnedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventBadgeEarned {
		return nil
	}

	profile, err := profileOf(event)
	if err != nil {
		h.logger.Warn("badge event with invalid profile", "aggregate_id", event.AggregateID())
		return nil
	}

	badgeID, _ := event.Payload()["badge_id"].(string)
	if badgeID == "" {
		h.logger.Warn("badge event without badge_id", "event_id", event.EventID())
		return nil
	}

	pending := &preferences.PendingBadge{BadgeID: badgeID, Name: badgeID}
	if def, ok := h.catalog.Badge(badgeID); ok {
		pending.Name = def.Name
		pending.Rarity = def.Rarity
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	_, err = h.prefs.UpdatePreferences(ctx, profile, func(prefs *preferences.Preferences) (bool, error) {
		if cur := prefs.PendingBadgeUnlock; cur != nil && *cur == *pending {
			return false, nil
		}
		prefs.SetPendingBadge(pending)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("on_badge_earned: update preferences: %w", err)
	}

	h.logger.Debug("pending badge set", "profile", profile, "badge_id", badgeID)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS RESET HANDLER
// После сброса прогресса уведомление о бейдже теряет смысл.
// ═══════════════════════════════════════════════════════════════════════════

// OnProgressResetHandler снимает отложенное уведомление о бейдже.
type OnProgressResetHandler struct {
	prefs   *preferences.Repository
	logger  *slog.Logger
	timeout time.Duration
}

// NewOnProgressResetHandler создаёт обработчик.
func NewOnProgressResetHandler(prefs *preferences.Repository, logger *slog.Logger) *OnProgressResetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnProgressResetHandler{
		prefs:   prefs,
		logger:  logger.With("handler", "on_progress_reset"),
		timeout: 5 * time.Second,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnProgressResetHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventProgressReset {
		return nil
	}
	profile, err := profileOf(event)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	_, err = h.prefs.UpdatePreferences(ctx, profile, func(prefs *preferences.Preferences) (bool, error) {
		if prefs.PendingBadgeUnlock == nil {
			return false, nil
		}
		prefs.SetPendingBadge(nil)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("on_progress_reset: update preferences: %w", err)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ═══════════════════════════════════════════════════════════════════════════

// Register подписывает обработчики на шину.
func Register(bus shared.EventSubscriber, prefs *preferences.Repository, catalog *course.Catalog, logger *slog.Logger) error {
	if err := bus.Subscribe(shared.EventBadgeEarned, NewOnBadgeEarnedHandler(prefs, catalog, logger).Handle); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventProgressReset, NewOnProgressResetHandler(prefs, logger).Handle)
}

// profileOf восстанавливает профиль из AggregateID события.
func profileOf(event shared.Event) (shared.ProfileID, error) {
	id := event.AggregateID()
	if id == "" {
		return "", shared.ErrInvalidProfile
	}
	return shared.NewProfileID(id)
}
