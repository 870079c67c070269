// Package preferences - настройки приложения и история поиска ученика.
package preferences

import (
	"context"
	"strings"

	"github.com/web3-hub/learning-hub/internal/domain/course"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCES
// ══════════════════════════════════════════════════════════════════════════════

// PendingBadge - бейдж, о котором интерфейс ещё не показал уведомление.
type PendingBadge struct {
	BadgeID string        `json:"badgeId"`
	Name    string        `json:"name"`
	Rarity  course.Rarity `json:"rarity"`
}

// Preferences хранится под ключом web3-app-store.
type Preferences struct {
	Language    course.Language `json:"language"`
	TutorAPIKey string          `json:"geminiApiKey"`
	APIKeySet   bool            `json:"apiKeySet"`

	// PendingBadgeUnlock сбрасывается, когда интерфейс показал уведомление.
	PendingBadgeUnlock *PendingBadge `json:"pendingBadgeUnlock,omitempty"`
}

// Default возвращает настройки по умолчанию.
func Default() *Preferences {
	return &Preferences{Language: course.DefaultLanguage}
}

// SetLanguage меняет язык интерфейса.
func (p *Preferences) SetLanguage(lang course.Language) error {
	if !lang.IsValid() {
		return shared.ErrUnsupportedLanguage
	}
	p.Language = lang
	return nil
}

// SetTutorAPIKey сохраняет ключ ИИ-помощника. Пустой ключ равносилен
// ClearTutorAPIKey.
func (p *Preferences) SetTutorAPIKey(key string) {
	p.TutorAPIKey = strings.TrimSpace(key)
	p.APIKeySet = p.TutorAPIKey != ""
}

// ClearTutorAPIKey удаляет ключ.
func (p *Preferences) ClearTutorAPIKey() {
	p.TutorAPIKey = ""
	p.APIKeySet = false
}

// SetPendingBadge запоминает последний полученный бейдж.
func (p *Preferences) SetPendingBadge(b *PendingBadge) {
	p.PendingBadgeUnlock = b
}

// MaskedAPIKey возвращает ключ, пригодный для отображения.
func (p *Preferences) MaskedAPIKey() string {
	k := p.TutorAPIKey
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

// View - настройки без открытого ключа, для показа клиенту.
type View struct {
	Language     course.Language `json:"language"`
	APIKeySet    bool            `json:"apiKeySet"`
	MaskedAPIKey string          `json:"maskedApiKey,omitempty"`
	PendingBadge *PendingBadge   `json:"pendingBadgeUnlock,omitempty"`
}

// View возвращает настройки с замаскированным ключом.
func (p *Preferences) View() View {
	v := View{
		Language:     p.Language,
		APIKeySet:    p.APIKeySet,
		PendingBadge: p.PendingBadgeUnlock,
	}
	if p.APIKeySet {
		v.MaskedAPIKey = p.MaskedAPIKey()
	}
	return v
}

func (p *Preferences) normalize() {
	if !p.Language.IsValid() {
		p.Language = course.DefaultLanguage
	}
	p.APIKeySet = p.TutorAPIKey != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH HISTORY
// ══════════════════════════════════════════════════════════════════════════════

// MaxHistory - сколько запросов хранит история поиска.
const MaxHistory = 5

// SearchHistory - последние запросы, новые первыми, без повторов.
type SearchHistory struct {
	Queries []string `json:"searchHistory"`
}

// Add добавляет запрос в начало. Пустой запрос игнорируется, повтор
// переносится в начало.
func (h *SearchHistory) Add(query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return false
	}
	out := make([]string, 0, MaxHistory)
	out = append(out, query)
	for _, q := range h.Queries {
		if q != query && len(out) < MaxHistory {
			out = append(out, q)
		}
	}
	h.Queries = out
	return true
}

// Remove удаляет запрос из истории.
func (h *SearchHistory) Remove(query string) bool {
	for i, q := range h.Queries {
		if q == query {
			h.Queries = append(h.Queries[:i:i], h.Queries[i+1:]...)
			return true
		}
	}
	return false
}

// Clear очищает историю.
func (h *SearchHistory) Clear() {
	h.Queries = nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит обе записи профиля в KVStore.
type Repository struct {
	store shared.KVStore
}

// NewRepository создаёт репозиторий поверх store.
func NewRepository(store shared.KVStore) *Repository {
	return &Repository{store: store}
}

// LoadPreferences возвращает сохранённые настройки или Default().
func (r *Repository) LoadPreferences(ctx context.Context, profile shared.ProfileID) (*Preferences, error) {
	p := Default()
	if _, err := shared.LoadJSON(ctx, r.store, profile.Key(shared.RecordAppPreferences), p); err != nil {
		return nil, err
	}
	p.normalize()
	return p, nil
}

// SavePreferences записывает настройки целиком.
func (r *Repository) SavePreferences(ctx context.Context, profile shared.ProfileID, p *Preferences) error {
	return shared.SaveJSON(ctx, r.store, profile.Key(shared.RecordAppPreferences), p)
}

// UpdatePreferences атомарно применяет fn к сохранённым настройкам. fn
// может вызываться повторно и сообщает, изменила ли она запись; без
// изменений запись не перезаписывается. Возвращает итоговые настройки.
func (r *Repository) UpdatePreferences(ctx context.Context, profile shared.ProfileID, fn func(p *Preferences) (changed bool, err error)) (*Preferences, error) {
	return shared.UpdateJSON(ctx, r.store, profile.Key(shared.RecordAppPreferences), Default, func(p *Preferences) error {
		p.normalize()
		return changedOrSkip(fn(p))
	})
}

// UpdateHistory атомарно применяет fn к истории поиска. Семантика fn как
// у UpdatePreferences.
func (r *Repository) UpdateHistory(ctx context.Context, profile shared.ProfileID, fn func(h *SearchHistory) (changed bool, err error)) (*SearchHistory, error) {
	fresh := func() *SearchHistory { return &SearchHistory{} }
	return shared.UpdateJSON(ctx, r.store, profile.Key(shared.RecordSearchHistory), fresh, func(h *SearchHistory) error {
		if len(h.Queries) > MaxHistory {
			h.Queries = h.Queries[:MaxHistory]
		}
		return changedOrSkip(fn(h))
	})
}

func changedOrSkip(changed bool, err error) error {
	if err != nil {
		return err
	}
	if !changed {
		return shared.ErrUnchanged
	}
	return nil
}

// LoadHistory возвращает историю поиска.
func (r *Repository) LoadHistory(ctx context.Context, profile shared.ProfileID) (*SearchHistory, error) {
	h := &SearchHistory{}
	if _, err := shared.LoadJSON(ctx, r.store, profile.Key(shared.RecordSearchHistory), h); err != nil {
		return nil, err
	}
	if len(h.Queries) > MaxHistory {
		h.Queries = h.Queries[:MaxHistory]
	}
	return h, nil
}

// SaveHistory записывает историю поиска целиком.
func (r *Repository) SaveHistory(ctx context.Context, profile shared.ProfileID, h *SearchHistory) error {
	return shared.SaveJSON(ctx, r.store, profile.Key(shared.RecordSearchHistory), h)
}
