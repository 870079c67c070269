package progress

import (
	"context"

	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// Repository сохраняет и загружает State целиком.
type Repository interface {
	// Load возвращает сохранённое состояние или New(), если записи нет.
	Load(ctx context.Context, profile shared.ProfileID) (*State, error)

	// Save записывает состояние целиком.
	Save(ctx context.Context, profile shared.ProfileID, state *State) error

	// Delete удаляет запись профиля.
	Delete(ctx context.Context, profile shared.ProfileID) error

	// Update применяет fn к сохранённому состоянию и записывает результат
	// атомарно относительно других Update этого профиля, в том числе из
	// других процессов. fn может выполниться несколько раз;
	// shared.ErrUnchanged из fn отменяет запись.
	Update(ctx context.Context, profile shared.ProfileID, fn func(st *State) error) (*State, error)
}

// KVRepository хранит State как JSON в KVStore под ключом
// "<profile>:web3-user-store".
type KVRepository struct {
	store shared.KVStore
}

// NewKVRepository создаёт репозиторий поверх store.
func NewKVRepository(store shared.KVStore) *KVRepository {
	return &KVRepository{store: store}
}

// Load реализует Repository.
func (r *KVRepository) Load(ctx context.Context, profile shared.ProfileID) (*State, error) {
	s := New()
	found, err := shared.LoadJSON(ctx, r.store, profile.Key(shared.RecordUserProgress), s)
	if err != nil {
		return nil, err
	}
	if !found {
		return New(), nil
	}
	s.Normalize()
	return s, nil
}

// Save реализует Repository.
func (r *KVRepository) Save(ctx context.Context, profile shared.ProfileID, state *State) error {
	return shared.SaveJSON(ctx, r.store, profile.Key(shared.RecordUserProgress), state)
}

// Update реализует Repository через shared.KVStore.Update.
func (r *KVRepository) Update(ctx context.Context, profile shared.ProfileID, fn func(st *State) error) (*State, error) {
	return shared.UpdateJSON(ctx, r.store, profile.Key(shared.RecordUserProgress), New, func(st *State) error {
		st.Normalize()
		return fn(st)
	})
}

// Delete реализует Repository.
func (r *KVRepository) Delete(ctx context.Context, profile shared.ProfileID) error {
	return r.store.Delete(ctx, profile.Key(shared.RecordUserProgress))
}
