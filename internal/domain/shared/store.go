package shared

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY-VALUE STORE
// ══════════════════════════════════════════════════════════════════════════════

// Record names. Each logical record is written wholesale under
// "<profile>:<record>".
const (
	RecordAppPreferences = "web3-app-store"
	RecordSearchHistory  = "web3-search-store"
	RecordUserProgress   = "web3-user-store"
	RecordContentCache   = "web3-content-cache"
)

// KVStore is durable storage keyed by string. Get returns
// ErrRecordNotFound for a missing key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Update replaces the value under key with fn's result atomically with
	// respect to every other Update of the same key, across processes
	// sharing the backend.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// UpdateFunc computes the next value of a record. found is false when the
// key does not exist. A nil next leaves the record untouched. fn may run
// more than once and must not call the store.
type UpdateFunc func(current []byte, found bool) (next []byte, err error)

// ErrUnchanged tells UpdateJSON that fn left the value as it was.
var ErrUnchanged = errors.New("record unchanged")

// ProfileID identifies a learner whose records share one store.
type ProfileID string

const (
	// DefaultProfile is used when a caller does not name a profile.
	DefaultProfile ProfileID = "default"

	// SystemProfile owns records shared by every learner, such as the
	// content cache. It cannot be chosen as a learner profile.
	SystemProfile ProfileID = "system"
)

var profileRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// NewProfileID validates id. An empty id yields DefaultProfile.
func NewProfileID(id string) (ProfileID, error) {
	if id == "" {
		return DefaultProfile, nil
	}
	if !profileRegex.MatchString(id) || ProfileID(id) == SystemProfile {
		return "", ErrInvalidProfile
	}
	return ProfileID(id), nil
}

// String returns the raw ID.
func (p ProfileID) String() string { return string(p) }

// Key returns the store key of record for this profile.
func (p ProfileID) Key(record string) string {
	return string(p) + ":" + record
}

// LoadJSON reads key into v. found is false when the key does not exist.
func LoadJSON(ctx context.Context, store KVStore, key string, v any) (found bool, err error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, WrapError("store", "Get", ErrStorage, "read "+key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, WrapError("store", "Decode", ErrInvalidFormat, "decode "+key, err)
	}
	return true, nil
}

// SaveJSON writes v as JSON under key.
func SaveJSON(ctx context.Context, store KVStore, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return WrapError("store", "Encode", ErrInvalidFormat, "encode "+key, err)
	}
	if err := store.Set(ctx, key, data); err != nil {
		return WrapError("store", "Set", ErrStorage, "write "+key, err)
	}
	return nil
}

// UpdateJSON decodes key into a value from fresh, applies fn and writes
// the result back through KVStore.Update. fn returning ErrUnchanged skips
// the write. The returned value is the one fn saw on its last run.
func UpdateJSON[T any](ctx context.Context, store KVStore, key string, fresh func() *T, fn func(v *T) error) (*T, error) {
	var result *T
	err := store.Update(ctx, key, func(current []byte, found bool) ([]byte, error) {
		v := fresh()
		if found {
			if err := json.Unmarshal(current, v); err != nil {
				return nil, WrapError("store", "Decode", ErrInvalidFormat, "decode "+key, err)
			}
		}
		if err := fn(v); err != nil {
			if errors.Is(err, ErrUnchanged) {
				result = v
				return nil, nil
			}
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, WrapError("store", "Encode", ErrInvalidFormat, "encode "+key, err)
		}
		result = v
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProfileStore is a KVStore that can drop every record of one profile.
type ProfileStore interface {
	KVStore
	DeleteProfile(ctx context.Context, profile ProfileID) (int64, error)
}
