package content

import "context"

// Tier - уровень, из которого был получен текст урока.
type Tier string

const (
	TierCache    Tier = "cache"
	TierLocal    Tier = "local"
	TierRemote   Tier = "remote"
	TierFallback Tier = "fallback"
)

// Source - источник Markdown-текста урока по логическому пути.
// Любая ошибка означает, что загрузчик должен перейти к следующему уровню.
type Source interface {
	Tier() Tier
	Fetch(ctx context.Context, path string) (string, error)
}

// ReadmeSuffix дописывается к логическому пути урока.
const ReadmeSuffix = "/README.md"
