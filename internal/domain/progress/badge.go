package progress

import (
	"encoding/json"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// EARNED BADGE
// ══════════════════════════════════════════════════════════════════════════════

// EarnedBadge - запись о полученном бейдже.
type EarnedBadge struct {
	ModuleID  string        `json:"moduleId"`
	Timestamp time.Time     `json:"timestamp"`
	Metadata  BadgeMetadata `json:"metadata"`
}

// MetadataKind - дискриминатор варианта метаданных.
type MetadataKind string

const (
	MetadataModule        MetadataKind = "module"
	MetadataSpeedRunner   MetadataKind = "speed_runner"
	MetadataPerfectionist MetadataKind = "perfectionist"
	MetadataEarlyAdopter  MetadataKind = "early_adopter"
	MetadataManual        MetadataKind = "manual"
)

// BadgeMetadata - закрытое множество вариантов метаданных бейджа.
// Реализации есть только в этом пакете.
type BadgeMetadata interface {
	Kind() MetadataKind
	isBadgeMetadata()
}

// ModuleBadgeMetadata - бейдж за завершение всех уроков модуля.
type ModuleBadgeMetadata struct {
	LessonCount int
}

// SpeedRunnerMetadata - весь курс пройден быстрее суток.
type SpeedRunnerMetadata struct {
	Elapsed time.Duration
}

// PerfectionistMetadata - все тесты пройдены без ошибок.
type PerfectionistMetadata struct {
	QuizCount int
}

// EarlyAdopterMetadata - ученик начал в первую неделю после запуска.
type EarlyAdopterMetadata struct {
	FirstActivity time.Time
}

// ManualBadgeMetadata - бейдж выдан прямым вызовом EarnBadge.
type ManualBadgeMetadata struct{}

func (ModuleBadgeMetadata) Kind() MetadataKind   { return MetadataModule }
func (SpeedRunnerMetadata) Kind() MetadataKind   { return MetadataSpeedRunner }
func (PerfectionistMetadata) Kind() MetadataKind { return MetadataPerfectionist }
func (EarlyAdopterMetadata) Kind() MetadataKind  { return MetadataEarlyAdopter }
func (ManualBadgeMetadata) Kind() MetadataKind   { return MetadataManual }

func (ModuleBadgeMetadata) isBadgeMetadata()   {}
func (SpeedRunnerMetadata) isBadgeMetadata()   {}
func (PerfectionistMetadata) isBadgeMetadata() {}
func (EarlyAdopterMetadata) isBadgeMetadata()  {}
func (ManualBadgeMetadata) isBadgeMetadata()   {}

// ══════════════════════════════════════════════════════════════════════════════
// JSON
// ══════════════════════════════════════════════════════════════════════════════

type metadataJSON struct {
	Kind          MetadataKind `json:"kind"`
	LessonCount   int          `json:"lessonCount,omitempty"`
	ElapsedMs     int64        `json:"elapsedMs,omitempty"`
	QuizCount     int          `json:"quizCount,omitempty"`
	FirstActivity *time.Time   `json:"firstActivity,omitempty"`
}

type earnedBadgeJSON struct {
	ModuleID  string        `json:"moduleId"`
	Timestamp time.Time     `json:"timestamp"`
	Metadata  *metadataJSON `json:"metadata,omitempty"`
}

// MarshalJSON пишет метаданные с полем kind.
func (b EarnedBadge) MarshalJSON() ([]byte, error) {
	out := earnedBadgeJSON{ModuleID: b.ModuleID, Timestamp: b.Timestamp}
	if b.Metadata != nil {
		m := &metadataJSON{Kind: b.Metadata.Kind()}
		switch v := b.Metadata.(type) {
		case ModuleBadgeMetadata:
			m.LessonCount = v.LessonCount
		case SpeedRunnerMetadata:
			m.ElapsedMs = v.Elapsed.Milliseconds()
		case PerfectionistMetadata:
			m.QuizCount = v.QuizCount
		case EarlyAdopterMetadata:
			t := v.FirstActivity
			m.FirstActivity = &t
		}
		out.Metadata = m
	}
	return json.Marshal(out)
}

// UnmarshalJSON восстанавливает вариант по kind. Отсутствующие метаданные
// читаются как ManualBadgeMetadata, неизвестный kind - ошибка.
func (b *EarnedBadge) UnmarshalJSON(data []byte) error {
	var in earnedBadgeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	b.ModuleID = in.ModuleID
	b.Timestamp = in.Timestamp

	if in.Metadata == nil {
		b.Metadata = ManualBadgeMetadata{}
		return nil
	}
	switch in.Metadata.Kind {
	case MetadataModule:
		b.Metadata = ModuleBadgeMetadata{LessonCount: in.Metadata.LessonCount}
	case MetadataSpeedRunner:
		b.Metadata = SpeedRunnerMetadata{Elapsed: time.Duration(in.Metadata.ElapsedMs) * time.Millisecond}
	case MetadataPerfectionist:
		b.Metadata = PerfectionistMetadata{QuizCount: in.Metadata.QuizCount}
	case MetadataEarlyAdopter:
		var t time.Time
		if in.Metadata.FirstActivity != nil {
			t = *in.Metadata.FirstActivity
		}
		b.Metadata = EarlyAdopterMetadata{FirstActivity: t}
	case MetadataManual, "":
		b.Metadata = ManualBadgeMetadata{}
	default:
		return fmt.Errorf("unknown badge metadata kind %q", in.Metadata.Kind)
	}
	return nil
}
