// Package course описывает каталог курса: модули, уроки и определения бейджей.
// Каталог неизменяем после загрузки и встраивается в бинарник как YAML.
package course

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

//go:embed catalog.yaml
var catalogYAML []byte

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Lesson - один урок модуля.
type Lesson struct {
	// ID - идентификатор урока внутри курса, например "1-1".
	ID string `yaml:"id" json:"id"`

	// Path - логический путь контента в репозитории уроков.
	Path string `yaml:"path" json:"path"`

	// Title - название урока.
	Title Localized `yaml:"title" json:"title"`

	// ModuleID заполняется при загрузке каталога.
	ModuleID string `yaml:"-" json:"module_id"`
}

// Key возвращает составной ключ урока "<moduleID>-<lessonID>".
func (l Lesson) Key() string {
	return LessonKey(l.ModuleID, l.ID)
}

// LessonKey строит составной ключ прогресса урока.
func LessonKey(moduleID, lessonID string) string {
	return moduleID + "-" + lessonID
}

// Module - модуль курса с упорядоченным списком уроков.
type Module struct {
	ID      string    `yaml:"id" json:"id"`
	Title   Localized `yaml:"title" json:"title"`
	Lessons []Lesson  `yaml:"lessons" json:"lessons"`
}

// LessonKeys возвращает составные ключи всех уроков модуля по порядку.
func (m Module) LessonKeys() []string {
	keys := make([]string, len(m.Lessons))
	for i, l := range m.Lessons {
		keys[i] = l.Key()
	}
	return keys
}

// Rarity - редкость бейджа.
type Rarity string

const (
	RarityCommon    Rarity = "Common"
	RarityRare      Rarity = "Rare"
	RarityEpic      Rarity = "Epic"
	RarityLegendary Rarity = "Legendary"
)

// BadgeKind - закрытое множество условий получения бейджа.
type BadgeKind string

const (
	BadgeKindModule        BadgeKind = "module"
	BadgeKindSpeedRunner   BadgeKind = "speed_runner"
	BadgeKindPerfectionist BadgeKind = "perfectionist"
	BadgeKindEarlyAdopter  BadgeKind = "early_adopter"
)

// BadgeDefinition - определение бейджа в каталоге.
type BadgeDefinition struct {
	ID     string    `yaml:"id" json:"id"`
	Kind   BadgeKind `yaml:"kind" json:"kind"`
	Name   string    `yaml:"name" json:"name"`
	Title  Localized `yaml:"title" json:"title"`
	Rarity Rarity    `yaml:"rarity" json:"rarity"`

	// ModuleID задан только для BadgeKindModule.
	ModuleID string `yaml:"module,omitempty" json:"module_id,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

type catalogFile struct {
	Fallback Localized         `yaml:"fallback"`
	Modules  []Module          `yaml:"modules"`
	Badges   []BadgeDefinition `yaml:"badges"`
}

// Catalog - загруженный и проверенный каталог курса.
type Catalog struct {
	fallback Localized
	modules  []Module
	badges   []BadgeDefinition

	moduleIdx map[string]int
	badgeIdx  map[string]int
	pathIdx   map[string]Lesson
	keyIdx    map[string]Lesson
}

// Default возвращает встроенный каталог. Паникует, если встроенный YAML
// некорректен: это ошибка сборки, а не времени выполнения.
func Default() *Catalog {
	c, err := Parse(catalogYAML)
	if err != nil {
		panic(fmt.Sprintf("course: embedded catalog: %v", err))
	}
	return c
}

// Parse разбирает и проверяет каталог в формате YAML.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return newCatalog(f)
}

func newCatalog(f catalogFile) (*Catalog, error) {
	c := &Catalog{
		fallback:  f.Fallback,
		modules:   f.Modules,
		badges:    f.Badges,
		moduleIdx: make(map[string]int, len(f.Modules)),
		badgeIdx:  make(map[string]int, len(f.Badges)),
		pathIdx:   make(map[string]Lesson),
		keyIdx:    make(map[string]Lesson),
	}

	lessonIDs := make(map[string]string)
	for mi := range c.modules {
		m := &c.modules[mi]
		if m.ID == "" {
			return nil, fmt.Errorf("module #%d has no id", mi)
		}
		if _, dup := c.moduleIdx[m.ID]; dup {
			return nil, fmt.Errorf("duplicate module %q", m.ID)
		}
		c.moduleIdx[m.ID] = mi

		for li := range m.Lessons {
			l := &m.Lessons[li]
			l.ModuleID = m.ID
			if l.ID == "" || l.Path == "" {
				return nil, fmt.Errorf("module %q lesson #%d needs id and path", m.ID, li)
			}
			if other, dup := lessonIDs[l.ID]; dup {
				return nil, fmt.Errorf("lesson %q appears in %q and %q", l.ID, other, m.ID)
			}
			lessonIDs[l.ID] = m.ID
			c.pathIdx[l.Path] = *l
			c.keyIdx[l.Key()] = *l
		}
	}

	for bi, b := range c.badges {
		if _, dup := c.badgeIdx[b.ID]; dup {
			return nil, fmt.Errorf("duplicate badge %q", b.ID)
		}
		switch b.Kind {
		case BadgeKindModule:
			if _, ok := c.moduleIdx[b.ModuleID]; !ok {
				return nil, fmt.Errorf("badge %q references unknown module %q", b.ID, b.ModuleID)
			}
		case BadgeKindSpeedRunner, BadgeKindPerfectionist, BadgeKindEarlyAdopter:
		default:
			return nil, fmt.Errorf("badge %q has unknown kind %q", b.ID, b.Kind)
		}
		c.badgeIdx[b.ID] = bi
	}

	return c, nil
}

// Modules возвращает модули в порядке курса.
func (c *Catalog) Modules() []Module {
	return c.modules
}

// Module возвращает модуль по ID.
func (c *Catalog) Module(id string) (Module, bool) {
	i, ok := c.moduleIdx[id]
	if !ok {
		return Module{}, false
	}
	return c.modules[i], true
}

// LessonByPath находит урок по пути контента.
func (c *Catalog) LessonByPath(path string) (Lesson, bool) {
	l, ok := c.pathIdx[path]
	return l, ok
}

// ResolveContentPath находит урок по пути контента на любом поддерживаемом
// языке: "en/Web3QuickStart/..." соответствует уроку "zh/Web3QuickStart/...".
// Неизвестный путь - shared.ErrUnknownLessonPath.
func (c *Catalog) ResolveContentPath(path string) (Lesson, error) {
	if l, ok := c.pathIdx[path]; ok {
		return l, nil
	}
	first, rest, ok := strings.Cut(path, "/")
	if ok && Language(first).IsValid() {
		for _, lang := range []Language{LangZH, LangEN} {
			if l, ok := c.pathIdx[string(lang)+"/"+rest]; ok {
				return l, nil
			}
		}
	}
	return Lesson{}, shared.ErrUnknownLessonPath
}

// LessonByKey находит урок по составному ключу "<moduleID>-<lessonID>".
func (c *Catalog) LessonByKey(key string) (Lesson, bool) {
	l, ok := c.keyIdx[key]
	return l, ok
}

// AllLessonKeys возвращает составные ключи всех уроков курса.
func (c *Catalog) AllLessonKeys() []string {
	var keys []string
	for _, m := range c.modules {
		keys = append(keys, m.LessonKeys()...)
	}
	return keys
}

// AllLessonIDs возвращает ID всех уроков курса (без префикса модуля).
func (c *Catalog) AllLessonIDs() []string {
	var ids []string
	for _, m := range c.modules {
		for _, l := range m.Lessons {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// LessonCount - общее число уроков.
func (c *Catalog) LessonCount() int {
	return len(c.pathIdx)
}

// Badges возвращает все определения бейджей.
func (c *Catalog) Badges() []BadgeDefinition {
	return c.badges
}

// Badge возвращает определение бейджа по ID.
func (c *Catalog) Badge(id string) (BadgeDefinition, bool) {
	i, ok := c.badgeIdx[id]
	if !ok {
		return BadgeDefinition{}, false
	}
	return c.badges[i], true
}

// ModuleBadge возвращает бейдж модуля. У части модулей бейджа нет.
func (c *Catalog) ModuleBadge(moduleID string) (BadgeDefinition, bool) {
	for _, b := range c.badges {
		if b.Kind == BadgeKindModule && b.ModuleID == moduleID {
			return b, true
		}
	}
	return BadgeDefinition{}, false
}

// SpecialBadge возвращает бейдж особого вида.
func (c *Catalog) SpecialBadge(kind BadgeKind) (BadgeDefinition, bool) {
	for _, b := range c.badges {
		if b.Kind == kind {
			return b, true
		}
	}
	return BadgeDefinition{}, false
}

// Fallback - текст-заглушка, который показывается, если урок не загрузился.
func (c *Catalog) Fallback(lang Language) string {
	return c.fallback.In(lang)
}
