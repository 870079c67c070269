package course

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH INDEX
// ══════════════════════════════════════════════════════════════════════════════

// SearchHit - найденный урок.
type SearchHit struct {
	Lesson Lesson `json:"lesson"`
	Title  string `json:"title"`
	Score  int    `json:"score"`

	// MatchedIndexes - байтовые позиции совпавших символов в Title.
	MatchedIndexes []int `json:"matched_indexes"`
}

// SearchGroup - результаты поиска одного модуля.
type SearchGroup struct {
	ModuleID    string      `json:"module_id"`
	ModuleTitle string      `json:"module_title"`
	Hits        []SearchHit `json:"hits"`
}

// SearchIndex выполняет нечёткий поиск по названиям уроков.
type SearchIndex struct {
	lessons []Lesson
	titles  map[Language][]string
	modules map[string]Module
	order   []string
}

// titleSource адаптирует список названий к fuzzy.Source.
type titleSource []string

func (s titleSource) String(i int) string { return s[i] }
func (s titleSource) Len() int            { return len(s) }

// NewSearchIndex строит индекс по каталогу. Индексируются названия на обоих
// языках.
func NewSearchIndex(c *Catalog) *SearchIndex {
	idx := &SearchIndex{
		titles:  make(map[Language][]string, 2),
		modules: make(map[string]Module, len(c.Modules())),
	}
	for _, m := range c.Modules() {
		idx.modules[m.ID] = m
		idx.order = append(idx.order, m.ID)
		for _, l := range m.Lessons {
			idx.lessons = append(idx.lessons, l)
			idx.titles[LangZH] = append(idx.titles[LangZH], l.Title.In(LangZH))
			idx.titles[LangEN] = append(idx.titles[LangEN], l.Title.In(LangEN))
		}
	}
	return idx
}

// Search ищет уроки, чьё название содержит символы запроса по порядку.
// Пустой запрос даёт пустой результат. limit <= 0 снимает ограничение.
func (idx *SearchIndex) Search(query string, lang Language, limit int) []SearchHit {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if !lang.IsValid() {
		lang = DefaultLanguage
	}

	matches := fuzzy.FindFrom(query, titleSource(idx.titles[lang]))

	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, SearchHit{
			Lesson:         idx.lessons[m.Index],
			Title:          m.Str,
			Score:          m.Score,
			MatchedIndexes: m.MatchedIndexes,
		})
		if limit > 0 && len(hits) == limit {
			break
		}
	}
	return hits
}

// SearchGrouped ищет уроки и группирует их по модулям в порядке курса.
func (idx *SearchIndex) SearchGrouped(query string, lang Language, limit int) []SearchGroup {
	hits := idx.Search(query, lang, limit)
	if len(hits) == 0 {
		return nil
	}

	byModule := make(map[string][]SearchHit)
	for _, h := range hits {
		byModule[h.Lesson.ModuleID] = append(byModule[h.Lesson.ModuleID], h)
	}

	groups := make([]SearchGroup, 0, len(byModule))
	for _, id := range idx.order {
		moduleHits, ok := byModule[id]
		if !ok {
			continue
		}
		groups = append(groups, SearchGroup{
			ModuleID:    id,
			ModuleTitle: idx.modules[id].Title.In(lang),
			Hits:        moduleHits,
		})
	}
	return groups
}
