package course

import (
	"golang.org/x/text/language"
)

// Language - язык интерфейса и названий уроков.
type Language string

const (
	LangZH Language = "zh"
	LangEN Language = "en"
)

// DefaultLanguage - язык курса по умолчанию (уроки написаны на китайском).
const DefaultLanguage = LangZH

// IsValid проверяет, поддерживается ли язык.
func (l Language) IsValid() bool {
	return l == LangZH || l == LangEN
}

// Tag возвращает BCP 47 тег языка.
func (l Language) Tag() language.Tag {
	if l == LangEN {
		return language.English
	}
	return language.Chinese
}

var matcher = language.NewMatcher([]language.Tag{
	language.Chinese, // первый тег - fallback
	language.English,
})

// ParseLanguage разбирает код языка ("zh", "zh-CN", "en-US" ...).
// Возвращает false, если язык не распознан или не поддерживается.
func ParseLanguage(s string) (Language, bool) {
	tag, err := language.Parse(s)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	switch base.String() {
	case "zh":
		return LangZH, true
	case "en":
		return LangEN, true
	default:
		return "", false
	}
}

// NegotiateLanguage выбирает язык по заголовку Accept-Language.
// Пустой или нераспознанный заголовок даёт DefaultLanguage.
func NegotiateLanguage(acceptLanguage string) Language {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLanguage
	}
	if idx == 1 {
		return LangEN
	}
	return LangZH
}

// Localized - строка на двух языках.
type Localized struct {
	ZH string `yaml:"zh" json:"zh"`
	EN string `yaml:"en" json:"en"`
}

// In возвращает строку на языке lang, подставляя китайский вариант,
// если английский не задан.
func (l Localized) In(lang Language) string {
	if lang == LangEN && l.EN != "" {
		return l.EN
	}
	return l.ZH
}
