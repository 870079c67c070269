package progress

import (
	"encoding/json"

	"github.com/web3-hub/learning-hub/internal/domain/course"
)

// Title - звание ученика, чистая функция от опыта.
type Title string

const (
	TitleNovice     Title = "novice"
	TitleApprentice Title = "apprentice"
	TitleAdvanced   Title = "advanced"
	TitleExpert     Title = "expert"
	TitleMaster     Title = "master"
)

// titleThreshold - нижняя граница опыта для звания.
type titleThreshold struct {
	minXP int
	title Title
	name  course.Localized
}

// thresholds упорядочены по убыванию minXP.
var thresholds = []titleThreshold{
	{10000, TitleMaster, course.Localized{ZH: "Web3 大师", EN: "Web3 Master"}},
	{5000, TitleExpert, course.Localized{ZH: "Web3 专家", EN: "Web3 Expert"}},
	{2000, TitleAdvanced, course.Localized{ZH: "Web3 进阶者", EN: "Web3 Adept"}},
	{500, TitleApprentice, course.Localized{ZH: "Web3 学徒", EN: "Web3 Apprentice"}},
	{0, TitleNovice, course.Localized{ZH: "新手探索者", EN: "Novice Explorer"}},
}

// TitleFor возвращает звание для суммы опыта.
func TitleFor(xp int) Title {
	for _, t := range thresholds {
		if xp >= t.minXP {
			return t.title
		}
	}
	return TitleNovice
}

// Name возвращает отображаемое название звания.
func (t Title) Name(lang course.Language) string {
	for _, th := range thresholds {
		if th.title == t {
			return th.name.In(lang)
		}
	}
	return string(t)
}

// NextThreshold возвращает опыт, нужный для следующего звания, и false для
// высшего звания.
func NextThreshold(xp int) (int, bool) {
	next, ok := 0, false
	for _, t := range thresholds {
		if t.minXP > xp {
			next, ok = t.minXP, true
		}
	}
	return next, ok
}

// UnmarshalJSON принимает как код звания, так и китайское название из
// записей, сохранённых веб-версией.
func (t *Title) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, th := range thresholds {
		if raw == string(th.title) || raw == th.name.ZH {
			*t = th.title
			return nil
		}
	}
	*t = TitleNovice
	return nil
}
