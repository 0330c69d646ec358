package sources

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	parensRegex     = regexp.MustCompile(`[（(【\[].*?[）)】\]]`)
)

var chineseNumerals = map[string]int{
	"一": 1, "二": 2, "三": 3, "四": 4, "五": 5,
	"六": 6, "七": 7, "八": 8, "九": 9, "十": 10,
}

// NormalizeTitle folds fullwidth characters to their halfwidth forms, lowers
// the case and collapses runs of whitespace, so comparisons survive the mixed
// conventions the platforms use.
func NormalizeTitle(title string) string {
	title = width.Narrow.String(title)
	title = strings.ToLower(title)
	title = whitespaceRegex.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}

// StripParens removes bracketed qualifiers like （2021） or 【独播】.
func StripParens(title string) string {
	return strings.TrimSpace(parensRegex.ReplaceAllString(title, ""))
}

// SeasonNumber parses a season qualifier: an ASCII digit, a Chinese numeral,
// or the "第N季/部" form. 0 means no season could be read.
func SeasonNumber(residue string) int {
	residue = strings.TrimSpace(residue)
	residue = strings.TrimPrefix(residue, "第")
	residue = strings.TrimSuffix(residue, "季")
	residue = strings.TrimSuffix(residue, "部")
	residue = strings.TrimSpace(residue)
	if residue == "" {
		return 0
	}
	if n, err := strconv.Atoi(residue); err == nil {
		return n
	}
	if n, ok := chineseNumerals[residue]; ok {
		return n
	}
	return 0
}

// TitleMatches decides whether an anime title satisfies query Q.
//
// In strict mode the title (with bracketed qualifiers stripped) must equal Q
// or start with it; otherwise a substring match is enough. If text remains
// after Q, it may still match when it reads as the season the query asked
// for: a digit or a Chinese numeral equal to wantSeason.
func TitleMatches(title, query string, strict bool, wantSeason int) bool {
	cleaned := NormalizeTitle(StripParens(title))
	q := NormalizeTitle(query)
	if cleaned == q {
		return true
	}

	if strings.HasPrefix(cleaned, q) {
		residue := strings.TrimSpace(strings.TrimPrefix(cleaned, q))
		if residue == "" {
			return true
		}
		if wantSeason > 0 && SeasonNumber(residue) == wantSeason {
			return true
		}
		if strict {
			// "starts with" is acceptable in strict mode
			return true
		}
	}
	if !strict && strings.Contains(NormalizeTitle(title), q) {
		return true
	}
	return false
}
