// Package match resolves a local media filename to a concrete episode in the
// catalog: parse the filename, search, then walk the results in platform
// preference order.
package match

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	platformTagRegex = regexp.MustCompile(`\[(tencent|qq|iqiyi|youku|bilibili|imgo|mgtv|bahamut|renren|hanjutv|360|vod)\]`)
	seasonEpRegex    = regexp.MustCompile(`(?i)S(\d{1,2})E(\d{1,3})`)
	techTokenRegex   = regexp.MustCompile(`(?i)(2160p|1080p|720p|H265|H264|x26[45]|WEB|BluRay|HDTV|DVDRip)`)
	yearTokenRegex   = regexp.MustCompile(`(19|20)\d{2}`)
	trailingYearRegex = regexp.MustCompile(`[. ]((19|20)\d{2})$`)
	// leading CJK run, allowing embedded Latin, digits and light punctuation
	cjkTitleRegex = regexp.MustCompile(`^[\p{Han}][\p{Han}0-9A-Za-z'"!?\-·：:，、 ]*`)
	cjkRunRegex   = regexp.MustCompile(`[\p{Han}][\p{Han}0-9A-Za-z'"!?\-·：:，、 ]*`)
	latinStopRegex = regexp.MustCompile(`\.(19|20)\d{2}\.`)
)

// ParsedFile is the outcome of filename parsing. Season and Episode are 0 for
// movies.
type ParsedFile struct {
	Title    string
	Season   int
	Episode  int
	Platform string // preferred platform from a [tag], or empty
}

// ParseFileName turns "亲爱的X.S02E07.2160p.WEB-DL.mkv" into its title,
// season and episode, and "Blood.River.2023.1080p.BluRay.x264.mkv" into a
// movie title.
func ParseFileName(fileName string) ParsedFile {
	var parsed ParsedFile

	if m := platformTagRegex.FindStringSubmatch(fileName); m != nil {
		parsed.Platform = normalizePlatformTag(m[1])
		fileName = strings.Replace(fileName, m[0], "", 1)
	}
	fileName = strings.TrimSpace(fileName)
	fileName = strings.TrimSuffix(fileName, extension(fileName))

	if m := seasonEpRegex.FindStringSubmatchIndex(fileName); m != nil {
		parsed.Season, _ = strconv.Atoi(fileName[m[2]:m[3]])
		parsed.Episode, _ = strconv.Atoi(fileName[m[4]:m[5]])
		parsed.Title = cleanTitle(fileName[:m[0]])
		return parsed
	}

	parsed.Title = cleanTitle(fileName)
	return parsed
}

// cleanTitle applies the title heuristics: a leading CJK run wins, then a
// Latin run up to the first year token, then whatever precedes the first
// technical token.
func cleanTitle(raw string) string {
	raw = strings.Trim(raw, " .-_")
	if raw == "" {
		return raw
	}

	var title string
	switch {
	case cjkTitleRegex.MatchString(raw):
		title = cjkTitleRegex.FindString(raw)
		if loc := techTokenRegex.FindStringIndex(title); loc != nil {
			title = title[:loc[0]]
		}
	case isLatinStart(raw):
		title = raw
		if loc := latinStopRegex.FindStringIndex(title); loc != nil {
			title = title[:loc[0]]
		}
		if loc := techTokenRegex.FindStringIndex(title); loc != nil {
			title = title[:loc[0]]
		}
		title = strings.NewReplacer(".", " ", "_", " ").Replace(title)
	default:
		title = raw
		if loc := yearTokenRegex.FindStringIndex(title); loc != nil {
			title = title[:loc[0]]
		}
		if loc := techTokenRegex.FindStringIndex(title); loc != nil {
			title = title[:loc[0]]
		}
		if cjk := cjkRunRegex.FindString(title); cjk != "" {
			title = cjk
		}
	}

	title = strings.Trim(title, " .-_")
	title = trailingYearRegex.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

func isLatinStart(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func extension(fileName string) string {
	idx := strings.LastIndex(fileName, ".")
	// extensions are short; a long tail after the dot is part of the title
	if idx < 0 || len(fileName)-idx > 5 {
		return ""
	}
	return fileName[idx:]
}

func normalizePlatformTag(tag string) string {
	switch tag {
	case "qq":
		return "tencent"
	case "mgtv":
		return "imgo"
	default:
		return tag
	}
}
