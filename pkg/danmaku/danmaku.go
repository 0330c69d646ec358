package danmaku

import (
	"encoding/xml"
	"html"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Comment modes on the wire. Bilibili modes 1-3 are all scrolling variants and
// collapse to ModeScroll during normalization.
const (
	ModeScroll = 1
	ModeBottom = 4
	ModeTop    = 5
)

// ColorWhite is the default danmaku color (0xFFFFFF).
const ColorWhite = 16777215

// Comment is one normalized danmaku item.
type Comment struct {
	Time     float64 // offset into the video, seconds
	Mode     int     // ModeScroll, ModeBottom or ModeTop
	Color    int     // 24-bit RGB
	Text     string
	Platform string // lowercase source name, e.g. "bilibili"
}

// xmlDanmaku mirrors one <d> element of a Bilibili danmaku document.
type xmlDanmaku struct {
	P    string `xml:"p,attr"`
	Text string `xml:",chardata"`
}

type xmlDocument struct {
	XMLName xml.Name     `xml:"i"`
	Items   []xmlDanmaku `xml:"d"`
}

// ParseXML parses a Bilibili-style XML danmaku document:
// <i><d p="t,mode,font,color,ts,pool,userHash,id">text</d>...</i>
func ParseXML(data []byte, platform string) ([]Comment, error) {
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	comments := make([]Comment, 0, len(doc.Items))
	for _, item := range doc.Items {
		fields := strings.Split(item.P, ",")
		if len(fields) < 4 {
			continue
		}
		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		mode, _ := strconv.Atoi(fields[1])
		color, _ := strconv.Atoi(fields[3])
		comments = append(comments, Comment{
			Time:     t,
			Mode:     normalizeMode(mode),
			Color:    normalizeColor(color),
			Text:     NormalizeText(item.Text),
			Platform: platform,
		})
	}
	return comments, nil
}

// ParseJSON parses a JSON array of danmaku in any of the shapes the upstream
// platforms produce:
//   - {"p": "t,mode,color,source", "m": "text"} (legacy 4-field form)
//   - {"timepoint": t, "ct": mode, "color": c, "content": "text"}
//   - {"progress": ms, "mode": m, "content": "text"}
// Items that fit none of the shapes are skipped.
func ParseJSON(data []byte, platform string) []Comment {
	items := gjson.ParseBytes(data).Array()
	comments := make([]Comment, 0, len(items))
	for _, item := range items {
		if c, ok := parseObject(item, platform); ok {
			comments = append(comments, c)
		}
	}
	return comments
}

// ParseObject normalizes a single gjson danmaku object. Exported for source
// adapters that walk nested result documents themselves.
func ParseObject(item gjson.Result, platform string) (Comment, bool) {
	return parseObject(item, platform)
}

func parseObject(item gjson.Result, platform string) (Comment, bool) {
	// Legacy p-string form
	if p := item.Get("p"); p.Exists() {
		fields := strings.Split(p.String(), ",")
		if len(fields) < 3 {
			return Comment{}, false
		}
		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Comment{}, false
		}
		mode, _ := strconv.Atoi(fields[1])
		color, _ := strconv.Atoi(fields[2])
		if len(fields) >= 4 && platform == "" {
			platform = strings.Trim(fields[3], "[]")
		}
		return Comment{
			Time:     t,
			Mode:     normalizeMode(mode),
			Color:    normalizeColor(color),
			Text:     NormalizeText(item.Get("m").String()),
			Platform: platform,
		}, true
	}

	// Tencent/iQiyi-style object form
	if tp := item.Get("timepoint"); tp.Exists() {
		return Comment{
			Time:     tp.Float(),
			Mode:     normalizeMode(int(item.Get("ct").Int())),
			Color:    normalizeColor(int(item.Get("color").Int())),
			Text:     NormalizeText(item.Get("content").String()),
			Platform: platform,
		}, true
	}

	// Bilibili protobuf-ish object form, progress is in milliseconds
	if prog := item.Get("progress"); prog.Exists() {
		return Comment{
			Time:     prog.Float() / 1000,
			Mode:     normalizeMode(int(item.Get("mode").Int())),
			Color:    normalizeColor(int(item.Get("color").Int())),
			Text:     NormalizeText(item.Get("content").String()),
			Platform: platform,
		}, true
	}

	// Youku mtop form, playat is in milliseconds; the color hides in a
	// nested JSON string
	if playat := item.Get("playat"); playat.Exists() {
		color := int(gjson.Parse(item.Get("propertis").String()).Get("color").Int())
		return Comment{
			Time:     playat.Float() / 1000,
			Mode:     ModeScroll,
			Color:    normalizeColor(color),
			Text:     NormalizeText(item.Get("content").String()),
			Platform: platform,
		}, true
	}

	// Mango barrage form, time is in milliseconds
	if ts := item.Get("time"); ts.Exists() {
		return Comment{
			Time:     ts.Float() / 1000,
			Mode:     normalizeMode(int(item.Get("type").Int())),
			Color:    normalizeColor(int(item.Get("v2_color.color_left").Int())),
			Text:     NormalizeText(item.Get("content").String()),
			Platform: platform,
		}, true
	}

	return Comment{}, false
}

// NormalizeText decodes HTML entities and replaces platform emoji shortcodes.
func NormalizeText(s string) string {
	if strings.ContainsRune(s, '&') {
		s = html.UnescapeString(s)
	}
	if strings.ContainsRune(s, '[') {
		s = replaceEmojiShortcodes(s)
	}
	return strings.TrimSpace(s)
}

func normalizeMode(mode int) int {
	switch mode {
	case ModeBottom:
		return ModeBottom
	case ModeTop:
		return ModeTop
	default:
		return ModeScroll
	}
}

func normalizeColor(color int) int {
	if color <= 0 || color > ColorWhite {
		return ColorWhite
	}
	return color
}
