package danmaku

import "strings"

// emojiShortcodes maps the bracketed shortcodes the upstream platforms embed in
// comment text to plain text. The map spans the QQ, Bilibili, Youku, iQiyi,
// Mango and Douyin shortcode sets; unknown shortcodes are kept verbatim.
var emojiShortcodes = map[string]string{
	// QQ / Tencent video
	"微笑":  "🙂",
	"撇嘴":  "😒",
	"色":   "😍",
	"发呆":  "😳",
	"得意":  "😎",
	"流泪":  "😭",
	"害羞":  "😊",
	"闭嘴":  "🤐",
	"睡":   "😴",
	"大哭":  "😭",
	"尴尬":  "😅",
	"发怒":  "😡",
	"调皮":  "😜",
	"呲牙":  "😁",
	"惊讶":  "😮",
	"难过":  "😞",
	"囧":   "😓",
	"抓狂":  "😫",
	"吐":   "🤮",
	"偷笑":  "🤭",
	"愉快":  "☺️",
	"白眼":  "🙄",
	"傲慢":  "😏",
	"困":   "😪",
	"惊恐":  "😱",
	"憨笑":  "😄",
	"悠闲":  "😌",
	"咒骂":  "🤬",
	"疑问":  "❓",
	"嘘":   "🤫",
	"晕":   "😵",
	"衰":   "😩",
	"骷髅":  "💀",
	"敲打":  "🔨",
	"再见":  "👋",
	"擦汗":  "😓",
	"鼓掌":  "👏",
	"坏笑":  "😈",
	"鄙视":  "😤",
	"委屈":  "🥺",
	"阴险":  "😏",
	"亲亲":  "😘",
	"可怜":  "🥺",
	"强":   "👍",
	"弱":   "👎",
	"握手":  "🤝",
	"胜利":  "✌️",
	"抱拳":  "🙏",
	"拳头":  "✊",
	"OK":  "👌",
	"玫瑰":  "🌹",
	"凋谢":  "🥀",
	"嘴唇":  "💋",
	"爱心":  "❤️",
	"心碎":  "💔",
	"蛋糕":  "🎂",
	"炸弹":  "💣",
	"便便":  "💩",
	"月亮":  "🌙",
	"太阳":  "☀️",
	"拥抱":  "🤗",
	"赞":   "👍",
	"踩":   "👎",
	// Bilibili
	"笑哭":  "😂",
	"doge": "🐶",
	"滑稽":  "😏",
	"吃瓜":  "🍉",
	"打call": "📣",
	"泪":   "😢",
	"喜欢":  "😍",
	"生气":  "😠",
	"酸了":  "🍋",
	"支持":  "👍",
	"藏狐":  "🦊",
	"呆":   "😐",
	"热词系列": "🔥",
	// Youku / iQiyi / Mango / Douyin
	"哈哈":  "😄",
	"笑cry": "😂",
	"机智":  "🤓",
	"捂脸":  "🤦",
	"飞吻":  "😘",
	"灵机一动": "💡",
	"666": "6️⃣6️⃣6️⃣",
	"送心":  "💗",
	"比心":  "🫰",
	"加油":  "💪",
	"鼓励":  "👏",
	"看":   "👀",
}

// replaceEmojiShortcodes substitutes every known [shortcode] occurrence.
// Unknown names are kept as-is, brackets included.
func replaceEmojiShortcodes(s string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '[')
		if open < 0 {
			break
		}
		end := strings.IndexByte(s[open:], ']')
		if end < 0 {
			break
		}
		end += open
		name := s[open+1 : end]
		if emoji, ok := emojiShortcodes[name]; ok {
			b.WriteString(s[:open])
			b.WriteString(emoji)
		} else {
			b.WriteString(s[:end+1])
		}
		s = s[end+1:]
	}
	if b.Len() == 0 {
		return s
	}
	b.WriteString(s)
	return b.String()
}
