package danmaku

import "strings"

// Simplify converts traditional Chinese characters to their simplified
// forms. The table covers the characters that actually show up in comment
// streams from traditional-script sources; unmapped runes pass through.
// Running it before the dedup window lets the same comment written in
// either script collapse into one.
func Simplify(text string) string {
	if !strings.ContainsFunc(text, func(r rune) bool {
		_, ok := t2s[r]
		return ok
	}) {
		return text
	}
	return strings.Map(func(r rune) rune {
		if s, ok := t2s[r]; ok {
			return s
		}
		return r
	}, text)
}

var t2s = map[rune]rune{
	'們': '们', '這': '这', '說': '说', '時': '时', '會': '会', '過': '过',
	'還': '还', '對': '对', '裡': '里', '後': '后', '來': '来', '個': '个',
	'麼': '么', '沒': '没', '為': '为', '嗎': '吗', '聽': '听', '見': '见',
	'覺': '觉', '點': '点', '樣': '样', '開': '开', '關': '关', '門': '门',
	'問': '问', '間': '间', '與': '与', '東': '东', '車': '车', '馬': '马',
	'鳥': '鸟', '魚': '鱼', '龍': '龙', '風': '风', '雲': '云', '電': '电',
	'書': '书', '學': '学', '寫': '写', '讀': '读', '話': '话', '語': '语',
	'誰': '谁', '請': '请', '謝': '谢', '歡': '欢', '樂': '乐', '愛': '爱',
	'氣': '气', '體': '体', '頭': '头', '臉': '脸', '淚': '泪', '聲': '声',
	'劇': '剧', '戲': '戏', '畫': '画', '圖': '图', '視': '视', '網': '网',
	'絡': '络', '線': '线', '經': '经', '給': '给', '結': '结', '紅': '红',
	'綠': '绿', '藍': '蓝', '黃': '黄', '顏': '颜', '錢': '钱', '銀': '银',
	'鐵': '铁', '長': '长', '幾': '几', '機': '机', '飛': '飞', '島': '岛',
	'邊': '边', '遠': '远', '進': '进', '運': '运', '動': '动', '務': '务',
	'業': '业', '產': '产', '廠': '厂', '廣': '广', '應': '应', '當': '当',
	'員': '员', '圓': '圆', '園': '园', '國': '国', '團': '团', '場': '场',
	'壞': '坏', '壓': '压', '報': '报', '擊': '击', '戰': '战', '勝': '胜',
	'敗': '败', '數': '数', '雙': '双', '單': '单', '隻': '只', '發': '发',
	'變': '变', '讓': '让', '認': '认', '識': '识', '記': '记', '論': '论',
	'許': '许', '設': '设', '訴': '诉', '試': '试', '詞': '词', '該': '该',
	'調': '调', '談': '谈', '護': '护', '貝': '贝', '買': '买', '賣': '卖',
	'貴': '贵', '費': '费', '資': '资', '質': '质', '賽': '赛', '贏': '赢',
	'輸': '输', '較': '较', '輕': '轻', '載': '载', '輪': '轮', '轉': '转',
	'辦': '办', '農': '农', '週': '周', '遊': '游', '達': '达', '選': '选',
	'遲': '迟', '鄉': '乡', '醫': '医', '針': '针', '錯': '错', '鍵': '键',
	'鏡': '镜', '閃': '闪', '陽': '阳', '陰': '阴', '際': '际', '隨': '随',
	'難': '难', '雖': '虽', '頁': '页', '頂': '顶', '項': '项', '順': '顺',
	'須': '须', '預': '预', '領': '领', '顯': '显', '飯': '饭', '飲': '饮',
	'餓': '饿', '館': '馆', '驚': '惊', '騙': '骗', '鬥': '斗', '鬧': '闹',
	'齊': '齐', '齒': '齿', '靈': '灵', '帥': '帅', '讚': '赞', '強': '强',
	'厲': '厉', '慘': '惨', '嚇': '吓', '無': '无', '萬': '万', '專': '专',
	'豐': '丰', '臨': '临', '聖': '圣', '處': '处', '備': '备', '優': '优',
	'傷': '伤', '傳': '传', '僅': '仅', '價': '价', '兒': '儿', '兩': '两',
	'內': '内', '冊': '册', '軍': '军', '決': '决', '臺': '台', '灣': '湾',
	'歷': '历', '著': '着', '異': '异', '終': '终', '統': '统', '續': '续',
	'總': '总', '縮': '缩', '緊': '紧', '約': '约', '級': '级', '純': '纯',
	'紙': '纸', '組': '组', '細': '细', '維': '维', '緒': '绪', '練': '练',
}
