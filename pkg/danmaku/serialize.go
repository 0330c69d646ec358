package danmaku

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math/rand"
	"strconv"

	json "github.com/goccy/go-json"
)

// legacyTimestamp is the fixed send-timestamp written into XML output. Players
// ignore it, and a fixed value keeps the output bit-compatible across runs.
const legacyTimestamp = 1751533608

// DefaultFontSize is the XML font size when none is configured.
const DefaultFontSize = 25

// JSONComment is one item of the JSON response.
type JSONComment struct {
	CID int    `json:"cid"`
	P   string `json:"p"`
	M   string `json:"m"`
}

// JSONResponse is the DanDan-compatible comment envelope.
type JSONResponse struct {
	Count    int           `json:"count"`
	Comments []JSONComment `json:"comments"`
}

// ToJSON serializes comments as {count, comments:[{cid, p, m}]} with
// p = "t,mode,color,[platform]".
func ToJSON(comments []Comment) ([]byte, error) {
	response := JSONResponse{
		Count:    len(comments),
		Comments: make([]JSONComment, len(comments)),
	}
	for i, c := range comments {
		response.Comments[i] = JSONComment{
			CID: i + 1,
			P:   fmt.Sprintf("%.2f,%d,%d,[%s]", c.Time, c.Mode, c.Color, c.Platform),
			M:   c.Text,
		}
	}
	return json.Marshal(response)
}

// ToXML serializes comments as a Bilibili-compatible document with 8-field
// p attributes: "t,mode,size,color,ts,pool,userHash,did". fontSize <= 0 falls
// back to DefaultFontSize.
func ToXML(comments []Comment, fontSize int) []byte {
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<i>")
	buf.WriteString("<chatserver>chat.bilibili.com</chatserver><chatid>0</chatid><mission>0</mission><maxlimit>")
	buf.WriteString(strconv.Itoa(len(comments)))
	buf.WriteString("</maxlimit><source>k-v</source>")
	for _, c := range comments {
		buf.WriteString(`<d p="`)
		buf.WriteString(strconv.FormatFloat(c.Time, 'f', 2, 64))
		buf.WriteByte(',')
		buf.WriteString(strconv.Itoa(c.Mode))
		buf.WriteByte(',')
		buf.WriteString(strconv.Itoa(fontSize))
		buf.WriteByte(',')
		buf.WriteString(strconv.Itoa(c.Color))
		buf.WriteByte(',')
		buf.WriteString(strconv.Itoa(legacyTimestamp))
		buf.WriteString(",0,0,")
		buf.WriteString(pseudoDanmakuID())
		buf.WriteString(`">`)
		xml.EscapeText(&buf, []byte(c.Text))
		buf.WriteString("</d>")
	}
	buf.WriteString("</i>")
	return buf.Bytes()
}

// pseudoDanmakuID produces an 11-digit pseudo-unique id for the last p field.
func pseudoDanmakuID() string {
	return strconv.FormatInt(10000000000+rand.Int63n(90000000000), 10)
}
