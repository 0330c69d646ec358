package danmaku

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBlocklistDefaultLengthRule(t *testing.T) {
	bl := CompileBlocklist(DefaultBlockedWords, zap.NewNop())
	require.Equal(t, 1, bl.Len())
	comments := []Comment{
		{Text: strings.Repeat("a", 24)},
		{Text: strings.Repeat("b", 25)},
	}
	kept := bl.Filter(comments)
	require.Len(t, kept, 1)
	require.Equal(t, strings.Repeat("a", 24), kept[0].Text)
}

func TestBlocklistInvalidRuleDropped(t *testing.T) {
	bl := CompileBlocklist(`/[invalid/,/spam/`, zap.NewNop())
	require.Equal(t, 1, bl.Len())
	kept := bl.Filter([]Comment{{Text: "some spam here"}, {Text: "fine"}})
	require.Len(t, kept, 1)
	require.Equal(t, "fine", kept[0].Text)
}

func TestBlocklistCommaInsideRule(t *testing.T) {
	bl := CompileBlocklist(`/^.{25,}$/,/bad word/`, zap.NewNop())
	require.Equal(t, 2, bl.Len())
}

func TestGroupByWindowCollapsesRepeats(t *testing.T) {
	comments := []Comment{
		{Time: 5, Text: "666"},
		{Time: 20, Text: "666"},
		{Time: 40, Text: "666"},
		{Time: 10, Text: "unique"},
		{Time: 70, Text: "666"}, // next window
	}
	grouped := GroupByWindow(comments, 1)
	require.Len(t, grouped, 3)
	require.Equal(t, 5.0, grouped[0].Time)
	require.Equal(t, "666 x3", grouped[0].Text)
	require.Equal(t, "unique", grouped[1].Text)
	require.Equal(t, "666", grouped[2].Text)

	// No two identical texts may remain within one window
	seen := map[string]bool{}
	for _, c := range grouped {
		key := fmt.Sprintf("%d-%s", int(c.Time/60), c.Text)
		require.False(t, seen[key])
		seen[key] = true
	}
}

func TestGroupByWindowMergesExistingSuffix(t *testing.T) {
	comments := []Comment{
		{Time: 1, Text: "gg x2"},
		{Time: 2, Text: "gg"},
	}
	grouped := GroupByWindow(comments, 1)
	require.Len(t, grouped, 1)
	require.Equal(t, "gg x3", grouped[0].Text)
}

func TestGroupByWindowDisabled(t *testing.T) {
	comments := []Comment{{Time: 9, Text: "b"}, {Time: 1, Text: "b"}}
	grouped := GroupByWindow(comments, 0)
	require.Len(t, grouped, 2)
	require.True(t, grouped[0].Time <= grouped[1].Time)
}

func TestDownsampleUniformDensity(t *testing.T) {
	// 100 comments per second over 100 seconds
	var comments []Comment
	for sec := 0; sec < 100; sec++ {
		for i := 0; i < 100; i++ {
			comments = append(comments, Comment{Time: float64(sec) + float64(i)/100, Text: "x"})
		}
	}
	out := Downsample(comments, 500)
	require.LessOrEqual(t, len(out), 500)
	require.GreaterOrEqual(t, len(out), 490)

	perSecond := map[int]int{}
	for _, c := range out {
		perSecond[int(c.Time)]++
	}
	for sec := 0; sec < 100; sec++ {
		require.GreaterOrEqual(t, perSecond[sec], 4, "second %d", sec)
		require.LessOrEqual(t, perSecond[sec], 6, "second %d", sec)
	}

	require.True(t, sort.SliceIsSorted(out, func(i, j int) bool { return out[i].Time < out[j].Time }))
}

func TestDownsampleKeepsSparseSeconds(t *testing.T) {
	// A quiet stream below the threshold must survive untouched.
	var comments []Comment
	for sec := 0; sec < 10; sec++ {
		comments = append(comments, Comment{Time: float64(sec)})
	}
	out := Downsample(comments, 100)
	require.Len(t, out, 10)
}

func TestDownsampleDisabled(t *testing.T) {
	comments := []Comment{{Time: 1}, {Time: 2}}
	require.Len(t, Downsample(comments, -1), 2)
	require.Len(t, Downsample(comments, 0), 2)
}

func TestRecolorWhiteRatioConverges(t *testing.T) {
	const whiteRatio = 30.0
	comments := make([]Comment, 10000)
	out := Recolor(comments, RecolorOptions{
		WhiteRatio: whiteRatio,
		Rand:       rand.New(rand.NewSource(1)),
	})

	white := 0
	for _, c := range out {
		if c.Color == ColorWhite {
			white++
		}
	}
	total := float64(white) / float64(len(out)) * 100
	require.InDelta(t, whiteRatio, total, 1)

	// Error diffusion keeps every 100-comment window within 5 points
	for start := 0; start+100 <= len(out); start += 100 {
		windowWhite := 0
		for _, c := range out[start : start+100] {
			if c.Color == ColorWhite {
				windowWhite++
			}
		}
		require.LessOrEqual(t, math.Abs(float64(windowWhite)-whiteRatio), 5.0)
	}
}

func TestRecolorDisabled(t *testing.T) {
	comments := []Comment{{Color: 42}}
	out := Recolor(comments, RecolorOptions{WhiteRatio: -1})
	require.Equal(t, 42, out[0].Color)
}

func TestRecolorConvertTopBottom(t *testing.T) {
	comments := []Comment{{Mode: ModeTop}, {Mode: ModeBottom}, {Mode: ModeScroll}}
	out := Recolor(comments, RecolorOptions{WhiteRatio: -1, ConvertTopBottom: true})
	for _, c := range out {
		require.Equal(t, ModeScroll, c.Mode)
	}
}

func TestPipelineOrder(t *testing.T) {
	comments := []Comment{
		{Time: 3, Text: strings.Repeat("z", 30)}, // blocked by default rule
		{Time: 2, Text: "hey"},
		{Time: 1, Text: "hey"},
	}
	p := NewPipeline(PipelineOptions{
		BlockedWords: DefaultBlockedWords,
		GroupMinutes: 1,
		WhiteRatio:   -1,
	}, zap.NewNop())
	out := p.Process(comments)
	require.Len(t, out, 1)
	require.Equal(t, 1.0, out[0].Time)
	require.Equal(t, "hey x2", out[0].Text)
}

func TestSimplify(t *testing.T) {
	require.Equal(t, "这个时候谁还没来", Simplify("這個時候誰還沒來"))
	require.Equal(t, "already simplified 你好", Simplify("already simplified 你好"))
}

func TestPipelineSimplifiedDedupsAcrossScripts(t *testing.T) {
	comments := []Comment{
		{Time: 1, Text: "太帥了"},
		{Time: 2, Text: "太帅了"},
	}
	p := NewPipeline(PipelineOptions{
		GroupMinutes: 1,
		WhiteRatio:   -1,
		Simplified:   true,
	}, zap.NewNop())
	out := p.Process(comments)
	require.Len(t, out, 1)
	require.Equal(t, "太帅了 x2", out[0].Text)
}
