package danmaku

import (
	"regexp"
	"sort"
	"strconv"
)

var collapseSuffixRegex = regexp.MustCompile(` x(\d+)$`)

// GroupByWindow collapses repeated comment text inside fixed time windows.
// With a window of `minutes`, comments are bucketed by floor(t/(minutes*60));
// within one bucket, identical text (after stripping a previous " xN" suffix)
// collapses into a single comment at the earliest time, with the repeat count
// appended as " x<count>" when more than one was merged. minutes <= 0 is a
// no-op. The result is sorted by time either way.
func GroupByWindow(comments []Comment, minutes int) []Comment {
	if minutes <= 0 {
		sortByTime(comments)
		return comments
	}
	window := float64(minutes * 60)

	type groupKey struct {
		bucket int
		text   string
	}
	type group struct {
		first Comment
		count int
	}

	groups := make(map[groupKey]*group, len(comments))
	order := make([]groupKey, 0, len(comments))
	for _, c := range comments {
		text := c.Text
		count := 1
		if m := collapseSuffixRegex.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 1 {
				count = n
				text = text[:len(text)-len(m[0])]
			}
		}
		key := groupKey{bucket: int(c.Time / window), text: text}
		if g, ok := groups[key]; ok {
			g.count += count
			if c.Time < g.first.Time {
				g.first.Time = c.Time
			}
		} else {
			first := c
			first.Text = text
			groups[key] = &group{first: first, count: count}
			order = append(order, key)
		}
	}

	result := make([]Comment, 0, len(order))
	for _, key := range order {
		g := groups[key]
		c := g.first
		if g.count > 1 {
			c.Text += " x" + strconv.Itoa(g.count)
		}
		result = append(result, c)
	}
	sortByTime(result)
	return result
}

func sortByTime(comments []Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].Time < comments[j].Time
	})
}
