package danmaku

import "math/rand"

// DefaultPalette is the built-in soft-tone palette used when DANMU_COLORS is
// not configured. Values are 24-bit RGB.
var DefaultPalette = []int{
	0xFFC9C9, // soft red
	0xFFE3C9, // soft orange
	0xFFF6C9, // soft yellow
	0xDFFFC9, // soft green
	0xC9F5FF, // soft cyan
	0xC9D8FF, // soft blue
	0xE3C9FF, // soft purple
	0xFFC9F0, // soft pink
}

// RecolorOptions controls the palette rewrite stage.
type RecolorOptions struct {
	// WhiteRatio is the percentage of comments recolored white, in [0,100].
	// Anything outside that range disables the stage.
	WhiteRatio float64
	// Palette supplies the non-white colors. Empty falls back to DefaultPalette.
	Palette []int
	// ConvertTopBottom rewrites top/bottom comments to scrolling ones.
	ConvertTopBottom bool
	// Rand drives palette picks. Nil uses the global source.
	Rand *rand.Rand
}

// Recolor rewrites comment colors in place with an error-diffusion balance so
// the white share tracks WhiteRatio smoothly across the stream rather than in
// clumps. Mode conversion runs even when the color stage is disabled.
func Recolor(comments []Comment, opts RecolorOptions) []Comment {
	intn := rand.Intn
	if opts.Rand != nil {
		intn = opts.Rand.Intn
	}
	palette := opts.Palette
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	rewrite := opts.WhiteRatio >= 0 && opts.WhiteRatio <= 100

	balance := 0.5
	for i := range comments {
		if opts.ConvertTopBottom && (comments[i].Mode == ModeBottom || comments[i].Mode == ModeTop) {
			comments[i].Mode = ModeScroll
		}
		if !rewrite {
			continue
		}
		balance += opts.WhiteRatio / 100
		if balance >= 1 {
			comments[i].Color = ColorWhite
			balance -= 1
		} else {
			comments[i].Color = palette[intn(len(palette))]
		}
	}
	return comments
}
