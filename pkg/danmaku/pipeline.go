package danmaku

import (
	"math/rand"

	"go.uber.org/zap"
)

// PipelineOptions carries the tunables of the comment post-processor.
// Note that WhiteRatio 0 is an active setting (no white, all palette);
// pass -1 to disable the recolor stage.
type PipelineOptions struct {
	BlockedWords     string  // comma-separated /regex/ list, see CompileBlocklist
	GroupMinutes     int     // dedup window, 0 disables
	Limit            int     // target output count, <= 0 unlimited
	WhiteRatio       float64 // [0,100] enables palette recolor, -1 disables
	Palette          []int
	ConvertTopBottom bool
	Simplified       bool // convert traditional Chinese text to simplified
	Rand             *rand.Rand
}

// Pipeline applies the fixed post-processing order to an already normalized
// comment list: blocklist filter, time-window dedup, density-smoothed
// downsampling, palette recolor. The output is sorted by time.
type Pipeline struct {
	opts   PipelineOptions
	logger *zap.Logger
}

func NewPipeline(opts PipelineOptions, logger *zap.Logger) *Pipeline {
	return &Pipeline{opts: opts, logger: logger}
}

func (p *Pipeline) Process(comments []Comment) []Comment {
	before := len(comments)

	blocklist := CompileBlocklist(p.opts.BlockedWords, p.logger)
	comments = blocklist.Filter(comments)
	if p.opts.Simplified {
		for i := range comments {
			comments[i].Text = Simplify(comments[i].Text)
		}
	}
	comments = GroupByWindow(comments, p.opts.GroupMinutes)
	comments = Downsample(comments, p.opts.Limit)
	comments = Recolor(comments, RecolorOptions{
		WhiteRatio:       p.opts.WhiteRatio,
		Palette:          p.opts.Palette,
		ConvertTopBottom: p.opts.ConvertTopBottom,
		Rand:             p.opts.Rand,
	})

	p.logger.Debug("Processed comments", zap.Int("in", before), zap.Int("out", len(comments)))
	return comments
}
