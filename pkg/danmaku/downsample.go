package danmaku

import (
	"math"
	"sort"
)

// Downsample reduces a time-sorted comment list to at most `limit` items while
// keeping the per-second density as uniform as possible.
//
// The comments are grouped into 1-second buckets. A floating per-bucket
// threshold T is found by binary search so that the sum of min(len(bucket), T)
// over all buckets lands on the limit. The buckets are then walked in time
// order with an error-diffusion accumulator, so fractional quotas carry over
// into the next bucket instead of being rounded away. Within one bucket the
// kept items are spread with a uniform stride.
//
// limit <= 0 or len(comments) <= limit returns the input unchanged.
func Downsample(comments []Comment, limit int) []Comment {
	if limit <= 0 || len(comments) <= limit {
		return comments
	}

	buckets := make(map[int][]Comment)
	for _, c := range comments {
		sec := int(c.Time)
		buckets[sec] = append(buckets[sec], c)
	}
	seconds := make([]int, 0, len(buckets))
	maxCap := 0
	for sec, b := range buckets {
		seconds = append(seconds, sec)
		if len(b) > maxCap {
			maxCap = len(b)
		}
	}
	sort.Ints(seconds)

	// Binary-search the floating threshold over [0, maxCap].
	lo, hi := 0.0, float64(maxCap)
	var threshold float64
	for i := 0; i < 20; i++ {
		threshold = (lo + hi) / 2
		total := 0.0
		for _, sec := range seconds {
			total += math.Min(float64(len(buckets[sec])), threshold)
		}
		if total > float64(limit) {
			hi = threshold
		} else {
			lo = threshold
		}
	}

	result := make([]Comment, 0, limit)
	acc := 0.5
	prevSec := seconds[0] - 1
	for _, sec := range seconds {
		// Empty seconds reset the accumulator instead of leaking quota
		// across silent stretches.
		if sec != prevSec+1 {
			acc = 0
		}
		prevSec = sec
		bucket := buckets[sec]
		raw := math.Min(float64(len(bucket)), threshold) + acc
		take := int(math.Floor(raw))
		acc = raw - float64(take)
		if take > len(bucket) {
			take = len(bucket)
		}
		if take == 0 {
			continue
		}
		stride := float64(len(bucket)) / float64(take)
		for i := 0; i < take; i++ {
			result = append(result, bucket[int(float64(i)*stride)])
			if len(result) >= limit {
				return result
			}
		}
	}
	return result
}
