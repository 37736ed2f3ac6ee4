package timing

import (
	"strconv"
	"strings"
	"time"
)

const (
	segmentHandle = "handle"
	segmentTotal  = "total"
)

// Sample holds the clock readings taken for one request. Start and
// BeforeHandle are the same reading: nothing runs between them.
type Sample struct {
	Start        time.Time
	BeforeHandle time.Time
	End          time.Time
}

// Handle is the time spent in the continuation.
func (s Sample) Handle() time.Duration {
	return nonNegative(s.End.Sub(s.BeforeHandle))
}

// Total is the time spent in the whole middleware.
func (s Sample) Total() time.Duration {
	return nonNegative(s.End.Sub(s.Start))
}

// FormatLabel renders s as a Server-Timing value, e.g.
//
//	handle;dur=1.2345,total;dur=1.2345
//
// Disabled segments are left out without stray separators. With both segments
// disabled the label is empty.
func FormatLabel(s Sample, t Trace) string {
	segments := make([]string, 0, 2)
	if t.Handle {
		segments = append(segments, formatSegment(segmentHandle, s.Handle()))
	}
	if t.Total {
		segments = append(segments, formatSegment(segmentTotal, s.Total()))
	}
	return strings.Join(segments, ",")
}

func formatSegment(name string, d time.Duration) string {
	return name + ";dur=" + formatMillis(d)
}

// formatMillis prints fractional milliseconds using the shortest
// representation that round-trips, never in exponent form.
func formatMillis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', -1, 64)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
