package composer

import (
	"regexp"
	"strconv"
	"time"
)

// renderProgress is one parsed encoder status line.
type renderProgress struct {
	Frame int64
	Time  time.Duration
	Speed float64
}

var (
	frameRe = regexp.MustCompile(`frame=\s*(\d+)`)
	timeRe  = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	// -progress pipe:2 emits out_time_us key/value lines.
	outTimeUsRe = regexp.MustCompile(`out_time_us=(\d+)`)
	speedRe     = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// parseProgressLine extracts progress fields from one encoder stderr line.
// Returns false when the line carries no progress information.
func parseProgressLine(line string, progress *renderProgress) bool {
	matched := false

	if m := frameRe.FindStringSubmatch(line); len(m) > 1 {
		progress.Frame, _ = strconv.ParseInt(m[1], 10, 64)
		matched = true
	}
	if m := outTimeUsRe.FindStringSubmatch(line); len(m) > 1 {
		us, _ := strconv.ParseInt(m[1], 10, 64)
		progress.Time = time.Duration(us) * time.Microsecond
		matched = true
	} else if m := timeRe.FindStringSubmatch(line); len(m) > 4 {
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		secs, _ := strconv.Atoi(m[3])
		centis, _ := strconv.Atoi(m[4])
		progress.Time = time.Duration(hours)*time.Hour +
			time.Duration(mins)*time.Minute +
			time.Duration(secs)*time.Second +
			time.Duration(centis)*10*time.Millisecond
		matched = true
	}
	if m := speedRe.FindStringSubmatch(line); len(m) > 1 {
		progress.Speed, _ = strconv.ParseFloat(m[1], 64)
		matched = true
	}
	return matched
}

// percentOf converts elapsed media time into a render percentage.
func percentOf(position, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	pct := position.Seconds() / total.Seconds() * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
