package transcoder

import (
	"regexp"
	"strconv"
	"time"
)

// Matches the "time=00:00:15.45" field of the ffmpeg status line.
var reTime = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// ParseProgressTime extracts the encoded position in seconds from an ffmpeg
// stderr line.
func ParseProgressTime(line string) (float64, bool) {
	matches := reTime.FindStringSubmatch(line)
	if len(matches) != 4 {
		return 0, false
	}
	h, _ := strconv.Atoi(matches[1])
	m, _ := strconv.Atoi(matches[2])
	s, err := strconv.ParseFloat(matches[3], 64)
	if err != nil {
		return 0, false
	}
	return float64(h*3600+m*60) + s, true
}

// Fraction converts an encoded position to a fraction of duration, clamped to [0,1].
func Fraction(position, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	f := position / duration
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// EstimateETA extrapolates the remaining time from elapsed and progress.
// No estimate is made below 1% progress.
func EstimateETA(elapsed time.Duration, progress float64) (time.Duration, bool) {
	if progress <= 0.01 {
		return 0, false
	}
	if progress >= 1 {
		return 0, true
	}
	remaining := elapsed.Seconds() * (1/progress - 1)
	return time.Duration(remaining * float64(time.Second)), true
}

// passRange maps a pass's own progress onto the whole request.
type passRange struct {
	offset, scale float64
}

var (
	singlePass = passRange{offset: 0, scale: 1}
	firstPass  = passRange{offset: 0, scale: 0.5}
	secondPass = passRange{offset: 0.5, scale: 0.5}
)

func (r passRange) apply(p float64) float64 {
	return r.offset + p*r.scale
}
