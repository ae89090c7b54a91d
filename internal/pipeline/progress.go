package pipeline

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// Progress is one parsed pv status line.
type Progress struct {
	Percent        int
	Transferred    string
	ElapsedSeconds int
	Speed          string
	ETASeconds     int
}

// pv writes lines like
//
//	340MiB 0:00:07 [60.8MiB/s] [==>      ]  5% ETA 0:02:11
//
// to stderr, terminated by carriage returns while a terminal refresh is
// simulated. The regexp mirrors that shape: transferred size, elapsed
// clock, bracketed speed, bracketed bar, percent, ETA clock.
var progressRe = regexp.MustCompile(
	`^\s*([0-9][0-9.,]*\s?[KMGTPE]?i?B)\s+` +
		`([0-9]+(?::[0-9]{2}){1,2})\s+` +
		`\[\s*([^\]]*?/s)\s*\]\s+` +
		`\[[^\]]*\]\s+` +
		`([0-9]+)%\s+` +
		`ETA\s+([0-9]+(?::[0-9]{2}){1,2})\s*$`)

// ParseProgress reports whether line is a pv status line and, if so,
// returns its parsed fields.
func ParseProgress(line string) (Progress, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}

	percent, err := strconv.Atoi(m[4])
	if err != nil {
		return Progress{}, false
	}

	return Progress{
		Percent:        percent,
		Transferred:    strings.TrimSpace(m[1]),
		ElapsedSeconds: clockToSeconds(m[2]),
		Speed:          m[3],
		ETASeconds:     clockToSeconds(m[5]),
	}, true
}

// clockToSeconds converts a colon separated clock such as "0:02:11" to
// seconds. Each segment weighs sixty times the one to its right, so
// both m:ss and h:mm:ss forms work.
func clockToSeconds(clock string) int {
	total := 0
	for _, part := range strings.Split(clock, ":") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// splitLines is a bufio.SplitFunc that treats both \n and \r as line
// terminators. pv redraws its status line with bare carriage returns,
// so plain line splitting would never surface the updates.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
