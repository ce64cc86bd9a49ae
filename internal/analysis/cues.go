package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var markupPattern = regexp.MustCompile(`<[^>]*>|\{[^}]*\}`)

// Cue is one subtitle block. Untimed cues come from plain text input.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
	Timed bool
}

// ParseCues reads SRT or WebVTT cues from text. Input without any timing
// line is treated as plain text, one cue per paragraph.
func ParseCues(text string) []Cue {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	blocks := splitBlocks(text)

	var cues []Cue
	timed := false
	for _, lines := range blocks {
		timing := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 {
			continue
		}
		start, end, err := parseTimingLine(lines[timing])
		if err != nil {
			continue
		}
		timed = true
		if body := cleanCueText(lines[timing+1:]); body != "" {
			cues = append(cues, Cue{Start: start, End: end, Text: body, Timed: true})
		}
	}
	if timed {
		return cues
	}

	for _, lines := range blocks {
		if len(lines) > 0 && strings.HasPrefix(lines[0], "WEBVTT") {
			continue
		}
		if body := cleanCueText(lines); body != "" {
			cues = append(cues, Cue{Text: body})
		}
	}
	return cues
}

func splitBlocks(text string) [][]string {
	var (
		blocks  [][]string
		current []string
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

func cleanCueText(lines []string) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(markupPattern.ReplaceAllString(line, ""))
		line = strings.TrimLeft(line, "- ")
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func parseTimingLine(line string) (time.Duration, time.Duration, error) {
	left, right, ok := strings.Cut(line, "-->")
	if !ok {
		return 0, 0, fmt.Errorf("missing arrow in %q", line)
	}
	fields := strings.Fields(right)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("missing end timestamp in %q", line)
	}
	start, err := parseTimestamp(left)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(fields[0])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		end = start
	}
	return start, end, nil
}

// parseTimestamp accepts hh:mm:ss,mmm, hh:mm:ss.mmm, and the WebVTT short
// form mm:ss.mmm.
func parseTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ",", ".")
	clock, fraction, _ := strings.Cut(value, ".")
	hms := strings.Split(clock, ":")
	if len(hms) == 2 {
		hms = append([]string{"0"}, hms...)
	}
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	if errH != nil || errM != nil || errS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	var millis int
	if fraction != "" {
		if len(fraction) > 3 {
			fraction = fraction[:3]
		}
		for len(fraction) < 3 {
			fraction += "0"
		}
		ms, err := strconv.Atoi(fraction)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		millis = ms
	}
	total := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second + time.Duration(millis)*time.Millisecond
	return total, nil
}
