package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration read from dialx.yaml. Besides Go units it
// accepts d (24h) and w (7d), e.g. "90s", "1d", "1w2d".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := parseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

var (
	durationSegment = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)([a-zA-Zµμ]+)`)
	calendarUnits   = map[string]time.Duration{
		"d": 24 * time.Hour,
		"w": 7 * 24 * time.Hour,
	}
)

// parseDuration sums "<number><unit>" segments. d and w are expanded here;
// every other unit is left to time.ParseDuration.
func parseDuration(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("duration is required")
	}
	if s == "0" {
		return 0, nil
	}

	sign := time.Duration(1)
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}

	matches := durationSegment.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 || matches[0][0] != 0 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}

	var total time.Duration
	end := 0
	for _, m := range matches {
		if m[0] != end {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		end = m[1]
		number, unit := s[m[2]:m[3]], s[m[4]:m[5]]

		if per, ok := calendarUnits[unit]; ok {
			n, err := strconv.ParseFloat(number, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
			}
			total += time.Duration(n * float64(per))
			continue
		}
		part, err := time.ParseDuration(number + unit)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: unknown unit %q", raw, unit)
		}
		total += part
	}
	if end != len(s) {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return sign * total, nil
}
