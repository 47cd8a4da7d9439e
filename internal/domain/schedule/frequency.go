// internal/domain/schedule/frequency.go
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"youtrack_notification_bot/internal/domain/channel"
)

// Kind is the kind of a frequency spec.
type Kind string

const (
	KindPolling Kind = "polling"
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
)

// Kinds lists the accepted frequency literals.
var Kinds = []Kind{KindPolling, KindDaily, KindWeekly}

// Relative period keywords understood by the tracker.
const (
	PeriodYesterday = "Yesterday"
	PeriodLastWeek  = "Last week"
)

// Frequency is a parsed frequency spec.
//
// Supported forms:
//   - "polling"
//   - "daily <H:MM>"          e.g. "daily 7:30"
//   - "weekly <day> <H:MM>"   e.g. "weekly friday 16:00"
type Frequency struct {
	Kind    Kind
	Hour    int
	Minute  int
	Weekday time.Weekday
	Raw     string
}

// ParseError reports a malformed frequency spec. Channel and Feature are filled in
// by the caller that knows where the spec came from.
type ParseError struct {
	Raw     string
	Reason  string
	Channel string
	Feature string
}

func (e *ParseError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("invalid frequency %q for %s in %s: %s", e.Raw, e.Feature, e.Channel, e.Reason)
	}
	return fmt.Sprintf("invalid frequency %q: %s", e.Raw, e.Reason)
}

var reHHMM = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// Parse parses a raw frequency spec.
func Parse(raw string) (Frequency, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Frequency{}, &ParseError{Raw: raw, Reason: "frequency required"}
	}

	f := Frequency{Kind: Kind(strings.ToLower(fields[0])), Raw: raw}
	switch f.Kind {
	case KindPolling:
		if len(fields) != 1 {
			return Frequency{}, &ParseError{Raw: raw, Reason: "polling takes no arguments"}
		}
	case KindDaily:
		if len(fields) != 2 {
			return Frequency{}, &ParseError{Raw: raw, Reason: "expected: daily <hour:minute> (24h format), eg: daily 7:30"}
		}
		h, m, err := parseHHMM(fields[1])
		if err != nil {
			return Frequency{}, &ParseError{Raw: raw, Reason: err.Error()}
		}
		f.Hour, f.Minute = h, m
	case KindWeekly:
		if len(fields) != 3 {
			return Frequency{}, &ParseError{Raw: raw, Reason: "expected: weekly <day> <hour:minute> (24h format), eg: weekly friday 14:30"}
		}
		wd, err := parseWeekday(fields[1])
		if err != nil {
			return Frequency{}, &ParseError{Raw: raw, Reason: err.Error()}
		}
		h, m, err := parseHHMM(fields[2])
		if err != nil {
			return Frequency{}, &ParseError{Raw: raw, Reason: err.Error()}
		}
		f.Weekday, f.Hour, f.Minute = wd, h, m
	default:
		return Frequency{}, &ParseError{Raw: raw, Reason: fmt.Sprintf("unknown frequency %q (use polling, daily or weekly)", fields[0])}
	}
	return f, nil
}

// IsDue reports whether f fires at now. Daily and weekly specs match at minute granularity.
func (f Frequency) IsDue(now time.Time) bool {
	switch f.Kind {
	case KindPolling:
		return true
	case KindDaily:
		return now.Hour() == f.Hour && now.Minute() == f.Minute
	case KindWeekly:
		return now.Weekday() == f.Weekday && now.Hour() == f.Hour && now.Minute() == f.Minute
	}
	return false
}

// Window returns the period expression to query for an occurrence firing at now.
// Polling covers the last pollInterval in absolute date-time syntax; daily and
// weekly use the tracker's relative keywords.
func (f Frequency) Window(now time.Time, pollInterval time.Duration) string {
	switch f.Kind {
	case KindDaily:
		return PeriodYesterday
	case KindWeekly:
		return PeriodLastWeek
	}
	return AbsoluteRange(now.Add(-pollInterval), now)
}

// AbsoluteRange formats [from, to] as a tracker date-time range.
func AbsoluteRange(from, to time.Time) string {
	return from.Format(channel.TimestampLayout) + " .. " + to.Format(channel.TimestampLayout)
}

func parseHHMM(v string) (int, int, error) {
	m := reHHMM.FindStringSubmatch(v)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected hour:minute in 24h format", v)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", v)
	}
	if mm > 59 {
		return 0, 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return h, mm, nil
}

func parseWeekday(v string) (time.Weekday, error) {
	low := strings.ToLower(v)
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if low == name || low == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid day %q", v)
}
