package postdate

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrUnrecognizedFormat is returned when a post's details block holds none of
// the supported timestamp forms.
var ErrUnrecognizedFormat = errors.New("unrecognized date format")

// FormatError reports the details text that could not be resolved.
type FormatError struct {
	Details string
}

func (e *FormatError) Error() string {
	details := e.Details
	if len(details) > 80 {
		details = details[:77] + "..."
	}
	return fmt.Sprintf("%v: %q", ErrUnrecognizedFormat, details)
}

// Is reports FormatError as ErrUnrecognizedFormat for errors.Is.
func (e *FormatError) Is(target error) bool {
	return target == ErrUnrecognizedFormat
}

var (
	absolutePattern  = regexp.MustCompile(`(\d{2}-\d{2}-\d{4}),\s\d{2}:\d{2}\s(?:AM|PM)`)
	todayPattern     = regexp.MustCompile(`Today,\s\d{2}:\d{2}\s(?:AM|PM)`)
	yesterdayPattern = regexp.MustCompile(`Yesterday,\s\d{2}:\d{2}\s(?:AM|PM)`)
)

// Resolver turns post details text into calendar dates. Relative timestamps
// ("Today", "Yesterday") resolve against Anchor, which callers capture once
// per scrape so every post in a run agrees on what "today" means.
type Resolver struct {
	Anchor Date
}

// NewResolver creates a resolver anchored at the given date.
func NewResolver(anchor Date) *Resolver {
	return &Resolver{Anchor: anchor}
}

// Resolve finds the post date in details. An absolute "MM-DD-YYYY, HH:MM AM"
// timestamp wins over "Today, HH:MM AM", which wins over
// "Yesterday, HH:MM AM".
func (r *Resolver) Resolve(details string) (Date, error) {
	if m := absolutePattern.FindStringSubmatch(details); m != nil {
		d, err := Parse(m[1])
		if err != nil {
			return Date{}, &FormatError{Details: details}
		}
		return d, nil
	}

	if todayPattern.MatchString(details) {
		return r.Anchor, nil
	}

	if yesterdayPattern.MatchString(details) {
		return r.Anchor.AddDays(-1), nil
	}

	return Date{}, &FormatError{Details: details}
}
