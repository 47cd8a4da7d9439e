package app

import "strings"

// ParseArgs splits a command into whitespace-separated arguments. Words
// between double quotes form a single argument, quotes stripped. An
// unterminated quoted argument is dropped.
func ParseArgs(command string) []string {
	var (
		args    []string
		current strings.Builder
		inQuote bool
		started bool
	)
	flush := func() {
		if started {
			args = append(args, current.String())
			current.Reset()
			started = false
		}
	}

	for _, r := range strings.TrimSpace(command) {
		switch {
		case r == '"':
			if inQuote {
				inQuote = false
				flush()
			} else {
				flush()
				inQuote = true
				started = true
			}
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return args
	}
	flush()
	return args
}
