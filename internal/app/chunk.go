package app

import (
	"strings"
	"unicode/utf8"
)

// Chunk splits text on line boundaries into pieces of at most maxChars
// characters. Lines are never split: a line longer than maxChars becomes a
// chunk of its own. Joining the chunks with "\n" gives back text. At least one
// chunk is always returned.
func Chunk(text string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}

	lines := strings.Split(text, "\n")
	chunks := make([]string, 0, 1)
	var current strings.Builder
	currentLen := 0

	for i, line := range lines {
		lineLen := utf8.RuneCountInString(line)
		if i == 0 {
			current.WriteString(line)
			currentLen = lineLen
			continue
		}
		if currentLen+1+lineLen <= maxChars {
			current.WriteByte('\n')
			current.WriteString(line)
			currentLen += 1 + lineLen
			continue
		}
		chunks = append(chunks, current.String())
		current.Reset()
		current.WriteString(line)
		currentLen = lineLen
	}
	return append(chunks, current.String())
}
