package policy

import "strings"

// SplitSegments splits a command into its lexical pipeline segments. The
// separators are the top-level operators &&, ||, ; and |, recognized only
// outside quotes; a lone & (background) is ordinary text. Quote characters
// are copied through so rules can still see them, and a segment opened by
// a pipe keeps a leading "|" marker so pipe-sensitive rules keep matching
// after the split. Segments are trimmed and empty ones dropped. Unbalanced
// quotes are tolerated: scanning simply runs to the end of the input and
// the tail becomes the final segment. SplitSegments cannot fail.
func SplitSegments(command string) []string {
	var segments []string
	var current strings.Builder
	inSingle := false
	inDouble := false

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
			current.WriteRune(ch)
		case ch == '"' && !inSingle:
			inDouble = !inDouble
			current.WriteRune(ch)
		case (ch == '&' || ch == '|') && !inSingle && !inDouble:
			if i+1 < len(runes) && runes[i+1] == ch {
				// && or ||: consume both operator characters.
				flushSegment(&segments, &current)
				i++
			} else if ch == '|' {
				flushSegment(&segments, &current)
				// Keep the operator visible to the next segment.
				current.WriteRune('|')
			} else {
				// A single & backgrounds the command, it does not chain.
				current.WriteRune(ch)
			}
		case ch == ';' && !inSingle && !inDouble:
			flushSegment(&segments, &current)
		default:
			current.WriteRune(ch)
		}
	}
	flushSegment(&segments, &current)
	return segments
}

func flushSegment(segments *[]string, current *strings.Builder) {
	seg := strings.TrimSpace(current.String())
	if seg != "" {
		*segments = append(*segments, seg)
	}
	current.Reset()
}
