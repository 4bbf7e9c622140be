// Package transcript holds the dialog log, speaker roster, and the text
// cleanup applied to recognized utterances.
package transcript

import (
	"regexp"
	"strings"
)

const (
	// FillerThreshold is the intensity above which filler words are dropped.
	FillerThreshold = 30
	// RepeatThreshold is the intensity above which repeated words collapse.
	RepeatThreshold = 60
)

var fillerPattern = regexp.MustCompile(`(?i)\b(?:um|uh|er|ah|like|you know)\b`)

// Normalize cleans one utterance according to a 0..100 intensity.
// Filler removal runs before repeat collapse, and whitespace is collapsed last.
func Normalize(text string, intensity int) string {
	processed := strings.TrimSpace(text)
	if processed == "" {
		return ""
	}

	if intensity > FillerThreshold {
		processed = fillerPattern.ReplaceAllString(processed, "")
	}
	if intensity > RepeatThreshold {
		processed = collapseRepeats(processed)
	}

	return collapseWhitespace(processed)
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// collapseRepeats merges adjacent tokens that repeat the same word
// (case-insensitive), keeping the first spelling. Trailing punctuation on
// the dropped token is carried over, so "the the." becomes "the.".
func collapseRepeats(text string) string {
	tokens := strings.Fields(text)
	if len(tokens) < 2 {
		return text
	}

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if n := len(out); n > 0 {
			prev := out[n-1]
			tail := trailingWord(prev)
			head := leadingWord(tok)
			if tail != "" && tail == prev[len(prev)-len(tail):] && head != "" && strings.EqualFold(tail, head) {
				out[n-1] = prev + tok[len(head):]
				continue
			}
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// leadingWord returns the run of word characters at the start of tok.
func leadingWord(tok string) string {
	end := 0
	for end < len(tok) && isWordByte(tok[end]) {
		end++
	}
	return tok[:end]
}

// trailingWord returns the run of word characters at the end of tok.
func trailingWord(tok string) string {
	start := len(tok)
	for start > 0 && isWordByte(tok[start-1]) {
		start--
	}
	return tok[start:]
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= '0' && b <= '9') ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z')
}
