package rag

import (
	"fmt"
	"strings"
	"unicode"
)

// separators in the order they are tried when looking for a cut point.
var separators = [][]rune{[]rune("\n\n"), []rune("\n"), []rune(" ")}

// Span is a chunk together with its rune offsets [Start, End) in the source text.
type Span struct {
	Text  string
	Start int
	End   int
}

// Split cuts text into chunks of at most chunkSize characters where adjacent
// chunks share at least overlap characters. Whitespace-only pieces are
// dropped, so chunks on either side of one can share less than overlap, but
// only whitespace is missing between them.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	spans, err := SplitSpans(text, chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out, nil
}

// SplitSpans is Split with offsets.
//
// Each cut is placed after the last blank line, newline or space that falls in
// (start+overlap, start+chunkSize], preferring the second half of that window
// and falling back to a hard cut at chunkSize.
// The next chunk starts overlap characters before the cut, moved back to the
// start of a word when one is within overlap/2.
func SplitSpans(text string, chunkSize, overlap int) ([]Span, error) {
	if chunkSize <= 0 || overlap < 0 || chunkSize <= overlap {
		return nil, fmt.Errorf("%w: chunk size %d must be positive and greater than overlap %d",
			ErrConfiguration, chunkSize, overlap)
	}
	if strings.TrimSpace(text) == "" {
		return []Span{}, nil
	}

	runes := []rune(text)
	n := len(runes)
	spans := make([]Span, 0, n/(chunkSize-overlap)+1)

	for start := 0; start < n; {
		end := start + chunkSize
		if end >= n {
			end = n
		} else {
			lo := start + overlap
			// a cut must keep at least one non-space rune in the chunk
			if c := firstNonSpace(runes, start); c > lo {
				lo = c
			}
			end = findCut(runes, lo, start+chunkSize/2, end)
		}

		piece := string(runes[start:end])
		if strings.TrimSpace(piece) != "" {
			spans = append(spans, Span{Text: piece, Start: start, End: end})
		}
		if end == n {
			break
		}
		start = wordStart(runes, start, end-overlap, overlap/2)
	}
	return spans, nil
}

// findCut returns the cut position p with lo < p <= hi. Separators in the
// second half of the window (after half) are tried before the whole window.
func findCut(runes []rune, lo, half, hi int) int {
	bounds := []int{lo}
	if half > lo {
		bounds = []int{half, lo}
	}
	for _, bound := range bounds {
		for _, sep := range separators {
			for p := hi; p > bound; p-- {
				if hasSuffixAt(runes, p, sep) {
					return p
				}
			}
		}
	}
	return hi
}

func firstNonSpace(runes []rune, from int) int {
	for i := from; i < len(runes); i++ {
		if !unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return len(runes)
}

func hasSuffixAt(runes []rune, p int, sep []rune) bool {
	if p < len(sep) {
		return false
	}
	for i := range sep {
		if runes[p-len(sep)+i] != sep[i] {
			return false
		}
	}
	return true
}

// wordStart moves pos back by at most slack runes to just after whitespace,
// never reaching prevStart.
func wordStart(runes []rune, prevStart, pos, slack int) int {
	for p := pos; p > prevStart && p >= pos-slack; p-- {
		if unicode.IsSpace(runes[p-1]) {
			return p
		}
	}
	return pos
}
