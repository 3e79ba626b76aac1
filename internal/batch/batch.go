// Package batch packs message blocks into size-bounded messages.
package batch

import (
	"strings"
	"unicode/utf8"
)

// DefaultLimit is the Telegram message size limit, in characters.
const DefaultLimit = 4096

// Pack greedily concatenates blocks into the fewest strings of at most limit
// characters. Blocks are never split; a block longer than limit is emitted on
// its own. No blocks yields no batches.
func Pack(blocks []string, limit int) []string {
	var (
		out  []string
		cur  strings.Builder
		size int
	)
	for _, b := range blocks {
		n := utf8.RuneCountInString(b)
		if cur.Len() > 0 && size+n > limit {
			out = append(out, cur.String())
			cur.Reset()
			size = 0
		}
		cur.WriteString(b)
		size += n
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// Oversized returns the indexes of batches longer than limit.
func Oversized(batches []string, limit int) []int {
	var idx []int
	for i, b := range batches {
		if utf8.RuneCountInString(b) > limit {
			idx = append(idx, i)
		}
	}
	return idx
}
