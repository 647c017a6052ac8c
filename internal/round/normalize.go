package round

import (
	"regexp"
	"strings"
)

// space is every character that separates words: ASCII whitespace, the
// vertical tab, Unicode space separators (NBSP, em space, ...) and the BOM.
const space = `\s\v\p{Z}\x{FEFF}`

var (
	bracketedRe = regexp.MustCompile(`\[.*?\]|\(.*?\)|\{.*?\}`)
	nonWordRe   = regexp.MustCompile(`[^\w` + space + `]`)
	spaceRe     = regexp.MustCompile(`[` + space + `]+`)
)

// Normalize folds a title or guess into the form used for comparison:
// lower case, bracketed annotations like "(Remix)" removed, punctuation
// dropped and whitespace collapsed. Normalize(Normalize(x)) == Normalize(x).
func Normalize(text string) string {
	s := strings.TrimSpace(strings.ToLower(text))
	s = bracketedRe.ReplaceAllString(s, "")
	s = nonWordRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
