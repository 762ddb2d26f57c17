package script

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'", "`", "'")

// Fold puts text in the form words are compared in: NFKC, lower case and
// straight apostrophes. User input and script words both go through it.
func Fold(text string) string {
	return apostrophes.Replace(strings.ToLower(norm.NFKC.String(text)))
}
