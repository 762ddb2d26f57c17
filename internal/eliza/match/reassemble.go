package match

import (
	"strings"

	"github.com/bdobrica/Eliza/internal/eliza/lexer"
	"github.com/bdobrica/Eliza/internal/eliza/script"
)

// Reassemble renders t. Literal text is copied as written; each (n) marker
// is replaced by fragment n with post applied word by word. When a fragment
// is empty the doubled space it would leave behind is dropped.
func Reassemble(t script.Template, frags []Fragment, post script.Dictionary) string {
	var b strings.Builder
	squeeze := false
	for _, seg := range t.Segments {
		if seg.Ref == 0 {
			text := seg.Text
			if squeeze && strings.HasSuffix(b.String(), " ") {
				text = strings.TrimLeft(text, " ")
			}
			b.WriteString(text)
			squeeze = false
			continue
		}
		var words []string
		if seg.Ref <= len(frags) {
			words = lexer.Substitute(frags[seg.Ref-1], post)
		}
		if len(words) == 0 {
			squeeze = true
			continue
		}
		b.WriteString(strings.Join(words, " "))
		squeeze = false
	}
	return strings.TrimSpace(b.String())
}
