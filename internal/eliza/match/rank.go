package match

import (
	"cmp"
	"slices"

	"github.com/bdobrica/Eliza/internal/eliza/script"
)

// Rank returns the rules triggered by tokens, highest rank first. Rules of
// equal rank are ordered by the position of the earliest token that
// triggered them. Each rule appears once. The default rule never does.
func Rank(tokens []string, s *script.Script) []*script.Rule {
	type hit struct {
		rule *script.Rule
		pos  int
	}
	var hits []hit
	seen := make(map[int]struct{})
	for pos, tok := range tokens {
		for _, r := range s.Triggered(tok) {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			hits = append(hits, hit{rule: r, pos: pos})
		}
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.rule.Rank, a.rule.Rank); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})

	rules := make([]*script.Rule, len(hits))
	for i, h := range hits {
		rules[i] = h.rule
	}
	return rules
}
