package match

import "github.com/bdobrica/Eliza/internal/eliza/script"

// Fragment is the run of tokens bound to one wildcard.
type Fragment []string

// Decompose matches pattern against the whole of tokens. Each wildcard first
// tries the longest span it can take and gives tokens back until the rest of
// the pattern matches. On success it returns one fragment per wildcard, left
// to right. Group elements are resolved against s.
func Decompose(pattern []script.Element, tokens []string, s *script.Script) ([]Fragment, bool) {
	d := decomposer{
		pattern: pattern,
		tokens:  tokens,
		script:  s,
		failed:  make(map[state]struct{}),
	}
	if !d.match(0, 0) {
		return nil, false
	}
	frags := make([]Fragment, len(d.spans))
	for i, sp := range d.spans {
		frags[i] = append(Fragment{}, tokens[sp.start:sp.end]...)
	}
	return frags, true
}

type state struct{ elem, token int }

type span struct{ start, end int }

type decomposer struct {
	pattern []script.Element
	tokens  []string
	script  *script.Script
	spans   []span
	// failed remembers positions from which the rest of the pattern cannot
	// match, keeping backtracking polynomial.
	failed map[state]struct{}
}

func (d *decomposer) match(pi, ti int) bool {
	if pi == len(d.pattern) {
		return ti == len(d.tokens)
	}
	st := state{pi, ti}
	if _, ok := d.failed[st]; ok {
		return false
	}

	el := d.pattern[pi]
	switch el.Kind {
	case script.Wildcard:
		for end := len(d.tokens); end >= ti; end-- {
			d.spans = append(d.spans, span{ti, end})
			if d.match(pi+1, end) {
				return true
			}
			d.spans = d.spans[:len(d.spans)-1]
		}
	case script.Group:
		if ti < len(d.tokens) && d.script != nil && d.script.InGroup(el.Word, d.tokens[ti]) && d.match(pi+1, ti+1) {
			return true
		}
	default:
		if ti < len(d.tokens) && d.tokens[ti] == el.Word && d.match(pi+1, ti+1) {
			return true
		}
	}
	d.failed[st] = struct{}{}
	return false
}
