package match

import "github.com/bdobrica/Eliza/internal/eliza/script"

// MaxGotoDepth bounds how many goto templates one match may follow.
const MaxGotoDepth = 8

// Result describes a successful match.
type Result struct {
	// Trigger is the rule the match started from.
	Trigger *script.Rule
	// Rule is the rule whose template produced Text. It differs from
	// Trigger when a goto was followed.
	Rule          *script.Rule
	Decomposition *script.Decomposition
	Fragments     []Fragment
	Text          string
}

// Matcher applies rules of one script using one conversation's cursors.
type Matcher struct {
	script *script.Script
	rotor  *Rotor
}

// New returns a Matcher for s that advances cursors in rotor.
func New(s *script.Script, rotor *Rotor) *Matcher {
	return &Matcher{script: s, rotor: rotor}
}

// Match tries the decompositions of rule in order; the first pattern that
// matches selects its next template. A goto template restarts matching on
// the named rule with the same tokens. ok is false when no pattern matched,
// including after a goto.
func (m *Matcher) Match(tokens []string, rule *script.Rule) (res Result, ok bool) {
	return m.match(tokens, rule, rule, 0)
}

func (m *Matcher) match(tokens []string, trigger, rule *script.Rule, depth int) (Result, bool) {
	if depth > MaxGotoDepth {
		return Result{}, false
	}
	for _, d := range rule.Decompositions {
		frags, ok := Decompose(d.Pattern, tokens, m.script)
		if !ok {
			continue
		}
		t := d.Templates[m.rotor.Next(d.ID, len(d.Templates))]
		if t.Goto != "" {
			target, ok := m.script.Rule(t.Goto)
			if !ok {
				return Result{}, false
			}
			return m.match(tokens, trigger, target, depth+1)
		}
		return Result{
			Trigger:       trigger,
			Rule:          rule,
			Decomposition: d,
			Fragments:     frags,
			Text:          Reassemble(t, frags, m.script.Post()),
		}, true
	}
	return Result{}, false
}
