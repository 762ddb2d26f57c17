package script

import (
	"strconv"
	"strings"
)

const (
	// DefaultKeyword is the reserved key whose templates answer unmatched input.
	DefaultKeyword = "xnone"

	// DefaultMemorySize is the memory capacity used when a script has no
	// memsize directive.
	DefaultMemorySize = 8
)

// Dictionary maps a word to the words that replace it.
type Dictionary map[string][]string

// ElementKind classifies a pattern element.
type ElementKind int

const (
	// Literal matches exactly one word equal to Element.Word.
	Literal ElementKind = iota
	// Wildcard matches zero or more words and captures them as a fragment.
	Wildcard
	// Group matches one word that belongs to the synonym group Element.Word.
	Group
)

// Element is one item of a decomposition pattern.
type Element struct {
	Kind ElementKind
	Word string
}

func (e Element) String() string {
	switch e.Kind {
	case Wildcard:
		return "*"
	case Group:
		return "@" + e.Word
	default:
		return e.Word
	}
}

// Segment is a piece of a template: literal text when Ref is zero, otherwise
// a reference to the Ref-th captured fragment.
type Segment struct {
	Text string
	Ref  int
}

// Template is a reassembly or memory template. When Goto is set the template
// has no segments and redirects matching to the key named by Goto.
type Template struct {
	Segments []Segment
	Goto     string
}

// MaxRef returns the highest fragment index referenced by the template.
func (t Template) MaxRef() int {
	max := 0
	for _, s := range t.Segments {
		if s.Ref > max {
			max = s.Ref
		}
	}
	return max
}

func (t Template) String() string {
	if t.Goto != "" {
		return "goto " + t.Goto
	}
	var b strings.Builder
	for _, s := range t.Segments {
		if s.Ref > 0 {
			b.WriteString("(" + strconv.Itoa(s.Ref) + ")")
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// Decomposition is a pattern with its reassembly templates. ID is dense across
// the whole script and addresses the decomposition's rotation cursor.
type Decomposition struct {
	ID        int
	Pattern   []Element
	Templates []Template
	Captures  int
}

// PatternString renders the pattern in the script grammar.
func (d *Decomposition) PatternString() string {
	parts := make([]string, len(d.Pattern))
	for i, e := range d.Pattern {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}

// Rule is a compiled key block. ID is the rule's position in declaration
// order.
type Rule struct {
	ID             int
	Keyword        string
	Rank           int
	Group          string
	Memory         []Template
	Decompositions []*Decomposition
}

// Script holds the compiled rule tables of one script. A Script is never
// modified after Compile returns and may be shared between any number of
// conversations; callers must treat the maps and slices it hands out as
// read-only.
type Script struct {
	// Name identifies the script in errors and logs, usually its file name.
	Name string

	doc      *Document
	rules    []*Rule
	keys     map[string]*Rule
	triggers map[string][]*Rule
	groups   map[string]map[string]struct{}
	pre      Dictionary
	post     Dictionary
	decomps  int
}

// Initial returns the greeting, or "" when the script declares none.
func (s *Script) Initial() string { return s.doc.Initial }

// Final returns the closing message, or "" when the script declares none.
func (s *Script) Final() string { return s.doc.Final }

// Empty returns the prompt for empty input, or "" when the script declares none.
func (s *Script) Empty() string { return s.doc.Empty }

// QuitPhrases returns the terminating phrases as written in the script.
func (s *Script) QuitPhrases() []string {
	return append([]string(nil), s.doc.Quit...)
}

// MemorySize returns the memory capacity requested by the script.
func (s *Script) MemorySize() int {
	if s.doc.MemorySize > 0 {
		return s.doc.MemorySize
	}
	return DefaultMemorySize
}

// Pre returns the pre-substitution dictionary.
func (s *Script) Pre() Dictionary { return s.pre }

// Post returns the post-substitution dictionary.
func (s *Script) Post() Dictionary { return s.post }

// Rules returns all rules in declaration order, including the default rule.
func (s *Script) Rules() []*Rule {
	return append([]*Rule(nil), s.rules...)
}

// Rule looks up a rule by keyword.
func (s *Script) Rule(keyword string) (*Rule, bool) {
	r, ok := s.keys[keyword]
	return r, ok
}

// Default returns the xnone rule, if the script declares one.
func (s *Script) Default() (*Rule, bool) {
	return s.Rule(DefaultKeyword)
}

// Triggered returns the rules activated by word, in declaration order. A word
// activates a rule when it equals the keyword or belongs to the rule's linked
// synonym group. The default rule is never returned.
func (s *Script) Triggered(word string) []*Rule {
	return s.triggers[word]
}

// InGroup reports whether word is a member of the named synonym group.
func (s *Script) InGroup(group, word string) bool {
	_, ok := s.groups[group][word]
	return ok
}

// DecompositionCount returns the number of decompositions in the script,
// which is one more than the highest Decomposition.ID.
func (s *Script) DecompositionCount() int { return s.decomps }

// Document returns a copy of the canonical declarative form of the script.
// Formatting it and parsing the result yields an equivalent Script.
func (s *Script) Document() *Document {
	return s.doc.clone()
}
