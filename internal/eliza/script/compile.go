package script

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var refPattern = regexp.MustCompile(`\((\d+)\)`)

// Compile validates doc and builds its rule tables. name identifies the
// script in errors. The first problem found is returned as a *FormatError.
func Compile(doc *Document, name string) (*Script, error) {
	c := &compiler{source: name}
	return c.compile(doc)
}

type compiler struct {
	source string
}

func (c *compiler) errorf(line int, format string, args ...any) error {
	return formatErrorf(c.source, line, format, args...)
}

func (c *compiler) compile(doc *Document) (*Script, error) {
	if doc == nil {
		return nil, c.errorf(0, "script is empty")
	}
	if doc.MemorySize < 0 {
		return nil, c.errorf(doc.lineOf("memsize"), "memsize must be >= 1, got %d", doc.MemorySize)
	}

	for _, directive := range []struct{ name, value string }{
		{"initial", doc.Initial}, {"final", doc.Final}, {"empty", doc.Empty},
	} {
		if err := c.singleLine(doc.lineOf(directive.name), directive.name, directive.value); err != nil {
			return nil, err
		}
	}

	canon := &Document{
		Initial:    strings.TrimSpace(doc.Initial),
		Final:      strings.TrimSpace(doc.Final),
		Empty:      strings.TrimSpace(doc.Empty),
		MemorySize: doc.MemorySize,
	}
	s := &Script{
		Name:     c.source,
		doc:      canon,
		keys:     make(map[string]*Rule, len(doc.Keys)),
		triggers: make(map[string][]*Rule),
		groups:   make(map[string]map[string]struct{}, len(doc.Synonyms)),
	}

	for _, q := range doc.Quit {
		if err := c.singleLine(doc.lineOf("quit"), "quit phrase", q); err != nil {
			return nil, err
		}
		phrase := strings.Join(strings.Fields(q), " ")
		if phrase == "" {
			return nil, c.errorf(doc.lineOf("quit"), "quit phrase must not be empty")
		}
		canon.Quit = append(canon.Quit, phrase)
	}

	var err error
	if s.pre, canon.Pre, err = c.dictionary("pre", doc.Pre); err != nil {
		return nil, err
	}
	if s.post, canon.Post, err = c.dictionary("post", doc.Post); err != nil {
		return nil, err
	}
	if canon.Synonyms, err = c.synonyms(doc.Synonyms, s.groups); err != nil {
		return nil, err
	}

	// Keywords are collected first so goto may refer forward.
	keywords := make(map[string]bool, len(doc.Keys))
	for _, k := range doc.Keys {
		kw := Fold(strings.TrimSpace(k.Keyword))
		if kw == "" || len(strings.Fields(kw)) != 1 {
			return nil, c.errorf(k.line, "key must name a single keyword, got %q", k.Keyword)
		}
		if strings.Contains(kw, "=") {
			return nil, c.errorf(k.line, "key %q: keyword must not contain '='", kw)
		}
		if keywords[kw] {
			return nil, c.errorf(k.line, "duplicate key %q", kw)
		}
		keywords[kw] = true
	}

	canon.Keys = make([]Key, 0, len(doc.Keys))
	for i := range doc.Keys {
		rule, ck, err := c.rule(&doc.Keys[i], i, s, keywords)
		if err != nil {
			return nil, err
		}
		s.rules = append(s.rules, rule)
		s.keys[rule.Keyword] = rule
		canon.Keys = append(canon.Keys, ck)
		if rule.Keyword != DefaultKeyword {
			s.addTriggers(rule)
		}
	}
	return s, nil
}

func (c *compiler) dictionary(kind string, subs []Substitution) (Dictionary, []Substitution, error) {
	dict := make(Dictionary, len(subs))
	var canon []Substitution
	for _, sub := range subs {
		word := Fold(strings.TrimSpace(sub.Word))
		if len(strings.Fields(word)) != 1 {
			return nil, nil, c.errorf(sub.line, "%s substitution must name a single word, got %q", kind, sub.Word)
		}
		if strings.Contains(word, "->") {
			return nil, nil, c.errorf(sub.line, "%s substitution word %q must not contain \"->\"", kind, word)
		}
		repl := strings.Fields(Fold(sub.Replacement))
		if len(repl) == 0 {
			return nil, nil, c.errorf(sub.line, "%s substitution for %q has no replacement", kind, word)
		}
		if _, dup := dict[word]; dup {
			return nil, nil, c.errorf(sub.line, "duplicate %s substitution for %q", kind, word)
		}
		dict[word] = repl
		canon = append(canon, Substitution{Word: word, Replacement: strings.Join(repl, " ")})
	}
	return dict, canon, nil
}

func (c *compiler) synonyms(syns []Synonym, groups map[string]map[string]struct{}) ([]Synonym, error) {
	var canon []Synonym
	for _, syn := range syns {
		head := Fold(strings.TrimSpace(syn.Head))
		if len(strings.Fields(head)) != 1 {
			return nil, c.errorf(syn.line, "synonym group must be named by a single word, got %q", syn.Head)
		}
		if strings.Contains(head, "=") {
			return nil, c.errorf(syn.line, "synonym group %q: name must not contain '='", head)
		}
		if _, dup := groups[head]; dup {
			return nil, c.errorf(syn.line, "duplicate synonym group %q", head)
		}
		members := map[string]struct{}{head: {}}
		var words []string
		for _, w := range syn.Words {
			w = Fold(strings.TrimSpace(w))
			if len(strings.Fields(w)) != 1 {
				return nil, c.errorf(syn.line, "synonym group %q: member must be a single word, got %q", head, w)
			}
			if _, seen := members[w]; seen {
				continue
			}
			members[w] = struct{}{}
			words = append(words, w)
		}
		if len(words) == 0 {
			return nil, c.errorf(syn.line, "synonym group %q has no members", head)
		}
		groups[head] = members
		canon = append(canon, Synonym{Head: head, Words: words})
	}
	return canon, nil
}

func (c *compiler) rule(k *Key, id int, s *Script, keywords map[string]bool) (*Rule, Key, error) {
	kw := Fold(strings.TrimSpace(k.Keyword))
	if k.Rank < 0 {
		return nil, Key{}, c.errorf(k.line, "key %q: rank must be >= 0, got %d", kw, k.Rank)
	}
	group := strings.TrimPrefix(Fold(strings.TrimSpace(k.Group)), "@")
	if group != "" {
		if _, ok := s.groups[group]; !ok {
			return nil, Key{}, c.errorf(k.line, "key %q: undeclared synonym group %q", kw, group)
		}
	}
	if len(k.Decomps) == 0 {
		return nil, Key{}, c.errorf(k.line, "key %q has no decompositions", kw)
	}

	rule := &Rule{ID: id, Keyword: kw, Rank: k.Rank, Group: group}
	ck := Key{Keyword: kw, Rank: k.Rank, Group: group, Decomps: make([]Decomp, 0, len(k.Decomps))}

	minCaptures := -1
	var narrowest string
	for i := range k.Decomps {
		dc := &k.Decomps[i]
		d, err := c.decomposition(dc, kw, s, keywords)
		if err != nil {
			return nil, Key{}, err
		}
		rule.Decompositions = append(rule.Decompositions, d)

		cd := Decomp{Pattern: d.PatternString(), Reassembly: make([]string, 0, len(d.Templates))}
		for _, t := range d.Templates {
			cd.Reassembly = append(cd.Reassembly, t.String())
		}
		ck.Decomps = append(ck.Decomps, cd)

		if minCaptures < 0 || d.Captures < minCaptures {
			minCaptures = d.Captures
			narrowest = cd.Pattern
		}
	}

	for i, text := range k.Memory {
		line := k.memoryLine(i)
		t, err := c.template(text, line, kw, keywords)
		if err != nil {
			return nil, Key{}, err
		}
		if t.Goto != "" {
			return nil, Key{}, c.errorf(line, "key %q: memory template cannot be a goto", kw)
		}
		if ref := t.MaxRef(); ref > minCaptures {
			return nil, Key{}, c.errorf(line,
				"key %q: memory template %q references fragment (%d) but pattern %q captures %d",
				kw, text, ref, narrowest, minCaptures)
		}
		rule.Memory = append(rule.Memory, t)
		ck.Memory = append(ck.Memory, t.String())
	}
	return rule, ck, nil
}

func (c *compiler) decomposition(dc *Decomp, kw string, s *Script, keywords map[string]bool) (*Decomposition, error) {
	fields := strings.Fields(Fold(dc.Pattern))
	if len(fields) == 0 {
		return nil, c.errorf(dc.line, "key %q: empty decomposition pattern", kw)
	}
	d := &Decomposition{ID: s.decomps}
	for _, f := range fields {
		switch {
		case f == "*" || f == "0":
			d.Pattern = append(d.Pattern, Element{Kind: Wildcard})
			d.Captures++
		case strings.HasPrefix(f, "@"):
			name := f[1:]
			if _, ok := s.groups[name]; !ok {
				return nil, c.errorf(dc.line, "key %q: pattern %q references undeclared synonym group %q", kw, dc.Pattern, name)
			}
			d.Pattern = append(d.Pattern, Element{Kind: Group, Word: name})
		default:
			d.Pattern = append(d.Pattern, Element{Kind: Literal, Word: f})
		}
	}
	if len(dc.Reassembly) == 0 {
		return nil, c.errorf(dc.line, "key %q: pattern %q has no reassembly templates", kw, dc.Pattern)
	}
	for i, text := range dc.Reassembly {
		line := dc.reasmbLine(i)
		t, err := c.template(text, line, kw, keywords)
		if err != nil {
			return nil, err
		}
		if ref := t.MaxRef(); ref > d.Captures {
			return nil, c.errorf(line,
				"key %q: reassembly %q references fragment (%d) but pattern %q captures %d",
				kw, text, ref, d.PatternString(), d.Captures)
		}
		d.Templates = append(d.Templates, t)
	}
	s.decomps++
	return d, nil
}

func (c *compiler) template(text string, line int, kw string, keywords map[string]bool) (Template, error) {
	if err := c.singleLine(line, fmt.Sprintf("key %q: template", kw), text); err != nil {
		return Template{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Template{}, c.errorf(line, "key %q: empty template", kw)
	}
	if f := strings.Fields(text); len(f) == 2 && strings.EqualFold(f[0], "goto") {
		target := Fold(f[1])
		if !keywords[target] {
			return Template{}, c.errorf(line, "key %q: goto names undeclared key %q", kw, target)
		}
		return Template{Goto: target}, nil
	}

	var t Template
	last := 0
	for _, m := range refPattern.FindAllStringSubmatchIndex(text, -1) {
		ref, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || ref < 1 {
			return Template{}, c.errorf(line, "key %q: invalid fragment marker %q in %q; fragments are numbered from 1", kw, text[m[0]:m[1]], text)
		}
		if m[0] > last {
			t.Segments = append(t.Segments, Segment{Text: text[last:m[0]]})
		}
		t.Segments = append(t.Segments, Segment{Ref: ref})
		last = m[1]
	}
	if last < len(text) {
		t.Segments = append(t.Segments, Segment{Text: text[last:]})
	}
	return t, nil
}

// singleLine rejects values the text grammar cannot write on one line,
// which only the YAML form can produce.
func (c *compiler) singleLine(line int, what, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return c.errorf(line, "%s must be a single line, got %q", what, value)
	}
	return nil
}

func (s *Script) addTriggers(r *Rule) {
	s.triggers[r.Keyword] = append(s.triggers[r.Keyword], r)
	if r.Group == "" {
		return
	}
	for _, syn := range s.doc.Synonyms {
		if syn.Head != r.Group {
			continue
		}
		for _, w := range append([]string{syn.Head}, syn.Words...) {
			if w != r.Keyword {
				s.triggers[w] = append(s.triggers[w], r)
			}
		}
	}
}
