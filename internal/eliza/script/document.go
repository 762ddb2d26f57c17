package script

// Document is the declarative form of a script. The text grammar and the
// YAML form both decode into a Document, and Compile turns it into a Script.
type Document struct {
	Initial    string         `yaml:"initial,omitempty" json:"initial,omitempty"`
	Final      string         `yaml:"final,omitempty" json:"final,omitempty"`
	Empty      string         `yaml:"empty,omitempty" json:"empty,omitempty"`
	Quit       []string       `yaml:"quit,omitempty" json:"quit,omitempty"`
	MemorySize int            `yaml:"memsize,omitempty" json:"memsize,omitempty"`
	Pre        []Substitution `yaml:"pre,omitempty" json:"pre,omitempty"`
	Post       []Substitution `yaml:"post,omitempty" json:"post,omitempty"`
	Synonyms   []Synonym      `yaml:"synonyms,omitempty" json:"synonyms,omitempty"`
	Keys       []Key          `yaml:"keys" json:"keys"`

	// line numbers of single-valued directives, keyed by directive name
	lines map[string]int
}

// Substitution maps one input word to its replacement words.
type Substitution struct {
	Word        string `yaml:"word" json:"word"`
	Replacement string `yaml:"replacement" json:"replacement"`

	line int
}

// Synonym declares a group of interchangeable words. Head names the group
// and is itself a member.
type Synonym struct {
	Head  string   `yaml:"head" json:"head"`
	Words []string `yaml:"words" json:"words"`

	line int
}

// Key is one keyword block.
type Key struct {
	Keyword string   `yaml:"keyword" json:"keyword"`
	Rank    int      `yaml:"rank,omitempty" json:"rank,omitempty"`
	Group   string   `yaml:"group,omitempty" json:"group,omitempty"`
	Memory  []string `yaml:"memory,omitempty" json:"memory,omitempty"`
	Decomps []Decomp `yaml:"decomps" json:"decomps"`

	line        int
	memoryLines []int
}

// Decomp is one decomposition pattern and its reassembly templates.
type Decomp struct {
	Pattern    string   `yaml:"pattern" json:"pattern"`
	Reassembly []string `yaml:"reassembly" json:"reassembly"`

	line        int
	reasmbLines []int
}

// clone returns a deep copy without line information.
func (d *Document) clone() *Document {
	out := &Document{
		Initial:    d.Initial,
		Final:      d.Final,
		Empty:      d.Empty,
		Quit:       append([]string(nil), d.Quit...),
		MemorySize: d.MemorySize,
	}
	for _, s := range d.Pre {
		out.Pre = append(out.Pre, Substitution{Word: s.Word, Replacement: s.Replacement})
	}
	for _, s := range d.Post {
		out.Post = append(out.Post, Substitution{Word: s.Word, Replacement: s.Replacement})
	}
	for _, s := range d.Synonyms {
		out.Synonyms = append(out.Synonyms, Synonym{Head: s.Head, Words: append([]string(nil), s.Words...)})
	}
	out.Keys = make([]Key, 0, len(d.Keys))
	for _, k := range d.Keys {
		ck := Key{
			Keyword: k.Keyword,
			Rank:    k.Rank,
			Group:   k.Group,
			Memory:  append([]string(nil), k.Memory...),
			Decomps: make([]Decomp, 0, len(k.Decomps)),
		}
		for _, dc := range k.Decomps {
			ck.Decomps = append(ck.Decomps, Decomp{
				Pattern:    dc.Pattern,
				Reassembly: append([]string(nil), dc.Reassembly...),
			})
		}
		out.Keys = append(out.Keys, ck)
	}
	return out
}

func (d *Document) lineOf(directive string) int {
	return d.lines[directive]
}

func (k *Key) memoryLine(i int) int {
	if i < len(k.memoryLines) {
		return k.memoryLines[i]
	}
	return k.line
}

func (dc *Decomp) reasmbLine(i int) int {
	if i < len(dc.reasmbLines) {
		return dc.reasmbLines[i]
	}
	return dc.line
}
