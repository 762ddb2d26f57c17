package script

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Format writes doc in the text grammar. The output parses back into an
// equivalent Document.
func Format(w io.Writer, doc *Document) error {
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) {
		fmt.Fprintf(bw, format, args...)
	}

	if doc.Initial != "" {
		p("initial: %s\n", doc.Initial)
	}
	if doc.Final != "" {
		p("final: %s\n", doc.Final)
	}
	if doc.Empty != "" {
		p("empty: %s\n", doc.Empty)
	}
	for _, q := range doc.Quit {
		p("quit: %s\n", q)
	}
	if doc.MemorySize > 0 {
		p("memsize: %d\n", doc.MemorySize)
	}

	if len(doc.Pre) > 0 {
		p("\n")
		for _, s := range doc.Pre {
			p("pre: %s -> %s\n", s.Word, s.Replacement)
		}
	}
	if len(doc.Post) > 0 {
		p("\n")
		for _, s := range doc.Post {
			p("post: %s -> %s\n", s.Word, s.Replacement)
		}
	}
	if len(doc.Synonyms) > 0 {
		p("\n")
		for _, s := range doc.Synonyms {
			p("synon: %s %s\n", s.Head, strings.Join(s.Words, " "))
		}
	}

	for _, k := range doc.Keys {
		p("\nkey: %s", k.Keyword)
		if k.Rank != 0 {
			p(" = %d", k.Rank)
		}
		if k.Group != "" {
			p(" @%s", k.Group)
		}
		p("\n")
		for _, m := range k.Memory {
			p("  memory: %s\n", m)
		}
		for _, dc := range k.Decomps {
			p("  decomp: %s\n", dc.Pattern)
			for _, r := range dc.Reassembly {
				p("    reasmb: %s\n", r)
			}
		}
	}
	return bw.Flush()
}

// String renders the script's canonical document in the text grammar.
func (s *Script) String() string {
	var b strings.Builder
	_ = Format(&b, s.doc)
	return b.String()
}
