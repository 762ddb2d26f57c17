package script

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Parse reads a script in the text grammar and compiles it. name identifies
// the script in errors and is stored as Script.Name.
func Parse(r io.Reader, name string) (*Script, error) {
	doc, err := Decode(r, name)
	if err != nil {
		return nil, err
	}
	return Compile(doc, name)
}

// ParseString is Parse over a string.
func ParseString(src, name string) (*Script, error) {
	return Parse(strings.NewReader(src), name)
}

// ParseFile reads and compiles the script at path. Files ending in .yaml or
// .yml are read with ParseYAML, everything else with the text grammar.
func ParseFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data, name)
	default:
		return ParseString(string(data), name)
	}
}

// Decode reads the text grammar into a Document without compiling it.
// Structural errors (a decomp outside a key, an unknown directive, ...) are
// reported here; reference errors are left to Compile.
func Decode(r io.Reader, name string) (*Document, error) {
	d := &decoder{source: name, doc: &Document{lines: make(map[string]int)}}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		d.line++
		if err := d.decodeLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read script %s: %w", name, err)
	}
	return d.doc, nil
}

type decoder struct {
	source string
	doc    *Document
	line   int
	key    *Key
	decomp *Decomp
}

func (d *decoder) errorf(format string, args ...any) error {
	return formatErrorf(d.source, d.line, format, args...)
}

func (d *decoder) decodeLine(raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" || strings.HasPrefix(text, "#") {
		return nil
	}
	directive, value, ok := strings.Cut(text, ":")
	if !ok {
		return d.errorf("expected \"directive: value\", got %q", text)
	}
	directive = strings.ToLower(strings.TrimSpace(directive))
	value = strings.TrimSpace(value)

	switch directive {
	case "initial":
		return d.single(directive, &d.doc.Initial, value)
	case "final":
		return d.single(directive, &d.doc.Final, value)
	case "empty":
		return d.single(directive, &d.doc.Empty, value)
	case "quit":
		if value == "" {
			return d.errorf("quit phrase must not be empty")
		}
		d.doc.Quit = append(d.doc.Quit, value)
	case "memsize":
		if _, seen := d.doc.lines[directive]; seen {
			return d.errorf("duplicate memsize directive")
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return d.errorf("memsize must be a positive integer, got %q", value)
		}
		d.doc.MemorySize = n
		d.doc.lines[directive] = d.line
	case "pre", "post":
		word, repl, ok := strings.Cut(value, "->")
		if !ok {
			return d.errorf("%s substitution must read \"word -> replacement\", got %q", directive, value)
		}
		sub := Substitution{Word: strings.TrimSpace(word), Replacement: strings.TrimSpace(repl), line: d.line}
		if directive == "pre" {
			d.doc.Pre = append(d.doc.Pre, sub)
		} else {
			d.doc.Post = append(d.doc.Post, sub)
		}
	case "synon":
		words := strings.Fields(value)
		if len(words) < 2 {
			return d.errorf("synon needs a group name and at least one word, got %q", value)
		}
		d.doc.Synonyms = append(d.doc.Synonyms, Synonym{Head: words[0], Words: words[1:], line: d.line})
	case "key":
		k, err := d.keyHeader(value)
		if err != nil {
			return err
		}
		d.doc.Keys = append(d.doc.Keys, k)
		d.key = &d.doc.Keys[len(d.doc.Keys)-1]
		d.decomp = nil
	case "memory":
		if d.key == nil {
			return d.errorf("memory template with no preceding key")
		}
		if value == "" {
			return d.errorf("empty memory template")
		}
		d.key.Memory = append(d.key.Memory, value)
		d.key.memoryLines = append(d.key.memoryLines, d.line)
	case "decomp":
		if d.key == nil {
			return d.errorf("decomp with no preceding key")
		}
		if value == "" {
			return d.errorf("empty decomposition pattern")
		}
		d.key.Decomps = append(d.key.Decomps, Decomp{Pattern: value, line: d.line})
		d.decomp = &d.key.Decomps[len(d.key.Decomps)-1]
	case "reasmb":
		if d.decomp == nil {
			return d.errorf("reasmb with no preceding decomp")
		}
		if value == "" {
			return d.errorf("empty reassembly template")
		}
		d.decomp.Reassembly = append(d.decomp.Reassembly, value)
		d.decomp.reasmbLines = append(d.decomp.reasmbLines, d.line)
	default:
		return d.errorf("unknown directive %q", directive)
	}
	return nil
}

func (d *decoder) single(directive string, dst *string, value string) error {
	if _, seen := d.doc.lines[directive]; seen {
		return d.errorf("duplicate %s directive", directive)
	}
	if value == "" {
		return d.errorf("%s must not be empty", directive)
	}
	*dst = value
	d.doc.lines[directive] = d.line
	return nil
}

// keyHeader parses "<keyword> [= <rank>] [@<group>]". The bare form
// "<keyword> <rank>" is accepted as well.
func (d *decoder) keyHeader(value string) (Key, error) {
	k := Key{line: d.line}

	// Allow "keyword=3" and "keyword =3" by spacing out the equals sign.
	fields := strings.Fields(strings.ReplaceAll(value, "=", " = "))
	if len(fields) == 0 {
		return k, d.errorf("key needs a keyword")
	}
	k.Keyword = fields[0]
	rest := fields[1:]

	if len(rest) > 0 && rest[0] == "=" {
		if len(rest) < 2 {
			return k, d.errorf("key %q: missing rank after '='", k.Keyword)
		}
		rest = rest[1:]
	}
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "@") {
		rank, err := strconv.Atoi(rest[0])
		if err != nil {
			return k, d.errorf("key %q: rank must be an integer, got %q", k.Keyword, rest[0])
		}
		if rank < 0 {
			return k, d.errorf("key %q: rank must be >= 0, got %d", k.Keyword, rank)
		}
		k.Rank = rank
		rest = rest[1:]
	}
	if len(rest) > 0 && strings.HasPrefix(rest[0], "@") {
		k.Group = strings.TrimPrefix(rest[0], "@")
		if k.Group == "" {
			return k, d.errorf("key %q: empty synonym group reference", k.Keyword)
		}
		rest = rest[1:]
	}
	if len(rest) > 0 {
		return k, d.errorf("key %q: unexpected %q in header", k.Keyword, strings.Join(rest, " "))
	}
	return k, nil
}
