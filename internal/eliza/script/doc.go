// Package script parses ELIZA rule scripts into immutable rule tables.
//
// A script is UTF-8 text with one directive per line. Lines starting with '#'
// are comments, blank lines are ignored and indentation is cosmetic: the
// nesting of memory/decomp/reasmb lines is given by their order, not by their
// indentation.
//
//	initial: How do you do.  Please tell me your problem.
//	final:   Goodbye.  Thank you for talking to me.
//	empty:   Please say something.
//	quit:    goodbye
//	memsize: 8
//	pre:     dont -> don't
//	post:    my -> your
//	synon:   family mother mom father dad
//	key:     my = 2 @group
//	  memory: Earlier you said your (2).
//	  decomp: * my *
//	    reasmb: Why do you say your (2) ?
//
// initial, final, empty and memsize may appear at most once; quit, pre, post
// and synon repeat. A key header is "key: <keyword> [= <rank>] [@<group>]";
// the rank defaults to 0 and the optional group links every member of that
// synonym group to the key. memory lines attach memory templates to the
// current key, decomp lines open a decomposition and reasmb lines add
// reassembly templates to the current decomposition.
//
// Pattern elements are separated by whitespace: "*" (or "0") is a wildcard
// matching zero or more words, "@name" matches any member of a synonym group,
// and anything else matches one word literally. Templates copy their text
// verbatim except for "(n)" markers, which are replaced by the n-th wildcard
// fragment (1-based). A template reading "goto <keyword>" hands the input to
// another key.
//
// The keyword "xnone" is reserved: its templates answer input that no other
// key could handle, and it is never selected by keyword ranking.
//
// The same model can be written as YAML (see ParseYAML), in which case it is
// validated against the JSON Schema embedded in this package before it is
// compiled.
package script
