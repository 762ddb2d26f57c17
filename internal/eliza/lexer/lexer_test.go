package lexer_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Eliza/internal/eliza/lexer"
	"github.com/bdobrica/Eliza/internal/eliza/script"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"I am SAD.", []string{"i", "am", "sad"}},
		{"i am sad", []string{"i", "am", "sad"}},
		{"  Hello,   world!  ", []string{"hello", "world"}},
		{"I don’t know...", []string{"i", "don't", "know"}},
		{"Why 'no' ?", []string{"why", "no"}},
		{"well -- perhaps", []string{"well", "perhaps"}},
		{"Ｈｉ", []string{"hi"}}, // full-width letters fold under NFKC
		{"", []string{}},
		{" ?!. ", []string{}},
	}
	for _, tt := range tests {
		got := lexer.Tokenize(tt.in)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestNormalize_PreSubstitution(t *testing.T) {
	n := lexer.New(script.Dictionary{
		"i'm":  {"i", "am"},
		"dont": {"don't"},
		"how":  {"what"},
	})

	tests := []struct {
		in   string
		want []string
	}{
		{"I'm tired", []string{"i", "am", "tired"}},
		{"I dont care", []string{"i", "don't", "care"}},
		{"How?", []string{"what"}},
		// whole words only
		{"however", []string{"however"}},
	}
	for _, tt := range tests {
		got := n.Normalize(tt.in)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Normalize(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestNormalize_NilDictionary(t *testing.T) {
	n := lexer.New(nil)
	got := n.Normalize("My mother hates me")
	want := []string{"my", "mother", "hates", "me"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSubstitute_DoesNotModifyInput(t *testing.T) {
	in := []string{"you", "are", "my", "friend"}
	out := lexer.Substitute(in, script.Dictionary{"you": {"i"}, "my": {"your"}})

	if diff := cmp.Diff([]string{"i", "are", "your", "friend"}, out); diff != "" {
		t.Errorf("Substitute mismatch (-want +got):\n%s", diff)
	}
	if in[0] != "you" {
		t.Errorf("input modified: %v", in)
	}
}

func TestNormalize_ScriptWordsFoldLikeInput(t *testing.T) {
	s, err := script.ParseString("pre: I’m -> I am\nkey: xnone\n  decomp: *\n    reasmb: Go on.\n", "curly.txt")
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	n := lexer.New(s.Pre())
	for _, in := range []string{"I’m sad", "I'm sad", "i`m SAD"} {
		if diff := cmp.Diff([]string{"i", "am", "sad"}, n.Normalize(in)); diff != "" {
			t.Errorf("Normalize(%q) mismatch (-want +got):\n%s", in, diff)
		}
	}
}
