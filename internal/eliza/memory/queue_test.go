package memory_test

import (
	"testing"

	"github.com/bdobrica/Eliza/internal/eliza/memory"
)

func drain(q *memory.Queue) []string {
	var out []string
	for {
		s, ok := q.Poll()
		if !ok {
			return out
		}
		out = append(out, s)
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := memory.New(4, memory.DropOldest)
	q.Offer("A")
	q.Offer("B")

	if got, _ := q.Poll(); got != "A" {
		t.Errorf("first Poll: got %q, want %q", got, "A")
	}
	if got, _ := q.Poll(); got != "B" {
		t.Errorf("second Poll: got %q, want %q", got, "B")
	}
	if _, ok := q.Poll(); ok {
		t.Error("Poll on an empty queue should report false")
	}
}

func TestQueue_Overflow(t *testing.T) {
	tests := []struct {
		name     string
		policy   memory.Policy
		accepted []bool
		want     []string
	}{
		{
			name:     "drop oldest",
			policy:   memory.DropOldest,
			accepted: []bool{true, true, true, true},
			want:     []string{"b", "c", "d"},
		},
		{
			name:     "refuse new",
			policy:   memory.RefuseNew,
			accepted: []bool{true, true, true, false},
			want:     []string{"a", "b", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := memory.New(3, tt.policy)
			for i, s := range []string{"a", "b", "c", "d"} {
				if got := q.Offer(s); got != tt.accepted[i] {
					t.Errorf("Offer(%q): got %v, want %v", s, got, tt.accepted[i])
				}
			}
			if q.Len() != 3 {
				t.Errorf("Len: got %d, want 3", q.Len())
			}
			got := drain(q)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("entry %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestQueue_DefaultCapacity(t *testing.T) {
	q := memory.New(0, memory.DropOldest)
	if q.Cap() != memory.DefaultCapacity {
		t.Errorf("Cap: got %d, want %d", q.Cap(), memory.DefaultCapacity)
	}
}

func TestQueue_Reset(t *testing.T) {
	q := memory.New(2, memory.DropOldest)
	q.Offer("x")
	q.Reset()
	if q.Len() != 0 {
		t.Errorf("Len after Reset: got %d, want 0", q.Len())
	}
	q.Offer("y")
	if got, _ := q.Poll(); got != "y" {
		t.Errorf("got %q, want %q", got, "y")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    memory.Policy
		wantErr bool
	}{
		{"", memory.DropOldest, false},
		{"drop-oldest", memory.DropOldest, false},
		{"Refuse-New", memory.RefuseNew, false},
		{"lifo", memory.DropOldest, true},
	}
	for _, tt := range tests {
		got, err := memory.ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q): got %v, want %v", tt.in, got, tt.want)
		}
		if !tt.wantErr && tt.in != "" {
			if back, _ := memory.ParsePolicy(got.String()); back != got {
				t.Errorf("String/ParsePolicy do not agree for %v", got)
			}
		}
	}
}
