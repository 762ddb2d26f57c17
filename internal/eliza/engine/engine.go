// Package engine is the conversation façade: it owns one conversation's
// memory and rotation cursors and decides, turn by turn, whether the reply
// comes from a rule, from memory or from the default responses.
//
// An Engine is not safe for concurrent use. Serve each conversation with its
// own Engine; the *script.Script it runs may be shared.
package engine

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/bdobrica/Eliza/internal/eliza/lexer"
	"github.com/bdobrica/Eliza/internal/eliza/match"
	"github.com/bdobrica/Eliza/internal/eliza/memory"
	"github.com/bdobrica/Eliza/internal/eliza/script"
)

// Replies used when no script is loaded or the script leaves them out.
const (
	DefaultInitial = "How do you do.  Please tell me your problem."
	DefaultFinal   = "Goodbye.  Thank you for talking to me."
	DefaultEmpty   = "Please say something."
	DefaultNoMatch = "Please go on."
)

// State is the lifecycle state of a conversation.
type State int

const (
	Uninitialized State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome tells where a reply came from.
type Outcome string

const (
	OutcomeEmpty   Outcome = "empty"
	OutcomeQuit    Outcome = "quit"
	OutcomeRule    Outcome = "rule"
	OutcomeMemory  Outcome = "memory"
	OutcomeDefault Outcome = "default"
)

// Reply is the result of one turn.
type Reply struct {
	Text    string
	Outcome Outcome
	// Keyword is the keyword of the rule that was selected, for OutcomeRule
	// and OutcomeDefault replies.
	Keyword string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-turn debug output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMemoryPolicy sets what happens when the memory queue is full.
func WithMemoryPolicy(p memory.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithMemoryCapacity overrides the memory capacity declared by the script.
// Values below one leave the script's setting in place.
func WithMemoryCapacity(n int) Option {
	return func(e *Engine) { e.capacity = n }
}

// Engine runs one conversation.
type Engine struct {
	logger   *slog.Logger
	policy   memory.Policy
	capacity int

	script  *script.Script
	lexer   *lexer.Normalizer
	quit    [][]string
	cursors *match.Rotor
	recall  *match.Rotor
	matcher *match.Matcher
	memory  *memory.Queue
	state   State
}

// New returns an Uninitialized engine. Until a script is loaded it answers
// with the built-in defaults.
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default(), policy: memory.DropOldest}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Load parses a script in the text grammar and starts a fresh conversation
// with it. On error the engine is left exactly as it was.
func (e *Engine) Load(r io.Reader, name string) error {
	s, err := script.Parse(r, name)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}
	e.Use(s)
	return nil
}

// LoadFile is Load for a file path; YAML files are accepted as well.
func (e *Engine) LoadFile(path string) error {
	s, err := script.ParseFile(path)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}
	e.Use(s)
	return nil
}

// Use starts a fresh conversation on an already compiled script.
func (e *Engine) Use(s *script.Script) {
	e.script = s
	e.lexer = lexer.New(s.Pre())
	e.quit = e.quit[:0]
	for _, q := range s.QuitPhrases() {
		if tokens := e.lexer.Normalize(q); len(tokens) > 0 {
			e.quit = append(e.quit, tokens)
		}
	}

	capacity := s.MemorySize()
	if e.capacity > 0 {
		capacity = e.capacity
	}
	e.memory = memory.New(capacity, e.policy)
	e.cursors = match.NewRotor()
	e.recall = match.NewRotor()
	e.matcher = match.New(s, e.cursors)
	e.state = Active

	e.logger.Debug("script loaded",
		"script", s.Name,
		"rules", len(s.Rules()),
		"memory_capacity", capacity,
		"memory_policy", e.policy.String(),
	)
}

// Script returns the loaded script, or nil.
func (e *Engine) Script() *script.Script { return e.script }

// State returns the conversation state.
func (e *Engine) State() State { return e.state }

// Closed reports whether a quit phrase has been recognised.
func (e *Engine) Closed() bool { return e.state == Closed }

// Reset clears memory and cursors and reopens a closed conversation. It is a
// no-op on an Uninitialized engine.
func (e *Engine) Reset() {
	if e.script == nil {
		return
	}
	e.memory.Reset()
	e.cursors.Reset()
	e.recall.Reset()
	e.state = Active
}

// MemoryLen returns the number of queued memories.
func (e *Engine) MemoryLen() int {
	if e.memory == nil {
		return 0
	}
	return e.memory.Len()
}

// Initial returns the greeting. It does not change the conversation.
func (e *Engine) Initial() string {
	if e.script != nil && e.script.Initial() != "" {
		return e.script.Initial()
	}
	return DefaultInitial
}

// Final returns the closing message.
func (e *Engine) Final() string {
	if e.script != nil && e.script.Final() != "" {
		return e.script.Final()
	}
	return DefaultFinal
}

// Respond returns the reply text for one utterance.
func (e *Engine) Respond(text string) string {
	return e.Reply(text).Text
}

// Reply runs one turn and reports where the reply came from.
func (e *Engine) Reply(text string) Reply {
	if e.script == nil {
		if len(lexer.Tokenize(text)) == 0 {
			return Reply{Text: DefaultEmpty, Outcome: OutcomeEmpty}
		}
		return Reply{Text: DefaultNoMatch, Outcome: OutcomeDefault}
	}

	tokens := e.lexer.Normalize(text)
	if len(tokens) == 0 {
		return Reply{Text: e.emptyPrompt(), Outcome: OutcomeEmpty}
	}

	if e.isQuit(tokens) {
		e.state = Closed
		e.logger.Debug("quit phrase recognised", "script", e.script.Name)
		return Reply{Text: e.Final(), Outcome: OutcomeQuit}
	}

	for _, rule := range match.Rank(tokens, e.script) {
		res, ok := e.matcher.Match(tokens, rule)
		if !ok {
			e.logger.Debug("no pattern matched", "keyword", rule.Keyword)
			continue
		}
		e.remember(res)
		e.logger.Debug("rule matched",
			"keyword", res.Trigger.Keyword,
			"via", res.Rule.Keyword,
			"pattern", res.Decomposition.PatternString(),
		)
		return Reply{Text: res.Text, Outcome: OutcomeRule, Keyword: res.Trigger.Keyword}
	}

	if m, ok := e.memory.Poll(); ok {
		e.logger.Debug("memory recalled", "remaining", e.memory.Len())
		return Reply{Text: m, Outcome: OutcomeMemory}
	}

	if def, ok := e.script.Default(); ok {
		if res, ok := e.matcher.Match(tokens, def); ok {
			return Reply{Text: res.Text, Outcome: OutcomeDefault, Keyword: def.Keyword}
		}
	}
	return Reply{Text: DefaultNoMatch, Outcome: OutcomeDefault}
}

func (e *Engine) emptyPrompt() string {
	if p := e.script.Empty(); p != "" {
		return p
	}
	return DefaultEmpty
}

// isQuit reports whether the whole utterance is one of the quit phrases.
// "I want to quit my job" is not a farewell.
func (e *Engine) isQuit(tokens []string) bool {
	for _, phrase := range e.quit {
		if slices.Equal(tokens, phrase) {
			return true
		}
	}
	return false
}

// remember queues a memory built from the rule that produced res, using that
// rule's next memory template.
func (e *Engine) remember(res match.Result) {
	rule := res.Rule
	if len(rule.Memory) == 0 {
		return
	}
	t := rule.Memory[e.recall.Next(rule.ID, len(rule.Memory))]
	sentence := match.Reassemble(t, res.Fragments, e.script.Post())
	if !e.memory.Offer(sentence) {
		e.logger.Debug("memory full, entry refused", "keyword", rule.Keyword)
		return
	}
	e.logger.Debug("memory stored", "keyword", rule.Keyword, "queued", e.memory.Len())
}
