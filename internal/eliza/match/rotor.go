package match

// Rotor holds rotation cursors for one conversation. Cursors are addressed by
// an integer ID, usually a Decomposition.ID, and start at zero.
type Rotor struct {
	cursors map[int]int
}

// NewRotor returns a Rotor with every cursor at zero.
func NewRotor() *Rotor {
	return &Rotor{cursors: make(map[int]int)}
}

// Next returns the current cursor for id and advances it modulo n. n must be
// the length of the list the cursor indexes; Next returns 0 when n < 1.
func (r *Rotor) Next(id, n int) int {
	if n < 1 {
		return 0
	}
	i := r.cursors[id] % n
	r.cursors[id] = (i + 1) % n
	return i
}

// Peek returns the cursor for id without advancing it.
func (r *Rotor) Peek(id, n int) int {
	if n < 1 {
		return 0
	}
	return r.cursors[id] % n
}

// Reset moves every cursor back to zero.
func (r *Rotor) Reset() {
	clear(r.cursors)
}
