// Package match ranks the rules triggered by an input and turns the best
// one into a reply: decomposition patterns split the input into fragments and
// reassembly templates put the reflected fragments back into a sentence.
package match
