package script

import (
	_ "embed"
	"sync"
)

// BuiltinName is the name the embedded DOCTOR script is compiled under.
const BuiltinName = "doctor.txt"

//go:embed doctor.txt
var doctorSource string

var (
	builtinOnce   sync.Once
	builtinScript *Script
	builtinErr    error
)

// Builtin returns the embedded DOCTOR script. The script is compiled once
// and shared.
func Builtin() (*Script, error) {
	builtinOnce.Do(func() {
		builtinScript, builtinErr = ParseString(doctorSource, BuiltinName)
	})
	return builtinScript, builtinErr
}

// BuiltinSource returns the text of the embedded DOCTOR script.
func BuiltinSource() string { return doctorSource }
