// Package environment overlays configuration from environment variables.
//
// Every variable shares a prefix (ELIZA_ for this project). A variable that
// is unset or empty leaves the destination untouched; a variable that is set
// but cannot be parsed is an error, so a typo in a deployment fails loudly
// instead of silently falling back to a default.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Env reads variables sharing one prefix.
type Env struct {
	prefix string
	lookup func(string) (string, bool)
}

// New returns an Env reading the process environment.
func New(prefix string) Env {
	return Env{prefix: prefix, lookup: os.LookupEnv}
}

// FromMap returns an Env reading vars instead of the process environment.
func FromMap(prefix string, vars map[string]string) Env {
	return Env{prefix: prefix, lookup: func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}}
}

// Name returns the full variable name for key.
func (e Env) Name(key string) string { return e.prefix + key }

// Lookup returns the value of key and whether it is set to a non-empty value.
func (e Env) Lookup(key string) (string, bool) {
	v, ok := e.lookup(e.Name(key))
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// String overlays key onto dst.
func (e Env) String(key string, dst *string) {
	if v, ok := e.Lookup(key); ok {
		*dst = v
	}
}

// Int overlays key onto dst as a decimal integer.
func (e Env) Int(key string, dst *int) error {
	v, ok := e.Lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", e.Name(key), v)
	}
	*dst = n
	return nil
}

// Bool overlays key onto dst. Accepted values are those of strconv.ParseBool.
func (e Env) Bool(key string, dst *bool) error {
	v, ok := e.Lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not a boolean", e.Name(key), v)
	}
	*dst = b
	return nil
}

// Duration overlays key onto dst, e.g. "30s" or "15m".
func (e Env) Duration(key string, dst *time.Duration) error {
	v, ok := e.Lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not a duration", e.Name(key), v)
	}
	*dst = d
	return nil
}

// StringSlice overlays key onto dst as a comma-separated list. Blank elements
// are dropped.
func (e Env) StringSlice(key string, dst *[]string) {
	v, ok := e.Lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
