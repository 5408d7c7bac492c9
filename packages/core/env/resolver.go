package env

import (
	"os"
	"regexp"
	"sync"
)

// ${NAME} or ${NAME:-default}
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Resolver expands ${VAR} references. Safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]string
	warnFunc  WarnFunc
}

func NewResolver() *Resolver {
	return &Resolver{
		variables: make(map[string]string),
	}
}

// SetWarnFunc sets a function to be called for references that cannot be
// resolved
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	fn := r.warnFunc
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

func (r *Resolver) SetVariables(vars map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.variables[k] = v
	}
}

func (r *Resolver) SetVariable(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables[name] = value
}

// Lookup checks the process environment, then the loaded variables
func (r *Resolver) Lookup(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variables[name]
	return v, ok
}

// Resolve replaces every reference in input. Unknown references without a
// default are left untouched.
func (r *Resolver) Resolve(input string) string {
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := variablePattern.FindStringSubmatch(match)
		name := groups[1]

		if v, ok := r.Lookup(name); ok {
			return v
		}
		if len(match) > len(name)+3 {
			return groups[2]
		}

		r.warn("unresolved variable: ${%s}", name)
		return match
	})
}

func (r *Resolver) ResolveAll(values map[string]string) map[string]string {
	result := make(map[string]string, len(values))
	for k, v := range values {
		result[k] = r.Resolve(v)
	}
	return result
}

// Unresolved lists the names in input that have neither a value nor a
// default
func (r *Resolver) Unresolved(input string) []string {
	var names []string
	for _, groups := range variablePattern.FindAllStringSubmatch(input, -1) {
		hasDefault := len(groups[0]) > len(groups[1])+3
		if _, ok := r.Lookup(groups[1]); !ok && !hasDefault {
			names = append(names, groups[1])
		}
	}
	return names
}
