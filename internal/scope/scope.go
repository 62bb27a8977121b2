// Package scope models the permission strings carried by authorization
// requests, grants, and issued tokens. A scope is either an umbrella scope
// ("read", "write"), a namespaced method ("documents.info"), or a namespace
// wildcard ("documents.*").
package scope

import (
	"errors"
	"sort"
	"strings"
)

// Scope is a single validated permission string.
type Scope string

// Umbrella scopes covering every namespace.
const (
	Read  Scope = "read"  // view everything the user can see
	Write Scope = "write" // view and modify everything the user can see
)

const wildcard = "*"

var ErrInvalidScope = errors.New("invalid_scope")

// namespaces maps every known API namespace to true.
var namespaces = map[string]bool{
	"documents":   true,
	"collections": true,
	"users":       true,
	"groups":      true,
	"shares":      true,
	"comments":    true,
	"stars":       true,
	"revisions":   true,
	"events":      true,
	"teams":       true,
}

// readMethods are non-mutating; they are covered by the "read" umbrella.
var readMethods = map[string]bool{
	"list": true,
	"info": true,
	"read": true,
}

// writeMethods mutate state; they are covered by the "write" umbrella.
var writeMethods = map[string]bool{
	"create": true,
	"update": true,
	"delete": true,
	"write":  true,
}

// Parse validates a single raw scope string.
func Parse(raw string) (Scope, error) {
	switch raw {
	case string(Read), string(Write):
		return Scope(raw), nil
	}

	ns, method, ok := strings.Cut(raw, ".")
	if !ok || ns == "" || method == "" {
		return "", ErrInvalidScope
	}
	if !namespaces[ns] {
		return "", ErrInvalidScope
	}
	if method != wildcard && !readMethods[method] && !writeMethods[method] {
		return "", ErrInvalidScope
	}
	return Scope(raw), nil
}

// ParseList validates a space-separated scope string (RFC 6749 §3.3 format).
// The empty string yields an empty list, not an error.
func ParseList(raw string) ([]Scope, error) {
	fields := strings.Fields(raw)
	scopes := make([]Scope, 0, len(fields))
	for _, f := range fields {
		s, err := Parse(f)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, s)
	}
	return Normalize(scopes), nil
}

// Normalize deduplicates and sorts a scope list. The result is the
// authoritative machine-checkable set; it is never collapsed.
func Normalize(scopes []Scope) []Scope {
	seen := make(map[Scope]bool, len(scopes))
	out := make([]Scope, 0, len(scopes))
	for _, s := range scopes {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Namespace returns the namespace part of a scope, or "" for umbrella scopes.
func (s Scope) Namespace() string {
	ns, _, ok := strings.Cut(string(s), ".")
	if !ok {
		return ""
	}
	return ns
}

// Method returns the method part of a scope, or "" for umbrella scopes.
func (s Scope) Method() string {
	_, method, ok := strings.Cut(string(s), ".")
	if !ok {
		return ""
	}
	return method
}

// covers reports whether holding the allowed scope satisfies a request for
// the requested scope.
func covers(allowed, requested Scope) bool {
	if allowed == requested {
		return true
	}
	switch allowed {
	case Write:
		// "write" subsumes "read" and every namespaced scope.
		return true
	case Read:
		if requested == Read {
			return true
		}
		return readMethods[requested.Method()]
	}
	if allowed.Namespace() != "" && allowed.Method() == wildcard {
		// namespace.* covers namespace.anything, but never an umbrella scope.
		return requested.Namespace() == allowed.Namespace()
	}
	return false
}

// IsSubset reports whether every requested scope is satisfied by at least one
// allowed scope. Used both against a client's registered scopes and against
// the originating grant on refresh.
func IsSubset(requested, allowed []Scope) bool {
	for _, r := range requested {
		ok := false
		for _, a := range allowed {
			if covers(a, r) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Intersect returns the requested scopes that the allowed set satisfies.
func Intersect(requested, allowed []Scope) []Scope {
	out := make([]Scope, 0, len(requested))
	for _, r := range requested {
		for _, a := range allowed {
			if covers(a, r) {
				out = append(out, r)
				break
			}
		}
	}
	return Normalize(out)
}

// Subtract returns the scopes in from that the remove set does not satisfy.
func Subtract(from, remove []Scope) []Scope {
	out := make([]Scope, 0, len(from))
	for _, f := range from {
		covered := false
		for _, r := range remove {
			if covers(r, f) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, f)
		}
	}
	return Normalize(out)
}

// Join renders a scope list back into RFC 6749 space-separated form.
func Join(scopes []Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, " ")
}

// Display levels, ordered weakest to strongest.
const (
	displayView   = "view"
	displayWrite  = "write"
	displayManage = "manage"
)

// DisplayGroup is a human-readable summary of what a set of scopes permits
// within one namespace, for consent-screen rendering.
type DisplayGroup struct {
	Namespace string `json:"namespace"` // "" for umbrella scopes
	Access    string `json:"access"`    // "view", "write", or "manage"
}

// DisplayGroups collapses a scope list into per-namespace consent groupings:
// list/info/read become "view", create/update/delete/write become "write",
// and a namespace wildcard becomes "manage". This is a presentation concern
// only; the underlying scope set is what gets persisted and enforced.
func DisplayGroups(scopes []Scope) []DisplayGroup {
	levels := make(map[string]int)
	rank := map[string]int{displayView: 1, displayWrite: 2, displayManage: 3}

	for _, s := range Normalize(scopes) {
		switch s {
		case Read:
			if levels[""] < rank[displayView] {
				levels[""] = rank[displayView]
			}
			continue
		case Write:
			if levels[""] < rank[displayWrite] {
				levels[""] = rank[displayWrite]
			}
			continue
		}

		level := displayView
		switch {
		case s.Method() == wildcard:
			level = displayManage
		case writeMethods[s.Method()]:
			level = displayWrite
		}
		if levels[s.Namespace()] < rank[level] {
			levels[s.Namespace()] = rank[level]
		}
	}

	names := make([]string, 0, len(levels))
	for ns := range levels {
		names = append(names, ns)
	}
	sort.Strings(names)

	access := []string{"", displayView, displayWrite, displayManage}
	out := make([]DisplayGroup, 0, len(names))
	for _, ns := range names {
		out = append(out, DisplayGroup{Namespace: ns, Access: access[levels[ns]]})
	}
	return out
}
