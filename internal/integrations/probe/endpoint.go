// Package probe discovers which of several plausible vendor routes accepts
// an operation, trying candidates in a fixed order.
package probe

import (
	"net/http"
	"strings"
)

// KeyMode decides how the session name is offered across Keys.
type KeyMode int

const (
	// EachKey sends one attempt per key.
	EachKey KeyMode = iota
	// AllKeys sends a single attempt carrying every key.
	AllKeys
)

// Endpoint is the data form of a route to probe.
type Endpoint struct {
	Path    string   `yaml:"path"`
	Methods []string `yaml:"methods"`
	Keys    []string `yaml:"keys"`
	KeyMode KeyMode  `yaml:"-"`
	Admin   bool     `yaml:"admin"`
}

// Candidate is a single attempt: one path, one method, one key set.
type Candidate struct {
	Method string
	Path   string
	Keys   []string
	Admin  bool
}

// Expand turns endpoints into the ordered attempt list. Order follows
// declaration: endpoint, then method, then key.
func Expand(endpoints ...Endpoint) []Candidate {
	var out []Candidate
	for _, ep := range endpoints {
		admin := ep.Admin || strings.HasPrefix(ep.Path, "/admin")
		methods := ep.Methods
		if len(methods) == 0 {
			methods = []string{http.MethodPost}
		}
		for _, m := range methods {
			m = strings.ToUpper(m)
			if ep.KeyMode == EachKey && len(ep.Keys) > 0 {
				for _, k := range ep.Keys {
					out = append(out, Candidate{Method: m, Path: ep.Path, Keys: []string{k}, Admin: admin})
				}
				continue
			}
			out = append(out, Candidate{Method: m, Path: ep.Path, Keys: ep.Keys, Admin: admin})
		}
	}
	return out
}

// Paths builds endpoints sharing methods, keys and mode.
func Paths(methods, keys []string, mode KeyMode, paths ...string) []Endpoint {
	out := make([]Endpoint, 0, len(paths))
	for _, p := range paths {
		out = append(out, Endpoint{Path: p, Methods: methods, Keys: keys, KeyMode: mode})
	}
	return out
}

// PreferredMethods puts first at the head of the rest, without duplicates.
func PreferredMethods(first string, rest ...string) []string {
	first = strings.ToUpper(strings.TrimSpace(first))
	out := []string{}
	if first != "" {
		out = append(out, first)
	}
	for _, m := range rest {
		if m != first {
			out = append(out, m)
		}
	}
	return out
}
