// Package roles classifies wallet addresses into portal roles and gates actions by role.
package roles

import (
	"sort"
	"strings"
)

// Role is the classification of a wallet address.
type Role string

const (
	Admin     Role = "admin"
	Insurance Role = "insurance"
	Syndicate Role = "syndicate"
	Investor  Role = "investor"
)

// All lists every role in precedence order.
var All = []Role{Admin, Insurance, Syndicate, Investor}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case Admin, Insurance, Syndicate, Investor:
		return true
	}
	return false
}

// ParseRole parses a role tag case-insensitively.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Whitelist holds the configured address lists.
type Whitelist struct {
	Admin     []string
	Insurance []string
	Syndicate []string
}

// Resolver maps addresses to roles. It is immutable after construction and safe for
// concurrent use.
type Resolver struct {
	admin     map[string]struct{}
	insurance map[string]struct{}
	syndicate map[string]struct{}
}

// NewResolver builds a resolver from a whitelist. Entries are lower-cased; blanks are ignored.
func NewResolver(w Whitelist) *Resolver {
	return &Resolver{
		admin:     toSet(w.Admin),
		insurance: toSet(w.Insurance),
		syndicate: toSet(w.Syndicate),
	}
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, entry := range list {
		normalized := normalize(entry)
		if normalized == "" {
			continue
		}
		out[normalized] = struct{}{}
	}
	return out
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Resolve returns the role of addr. Empty or unknown addresses resolve to Investor.
func (r *Resolver) Resolve(addr string) Role {
	if r == nil {
		return Investor
	}
	key := normalize(addr)
	if key == "" {
		return Investor
	}
	if _, ok := r.admin[key]; ok {
		return Admin
	}
	if _, ok := r.insurance[key]; ok {
		return Insurance
	}
	if _, ok := r.syndicate[key]; ok {
		return Syndicate
	}
	return Investor
}

// Overlap is an address present in more than one list.
type Overlap struct {
	Address    string `json:"address"`
	Lists      []Role `json:"lists"`
	ResolvesTo Role   `json:"resolves_to"`
}

// Overlaps reports every address listed under more than one role, sorted by address.
func (r *Resolver) Overlaps() []Overlap {
	membership := make(map[string][]Role)
	for _, entry := range []struct {
		role Role
		set  map[string]struct{}
	}{{Admin, r.admin}, {Insurance, r.insurance}, {Syndicate, r.syndicate}} {
		for addr := range entry.set {
			membership[addr] = append(membership[addr], entry.role)
		}
	}

	var out []Overlap
	for addr, lists := range membership {
		if len(lists) < 2 {
			continue
		}
		out = append(out, Overlap{Address: addr, Lists: lists, ResolvesTo: r.Resolve(addr)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Counts returns how many addresses each list holds.
func (r *Resolver) Counts() map[Role]int {
	return map[Role]int{
		Admin:     len(r.admin),
		Insurance: len(r.insurance),
		Syndicate: len(r.syndicate),
	}
}
