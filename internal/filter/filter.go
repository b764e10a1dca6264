// Package filter compiles and evaluates the device allow-list.
//
// The allow-list is a space-separated list of tokens. Each token compiles to
// one [Rule]:
//
//	sda        exact device name
//	cd*        any device name starting with "cd"
//	md[0-3]    "md" followed by one character in the range '0'..'3'
//	md[0-3]p   "md" followed by anything containing "p"
//
// Rules are evaluated in order and the first match wins. An empty allow-list
// allows every device. Compiled [Rules] are immutable and safe for concurrent
// use.
package filter

import (
	"strings"
)

// Kind identifies the variant of a compiled rule.
type Kind int

const (
	// Exact matches the device name byte for byte.
	Exact Kind = iota
	// PrefixWildcard matches any device name starting with Prefix.
	PrefixWildcard
	// RangeClass matches Prefix followed by a single character in [Lo, Hi],
	// or Prefix followed by a remainder containing Suffix.
	RangeClass
)

// String returns the rule kind name.
func (k Kind) String() string {
	switch k {
	case Exact:
		return "exact"
	case PrefixWildcard:
		return "prefix"
	case RangeClass:
		return "range"
	default:
		return "unknown"
	}
}

// Rule is one compiled allow-list token.
type Rule struct {
	Kind Kind
	// Token is the source text the rule was compiled from.
	Token string
	// Name is the device name for Exact rules.
	Name string
	// Prefix is the literal prefix for PrefixWildcard and RangeClass rules.
	Prefix string
	// Class is the raw text between the brackets of a RangeClass token.
	Class string
	// Lo and Hi bound the character class. Valid is false when Class is not
	// of the form "c1-c2"; such a rule can still match through its Suffix.
	Lo, Hi byte
	Valid  bool
	// Suffix is the text after the closing bracket of a RangeClass token.
	Suffix string
}

// Match reports whether devname satisfies the rule.
func (r Rule) Match(devname string) bool {
	switch r.Kind {
	case Exact:
		return devname == r.Name
	case PrefixWildcard:
		return strings.HasPrefix(devname, r.Prefix)
	case RangeClass:
		return r.matchRange(devname)
	default:
		return false
	}
}

func (r Rule) matchRange(devname string) bool {
	// An empty prefix never matches.
	if r.Prefix == "" || !strings.HasPrefix(devname, r.Prefix) {
		return false
	}
	rest := devname[len(r.Prefix):]
	if r.Suffix != "" {
		// Not anchored: the suffix may appear anywhere after the prefix and
		// the character class is not consulted.
		return strings.Contains(rest, r.Suffix)
	}
	if !r.Valid || rest == "" {
		return false
	}
	c := rest[0]
	return c >= r.Lo && c <= r.Hi
}

// Rules is an ordered, compiled allow-list.
type Rules []Rule

// Compile parses an allow-list string. Tokens are separated by the space
// character; consecutive spaces do not produce empty tokens.
func Compile(allowList string) Rules {
	var rules Rules
	for _, token := range strings.Split(allowList, " ") {
		if token == "" {
			continue
		}
		rules = append(rules, compileToken(token))
	}
	return rules
}

func compileToken(token string) Rule {
	open := strings.IndexByte(token, '[')
	closing := strings.IndexByte(token, ']')
	if open >= 0 && closing > open {
		r := Rule{
			Kind:   RangeClass,
			Token:  token,
			Prefix: token[:open],
			Class:  token[open+1 : closing],
			Suffix: token[closing+1:],
		}
		if len(r.Class) == 3 && r.Class[1] == '-' {
			r.Lo, r.Hi, r.Valid = r.Class[0], r.Class[2], true
		}
		return r
	}

	if strings.HasSuffix(token, "*") {
		return Rule{
			Kind:   PrefixWildcard,
			Token:  token,
			Prefix: token[:len(token)-1],
		}
	}

	return Rule{Kind: Exact, Token: token, Name: token}
}

// Match returns the first rule that accepts devname.
func (rs Rules) Match(devname string) (Rule, bool) {
	for _, r := range rs {
		if r.Match(devname) {
			return r, true
		}
	}
	return Rule{}, false
}

// Allowed reports whether devname passes the allow-list. An empty device
// name is always rejected; an empty rule set allows everything else.
func (rs Rules) Allowed(devname string) bool {
	if devname == "" {
		return false
	}
	if len(rs) == 0 {
		return true
	}
	_, ok := rs.Match(devname)
	return ok
}

// AllowAll reports whether the rule set places no restriction on device names.
func (rs Rules) AllowAll() bool {
	return len(rs) == 0
}

// String renders the rules back to allow-list syntax.
func (rs Rules) String() string {
	tokens := make([]string, len(rs))
	for i, r := range rs {
		tokens[i] = r.Token
	}
	return strings.Join(tokens, " ")
}

// Allowed compiles allowList and evaluates devname against it. Callers that
// check more than one name should Compile once and reuse the Rules.
func Allowed(allowList, devname string) bool {
	return Compile(allowList).Allowed(devname)
}
