package cot

import "strings"

// Type is a CoT symbology type string such as "a-n-A-C-F".
type Type string

// Affiliation and battle dimension atoms of the symbology type.
const (
	atomFriendly = "a-f"
	atomNeutral  = "a-n"
	atomGround   = "-G"
	atomAir      = "-A"
	atomMilitary = "-M"
	atomCivilian = "-C"
)

type domain int

const (
	domainAir domain = iota
	domainGround
)

type matchKind int

const (
	matchExact matchKind = iota
	matchPrefix
)

// shapeRule appends a function/shape suffix when the emitter category
// matches. Within a domain the first matching rule wins.
type shapeRule struct {
	domain domain
	kind   matchKind
	code   string
	suffix string
	// civilianSuffix is appended after suffix for non-military tracks.
	civilianSuffix bool
}

// Emitter categories follow DO-260B 2.2.3.2.5.2: A* aircraft by weight
// class, B* special air vehicles, C* surface vehicles.
var shapeRules = []shapeRule{
	{domain: domainGround, kind: matchExact, code: "c1", suffix: "-U-i"},
	{domain: domainGround, kind: matchExact, code: "c2", suffix: "-E-V", civilianSuffix: true},

	{domain: domainAir, kind: matchExact, code: "a7", suffix: "-H"},
	{domain: domainAir, kind: matchPrefix, code: "a", suffix: "-F"},
	{domain: domainAir, kind: matchExact, code: "b6", suffix: "-F-q"},
	{domain: domainAir, kind: matchExact, code: "b2", suffix: "-L"},
}

func (r shapeRule) matches(category string) bool {
	if r.kind == matchPrefix {
		return strings.HasPrefix(category, r.code)
	}
	return category == r.code
}

// Classify maps an emitter category and the military flag to a CoT type.
// It returns false when category is empty since no type can be derived.
// Unknown categories fall back to the bare affiliation and domain.
func Classify(category string, military bool) (Type, bool) {
	category = strings.ToLower(category)
	if category == "" {
		return "", false
	}

	var b strings.Builder
	if military {
		b.WriteString(atomFriendly)
	} else {
		b.WriteString(atomNeutral)
	}

	dom := domainAir
	if category[0] == 'c' {
		dom = domainGround
		b.WriteString(atomGround)
	} else {
		b.WriteString(atomAir)
		if military {
			b.WriteString(atomMilitary)
		} else {
			b.WriteString(atomCivilian)
		}
	}

	for _, rule := range shapeRules {
		if rule.domain != dom || !rule.matches(category) {
			continue
		}
		b.WriteString(rule.suffix)
		if rule.civilianSuffix && !military {
			b.WriteString(atomCivilian)
		}
		break
	}

	return Type(b.String()), true
}
