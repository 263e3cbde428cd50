package schema

import (
	"strings"
)

// Catalog maps composite names to their types for text definitions.
type Catalog map[string]*CompositeType

// Add registers c under its name and returns the catalog.
func (c Catalog) Add(ct *CompositeType) Catalog {
	c[ct.Name] = ct
	return c
}

// ParseType parses the text form of a type: a scalar name, "string",
// "composite:<Name>" resolved against catalog, or any of these followed by
// one or more "[]" for (nested) arrays.
func ParseType(text string, catalog Catalog) (Type, bool) {
	text = strings.TrimSpace(text)
	if elem, ok := strings.CutSuffix(text, "[]"); ok {
		t, ok := ParseType(elem, catalog)
		if !ok {
			return Type{}, false
		}
		return ArrayOf(t), true
	}
	if name, ok := strings.CutPrefix(text, "composite:"); ok {
		ct, ok := catalog[name]
		if !ok {
			return Type{}, false
		}
		return CompositeOf(ct), true
	}
	for k, name := range kindNames {
		if name == text && (k.Scalar() || k == KindString) {
			return Type{Kind: k}, true
		}
	}
	return Type{}, false
}
