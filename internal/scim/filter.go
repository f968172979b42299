package scim

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter is a parsed equality predicate. Attribute is the canonical attribute
// name after case-insensitive matching against the resource's allowed set.
type Filter struct {
	Attribute string
	Value     string
}

// filterPattern matches exactly `attribute eq value`, with the value quoted
// or a single bare token. The expression must match end to end: trailing
// clauses (and/or, extra operators) are rejected instead of silently ignored.
var filterPattern = regexp.MustCompile(`^\s*([a-zA-Z][a-zA-Z0-9_.]*)\s+[eE][qQ]\s+(?:"([^"]*)"|([^"\s]+))\s*$`)

// userFilterAttrs are the attributes filterable on Users
var userFilterAttrs = []string{"userName", "externalId", "id"}

// groupFilterAttrs are the attributes filterable on Groups
var groupFilterAttrs = []string{"displayName", "id"}

// ParseUserFilter parses a filter expression against the User attribute set
func ParseUserFilter(expr string) (*Filter, error) {
	return parseFilter(expr, userFilterAttrs)
}

// ParseGroupFilter parses a filter expression against the Group attribute set
func ParseGroupFilter(expr string) (*Filter, error) {
	return parseFilter(expr, groupFilterAttrs)
}

func parseFilter(expr string, allowed []string) (*Filter, error) {
	m := filterPattern.FindStringSubmatch(expr)
	if m == nil {
		return nil, ErrInvalidFilter(fmt.Sprintf("Unsupported filter syntax: %s. Only 'attribute eq \"value\"' is supported.", expr))
	}

	attr, value := m[1], m[2]
	if m[3] != "" {
		value = m[3]
	}
	for _, candidate := range allowed {
		if strings.EqualFold(attr, candidate) {
			return &Filter{Attribute: candidate, Value: value}, nil
		}
	}
	return nil, ErrInvalidFilter(fmt.Sprintf("Filtering on attribute %q is not supported.", attr))
}
