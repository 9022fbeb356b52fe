package acl

import "strings"

// rule is one row of the ACL table in spec.md §6: a role permitted to use
// method against a path pattern, where a pattern segment of "{id}" matches
// exactly one path segment.
type rule struct {
	role    Role
	methods []string
	pattern string
}

// Table is the full ACL, built once from the configured BaseDBPath and
// LocalSeqPointPrefix and reused for every request.
type Table struct {
	rules           []rule
	localSeqPattern string // e.g. "/db/_local/thali_{id}"
}

// NewTable builds the ACL table from spec.md §6, rooted at basePath (the
// document store's BaseDBPath) with the given local-sequence-point prefix.
func NewTable(basePath, localSeqPrefix string) Table {
	p := func(suffix string) string { return basePath + suffix }
	localSeq := p("/_local/" + localSeqPrefix + "{id}")

	return Table{
		localSeqPattern: localSeq,
		rules: []rule{
			{RoleBeacon, []string{"GET"}, "/NotificationBeacons"},

			{RoleReplication, []string{"GET"}, p("")},
			{RoleReplication, []string{"GET", "HEAD", "POST"}, p("/_all_docs")},
			{RoleReplication, []string{"GET"}, p("/{id}")},
			{RoleReplication, []string{"GET"}, p("/{id}/attachment")},
			{RoleReplication, []string{"GET", "PUT", "DELETE"}, p("/_local/{id}")},
			{RoleReplication, []string{"GET", "PUT", "DELETE"}, localSeq},
			{RoleReplication, []string{"POST"}, p("/_bulk_get")},
			{RoleReplication, []string{"GET", "POST"}, p("/_changes")},
			{RoleReplication, []string{"POST"}, p("/_revs_diff")},
		},
	}
}

// Allow reports whether role may perform method against path. It does not
// evaluate the local-sequence-point ownership check; Middleware applies that
// additional gate using LocalSeqPointID.
func (t Table) Allow(role Role, method, path string) bool {
	for _, r := range t.rules {
		if r.role != role {
			continue
		}
		if !containsMethod(r.methods, method) {
			continue
		}
		if patternMatches(r.pattern, path) {
			return true
		}
	}
	return false
}

// LocalSeqPointID reports whether path matches the local-sequence-point
// pattern, and if so returns the captured {id}.
func (t Table) LocalSeqPointID(path string) (id string, ok bool) {
	return captureID(t.localSeqPattern, path)
}

func containsMethod(methods []string, method string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

func patternMatches(pattern, path string) bool {
	_, ok := captureID(pattern, path)
	if ok {
		return true
	}
	// Patterns with no {id} segment must match exactly.
	return !strings.Contains(pattern, "{id}") && pattern == path
}

// captureID matches pattern against path segment-by-segment. Exactly one
// segment of pattern must contain the placeholder "{id}", optionally with a
// literal prefix (e.g. "thali_{id}"); the corresponding path segment is
// captured with that prefix stripped. Returns ok=false if pattern has no
// {id} segment or path doesn't match.
func captureID(pattern, path string) (string, bool) {
	if !strings.Contains(pattern, "{id}") {
		return "", false
	}

	pSegs := strings.Split(pattern, "/")
	aSegs := strings.Split(path, "/")
	if len(pSegs) != len(aSegs) {
		return "", false
	}

	var id string
	for i, seg := range pSegs {
		if idx := strings.Index(seg, "{id}"); idx >= 0 {
			prefix := seg[:idx]
			candidate := aSegs[i]
			if !strings.HasPrefix(candidate, prefix) || len(candidate) == len(prefix) {
				return "", false
			}
			id = strings.TrimPrefix(candidate, prefix)
			continue
		}
		if seg != aSegs[i] {
			return "", false
		}
	}
	return id, true
}
