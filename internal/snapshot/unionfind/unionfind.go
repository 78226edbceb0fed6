// Package unionfind is a string-keyed disjoint set with path compression.
package unionfind

import "sort"

// Set groups keys into disjoint clusters. The zero value is not usable; call New.
type Set struct {
	parent map[string]string
	order  []string
}

// New returns an empty set.
func New() *Set {
	return &Set{parent: map[string]string{}}
}

// Add registers key as its own cluster. Adding a known key is a no-op.
func (s *Set) Add(key string) {
	if _, ok := s.parent[key]; ok {
		return
	}
	s.parent[key] = key
	s.order = append(s.order, key)
}

// Find returns the root of key's cluster, adding key when unseen. Every key on
// the walk is pointed straight at the root.
func (s *Set) Find(key string) string {
	s.Add(key)
	root := key
	for s.parent[root] != root {
		root = s.parent[root]
	}
	for key != root {
		next := s.parent[key]
		s.parent[key] = root
		key = next
	}
	return root
}

// Union merges the clusters of a and b. The root of b's cluster is attached
// under the root of a's cluster.
func (s *Set) Union(a, b string) {
	ra, rb := s.Find(a), s.Find(b)
	if ra != rb {
		s.parent[rb] = ra
	}
}

// Connected reports whether a and b share a cluster.
func (s *Set) Connected(a, b string) bool {
	return s.Find(a) == s.Find(b)
}

// Clusters returns every cluster with at least minSize members. Members are
// sorted and clusters are ordered by their first member.
func (s *Set) Clusters(minSize int) [][]string {
	groups := map[string][]string{}
	for _, key := range s.order {
		root := s.Find(key)
		groups[root] = append(groups[root], key)
	}
	out := make([][]string, 0, len(groups))
	for _, members := range groups {
		if len(members) < minSize {
			continue
		}
		sort.Strings(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Len is the number of keys added.
func (s *Set) Len() int {
	return len(s.order)
}
