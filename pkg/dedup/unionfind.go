// Package dedup resolves newly extracted entities against the existing
// graph. Candidate matches come from a cheap name-similarity prefilter;
// the final same-entity judgment is a language-model call that fails
// toward "new entity". Merges are tracked in a union-find so that
// transitive duplicates collapse to one canonical node.
package dedup

// UnionFind is a disjoint-set over string keys with path compression
// and union by rank.
type UnionFind struct {
	parent map[string]string
	rank   map[string]int
}

// NewUnionFind builds an empty disjoint-set.
func NewUnionFind() *UnionFind {
	return &UnionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

// Add registers a key as its own singleton set. Adding an existing key
// is a no-op.
func (u *UnionFind) Add(key string) {
	if _, ok := u.parent[key]; !ok {
		u.parent[key] = key
	}
}

// Find returns the canonical representative of key's set, compressing
// the path walked. Unknown keys are registered as singletons.
func (u *UnionFind) Find(key string) string {
	u.Add(key)
	root := key
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[key] != root {
		key, u.parent[key] = u.parent[key], root
	}
	return root
}

// Union merges the sets containing a and b and returns the resulting
// representative.
func (u *UnionFind) Union(a, b string) string {
	rootA, rootB := u.Find(a), u.Find(b)
	if rootA == rootB {
		return rootA
	}
	if u.rank[rootA] < u.rank[rootB] {
		rootA, rootB = rootB, rootA
	}
	u.parent[rootB] = rootA
	if u.rank[rootA] == u.rank[rootB] {
		u.rank[rootA]++
	}
	return rootA
}

// Same reports whether a and b are in the same set.
func (u *UnionFind) Same(a, b string) bool {
	return u.Find(a) == u.Find(b)
}

// Sets returns the members of every set keyed by representative.
func (u *UnionFind) Sets() map[string][]string {
	sets := make(map[string][]string)
	for key := range u.parent {
		root := u.Find(key)
		sets[root] = append(sets[root], key)
	}
	return sets
}
