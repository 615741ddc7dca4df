package duplicates

import "sort"

// Group is a connected set of artifacts linked by duplicate candidates.
type Group struct {
	Paths []string
	// Tier is the weakest tier among the group's links.
	Tier Tier
}

// GroupCandidates collapses candidates into connected groups, sorted by
// their first path.
func GroupCandidates(candidates []Candidate) []Group {
	parent := make(map[string]string)
	var find func(string) string
	find = func(p string) string {
		if parent[p] == p {
			return p
		}
		root := find(parent[p])
		parent[p] = root
		return root
	}
	add := func(p string) {
		if _, ok := parent[p]; !ok {
			parent[p] = p
		}
	}
	for _, c := range candidates {
		add(c.A.Path)
		add(c.B.Path)
		ra, rb := find(c.A.Path), find(c.B.Path)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	members := make(map[string][]string)
	for p := range parent {
		root := find(p)
		members[root] = append(members[root], p)
	}
	weakest := make(map[string]Tier)
	for _, c := range candidates {
		root := find(c.A.Path)
		if c.Tier > weakest[root] {
			weakest[root] = c.Tier
		}
	}

	groups := make([]Group, 0, len(members))
	for root, paths := range members {
		sort.Strings(paths)
		groups = append(groups, Group{Paths: paths, Tier: weakest[root]})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Paths[0] < groups[j].Paths[0] })
	return groups
}
