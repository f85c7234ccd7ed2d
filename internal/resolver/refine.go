package resolver

import "go.uber.org/zap"

// refine folds a multi-concept classifier result using the hierarchy: within
// one connected component, collapse to the most specific member(s); across
// disjoint components, collapse to their nearest common ancestor when one
// exists, otherwise keep each component's most specific member(s).
func (r *Resolver) refine(concepts []string) []string {
	if len(concepts) <= 1 {
		return concepts
	}

	inOutput := make(map[string]bool, len(concepts))
	for _, c := range concepts {
		inOutput[c] = true
	}

	visited := make(map[string]bool)
	var components [][]string
	for _, c := range concepts {
		if visited[c] {
			continue
		}
		comp := make(map[string]bool)
		r.expandComponent(c, comp, visited)

		// Keep output order so results stay deterministic.
		var members []string
		for _, o := range concepts {
			if comp[o] {
				members = append(members, o)
			}
		}
		if len(members) > 0 {
			components = append(components, members)
		}
	}

	if len(components) == 1 {
		leaves := r.componentLeaves(components[0])
		if len(leaves) > 1 {
			if lca, ok := r.graph.LowestCommonAncestor(leaves); ok {
				zap.L().Debug("resolver: collapsed leaves to common ancestor",
					zap.Strings("leaves", leaves),
					zap.String("ancestor", lca),
				)
				return []string{lca}
			}
		}
		return leaves
	}

	var all []string
	for _, comp := range components {
		all = append(all, comp...)
	}
	if lca, ok := r.graph.LowestCommonAncestor(all); ok {
		zap.L().Debug("resolver: collapsed components to common ancestor",
			zap.Strings("concepts", all),
			zap.String("ancestor", lca),
		)
		return []string{lca}
	}

	var leaves []string
	for _, comp := range components {
		leaves = append(leaves, r.componentLeaves(comp)...)
	}
	return dedupStrings(leaves)
}

// expandComponent walks ancestor and descendant edges to gather the connected
// component containing node.
func (r *Resolver) expandComponent(node string, comp, visited map[string]bool) {
	comp[node] = true
	visited[node] = true
	for _, child := range r.graph.Descendants(node) {
		if !visited[child] {
			r.expandComponent(child, comp, visited)
		}
	}
	for _, parent := range r.graph.DirectParents(node) {
		if !visited[parent] {
			r.expandComponent(parent, comp, visited)
		}
	}
}

// componentLeaves returns members with no descendant inside the component.
func (r *Resolver) componentLeaves(members []string) []string {
	inComp := make(map[string]bool, len(members))
	for _, m := range members {
		inComp[m] = true
	}
	var out []string
	for _, node := range members {
		hasChild := false
		for _, d := range r.graph.Descendants(node) {
			if inComp[d] {
				hasChild = true
				break
			}
		}
		if !hasChild {
			out = append(out, node)
		}
	}
	return out
}
