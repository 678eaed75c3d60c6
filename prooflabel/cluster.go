package prooflabel

import "math"

// merge joins the clusters holding points a and b at the given linkage height.
type merge struct {
	a, b   int
	height float64
}

// averageLinkage runs the nearest-neighbour chain algorithm with average
// (UPGMA) linkage. dist is consumed: it is overwritten with inter-cluster
// distances as clusters merge. The slot kept after a merge is the lower
// index, so a slot always contains its own original point.
func averageLinkage(dist [][]float64) []merge {
	n := len(dist)
	if n < 2 {
		return nil
	}
	active := make([]bool, n)
	size := make([]int, n)
	for i := range active {
		active[i] = true
		size[i] = 1
	}
	merges := make([]merge, 0, n-1)
	chain := make([]int, 0, n)
	remaining := n
	next := 0

	for remaining > 1 {
		if len(chain) == 0 {
			for !active[next] {
				next++
			}
			chain = append(chain, next)
		}
		a := chain[len(chain)-1]
		prev := -1
		best, bestD := -1, math.Inf(1)
		if len(chain) >= 2 {
			prev = chain[len(chain)-2]
			best, bestD = prev, dist[a][prev]
		}
		for k := 0; k < n; k++ {
			if !active[k] || k == a {
				continue
			}
			if dist[a][k] < bestD {
				best, bestD = k, dist[a][k]
			}
		}
		if best != prev {
			chain = append(chain, best)
			continue
		}

		chain = chain[:len(chain)-2]
		keep, drop := a, prev
		if drop < keep {
			keep, drop = drop, keep
		}
		merges = append(merges, merge{a: keep, b: drop, height: bestD})
		sk, sd := float64(size[keep]), float64(size[drop])
		for k := 0; k < n; k++ {
			if !active[k] || k == keep || k == drop {
				continue
			}
			d := (sk*dist[keep][k] + sd*dist[drop][k]) / (sk + sd)
			dist[keep][k] = d
			dist[k][keep] = d
		}
		active[drop] = false
		size[keep] += size[drop]
		remaining--
	}
	return merges
}

// cutTree applies every merge strictly below threshold and returns a cluster
// id per point. Ids are numbered by each cluster's lowest point.
func cutTree(n int, merges []merge, threshold float64) []int {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, m := range merges {
		if m.height >= threshold {
			continue
		}
		ra, rb := find(m.a), find(m.b)
		if ra == rb {
			continue
		}
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}
	labels := make([]int, n)
	ids := make(map[int]int)
	for i := 0; i < n; i++ {
		root := find(i)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		labels[i] = id
	}
	return labels
}
