package export

import (
	"github.com/chewxy/math32"
)

// CacheSize is the simulated post-transform vertex cache capacity.
const CacheSize = 32

const (
	noTriangle     = -1
	bestScoreFloor = -42.0
	emittedScore   = -666.0
)

// CacheStats summarizes a vertex cache optimization.
type CacheStats struct {
	Vertices  int
	Triangles int
	// Loads counts vertices that missed the simulated cache when emitted.
	Loads int
}

// ACMR is the average number of cache misses per triangle.
func (s CacheStats) ACMR() float64 {
	if s.Triangles == 0 {
		return 0
	}
	return float64(s.Loads) / float64(s.Triangles)
}

type cacheOptimizer struct {
	tris   []Triangle
	uses   [][]int
	rank   []int
	score  []float32
	scores []float32
}

// vertexScore rates a vertex by its cache position and remaining uses.
func vertexScore(uses, rank int) float32 {
	if uses == 0 {
		return -1
	}
	score := 2 * math32.Pow(float32(uses), -0.5)
	switch {
	case rank >= 3:
		score += math32.Pow(1-float32(rank-3)/CacheSize, 1.5)
	case rank >= 0:
		score += 0.75
	}
	return score
}

func (o *cacheOptimizer) rescore(v int) {
	o.score[v] = vertexScore(len(o.uses[v]), o.rank[v])
}

func (o *cacheOptimizer) triScore(t int) float32 {
	tri := o.tris[t]
	return o.score[tri[0]] + o.score[tri[1]] + o.score[tri[2]]
}

// OptimizeVertexCache reorders triangles greedily to improve reuse of a
// 32-entry vertex cache, then renumbers vertices in order of first use.
// Vertices no triangle references are dropped.
func OptimizeVertexCache(m *Mesh) CacheStats {
	n := len(m.Vertices)
	o := &cacheOptimizer{
		tris:   m.Triangles,
		uses:   make([][]int, n),
		rank:   make([]int, n),
		score:  make([]float32, n),
		scores: make([]float32, len(m.Triangles)),
	}
	for i, tri := range m.Triangles {
		for _, v := range tri {
			o.uses[v] = append(o.uses[v], i)
		}
	}
	for v := 0; v < n; v++ {
		o.rank[v] = -1
		o.rescore(v)
	}

	best, bestScore := noTriangle, float32(bestScoreFloor)
	for i := range m.Triangles {
		o.scores[i] = o.triScore(i)
		if o.scores[i] > bestScore {
			best, bestScore = i, o.scores[i]
		}
	}

	stats := CacheStats{Triangles: len(m.Triangles)}
	remap := make([]int, n)
	for i := range remap {
		remap[i] = -1
	}
	order := make([]int, 0, n)
	schedule := make([]Triangle, 0, len(m.Triangles))
	var cache []int

	for best != noTriangle {
		tri := m.Triangles[best]
		o.scores[best] = emittedScore
		schedule = append(schedule, tri)

		for _, v := range tri {
			if o.rank[v] < 0 {
				stats.Loads++
			}
			if remap[v] < 0 {
				remap[v] = len(order)
				order = append(order, v)
			}
			o.uses[v] = removeFirst(o.uses[v], best)
			o.rank[v] = -1
			o.score[v] = -1
		}

		next := make([]int, 0, len(cache)+3)
		for i, v := range tri {
			if len(o.uses[v]) > 0 && (i == 0 || v != tri[0]) && (i < 2 || v != tri[1]) {
				next = append(next, v)
			}
		}
		for _, v := range cache {
			if o.rank[v] >= 0 {
				next = append(next, v)
			}
		}
		cache = next
		for i, v := range cache {
			o.rank[v] = i
			o.rescore(v)
		}
		for len(cache) > CacheSize {
			v := cache[len(cache)-1]
			cache = cache[:len(cache)-1]
			o.rank[v] = -1
			o.rescore(v)
		}

		best, bestScore = noTriangle, bestScoreFloor
		for _, v := range cache {
			for _, t := range o.uses[v] {
				o.scores[t] = o.triScore(t)
				if o.scores[t] > bestScore {
					best, bestScore = t, o.scores[t]
				}
			}
		}
		if best == noTriangle {
			for t, s := range o.scores {
				if s > bestScore {
					best, bestScore = t, s
				}
			}
		}
	}

	verts := make([]Vertex, len(order))
	for i, v := range order {
		verts[i] = m.Vertices[v]
	}
	for i, tri := range schedule {
		schedule[i] = Triangle{remap[tri[0]], remap[tri[1]], remap[tri[2]]}
	}
	m.Vertices = verts
	m.Triangles = schedule
	stats.Vertices = len(verts)
	return stats
}

func removeFirst(s []int, x int) []int {
	for i, v := range s {
		if v == x {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
