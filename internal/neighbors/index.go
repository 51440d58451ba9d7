// Package neighbors answers "which points are closest in the original feature
// space", complementing the distorted distances of the 3D embedding.
package neighbors

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/coder/hnsw"
)

var (
	// ErrUnknownPoint is returned for an index outside the dataset.
	ErrUnknownPoint = errors.New("unknown point index")
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// Neighbor is one search hit.
type Neighbor struct {
	Idx      int     `json:"idx"`
	Distance float64 `json:"distance"`
}

// Index wraps an HNSW graph keyed by point index. Read-only after Build.
type Index struct {
	graph   *hnsw.Graph[int]
	vectors []hnsw.Vector
}

// Build indexes features (Euclidean distance). The seed fixes the graph's level
// assignment so identical input yields an identical graph.
func Build(features [][]float64, seed int64) *Index {
	g := hnsw.NewGraph[int]()
	g.Distance = hnsw.EuclideanDistance
	g.Rng = rand.New(rand.NewSource(seed))

	vectors := make([]hnsw.Vector, len(features))
	nodes := make([]hnsw.Node[int], len(features))
	for i, f := range features {
		v := make(hnsw.Vector, len(f))
		for j, x := range f {
			v[j] = float32(x)
		}
		vectors[i] = v
		nodes[i] = hnsw.MakeNode(i, v)
	}
	if len(nodes) > 0 {
		g.Add(nodes...)
	}
	return &Index{graph: g, vectors: vectors}
}

// Len returns the number of indexed points.
func (x *Index) Len() int {
	return len(x.vectors)
}

// Nearest returns up to k neighbours of point idx, closest first, excluding idx itself.
func (x *Index) Nearest(idx, k int) ([]Neighbor, error) {
	if idx < 0 || idx >= len(x.vectors) {
		return nil, ErrUnknownPoint
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}

	query := x.vectors[idx]
	hits := x.graph.Search(query, k+1)

	out := make([]Neighbor, 0, len(hits))
	for _, h := range hits {
		if h.Key == idx {
			continue
		}
		out = append(out, Neighbor{Idx: h.Key, Distance: euclidean(query, h.Value)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance == out[j].Distance {
			return out[i].Idx < out[j].Idx
		}
		return out[i].Distance < out[j].Distance
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func euclidean(a, b hnsw.Vector) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return math.Sqrt(s)
}
