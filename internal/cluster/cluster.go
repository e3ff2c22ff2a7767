// Package cluster orders the rows or columns of a matrix by agglomerative
// complete-linkage clustering, the ordering used by the report heatmaps.
package cluster

import (
	"fmt"
	"math"

	"omicsreport/internal/stats"
	"omicsreport/internal/table"
)

// Metric selects the pairwise distance.
type Metric string

const (
	Euclidean   Metric = "euclidean"
	Correlation Metric = "correlation"
)

// Merge is one agglomeration step. Left and Right index leaves when below
// n and earlier merges (n + step) otherwise.
type Merge struct {
	Left, Right int
	Height      float64
}

// Tree is the result of clustering n observations.
type Tree struct {
	N      int
	Merges []Merge
}

// Leaves returns the leaf order of the dendrogram, left subtree first.
func (t Tree) Leaves() []int {
	if t.N == 0 {
		return nil
	}
	if len(t.Merges) == 0 {
		return []int{0}
	}
	var walk func(node int, out []int) []int
	walk = func(node int, out []int) []int {
		if node < t.N {
			return append(out, node)
		}
		m := t.Merges[node-t.N]
		out = walk(m.Left, out)
		return walk(m.Right, out)
	}
	return walk(t.N+len(t.Merges)-1, make([]int, 0, t.N))
}

// Rows clusters the rows of m and returns their leaf order.
func Rows(m *table.WideMatrix, metric Metric) ([]int, error) {
	rows, _ := m.Dims()
	vecs := make([][]float64, rows)
	for r := range vecs {
		vecs[r] = m.RowValues(r)
	}
	return order(vecs, metric)
}

// Cols clusters the columns of m and returns their leaf order.
func Cols(m *table.WideMatrix, metric Metric) ([]int, error) {
	_, cols := m.Dims()
	vecs := make([][]float64, cols)
	for c := range vecs {
		vecs[c] = m.ColValues(c)
	}
	return order(vecs, metric)
}

func order(vecs [][]float64, metric Metric) ([]int, error) {
	d, err := Distances(vecs, metric)
	if err != nil {
		return nil, err
	}
	return CompleteLinkage(d).Leaves(), nil
}

// Distances builds the symmetric distance matrix. Missing coordinates are
// skipped pairwise and the euclidean sum rescaled by sqrt(n/k); a pair with
// no usable coordinates gets the largest distance seen.
func Distances(vecs [][]float64, metric Metric) ([][]float64, error) {
	var dist func(a, b []float64) float64
	switch metric {
	case Euclidean, "":
		dist = euclidean
	case Correlation:
		dist = correlation
	default:
		return nil, fmt.Errorf("cluster: unknown metric %q", metric)
	}
	n := len(vecs)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	maxSeen := 0.0
	var undefined [][2]int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := dist(vecs[i], vecs[j])
			if math.IsNaN(v) {
				undefined = append(undefined, [2]int{i, j})
				continue
			}
			d[i][j], d[j][i] = v, v
			if v > maxSeen {
				maxSeen = v
			}
		}
	}
	for _, p := range undefined {
		d[p[0]][p[1]], d[p[1]][p[0]] = maxSeen, maxSeen
	}
	return d, nil
}

func euclidean(a, b []float64) float64 {
	var sum float64
	var k int
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		diff := a[i] - b[i]
		sum += diff * diff
		k++
	}
	if k == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum * float64(len(a)) / float64(k))
}

func correlation(a, b []float64) float64 {
	r := stats.Pearson(a, b)
	if math.IsNaN(r) {
		return math.NaN()
	}
	return 1 - r
}

// CompleteLinkage merges clusters by the largest pairwise distance between
// their members. Ties merge the pair with the lowest indices first and the
// lower-indexed cluster always becomes the left child.
func CompleteLinkage(d [][]float64) Tree {
	n := len(d)
	tree := Tree{N: n}
	if n < 2 {
		return tree
	}
	// active cluster ids mapped to their members' distance rows
	type node struct {
		id      int
		first   int
		members []int
	}
	active := make([]node, n)
	for i := range active {
		active[i] = node{id: i, first: i, members: []int{i}}
	}
	link := func(a, b node) float64 {
		var m float64
		for _, i := range a.members {
			for _, j := range b.members {
				if d[i][j] > m {
					m = d[i][j]
				}
			}
		}
		return m
	}
	for len(active) > 1 {
		bi, bj := 0, 1
		best := math.Inf(1)
		for i := 0; i < len(active); i++ {
			for j := i + 1; j < len(active); j++ {
				if h := link(active[i], active[j]); h < best {
					best, bi, bj = h, i, j
				}
			}
		}
		left, right := active[bi], active[bj]
		if right.first < left.first {
			left, right = right, left
		}
		tree.Merges = append(tree.Merges, Merge{Left: left.id, Right: right.id, Height: best})
		merged := node{
			id:      n + len(tree.Merges) - 1,
			first:   left.first,
			members: append(append([]int(nil), left.members...), right.members...),
		}
		active[bi] = merged
		active = append(active[:bj], active[bj+1:]...)
	}
	return tree
}
