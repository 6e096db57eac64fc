package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	defaultIForestTrees = 100
	eulerGamma          = 0.5772156649015329
)

// IsolationForest scores how quickly random partitioning isolates a point.
type IsolationForest struct {
	Trees         []ITree `json:"trees"`
	SampleSize    int     `json:"sample_size"`
	Dim           int     `json:"dim"`
	Contamination float64 `json:"contamination"`
	Offset        float64 `json:"offset"`

	cfg config
}

// ITree is one isolation tree. Node 0 is the root.
type ITree struct {
	Nodes []INode `json:"nodes"`
}

// INode is a split node, or a leaf when Left is negative. Size is the number
// of sampled points that reached the node.
type INode struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Left    int32   `json:"l"`
	Right   int32   `json:"r"`
	Size    int     `json:"n"`
}

// NewIsolationForest returns an unfitted forest. It honors WithTrees,
// WithSampleSize, WithContamination, WithSeed and WithWorkers.
func NewIsolationForest(opts ...Option) *IsolationForest {
	cfg := newConfig(opts, defaultIForestTrees)
	return &IsolationForest{
		Contamination: cfg.contamination,
		cfg:           cfg,
	}
}

// Fit builds the trees from x and calibrates the outlier threshold so that
// about Contamination of x is flagged.
func (f *IsolationForest) Fit(ctx context.Context, x [][]float64) error {
	if len(x) < 2 {
		return fmt.Errorf("%w: isolation forest needs at least 2 points, got %d", ErrNoData, len(x))
	}
	if f.cfg.trees <= 0 {
		return errors.New("isolation forest needs at least one tree")
	}
	if f.Contamination <= 0 || f.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %v", f.Contamination)
	}

	dim := len(x[0])
	for _, row := range x {
		if len(row) != dim {
			return dimensionError(len(row), dim)
		}
	}

	psi := f.cfg.sampleSize
	if psi <= 0 || psi > len(x) {
		psi = len(x)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))

	trees := make([]ITree, f.cfg.trees)
	err := buildEach(ctx, f.cfg.trees, f.cfg.workers, func(i int) error {
		rng := treeRand(f.cfg.seed, i)
		sample := rng.Perm(len(x))[:psi]
		b := &itreeBuilder{x: x, rng: rng, dim: dim, maxDepth: maxDepth}
		b.grow(sample, 0)
		trees[i] = ITree{Nodes: b.nodes}
		return nil
	})
	if err != nil {
		return fmt.Errorf("building isolation trees: %w", err)
	}

	f.Trees = trees
	f.SampleSize = psi
	f.Dim = dim
	f.Offset = 0

	scores := make([]float64, len(x))
	for i, row := range x {
		scores[i] = -f.score(row)
	}
	sort.Float64s(scores)
	f.Offset = stat.Quantile(f.Contamination, stat.Empirical, scores, nil)

	return nil
}

// Score returns the isolation score in (0, 1]; values close to 1 are
// isolated quickly.
func (f *IsolationForest) Score(v []float64) (float64, error) {
	if err := f.check(v); err != nil {
		return 0, err
	}
	return f.score(v), nil
}

// DecisionScore returns the score shifted by the calibrated threshold.
// Negative values are outliers; more negative is more isolated.
func (f *IsolationForest) DecisionScore(v []float64) (float64, error) {
	if err := f.check(v); err != nil {
		return 0, err
	}
	return -f.score(v) - f.Offset, nil
}

// IsOutlier reports whether v falls below the calibrated threshold.
func (f *IsolationForest) IsOutlier(v []float64) (bool, error) {
	d, err := f.DecisionScore(v)
	if err != nil {
		return false, err
	}
	return d < 0, nil
}

// Validate checks the structure of a decoded forest.
func (f *IsolationForest) Validate(dim int) error {
	if f.Dim != dim {
		return dimensionError(f.Dim, dim)
	}
	if len(f.Trees) == 0 {
		return errors.New("isolation forest has no trees")
	}
	if f.SampleSize < 2 {
		return fmt.Errorf("isolation forest sample size too small: %d", f.SampleSize)
	}
	for i, t := range f.Trees {
		if err := validateNodes(len(t.Nodes), dim, func(k int) (int, int32, int32) {
			n := t.Nodes[k]
			return n.Feature, n.Left, n.Right
		}); err != nil {
			return fmt.Errorf("isolation tree %d: %w", i, err)
		}
	}
	return nil
}

func (f *IsolationForest) check(v []float64) error {
	if len(f.Trees) == 0 {
		return errors.New("isolation forest not fitted")
	}
	if len(v) != f.Dim {
		return dimensionError(len(v), f.Dim)
	}
	return nil
}

func (f *IsolationForest) score(v []float64) float64 {
	var total float64
	for i := range f.Trees {
		total += f.Trees[i].pathLength(v)
	}
	mean := total / float64(len(f.Trees))
	return math.Pow(2, -mean/averagePathLength(f.SampleSize))
}

func (t *ITree) pathLength(v []float64) float64 {
	var depth float64
	k := 0
	for {
		n := t.Nodes[k]
		if n.Left == leafNode {
			return depth + averagePathLength(n.Size)
		}
		if v[n.Feature] < n.Split {
			k = int(n.Left)
		} else {
			k = int(n.Right)
		}
		depth++
	}
}

// averagePathLength is the expected path length of an unsuccessful search
// in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	m := float64(n)
	return 2*(math.Log(m-1)+eulerGamma) - 2*(m-1)/m
}

type itreeBuilder struct {
	x        [][]float64
	rng      *rand.Rand
	dim      int
	maxDepth int
	nodes    []INode
}

func (b *itreeBuilder) grow(idx []int, depth int) int32 {
	pos := int32(len(b.nodes))
	b.nodes = append(b.nodes, INode{Left: leafNode, Right: leafNode, Size: len(idx)})
	if depth >= b.maxDepth || len(idx) <= 1 {
		return pos
	}

	feat, lo, hi, ok := b.pickFeature(idx)
	if !ok {
		return pos
	}
	split := lo + b.rng.Float64()*(hi-lo)

	mid := 0
	for k := range idx {
		if b.x[idx[k]][feat] < split {
			idx[mid], idx[k] = idx[k], idx[mid]
			mid++
		}
	}

	left := b.grow(idx[:mid], depth+1)
	right := b.grow(idx[mid:], depth+1)

	n := &b.nodes[pos]
	n.Feature = feat
	n.Split = split
	n.Left = left
	n.Right = right
	return pos
}

// pickFeature draws features in random order until one varies within idx.
func (b *itreeBuilder) pickFeature(idx []int) (int, float64, float64, bool) {
	for _, feat := range b.rng.Perm(b.dim) {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			val := b.x[i][feat]
			lo = math.Min(lo, val)
			hi = math.Max(hi, val)
		}
		if hi > lo {
			return feat, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

// validateNodes checks child indices and split features of a flat tree.
func validateNodes(n, dim int, node func(k int) (feature int, left, right int32)) error {
	if n == 0 {
		return errors.New("empty tree")
	}
	for k := 0; k < n; k++ {
		feat, left, right := node(k)
		if left == leafNode {
			continue
		}
		if feat < 0 || feat >= dim {
			return fmt.Errorf("node %d splits on feature %d outside [0,%d)", k, feat, dim)
		}
		if int(left) <= k || int(left) >= n || int(right) <= k || int(right) >= n {
			return fmt.Errorf("node %d has invalid children %d/%d", k, left, right)
		}
	}
	return nil
}
