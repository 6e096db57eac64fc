package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
)

const defaultForestTrees = 100

// RandomForest is a bagged ensemble of Gini decision trees. Predictions are
// majority votes; probabilities are vote fractions.
type RandomForest struct {
	Trees   []CTree `json:"trees"`
	Classes []int   `json:"classes"`
	Dim     int     `json:"dim"`

	cfg config
}

// CTree is one classification tree. Node 0 is the root.
type CTree struct {
	Nodes []CNode `json:"nodes"`
}

// CNode is a split node, or a leaf when Left is negative. Points with
// x[Feature] <= Threshold go left. Class is the position in
// RandomForest.Classes of the node's majority class.
type CNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int32   `json:"l"`
	Right     int32   `json:"r"`
	Class     int     `json:"c"`
}

// NewRandomForest returns an unfitted classifier. It honors WithTrees,
// WithMaxFeatures, WithMinSamplesSplit, WithMaxDepth, WithSeed and
// WithWorkers.
func NewRandomForest(opts ...Option) *RandomForest {
	return &RandomForest{cfg: newConfig(opts, defaultForestTrees)}
}

// Fit grows every tree on a bootstrap resample of (x, y).
func (f *RandomForest) Fit(ctx context.Context, x [][]float64, y []int) error {
	if len(x) == 0 {
		return ErrNoData
	}
	if len(x) != len(y) {
		return fmt.Errorf("got %d samples and %d labels", len(x), len(y))
	}
	if f.cfg.trees <= 0 {
		return errors.New("random forest needs at least one tree")
	}

	dim := len(x[0])
	for _, row := range x {
		if len(row) != dim {
			return dimensionError(len(row), dim)
		}
	}

	classes := slices.Clone(y)
	slices.Sort(classes)
	classes = slices.Compact(classes)

	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	yPos := make([]int, len(y))
	for i, c := range y {
		yPos[i] = pos[c]
	}

	mtry := f.cfg.maxFeatures
	if mtry <= 0 {
		mtry = max(1, int(math.Sqrt(float64(dim))))
	}
	mtry = min(mtry, dim)

	minSplit := max(f.cfg.minSamplesSplit, 2)

	trees := make([]CTree, f.cfg.trees)
	err := buildEach(ctx, f.cfg.trees, f.cfg.workers, func(i int) error {
		rng := treeRand(f.cfg.seed, i)
		sample := make([]int, len(x))
		for k := range sample {
			sample[k] = rng.IntN(len(x))
		}
		b := &ctreeBuilder{
			x:          x,
			y:          yPos,
			rng:        rng,
			dim:        dim,
			numClasses: len(classes),
			mtry:       mtry,
			minSplit:   minSplit,
			maxDepth:   f.cfg.maxDepth,
		}
		b.grow(sample, 0)
		trees[i] = CTree{Nodes: b.nodes}
		return nil
	})
	if err != nil {
		return fmt.Errorf("building decision trees: %w", err)
	}

	f.Trees = trees
	f.Classes = classes
	f.Dim = dim
	return nil
}

// Predict returns the position in Classes of the majority vote and the vote
// fraction of every class. Ties go to the lowest position.
func (f *RandomForest) Predict(v []float64) (int, []float64, error) {
	if len(f.Trees) == 0 {
		return 0, nil, errors.New("random forest not fitted")
	}
	if len(v) != f.Dim {
		return 0, nil, dimensionError(len(v), f.Dim)
	}

	probs := make([]float64, len(f.Classes))
	for i := range f.Trees {
		probs[f.Trees[i].classify(v)]++
	}
	best := 0
	for c := range probs {
		probs[c] /= float64(len(f.Trees))
		if probs[c] > probs[best] {
			best = c
		}
	}
	return best, probs, nil
}

// PredictLabel returns the majority class label of v.
func (f *RandomForest) PredictLabel(v []float64) (int, error) {
	p, _, err := f.Predict(v)
	if err != nil {
		return 0, err
	}
	return f.Classes[p], nil
}

// Validate checks the structure of a decoded forest.
func (f *RandomForest) Validate(dim int) error {
	if f.Dim != dim {
		return dimensionError(f.Dim, dim)
	}
	if len(f.Trees) == 0 {
		return errors.New("random forest has no trees")
	}
	if len(f.Classes) == 0 {
		return errors.New("random forest has no classes")
	}
	for i, t := range f.Trees {
		for k, n := range t.Nodes {
			if n.Class < 0 || n.Class >= len(f.Classes) {
				return fmt.Errorf("decision tree %d node %d has class position %d", i, k, n.Class)
			}
		}
		if err := validateNodes(len(t.Nodes), dim, func(k int) (int, int32, int32) {
			n := t.Nodes[k]
			return n.Feature, n.Left, n.Right
		}); err != nil {
			return fmt.Errorf("decision tree %d: %w", i, err)
		}
	}
	return nil
}

func (t *CTree) classify(v []float64) int {
	k := 0
	for {
		n := t.Nodes[k]
		if n.Left == leafNode {
			return n.Class
		}
		if v[n.Feature] <= n.Threshold {
			k = int(n.Left)
		} else {
			k = int(n.Right)
		}
	}
}

type ctreeBuilder struct {
	x          [][]float64
	y          []int
	rng        *rand.Rand
	dim        int
	numClasses int
	mtry       int
	minSplit   int
	maxDepth   int
	nodes      []CNode
}

type valueClass struct {
	val   float64
	class int
}

func (b *ctreeBuilder) grow(idx []int, depth int) int32 {
	counts := b.counts(idx)
	pos := int32(len(b.nodes))
	b.nodes = append(b.nodes, CNode{Left: leafNode, Right: leafNode, Class: argmax(counts)})

	if isPure(counts) || len(idx) < b.minSplit || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return pos
	}

	feat, thr, ok := b.bestSplit(idx, counts)
	if !ok {
		return pos
	}

	mid := 0
	for k := range idx {
		if b.x[idx[k]][feat] <= thr {
			idx[mid], idx[k] = idx[k], idx[mid]
			mid++
		}
	}

	left := b.grow(idx[:mid], depth+1)
	right := b.grow(idx[mid:], depth+1)

	n := &b.nodes[pos]
	n.Feature = feat
	n.Threshold = thr
	n.Left = left
	n.Right = right
	return pos
}

// bestSplit evaluates features in random order until mtry non-constant
// features have been seen and a valid split exists, and returns the split
// with the lowest weighted Gini impurity.
func (b *ctreeBuilder) bestSplit(idx []int, counts []int) (int, float64, bool) {
	sorted := make([]valueClass, len(idx))
	left := make([]int, b.numClasses)
	right := make([]int, b.numClasses)

	bestFeat, bestThr := 0, 0.0
	bestImpurity := math.Inf(1)
	found := false
	visited := 0

	for _, feat := range b.rng.Perm(b.dim) {
		if visited >= b.mtry && found {
			break
		}

		for k, i := range idx {
			sorted[k] = valueClass{val: b.x[i][feat], class: b.y[i]}
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].val < sorted[j].val })
		if sorted[0].val == sorted[len(sorted)-1].val {
			continue
		}
		visited++

		clear(left)
		copy(right, counts)
		nLeft, nRight := 0, len(sorted)

		for k := 0; k < len(sorted)-1; k++ {
			c := sorted[k].class
			left[c]++
			right[c]--
			nLeft++
			nRight--

			if sorted[k].val == sorted[k+1].val {
				continue
			}

			impurity := float64(nLeft)*gini(left, nLeft) + float64(nRight)*gini(right, nRight)
			if impurity < bestImpurity {
				thr := sorted[k].val + (sorted[k+1].val-sorted[k].val)/2
				if thr >= sorted[k+1].val {
					thr = sorted[k].val
				}
				bestImpurity = impurity
				bestFeat = feat
				bestThr = thr
				found = true
			}
		}
	}

	return bestFeat, bestThr, found
}

func (b *ctreeBuilder) counts(idx []int) []int {
	c := make([]int, b.numClasses)
	for _, i := range idx {
		c[b.y[i]]++
	}
	return c
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		sum += p * p
	}
	return 1 - sum
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func argmax(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}
