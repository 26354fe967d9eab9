// Package forest implements a random forest of CART classification trees
// for binary outcomes. Leaves hold the positive-class frequency, so the
// forest output is the mean leaf frequency and always lies in [0,1].
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
)

var (
	ErrEmptyTrainingSet = errors.New("forest: empty training set")
	ErrFeatureWidth     = errors.New("forest: feature width mismatch")
	ErrLabelCount       = errors.New("forest: label count does not match sample count")
)

type Options struct {
	NumTrees        int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxFeatures is the number of features tried per split; 0 means sqrt(n).
	MaxFeatures int
	Seed        int64
	Workers     int
}

func (o Options) withDefaults(numFeatures int) Options {
	if o.NumTrees <= 0 {
		o.NumTrees = 100
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 10
	}
	if o.MinSamplesSplit < 2 {
		o.MinSamplesSplit = 2
	}
	if o.MinSamplesLeaf < 1 {
		o.MinSamplesLeaf = 1
	}
	if o.MaxFeatures <= 0 || o.MaxFeatures > numFeatures {
		o.MaxFeatures = int(math.Max(1, math.Round(math.Sqrt(float64(numFeatures)))))
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) predict(sample []float64) float64 {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.Leaf {
			return node.Value
		}
		if sample[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

type Forest struct {
	NumFeatures int       `json:"num_features"`
	Trees       []Tree    `json:"trees"`
	Importances []float64 `json:"importances"`
}

// Train fits a forest. Training is reproducible for a fixed Seed: every tree
// draws from its own generator seeded up front, so worker scheduling does
// not affect the result.
func Train(samples [][]float64, labels []float64, opts Options) (*Forest, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(samples) != len(labels) {
		return nil, ErrLabelCount
	}
	numFeatures := len(samples[0])
	if numFeatures == 0 {
		return nil, fmt.Errorf("%w: zero features", ErrFeatureWidth)
	}
	for i, sample := range samples {
		if len(sample) != numFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrFeatureWidth, i, len(sample), numFeatures)
		}
	}
	opts = opts.withDefaults(numFeatures)

	master := rand.New(rand.NewSource(opts.Seed))
	seeds := make([]int64, opts.NumTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]Tree, opts.NumTrees)
	importances := make([][]float64, opts.NumTrees)
	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup
	for i := range trees {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			b := &builder{
				samples:    samples,
				labels:     labels,
				opts:       opts,
				rng:        rand.New(rand.NewSource(seeds[i])),
				importance: make([]float64, numFeatures),
			}
			b.grow(b.bootstrap(), 0)
			trees[i] = Tree{Nodes: b.nodes}
			importances[i] = b.importance
		}(i)
	}
	wg.Wait()

	total := make([]float64, numFeatures)
	var sum float64
	for _, imp := range importances {
		for j, v := range imp {
			total[j] += v
			sum += v
		}
	}
	if sum > 0 {
		for j := range total {
			total[j] /= sum
		}
	}

	return &Forest{NumFeatures: numFeatures, Trees: trees, Importances: total}, nil
}

// Predict returns the mean positive-class frequency across trees.
func (f *Forest) Predict(sample []float64) (float64, error) {
	if len(sample) != f.NumFeatures {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureWidth, len(sample), f.NumFeatures)
	}
	if len(f.Trees) == 0 {
		return 0, ErrEmptyTrainingSet
	}
	var sum float64
	for _, tree := range f.Trees {
		sum += tree.predict(sample)
	}
	return sum / float64(len(f.Trees)), nil
}

type builder struct {
	samples    [][]float64
	labels     []float64
	opts       Options
	rng        *rand.Rand
	nodes      []Node
	importance []float64
}

func (b *builder) bootstrap() []int {
	n := len(b.samples)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = b.rng.Intn(n)
	}
	return idx
}

func (b *builder) positives(idx []int) float64 {
	var pos float64
	for _, i := range idx {
		if b.labels[i] >= 0.5 {
			pos++
		}
	}
	return pos
}

func (b *builder) grow(idx []int, depth int) int {
	n := float64(len(idx))
	pos := b.positives(idx)
	nodeIdx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Leaf: true, Value: pos / n})

	if depth >= b.opts.MaxDepth || len(idx) < b.opts.MinSamplesSplit || pos == 0 || pos == n {
		return nodeIdx
	}

	s, ok := b.bestSplit(idx, gini(pos, n))
	if !ok {
		return nodeIdx
	}

	var left, right []int
	for _, i := range idx {
		if b.samples[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < b.opts.MinSamplesLeaf || len(right) < b.opts.MinSamplesLeaf {
		return nodeIdx
	}

	b.importance[s.feature] += s.gain
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[nodeIdx] = Node{Feature: s.feature, Threshold: s.threshold, Left: l, Right: r, Value: pos / n}
	return nodeIdx
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

type point struct {
	value float64
	label float64
}

func (b *builder) bestSplit(idx []int, parentGini float64) (split, bool) {
	numFeatures := len(b.samples[0])
	candidates := b.rng.Perm(numFeatures)[:b.opts.MaxFeatures]
	n := float64(len(idx))
	totalPos := b.positives(idx)

	best := split{}
	bestImpurity := parentGini
	found := false
	points := make([]point, len(idx))

	for _, feature := range candidates {
		for k, i := range idx {
			points[k] = point{value: b.samples[i][feature], label: b.labels[i]}
		}
		sort.Slice(points, func(a, c int) bool { return points[a].value < points[c].value })

		var leftN, leftPos float64
		for k := 0; k < len(points)-1; k++ {
			leftN++
			if points[k].label >= 0.5 {
				leftPos++
			}
			if points[k].value == points[k+1].value {
				continue
			}
			rightN := n - leftN
			if int(leftN) < b.opts.MinSamplesLeaf || int(rightN) < b.opts.MinSamplesLeaf {
				continue
			}
			impurity := (leftN*gini(leftPos, leftN) + rightN*gini(totalPos-leftPos, rightN)) / n
			if impurity < bestImpurity-1e-12 {
				bestImpurity = impurity
				best = split{
					feature:   feature,
					threshold: (points[k].value + points[k+1].value) / 2,
					gain:      n * (parentGini - impurity),
				}
				found = true
			}
		}
	}
	return best, found
}

func gini(pos, n float64) float64 {
	if n == 0 {
		return 0
	}
	p := pos / n
	return 2 * p * (1 - p)
}
