// pkg/boost/tree.go
package boost

import (
	"golang.org/x/sync/errgroup"
)

// minSplitGain is the smallest loss reduction accepted for a split
const minSplitGain = 1e-6

// parallelSplitWork is the rows x features size above which split search
// runs one goroutine per feature
const parallelSplitWork = 1 << 15

// Node is one node of a regression tree, stored in a flat slice. Inner
// nodes send x[Feature] <= Threshold to Left, everything else to Right.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value"`
	Gain      float64 `json:"gain,omitempty"`
	Cover     float64 `json:"cover"`
}

// Tree is a regression tree over the logit scale. Node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for !t.Nodes[i].Leaf {
		n := &t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

type split struct {
	ok      bool
	feature int
	bin     int
	gain    float64
}

// grower builds one tree from first and second order gradients
type grower struct {
	params   Params
	bins     *binner
	grad     []float64
	hess     []float64
	features []int // sampled features, ascending
}

func (g *grower) grow(rows []int) Tree {
	t := Tree{}
	g.build(&t, rows, 0)
	return t
}

func (g *grower) build(t *Tree, rows []int, depth int) int {
	var sumG, sumH float64
	for _, i := range rows {
		sumG += g.grad[i]
		sumH += g.hess[i]
	}

	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Cover: sumH})

	best := split{}
	if depth < g.params.MaxDepth && len(rows) > 1 && sumH >= 2*g.params.MinChildWeight {
		best = g.findSplit(rows, sumG, sumH)
	}
	if !best.ok {
		t.Nodes[idx].Leaf = true
		t.Nodes[idx].Value = -sumG / (sumH + g.params.Lambda) * g.params.LearningRate
		return idx
	}

	codes := g.bins.codes[best.feature]
	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, i := range rows {
		if int(codes[i]) <= best.bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	t.Nodes[idx].Feature = best.feature
	t.Nodes[idx].Threshold = g.bins.cuts[best.feature][best.bin]
	t.Nodes[idx].Gain = best.gain

	l := g.build(t, left, depth+1)
	r := g.build(t, right, depth+1)
	t.Nodes[idx].Left = l
	t.Nodes[idx].Right = r
	return idx
}

// findSplit returns the best split over the sampled features. Ties go to the
// lower feature index, then the lower bin.
func (g *grower) findSplit(rows []int, sumG, sumH float64) split {
	candidates := make([]split, len(g.features))

	if len(rows)*len(g.features) < parallelSplitWork {
		for k, f := range g.features {
			candidates[k] = g.bestForFeature(f, rows, sumG, sumH)
		}
	} else {
		var eg errgroup.Group
		for k, f := range g.features {
			k, f := k, f
			eg.Go(func() error {
				candidates[k] = g.bestForFeature(f, rows, sumG, sumH)
				return nil
			})
		}
		eg.Wait()
	}

	best := split{}
	for _, c := range candidates {
		if c.ok && (!best.ok || c.gain > best.gain) {
			best = c
		}
	}
	return best
}

func (g *grower) bestForFeature(f int, rows []int, sumG, sumH float64) split {
	cuts := g.bins.cuts[f]
	if len(cuts) == 0 {
		return split{}
	}

	histG := make([]float64, len(cuts)+1)
	histH := make([]float64, len(cuts)+1)
	codes := g.bins.codes[f]
	for _, i := range rows {
		histG[codes[i]] += g.grad[i]
		histH[codes[i]] += g.hess[i]
	}

	lambda := g.params.Lambda
	minChild := g.params.MinChildWeight
	parent := sumG * sumG / (sumH + lambda)

	best := split{}
	var gl, hl float64
	for b := range cuts {
		gl += histG[b]
		hl += histH[b]
		gr, hr := sumG-gl, sumH-hl
		if hl < minChild || hr < minChild || hl == 0 || hr == 0 {
			continue
		}
		gain := 0.5 * (gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent)
		if gain > minSplitGain && gain > best.gain {
			best = split{ok: true, feature: f, bin: b, gain: gain}
		}
	}
	return best
}
