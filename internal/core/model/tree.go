package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrInvalidTree = errors.New("invalid tree ensemble")

// TreeNode is one node of a boosted regression tree. Internal nodes send a
// row to Yes when x[Split] < SplitCondition, to No otherwise and to Missing
// when the value is NaN. Leaf nodes carry a margin contribution.
type TreeNode struct {
	NodeID         int      `json:"nodeid"`
	Split          int      `json:"split,omitempty"`
	SplitCondition float64  `json:"split_condition,omitempty"`
	Yes            int      `json:"yes,omitempty"`
	No             int      `json:"no,omitempty"`
	Missing        int      `json:"missing,omitempty"`
	Leaf           *float64 `json:"leaf,omitempty"`
}

func (n TreeNode) IsLeaf() bool { return n.Leaf != nil }

// Tree stores its nodes so that Nodes[i].NodeID == i; node 0 is the root.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeEnsemble is a gradient boosted binary classifier with a logistic
// objective, laid out like an XGBoost JSON dump.
type TreeEnsemble struct {
	Features  int     `json:"num_features"`
	BaseScore float64 `json:"base_score"`
	Threshold float64 `json:"threshold,omitempty"`
	Trees     []Tree  `json:"trees"`
}

func NewTreeEnsemble(features int, baseScore float64, trees []Tree) (*TreeEnsemble, error) {
	t := &TreeEnsemble{Features: features, BaseScore: baseScore, Trees: trees}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TreeEnsemble) Kind() string     { return KindTreeEnsemble }
func (t *TreeEnsemble) NumFeatures() int { return t.Features }

// Validate checks node layout, child references and split indices. Reachable
// paths are bounded by the node count, so a valid tree cannot loop.
func (t *TreeEnsemble) Validate() error {
	if t.Features <= 0 {
		return fmt.Errorf("%w: num_features must be positive", ErrInvalidTree)
	}
	if t.BaseScore <= 0 || t.BaseScore >= 1 {
		return fmt.Errorf("%w: base_score must be in (0, 1)", ErrInvalidTree)
	}
	if len(t.Trees) == 0 {
		return fmt.Errorf("%w: no trees", ErrInvalidTree)
	}
	for ti, tree := range t.Trees {
		n := len(tree.Nodes)
		if n == 0 {
			return fmt.Errorf("%w: tree %d has no nodes", ErrInvalidTree, ti)
		}
		for i, node := range tree.Nodes {
			if node.NodeID != i {
				return fmt.Errorf("%w: tree %d node %d has id %d", ErrInvalidTree, ti, i, node.NodeID)
			}
			if node.IsLeaf() {
				continue
			}
			if node.Split < 0 || node.Split >= t.Features {
				return fmt.Errorf("%w: tree %d node %d splits on feature %d", ErrInvalidTree, ti, i, node.Split)
			}
			for _, child := range []int{node.Yes, node.No, node.Missing} {
				if child <= i || child >= n {
					return fmt.Errorf("%w: tree %d node %d has child %d out of range", ErrInvalidTree, ti, i, child)
				}
			}
		}
	}
	return nil
}

func (t *TreeEnsemble) Predict(x mat.Matrix) ([]int, error) {
	rows, err := checkWidth(x, t.Features)
	if err != nil {
		return nil, err
	}

	threshold := thresholdOrDefault(t.Threshold)
	base := logit(t.BaseScore)
	row := make([]float64, t.Features)
	labels := make([]int, rows)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, x)
		margin := base
		for ti := range t.Trees {
			margin += t.Trees[ti].score(row)
		}
		labels[i] = label(sigmoid(margin), threshold)
	}
	return labels, nil
}

// Children always have larger ids than their parent (checked by Validate), so
// the walk terminates.
func (tr *Tree) score(row []float64) float64 {
	i := 0
	for {
		node := &tr.Nodes[i]
		if node.IsLeaf() {
			return *node.Leaf
		}
		v := row[node.Split]
		switch {
		case math.IsNaN(v):
			i = node.Missing
		case v < node.SplitCondition:
			i = node.Yes
		default:
			i = node.No
		}
	}
}
