package finance

import (
	"math"

	"github.com/wyfcoding/pricer/xerrors"
)

// LatticeSpec 格点规格：标的初始价格与步数。
type LatticeSpec struct {
	InitialPrice float64
	Steps        int
}

// Validate 检查 S0 > 0 且步数非负。
func (s LatticeSpec) Validate() error {
	if !isFinite(s.InitialPrice) || s.InitialPrice <= 0 {
		return xerrors.InvalidParameters("initial price %v must be a positive number", s.InitialPrice)
	}
	if s.Steps < 0 {
		return xerrors.InvalidParameters("steps %d must be non-negative", s.Steps)
	}
	return nil
}

// Lattice 重组二叉树。节点价格按需计算，不做整棵树的预分配。
type Lattice struct {
	model RateModel
	spec  LatticeSpec
}

// NewLattice 创建格点。
func NewLattice(model RateModel, spec LatticeSpec) (*Lattice, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Lattice{model: model, spec: spec}, nil
}

// Model 返回格点使用的离散参数。
func (l *Lattice) Model() RateModel { return l.model }

// Spec 返回格点规格。
func (l *Lattice) Spec() LatticeSpec { return l.spec }

// NodePrice 第 n 步、上涨 i 次节点的标的价格 S0 * (1+U)^i * (1+D)^(n-i)。
func (l *Lattice) NodePrice(n, i int) (float64, error) {
	if n < 0 || n > l.spec.Steps || i < 0 || i > n {
		return 0, xerrors.InvalidParameters("node (%d, %d) outside lattice with %d steps", n, i, l.spec.Steps)
	}
	return l.node(n, i), nil
}

// Layer 返回第 n 步全部 n+1 个节点价格，每次调用都新分配切片。
func (l *Lattice) Layer(n int) ([]float64, error) {
	if n < 0 || n > l.spec.Steps {
		return nil, xerrors.InvalidParameters("layer %d outside lattice with %d steps", n, l.spec.Steps)
	}
	layer := make([]float64, n+1)
	for i := range layer {
		layer[i] = l.node(n, i)
	}
	return layer, nil
}

func (l *Lattice) node(n, i int) float64 {
	return l.spec.InitialPrice * math.Pow(1+l.model.up, float64(i)) * math.Pow(1+l.model.down, float64(n-i))
}

// triIndex 三角形扁平缓冲区中 (n, i) 的偏移，第 n 行恰好 n+1 个元素。
func triIndex(n, i int) int {
	return n*(n+1)/2 + i
}

// triSize steps 步格点的节点总数。
func triSize(steps int) int {
	return (steps + 1) * (steps + 2) / 2
}
