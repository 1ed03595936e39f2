package acquisition

import (
	"errors"

	"github.com/auto-tuner-laser/tuning-core/internal/paramspace"
	"github.com/auto-tuner-laser/tuning-core/pkg/models"
	"github.com/auto-tuner-laser/tuning-core/pkg/utils"
)

// ErrNoCandidates indicates an empty candidate pool, which only happens
// when the parameter space has no dimensions
var ErrNoCandidates = errors.New("no candidate available: parameter space has no dimensions")

// Predictor is the model-side seam the proposer scores candidates with
type Predictor interface {
	Predict(x []float64) (mean, stddev float64)
}

// Proposer selects the next trial by scoring a pool of candidate vectors
// with an acquisition function and returning the argmax. The maximization
// is approximate; the acquisition is cheap while the real trial is not,
// so a dense random pool is adequate.
type Proposer struct {
	space    *paramspace.Space
	acquire  Func
	poolSize int
	xi       float64
	rng      *utils.RandSource
}

// NewProposer creates a proposer over the given space
func NewProposer(space *paramspace.Space, acquire Func, poolSize int, xi float64, rng *utils.RandSource) *Proposer {
	if poolSize <= 0 {
		poolSize = 50
	}
	return &Proposer{
		space:    space,
		acquire:  acquire,
		poolSize: poolSize,
		xi:       xi,
		rng:      rng,
	}
}

// Propose returns the candidate with the maximal acquisition score.
// Ties keep the earliest candidate in the pool. On the first iteration the
// pool is seeded with a space-filling set so the initial trials spread out
// even when the model has no informative structure yet.
func (p *Proposer) Propose(model Predictor, best float64, firstIteration bool) (models.ParameterSet, error) {
	pool := p.pool(firstIteration)
	if len(pool) == 0 {
		return nil, ErrNoCandidates
	}

	params := Params{Best: best, Xi: p.xi}
	bestIdx := 0
	bestScore := 0.0
	for i, x := range pool {
		mean, stddev := model.Predict(x)
		score := p.acquire(mean, stddev, params)
		if i == 0 || score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	return p.space.Decode(pool[bestIdx])
}

// pool draws the candidate vectors: a space-filling set first when
// requested, then uniform random fill
func (p *Proposer) pool(firstIteration bool) [][]float64 {
	dims := p.space.Dims()
	if dims == 0 {
		return nil
	}

	pool := make([][]float64, 0, p.poolSize)
	if firstIteration {
		pool = append(pool, p.latinHypercube(dims)...)
	}
	for len(pool) < p.poolSize {
		pool = append(pool, p.rng.UnitVector(dims))
	}
	return pool
}

// latinHypercube returns a stratified sample: each dimension is split into
// equal strata and each stratum is hit exactly once, in shuffled order.
// The center point leads the set so a fully uninformed model proposes it.
func (p *Proposer) latinHypercube(dims int) [][]float64 {
	strata := p.poolSize / 5
	if strata < 2 {
		strata = 2
	}

	center := make([]float64, dims)
	for d := range center {
		center[d] = 0.5
	}

	perms := make([][]int, dims)
	for d := range perms {
		perms[d] = p.rng.Perm(strata)
	}

	points := make([][]float64, 0, strata+1)
	points = append(points, center)
	for i := 0; i < strata; i++ {
		x := make([]float64, dims)
		for d := 0; d < dims; d++ {
			x[d] = (float64(perms[d][i]) + p.rng.Float64()) / float64(strata)
		}
		points = append(points, x)
	}
	return points
}
