package scada

import (
	"hash/fnv"
	"math/rand/v2"
	"time"
)

// Noise is the sensor-noise specification layered on top of observed
// readings, after all fault/attack transforms. It models measurement-
// channel imprecision, not sensor misbehaviour.
//
// Draws are seeded and deterministic by default: repeated reads of the
// same frozen dataset return identical values. Setting Fresh re-rolls
// the noise on every read, reproducing per-query measurement jitter.
type Noise struct {
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Seed   uint64  `json:"seed" yaml:"seed"`
	Fresh  bool    `json:"fresh,omitempty" yaml:"fresh"`
}

// Equal compares two noise specs field-wise; two nils are equal.
func (n *Noise) Equal(o *Noise) bool {
	if n == nil || o == nil {
		return n == o
	}
	return *n == *o
}

// rngFor returns the generator used for one location's series. The seed
// is folded with the sensor identity so each series draws an independent
// stream regardless of which subset of locations a caller requests.
func (n *Noise) rngFor(kind Kind, location string) *rand.Rand {
	seed := n.Seed
	if n.Fresh {
		seed = uint64(time.Now().UnixNano())
	}
	h := fnv.New64a()
	h.Write([]byte(kind))
	h.Write([]byte{'/'})
	h.Write([]byte(location))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

// perturb adds one draw per value, in time order.
func (n *Noise) perturb(kind Kind, location string, series []float64) {
	if n == nil || n.StdDev == 0 {
		return
	}
	rng := n.rngFor(kind, location)
	for i := range series {
		series[i] += rng.NormFloat64() * n.StdDev
	}
}
