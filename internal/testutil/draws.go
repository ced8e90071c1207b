package testutil

import "github.com/ouc-computer-network/tcp-lab/internal/prng"

// Draws returns the first n float64 draws of the stream seeded with
// seed. Tests use it to pre-compute what the channel's fate tests will
// see without duplicating draw-order knowledge inline.
func Draws(seed uint64, n int) []float64 {
	s := prng.New(seed)
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Float64()
	}
	return out
}
