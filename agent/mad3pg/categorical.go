package mad3pg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// support returns the atom locations of a categorical value
// distribution with the given bounds
func support(vMin, vMax float64, atoms int) []float64 {
	z := make([]float64, atoms)
	floats.Span(z, vMin, vMax)
	return z
}

// projectDistribution computes the categorical Bellman targets for a
// batch of transitions. For each batch row, the target support
// r + discount*z is projected back onto the fixed support z and the
// target probabilities are redistributed onto the neighbouring atoms.
//
// The probs argument holds the target critic's predicted
// probabilities in a flat row-major batch×atoms layout; the returned
// target probabilities use the same layout. Rewards and discounts
// hold one value per batch row.
func projectDistribution(z []float64, probs, rewards,
	discounts []float64) ([]float64, error) {
	atoms := len(z)
	batchSize := len(rewards)
	if len(probs) != batchSize*atoms {
		return nil, fmt.Errorf("projectdistribution: invalid number of "+
			"probabilities \n\twant(%v)\n\thave(%v)", batchSize*atoms,
			len(probs))
	}
	if len(discounts) != batchSize {
		return nil, fmt.Errorf("projectdistribution: invalid number of "+
			"discounts \n\twant(%v)\n\thave(%v)", batchSize, len(discounts))
	}

	vMin := z[0]
	vMax := z[atoms-1]
	dz := (vMax - vMin) / float64(atoms-1)

	projected := make([]float64, batchSize*atoms)
	for b := 0; b < batchSize; b++ {
		for j := 0; j < atoms; j++ {
			p := probs[b*atoms+j]
			if p == 0 {
				continue
			}

			// Apply the Bellman backup to atom j and clamp it onto
			// the support
			tz := rewards[b] + discounts[b]*z[j]
			if tz < vMin {
				tz = vMin
			} else if tz > vMax {
				tz = vMax
			}

			// Distribute the probability mass between the two
			// neighbouring atoms
			pos := (tz - vMin) / dz
			lower := math.Floor(pos)
			upper := math.Ceil(pos)
			l := int(lower)
			u := int(upper)

			if l == u {
				projected[b*atoms+l] += p
			} else {
				projected[b*atoms+l] += p * (upper - pos)
				projected[b*atoms+u] += p * (pos - lower)
			}
		}
	}

	return projected, nil
}

// meanValues returns the expected value of each row of a flat
// batch×atoms probability matrix over the support z
func meanValues(z, probs []float64) []float64 {
	atoms := len(z)
	batchSize := len(probs) / atoms

	means := make([]float64, batchSize)
	for b := 0; b < batchSize; b++ {
		means[b] = floats.Dot(z, probs[b*atoms:(b+1)*atoms])
	}
	return means
}
