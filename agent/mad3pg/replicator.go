package mad3pg

import (
	"fmt"
	"math"

	"github.com/neardws/aovrl/network"
	"gorgonia.org/tensor"
)

// Replicator reduces gradients across training replicas and
// broadcasts parameters back to them. The learner computes its local
// gradients, hands them to the Replicator for mean reduction, and
// applies the reduced gradients with its solver. How the replicas are
// scheduled is entirely the Replicator's concern.
type Replicator interface {
	// ReduceMeanGrads reduces the aligned per-replica gradient lists
	// to their elementwise mean. A nil slot marks a parameter with no
	// gradient; nil slots are excluded from the reduction and appear
	// as nil at the matching position of the result.
	ReduceMeanGrads(replicas [][]*tensor.Dense) ([]*tensor.Dense, error)

	// BroadcastAssign copies the weights of src into dst
	BroadcastAssign(src, dst network.NeuralNet) error
}

// SingleReplica is the Replicator for single-process training. Mean
// reduction over one replica is the identity.
type SingleReplica struct{}

// NewSingleReplica returns a new SingleReplica
func NewSingleReplica() *SingleReplica {
	return &SingleReplica{}
}

// ReduceMeanGrads computes the elementwise mean of the aligned
// per-replica gradients, preserving nil slots
func (s *SingleReplica) ReduceMeanGrads(
	replicas [][]*tensor.Dense) ([]*tensor.Dense, error) {
	return reduceMeanGrads(replicas)
}

// BroadcastAssign copies the weights of src into dst
func (s *SingleReplica) BroadcastAssign(src, dst network.NeuralNet) error {
	return dst.Set(src)
}

// reduceMeanGrads is the reference mean reduction shared by Replicator
// implementations. A slot that is nil in any replica is treated as
// having no gradient and is nil in the result.
func reduceMeanGrads(replicas [][]*tensor.Dense) ([]*tensor.Dense, error) {
	if len(replicas) == 0 {
		return nil, fmt.Errorf("reducemeangrads: no replicas to reduce")
	}

	numGrads := len(replicas[0])
	for i, replica := range replicas {
		if len(replica) != numGrads {
			return nil, fmt.Errorf("reducemeangrads: replica %v has "+
				"misaligned gradients \n\twant(%v)\n\thave(%v)", i, numGrads,
				len(replica))
		}
	}

	reduced := make([]*tensor.Dense, numGrads)
	for i := 0; i < numGrads; i++ {
		defined := make([]*tensor.Dense, 0, len(replicas))
		for _, replica := range replicas {
			if replica[i] != nil {
				defined = append(defined, replica[i])
			}
		}
		if len(defined) != len(replicas) {
			// No gradient flowed to this parameter on some replica
			reduced[i] = nil
			continue
		}

		sum := defined[0].Clone().(*tensor.Dense)
		for _, grad := range defined[1:] {
			var err error
			sum, err = sum.Add(grad)
			if err != nil {
				return nil, fmt.Errorf("reducemeangrads: could not sum "+
					"gradient %v: %v", i, err)
			}
		}

		mean, err := sum.MulScalar(1.0/float64(len(defined)), true)
		if err != nil {
			return nil, fmt.Errorf("reducemeangrads: could not average "+
				"gradient %v: %v", i, err)
		}
		reduced[i] = mean
	}

	return reduced, nil
}

// clipByGlobalNorm rescales the non-nil gradients in place so that
// their joint L2 norm does not exceed maxNorm
func clipByGlobalNorm(grads []*tensor.Dense, maxNorm float64) error {
	if maxNorm <= 0 {
		return fmt.Errorf("clipbyglobalnorm: max norm must be > 0")
	}

	var sumSquares float64
	for _, grad := range grads {
		if grad == nil {
			continue
		}
		data, ok := grad.Data().([]float64)
		if !ok {
			return fmt.Errorf("clipbyglobalnorm: gradients must be float64")
		}
		for _, v := range data {
			sumSquares += v * v
		}
	}

	norm := math.Sqrt(sumSquares)
	if norm <= maxNorm {
		return nil
	}

	scale := maxNorm / norm
	for _, grad := range grads {
		if grad == nil {
			continue
		}
		data := grad.Data().([]float64)
		for i := range data {
			data[i] *= scale
		}
	}
	return nil
}

// gradientsOf collects the gradients of the learnable weights of nets,
// aligned with the concatenation of their Learnables(). A learnable
// with no gradient contributes a nil slot.
func gradientsOf(nets ...network.NeuralNet) []*tensor.Dense {
	var grads []*tensor.Dense
	for _, net := range nets {
		for _, learnable := range net.Learnables() {
			gradVal, err := learnable.Grad()
			if err != nil {
				grads = append(grads, nil)
				continue
			}
			grad, ok := gradVal.(*tensor.Dense)
			if !ok {
				grads = append(grads, nil)
				continue
			}
			grads = append(grads, grad)
		}
	}
	return grads
}
