// Package expreplay implements experience replay for multi-agent
// vehicular network transitions
package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Transition is one replay record: the per-vehicle observations before
// and after the step, the edge observations before and after the step,
// the flat joint action, the reward channel vector, and the discount.
// Transitions are immutable once added to a buffer.
type Transition struct {
	VehicleObservations     *mat.Dense
	VehicleNextObservations *mat.Dense
	EdgeObservation         mat.Vector
	EdgeNextObservation     mat.Vector
	JointAction             []float64
	Reward                  []float64
	Discount                float64
}

// Batch is one sampled batch of transitions in flat row-major caches.
// Vehicle observation rows are ordered batch-major then vehicle-major,
// matching the learner's reshape convention.
type Batch struct {
	VehicleObservations     []float64
	VehicleNextObservations []float64
	EdgeObservations        []float64
	EdgeNextObservations    []float64
	JointActions            []float64
	Rewards                 []float64
	Discounts               []float64
	BatchSize               int
}

// Sampler is the learner-facing surface of a replay buffer: a
// pull-based iterator yielding one batch per call
type Sampler interface {
	Sample() (*Batch, error)
	BatchSize() int
}

// Buffer is a fixed-capacity FiFo experience replay buffer with
// uniform random sampling. It is a single-consumer resource: the
// learner pulls exactly one batch per step.
type Buffer struct {
	vehicleObsCache     []float64
	vehicleNextObsCache []float64
	edgeObsCache        []float64
	edgeNextObsCache    []float64
	jointActionCache    []float64
	rewardCache         []float64
	discountCache       []float64

	insertPos int
	isFull    bool

	rng *rand.Rand

	minCapacity int
	maxCapacity int
	batchSize   int

	vehicleNumber          int
	vehicleObservationSize int
	edgeObservationSize    int
	jointActionSize        int
	rewardSize             int
}

// New creates and returns a new replay Buffer. The shape parameters fix
// the size of every cached record; transitions that disagree with them
// are rejected at Add time.
func New(minCapacity, maxCapacity, batchSize, vehicleNumber,
	vehicleObservationSize, edgeObservationSize, jointActionSize,
	rewardSize int, seed uint64) (*Buffer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < minCapacity {
		return nil, fmt.Errorf("new: maxCapacity (%v) must be >= "+
			"minCapacity (%v)", maxCapacity, minCapacity)
	}
	if batchSize < 1 || batchSize > maxCapacity {
		return nil, fmt.Errorf("new: cannot have batch size (%v) > max "+
			"buffer capacity (%v)", batchSize, maxCapacity)
	}

	vehicleObsLen := vehicleNumber * vehicleObservationSize
	return &Buffer{
		vehicleObsCache:     make([]float64, maxCapacity*vehicleObsLen),
		vehicleNextObsCache: make([]float64, maxCapacity*vehicleObsLen),
		edgeObsCache:        make([]float64, maxCapacity*edgeObservationSize),
		edgeNextObsCache:    make([]float64, maxCapacity*edgeObservationSize),
		jointActionCache:    make([]float64, maxCapacity*jointActionSize),
		rewardCache:         make([]float64, maxCapacity*rewardSize),
		discountCache:       make([]float64, maxCapacity),

		rng: rand.New(rand.NewSource(seed)),

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		batchSize:   batchSize,

		vehicleNumber:          vehicleNumber,
		vehicleObservationSize: vehicleObservationSize,
		edgeObservationSize:    edgeObservationSize,
		jointActionSize:        jointActionSize,
		rewardSize:             rewardSize,
	}, nil
}

// BatchSize returns the number of transitions returned by Sample()
func (b *Buffer) BatchSize() int {
	return b.batchSize
}

// Capacity returns the current number of transitions in the buffer
func (b *Buffer) Capacity() int {
	if b.isFull {
		return b.maxCapacity
	}
	return b.insertPos
}

// MaxCapacity returns the maximum number of transitions the buffer
// holds
func (b *Buffer) MaxCapacity() int {
	return b.maxCapacity
}

// MinCapacity returns the number of transitions required before the
// buffer can be sampled
func (b *Buffer) MinCapacity() int {
	return b.minCapacity
}

// Add adds a transition to the buffer, overwriting the oldest
// transition when the buffer is full. Shape mismatches are errors.
func (b *Buffer) Add(t Transition) error {
	vRows, vCols := t.VehicleObservations.Dims()
	nRows, nCols := t.VehicleNextObservations.Dims()
	if vRows != b.vehicleNumber || vCols != b.vehicleObservationSize ||
		nRows != b.vehicleNumber || nCols != b.vehicleObservationSize {
		return fmt.Errorf("add: invalid vehicle observation shape "+
			"\n\twant(%vx%v)\n\thave(%vx%v, %vx%v)", b.vehicleNumber,
			b.vehicleObservationSize, vRows, vCols, nRows, nCols)
	}
	if t.EdgeObservation.Len() != b.edgeObservationSize ||
		t.EdgeNextObservation.Len() != b.edgeObservationSize {
		return fmt.Errorf("add: invalid edge observation size "+
			"\n\twant(%v)\n\thave(%v, %v)", b.edgeObservationSize,
			t.EdgeObservation.Len(), t.EdgeNextObservation.Len())
	}
	if len(t.JointAction) != b.jointActionSize {
		return fmt.Errorf("add: invalid joint action size "+
			"\n\twant(%v)\n\thave(%v)", b.jointActionSize,
			len(t.JointAction))
	}
	if len(t.Reward) != b.rewardSize {
		return fmt.Errorf("add: invalid reward size \n\twant(%v)"+
			"\n\thave(%v)", b.rewardSize, len(t.Reward))
	}

	index := b.insertPos
	vehicleObsLen := b.vehicleNumber * b.vehicleObservationSize
	for v := 0; v < b.vehicleNumber; v++ {
		offset := index*vehicleObsLen + v*b.vehicleObservationSize
		copy(b.vehicleObsCache[offset:offset+b.vehicleObservationSize],
			t.VehicleObservations.RawRowView(v))
		copy(b.vehicleNextObsCache[offset:offset+b.vehicleObservationSize],
			t.VehicleNextObservations.RawRowView(v))
	}

	edgeOffset := index * b.edgeObservationSize
	for i := 0; i < b.edgeObservationSize; i++ {
		b.edgeObsCache[edgeOffset+i] = t.EdgeObservation.AtVec(i)
		b.edgeNextObsCache[edgeOffset+i] = t.EdgeNextObservation.AtVec(i)
	}

	copy(b.jointActionCache[index*b.jointActionSize:(index+1)*
		b.jointActionSize], t.JointAction)
	copy(b.rewardCache[index*b.rewardSize:(index+1)*b.rewardSize], t.Reward)
	b.discountCache[index] = t.Discount

	b.insertPos++
	if b.insertPos >= b.maxCapacity {
		b.insertPos = 0
		b.isFull = true
	}
	return nil
}

// Sample draws one batch of transitions uniformly at random. It
// returns an ExpReplayError when the buffer is empty or below its
// minimum capacity.
func (b *Buffer) Sample() (*Batch, error) {
	if b.Capacity() == 0 {
		return nil, &ExpReplayError{Op: "sample", Err: errEmptyCache}
	}
	if b.Capacity() < b.minCapacity {
		return nil, &ExpReplayError{Op: "sample", Err: errInsufficientSamples}
	}

	vehicleObsLen := b.vehicleNumber * b.vehicleObservationSize
	batch := &Batch{
		VehicleObservations:     make([]float64, b.batchSize*vehicleObsLen),
		VehicleNextObservations: make([]float64, b.batchSize*vehicleObsLen),
		EdgeObservations:        make([]float64, b.batchSize*b.edgeObservationSize),
		EdgeNextObservations:    make([]float64, b.batchSize*b.edgeObservationSize),
		JointActions:            make([]float64, b.batchSize*b.jointActionSize),
		Rewards:                 make([]float64, b.batchSize*b.rewardSize),
		Discounts:               make([]float64, b.batchSize),
		BatchSize:               b.batchSize,
	}

	for i := 0; i < b.batchSize; i++ {
		index := b.rng.Intn(b.Capacity())

		copy(batch.VehicleObservations[i*vehicleObsLen:(i+1)*vehicleObsLen],
			b.vehicleObsCache[index*vehicleObsLen:(index+1)*vehicleObsLen])
		copy(batch.VehicleNextObservations[i*vehicleObsLen:(i+1)*vehicleObsLen],
			b.vehicleNextObsCache[index*vehicleObsLen:(index+1)*vehicleObsLen])

		copy(batch.EdgeObservations[i*b.edgeObservationSize:(i+1)*
			b.edgeObservationSize],
			b.edgeObsCache[index*b.edgeObservationSize:(index+1)*
				b.edgeObservationSize])
		copy(batch.EdgeNextObservations[i*b.edgeObservationSize:(i+1)*
			b.edgeObservationSize],
			b.edgeNextObsCache[index*b.edgeObservationSize:(index+1)*
				b.edgeObservationSize])

		copy(batch.JointActions[i*b.jointActionSize:(i+1)*b.jointActionSize],
			b.jointActionCache[index*b.jointActionSize:(index+1)*
				b.jointActionSize])
		copy(batch.Rewards[i*b.rewardSize:(i+1)*b.rewardSize],
			b.rewardCache[index*b.rewardSize:(index+1)*b.rewardSize])
		batch.Discounts[i] = b.discountCache[index]
	}

	return batch, nil
}
