package mad3pg

import (
	"fmt"
	"time"

	"github.com/neardws/aovrl/expreplay"
	"github.com/neardws/aovrl/tracking"
)

// Dimensions fixes the observation and action sizes the learner's
// networks are built for
type Dimensions struct {
	VehicleNumber          int
	VehicleObservationSize int
	EdgeObservationSize    int
	VehicleActionSize      int
	EdgeActionSize         int
}

// JointActionSize returns the length of the flat joint action vector
func (d Dimensions) JointActionSize() int {
	return d.VehicleNumber*d.VehicleActionSize + d.EdgeActionSize
}

// Validate returns an error describing the first invalid dimension
// found
func (d Dimensions) Validate() error {
	if d.VehicleNumber < 1 {
		return fmt.Errorf("dimensions: vehicle number must be > 0, got %v",
			d.VehicleNumber)
	}
	if d.VehicleObservationSize < 1 || d.EdgeObservationSize < 1 {
		return fmt.Errorf("dimensions: observation sizes must be > 0")
	}
	if d.VehicleActionSize < 1 || d.EdgeActionSize < 1 {
		return fmt.Errorf("dimensions: action sizes must be > 0")
	}
	return nil
}

// D3PGLearner trains the shared vehicle agent and the edge agent from
// replayed transitions. Each step hard-syncs target networks when the
// step count reaches a multiple of the target update period, pulls one
// batch, updates both critics against projected categorical Bellman
// targets, and updates both policies by deterministic policy gradient
// with one-agent-at-a-time counterfactual action substitution.
//
// A step either fully completes or fails the run; there are no
// retries and no partial-step recovery.
type D3PGLearner struct {
	conf Config
	dims Dimensions

	vehicle *agentCore
	edge    *agentCore

	buffer     expreplay.Sampler
	replicator Replicator

	counter      *tracking.Counter
	logger       *tracking.Logger
	checkpointer tracking.Saver
	snapshotter  tracking.Saver

	z []float64

	steps        int
	lastStepTime time.Time
}

// NewD3PGLearner returns a new D3PGLearner sampling from buffer. The
// counter and logger must be non-nil; the checkpointer and
// snapshotter may be nil, disabling persistence.
func NewD3PGLearner(conf Config, dims Dimensions, buffer expreplay.Sampler,
	replicator Replicator, counter *tracking.Counter,
	logger *tracking.Logger, checkpointer,
	snapshotter tracking.Saver) (*D3PGLearner, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("newd3pglearner: %v", err)
	}
	if err := dims.Validate(); err != nil {
		return nil, fmt.Errorf("newd3pglearner: %v", err)
	}
	if buffer == nil {
		return nil, fmt.Errorf("newd3pglearner: no replay buffer")
	}
	if replicator == nil {
		return nil, fmt.Errorf("newd3pglearner: no replicator")
	}
	if counter == nil || logger == nil {
		return nil, fmt.Errorf("newd3pglearner: no counter or logger")
	}
	batchSize := buffer.BatchSize()
	if batchSize != conf.BatchSize {
		return nil, fmt.Errorf("newd3pglearner: replay batch size "+
			"\n\twant(%v)\n\thave(%v)", conf.BatchSize, batchSize)
	}

	z := support(conf.VMin, conf.VMax, conf.Atoms)

	// All vehicles share one policy/critic pair, so the vehicle
	// graphs stack the per-vehicle rows of every batch element into
	// batchSize × vehicleNumber rows; one backward pass then averages
	// the loss over batch elements and vehicles at once. The vehicle
	// critic sees only the vehicles' concatenated actions, while the
	// edge critic sees the full joint action.
	vehicle, err := newAgentCore("vehicle",
		batchSize*dims.VehicleNumber, dims.VehicleObservationSize,
		dims.VehicleActionSize, dims.VehicleNumber*dims.VehicleActionSize,
		conf, z)
	if err != nil {
		return nil, fmt.Errorf("newd3pglearner: %v", err)
	}
	edge, err := newAgentCore("edge", batchSize, dims.EdgeObservationSize,
		dims.EdgeActionSize, dims.JointActionSize(), conf, z)
	if err != nil {
		return nil, fmt.Errorf("newd3pglearner: %v", err)
	}

	return &D3PGLearner{
		conf:         conf,
		dims:         dims,
		vehicle:      vehicle,
		edge:         edge,
		buffer:       buffer,
		replicator:   replicator,
		counter:      counter,
		logger:       logger,
		checkpointer: checkpointer,
		snapshotter:  snapshotter,
		z:            z,
	}, nil
}

// Steps returns the number of completed learner steps
func (l *D3PGLearner) Steps() int {
	return l.steps
}

// Step runs one full learner step. Any error is fatal to the training
// run.
func (l *D3PGLearner) Step() error {
	if l.steps%l.conf.TargetUpdatePeriod == 0 {
		if err := l.vehicle.syncTargets(); err != nil {
			return fmt.Errorf("step: %v", err)
		}
		if err := l.edge.syncTargets(); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}

	// Sample errors keep their type so callers can tell a warming-up
	// buffer from a fatal failure
	batch, err := l.buffer.Sample()
	if err != nil {
		return err
	}

	record, err := l.update(batch)
	if err != nil {
		return fmt.Errorf("step: %v", err)
	}

	l.steps++
	elapsed := 0.0
	now := time.Now()
	if !l.lastStepTime.IsZero() {
		elapsed = now.Sub(l.lastStepTime).Seconds()
	}
	l.lastStepTime = now

	counts := l.counter.Increment(map[string]float64{
		"learner_steps":    1,
		"learner_walltime": elapsed,
	})
	for key, value := range counts {
		record[key] = value
	}
	l.logger.Write(record)

	if l.checkpointer != nil {
		if err := l.checkpointer.Save(); err != nil {
			return fmt.Errorf("step: could not checkpoint: %v", err)
		}
	}
	if l.snapshotter != nil {
		if err := l.snapshotter.Save(); err != nil {
			return fmt.Errorf("step: could not snapshot: %v", err)
		}
	}

	return nil
}

// update runs the critic and policy updates of both agent groups on
// one batch, returning the loss record
func (l *D3PGLearner) update(batch *expreplay.Batch) (map[string]float64,
	error) {
	batchSize := batch.BatchSize
	vehicles := l.dims.VehicleNumber
	vas := l.dims.VehicleActionSize
	jointDim := l.dims.JointActionSize()
	vehicleJointDim := vehicles * vas

	// Target policy forward passes. The target actions of every
	// vehicle are computed once for the whole batch and reused by
	// every counterfactual below.
	vehicleEmbed, vehicleTargetActions, err := l.vehicle.targetPass(
		batch.VehicleNextObservations)
	if err != nil {
		return nil, err
	}
	edgeEmbed, edgeTargetActions, err := l.edge.targetPass(
		batch.EdgeNextObservations)
	if err != nil {
		return nil, err
	}

	jointTarget := l.assembleJointActions(vehicleTargetActions,
		edgeTargetActions, batchSize)
	vehicleJointTarget := repeatRows(vehicleTargetActions, batchSize,
		vehicles, vehicleJointDim)

	// Multi-channel rewards collapse to the final channel
	rewards := lastRewardChannel(batch.Rewards, batchSize)
	discounts := make([]float64, batchSize)
	for b := 0; b < batchSize; b++ {
		discounts[b] = batch.Discounts[b] * l.conf.Discount
	}
	vehicleRewards := repeatPerRow(rewards, vehicles)
	vehicleDiscounts := repeatPerRow(discounts, vehicles)

	// Critic updates against the projected categorical targets
	vehicleProbs, err := l.vehicle.targetDistribution(vehicleEmbed,
		vehicleJointTarget)
	if err != nil {
		return nil, err
	}
	vehicleTargets, err := projectDistribution(l.z, vehicleProbs,
		vehicleRewards, vehicleDiscounts)
	if err != nil {
		return nil, err
	}
	vehiclePrev := make([]float64, batchSize*vehicleJointDim)
	for b := 0; b < batchSize; b++ {
		copy(vehiclePrev[b*vehicleJointDim:(b+1)*vehicleJointDim],
			batch.JointActions[b*jointDim:b*jointDim+vehicleJointDim])
	}
	vehicleJointPrev := repeatRows(vehiclePrev, batchSize, vehicles,
		vehicleJointDim)
	vehicleCriticLoss, err := l.vehicle.criticUpdate(
		batch.VehicleObservations, vehicleJointPrev, vehicleTargets,
		l.replicator, l.conf.MaxGradientNorm)
	if err != nil {
		return nil, err
	}

	edgeProbs, err := l.edge.targetDistribution(edgeEmbed, jointTarget)
	if err != nil {
		return nil, err
	}
	edgeTargets, err := projectDistribution(l.z, edgeProbs, rewards,
		discounts)
	if err != nil {
		return nil, err
	}
	edgeCriticLoss, err := l.edge.criticUpdate(batch.EdgeObservations,
		batch.JointActions, edgeTargets, l.replicator,
		l.conf.MaxGradientNorm)
	if err != nil {
		return nil, err
	}

	// Policy updates. Row (b, i) of the vehicle counterfactual is the
	// vehicles' concatenated target action of batch element b with
	// vehicle i's slice replaced by the online policy's action; the
	// edge counterfactual substitutes the online edge action into the
	// full joint target instead.
	vehicleOnline, err := l.vehicle.onlineActions(vehicleEmbed)
	if err != nil {
		return nil, err
	}
	vehicleCounterfactual := make([]float64,
		batchSize*vehicles*vehicleJointDim)
	for b := 0; b < batchSize; b++ {
		for i := 0; i < vehicles; i++ {
			row := vehicleCounterfactual[(b*vehicles+i)*vehicleJointDim : (b*
				vehicles+i+1)*vehicleJointDim]
			copy(row, vehicleTargetActions[b*vehicleJointDim:(b+1)*
				vehicleJointDim])
			copy(row[i*vas:(i+1)*vas],
				vehicleOnline[(b*vehicles+i)*vas:(b*vehicles+i+1)*vas])
		}
	}
	vehicleDQDA, err := l.vehicle.actionGradients(vehicleEmbed,
		vehicleCounterfactual)
	if err != nil {
		return nil, err
	}
	vehicleActionTargets := make([]float64, len(vehicleOnline))
	copy(vehicleActionTargets, vehicleOnline)
	for b := 0; b < batchSize; b++ {
		for i := 0; i < vehicles; i++ {
			rowGrad := vehicleDQDA[(b*vehicles+i)*vehicleJointDim+i*vas : (b*
				vehicles+i)*vehicleJointDim+(i+1)*vas]
			target := vehicleActionTargets[(b*vehicles+i)*vas : (b*vehicles+
				i+1)*vas]
			for j := range target {
				target[j] += rowGrad[j]
			}
		}
	}
	vehiclePolicyLoss, err := l.vehicle.policyUpdate(vehicleEmbed,
		vehicleActionTargets, l.replicator, l.conf.MaxGradientNorm)
	if err != nil {
		return nil, err
	}

	eas := l.dims.EdgeActionSize
	edgeOnline, err := l.edge.onlineActions(edgeEmbed)
	if err != nil {
		return nil, err
	}
	edgeCounterfactual := make([]float64, batchSize*jointDim)
	copy(edgeCounterfactual, jointTarget)
	for b := 0; b < batchSize; b++ {
		copy(edgeCounterfactual[b*jointDim+vehicles*vas:(b+1)*jointDim],
			edgeOnline[b*eas:(b+1)*eas])
	}
	edgeDQDA, err := l.edge.actionGradients(edgeEmbed, edgeCounterfactual)
	if err != nil {
		return nil, err
	}
	edgeActionTargets := make([]float64, len(edgeOnline))
	copy(edgeActionTargets, edgeOnline)
	for b := 0; b < batchSize; b++ {
		rowGrad := edgeDQDA[b*jointDim+vehicles*vas : (b+1)*jointDim]
		target := edgeActionTargets[b*eas : (b+1)*eas]
		for j := range target {
			target[j] += rowGrad[j]
		}
	}
	edgePolicyLoss, err := l.edge.policyUpdate(edgeEmbed,
		edgeActionTargets, l.replicator, l.conf.MaxGradientNorm)
	if err != nil {
		return nil, err
	}

	return map[string]float64{
		"vehicle_critic_loss": vehicleCriticLoss,
		"vehicle_policy_loss": vehiclePolicyLoss,
		"edge_critic_loss":    edgeCriticLoss,
		"edge_policy_loss":    edgePolicyLoss,
	}, nil
}

// assembleJointActions concatenates the per-vehicle target actions of
// each batch element with the edge target action into flat joint
// action rows
func (l *D3PGLearner) assembleJointActions(vehicleActions,
	edgeActions []float64, batchSize int) []float64 {
	vehicles := l.dims.VehicleNumber
	vas := l.dims.VehicleActionSize
	eas := l.dims.EdgeActionSize
	jointDim := l.dims.JointActionSize()

	joint := make([]float64, batchSize*jointDim)
	for b := 0; b < batchSize; b++ {
		row := joint[b*jointDim : (b+1)*jointDim]
		copy(row, vehicleActions[b*vehicles*vas:(b+1)*vehicles*vas])
		copy(row[vehicles*vas:], edgeActions[b*eas:(b+1)*eas])
	}
	return joint
}

// repeatRows repeats each of the batchSize rows of a flat matrix
// times consecutive times
func repeatRows(data []float64, batchSize, times, cols int) []float64 {
	out := make([]float64, batchSize*times*cols)
	for b := 0; b < batchSize; b++ {
		row := data[b*cols : (b+1)*cols]
		for i := 0; i < times; i++ {
			copy(out[(b*times+i)*cols:(b*times+i+1)*cols], row)
		}
	}
	return out
}

// repeatPerRow repeats each scalar times consecutive times
func repeatPerRow(values []float64, times int) []float64 {
	out := make([]float64, len(values)*times)
	for b, v := range values {
		for i := 0; i < times; i++ {
			out[b*times+i] = v
		}
	}
	return out
}

// lastRewardChannel extracts the final reward channel of each batch
// row
func lastRewardChannel(rewards []float64, batchSize int) []float64 {
	channels := len(rewards) / batchSize
	out := make([]float64, batchSize)
	for b := 0; b < batchSize; b++ {
		out[b] = rewards[b*channels+channels-1]
	}
	return out
}
