package mad3pg

import (
	"fmt"

	"github.com/neardws/aovrl/network"
	ts "github.com/neardws/aovrl/timestep"
	"github.com/neardws/aovrl/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
)

// FeedForwardActor selects joint actions during rollouts. It holds
// forward-only copies of the online observation and policy networks
// of both agent groups, refreshed from the learner with
// UpdateVariables, and perturbs actions with clipped Gaussian
// exploration noise.
type FeedForwardActor struct {
	dims    Dimensions
	learner *D3PGLearner

	vehicleVM     G.VM
	vehicleObsIn  *G.Node
	vehicleObsNet network.NeuralNet
	vehiclePolicy network.NeuralNet

	edgeVM     G.VM
	edgeObsIn  *G.Node
	edgeObsNet network.NeuralNet
	edgePolicy network.NeuralNet

	noise *distuv.Normal
}

// NewFeedForwardActor returns an actor reading its weights from
// learner. A sigma of 0 disables exploration noise, which is the
// evaluation configuration.
func NewFeedForwardActor(learner *D3PGLearner, sigma float64,
	seed uint64) (*FeedForwardActor, error) {
	if learner == nil {
		return nil, fmt.Errorf("newfeedforwardactor: no learner")
	}
	if sigma < 0 {
		return nil, fmt.Errorf("newfeedforwardactor: sigma must be >= 0, "+
			"got %v", sigma)
	}
	dims := learner.dims

	actor := &FeedForwardActor{
		dims:    dims,
		learner: learner,
	}

	vg := G.NewGraph()
	actor.vehicleObsIn = inputMatrix(vg, dims.VehicleNumber,
		dims.VehicleObservationSize, "actorVehicleObs")
	var err error
	actor.vehicleObsNet, err = learner.vehicle.obsNet.CloneWithInputTo(1,
		[]*G.Node{actor.vehicleObsIn}, vg)
	if err != nil {
		return nil, fmt.Errorf("newfeedforwardactor: %v", err)
	}
	actor.vehiclePolicy, err = learner.vehicle.policyNet.CloneWithInputTo(1,
		[]*G.Node{actor.vehicleObsNet.Prediction()}, vg)
	if err != nil {
		return nil, fmt.Errorf("newfeedforwardactor: %v", err)
	}
	actor.vehicleVM = G.NewTapeMachine(vg)

	eg := G.NewGraph()
	actor.edgeObsIn = inputMatrix(eg, 1, dims.EdgeObservationSize,
		"actorEdgeObs")
	actor.edgeObsNet, err = learner.edge.obsNet.CloneWithInputTo(1,
		[]*G.Node{actor.edgeObsIn}, eg)
	if err != nil {
		return nil, fmt.Errorf("newfeedforwardactor: %v", err)
	}
	actor.edgePolicy, err = learner.edge.policyNet.CloneWithInputTo(1,
		[]*G.Node{actor.edgeObsNet.Prediction()}, eg)
	if err != nil {
		return nil, fmt.Errorf("newfeedforwardactor: %v", err)
	}
	actor.edgeVM = G.NewTapeMachine(eg)

	if sigma > 0 {
		actor.noise = &distuv.Normal{
			Mu:    0,
			Sigma: sigma,
			Src:   rand.New(rand.NewSource(seed)),
		}
	}

	return actor, nil
}

// UpdateVariables copies the learner's current online weights into
// the actor's networks
func (a *FeedForwardActor) UpdateVariables() error {
	if err := a.vehicleObsNet.Set(a.learner.vehicle.obsNet); err != nil {
		return fmt.Errorf("updatevariables: %v", err)
	}
	if err := a.vehiclePolicy.Set(a.learner.vehicle.policyNet); err != nil {
		return fmt.Errorf("updatevariables: %v", err)
	}
	if err := a.edgeObsNet.Set(a.learner.edge.obsNet); err != nil {
		return fmt.Errorf("updatevariables: %v", err)
	}
	if err := a.edgePolicy.Set(a.learner.edge.policyNet); err != nil {
		return fmt.Errorf("updatevariables: %v", err)
	}
	return nil
}

// SelectActions returns the flat joint action for the current
// timestep: each vehicle's policy applied to its own observation row,
// then the edge policy applied to the edge observation
func (a *FeedForwardActor) SelectActions(step ts.TimeStep) ([]float64,
	error) {
	dims := a.dims
	if step.VehicleObservations == nil {
		return nil, fmt.Errorf("selectactions: no vehicle observations")
	}
	rows, cols := step.VehicleObservations.Dims()
	if rows != dims.VehicleNumber || cols != dims.VehicleObservationSize {
		return nil, fmt.Errorf("selectactions: invalid vehicle observation "+
			"shape \n\twant(%vx%v)\n\thave(%vx%v)", dims.VehicleNumber,
			dims.VehicleObservationSize, rows, cols)
	}
	if step.Observation.Len() != dims.EdgeObservationSize {
		return nil, fmt.Errorf("selectactions: invalid edge observation "+
			"size \n\twant(%v)\n\thave(%v)", dims.EdgeObservationSize,
			step.Observation.Len())
	}

	vehicleObs := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		copy(vehicleObs[i*cols:(i+1)*cols],
			step.VehicleObservations.RawRowView(i))
	}
	err := letMatrix(a.vehicleObsIn, rows, cols, vehicleObs)
	if err != nil {
		return nil, fmt.Errorf("selectactions: %v", err)
	}
	if err := a.vehicleVM.RunAll(); err != nil {
		return nil, fmt.Errorf("selectactions: %v", err)
	}
	vehicleActions := valueData(a.vehiclePolicy.Output())
	a.vehicleVM.Reset()

	edgeObs := make([]float64, dims.EdgeObservationSize)
	for i := range edgeObs {
		edgeObs[i] = step.Observation.AtVec(i)
	}
	err = letMatrix(a.edgeObsIn, 1, dims.EdgeObservationSize, edgeObs)
	if err != nil {
		return nil, fmt.Errorf("selectactions: %v", err)
	}
	if err := a.edgeVM.RunAll(); err != nil {
		return nil, fmt.Errorf("selectactions: %v", err)
	}
	edgeActions := valueData(a.edgePolicy.Output())
	a.edgeVM.Reset()

	joint := make([]float64, dims.JointActionSize())
	copy(joint, vehicleActions)
	copy(joint[dims.VehicleNumber*dims.VehicleActionSize:], edgeActions)

	if a.noise != nil {
		for i := range joint {
			joint[i] = floatutils.Clip(joint[i]+a.noise.Rand(), 0, 1)
		}
	}

	return joint, nil
}
