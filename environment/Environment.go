// Package environment implements the vehicular network Age-of-View
// sensing and offloading environment
package environment

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	ts "github.com/neardws/aovrl/timestep"
	"github.com/neardws/aovrl/utils/floatutils"
	"github.com/neardws/aovrl/utils/matutils"
)

// Action decoding bounds. Policy networks emit actions in [0, 1]; the
// environment maps them onto physical ranges.
const (
	MinSensingFrequency float64 = 0.2 // Hz
	MaxSensingFrequency float64 = 5.0 // Hz

	MinTransmissionPower float64 = 1.0   // mW
	MaxTransmissionPower float64 = 200.0 // mW

	// Age assigned to an information type no vehicle delivered
	staleAgePenalty float64 = 10.0
)

// StepResult carries the Age-of-View metrics produced by one
// environment step
type StepResult struct {
	CumulativeAoV           float64
	CumulativeCost          float64
	AverageAoV              float64
	AverageCost             float64
	AverageTimeliness       float64
	AverageConsistency      float64
	AverageRedundancy       float64
	AverageSensingCost      float64
	AverageTransmissionCost float64
}

// Snapshot is the serializable state of the environment, persisted
// periodically by the evaluator loop
type Snapshot struct {
	Time            int
	Episode         int
	InformationAges []float64
}

// VehicularNetworkEnv simulates vehicles sensing information and
// uploading it to an edge node. Each step the vehicles choose what to
// sense and how to upload it, the edge allocates uplink bandwidth, and
// the queuing and transmission models turn those decisions into
// information ages and costs.
type VehicularNetworkEnv struct {
	config Config

	vehicles        []*Vehicle
	edge            *Edge
	informationList *InformationList
	applicationList *ApplicationList
	viewList        *ViewList
	serviceTimes    *ServiceTimes
	fading          *ChannelFading

	// Seconds since the last delivery of each information type,
	// indexed by type
	informationAges []float64

	time    int
	episode int
}

// NewVehicularNetworkEnv creates and returns a new environment from a
// validated Config. Vehicle trajectories are synthesized as seeded
// random walks over the map; use NewWithTrajectories to supply
// preprocessed GPS trajectories instead.
func NewVehicularNetworkEnv(config Config) (*VehicularNetworkEnv, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newvehicularnetworkenv: %v", err)
	}

	trajectories := make([]*Trajectory, config.VehicleNumber)
	for i := range trajectories {
		trajectories[i] = randomWalkTrajectory(config.MapWidth,
			config.EpisodeLength, config.VehicleSeeds[i])
	}
	return NewWithTrajectories(config, trajectories)
}

// NewWithTrajectories creates and returns a new environment with the
// given per-vehicle trajectories
func NewWithTrajectories(config Config,
	trajectories []*Trajectory) (*VehicularNetworkEnv, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newwithtrajectories: %v", err)
	}
	if len(trajectories) != config.VehicleNumber {
		return nil, fmt.Errorf("newwithtrajectories: invalid number of "+
			"trajectories \n\twant(%v)\n\thave(%v)", config.VehicleNumber,
			len(trajectories))
	}

	informationList, err := NewInformationList(config.InformationNumber,
		config.Seed, config.DataSizeLowBound, config.DataSizeUpBound,
		config.UpdateIntervalLowBound, config.UpdateIntervalUpBound)
	if err != nil {
		return nil, fmt.Errorf("newwithtrajectories: %v", err)
	}

	applicationList, err := NewApplicationList(config.ApplicationNumber,
		config.ViewNumber, config.ViewsPerApplication, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("newwithtrajectories: %v", err)
	}

	viewList, err := NewViewList(config.ViewNumber, config.InformationNumber,
		config.MaxInformationNumber, config.ViewSeeds)
	if err != nil {
		return nil, fmt.Errorf("newwithtrajectories: %v", err)
	}

	serviceTimes, err := NewServiceTimes(config.VehicleNumber,
		config.InformationNumber, config.MeanServiceTimeLowBound,
		config.MeanServiceTimeUpBound, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("newwithtrajectories: %v", err)
	}

	fading, err := NewChannelFading(config.MeanChannelFadingGain,
		config.SecondMomentChannelFadingGain, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("newwithtrajectories: %v", err)
	}

	edge, err := NewEdge(0,
		Location{X: config.EdgeLocationX, Y: config.EdgeLocationY},
		config.EdgeBandwidth, config.VehicleNumber)
	if err != nil {
		return nil, fmt.Errorf("newwithtrajectories: %v", err)
	}

	vehicles := make([]*Vehicle, config.VehicleNumber)
	for i := range vehicles {
		vehicles[i], err = NewVehicle(i, trajectories[i],
			config.InformationNumber, config.SensedInformationNumber,
			config.VehicleSeeds[i])
		if err != nil {
			return nil, fmt.Errorf("newwithtrajectories: %v", err)
		}
	}

	return &VehicularNetworkEnv{
		config:          config,
		vehicles:        vehicles,
		edge:            edge,
		informationList: informationList,
		applicationList: applicationList,
		viewList:        viewList,
		serviceTimes:    serviceTimes,
		fading:          fading,
		informationAges: make([]float64, config.InformationNumber),
	}, nil
}

// Config returns the environment's configuration
func (e *VehicularNetworkEnv) Config() Config {
	return e.config
}

// Vehicles returns the environment's vehicles
func (e *VehicularNetworkEnv) Vehicles() []*Vehicle {
	return e.vehicles
}

// Edge returns the environment's edge node
func (e *VehicularNetworkEnv) Edge() *Edge {
	return e.edge
}

// InformationList returns the environment's information catalog
func (e *VehicularNetworkEnv) InformationList() *InformationList {
	return e.informationList
}

// ServiceTimes returns the environment's service time statistics
func (e *VehicularNetworkEnv) ServiceTimes() *ServiceTimes {
	return e.serviceTimes
}

// Snapshot returns the serializable state of the environment
func (e *VehicularNetworkEnv) Snapshot() Snapshot {
	ages := make([]float64, len(e.informationAges))
	copy(ages, e.informationAges)
	return Snapshot{Time: e.time, Episode: e.episode, InformationAges: ages}
}

// Reset starts a new episode and returns a first TimeStep
func (e *VehicularNetworkEnv) Reset() ts.TimeStep {
	e.time = 0
	e.episode++
	for i := range e.informationAges {
		e.informationAges[i] = staleAgePenalty
	}

	return ts.New(ts.First, e.rewardZeros(), 1.0,
		e.edgeObservation(), e.vehicleObservations(), 0)
}

// Step advances the environment one time slot under the given joint
// action. The joint action vector concatenates every vehicle's flat
// action with the edge's flat action; a length mismatch is a fatal
// error. The returned TimeStep carries the per-channel reward vector
// whose last channel is the training reward.
func (e *VehicularNetworkEnv) Step(action []float64) (ts.TimeStep,
	StepResult, error) {
	if len(action) != e.config.JointActionSize() {
		return ts.TimeStep{}, StepResult{}, fmt.Errorf("step: invalid joint "+
			"action length \n\twant(%v)\n\thave(%v)",
			e.config.JointActionSize(), len(action))
	}

	vehicleActions, edgeAction := e.decodeJointAction(action)

	var (
		timeliness       float64
		consistency      float64
		sensingCost      float64
		transmissionCost float64
		sensedItems      int
		typeSensedBy     = make(map[int]int)
		deliveredAge     = make(map[int]float64)
		updatingByType   = make(map[int]float64)
	)

	for i, vehicle := range e.vehicles {
		queuing, err := NewSensingAndQueuing(vehicle, vehicleActions[i],
			e.informationList, e.serviceTimes)
		if err != nil {
			return ts.TimeStep{}, StepResult{}, fmt.Errorf("step: %v", err)
		}

		transmission, err := NewV2ITransmission(vehicle, vehicleActions[i],
			e.edge, edgeAction, queuing.ArrivalMoments(),
			queuing.QueuingTimes(), e.config.WhiteGaussianNoise, e.fading,
			e.config.PathLossExponent, e.informationList)
		if err != nil {
			return ts.TimeStep{}, StepResult{}, fmt.Errorf("step: %v", err)
		}

		types := queuing.SensedTypes()
		arrivals := queuing.ArrivalMoments()
		updates := queuing.UpdatingMoments()
		queues := queuing.QueuingTimes()
		transmits := transmission.TransmissionTimes()

		for slot, t := range types {
			if t < 0 {
				continue
			}
			sensedItems++
			typeSensedBy[t]++

			age := (arrivals[slot] - updates[slot]) + queues[slot] +
				transmits[slot]
			timeliness += arrivals[slot] - updates[slot]
			if existing, ok := deliveredAge[t]; !ok || age < existing {
				deliveredAge[t] = age
				updatingByType[t] = updates[slot]
			}

			sensingCost += vehicleActions[i].SensingFrequencies[slot]
			transmissionCost += MWToW(vehicleActions[i].TransmissionPower) *
				transmits[slot]
		}
	}

	// Redundancy: fraction of sensed items that duplicate a type some
	// other item already delivers
	redundancy := 0.0
	if sensedItems > 0 {
		duplicates := 0
		for _, count := range typeSensedBy {
			if count > 1 {
				duplicates += count - 1
			}
		}
		redundancy = float64(duplicates) / float64(sensedItems)
	}
	if sensedItems > 0 {
		timeliness /= float64(sensedItems)
	}

	// Age of view: per view, the mean delivered age of its required
	// types, with the stale penalty for undelivered types. Consistency
	// is the spread of source updating moments within a view.
	aov := 0.0
	for _, view := range e.viewList.Views() {
		viewAge := 0.0
		minUpdate, maxUpdate := math.Inf(1), math.Inf(-1)
		for _, t := range view {
			if age, ok := deliveredAge[t]; ok {
				viewAge += age
				minUpdate = math.Min(minUpdate, updatingByType[t])
				maxUpdate = math.Max(maxUpdate, updatingByType[t])
			} else {
				viewAge += staleAgePenalty
			}
		}
		aov += viewAge / float64(len(view))
		if maxUpdate > minUpdate {
			consistency += maxUpdate - minUpdate
		}
	}
	aov /= float64(e.viewList.Number())
	consistency /= float64(e.viewList.Number())

	// Update per-type age bookkeeping for the next observation
	for t := range e.informationAges {
		if age, ok := deliveredAge[t]; ok {
			e.informationAges[t] = age
		} else {
			e.informationAges[t] = math.Min(e.informationAges[t]+1,
				staleAgePenalty)
		}
	}

	cost := sensingCost + transmissionCost
	result := StepResult{
		CumulativeAoV:           aov,
		CumulativeCost:          cost,
		AverageAoV:              aov,
		AverageCost:             cost / float64(e.config.VehicleNumber),
		AverageTimeliness:       timeliness,
		AverageConsistency:      consistency,
		AverageRedundancy:       redundancy,
		AverageSensingCost:      sensingCost / float64(e.config.VehicleNumber),
		AverageTransmissionCost: transmissionCost / float64(e.config.VehicleNumber),
	}

	e.time++
	stepType := ts.Mid
	discount := 1.0
	if e.time >= e.config.EpisodeLength {
		stepType = ts.Last
		discount = 0.0
	}

	return ts.New(stepType, e.rewards(result), discount,
		e.edgeObservation(), e.vehicleObservations(), e.time), result, nil
}

// rewards builds the reward channel vector: one local channel per
// vehicle and a final global training channel
func (e *VehicularNetworkEnv) rewards(result StepResult) []float64 {
	rewards := make([]float64, e.config.VehicleNumber+1)
	local := -(result.AverageAoV + result.AverageCost)
	for i := 0; i < e.config.VehicleNumber; i++ {
		rewards[i] = local
	}
	rewards[e.config.VehicleNumber] = -(result.AverageAoV +
		result.AverageCost)
	return rewards
}

func (e *VehicularNetworkEnv) rewardZeros() []float64 {
	return make([]float64, e.config.VehicleNumber+1)
}

// edgeObservation builds the edge observation: normalized time,
// per-vehicle normalized distance to the edge, and per-type normalized
// information age
func (e *VehicularNetworkEnv) edgeObservation() mat.Vector {
	obs := make([]float64, e.config.EdgeObservationSize())
	obs[0] = float64(e.time) / float64(e.config.EpisodeLength)

	for i, vehicle := range e.vehicles {
		location := vehicle.Trajectory().LocationAt(float64(e.time))
		obs[1+i] = location.Distance(e.edge.Location()) / e.config.MapWidth
	}
	for t, age := range e.informationAges {
		obs[1+e.config.VehicleNumber+t] = age / staleAgePenalty
	}

	// Distances to a corner-mounted edge can exceed MapWidth
	vec := mat.NewVecDense(len(obs), obs)
	matutils.VecClip(vec, 0, 1)
	return vec
}

// vehicleObservations builds the per-vehicle observation matrix, one
// row per vehicle
func (e *VehicularNetworkEnv) vehicleObservations() *mat.Dense {
	size := e.config.VehicleObservationSize()
	obs := mat.NewDense(e.config.VehicleNumber, size, nil)
	for i, vehicle := range e.vehicles {
		row := make([]float64, size)
		row[0] = float64(e.time) / float64(e.config.EpisodeLength)

		location := vehicle.Trajectory().LocationAt(float64(e.time))
		row[1] = floatutils.Clip(
			location.Distance(e.edge.Location())/e.config.MapWidth, 0, 1)

		for slot, t := range vehicle.InformationCanBeSensed() {
			row[2+slot] = float64(t) / float64(e.config.InformationNumber)
			row[2+e.config.SensedInformationNumber+slot] =
				e.informationAges[t] / staleAgePenalty
		}
		obs.SetRow(i, row)
	}
	return obs
}

// decodeJointAction splits the flat joint action vector into typed
// vehicle and edge actions
func (e *VehicularNetworkEnv) decodeJointAction(
	action []float64) ([]VehicleAction, EdgeAction) {
	n := e.config.SensedInformationNumber
	size := e.config.VehicleActionSize()

	vehicleActions := make([]VehicleAction, e.config.VehicleNumber)
	for i := range vehicleActions {
		flat := action[i*size : (i+1)*size]
		vehicleActions[i] = e.decodeVehicleAction(flat, n)
	}

	edgeFlat := action[e.config.VehicleNumber*size:]
	return vehicleActions, e.decodeEdgeAction(edgeFlat)
}

// decodeVehicleAction maps one vehicle's [0,1] policy outputs onto a
// typed VehicleAction
func (e *VehicularNetworkEnv) decodeVehicleAction(flat []float64,
	n int) VehicleAction {
	sensed := make([]int, n)
	frequencies := make([]float64, n)
	priorities := make([]float64, n)
	for i := 0; i < n; i++ {
		if clip01(flat[1+i]) > 0.5 {
			sensed[i] = 1
		}
		frequencies[i] = MinSensingFrequency +
			clip01(flat[1+n+i])*(MaxSensingFrequency-MinSensingFrequency)
		priorities[i] = clip01(flat[1+2*n+i])
	}

	return VehicleAction{
		ActionTime:          float64(e.time) + clip01(flat[0]),
		SensedInformation:   sensed,
		SensingFrequencies:  frequencies,
		UploadingPriorities: priorities,
		TransmissionPower: MinTransmissionPower +
			clip01(flat[1+3*n])*(MaxTransmissionPower-MinTransmissionPower),
	}
}

// decodeEdgeAction maps the edge's [0,1] policy outputs onto a
// bandwidth allocation that never exceeds the edge's total bandwidth
func (e *VehicularNetworkEnv) decodeEdgeAction(flat []float64) EdgeAction {
	total := 0.0
	for _, f := range flat {
		total += clip01(f)
	}
	if total == 0 {
		total = 1
	}

	// Scaled a hair under the budget so the re-summed allocation never
	// trips the bandwidth check on rounding
	budget := e.edge.Bandwidth() * (1 - 1e-12)
	allocation := make([]float64, len(flat))
	for i, f := range flat {
		allocation[i] = clip01(f) / total * budget
	}
	return EdgeAction{BandwidthAllocation: allocation}
}

func clip01(x float64) float64 {
	return floatutils.Clip(x, 0, 1)
}

// randomWalkTrajectory synthesizes a bounded random walk trajectory
// used when no preprocessed GPS data is supplied
func randomWalkTrajectory(mapWidth float64, seconds int,
	seed uint64) *Trajectory {
	rng := rand.New(rand.NewSource(seed))
	locations := make([]Location, seconds+1)
	x := rng.Float64() * mapWidth
	y := rng.Float64() * mapWidth
	for i := range locations {
		locations[i] = Location{X: x, Y: y}
		// Urban vehicle speeds, roughly 0-15 m/s per axis
		x = floatutils.Clip(x+rng.Float64()*30-15, 0, mapWidth)
		y = floatutils.Clip(y+rng.Float64()*30-15, 0, mapWidth)
	}
	trajectory, _ := NewTrajectory(locations)
	return trajectory
}
