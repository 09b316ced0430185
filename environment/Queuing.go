package environment

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrUnstableQueue is returned when the cumulative queue workload
// reaches 1 and the Pollaczek-Khinchine delay is undefined
var ErrUnstableQueue = errors.New("queue workload >= 1, queue is unstable")

// SensingAndQueuing converts one vehicle's sensing and uploading
// decisions into per-information-slot arrival moments, data source
// updating moments, and non-preemptive priority queuing delays.
//
// Slots that are sensed form an M/G/1-like priority queue ordered by
// descending uploading priority. The head-of-line slot waits zero time;
// a slot at a later rank waits
//
//	W = (1/(1-ρ)) * (E[S] + τ/(2*(1-ρ))) - E[S]
//
// where ρ and τ are the cumulative workload Σ λ·E[S] and second-moment
// term Σ λ·E[S²] over all slots up to and including the slot itself.
type SensingAndQueuing struct {
	vehicleNo               int
	sensedInformationNumber int

	actionTime          float64
	sensedInformation   []int
	sensingFrequencies  []float64
	uploadingPriorities []float64
	sensedTypes         []int

	arrivalIntervals []float64
	arrivalMoments   []float64
	updatingMoments  []float64
	queuingTimes     []float64
}

// NewSensingAndQueuing runs the queuing model for one vehicle and one
// action against the information catalog and service time statistics.
// It returns ErrUnstableQueue (wrapped) when the priority queue has
// workload >= 1.
func NewSensingAndQueuing(vehicle *Vehicle, action VehicleAction,
	informationList *InformationList,
	serviceTimes *ServiceTimes) (*SensingAndQueuing, error) {
	if err := action.Validate(vehicle); err != nil {
		return nil, fmt.Errorf("newsensingandqueuing: %v", err)
	}

	sensedTypes, err := vehicle.SensedTypes(action.SensedInformation)
	if err != nil {
		return nil, fmt.Errorf("newsensingandqueuing: %v", err)
	}

	s := &SensingAndQueuing{
		vehicleNo:               vehicle.Number(),
		sensedInformationNumber: vehicle.SensedInformationNumber(),
		actionTime:              action.ActionTime,
		sensedInformation:       action.SensedInformation,
		sensingFrequencies:      action.SensingFrequencies,
		uploadingPriorities:     action.UploadingPriorities,
		sensedTypes:             sensedTypes,
	}

	s.arrivalIntervals = s.computeArrivalIntervals()
	s.arrivalMoments = s.computeArrivalMoments(s.arrivalIntervals)

	s.updatingMoments, err = s.computeUpdatingMoments(s.arrivalMoments,
		informationList)
	if err != nil {
		return nil, fmt.Errorf("newsensingandqueuing: %v", err)
	}

	s.queuingTimes, err = s.computeQueuingTimes(serviceTimes)
	if err != nil {
		return nil, fmt.Errorf("newsensingandqueuing: %w", err)
	}

	return s, nil
}

// SensedTypes returns the information type sensed in each slot, -1 for
// unsensed slots
func (s *SensingAndQueuing) SensedTypes() []int {
	return s.sensedTypes
}

// ArrivalIntervals returns the per-slot arrival intervals in seconds
func (s *SensingAndQueuing) ArrivalIntervals() []float64 {
	return s.arrivalIntervals
}

// ArrivalMoments returns the per-slot arrival moments in seconds
func (s *SensingAndQueuing) ArrivalMoments() []float64 {
	return s.arrivalMoments
}

// UpdatingMoments returns the per-slot data source updating moments in
// seconds
func (s *SensingAndQueuing) UpdatingMoments() []float64 {
	return s.updatingMoments
}

// QueuingTimes returns the per-slot queuing delays in seconds
func (s *SensingAndQueuing) QueuingTimes() []float64 {
	return s.queuingTimes
}

// computeArrivalIntervals computes the interval between consecutive
// arrivals of each sensed slot, the reciprocal of its sensing frequency
func (s *SensingAndQueuing) computeArrivalIntervals() []float64 {
	intervals := make([]float64, s.sensedInformationNumber)
	for i := 0; i < s.sensedInformationNumber; i++ {
		if s.sensedInformation[i] == 1 {
			intervals[i] = 1 / s.sensingFrequencies[i]
		}
	}
	return intervals
}

// computeArrivalMoments computes the moment the most recent sample of
// each sensed slot arrived at the vehicle: the last whole sensing
// period completed before the action time.
func (s *SensingAndQueuing) computeArrivalMoments(
	intervals []float64) []float64 {
	moments := make([]float64, s.sensedInformationNumber)
	for i := 0; i < s.sensedInformationNumber; i++ {
		if s.sensedInformation[i] == 1 {
			moments[i] = math.Floor(s.actionTime*s.sensingFrequencies[i]) *
				intervals[i]
		}
	}
	return moments
}

// computeUpdatingMoments computes the moment the data source last
// refreshed each sensed slot: the arrival moment floored to the
// nearest multiple of the type's update interval.
func (s *SensingAndQueuing) computeUpdatingMoments(arrivalMoments []float64,
	informationList *InformationList) ([]float64, error) {
	moments := make([]float64, s.sensedInformationNumber)
	for i := 0; i < s.sensedInformationNumber; i++ {
		if s.sensedInformation[i] != 1 {
			continue
		}
		interval, err := informationList.UpdateIntervalByType(s.sensedTypes[i])
		if err != nil {
			return nil, err
		}
		moments[i] = math.Floor(arrivalMoments[i]/float64(interval)) *
			float64(interval)
	}
	return moments, nil
}

// queuedItem is one sensed slot placed in the priority queue
type queuedItem struct {
	slot             int
	informationType  int
	sensingFrequency float64
	priority         float64
}

// computeQueuingTimes orders the sensed slots by descending uploading
// priority and applies the Pollaczek-Khinchine delay to each rank. The
// sort is stable, so equal priorities keep their slot order.
func (s *SensingAndQueuing) computeQueuingTimes(
	serviceTimes *ServiceTimes) ([]float64, error) {
	queuingTimes := make([]float64, s.sensedInformationNumber)

	queue := make([]queuedItem, 0, s.sensedInformationNumber)
	for i := 0; i < s.sensedInformationNumber; i++ {
		if s.sensedInformation[i] == 1 {
			queue = append(queue, queuedItem{
				slot:             i,
				informationType:  s.sensedTypes[i],
				sensingFrequency: s.sensingFrequencies[i],
				priority:         s.uploadingPriorities[i],
			})
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].priority > queue[j].priority
	})

	workload := 0.0
	tau := 0.0
	for rank, item := range queue {
		mean, err := serviceTimes.Mean(s.vehicleNo, item.informationType)
		if err != nil {
			return nil, err
		}
		secondMoment, err := serviceTimes.SecondMoment(s.vehicleNo,
			item.informationType)
		if err != nil {
			return nil, err
		}

		// The cumulative terms include the item's own contribution
		workload += item.sensingFrequency * mean
		tau += item.sensingFrequency * secondMoment

		// The head of the queue never waits
		if rank == 0 {
			queuingTimes[item.slot] = 0
			continue
		}

		if workload >= 1 {
			return nil, fmt.Errorf("computequeuingtimes: vehicle %v rank %v "+
				"workload %v: %w", s.vehicleNo, rank, workload,
				ErrUnstableQueue)
		}

		queuingTimes[item.slot] = (1/(1-workload))*
			(mean+tau/(2*(1-workload))) - mean
	}

	return queuingTimes, nil
}
