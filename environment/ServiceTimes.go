package environment

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ServiceTimes holds the per-vehicle, per-information-type service time
// statistics used by the priority queuing model: the mean service time
// E[S] and the second moment E[S²] of one upload.
type ServiceTimes struct {
	vehicleNumber     int
	informationNumber int
	means             [][]float64
	secondMoments     [][]float64
}

// NewServiceTimes creates and returns seeded service time statistics.
// Mean service times are drawn uniformly from [meanLow, meanUp); the
// second moment of each entry is derived from its mean so that the two
// are consistent (E[S²] >= E[S]²).
func NewServiceTimes(vehicleNumber, informationNumber int,
	meanLow, meanUp float64, seed uint64) (*ServiceTimes, error) {
	if vehicleNumber <= 0 || informationNumber <= 0 {
		return nil, fmt.Errorf("newservicetimes: vehicle and information " +
			"numbers must be > 0")
	}
	if meanLow <= 0 || meanLow >= meanUp {
		return nil, fmt.Errorf("newservicetimes: invalid mean service time "+
			"bounds [%v, %v)", meanLow, meanUp)
	}

	src := rand.NewSource(seed)
	meanDist := distuv.Uniform{Min: meanLow, Max: meanUp, Src: src}
	spread := distuv.Uniform{Min: 1.0, Max: 2.0, Src: src}

	means := make([][]float64, vehicleNumber)
	secondMoments := make([][]float64, vehicleNumber)
	for v := 0; v < vehicleNumber; v++ {
		means[v] = make([]float64, informationNumber)
		secondMoments[v] = make([]float64, informationNumber)
		for t := 0; t < informationNumber; t++ {
			m := meanDist.Rand()
			means[v][t] = m
			secondMoments[v][t] = m * m * spread.Rand()
		}
	}

	return &ServiceTimes{
		vehicleNumber:     vehicleNumber,
		informationNumber: informationNumber,
		means:             means,
		secondMoments:     secondMoments,
	}, nil
}

// NewFixedServiceTimes returns service time statistics with the same
// mean and second moment for every vehicle and type
func NewFixedServiceTimes(vehicleNumber, informationNumber int,
	mean, secondMoment float64) (*ServiceTimes, error) {
	if mean <= 0 || secondMoment <= 0 {
		return nil, fmt.Errorf("newfixedservicetimes: service time " +
			"statistics must be > 0")
	}

	means := make([][]float64, vehicleNumber)
	secondMoments := make([][]float64, vehicleNumber)
	for v := 0; v < vehicleNumber; v++ {
		means[v] = make([]float64, informationNumber)
		secondMoments[v] = make([]float64, informationNumber)
		for t := 0; t < informationNumber; t++ {
			means[v][t] = mean
			secondMoments[v][t] = secondMoment
		}
	}

	return &ServiceTimes{
		vehicleNumber:     vehicleNumber,
		informationNumber: informationNumber,
		means:             means,
		secondMoments:     secondMoments,
	}, nil
}

// Mean returns the mean service time of one upload of the given
// information type by the given vehicle
func (s *ServiceTimes) Mean(vehicleNo, informationType int) (float64, error) {
	if err := s.check(vehicleNo, informationType); err != nil {
		return 0, fmt.Errorf("mean: %v", err)
	}
	return s.means[vehicleNo][informationType], nil
}

// SecondMoment returns the second moment of the service time of one
// upload of the given information type by the given vehicle
func (s *ServiceTimes) SecondMoment(vehicleNo,
	informationType int) (float64, error) {
	if err := s.check(vehicleNo, informationType); err != nil {
		return 0, fmt.Errorf("secondmoment: %v", err)
	}
	return s.secondMoments[vehicleNo][informationType], nil
}

func (s *ServiceTimes) check(vehicleNo, informationType int) error {
	if vehicleNo < 0 || vehicleNo >= s.vehicleNumber {
		return fmt.Errorf("no vehicle %v", vehicleNo)
	}
	if informationType < 0 || informationType >= s.informationNumber {
		return fmt.Errorf("no information type %v", informationType)
	}
	return nil
}
