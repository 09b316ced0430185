package environment

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrSearchDiverged is returned when the minimum transmission power
// search does not push the success probability under its threshold
// within the iteration cap
var ErrSearchDiverged = errors.New("minimum power search did not converge")

// minPowerMaxIterations caps the monotone 1%-step power search. The
// search has no convergence guarantee of its own: if the success
// probability never drops to the threshold it would otherwise loop
// forever.
const minPowerMaxIterations = 10_000

// fadingSampleSize is the number of Monte-Carlo fading draws used to
// estimate the successful transmission probability
const fadingSampleSize = 100

// ChannelFading draws channel fading gains from a Normal distribution
// with the configured mean and second moment (used as the scale). A
// fresh gain is drawn on every call; gains are never memoized.
type ChannelFading struct {
	dist distuv.Normal
}

// NewChannelFading creates and returns a new ChannelFading model
func NewChannelFading(mean, secondMoment float64,
	seed uint64) (*ChannelFading, error) {
	if secondMoment <= 0 {
		return nil, fmt.Errorf("newchannelfading: second moment must be > 0")
	}
	return &ChannelFading{
		dist: distuv.Normal{
			Mu:    mean,
			Sigma: secondMoment,
			Src:   rand.NewSource(seed),
		},
	}, nil
}

// Rand draws one channel fading gain
func (c *ChannelFading) Rand() float64 {
	return c.dist.Rand()
}

// RandN draws n channel fading gains
func (c *ChannelFading) RandN(n int) []float64 {
	gains := make([]float64, n)
	for i := range gains {
		gains[i] = c.dist.Rand()
	}
	return gains
}

// V2ITransmission converts one vehicle's queued information into uplink
// transmission completion times over the edge's wireless channel.
type V2ITransmission struct {
	vehicleNo               int
	trajectory              *Trajectory
	transmissionPower       float64
	edgeLocation            Location
	sensedInformationNumber int
	sensedInformation       []int
	sensedTypes             []int
	bandwidthAllocation     []float64

	arrivalMoments []float64
	queuingTimes   []float64

	whiteGaussianNoise float64
	fading             *ChannelFading
	pathLossExponent   float64

	transmissionTimes []float64
}

// NewV2ITransmission runs the transmission model for one vehicle. The
// arrival moments and queuing times come from the queuing model;
// bandwidth comes from the edge action. WhiteGaussianNoise is in dBm
// and the transmission power in the vehicle action is in mW.
func NewV2ITransmission(vehicle *Vehicle, action VehicleAction, edge *Edge,
	edgeAction EdgeAction, arrivalMoments, queuingTimes []float64,
	whiteGaussianNoise float64, fading *ChannelFading,
	pathLossExponent float64,
	informationList *InformationList) (*V2ITransmission, error) {
	if err := action.Validate(vehicle); err != nil {
		return nil, fmt.Errorf("newv2itransmission: %v", err)
	}
	if err := edgeAction.Validate(edge); err != nil {
		return nil, fmt.Errorf("newv2itransmission: %v", err)
	}
	n := vehicle.SensedInformationNumber()
	if len(arrivalMoments) != n || len(queuingTimes) != n {
		return nil, fmt.Errorf("newv2itransmission: invalid queuing model "+
			"output length \n\twant(%v)\n\thave(%v, %v)", n,
			len(arrivalMoments), len(queuingTimes))
	}

	sensedTypes, err := vehicle.SensedTypes(action.SensedInformation)
	if err != nil {
		return nil, fmt.Errorf("newv2itransmission: %v", err)
	}

	t := &V2ITransmission{
		vehicleNo:               vehicle.Number(),
		trajectory:              vehicle.Trajectory(),
		transmissionPower:       action.TransmissionPower,
		edgeLocation:            edge.Location(),
		sensedInformationNumber: n,
		sensedInformation:       action.SensedInformation,
		sensedTypes:             sensedTypes,
		bandwidthAllocation:     edgeAction.BandwidthAllocation,
		arrivalMoments:          arrivalMoments,
		queuingTimes:            queuingTimes,
		whiteGaussianNoise:      whiteGaussianNoise,
		fading:                  fading,
		pathLossExponent:        pathLossExponent,
	}

	t.transmissionTimes, err = t.computeTransmissionTimes(informationList)
	if err != nil {
		return nil, fmt.Errorf("newv2itransmission: %v", err)
	}
	return t, nil
}

// TransmissionTimes returns the per-slot transmission times in seconds
func (t *V2ITransmission) TransmissionTimes() []float64 {
	return t.transmissionTimes
}

// computeTransmissionTimes computes the uplink time of each sensed
// slot. The vehicle's position is taken at the floor of the moment the
// slot reaches the head of the queue.
func (t *V2ITransmission) computeTransmissionTimes(
	informationList *InformationList) ([]float64, error) {
	times := make([]float64, t.sensedInformationNumber)
	for i := 0; i < t.sensedInformationNumber; i++ {
		if t.sensedInformation[i] != 1 {
			continue
		}

		startTime := math.Floor(t.arrivalMoments[i] + t.queuingTimes[i])
		location := t.trajectory.LocationAt(startTime)
		distance := location.Distance(t.edgeLocation)

		snr := ComputeSNR(t.whiteGaussianNoise, t.fading.Rand(), distance,
			t.pathLossExponent, t.transmissionPower)
		rate := ComputeTransmissionRate(snr,
			t.bandwidthAllocation[t.vehicleNo])
		if rate == 0 {
			return nil, fmt.Errorf("computetransmissiontimes: zero "+
				"transmission rate for vehicle %v slot %v", t.vehicleNo, i)
		}

		size, err := informationList.DataSizeByType(t.sensedTypes[i])
		if err != nil {
			return nil, err
		}
		times[i] = size / float64(rate)
	}
	return times, nil
}

// ComputeSNR computes the signal to noise ratio of a vehicle
// transmission. The noise is in dBm, the transmission power in mW, the
// distance in meters.
func ComputeSNR(whiteGaussianNoise, channelFadingGain, distance,
	pathLossExponent, transmissionPower float64) float64 {
	return (1.0 / DBmToW(whiteGaussianNoise)) *
		math.Pow(math.Abs(channelFadingGain), 2) *
		(1.0 / math.Pow(distance, pathLossExponent)) *
		MWToW(transmissionPower)
}

// ComputeTransmissionRate computes the Shannon-style throughput of a
// channel in bytes per second, truncated to an integer. Bandwidth is
// in MHz.
func ComputeTransmissionRate(snr, bandwidth float64) int {
	return int(MHzToHz(bandwidth) * math.Log2(1+snr) / 8)
}

// SuccessfulTransmissionProbability estimates, over the given fading
// gain samples, the probability that the SNR meets the target
func SuccessfulTransmissionProbability(whiteGaussianNoise float64,
	channelFadingGains []float64, distance, pathLossExponent,
	transmissionPower, snrTarget float64) float64 {
	successes := 0
	for _, gain := range channelFadingGains {
		snr := ComputeSNR(whiteGaussianNoise, gain, distance,
			pathLossExponent, transmissionPower)
		if snr >= snrTarget {
			successes++
		}
	}
	return float64(successes) / float64(len(channelFadingGains))
}

// MinimumTransmissionPower searches for the smallest transmission power
// whose Monte-Carlo estimated success probability is at most the
// threshold, reducing power by 1% per iteration from the given starting
// power. The search is a discrete monotone walk; it returns
// ErrSearchDiverged (wrapped) if the probability never drops to the
// threshold within the iteration cap.
func MinimumTransmissionPower(whiteGaussianNoise float64,
	fading *ChannelFading, distance, pathLossExponent, transmissionPower,
	snrTarget, probabilityThreshold float64) (float64, error) {
	gains := fading.RandN(fadingSampleSize)

	minimumPower := transmissionPower
	for i := 0; i < minPowerMaxIterations; i++ {
		probability := SuccessfulTransmissionProbability(whiteGaussianNoise,
			gains, distance, pathLossExponent, minimumPower, snrTarget)
		if probability <= probabilityThreshold {
			return minimumPower, nil
		}
		minimumPower -= minimumPower * 0.01
	}

	return 0, fmt.Errorf("minimumtransmissionpower: %v iterations at "+
		"threshold %v: %w", minPowerMaxIterations, probabilityThreshold,
		ErrSearchDiverged)
}

// MHzToHz converts megahertz to hertz
func MHzToHz(mhz float64) float64 {
	return mhz * 1e6
}

// RatioToDB converts a power ratio to decibels
func RatioToDB(ratio float64) float64 {
	return 10 * math.Log10(ratio)
}

// DBToRatio converts decibels to a power ratio
func DBToRatio(db float64) float64 {
	return math.Pow(10, db/10)
}

// DBmToW converts dBm to Watts
func DBmToW(dbm float64) float64 {
	return math.Pow(10, dbm/10) / 1000
}

// WToDBm converts Watts to dBm
func WToDBm(w float64) float64 {
	return 10 * math.Log10(w*1000)
}

// WToMW converts Watts to milliwatts
func WToMW(w float64) float64 {
	return w * 1000
}

// MWToW converts milliwatts to Watts
func MWToW(mw float64) float64 {
	return mw / 1000
}
