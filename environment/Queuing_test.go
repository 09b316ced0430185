package environment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queuingFixture builds a vehicle with three information slots, a
// catalog of ten types, and fixed service time statistics so that the
// queuing delays have closed-form values.
func queuingFixture(t *testing.T) (*Vehicle, *InformationList,
	*ServiceTimes) {
	t.Helper()

	trajectory, err := NewTrajectory([]Location{{X: 0, Y: 0}})
	require.NoError(t, err)

	vehicle, err := NewVehicle(0, trajectory, 10, 3, 42)
	require.NoError(t, err)

	informationList, err := NewInformationList(10, 42, 100, 1000, 1, 5)
	require.NoError(t, err)

	serviceTimes, err := NewFixedServiceTimes(1, 10, 0.1, 0.02)
	require.NoError(t, err)

	return vehicle, informationList, serviceTimes
}

func TestQueuingTimesMatchPollaczekKhinchine(t *testing.T) {
	vehicle, informationList, serviceTimes := queuingFixture(t)

	action := VehicleAction{
		ActionTime:          3.3,
		SensedInformation:   []int{1, 1, 1},
		SensingFrequencies:  []float64{2, 1, 4},
		UploadingPriorities: []float64{3, 1, 2},
		TransmissionPower:   100,
	}

	queuing, err := NewSensingAndQueuing(vehicle, action, informationList,
		serviceTimes)
	require.NoError(t, err)

	// The queue serves slots in descending priority: slot 0, slot 2,
	// slot 1. With E[S] = 0.1 and E[S²] = 0.02 for every type:
	//
	//	slot 0: head of line, waits 0
	//	slot 2: ρ = 0.6, τ = 0.12, W = 2.5*(0.1 + 0.15) - 0.1 = 0.525
	//	slot 1: ρ = 0.7, τ = 0.14, W = (1/0.3)*(1/3) - 0.1 = 91/90
	wait := queuing.QueuingTimes()
	require.Len(t, wait, 3)
	assert.Equal(t, 0.0, wait[0])
	assert.InDelta(t, 91.0/90.0, wait[1], 1e-9)
	assert.InDelta(t, 0.525, wait[2], 1e-9)
}

func TestQueuingTimesGrowWithRank(t *testing.T) {
	vehicle, informationList, serviceTimes := queuingFixture(t)

	// Identical frequencies and service statistics across slots, so the
	// delay depends on queue rank alone
	action := VehicleAction{
		ActionTime:          3.3,
		SensedInformation:   []int{1, 1, 1},
		SensingFrequencies:  []float64{1, 1, 1},
		UploadingPriorities: []float64{3, 2, 1},
		TransmissionPower:   100,
	}

	queuing, err := NewSensingAndQueuing(vehicle, action, informationList,
		serviceTimes)
	require.NoError(t, err)

	wait := queuing.QueuingTimes()
	require.Len(t, wait, 3)
	assert.Equal(t, 0.0, wait[0])
	assert.Greater(t, wait[1], wait[0])
	assert.Greater(t, wait[2], wait[1])
}

func TestQueuingArrivalMoments(t *testing.T) {
	vehicle, informationList, serviceTimes := queuingFixture(t)

	action := VehicleAction{
		ActionTime:          3.3,
		SensedInformation:   []int{1, 1, 1},
		SensingFrequencies:  []float64{2, 1, 4},
		UploadingPriorities: []float64{3, 1, 2},
		TransmissionPower:   100,
	}

	queuing, err := NewSensingAndQueuing(vehicle, action, informationList,
		serviceTimes)
	require.NoError(t, err)

	intervals := queuing.ArrivalIntervals()
	assert.InDeltaSlice(t, []float64{0.5, 1.0, 0.25}, intervals, 1e-12)

	// The most recent sample is the last full sensing period before
	// the action time
	moments := queuing.ArrivalMoments()
	assert.InDeltaSlice(t, []float64{3.0, 3.0, 3.25}, moments, 1e-12)
}

func TestQueuingUpdatingMomentsAlignWithSourceIntervals(t *testing.T) {
	vehicle, informationList, serviceTimes := queuingFixture(t)

	action := VehicleAction{
		ActionTime:          17.9,
		SensedInformation:   []int{1, 1, 1},
		SensingFrequencies:  []float64{0.7, 1.3, 2.1},
		UploadingPriorities: []float64{1, 2, 3},
		TransmissionPower:   100,
	}

	queuing, err := NewSensingAndQueuing(vehicle, action, informationList,
		serviceTimes)
	require.NoError(t, err)

	arrivals := queuing.ArrivalMoments()
	updates := queuing.UpdatingMoments()
	for slot, informationType := range queuing.SensedTypes() {
		interval, err := informationList.UpdateIntervalByType(informationType)
		require.NoError(t, err)

		// The source refreshed at the last multiple of its update
		// interval before the sample arrived
		assert.LessOrEqual(t, updates[slot], arrivals[slot])
		assert.Greater(t, updates[slot]+float64(interval), arrivals[slot])
	}
}

func TestQueuingSkipsUnsensedSlots(t *testing.T) {
	vehicle, informationList, serviceTimes := queuingFixture(t)

	action := VehicleAction{
		ActionTime:          3.3,
		SensedInformation:   []int{1, 0, 1},
		SensingFrequencies:  []float64{2, 0, 4},
		UploadingPriorities: []float64{3, 1, 2},
		TransmissionPower:   100,
	}

	queuing, err := NewSensingAndQueuing(vehicle, action, informationList,
		serviceTimes)
	require.NoError(t, err)

	assert.Equal(t, -1, queuing.SensedTypes()[1])
	assert.Equal(t, 0.0, queuing.ArrivalIntervals()[1])
	assert.Equal(t, 0.0, queuing.ArrivalMoments()[1])
	assert.Equal(t, 0.0, queuing.QueuingTimes()[1])
}

func TestQueuingUnstableQueue(t *testing.T) {
	vehicle, informationList, serviceTimes := queuingFixture(t)

	// ρ = (2 + 9 + 4) * 0.1 = 1.5 across the full queue
	action := VehicleAction{
		ActionTime:          3.3,
		SensedInformation:   []int{1, 1, 1},
		SensingFrequencies:  []float64{2, 9, 4},
		UploadingPriorities: []float64{3, 1, 2},
		TransmissionPower:   100,
	}

	_, err := NewSensingAndQueuing(vehicle, action, informationList,
		serviceTimes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnstableQueue))
}

func TestQueuingRejectsInvalidActions(t *testing.T) {
	vehicle, informationList, serviceTimes := queuingFixture(t)

	invalid := []VehicleAction{
		// wrong bitmask length
		{
			ActionTime:          1,
			SensedInformation:   []int{1, 1},
			SensingFrequencies:  []float64{1, 1, 1},
			UploadingPriorities: []float64{1, 2, 3},
			TransmissionPower:   100,
		},
		// sensed slot without a sensing frequency
		{
			ActionTime:          1,
			SensedInformation:   []int{1, 1, 1},
			SensingFrequencies:  []float64{1, 0, 1},
			UploadingPriorities: []float64{1, 2, 3},
			TransmissionPower:   100,
		},
		// non-positive transmission power
		{
			ActionTime:          1,
			SensedInformation:   []int{1, 1, 1},
			SensingFrequencies:  []float64{1, 1, 1},
			UploadingPriorities: []float64{1, 2, 3},
			TransmissionPower:   0,
		},
	}

	for _, action := range invalid {
		_, err := NewSensingAndQueuing(vehicle, action, informationList,
			serviceTimes)
		assert.Error(t, err)
	}
}
