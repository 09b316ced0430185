package environment

import "fmt"

// VehicleAction is one vehicle's per-step decision: how long the action
// lasts, which of the vehicle's information slots are sensed, how often
// each sensed slot is sampled, the uploading priority ranking used to
// order the transmission queue, and the uplink transmission power in mW.
type VehicleAction struct {
	ActionTime          float64
	SensedInformation   []int
	SensingFrequencies  []float64
	UploadingPriorities []float64
	TransmissionPower   float64
}

// Validate checks a VehicleAction against the vehicle it is for.
// Invalid actions are construction-time errors: the sensing bitmask,
// frequency, and priority vectors must all have one entry per vehicle
// information slot, sensed slots need a positive sensing frequency, and
// the transmission power must be positive.
func (a VehicleAction) Validate(v *Vehicle) error {
	n := v.SensedInformationNumber()
	if len(a.SensedInformation) != n {
		return fmt.Errorf("validate: invalid sensed information length "+
			"\n\twant(%v)\n\thave(%v)", n, len(a.SensedInformation))
	}
	if len(a.SensingFrequencies) != n {
		return fmt.Errorf("validate: invalid sensing frequencies length "+
			"\n\twant(%v)\n\thave(%v)", n, len(a.SensingFrequencies))
	}
	if len(a.UploadingPriorities) != n {
		return fmt.Errorf("validate: invalid uploading priorities length "+
			"\n\twant(%v)\n\thave(%v)", n, len(a.UploadingPriorities))
	}
	if a.ActionTime < 0 {
		return fmt.Errorf("validate: action time must be >= 0")
	}
	if a.TransmissionPower <= 0 {
		return fmt.Errorf("validate: transmission power must be > 0")
	}
	for i, sensed := range a.SensedInformation {
		if sensed != 0 && sensed != 1 {
			return fmt.Errorf("validate: sensed information must be 0 or 1 "+
				"at slot %v", i)
		}
		if sensed == 1 && a.SensingFrequencies[i] <= 0 {
			return fmt.Errorf("validate: sensed slot %v has non-positive "+
				"sensing frequency %v", i, a.SensingFrequencies[i])
		}
	}
	return nil
}

// EdgeAction is the edge's per-step decision: the uplink bandwidth in
// MHz allocated to each vehicle.
type EdgeAction struct {
	BandwidthAllocation []float64
}

// Validate checks an EdgeAction against the edge it is for. The
// allocation must have one non-negative entry per vehicle and must not
// exceed the edge's total bandwidth.
func (a EdgeAction) Validate(e *Edge) error {
	if len(a.BandwidthAllocation) != e.VehicleNumber() {
		return fmt.Errorf("validate: invalid bandwidth allocation length "+
			"\n\twant(%v)\n\thave(%v)", e.VehicleNumber(),
			len(a.BandwidthAllocation))
	}

	total := 0.0
	for i, b := range a.BandwidthAllocation {
		if b < 0 {
			return fmt.Errorf("validate: negative bandwidth %v for "+
				"vehicle %v", b, i)
		}
		total += b
	}
	if total > e.Bandwidth() {
		return fmt.Errorf("validate: allocated bandwidth %v exceeds edge "+
			"bandwidth %v", total, e.Bandwidth())
	}
	return nil
}
