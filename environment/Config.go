package environment

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config holds every parameter of the vehicular network environment.
// Configs are usually loaded from a YAML file and validated before an
// environment is constructed; an invalid Config is a fatal
// construction-time error.
type Config struct {
	VehicleNumber           int `yaml:"vehicle_number"`
	SensedInformationNumber int `yaml:"sensed_information_number"`

	InformationNumber    int `yaml:"information_number"`
	MaxInformationNumber int `yaml:"max_information_number"`
	ViewNumber           int `yaml:"view_number"`
	ApplicationNumber    int `yaml:"application_number"`
	ViewsPerApplication  int `yaml:"views_per_application"`

	DataSizeLowBound       float64 `yaml:"data_size_low_bound"`
	DataSizeUpBound        float64 `yaml:"data_size_up_bound"`
	UpdateIntervalLowBound int     `yaml:"update_interval_low_bound"`
	UpdateIntervalUpBound  int     `yaml:"update_interval_up_bound"`

	MeanServiceTimeLowBound float64 `yaml:"mean_service_time_low_bound"`
	MeanServiceTimeUpBound  float64 `yaml:"mean_service_time_up_bound"`

	WhiteGaussianNoise            float64 `yaml:"white_gaussian_noise"` // dBm
	MeanChannelFadingGain         float64 `yaml:"mean_channel_fading_gain"`
	SecondMomentChannelFadingGain float64 `yaml:"second_moment_channel_fading_gain"`
	PathLossExponent              float64 `yaml:"path_loss_exponent"`

	EdgeBandwidth float64 `yaml:"edge_bandwidth"` // MHz
	EdgeLocationX float64 `yaml:"edge_location_x"`
	EdgeLocationY float64 `yaml:"edge_location_y"`
	MapWidth      float64 `yaml:"map_width"` // meters

	EpisodeLength int `yaml:"episode_length"` // seconds

	Seed         uint64   `yaml:"seed"`
	VehicleSeeds []uint64 `yaml:"vehicle_seeds"`
	ViewSeeds    []uint64 `yaml:"view_seeds"`
}

// LoadConfig reads and validates a Config from a YAML file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("loadconfig: %v", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("loadconfig: %v", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("loadconfig: %v", err)
	}
	return c, nil
}

// Validate checks a Config for the fatal configuration errors
func (c Config) Validate() error {
	if c.VehicleNumber <= 0 {
		return fmt.Errorf("validate: vehicle number must be > 0")
	}
	if c.InformationNumber <= 0 {
		return fmt.Errorf("validate: information number must be > 0")
	}
	if c.ViewNumber <= 0 {
		return fmt.Errorf("validate: view number must be > 0")
	}
	if c.SensedInformationNumber <= 0 ||
		c.SensedInformationNumber > c.InformationNumber {
		return fmt.Errorf("validate: sensed information number %v must be "+
			"in [1, %v]", c.SensedInformationNumber, c.InformationNumber)
	}
	if c.ViewsPerApplication != 1 {
		return fmt.Errorf("validate: unsupported views per application %v",
			c.ViewsPerApplication)
	}
	if c.MaxInformationNumber > c.InformationNumber {
		return fmt.Errorf("validate: max information number %v must be <= "+
			"information number %v", c.MaxInformationNumber,
			c.InformationNumber)
	}
	if len(c.VehicleSeeds) != c.VehicleNumber {
		return fmt.Errorf("validate: invalid number of vehicle seeds "+
			"\n\twant(%v)\n\thave(%v)", c.VehicleNumber, len(c.VehicleSeeds))
	}
	if len(c.ViewSeeds) != c.ViewNumber {
		return fmt.Errorf("validate: invalid number of view seeds "+
			"\n\twant(%v)\n\thave(%v)", c.ViewNumber, len(c.ViewSeeds))
	}
	if c.EpisodeLength <= 0 {
		return fmt.Errorf("validate: episode length must be > 0")
	}
	if c.PathLossExponent <= 0 {
		return fmt.Errorf("validate: path loss exponent must be > 0")
	}
	if c.MapWidth <= 0 {
		return fmt.Errorf("validate: map width must be > 0")
	}
	return nil
}

// VehicleObservationSize returns the length of one vehicle's
// observation vector
func (c Config) VehicleObservationSize() int {
	// time, distance to edge, and per-slot type, frequency-normalized
	// age of the slot's information type
	return 2 + 2*c.SensedInformationNumber
}

// EdgeObservationSize returns the length of the edge observation vector
func (c Config) EdgeObservationSize() int {
	return 1 + c.VehicleNumber + c.InformationNumber
}

// VehicleActionSize returns the length of one vehicle's flat action
// vector: action time, per-slot sensed bit, per-slot frequency,
// per-slot priority, and transmission power.
func (c Config) VehicleActionSize() int {
	return 2 + 3*c.SensedInformationNumber
}

// EdgeActionSize returns the length of the edge's flat action vector
func (c Config) EdgeActionSize() int {
	return c.VehicleNumber
}

// JointActionSize returns the length of the joint action vector stored
// in replay
func (c Config) JointActionSize() int {
	return c.VehicleNumber*c.VehicleActionSize() + c.EdgeActionSize()
}
