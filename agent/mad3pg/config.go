// Package mad3pg implements a multi-agent distributional deep
// deterministic policy gradient agent for vehicular network sensing
// and offloading. One policy/critic pair is shared by all vehicles
// and a second pair controls the edge node; critics are centralized
// over the joint action, policies act on local observations only.
package mad3pg

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/neardws/aovrl/initwfn"
	"github.com/neardws/aovrl/solver"
)

// Config holds the hyperparameters of a MAD3PG agent
type Config struct {
	// Value distribution support
	Atoms int
	VMin  float64
	VMax  float64

	// Discount applied to the bootstrapped value distribution, on top
	// of the per-transition discount stored in replay
	Discount float64

	// Replay buffer
	BatchSize         int
	MinReplayCapacity int
	MaxReplayCapacity int

	// Learner steps between hard target network syncs
	TargetUpdatePeriod int

	// Hidden layer sizes. Observation networks embed observations
	// into ObservationEmbedding features before the policy and critic
	// heads consume them.
	ObservationHidden    []int
	ObservationEmbedding int
	PolicyHidden         []int
	CriticHidden         []int

	PolicyLearningRate float64
	CriticLearningRate float64

	// Elementwise clipping of the action-value gradient in the
	// deterministic policy gradient, and global norm clipping of each
	// gradient group before the solver applies it
	DQDAClipping    float64
	MaxGradientNorm float64

	// Standard deviation of the exploration noise added by the actor
	ExplorationSigma float64

	Init *initwfn.InitWFn

	Seed uint64
}

// DefaultConfig returns a Config with the default hyperparameters
func DefaultConfig() (Config, error) {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		return Config{}, fmt.Errorf("defaultconfig: %v", err)
	}

	return Config{
		Atoms:    51,
		VMin:     -150.0,
		VMax:     150.0,
		Discount: 0.996,

		BatchSize:         256,
		MinReplayCapacity: 1000,
		MaxReplayCapacity: 1000000,

		TargetUpdatePeriod: 100,

		ObservationHidden:    []int{256},
		ObservationEmbedding: 128,
		PolicyHidden:         []int{256, 256},
		CriticHidden:         []int{512, 256},

		PolicyLearningRate: 1e-4,
		CriticLearningRate: 1e-4,

		DQDAClipping:    1.0,
		MaxGradientNorm: 40.0,

		ExplorationSigma: 0.3,

		Init: init,
	}, nil
}

// LoadConfig reads hyperparameters from a JSON file. Fields absent
// from the file keep their DefaultConfig values; the weight
// initializer is selected by its registered type name.
func LoadConfig(path string) (Config, error) {
	conf, err := DefaultConfig()
	if err != nil {
		return Config{}, fmt.Errorf("loadconfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("loadconfig: %v", err)
	}
	if err := json.Unmarshal(data, &conf); err != nil {
		return Config{}, fmt.Errorf("loadconfig: %v", err)
	}
	if err := conf.Validate(); err != nil {
		return Config{}, fmt.Errorf("loadconfig: %v", err)
	}
	return conf, nil
}

// Validate returns an error describing the first invalid
// hyperparameter found
func (c Config) Validate() error {
	if c.Atoms < 2 {
		return fmt.Errorf("config: atoms must be > 1, got %v", c.Atoms)
	}
	if c.VMax <= c.VMin {
		return fmt.Errorf("config: vMax (%v) must be > vMin (%v)", c.VMax,
			c.VMin)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("config: discount must be in [0, 1], got %v",
			c.Discount)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("config: batch size must be > 0, got %v",
			c.BatchSize)
	}
	if c.TargetUpdatePeriod < 1 {
		return fmt.Errorf("config: target update period must be > 0, got %v",
			c.TargetUpdatePeriod)
	}
	if c.ObservationEmbedding < 1 {
		return fmt.Errorf("config: observation embedding must be > 0, got %v",
			c.ObservationEmbedding)
	}
	if c.PolicyLearningRate <= 0 || c.CriticLearningRate <= 0 {
		return fmt.Errorf("config: learning rates must be > 0")
	}
	if c.MaxGradientNorm <= 0 {
		return fmt.Errorf("config: max gradient norm must be > 0, got %v",
			c.MaxGradientNorm)
	}
	if c.Init == nil {
		return fmt.Errorf("config: no weight initializer")
	}
	return nil
}

// newSolvers returns the policy and critic solvers described by the
// Config
func (c Config) newSolvers() (policy, critic *solver.Solver, err error) {
	policy, err = solver.NewDefaultAdam(c.PolicyLearningRate, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("newsolvers: %v", err)
	}
	critic, err = solver.NewDefaultAdam(c.CriticLearningRate, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("newsolvers: %v", err)
	}
	return policy, critic, nil
}
