package mad3pg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neardws/aovrl/initwfn"
)

func TestDefaultConfigIsValid(t *testing.T) {
	conf, err := DefaultConfig()
	require.NoError(t, err)
	assert.NoError(t, conf.Validate())
}

func TestConfigValidateRejectsBadHyperparameters(t *testing.T) {
	conf, err := DefaultConfig()
	require.NoError(t, err)

	badAtoms := conf
	badAtoms.Atoms = 1
	assert.Error(t, badAtoms.Validate())

	badSupport := conf
	badSupport.VMin, badSupport.VMax = 10, -10
	assert.Error(t, badSupport.Validate())

	badDiscount := conf
	badDiscount.Discount = 1.5
	assert.Error(t, badDiscount.Validate())

	badBatch := conf
	badBatch.BatchSize = 0
	assert.Error(t, badBatch.Validate())

	badPeriod := conf
	badPeriod.TargetUpdatePeriod = 0
	assert.Error(t, badPeriod.Validate())
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")
	data := `{
		"Atoms": 31,
		"BatchSize": 64,
		"Init": {"Type": "Gaussian", "Config": {"Mean": 0, "StdDev": 0.1}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	conf, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 31, conf.Atoms)
	assert.Equal(t, 64, conf.BatchSize)
	assert.Equal(t, initwfn.Gaussian, conf.Init.Type)

	// Fields absent from the file keep their defaults
	defaults, err := DefaultConfig()
	require.NoError(t, err)
	assert.Equal(t, defaults.TargetUpdatePeriod, conf.TargetUpdatePeriod)
	assert.Equal(t, defaults.Discount, conf.Discount)
}

func TestLoadConfigRejectsInvalidHyperparameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Atoms": 1}`), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestDimensionsJointActionSize(t *testing.T) {
	dims := Dimensions{
		VehicleNumber:          4,
		VehicleObservationSize: 8,
		EdgeObservationSize:    15,
		VehicleActionSize:      11,
		EdgeActionSize:         4,
	}
	require.NoError(t, dims.Validate())
	assert.Equal(t, 48, dims.JointActionSize())
}

func TestDimensionsValidate(t *testing.T) {
	valid := Dimensions{
		VehicleNumber:          2,
		VehicleObservationSize: 3,
		EdgeObservationSize:    4,
		VehicleActionSize:      5,
		EdgeActionSize:         2,
	}
	require.NoError(t, valid.Validate())

	noVehicles := valid
	noVehicles.VehicleNumber = 0
	assert.Error(t, noVehicles.Validate())

	noObservations := valid
	noObservations.EdgeObservationSize = 0
	assert.Error(t, noObservations.Validate())

	noActions := valid
	noActions.VehicleActionSize = 0
	assert.Error(t, noActions.Validate())
}
