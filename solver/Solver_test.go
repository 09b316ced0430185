package solver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSolvers(t *testing.T) {
	adam, err := NewDefaultAdam(0.001, 1)
	require.NoError(t, err)
	assert.Equal(t, Adam, adam.Type)
	assert.NotNil(t, adam.Solver)

	vanilla, err := NewVanilla(0.01, 1, -1.0)
	require.NoError(t, err)
	assert.Equal(t, Vanilla, vanilla.Type)
	assert.NotNil(t, vanilla.Solver)

	clipped, err := NewVanilla(0.01, 1, 5.0)
	require.NoError(t, err)
	assert.NotNil(t, clipped.Solver)

	rmsprop, err := NewDefaultRMSProp(0.001, 1)
	require.NoError(t, err)
	assert.Equal(t, RMSProp, rmsprop.Type)
	assert.NotNil(t, rmsprop.Solver)
}

func TestNewRMSPropRejectsNonDefaultEta(t *testing.T) {
	_, err := NewRMSProp(0.001, 1e-8, 0.5, 0.999, 1, -1.0)
	assert.Error(t, err)
}

func TestConfigValidTypes(t *testing.T) {
	assert.True(t, AdamConfig{}.ValidType(Adam))
	assert.False(t, AdamConfig{}.ValidType(Vanilla))
	assert.True(t, VanillaConfig{}.ValidType(Vanilla))
	assert.False(t, VanillaConfig{}.ValidType(RMSProp))
	assert.True(t, RMSPropConfig{}.ValidType(RMSProp))
	assert.False(t, RMSPropConfig{}.ValidType(Adam))
}

func TestSolverUnmarshalJSON(t *testing.T) {
	tests := []struct {
		data     string
		expected Type
	}{
		{`{"Type":"Adam","Config":{"StepSize":0.001,"Epsilon":1e-8,` +
			`"Beta1":0.9,"Beta2":0.999,"Batch":1}}`, Adam},
		{`{"Type":"Vanilla","Config":{"StepSize":0.01,"Batch":1,` +
			`"Clip":-1}}`, Vanilla},
		{`{"Type":"RMSProp","Config":{"StepSize":0.001,"Epsilon":1e-8,` +
			`"Eta":0.001,"Rho":0.999,"Batch":1,"Clip":-1}}`, RMSProp},
	}

	for _, test := range tests {
		var s Solver
		err := json.Unmarshal([]byte(test.data), &s)
		require.NoError(t, err)
		assert.Equal(t, test.expected, s.Type)
		assert.True(t, s.Config.ValidType(test.expected))
		assert.NotNil(t, s.Solver)
	}
}
