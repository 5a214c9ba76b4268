package firmware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNullEntity(t *testing.T) {
	e, err := Build("null", nil)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, YieldIdle, e.Step(0, 0).Reason)
}

func TestBuildUnknownNodeTypeErrors(t *testing.T) {
	_, err := Build("does-not-exist", nil)
	require.Error(t, err)
}

func TestRegisterReplacesExistingFactory(t *testing.T) {
	first := 0
	Register("test-type", func(any) (Entity, error) {
		first++
		return NewNullEntity(), nil
	})
	calls := 0
	Register("test-type", func(any) (Entity, error) {
		calls++
		return NewNullEntity(), nil
	})

	_, err := Build("test-type", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, first)
}
