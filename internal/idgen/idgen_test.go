package idgen_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/flowcore/internal/idgen"
)

func TestNewTaskID(t *testing.T) {
	t.Parallel()

	id, err := idgen.NewTaskID()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "task-"))

	other, err := idgen.NewTaskID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestNewStepID(t *testing.T) {
	t.Parallel()

	id, err := idgen.NewStepID()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "step-"))
}
