package handler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/flowcore/internal/domain"
	"github.com/mrz1836/flowcore/internal/handler"
)

type stubHandler struct{}

func (stubHandler) Handle(_ context.Context, _ handler.TaskContext, _ map[string]domain.HandlerResult, _ *domain.Step) (domain.HandlerResult, error) {
	return domain.HandlerResult{}, nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := handler.NewRegistry()
	require.NoError(t, r.Register("charge_card", stubHandler{}))

	h, ok := r.Lookup("charge_card")
	require.True(t, ok)
	assert.NotNil(t, h)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistry_RejectsDuplicateName(t *testing.T) {
	t.Parallel()

	r := handler.NewRegistry()
	require.NoError(t, r.Register("charge_card", stubHandler{}))

	err := r.Register("charge_card", stubHandler{})
	require.ErrorIs(t, err, handler.ErrDuplicateHandlerName)
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	r := handler.NewRegistry()
	require.NoError(t, r.Register("b", stubHandler{}))
	require.NoError(t, r.Register("a", stubHandler{}))

	assert.Equal(t, []string{"a", "b"}, r.Names())
}
