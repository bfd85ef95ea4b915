package connstate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperion-cluster/hyperion/internal/connstate"
)

func TestFullLifecycle(t *testing.T) {
	m := connstate.New()
	assert.Equal(t, connstate.Absent, m.Current())

	tr, err := m.To(connstate.Pending)
	require.NoError(t, err)
	assert.Equal(t, connstate.Silent, tr)

	tr, err = m.To(connstate.Active)
	require.NoError(t, err)
	assert.Equal(t, connstate.EmitReconnect, tr)

	tr, err = m.To(connstate.Dead)
	require.NoError(t, err)
	assert.Equal(t, connstate.EmitDisconnect, tr)

	tr, err = m.To(connstate.Pending)
	require.NoError(t, err)
	assert.Equal(t, connstate.Silent, tr)
}

func TestInvalidTransitionIsRejected(t *testing.T) {
	m := connstate.New()
	_, err := m.To(connstate.Active)
	require.Error(t, err)
	var ite *connstate.ErrInvalidTransition
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, connstate.Absent, m.Current(), "failed transition must not change state")
}

func TestDeadCannotGoStraightToActive(t *testing.T) {
	m := connstate.New()
	_, _ = m.To(connstate.Pending)
	_, _ = m.To(connstate.Active)
	_, _ = m.To(connstate.Dead)

	_, err := m.To(connstate.Active)
	assert.Error(t, err)
}

func TestStateStringCoversAllVariants(t *testing.T) {
	cases := []struct {
		s    connstate.State
		want string
	}{
		{connstate.Absent, "ABSENT"},
		{connstate.Pending, "PENDING"},
		{connstate.Active, "ACTIVE"},
		{connstate.Dead, "DEAD"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.s.String())
	}
}
