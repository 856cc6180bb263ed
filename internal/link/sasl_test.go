package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMechanism struct {
	startComplete bool
	stepComplete  bool
	encodeCalled  bool
}

func (f *fakeMechanism) Name() string { return "FAKE" }

func (f *fakeMechanism) ServerStart(clientIn []byte) ([]byte, bool, error) {
	return []byte("foo"), f.startComplete, nil
}

func (f *fakeMechanism) ServerStep(clientIn []byte) ([]byte, bool, error) {
	return []byte("foo"), f.stepComplete, nil
}

func (f *fakeMechanism) Encode(p []byte) ([]byte, error) {
	f.encodeCalled = true
	return p, nil
}

func (f *fakeMechanism) Decode(p []byte) ([]byte, error) {
	return p, nil
}

// Scenario 6: listmech before server_start, no encode before server_start
// has succeeded.
func TestNegotiator_EncodeBeforeStartIsRejected(t *testing.T) {
	n := NewNegotiator()
	_, err := n.Encode([]byte("x"))
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestNegotiator_StartBeforeListMechsIsRejected(t *testing.T) {
	n := NewNegotiator()
	_, _, err := n.Start(&fakeMechanism{}, nil)
	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestNegotiator_StepBeforeStartIsRejected(t *testing.T) {
	n := NewNegotiator()
	_, err := n.ListMechs("(", ",", ")", []string{"ONE", "TWO", "THREE"})
	require.NoError(t, err)
	_, _, err = n.Step(nil)
	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestNegotiator_FullHandshakeMultiStep(t *testing.T) {
	n := NewNegotiator()
	list, err := n.ListMechs("(", ",", ")", []string{"ONE", "TWO", "THREE"})
	require.NoError(t, err)
	assert.Equal(t, "(ONE,TWO,THREE)", list)

	mech := &fakeMechanism{startComplete: false, stepComplete: true}
	out, complete, err := n.Start(mech, []byte("client-init"))
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, []byte("foo"), out)
	assert.False(t, n.Authenticated())

	_, err = n.Encode([]byte("early"))
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	out, complete, err = n.Step([]byte("client-step"))
	require.NoError(t, err)
	assert.True(t, complete)
	assert.True(t, n.Authenticated())

	encoded, err := n.Encode([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), encoded)
	assert.True(t, mech.encodeCalled)
}

func TestNegotiator_StartCanCompleteImmediately(t *testing.T) {
	n := NewNegotiator()
	_, err := n.ListMechs("", ",", "", []string{"ANONYMOUS"})
	require.NoError(t, err)

	mech := &fakeMechanism{startComplete: true}
	_, complete, err := n.Start(mech, nil)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.True(t, n.Authenticated())

	_, _, err = n.Step(nil)
	assert.ErrorIs(t, err, ErrOutOfOrder)
}

func TestNegotiator_ListMechsCalledTwiceIsRejected(t *testing.T) {
	n := NewNegotiator()
	_, err := n.ListMechs("", ",", "", []string{"ONE"})
	require.NoError(t, err)
	_, err = n.ListMechs("", ",", "", []string{"ONE"})
	assert.ErrorIs(t, err, ErrOutOfOrder)
}
