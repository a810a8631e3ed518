package sequence

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry(testOptions(), nil, zap.NewNop())

	s := reg.Create()
	got, err := reg.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, reg.Count())

	snap := s.Snapshot()
	assert.Equal(t, StateEmpty, snap.State)
	assert.Equal(t, "discharge_log", snap.Logging.Filename)
	assert.Equal(t, 5, snap.Logging.PollingIntervalS)

	require.NoError(t, reg.Delete(s.ID()))
	_, err = reg.Get(s.ID())
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.True(t, errors.As(reg.Delete(uuid.New()), &nf))
}

func TestRegistrySweep(t *testing.T) {
	opts := testOptions()
	opts.SessionTTL = time.Minute
	reg := NewRegistry(opts, nil, zap.NewNop())

	reg.Create()
	reg.Create()

	assert.Zero(t, reg.Sweep(time.Now()))
	assert.Equal(t, 2, reg.Sweep(time.Now().Add(2*time.Minute)))
	assert.Zero(t, reg.Count())
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(testOptions(), nil, zap.NewNop())
	a := reg.Create()
	b := reg.Create()
	_, err := b.SelectDevice(cycler2)
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID(), list[0].ID)
	assert.Equal(t, b.ID(), list[1].ID)
}
