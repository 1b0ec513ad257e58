package capture

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_StartReleasesPreviousStream(t *testing.T) {
	p := newFakeProvider()
	s := NewSession(p, nil)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, FacingFront))
	first := s.Stream()
	require.NoError(t, s.Start(ctx, FacingBack))

	assert.False(t, first.Active())
	assert.Equal(t, 1, p.Live())
	assert.Equal(t, FacingBack, s.Facing())
	assert.Equal(t, "Back camera", s.Label())
}

func TestSession_AtMostOneLiveStream(t *testing.T) {
	p := newFakeProvider()
	s := NewSession(p, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		switch rng.Intn(4) {
		case 0:
			_ = s.Start(ctx, FacingFront)
		case 1:
			_ = s.Start(ctx, FacingBack)
		case 2:
			_, _ = s.Switch(ctx)
		case 3:
			s.Stop()
		}
		require.LessOrEqual(t, p.Live(), 1, "iteration %d", i)
	}
	assert.Equal(t, 1, p.maxLive)

	s.Stop()
	s.Stop()
	assert.Equal(t, 0, p.Live())
	assert.False(t, s.Live())
}

func TestSession_SwitchFlipsFacing(t *testing.T) {
	p := newFakeProvider()
	s := NewSession(p, nil, WithLabels(func(f Facing) string {
		if f == FacingBack {
			return "Achterste camera"
		}
		return "Voorste camera"
	}))
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, FacingFront))
	assert.Equal(t, "Voorste camera", s.Label())

	switched, err := s.Switch(ctx)
	require.NoError(t, err)
	assert.True(t, switched)
	assert.Equal(t, FacingBack, s.Facing())
	assert.Equal(t, "Achterste camera", s.Label())
	assert.Equal(t, []Facing{FacingFront, FacingBack}, p.started)
}

func TestSession_SwitchIgnoredWhileRecording(t *testing.T) {
	p := newFakeProvider()
	s := NewSession(p, nil)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, FacingFront))
	stream := s.Stream()
	s.setRecording(true)

	switched, err := s.Switch(ctx)
	require.NoError(t, err)
	assert.False(t, switched)
	assert.Equal(t, FacingFront, s.Facing())
	assert.Same(t, stream, s.Stream())
	assert.True(t, stream.Active())
}

func TestSession_StartFailureLeavesNoStream(t *testing.T) {
	p := newFakeProvider()
	p.fail[FacingBack] = errDenied
	s := NewSession(p, nil)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, FacingFront))
	_, err := s.Switch(ctx)

	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, DeviceUnavailable, de.Kind)
	assert.Equal(t, FacingBack, de.Facing)
	assert.ErrorIs(t, err, errDenied)
	assert.Nil(t, s.Stream())
	assert.Equal(t, 0, p.Live())
}

func TestSession_KeepsTypedDeviceError(t *testing.T) {
	p := newFakeProvider()
	p.fail[FacingFront] = &DeviceError{Kind: DevicePermissionDenied}
	s := NewSession(p, nil)

	err := s.Start(context.Background(), FacingFront)
	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, DevicePermissionDenied, de.Kind)
	assert.Equal(t, FacingFront, de.Facing)
}

func TestParseFacing(t *testing.T) {
	assert.Equal(t, FacingBack, ParseFacing("back"))
	assert.Equal(t, FacingBack, ParseFacing("environment"))
	assert.Equal(t, FacingFront, ParseFacing("user"))
	assert.Equal(t, FacingFront, ParseFacing(""))
	assert.Equal(t, FacingBack, FacingFront.Flip())
	assert.Equal(t, FacingFront, FacingBack.Flip())
}
