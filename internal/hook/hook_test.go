package hook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qb20nh/duckhunt/internal/event"
)

func TestSimulatedDeliversToSink(t *testing.T) {
	var got []event.KeyEvent
	h := NewSimulated(func(ev event.KeyEvent) {
		got = append(got, ev)
	})

	require.NoError(t, h.Start(context.Background()))

	base := time.Now()
	h.Inject(base, false)
	h.Inject(base.Add(10*time.Millisecond), true)

	require.Len(t, got, 2)
	assert.False(t, got[0].Synthetic)
	assert.True(t, got[1].Synthetic)
}

func TestSimulatedDropsWhenStopped(t *testing.T) {
	var got int
	h := NewSimulated(func(event.KeyEvent) { got++ })

	h.Inject(time.Now(), false)
	assert.Zero(t, got, "not started yet")

	require.NoError(t, h.Start(context.Background()))
	h.Inject(time.Now(), false)
	require.NoError(t, h.Stop())
	h.Inject(time.Now(), false)

	assert.Equal(t, 1, got)
}

func TestSimulatedDoubleStart(t *testing.T) {
	h := NewSimulated(nil)
	require.NoError(t, h.Start(context.Background()))
	assert.ErrorIs(t, h.Start(context.Background()), ErrAlreadyRunning)
}

func TestSimulatedInjectBurst(t *testing.T) {
	var got []event.KeyEvent
	h := NewSimulated(func(ev event.KeyEvent) { got = append(got, ev) })
	require.NoError(t, h.Start(context.Background()))

	base := time.Now()
	h.InjectBurst(base, 10, 5*time.Millisecond)

	require.Len(t, got, 10)
	assert.Equal(t, 5*time.Millisecond, got[1].Timestamp.Sub(got[0].Timestamp))
}
