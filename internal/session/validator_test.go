// ABOUTME: Tests for the background token validator
// ABOUTME: Drives ticks through a fake ticker to check scheduling, guards and expiry signalling

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/compliai/internal/client"
	"github.com/2389/compliai/internal/events"
)

func newTestValidator(t *testing.T, api *fakeAPI, token string) (*Validator, *tickerRecorder, *events.Bus) {
	t.Helper()
	bus := events.NewBus(nil)
	v := NewValidator(api, client.TokenFunc(func() string { return token }), bus, nil)
	rec := &tickerRecorder{}
	v.SetTickerFactory(rec.factory)
	t.Cleanup(v.Stop)
	return v, rec, bus
}

func TestValidator_ValidatesImmediatelyThenOnEachTick(t *testing.T) {
	api := newFakeAPI()
	v, rec, _ := newTestValidator(t, api, "tok")

	v.Start(time.Minute)
	require.True(t, v.IsRunning())
	api.waitCall(t)

	require.Equal(t, 1, rec.count())
	assert.Equal(t, time.Minute, rec.intervals[0])

	for i := 0; i < 3; i++ {
		rec.get(0).tick()
		api.waitCall(t)
	}
	assert.Equal(t, 4, api.meCount())
}

func TestValidator_DefaultInterval(t *testing.T) {
	api := newFakeAPI()
	v, rec, _ := newTestValidator(t, api, "tok")

	v.Start(0)
	api.waitCall(t)
	assert.Equal(t, DefaultValidationInterval, rec.intervals[0])
	assert.Equal(t, 5*time.Minute, DefaultValidationInterval)
}

func TestValidator_StartTwiceKeepsOneTimer(t *testing.T) {
	api := newFakeAPI()
	v, rec, _ := newTestValidator(t, api, "tok")

	v.Start(time.Minute)
	api.waitCall(t)
	require.Eventually(t, func() bool { return !v.validating.Load() }, time.Second, 5*time.Millisecond)
	v.Start(time.Minute)
	api.waitCall(t)

	require.Equal(t, 2, rec.count())
	assert.True(t, v.IsRunning())
	assert.Eventually(t, rec.get(0).isStopped, time.Second, 5*time.Millisecond, "first timer must be released")

	// The replaced timer no longer drives validation.
	rec.get(0).tick()

	const n = 5
	for i := 0; i < n; i++ {
		rec.get(1).tick()
		api.waitCall(t)
	}
	assert.Equal(t, 2+n, api.meCount())
}

func TestValidator_StopIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	v, rec, _ := newTestValidator(t, api, "tok")

	v.Stop()
	assert.False(t, v.IsRunning())

	v.Start(time.Minute)
	api.waitCall(t)
	v.Stop()
	v.Stop()

	assert.False(t, v.IsRunning())
	assert.Eventually(t, rec.get(0).isStopped, time.Second, 5*time.Millisecond)
}

func TestValidator_SkipsWithoutCredential(t *testing.T) {
	api := newFakeAPI()
	v, _, _ := newTestValidator(t, api, "")

	err := v.Validate(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, 0, api.meCount())
}

func TestValidator_InFlightGuard(t *testing.T) {
	api := newFakeAPI()
	api.meBlock = make(chan struct{})
	v, _, _ := newTestValidator(t, api, "tok")

	done := make(chan error, 1)
	go func() { done <- v.Validate(context.Background()) }()
	api.waitCall(t)

	err := v.Validate(context.Background())
	assert.ErrorIs(t, err, ErrValidationInFlight)
	assert.Equal(t, 1, api.meCount())

	close(api.meBlock)
	require.NoError(t, <-done)

	// Guard released once the call returns.
	require.NoError(t, v.Validate(context.Background()))
	assert.Equal(t, 2, api.meCount())
}

func TestValidator_UnauthorizedEmitsTokenExpired(t *testing.T) {
	api := newFakeAPI()
	api.setMeErr(errUnauthorized)
	v, _, bus := newTestValidator(t, api, "tok-123")

	var got []events.Event
	bus.Subscribe(func(ev events.Event) error {
		got = append(got, ev)
		return nil
	})

	err := v.Validate(context.Background())
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	require.Len(t, got, 1)
	assert.Equal(t, events.KindTokenExpired, got[0].Kind)
	assert.Equal(t, "tok-123", got[0].Payload)
}

func TestValidator_TransientFailureIsNotExpiry(t *testing.T) {
	api := newFakeAPI()
	api.setMeErr(errors.New("dial tcp: connection refused"))
	v, rec, bus := newTestValidator(t, api, "tok")
	log := recordEvents(bus)

	v.Start(time.Minute)
	api.waitCall(t)
	rec.get(0).tick()
	api.waitCall(t)

	assert.True(t, v.IsRunning(), "transient failures keep the timer running")
	assert.Empty(t, log.all())
}

func TestValidator_StopDropsInFlightResult(t *testing.T) {
	api := newFakeAPI()
	api.meBlock = make(chan struct{})
	api.setMeErr(errUnauthorized)
	v, _, bus := newTestValidator(t, api, "tok")
	log := recordEvents(bus)

	v.Start(time.Minute)
	api.waitCall(t)
	v.Stop()

	// The blocked call returns once its context is cancelled.
	assert.Eventually(t, func() bool { return !v.validating.Load() }, time.Second, 5*time.Millisecond)
	assert.Empty(t, log.all())
}
