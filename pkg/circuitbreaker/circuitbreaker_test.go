package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := New("test",
		WithFailureThreshold(2),
		WithSuccessThreshold(1),
		WithTimeout(time.Minute),
		WithClock(clock.now),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), boom)
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)

	clock.t = clock.t.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	ignored := errors.New("client error")
	cb := New("test", WithFailureThreshold(1), WithIsFailure(func(err error) bool {
		return !errors.Is(err, ignored)
	}))

	_ = cb.Execute(context.Background(), func(context.Context) error { return ignored })
	assert.Equal(t, StateClosed, cb.State())
}
