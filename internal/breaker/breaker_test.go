package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 1, CooldownTimeout: 30 * time.Second, HalfOpenMaxInFlight: 1})
	failing := func(ctx context.Context) error { return errors.New("boom") }

	// Two failures: still closed (§8 boundary: exactly 3 opens, 2 does not).
	_ = b.Execute(context.Background(), "content", failing)
	_ = b.Execute(context.Background(), "content", failing)
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 2, b.ConsecutiveFailures())

	err := b.Execute(context.Background(), "content", failing)
	require.Error(t, err)
	assert.Equal(t, Open, b.State())
}

func TestBreaker_OpenRejectsWithoutCallingFn(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, CooldownTimeout: time.Hour, HalfOpenMaxInFlight: 1})
	_ = b.Execute(context.Background(), "quality", func(ctx context.Context) error { return errors.New("fail") })
	require.Equal(t, Open, b.State())

	called := false
	err := b.Execute(context.Background(), "quality", func(ctx context.Context) error {
		called = true
		return nil
	})

	var openErr *OpenError
	assert.ErrorAs(t, err, &openErr)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := New(DefaultConfig())
	_ = b.Execute(context.Background(), "prompt", func(ctx context.Context) error { return errors.New("fail") })
	_ = b.Execute(context.Background(), "prompt", func(ctx context.Context) error { return errors.New("fail") })
	assert.Equal(t, 2, b.ConsecutiveFailures())

	_ = b.Execute(context.Background(), "prompt", func(ctx context.Context) error { return nil })
	assert.Equal(t, 0, b.ConsecutiveFailures())
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, CooldownTimeout: 10 * time.Millisecond, HalfOpenMaxInFlight: 1})
	_ = b.Execute(context.Background(), "constraint", func(ctx context.Context) error { return errors.New("fail") })
	require.Equal(t, Open, b.State())

	time.Sleep(15 * time.Millisecond)

	err := b.Execute(context.Background(), "constraint", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, CooldownTimeout: 10 * time.Millisecond, HalfOpenMaxInFlight: 1})
	_ = b.Execute(context.Background(), "constraint", func(ctx context.Context) error { return errors.New("fail") })
	time.Sleep(15 * time.Millisecond)

	_ = b.Execute(context.Background(), "constraint", func(ctx context.Context) error { return errors.New("fail again") })
	assert.Equal(t, Open, b.State())
}

func TestRegistry_GetIsIdempotentPerDependency(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	a := r.Get("content")
	b := r.Get("content")
	other := r.Get("quality")

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
}
