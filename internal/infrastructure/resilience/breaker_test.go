package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3})

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Do(func() error { return nil }))
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		assert.Equal(t, errBoom, b.Do(func() error { return errBoom }))
	}

	assert.Equal(t, StateOpen, b.State())

	// Rejected without running the function.
	ran := false
	err := b.Do(func() error { ran = true; return nil })
	assert.Equal(t, ErrOpen, err)
	assert.False(t, ran)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, Cooldown: time.Minute})

	_ = b.Do(func() error { return errBoom })
	_ = b.Do(func() error { return errBoom })
	require.NoError(t, b.Do(func() error { return nil }))
	_ = b.Do(func() error { return errBoom })
	_ = b.Do(func() error { return errBoom })

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := New("test", Config{
		FailureThreshold: 2,
		Cooldown:         20 * time.Millisecond,
		HalfOpenMax:      2,
	})

	_ = b.Do(func() error { return errBoom })
	_ = b.Do(func() error { return errBoom })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Do(func() error { return nil }))
	require.NoError(t, b.Do(func() error { return nil }))

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := New("test", Config{
		FailureThreshold: 1,
		Cooldown:         20 * time.Millisecond,
	})

	_ = b.Do(func() error { return errBoom })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, errBoom, b.Do(func() error { return errBoom }))

	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	b := New("test", Config{
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
		HalfOpenMax:      1,
	})

	_ = b.Do(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	// The single probe slot is taken; further calls are rejected.
	err := b.Do(func() error { return nil })
	assert.Equal(t, ErrOpen, err)
	close(release)
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string

	b := New("test", Config{
		FailureThreshold: 2,
		Cooldown:         10 * time.Millisecond,
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = b.Do(func() error { return errBoom })
	_ = b.Do(func() error { return errBoom })

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	assert.Contains(t, transitions, "closed->open")
	assert.Contains(t, transitions, "open->half-open")
}
