package resilience

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker(threshold int, cooldown time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	b := NewBreaker("query1.finance.yahoo.com", BreakerConfig{FailureThreshold: threshold, Cooldown: cooldown})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := testBreaker(3, time.Minute)
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.Record(true)
	}
	assert.Equal(t, CircuitClosed, b.State())

	require.NoError(t, b.Allow())
	b.Record(true)
	assert.Equal(t, CircuitOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
	assert.Equal(t, int64(1), b.Rejected())
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b, _ := testBreaker(2, time.Minute)
	b.Record(true)
	b.Record(false)
	b.Record(true)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, now := testBreaker(1, time.Minute)
	b.Record(true)
	require.Equal(t, CircuitOpen, b.State())

	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow(), "cooldown elapsed admits a probe")
	assert.Equal(t, CircuitHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen, "only one probe at a time")

	b.Record(true)
	assert.Equal(t, CircuitOpen, b.State(), "failed probe reopens")

	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	b.Record(false)
	assert.Equal(t, CircuitClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerDisabled(t *testing.T) {
	b, _ := testBreaker(0, 0)
	for i := 0; i < 100; i++ {
		b.Record(true)
	}
	assert.NoError(t, b.Allow())

	var nilBreaker *Breaker
	assert.NoError(t, nilBreaker.Allow())
	nilBreaker.Record(true)
}

func TestRegistryPerKey(t *testing.T) {
	r := NewRegistry(BreakerConfig{FailureThreshold: 1})
	a := r.Get("a.test")
	assert.Same(t, a, r.Get("a.test"))
	a.Record(true)
	assert.Equal(t, []string{"a.test"}, r.Open())
	assert.NoError(t, r.Get("b.test").Allow())
}

func TestProperty_BreakerNeverOpensBelowThreshold(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("runs shorter than the threshold keep the circuit closed", prop.ForAll(
		func(outcomes []bool) bool {
			b, _ := testBreaker(4, time.Minute)
			run := 0
			for _, failed := range outcomes {
				if failed && run == 3 {
					// next failure would trip; record a success instead
					failed = false
				}
				if failed {
					run++
				} else {
					run = 0
				}
				b.Record(failed)
				if b.State() != CircuitClosed {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
