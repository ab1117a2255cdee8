package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type openSet map[string]bool

func (o openSet) IsOpen(name string) bool { return o[name] }

func TestObserveUpdatesEMAs(t *testing.T) {
	m := NewMonitor(0.8, nil)

	m.Observe("p", true, 100*time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, m.Latency("p"), "first observation seeds the latency EMA")

	// alpha=0.3: 0.3*200ms + 0.7*100ms = 130ms
	m.Observe("p", true, 200*time.Millisecond)
	assert.InDelta(t, float64(130*time.Millisecond), float64(m.Latency("p")), float64(time.Millisecond))
}

func TestSuccessEMADecaysSlowly(t *testing.T) {
	m := NewMonitor(0.8, nil)

	// One failure from optimistic start: 0.1*0 + 0.9*1.0 = 0.9.
	m.Observe("p", false, time.Millisecond)
	assert.InDelta(t, 0.9, m.SuccessRate("p"), 0.001)
	assert.True(t, m.Healthy("p"))

	// Sustained failures cross the threshold.
	for i := 0; i < 10; i++ {
		m.Observe("p", false, time.Millisecond)
	}
	assert.Less(t, m.SuccessRate("p"), 0.8)
	assert.False(t, m.Healthy("p"))
}

func TestOpenBreakerMakesUnhealthy(t *testing.T) {
	m := NewMonitor(0.8, openSet{"p": true})

	m.Observe("p", true, time.Millisecond)
	assert.False(t, m.Healthy("p"), "an open breaker is unhealthy regardless of EMA")
}

func TestInFlightGauge(t *testing.T) {
	m := NewMonitor(0.8, nil)

	release1 := m.Acquire("p")
	release2 := m.Acquire("p")
	assert.EqualValues(t, 2, m.InFlight("p"))

	release1()
	assert.EqualValues(t, 1, m.InFlight("p"))
	release2()
	assert.EqualValues(t, 0, m.InFlight("p"))
}

func TestUnknownProviderStartsOptimistic(t *testing.T) {
	m := NewMonitor(0.8, nil)
	assert.True(t, m.Healthy("never-seen"))
	assert.EqualValues(t, 1.0, m.SuccessRate("never-seen"))
}

func TestSnapshotListsAllProviders(t *testing.T) {
	m := NewMonitor(0.8, nil)
	m.Observe("a", true, 10*time.Millisecond)
	m.Observe("b", false, 20*time.Millisecond)

	snap := m.Snapshot()
	assert.Len(t, snap, 2)
}
