package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init() // second call must not panic on duplicate registration
	if PollCycles == nil || RecordingsStarted == nil || CircuitOpenGauge == nil {
		t.Fatal("metrics not initialized")
	}
}

func TestSetLiveAndCircuit(t *testing.T) {
	Init()
	SetLive(TwitchLiveGauge, true)
	SetLive(TwitchLiveGauge, false)
	SetLive(nil, true) // nil gauge is tolerated
	UpdateCircuitGauge(true)
	UpdateCircuitGauge(false)
}

func TestAddBytes(t *testing.T) {
	Init()
	AddBytes(1024)
	AddBytes(0)  // no-op
	AddBytes(-1) // negative is ignored; counters cannot decrease
}

func TestTimeFunc(t *testing.T) {
	d := TimeFunc(nil, func() { time.Sleep(5 * time.Millisecond) })
	if d < 5*time.Millisecond {
		t.Errorf("TimeFunc duration = %s, want >= 5ms", d)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty ctx) = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
