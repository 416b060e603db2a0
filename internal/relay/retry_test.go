package relay

import (
	"testing"
	"time"

	"github.com/damaru/doorbell/internal/infrastructure/config"
)

func TestScenario_RetryExhaustedAfterThreeChecks(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	f.transport.deliver(t, "proximity/control", "ping")
	assertState(t, f.c, Online, SensorConnected)
	connectsBefore, _, _ := f.transport.counts()

	f.transport.drop()
	assertState(t, f.c, Offline, SensorUnknown)

	if got := f.scheduler.lastDelay(); got != 3*time.Second {
		t.Errorf("retry delay = %v, want 3s", got)
	}

	for check := 1; check <= 3; check++ {
		if !f.scheduler.fireNext() {
			t.Fatalf("check %d was not scheduled", check)
		}
		assertState(t, f.c, Offline, SensorUnknown)
	}

	if f.scheduler.pending() != 0 {
		t.Errorf("pending checks after exhaustion = %d, want 0", f.scheduler.pending())
	}
	if f.scheduler.fireNext() {
		t.Error("a fourth check was scheduled")
	}

	snap := f.c.Snapshot()
	if snap.Retrying {
		t.Error("Retrying = true after exhaustion")
	}
	if snap.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", snap.RetryAttempts)
	}
	if snap.DeliberateDisconnect {
		t.Error("DeliberateDisconnect = true after involuntary disconnect")
	}

	// One connect on entry plus one after each of the first two failed checks.
	connectsAfter, _, _ := f.transport.counts()
	if got := connectsAfter - connectsBefore; got != 3 {
		t.Errorf("automatic connect requests = %d, want 3", got)
	}

	if f.sink.last() != "status:offline" {
		t.Errorf("last sink call = %q, want status:offline", f.sink.last())
	}
}

func TestRetry_ExplicitConnectAfterExhaustion(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	f.transport.drop()
	for f.scheduler.fireNext() {
	}

	before, _, _ := f.transport.counts()
	f.c.Connect()
	after, _, _ := f.transport.counts()

	if after-before != 1 {
		t.Errorf("Connect() issued %d requests, want 1", after-before)
	}
	if got := f.c.Snapshot().RetryAttempts; got != 0 {
		t.Errorf("RetryAttempts after Connect = %d, want 0", got)
	}

	f.transport.establish()
	assertState(t, f.c, Online, SensorUnknown)
}

func TestRetry_CheckFindsLinkUp(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	f.transport.drop()
	subscribesBefore := f.transport.subscribeCount()

	// The link comes back without a connect callback reaching us first.
	f.transport.setConnected(true)
	f.sink.reset()
	if !f.scheduler.fireNext() {
		t.Fatal("no check scheduled")
	}

	assertState(t, f.c, Online, SensorUnknown)
	if f.transport.subscribeCount() != subscribesBefore+1 {
		t.Error("check did not resubscribe")
	}
	snap := f.c.Snapshot()
	if snap.Retrying || snap.RetryAttempts != 0 {
		t.Errorf("Retrying = %v, RetryAttempts = %d; want stopped and reset", snap.Retrying, snap.RetryAttempts)
	}
	if f.scheduler.pending() != 0 {
		t.Errorf("pending checks = %d, want 0", f.scheduler.pending())
	}
	if got := f.sink.Calls(); len(got) != 1 || got[0] != "status:online" {
		t.Errorf("sink calls = %v, want [status:online]", got)
	}
}

func TestRetry_ConnectCallbackCancelsSequence(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	f.transport.drop()
	f.scheduler.fireNext()

	f.transport.establish()

	snap := f.c.Snapshot()
	if snap.Retrying || snap.RetryAttempts != 0 {
		t.Errorf("Retrying = %v, RetryAttempts = %d; want stopped and reset", snap.Retrying, snap.RetryAttempts)
	}
	if f.scheduler.pending() != 0 {
		t.Errorf("pending checks = %d, want 0", f.scheduler.pending())
	}

	// A check that fires anyway is a no-op.
	before, _, _ := f.transport.counts()
	if n := f.scheduler.fireStopped(); n == 0 {
		t.Fatal("expected a stopped check to fire")
	}
	after, _, _ := f.transport.counts()
	if after != before {
		t.Errorf("stale check issued %d connects", after-before)
	}
	assertState(t, f.c, Online, SensorUnknown)
}

func TestRetry_NewSequenceAfterRecovery(t *testing.T) {
	f := newFixture(t)
	f.online(t)

	f.transport.drop()
	f.scheduler.fireNext()
	f.scheduler.fireNext()
	f.transport.establish()

	f.transport.drop()
	for check := 1; check <= 3; check++ {
		if !f.scheduler.fireNext() {
			t.Fatalf("check %d of the second sequence was not scheduled", check)
		}
	}
	if f.scheduler.fireNext() {
		t.Error("second sequence ran more than three checks")
	}
}

func TestRetry_NotEngagedAfterDeliberateDisconnect(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	f.c.Disconnect()

	// Some transports still report the loss of a link they were asked to drop.
	f.transport.drop()

	if f.scheduler.pending() != 0 {
		t.Errorf("pending checks = %d, want 0", f.scheduler.pending())
	}
	if f.c.Snapshot().Retrying {
		t.Error("Retrying = true after deliberate disconnect")
	}
}

func TestRetry_DelegatedWithAutoReconnect(t *testing.T) {
	f := newFixture(t, func(c *config.MQTTConfig) {
		c.Session.AutoReconnect = true
	})
	f.online(t)
	before, _, _ := f.transport.counts()

	f.transport.drop()

	assertState(t, f.c, Offline, SensorUnknown)
	if f.scheduler.pending() != 0 {
		t.Errorf("pending checks = %d, want 0 with auto reconnect", f.scheduler.pending())
	}
	if after, _, _ := f.transport.counts(); after != before {
		t.Errorf("coordinator issued %d connects, want 0 with auto reconnect", after-before)
	}

	// Bookkeeping still follows the callbacks.
	f.transport.establish()
	assertState(t, f.c, Online, SensorUnknown)
}

func TestRetry_DestroyCancelsPendingCheck(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	f.transport.drop()
	before, _, _ := f.transport.counts()

	f.c.Destroy()

	if f.scheduler.pending() != 0 {
		t.Errorf("pending checks after Destroy = %d, want 0", f.scheduler.pending())
	}
	if n := f.scheduler.fireStopped(); n != 1 {
		t.Fatalf("fired %d stopped checks, want 1", n)
	}
	if after, _, _ := f.transport.counts(); after != before {
		t.Errorf("check after Destroy issued %d connects", after-before)
	}
	if f.c.Snapshot().Retrying {
		t.Error("Retrying = true after Destroy")
	}
}

func TestRetry_DetachDoesNotAffectTimers(t *testing.T) {
	f := newFixture(t)
	f.online(t)
	f.transport.drop()

	f.c.Detach(f.sink)

	if f.scheduler.pending() != 1 {
		t.Fatalf("pending checks after Detach = %d, want 1", f.scheduler.pending())
	}
	for f.scheduler.fireNext() {
	}
	if got := f.c.Snapshot().RetryAttempts; got != 3 {
		t.Errorf("RetryAttempts = %d, want 3", got)
	}
}

func TestRetry_CustomPolicy(t *testing.T) {
	f := newFixture(t, func(c *config.MQTTConfig) {
		c.Retry.DelayMS = 250
		c.Retry.MaxAttempts = 1
	})
	f.online(t)
	f.transport.drop()

	if got := f.scheduler.lastDelay(); got != 250*time.Millisecond {
		t.Errorf("retry delay = %v, want 250ms", got)
	}
	if !f.scheduler.fireNext() {
		t.Fatal("no check scheduled")
	}
	if f.scheduler.fireNext() {
		t.Error("second check scheduled with max_attempts = 1")
	}
}

func TestRealScheduler(t *testing.T) {
	fired := make(chan struct{})
	timer := realScheduler{}.AfterFunc(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("real scheduler did not fire")
	}
	if timer.Stop() {
		t.Error("Stop() = true after the timer fired")
	}
}
