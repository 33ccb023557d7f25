// SPDX-License-Identifier: MIT

package dispatch

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jamcast/jamd/internal/domain/session/model"
	"github.com/jamcast/jamd/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func event(sessionID, op string) model.SessionChanged {
	return model.SessionChanged{
		Snapshot:  model.Snapshot{SessionID: sessionID},
		Op:        op,
		EmittedAt: time.Now(),
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	d := New(4)
	a := d.Subscribe("s1", "p1")
	b := d.Subscribe("s1", "p2")
	defer a.Close()
	defer b.Close()

	d.Publish(event("s1", "pause"))

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.C():
			require.Equal(t, "pause", ev.Op)
			require.Equal(t, "s1", ev.SessionID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestPublishDoesNotCrossSessions(t *testing.T) {
	d := New(4)
	a := d.Subscribe("s1", "p1")
	b := d.Subscribe("s2", "p2")
	defer a.Close()
	defer b.Close()

	d.Publish(event("s1", "skip"))

	select {
	case <-a.C():
	case <-time.After(time.Second):
		t.Fatal("same-session subscriber did not receive event")
	}

	select {
	case ev := <-b.C():
		t.Fatalf("unexpected cross-session delivery: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	d := New(2)
	slow := d.Subscribe("s1", "slow")
	defer slow.Close()

	before := getCounterValue(t, metrics.DispatchDroppedTotal.WithLabelValues("buffer_full"))

	// Fill the buffer, then publish past it. Publish must return immediately.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Publish(event("s1", "enqueue"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	after := getCounterValue(t, metrics.DispatchDroppedTotal.WithLabelValues("buffer_full"))
	require.Greater(t, after, before, "expected drop counter to increase")
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	d := New(4)
	early := d.Subscribe("s1", "early")
	defer early.Close()

	d.Publish(event("s1", "enqueue"))

	late := d.Subscribe("s1", "late")
	defer late.Close()

	select {
	case ev := <-late.C():
		t.Fatalf("late subscriber received replayed event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	d := New(4)
	sub := d.Subscribe("s1", "p1")

	sub.Close()
	sub.Close() // second close must be a no-op

	require.Equal(t, 0, d.SubscriberCount("s1"))

	// Channel is closed, not left dangling.
	_, ok := <-sub.C()
	require.False(t, ok)
}

func TestDropSessionClosesAllSubscribers(t *testing.T) {
	d := New(4)
	a := d.Subscribe("s1", "p1")
	b := d.Subscribe("s1", "p2")

	d.DropSession("s1")

	for _, sub := range []*Subscription{a, b} {
		select {
		case _, ok := <-sub.C():
			require.False(t, ok, "channel should be closed")
		case <-time.After(time.Second):
			t.Fatal("channel not closed after DropSession")
		}
	}
	require.Equal(t, 0, d.SubscriberCount("s1"))
}

func TestPublishAfterCloseDoesNotPanic(t *testing.T) {
	d := New(1)
	sub := d.Subscribe("s1", "p1")
	sub.Close()
	d.Publish(event("s1", "skip"))
}
