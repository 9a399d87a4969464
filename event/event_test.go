// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event_test

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/A-10-g/EcoChain-DAO/event"
)

const testEvtType event.EventType = "test.event"

func receive(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "event channel closed unexpectedly")
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return event.Event{}
}

func TestEventBusSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, sub1Ch := eb.Subscribe(testEvtType)
	_, sub2Ch := eb.Subscribe(testEvtType)
	_, otherCh := eb.Subscribe("other.event")
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 999))
	assert.Equal(t, 999, receive(t, sub1Ch).Data)
	assert.Equal(t, 999, receive(t, sub2Ch).Data)
	select {
	case evt := <-otherCh:
		t.Fatalf("unexpected event for other type: %v", evt)
	default:
	}
}

func TestEventBusAllEvents(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, allCh := eb.Subscribe(event.AllEventsType)
	eb.Publish("a.event", event.NewEvent("a.event", 1))
	eb.Publish("b.event", event.NewEvent("b.event", 2))
	evt := receive(t, allCh)
	assert.Equal(t, event.EventType("a.event"), evt.Type)
	evt = receive(t, allCh)
	assert.Equal(t, event.EventType("b.event"), evt.Type)
}

func TestEventBusUnsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	subId, subCh := eb.Subscribe(testEvtType)
	eb.Unsubscribe(testEvtType, subId)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 1))
	_, ok := <-subCh
	assert.False(t, ok, "channel should be closed after unsubscribe")
	// Unknown subscriber is a no-op
	eb.Unsubscribe(testEvtType, 12345)
}

func TestEventBusAsyncOrdering(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	_, subCh := eb.Subscribe(testEvtType)
	const count = event.EventQueueSize
	for i := range count {
		require.True(t, eb.PublishAsync(testEvtType, event.NewEvent(testEvtType, i)))
	}
	for i := range count {
		assert.Equal(t, i, receive(t, subCh).Data)
	}
	eb.Stop()
	assert.False(t, eb.PublishAsync(testEvtType, event.NewEvent(testEvtType, 0)))
	_, ok := <-subCh
	assert.False(t, ok)
}

func TestEventBusStopDrainsQueue(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	var mu sync.Mutex
	var got []any
	eb.RegisterSubscriber(testEvtType, &funcSubscriber{fn: func(evt event.Event) {
		mu.Lock()
		got = append(got, evt.Data)
		mu.Unlock()
	}})
	for i := range 10 {
		eb.PublishAsync(testEvtType, event.NewEvent(testEvtType, i))
	}
	eb.Stop()
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 10)
}

func TestEventBusSlowSubscriberDropped(t *testing.T) {
	defer goleak.VerifyNone(t)
	reg := prometheus.NewRegistry()
	eb := event.NewEventBus(reg, nil)
	defer eb.Stop()
	_, slowCh := eb.Subscribe(testEvtType)
	received := 0
	eb.RegisterSubscriber(testEvtType, &funcSubscriber{fn: func(event.Event) {
		received++
	}})
	for i := range event.EventQueueSize + 1 {
		eb.Publish(testEvtType, event.NewEvent(testEvtType, i))
	}
	assert.Equal(t, event.EventQueueSize+1, received)
	count := 0
	for range slowCh {
		count++
	}
	assert.Equal(t, event.EventQueueSize, count)
	assert.Equal(t, float64(1), counterTotal(t, reg, "event_bus_delivery_errors_total"))
	assert.Equal(
		t,
		float64(event.EventQueueSize+1),
		counterTotal(t, reg, "event_bus_events_total"),
	)
}

func TestEventBusSubscriberPanic(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	eb.RegisterSubscriber(testEvtType, &funcSubscriber{fn: func(event.Event) {
		panic("boom")
	}})
	_, okCh := eb.Subscribe(testEvtType)
	assert.NotPanics(t, func() {
		eb.Publish(testEvtType, event.NewEvent(testEvtType, "x"))
	})
	assert.Equal(t, "x", receive(t, okCh).Data)
}

func TestEventBusSubscribeFunc(t *testing.T) {
	defer goleak.VerifyNone(t)
	eb := event.NewEventBus(nil, nil)
	done := make(chan any, 1)
	eb.SubscribeFunc(testEvtType, func(evt event.Event) {
		done <- evt.Data
	})
	eb.Publish(testEvtType, event.NewEvent(testEvtType, "hello"))
	select {
	case v := <-done:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
	eb.Stop()
}

type funcSubscriber struct {
	fn func(event.Event)
}

func (f *funcSubscriber) Deliver(evt event.Event) error {
	f.fn(evt)
	return nil
}

func (f *funcSubscriber) Close() {}

// counterTotal sums every series of the named counter family
func counterTotal(
	t *testing.T,
	reg *prometheus.Registry,
	name string,
) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
