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

package event

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventQueueSize = 64
	AsyncQueueSize = 1024
)

// AllEventsType subscribes to every published event type
const AllEventsType EventType = "*"

var ErrSubscriberFull = errors.New("subscriber queue full")

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

// Subscriber receives events from the bus. Deliver must not block for long,
// since it runs on the publishing goroutine. Close must be idempotent.
type Subscriber interface {
	Deliver(Event) error
	Close()
}

// channelSubscriber buffers events on a channel. A subscriber that falls
// EventQueueSize events behind is dropped rather than stalling the publisher.
type channelSubscriber struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func newChannelSubscriber(buffer int) *channelSubscriber {
	return &channelSubscriber{
		ch: make(chan Event, buffer),
	}
}

func (c *channelSubscriber) Deliver(evt Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	select {
	case c.ch <- evt:
		return nil
	default:
		return ErrSubscriberFull
	}
}

func (c *channelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// EventBus fans out published events to subscribers. Events published with
// PublishAsync are delivered by a single worker, so subscribers observe them
// in publish order.
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]Subscriber
	metrics     eventMetrics
	logger      *slog.Logger
	asyncQueue  chan Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	lastSubId   EventSubscriberId
	mu          sync.RWMutex
	stopMu      sync.RWMutex
	stopped     bool
}

func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]Subscriber),
		logger:      logger.With("component", "event"),
		asyncQueue:  make(chan Event, AsyncQueueSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	e.metrics.init(promRegistry)
	go e.asyncWorker()
	return e
}

func (e *EventBus) asyncWorker() {
	defer close(e.doneCh)
	for {
		select {
		case <-e.stopCh:
			// Flush what was already accepted
			for {
				select {
				case evt := <-e.asyncQueue:
					e.Publish(evt.Type, evt)
				default:
					return
				}
			}
		case evt := <-e.asyncQueue:
			e.Publish(evt.Type, evt)
		}
	}
}

func (e *EventBus) addSubscriber(
	eventType EventType,
	sub Subscriber,
	kind string,
) EventSubscriberId {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSubId++
	subId := e.lastSubId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]Subscriber)
	}
	e.subscribers[eventType][subId] = sub
	e.metrics.subscribers.WithLabelValues(string(eventType), kind).Inc()
	return subId
}

// Subscribe returns a channel receiving events of the given type. The
// channel is closed on Unsubscribe, on Stop, or when the subscriber falls
// too far behind.
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	chSub := newChannelSubscriber(EventQueueSize)
	subId := e.addSubscriber(eventType, chSub, "channel")
	return subId, chSub.ch
}

// SubscribeFunc runs handlerFunc on its own goroutine for each event
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, evtCh := e.Subscribe(eventType)
	go func() {
		for evt := range evtCh {
			handlerFunc(evt)
		}
	}()
	return subId
}

// RegisterSubscriber adds a custom Subscriber implementation
func (e *EventBus) RegisterSubscriber(
	eventType EventType,
	sub Subscriber,
) EventSubscriberId {
	return e.addSubscriber(eventType, sub, subscriberKind(sub))
}

func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	var sub Subscriber
	if evtTypeSubs, ok := e.subscribers[eventType]; ok {
		if s, ok := evtTypeSubs[subId]; ok {
			sub = s
			delete(evtTypeSubs, subId)
			if len(evtTypeSubs) == 0 {
				delete(e.subscribers, eventType)
			}
			e.metrics.subscribers.WithLabelValues(string(eventType), subscriberKind(s)).
				Dec()
		}
	}
	e.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

// Publish delivers evt synchronously to subscribers of eventType and of
// AllEventsType
func (e *EventBus) Publish(eventType EventType, evt Event) {
	type subItem struct {
		sub     Subscriber
		subType EventType
		id      EventSubscriberId
	}
	e.mu.RLock()
	var subList []subItem
	for _, subType := range []EventType{eventType, AllEventsType} {
		for id, sub := range e.subscribers[subType] {
			subList = append(subList, subItem{sub: sub, subType: subType, id: id})
		}
		if eventType == AllEventsType {
			break
		}
	}
	e.mu.RUnlock()
	for _, item := range subList {
		err := safeDeliver(item.sub, evt)
		if err == nil {
			continue
		}
		e.Unsubscribe(item.subType, item.id)
		e.metrics.deliveryErrors.WithLabelValues(string(eventType), subscriberKind(item.sub)).
			Inc()
		e.logger.Debug(
			"event delivery failed, subscriber removed",
			"type", eventType,
			"subscriber", item.id,
			"error", err,
		)
	}
	e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
}

// PublishAsync queues an event for ordered background delivery. It returns
// false if the bus is stopped or the queue is full.
func (e *EventBus) PublishAsync(eventType EventType, evt Event) bool {
	evt.Type = eventType
	e.stopMu.RLock()
	defer e.stopMu.RUnlock()
	if e.stopped {
		return false
	}
	select {
	case e.asyncQueue <- evt:
		return true
	default:
		e.logger.Warn(
			"async event queue full, dropping event",
			"type", eventType,
		)
		e.metrics.deliveryErrors.WithLabelValues(string(eventType), "async-dropped").
			Inc()
		return false
	}
}

// Stop drains queued events, then closes all subscribers. Later calls to
// PublishAsync are rejected.
func (e *EventBus) Stop() {
	e.stopMu.Lock()
	if e.stopped {
		e.stopMu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.stopMu.Unlock()
	<-e.doneCh

	e.mu.Lock()
	subs := e.subscribers
	e.subscribers = make(map[EventType]map[EventSubscriberId]Subscriber)
	e.mu.Unlock()
	for _, evtTypeSubs := range subs {
		for _, sub := range evtTypeSubs {
			sub.Close()
		}
	}
	e.metrics.subscribers.Reset()
}

func safeDeliver(sub Subscriber, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber deliver panic: %v", r)
		}
	}()
	return sub.Deliver(evt)
}

func subscriberKind(sub Subscriber) string {
	if _, ok := sub.(*channelSubscriber); ok {
		return "channel"
	}
	return "custom"
}
