package management

import (
	"sync"
	"sync/atomic"
	"time"
)

type NotificationType string

const (
	CacheEnabled           NotificationType = "CacheEnabled"
	CacheRegionChanged     NotificationType = "CacheRegionChanged"
	CacheFlushed           NotificationType = "CacheFlushed"
	CacheRegionFlushed     NotificationType = "CacheRegionFlushed"
	CacheStatisticsEnabled NotificationType = "CacheStatisticsEnabled"
	CacheStatisticsReset   NotificationType = "CacheStatisticsReset"
)

// NotificationTypes lists every type a Stats facade emits.
var NotificationTypes = []NotificationType{
	CacheEnabled,
	CacheRegionChanged,
	CacheFlushed,
	CacheRegionFlushed,
	CacheStatisticsEnabled,
	CacheStatisticsReset,
}

// Notification is a management event. Data holds the region attributes for
// region changes and the new flag for CacheEnabled.
type Notification struct {
	Type      NotificationType
	Source    string
	Region    string
	Sequence  int64
	Timestamp time.Time
	Data      any
}

type Listener func(Notification)

// Emitter delivers notifications synchronously to its listeners in
// subscription order.
type Emitter struct {
	source string

	mu        sync.RWMutex
	nextID    int
	listeners []subscription
	sequence  atomic.Int64
}

type subscription struct {
	id int
	fn Listener
}

// Subscribe registers l and returns a function removing it again.
func (e *Emitter) Subscribe(l Listener) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, subscription{id: id, fn: l})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		for i, s := range e.listeners {
			if s.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// Dispose drops every listener.
func (e *Emitter) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = nil
}

func (e *Emitter) emit(t NotificationType, region string, data any) {
	n := Notification{
		Type:      t,
		Source:    e.source,
		Region:    region,
		Sequence:  e.sequence.Add(1),
		Timestamp: time.Now(),
		Data:      data,
	}

	e.mu.RLock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, s := range e.listeners {
		listeners = append(listeners, s.fn)
	}
	e.mu.RUnlock()

	for _, l := range listeners {
		l(n)
	}
}
