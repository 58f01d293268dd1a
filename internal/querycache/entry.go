package querycache

import (
	"time"
)

// Status is the resolution state of a cache entry.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// entry is the mutable state behind one key. Only Cache methods touch it,
// always with Cache.mu held.
type entry struct {
	key         Key
	status      Status
	value       any
	hasValue    bool
	err         error
	invalidated bool
	updatedAt   time.Time

	// generation identifies the latest issued fetch. A resolution carrying an
	// older generation is discarded.
	generation uint64
	fetching   bool
	flightKey  string
	flightFn   func() (any, error)

	// version bumps on every observable change and lets the event loop drop
	// notifications that were overtaken before delivery.
	version uint64
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:           e.key,
		Status:        e.status,
		Value:         e.value,
		HasValue:      e.hasValue,
		Err:           e.err,
		IsLoading:     e.status == StatusPending,
		IsFetching:    e.fetching,
		IsInvalidated: e.invalidated,
		UpdatedAt:     e.updatedAt,
		Generation:    e.generation,
	}
}

// Snapshot is a point-in-time copy of an entry.
type Snapshot struct {
	Key           Key
	Status        Status
	Value         any
	HasValue      bool
	Err           error
	IsLoading     bool
	IsFetching    bool
	IsInvalidated bool
	UpdatedAt     time.Time
	Generation    uint64
}

// EventType describes what happened to an entry.
type EventType int

const (
	EventResolved EventType = iota
	EventFailed
	EventUpdated
	EventInvalidated
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventResolved:
		return "resolved"
	case EventFailed:
		return "failed"
	case EventUpdated:
		return "updated"
	case EventInvalidated:
		return "invalidated"
	default:
		return "removed"
	}
}

// Event is delivered to listeners after an entry changes.
type Event struct {
	Type       EventType
	Key        Key
	Value      any
	Err        error
	Generation uint64

	entry   *entry
	version uint64
}

// HasValue reports whether the event carries freshly written data.
func (ev Event) HasValue() bool {
	return ev.Type == EventResolved || ev.Type == EventUpdated
}

// Listener receives cache events. Listeners run one at a time, in the order
// the changes were applied, and may call back into the cache.
type Listener func(Event)

type subscription struct {
	pattern  Key
	listener Listener
}
